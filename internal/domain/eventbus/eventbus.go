package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// 事件类型定义
const (
	// 用户相关事件
	EventUserRegistered = "user:registered"

	// 会话相关事件
	EventChatCompleted = "chat:completed"
)

// ChatCompletedData 聊天完成事件数据
type ChatCompletedData struct {
	ConversationID uint `json:"conversation_id"`
	MessageCount   int  `json:"message_count"`
}

// Bus wraps a synchronous EventBus with a bounded worker pool so publishers
// of async events never block on slow subscribers.
type Bus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// New 创建事件总线并启动异步worker
func New(workerNum int) *Bus {
	if workerNum <= 0 {
		workerNum = 10
	}
	b := &Bus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, 1000),
		stopChan:  make(chan struct{}),
	}
	for i := 0; i < b.workerNum; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopChan:
			return
		case event := <-b.workChan:
			func() {
				defer func() {
					// 订阅者panic不应拖垮worker
					_ = recover()
				}()
				b.bus.Publish(event.topic, event.args...)
			}()
		}
	}
}

// Publish 发布同步事件
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

// PublishAsync 异步发布事件，队列满时丢弃
func (b *Bus) PublishAsync(topic string, args ...interface{}) {
	select {
	case b.workChan <- asyncEvent{topic: topic, args: args}:
	default:
	}
}

// Subscribe 订阅事件
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// Unsubscribe 取消订阅
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

// Close 停止异步worker
func (b *Bus) Close() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
	b.wg.Wait()
}
