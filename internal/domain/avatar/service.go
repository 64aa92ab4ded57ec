package avatar

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"aihelper-server-go/internal/domain/eventbus"
	"aihelper-server-go/internal/domain/image"
	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/errors"
	"aihelper-server-go/internal/platform/logging"
)

const (
	avatarDirectory = "avatars/ai/"
	avatarSize      = "512*512"
)

type Service struct {
	db      *gorm.DB
	prompts *PromptGenerator
	synth   ImageSynthesizer
	store   image.ObjectStore
	logger  *logging.Logger
}

func NewService(db *gorm.DB, prompts *PromptGenerator, synth ImageSynthesizer, store image.ObjectStore, logger *logging.Logger) *Service {
	return &Service{db: db, prompts: prompts, synth: synth, store: store, logger: logger}
}

// SubscribeRegistrations generates an avatar for every newly registered
// user in the background.
func (s *Service) SubscribeRegistrations(bus *eventbus.Bus) error {
	return bus.Subscribe(eventbus.EventUserRegistered, func(userID uint) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		if _, err := s.GenerateForUser(ctx, userID, "", true); err != nil {
			s.logger.WarnTag("头像", "为新用户生成头像失败 user=%d: %v", userID, err)
		}
	})
}

// GenerateForUser creates an AI avatar, uploads it and points the user's
// profile at the new object. customPrompt overrides the name-derived
// prompt when non-empty. Returns the stored object key.
func (s *Service) GenerateForUser(ctx context.Context, userID uint, customPrompt string, newUser bool) (string, error) {
	if s.synth == nil {
		return "", errors.New(errors.KindConfig, "avatar.GenerateForUser", "头像生成服务未配置")
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return "", errors.Wrap(errors.KindStorage, "avatar.GenerateForUser", "查询用户失败", err)
	}

	prompt := customPrompt
	if prompt == "" {
		if newUser {
			prompt = s.prompts.GenerateForNewUser(user.Username, user.Nickname)
		} else {
			prompt = s.prompts.Generate(user.Username, user.Nickname)
		}
	}
	s.logger.InfoTag("头像", "开始生成头像 user=%d prompt=%s", userID, prompt)

	data, err := s.synth.Synthesize(ctx, prompt, avatarSize)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%sai_avatar_%d_%s.png", avatarDirectory, userID, time.Now().Format("20060102150405"))
	if err := s.store.Put(key, data, "image/png"); err != nil {
		return "", err
	}

	old := user.Avatar
	if err := s.db.Model(&user).Update("avatar", key).Error; err != nil {
		return "", errors.Wrap(errors.KindStorage, "avatar.GenerateForUser", "更新用户头像失败", err)
	}
	if old != "" {
		if err := s.store.Delete(old); err != nil {
			s.logger.WarnTag("头像", "删除旧头像失败 %s: %v", old, err)
		}
	}
	s.logger.InfoTag("头像", "头像生成完成 user=%d key=%s", userID, key)
	return key, nil
}
