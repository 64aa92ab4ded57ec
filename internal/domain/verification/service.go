// Package verification issues and checks one-shot verification codes
// backed by redis.
package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"aihelper-server-go/internal/platform/errors"
	"aihelper-server-go/internal/platform/logging"
)

// Sender delivers a code to the receiver (mail, SMS). LogSender is the
// development default.
type Sender interface {
	Send(ctx context.Context, receiver, codeType, code string) error
}

// LogSender writes the code to the log instead of delivering it.
type LogSender struct {
	Logger *logging.Logger
}

func (s LogSender) Send(_ context.Context, receiver, codeType, code string) error {
	s.Logger.InfoTag("验证码", "发送验证码 type=%s receiver=%s code=%s", codeType, receiver, code)
	return nil
}

type Service struct {
	rdb    *redis.Client
	sender Sender
	logger *logging.Logger
	ttl    time.Duration
}

func NewService(rdb *redis.Client, sender Sender, logger *logging.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{rdb: rdb, sender: sender, logger: logger, ttl: ttl}
}

func codeKey(codeType, receiver string) string {
	return fmt.Sprintf("verify:%s:%s", codeType, receiver)
}

// Issue generates a 6-digit code, stores it with the configured TTL and
// hands it to the sender. Re-issuing overwrites the previous code.
func (s *Service) Issue(ctx context.Context, receiver, codeType string) error {
	code, err := randomCode(6)
	if err != nil {
		return errors.Wrap(errors.KindAuth, "verification.Issue", "生成验证码失败", err)
	}
	if err := s.rdb.Set(ctx, codeKey(codeType, receiver), code, s.ttl).Err(); err != nil {
		return errors.Wrap(errors.KindVendor, "verification.Issue", "存储验证码失败", err)
	}
	if err := s.sender.Send(ctx, receiver, codeType, code); err != nil {
		return errors.Wrap(errors.KindVendor, "verification.Issue", "发送验证码失败", err)
	}
	return nil
}

// Verify checks the code and consumes it on success. A wrong code leaves
// the stored code in place so the user can retry until it expires.
func (s *Service) Verify(ctx context.Context, receiver, codeType, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	key := codeKey(codeType, receiver)
	stored, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.KindVendor, "verification.Verify", "读取验证码失败", err)
	}
	if stored != code {
		return false, nil
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.WarnTag("验证码", "删除已用验证码失败 %s: %v", key, err)
	}
	return true, nil
}

// Clear drops any stored code for the receiver.
func (s *Service) Clear(ctx context.Context, receiver, codeType string) error {
	return s.rdb.Del(ctx, codeKey(codeType, receiver)).Err()
}

func randomCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
