package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"aihelper-server-go/internal/domain/eventbus"
	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/logging"
)

type stubCodes struct {
	valid string
}

func (s stubCodes) Verify(_ context.Context, _, _, code string) (bool, error) {
	return code != "" && code == s.valid, nil
}

func newTestAuthService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	codec, err := NewTokenCodec("test-secret-key", time.Hour, logging.NewNop())
	if err != nil {
		t.Fatalf("NewTokenCodec error: %v", err)
	}
	bus := eventbus.New(1)
	t.Cleanup(bus.Close)
	return NewService(db, codec, stubCodes{valid: "123456"}, bus, logging.NewNop())
}

func register(t *testing.T, svc *Service, email string) *AuthResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: "pass-word-1",
		Code:     "123456",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestAuthService(t)

	resp := register(t, svc, "alice@example.com")
	if resp.Token == "" {
		t.Fatal("expected token after register")
	}
	if resp.User.Username == "" {
		t.Fatal("expected generated username")
	}
	login, err := svc.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "pass-word-1",
	})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if login.User.ID != resp.User.ID {
		t.Fatal("login resolved wrong user")
	}

	user, err := svc.CheckToken(context.Background(), login.Token)
	if err != nil {
		t.Fatalf("CheckToken error: %v", err)
	}
	if user.ID != resp.User.ID {
		t.Fatal("CheckToken resolved wrong user")
	}
}

func TestRegisterRejectsBadCode(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Password: "pass-word-1",
		Code:     "000000",
	})
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	svc := newTestAuthService(t)

	register(t, svc, "alice@example.com")
	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Password: "other",
		Code:     "123456",
	})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestAuthService(t)

	register(t, svc, "alice@example.com")
	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}

	_, err = svc.Login(context.Background(), LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLoginWithCode(t *testing.T) {
	svc := newTestAuthService(t)

	resp := register(t, svc, "alice@example.com")
	login, err := svc.LoginWithCode(context.Background(), CodeLoginRequest{
		Email: "alice@example.com",
		Code:  "123456",
	})
	if err != nil {
		t.Fatalf("LoginWithCode error: %v", err)
	}
	if login.User.ID != resp.User.ID {
		t.Fatal("code login resolved wrong user")
	}

	_, err = svc.LoginWithCode(context.Background(), CodeLoginRequest{
		Email: "alice@example.com",
		Code:  "999999",
	})
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
}

func TestDisabledUserCannotAuthenticate(t *testing.T) {
	svc := newTestAuthService(t)

	resp := register(t, svc, "alice@example.com")
	if err := svc.SetUserStatus(context.Background(), resp.User.ID, 0); err != nil {
		t.Fatalf("SetUserStatus error: %v", err)
	}

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "pass-word-1",
	})
	if !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected ErrUserDisabled, got %v", err)
	}

	// 已签发的令牌对停用账号同样失效
	if _, err := svc.CheckToken(context.Background(), resp.Token); err == nil {
		t.Fatal("token for disabled account must not check out")
	}
}

func TestResetPassword(t *testing.T) {
	svc := newTestAuthService(t)

	register(t, svc, "alice@example.com")
	err := svc.ResetPassword(context.Background(), ResetPasswordRequest{
		Email:       "alice@example.com",
		Code:        "123456",
		NewPassword: "new-pass-2",
	})
	if err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "pass-word-1"}); err == nil {
		t.Fatal("old password must stop working")
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "new-pass-2"}); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc := newTestAuthService(t)

	resp := register(t, svc, "alice@example.com")
	err := svc.ChangePassword(context.Background(), resp.User.ID, "wrong", "next")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials for wrong old password, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), resp.User.ID, "pass-word-1", "next-pass"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "next-pass"}); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestFindByUsernameMissingIsNilNil(t *testing.T) {
	svc := newTestAuthService(t)

	user, err := svc.FindByUsername(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("FindByUsername error: %v", err)
	}
	if user != nil {
		t.Fatalf("expected nil user, got %+v", user)
	}
}
