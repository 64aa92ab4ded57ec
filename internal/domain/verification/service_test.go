package verification

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"aihelper-server-go/internal/platform/logging"
)

type captureSender struct {
	code string
}

func (s *captureSender) Send(_ context.Context, _, _, code string) error {
	s.code = code
	return nil
}

func newTestVerification(t *testing.T) (*Service, *captureSender, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	sender := &captureSender{}
	return NewService(rdb, sender, logging.NewNop(), time.Minute), sender, mr
}

func TestIssueAndVerify(t *testing.T) {
	svc, sender, _ := newTestVerification(t)
	ctx := context.Background()

	if err := svc.Issue(ctx, "user@example.com", "register"); err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if len(sender.code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", sender.code)
	}

	ok, err := svc.Verify(ctx, "user@example.com", "register", sender.code)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected code to verify")
	}

	// 验证码一次性使用
	ok, err = svc.Verify(ctx, "user@example.com", "register", sender.code)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("consumed code must not verify again")
	}
}

func TestVerifyWrongCodeKeepsStored(t *testing.T) {
	svc, sender, _ := newTestVerification(t)
	ctx := context.Background()

	if err := svc.Issue(ctx, "13800000000", "login"); err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	wrong := "000000"
	if sender.code == wrong {
		wrong = "000001"
	}
	ok, err := svc.Verify(ctx, "13800000000", "login", wrong)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("wrong code must not verify")
	}

	ok, err = svc.Verify(ctx, "13800000000", "login", sender.code)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("correct code must still verify after a wrong attempt")
	}
}

func TestVerifyTypeIsolated(t *testing.T) {
	svc, sender, _ := newTestVerification(t)
	ctx := context.Background()

	if err := svc.Issue(ctx, "user@example.com", "register"); err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	ok, err := svc.Verify(ctx, "user@example.com", "reset_password", sender.code)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("code issued for register must not verify for reset_password")
	}
}

func TestVerifyExpiry(t *testing.T) {
	svc, sender, mr := newTestVerification(t)
	ctx := context.Background()

	if err := svc.Issue(ctx, "user@example.com", "register"); err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	ok, err := svc.Verify(ctx, "user@example.com", "register", sender.code)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expired code must not verify")
	}
}

func TestVerifyEmptyAndMissing(t *testing.T) {
	svc, _, _ := newTestVerification(t)
	ctx := context.Background()

	ok, err := svc.Verify(ctx, "nobody@example.com", "register", "123456")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("missing code must not verify")
	}

	ok, err = svc.Verify(ctx, "nobody@example.com", "register", "")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("empty code must not verify")
	}
}

func TestClear(t *testing.T) {
	svc, sender, _ := newTestVerification(t)
	ctx := context.Background()

	if err := svc.Issue(ctx, "user@example.com", "register"); err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if err := svc.Clear(ctx, "user@example.com", "register"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	ok, _ := svc.Verify(ctx, "user@example.com", "register", sender.code)
	if ok {
		t.Fatal("cleared code must not verify")
	}
}
