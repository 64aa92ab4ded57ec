package image

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/logging"
)

// 1x1 transparent PNG
var pngBytes = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, 0x89, 0x00, 0x00, 0x00,
	0x0A, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82,
}

type stubRecognizer struct {
	text string
	err  error
}

func (s stubRecognizer) Recognize(context.Context, []byte, string) (string, error) {
	return s.text, s.err
}

func newTestImageService(t *testing.T, rec Recognizer) (*Service, *MemoryStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&models.MessageImage{}); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	store := NewMemoryStore()
	return NewService(db, store, rec, logging.NewNop(), 1<<20, time.Minute), store
}

func TestCreateFromBase64(t *testing.T) {
	svc, store := newTestImageService(t, stubRecognizer{text: "发票号 12345"})

	upload := Upload{
		FileName: "receipt.png",
		Data:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
	}
	img, err := svc.CreateFromBase64(context.Background(), 1, 2, 3, upload)
	if err != nil {
		t.Fatalf("CreateFromBase64 error: %v", err)
	}
	if img.MimeType != "image/png" {
		t.Fatalf("expected image/png, got %q", img.MimeType)
	}
	if img.OCRText != "发票号 12345" {
		t.Fatalf("expected OCR text stored, got %q", img.OCRText)
	}
	if !strings.HasPrefix(img.OSSKey, "chat-images/1/") || !strings.HasSuffix(img.OSSKey, ".png") {
		t.Fatalf("unexpected object key %q", img.OSSKey)
	}
	if keys := store.Keys(); len(keys) != 1 || keys[0] != img.OSSKey {
		t.Fatalf("object not stored, keys=%v", keys)
	}
}

func TestCreateFromBase64WithoutDataURLPrefix(t *testing.T) {
	svc, _ := newTestImageService(t, stubRecognizer{})

	upload := Upload{FileName: "a.png", Data: base64.StdEncoding.EncodeToString(pngBytes)}
	if _, err := svc.CreateFromBase64(context.Background(), 1, 2, 3, upload); err != nil {
		t.Fatalf("raw base64 must be accepted: %v", err)
	}
}

func TestCreateFromBase64RejectsBadInput(t *testing.T) {
	svc, store := newTestImageService(t, stubRecognizer{})

	cases := []struct {
		name string
		data string
	}{
		{"无效base64", "!!!not-base64!!!"},
		{"非图片内容", base64.StdEncoding.EncodeToString([]byte("plain text payload"))},
	}
	for _, tc := range cases {
		if _, err := svc.CreateFromBase64(context.Background(), 1, 2, 3, Upload{Data: tc.data}); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
	if len(store.Keys()) != 0 {
		t.Fatal("rejected uploads must not leave objects behind")
	}
}

func TestCreateFromBase64SizeLimit(t *testing.T) {
	svc, _ := newTestImageService(t, stubRecognizer{})
	svc.maxSize = 16

	upload := Upload{Data: base64.StdEncoding.EncodeToString(pngBytes)}
	if _, err := svc.CreateFromBase64(context.Background(), 1, 2, 3, upload); err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestOCRFailureIsBestEffort(t *testing.T) {
	svc, _ := newTestImageService(t, stubRecognizer{err: context.DeadlineExceeded})

	upload := Upload{Data: base64.StdEncoding.EncodeToString(pngBytes)}
	img, err := svc.CreateFromBase64(context.Background(), 1, 2, 3, upload)
	if err != nil {
		t.Fatalf("OCR failure must not fail the upload: %v", err)
	}
	if img.OCRText != "" {
		t.Fatalf("expected empty OCR text, got %q", img.OCRText)
	}
}

func TestDeleteByMessageID(t *testing.T) {
	svc, store := newTestImageService(t, stubRecognizer{})

	upload := Upload{Data: base64.StdEncoding.EncodeToString(pngBytes)}
	if _, err := svc.CreateFromBase64(context.Background(), 1, 2, 3, upload); err != nil {
		t.Fatalf("CreateFromBase64 error: %v", err)
	}

	if err := svc.DeleteByMessageID(3); err != nil {
		t.Fatalf("DeleteByMessageID error: %v", err)
	}
	if len(store.Keys()) != 0 {
		t.Fatal("expected objects removed")
	}
	dtos, err := svc.ImagesByMessageID(3)
	if err != nil {
		t.Fatalf("ImagesByMessageID error: %v", err)
	}
	if len(dtos) != 0 {
		t.Fatalf("expected no image records, got %d", len(dtos))
	}
}

func TestImagesByMessageIDSignsURLs(t *testing.T) {
	svc, _ := newTestImageService(t, stubRecognizer{})

	upload := Upload{Data: base64.StdEncoding.EncodeToString(pngBytes)}
	img, err := svc.CreateFromBase64(context.Background(), 1, 2, 3, upload)
	if err != nil {
		t.Fatalf("CreateFromBase64 error: %v", err)
	}

	dtos, err := svc.ImagesByMessageID(3)
	if err != nil {
		t.Fatalf("ImagesByMessageID error: %v", err)
	}
	if len(dtos) != 1 {
		t.Fatalf("expected 1 image, got %d", len(dtos))
	}
	if dtos[0].URL != "memory://"+img.OSSKey {
		t.Fatalf("unexpected signed URL %q", dtos[0].URL)
	}
}
