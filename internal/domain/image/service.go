package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/errors"
	"aihelper-server-go/internal/platform/logging"
)

// Upload is one inbound chat image, base64 from the client.
type Upload struct {
	FileName string `json:"file_name"`
	Data     string `json:"data"`
}

// ResponseDTO is the image shape returned to clients: metadata plus a
// short-lived signed URL, never the raw object key.
type ResponseDTO struct {
	ID               uint   `json:"id"`
	OriginalFileName string `json:"original_file_name"`
	MimeType         string `json:"mime_type"`
	FileSize         int64  `json:"file_size"`
	OCRText          string `json:"ocr_text,omitempty"`
	URL              string `json:"url"`
}

type Service struct {
	db         *gorm.DB
	store      ObjectStore
	recognizer Recognizer
	logger     *logging.Logger

	maxSize   int64
	urlExpire time.Duration
}

func NewService(db *gorm.DB, store ObjectStore, recognizer Recognizer, logger *logging.Logger, maxSize int64, urlExpire time.Duration) *Service {
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	if urlExpire <= 0 {
		urlExpire = 15 * time.Minute
	}
	return &Service{
		db:         db,
		store:      store,
		recognizer: recognizer,
		logger:     logger,
		maxSize:    maxSize,
		urlExpire:  urlExpire,
	}
}

// CreateFromBase64 decodes, stores and records one chat image. OCR runs
// after upload; a failure there only costs the extracted text.
func (s *Service) CreateFromBase64(ctx context.Context, userID, conversationID, messageID uint, upload Upload) (*models.MessageImage, error) {
	data, err := decodeBase64Image(upload.Data)
	if err != nil {
		return nil, errors.New(errors.KindChat, "image.CreateFromBase64", "图片数据解码失败")
	}
	if int64(len(data)) > s.maxSize {
		return nil, errors.New(errors.KindChat, "image.CreateFromBase64",
			fmt.Sprintf("图片大小超过限制 %dMB", s.maxSize>>20))
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, errors.New(errors.KindChat, "image.CreateFromBase64", "不支持的图片格式: "+mimeType)
	}

	key := fmt.Sprintf("chat-images/%d/%s.%s", userID, uuid.NewString(), extensionFor(mimeType))
	if err := s.store.Put(key, data, mimeType); err != nil {
		return nil, err
	}

	ocrText := ""
	if text, err := s.recognizer.Recognize(ctx, data, mimeType); err != nil {
		s.logger.WarnTag("图片", "OCR识别失败, 跳过: %v", err)
	} else {
		ocrText = text
	}

	img := &models.MessageImage{
		MessageID:        messageID,
		ConversationID:   conversationID,
		UserID:           userID,
		OriginalFileName: upload.FileName,
		OSSKey:           key,
		MimeType:         mimeType,
		FileSize:         int64(len(data)),
		OCRText:          ocrText,
	}
	if err := s.db.Create(img).Error; err != nil {
		// 数据库写入失败时回收已上传的对象
		if delErr := s.store.Delete(key); delErr != nil {
			s.logger.WarnTag("图片", "回收孤儿对象失败 %s: %v", key, delErr)
		}
		return nil, errors.Wrap(errors.KindStorage, "image.CreateFromBase64", "保存图片记录失败", err)
	}
	s.logger.InfoTag("图片", "图片已上传 user=%d key=%s size=%d", userID, key, len(data))
	return img, nil
}

// ImagesByMessageID returns the message's images with fresh signed URLs.
func (s *Service) ImagesByMessageID(messageID uint) ([]ResponseDTO, error) {
	var imgs []models.MessageImage
	if err := s.db.Where("message_id = ?", messageID).Find(&imgs).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "image.ImagesByMessageID", "查询图片记录失败", err)
	}
	return s.toDTOs(imgs), nil
}

// SignURL produces a read URL for a stored object key.
func (s *Service) SignURL(key string) (string, error) {
	return s.store.SignedURL(key, s.urlExpire)
}

// DeleteByMessageID removes the message's image records and their
// objects. Object deletion is best-effort.
func (s *Service) DeleteByMessageID(messageID uint) error {
	var imgs []models.MessageImage
	if err := s.db.Where("message_id = ?", messageID).Find(&imgs).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "image.DeleteByMessageID", "查询图片记录失败", err)
	}
	for _, img := range imgs {
		if err := s.store.Delete(img.OSSKey); err != nil {
			s.logger.WarnTag("图片", "删除对象失败 %s: %v", img.OSSKey, err)
		}
	}
	if err := s.db.Where("message_id = ?", messageID).Delete(&models.MessageImage{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "image.DeleteByMessageID", "删除图片记录失败", err)
	}
	return nil
}

func (s *Service) toDTOs(imgs []models.MessageImage) []ResponseDTO {
	dtos := make([]ResponseDTO, 0, len(imgs))
	for _, img := range imgs {
		url, err := s.store.SignedURL(img.OSSKey, s.urlExpire)
		if err != nil {
			s.logger.WarnTag("图片", "生成签名URL失败 %s: %v", img.OSSKey, err)
		}
		dtos = append(dtos, ResponseDTO{
			ID:               img.ID,
			OriginalFileName: img.OriginalFileName,
			MimeType:         img.MimeType,
			FileSize:         img.FileSize,
			OCRText:          img.OCRText,
			URL:              url,
		})
	}
	return dtos
}

// decodeBase64Image accepts raw base64 or a data URL
// ("data:image/png;base64,....").
func decodeBase64Image(data string) ([]byte, error) {
	if idx := strings.Index(data, ";base64,"); idx >= 0 && strings.HasPrefix(data, "data:") {
		data = data[idx+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(data)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "bin"
	}
}
