package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"aihelper-server-go/internal/platform/config"
	"aihelper-server-go/internal/platform/errors"
)

// Recognizer extracts text from an image. OCR is best-effort: callers
// treat an error as "no text" and keep going.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, mimeType string) (string, error)
}

// NopRecognizer returns no text. Used when no OCR endpoint is configured.
type NopRecognizer struct{}

func (NopRecognizer) Recognize(context.Context, []byte, string) (string, error) {
	return "", nil
}

type httpRecognizer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewRecognizer builds the HTTP OCR client, or a NopRecognizer when no
// endpoint is configured.
func NewRecognizer(cfg config.OCRConfig) Recognizer {
	if cfg.Endpoint == "" {
		return NopRecognizer{}
	}
	return &httpRecognizer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type ocrRequest struct {
	Image string `json:"image"`
}

type ocrResponse struct {
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

func (r *httpRecognizer) Recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	payload := ocrRequest{
		Image: fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(errors.KindVendor, "image.Recognize", "编码OCR请求失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(errors.KindVendor, "image.Recognize", "创建OCR请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.KindVendor, "image.Recognize", "调用OCR服务失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.New(errors.KindVendor, "image.Recognize",
			fmt.Sprintf("OCR服务返回 %d: %s", resp.StatusCode, raw))
	}

	var parsed ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.Wrap(errors.KindVendor, "image.Recognize", "解析OCR响应失败", err)
	}
	return parsed.Data.Content, nil
}
