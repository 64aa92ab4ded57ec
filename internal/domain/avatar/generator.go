package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"aihelper-server-go/internal/platform/config"
	"aihelper-server-go/internal/platform/errors"
)

// ImageSynthesizer turns a text prompt into image bytes.
type ImageSynthesizer interface {
	Synthesize(ctx context.Context, prompt, size string) ([]byte, error)
}

// dashscopeSynthesizer drives DashScope's asynchronous image synthesis
// API: submit a task, poll until it finishes, download the result.
type dashscopeSynthesizer struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client

	pollInterval time.Duration
}

// NewSynthesizer builds the DashScope image synthesis client.
func NewSynthesizer(cfg config.AvatarConfig) (ImageSynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.KindConfig, "avatar.NewSynthesizer", "头像生成API key未配置")
	}
	return &dashscopeSynthesizer{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		client:       &http.Client{Timeout: 60 * time.Second},
		pollInterval: 2 * time.Second,
	}, nil
}

type synthesisRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt string `json:"prompt"`
	} `json:"input"`
	Parameters struct {
		Size string `json:"size"`
		N    int    `json:"n"`
	} `json:"parameters"`
}

type synthesisTask struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
	} `json:"output"`
	Message string `json:"message"`
}

func (s *dashscopeSynthesizer) Synthesize(ctx context.Context, prompt, size string) ([]byte, error) {
	taskID, err := s.submit(ctx, prompt, size)
	if err != nil {
		return nil, err
	}
	url, err := s.waitForResult(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.download(ctx, url)
}

func (s *dashscopeSynthesizer) submit(ctx context.Context, prompt, size string) (string, error) {
	var reqBody synthesisRequest
	reqBody.Model = s.model
	reqBody.Input.Prompt = prompt
	reqBody.Parameters.Size = size
	reqBody.Parameters.N = 1

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.Wrap(errors.KindVendor, "avatar.submit", "编码生成请求失败", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint+"/services/aigc/text2image/image-synthesis", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(errors.KindVendor, "avatar.submit", "创建生成请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("X-DashScope-Async", "enable")

	var task synthesisTask
	if err := s.do(req, &task); err != nil {
		return "", err
	}
	if task.Output.TaskID == "" {
		return "", errors.New(errors.KindVendor, "avatar.submit", "生成任务提交失败: "+task.Message)
	}
	return task.Output.TaskID, nil
}

func (s *dashscopeSynthesizer) waitForResult(ctx context.Context, taskID string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", errors.Wrap(errors.KindVendor, "avatar.waitForResult", "等待生成结果超时", ctx.Err())
		case <-time.After(s.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/tasks/"+taskID, nil)
		if err != nil {
			return "", errors.Wrap(errors.KindVendor, "avatar.waitForResult", "创建查询请求失败", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		var task synthesisTask
		if err := s.do(req, &task); err != nil {
			return "", err
		}
		switch task.Output.TaskStatus {
		case "SUCCEEDED":
			if len(task.Output.Results) == 0 {
				return "", errors.New(errors.KindVendor, "avatar.waitForResult", "生成任务成功但无结果")
			}
			return task.Output.Results[0].URL, nil
		case "FAILED", "CANCELED":
			return "", errors.New(errors.KindVendor, "avatar.waitForResult", "生成任务失败: "+task.Message)
		}
	}
}

func (s *dashscopeSynthesizer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindVendor, "avatar.download", "创建下载请求失败", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindVendor, "avatar.download", "下载生成图像失败", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.KindVendor, "avatar.download",
			fmt.Sprintf("下载生成图像返回 %d", resp.StatusCode))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func (s *dashscopeSynthesizer) do(req *http.Request, out *synthesisTask) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindVendor, "avatar.do", "调用图像生成服务失败", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.New(errors.KindVendor, "avatar.do",
			fmt.Sprintf("图像生成服务返回 %d: %s", resp.StatusCode, raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.KindVendor, "avatar.do", "解析图像生成响应失败", err)
	}
	return nil
}
