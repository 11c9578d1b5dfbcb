package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// 后端接口路径
const (
	EventsPath    = "/api/pcba/events"
	UIDFoundPath  = "/api/pcba/uid-found"
	UIDSearchPath = "/api/pcba/uid-search"
	RecordsPath   = "/api/test-records/"
)

// Reporter 将 JSON 文档发送到指定接口，最多尝试一次
type Reporter interface {
	Send(ctx context.Context, endpoint string, payload []byte) error
}

// TransportError 发送失败（连接错误或非 2xx 状态）
type TransportError struct {
	Endpoint   string
	StatusCode int    // 连接失败时为 0
	Body       string // 响应内容（截断）
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("POST %s: server returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("POST %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Endpoints 后端接口地址
type Endpoints struct {
	Events    string
	UIDFound  string
	UIDSearch string
	Records   string
}

// NewEndpoints 根据后端基础地址生成各接口地址
func NewEndpoints(baseURL string) Endpoints {
	base := strings.TrimRight(baseURL, "/")
	return Endpoints{
		Events:    base + EventsPath,
		UIDFound:  base + UIDFoundPath,
		UIDSearch: base + UIDSearchPath,
		Records:   base + RecordsPath,
	}
}

// HTTPReporter 通过 HTTP POST 发送
type HTTPReporter struct {
	client *http.Client
}

// NewHTTPReporter 创建 HTTP 发送器，timeout 为 0 时不设超时
func NewHTTPReporter(timeout time.Duration) *HTTPReporter {
	return &HTTPReporter{
		client: &http.Client{Timeout: timeout},
	}
}

// NewHTTPReporterWithClient 使用指定的 http.Client
func NewHTTPReporterWithClient(client *http.Client) *HTTPReporter {
	return &HTTPReporter{client: client}
}

// Send 发送一次 POST，不做重试
func (r *HTTPReporter) Send(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return nil
}

// SendJSON 序列化后发送
func SendJSON(ctx context.Context, r Reporter, endpoint string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}
	return r.Send(ctx, endpoint, payload)
}
