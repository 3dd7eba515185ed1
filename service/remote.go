package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody 错误信息中保留的响应体长度
const maxErrorBody = 512

// ErrRejected 远程服务返回 2xx 但内容表明请求未被接受
var ErrRejected = errors.New("remote service rejected request")

// StatusError 远程服务返回非 2xx 状态码
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote returned status %d", e.Code)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.Code, e.Body)
}

// TransportError 请求未能到达远程服务或响应未能读完
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// remote 各远程服务客户端共用的 HTTP 调用
type remote struct {
	baseURL string
	client  *http.Client
}

func newRemote(baseURL string, timeout time.Duration) remote {
	return remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r remote) endpoint(path string, query url.Values) string {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (r remote) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType, bearer string) ([]byte, error) {
	endpoint := r.endpoint(path, query)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read " + method, URL: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(msg)}
	}

	return data, nil
}

func (r remote) get(ctx context.Context, path string, query url.Values, bearer string) ([]byte, error) {
	return r.do(ctx, http.MethodGet, path, query, nil, "", bearer)
}

func (r remote) postJSON(ctx context.Context, path string, query url.Values, payload any, bearer string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return r.do(ctx, http.MethodPost, path, query, bytes.NewReader(body), "application/json", bearer)
}

// postFile 以 multipart 单文件字段上传
func (r remote) postFile(ctx context.Context, path string, query url.Values, field, filename string, data []byte, bearer string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return r.do(ctx, http.MethodPost, path, query, &buf, w.FormDataContentType(), bearer)
}

// decodeJSON 响应体无法解析时视为协议错误
func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: invalid response body: %v", ErrRejected, err)
	}
	return nil
}
