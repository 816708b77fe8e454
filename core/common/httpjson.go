package common

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Malowking/finrag/core/errors"
	"github.com/bytedance/sonic"
)

const defaultHTTPTimeout = 2 * time.Minute

// apiErrorBody 兼容 OpenAI 风格 {"error":{"message":..}} 和 Cohere 风格 {"message":..}
type apiErrorBody struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func (b apiErrorBody) text() string {
	if b.Error.Message != "" {
		return b.Error.Message
	}
	return b.Message
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   30 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
		},
	}
}

// postJSON 发送 JSON 请求并把 200 响应解码到 out，其余情况返回带 code 的业务错误
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, in, out any, code errors.ErrCode) error {
	payload, err := sonic.Marshal(in)
	if err != nil {
		return errors.Wrap(code, err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(code, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(code, err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(code, err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorBody
		if err := sonic.Unmarshal(body, &apiErr); err != nil || apiErr.text() == "" {
			return errors.Newf(code, "API error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return errors.Newf(code, "API error (HTTP %d): %s", resp.StatusCode, apiErr.text())
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return errors.Wrap(code, err, "failed to decode response")
	}
	return nil
}
