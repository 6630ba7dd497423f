package downloader

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"
)

// DownloadConfig 下载配置
type DownloadConfig struct {
	UserAgent    string        // User-Agent
	Timeout      time.Duration // 超时时间
	MaxRedirects int           // 最大重定向次数
}

// DefaultDownloadConfig 默认下载配置
func DefaultDownloadConfig() *DownloadConfig {
	return &DownloadConfig{
		UserAgent:    "wanx-studio/1.0",
		Timeout:      time.Minute * 2,
		MaxRedirects: 10,
	}
}

// Client 基于 resty 的图片下载客户端
type Client struct {
	config *DownloadConfig
	client *resty.Client
}

// New 创建下载客户端
func New(config *DownloadConfig) *Client {
	if config == nil {
		config = DefaultDownloadConfig()
	}
	if config.MaxRedirects <= 0 {
		config.MaxRedirects = 10
	}

	client := resty.New()
	client.SetTimeout(config.Timeout)
	client.SetHeader("User-Agent", config.UserAgent)
	client.SetHeader("Accept", "*/*")
	// 禁用压缩，避免 Content-Length 不匹配
	client.SetHeader("Accept-Encoding", "identity")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(config.MaxRedirects))

	return &Client{
		config: config,
		client: client,
	}
}

// Fetch 下载 URL 的完整内容，返回响应体和状态码。
// 只有传输层失败才返回 error，非 2xx 状态码由调用方判断。
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, int, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP请求失败: %w", err)
	}

	body := resp.Bytes()

	// 验证文件大小（如果服务器提供了Content-Length）
	if resp.IsSuccess() && resp.RawResponse != nil {
		if cl := resp.RawResponse.ContentLength; cl > 0 && int64(len(body)) != cl {
			return nil, resp.StatusCode(), fmt.Errorf("下载不完整: 期望 %d bytes, 实际 %d bytes", cl, len(body))
		}
	}

	return body, resp.StatusCode(), nil
}

// Close 关闭底层客户端
func (c *Client) Close() error {
	return c.client.Close()
}
