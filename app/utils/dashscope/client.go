package dashscope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"wanx-studio/app/config"
	"wanx-studio/app/model"

	"resty.dev/v3"
)

const (
	text2ImagePath = "/api/v1/services/aigc/text2image/image-synthesis"
	imageEditPath  = "/api/v1/services/aigc/image2image/image-synthesis"
	taskPath       = "/api/v1/tasks/{taskId}"
)

// ErrMissingAPIKey 未配置 DASHSCOPE_API_KEY
var ErrMissingAPIKey = errors.New("API配置错误，缺少DASHSCOPE_API_KEY")

// APIError 供应商返回的非成功响应
type APIError struct {
	StatusCode int    `json:"-"`
	RequestID  string `json:"request_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "未知错误"
	}
	return fmt.Sprintf("API请求失败: %s (状态码: %d, code: %s)", msg, e.StatusCode, e.Code)
}

// Client 通义万相 DashScope 客户端
type Client struct {
	client       *resty.Client
	apiKey       string
	defaultModel string
	editModel    string
}

// New 创建 DashScope 客户端
func New(cfg config.DashScopeConfig) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Client{
		client:       client,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		editModel:    cfg.DefaultEditModel,
	}
}

// Close 关闭底层客户端
func (c *Client) Close() error {
	return c.client.Close()
}

// ResolveModel 返回实际使用的模型名称
func (c *Client) ResolveModel(kind, requested string) string {
	if requested != "" {
		return requested
	}
	if kind == model.KindImageEdit {
		return c.editModel
	}
	return c.defaultModel
}

func (c *Client) key(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	return c.apiKey, nil
}

// SubmitText2Image 提交文生图任务
func (c *Client) SubmitText2Image(ctx context.Context, req Text2ImageRequest) (*SubmitResponse, error) {
	key, err := c.key(req.APIKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("提示词不能为空")
	}

	body := text2ImageBody{Model: c.ResolveModel(model.KindText2Image, req.Model)}
	body.Input.Prompt = req.Prompt
	body.Input.NegativePrompt = req.NegativePrompt
	body.Parameters.Size = req.Size
	if body.Parameters.Size == "" {
		body.Parameters.Size = "1024*1024"
	}
	body.Parameters.N = req.N
	if body.Parameters.N <= 0 {
		body.Parameters.N = 1
	}
	body.Parameters.PromptExtend = req.PromptExtend

	return c.submit(ctx, key, text2ImagePath, body)
}

// SubmitImageEdit 提交图像编辑任务
func (c *Client) SubmitImageEdit(ctx context.Context, req ImageEditRequest) (*SubmitResponse, error) {
	key, err := c.key(req.APIKey)
	if err != nil {
		return nil, err
	}
	if req.ImageURL == "" {
		return nil, fmt.Errorf("需要编辑的图片URL不能为空")
	}

	fn := req.Function
	if fn == "" {
		fn = model.EditStylizationAll
	}
	if !model.IsEditFunction(fn) {
		return nil, fmt.Errorf("不支持的编辑功能: %s", fn)
	}

	body := imageEditBody{Model: c.ResolveModel(model.KindImageEdit, req.Model)}
	body.Input.Function = fn
	body.Input.Prompt = req.Prompt
	body.Input.BaseImageURL = req.ImageURL
	body.Input.MaskImageURL = req.MaskURL
	body.Parameters.N = req.N
	if body.Parameters.N <= 0 {
		body.Parameters.N = 1
	}
	switch fn {
	case model.EditExpand:
		body.Parameters.TopScale = orDefault(req.TopScale, 1.5)
		body.Parameters.BottomScale = orDefault(req.BottomScale, 1.5)
		body.Parameters.LeftScale = orDefault(req.LeftScale, 1.5)
		body.Parameters.RightScale = orDefault(req.RightScale, 1.5)
	case model.EditSuperResolution:
		body.Parameters.UpscaleFactor = orDefault(req.UpscaleFactor, 2)
	}

	return c.submit(ctx, key, imageEditPath, body)
}

func (c *Client) submit(ctx context.Context, key, path string, body any) (*SubmitResponse, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(key).
		SetHeader("X-DashScope-Async", "enable").
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("请求DashScope失败: %w", err)
	}

	data := resp.Bytes()
	if !resp.IsSuccess() {
		return nil, parseAPIError(resp.StatusCode(), data)
	}

	var out SubmitResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("解析DashScope响应失败: %w", err)
	}
	if out.Output.TaskID == "" {
		return nil, fmt.Errorf("DashScope响应缺少任务ID")
	}
	out.Raw = append(json.RawMessage(nil), data...)
	return &out, nil
}

// GetTask 查询任务状态，apiKey 为空时使用配置中的密钥
func (c *Client) GetTask(ctx context.Context, taskID, apiKey string) (*TaskStatusResponse, error) {
	key, err := c.key(apiKey)
	if err != nil {
		return nil, err
	}
	if taskID == "" {
		return nil, fmt.Errorf("任务ID不能为空")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(key).
		SetPathParam("taskId", taskID).
		Get(taskPath)
	if err != nil {
		return nil, fmt.Errorf("查询任务状态失败: %w", err)
	}

	data := resp.Bytes()
	if !resp.IsSuccess() {
		return nil, parseAPIError(resp.StatusCode(), data)
	}

	return ParseTaskStatusResponse(data)
}

// GetTaskStatus 查询任务状态并转换为同步使用的快照
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*model.RemoteStatus, error) {
	resp, err := c.GetTask(ctx, taskID, "")
	if err != nil {
		return nil, err
	}
	return resp.ToRemoteStatus(), nil
}

func parseAPIError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
