package dashscope

import (
	"encoding/json"
	"fmt"

	"wanx-studio/app/model"
)

// Text2ImageRequest 文生图请求参数
type Text2ImageRequest struct {
	Prompt         string `json:"prompt" binding:"required"`
	NegativePrompt string `json:"negative_prompt"`
	Size           string `json:"size"`
	N              int    `json:"n"`
	Model          string `json:"model"`
	PromptExtend   bool   `json:"prompt_extend"`
	APIKey         string `json:"dashScopeApiKey"`
}

// ImageEditRequest 图像编辑请求参数
type ImageEditRequest struct {
	ImageURL      string  `json:"imageUrl" binding:"required"`
	Prompt        string  `json:"prompt" binding:"required,max=800"`
	Function      string  `json:"function"`
	MaskURL       string  `json:"maskUrl"`
	N             int     `json:"n"`
	TopScale      float64 `json:"topScale"`
	BottomScale   float64 `json:"bottomScale"`
	LeftScale     float64 `json:"leftScale"`
	RightScale    float64 `json:"rightScale"`
	UpscaleFactor float64 `json:"upscaleFactor"`
	Model         string  `json:"model"`
	APIKey        string  `json:"dashScopeApiKey"`
}

type text2ImageBody struct {
	Model string `json:"model"`
	Input struct {
		Prompt         string `json:"prompt"`
		NegativePrompt string `json:"negative_prompt,omitempty"`
	} `json:"input"`
	Parameters struct {
		Size         string `json:"size"`
		N            int    `json:"n"`
		PromptExtend bool   `json:"prompt_extend"`
	} `json:"parameters"`
}

type imageEditBody struct {
	Model string `json:"model"`
	Input struct {
		Function     string `json:"function"`
		Prompt       string `json:"prompt"`
		BaseImageURL string `json:"base_image_url"`
		MaskImageURL string `json:"mask_image_url,omitempty"`
	} `json:"input"`
	Parameters struct {
		N             int     `json:"n"`
		TopScale      float64 `json:"top_scale,omitempty"`
		BottomScale   float64 `json:"bottom_scale,omitempty"`
		LeftScale     float64 `json:"left_scale,omitempty"`
		RightScale    float64 `json:"right_scale,omitempty"`
		UpscaleFactor float64 `json:"upscale_factor,omitempty"`
	} `json:"parameters"`
}

// SubmitResponse 异步任务提交响应
type SubmitResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
	} `json:"output"`
	Raw json.RawMessage `json:"-"`
}

// TaskResult 单个生成结果，失败的结果只有 code 和 message
type TaskResult struct {
	URL          string `json:"url,omitempty"`
	OrigPrompt   string `json:"orig_prompt,omitempty"`
	ActualPrompt string `json:"actual_prompt,omitempty"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
}

// TaskMetrics 任务结果统计
type TaskMetrics struct {
	Total     int `json:"TOTAL"`
	Succeeded int `json:"SUCCEEDED"`
	Failed    int `json:"FAILED"`
}

// TaskOutput 任务状态详情
type TaskOutput struct {
	TaskID        string       `json:"task_id"`
	TaskStatus    string       `json:"task_status"`
	SubmitTime    string       `json:"submit_time,omitempty"`
	ScheduledTime string       `json:"scheduled_time,omitempty"`
	EndTime       string       `json:"end_time,omitempty"`
	Results       []TaskResult `json:"results,omitempty"`
	TaskMetrics   *TaskMetrics `json:"task_metrics,omitempty"`
	Code          string       `json:"code,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// TaskStatusResponse 任务查询响应
type TaskStatusResponse struct {
	RequestID string     `json:"request_id"`
	Output    TaskOutput `json:"output"`
	Usage     *struct {
		ImageCount int `json:"image_count"`
	} `json:"usage,omitempty"`

	Raw       json.RawMessage `json:"-"` // 完整响应
	RawOutput json.RawMessage `json:"-"` // 原始 output 对象
}

// ParseTaskStatusResponse 解析任务查询响应，同时保留原始数据
func ParseTaskStatusResponse(data []byte) (*TaskStatusResponse, error) {
	var out TaskStatusResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("解析任务状态失败: %w", err)
	}

	var envelope struct {
		Output json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("解析任务状态失败: %w", err)
	}

	out.Raw = append(json.RawMessage(nil), data...)
	out.RawOutput = envelope.Output
	return &out, nil
}

// ToRemoteStatus 转换为同步使用的快照。
// 没有 URL 的失败结果被忽略；不带提示词或提示词重复的结果用序号区分身份。
func (r *TaskStatusResponse) ToRemoteStatus() *model.RemoteStatus {
	out := r.Output
	rs := &model.RemoteStatus{
		TaskID:     out.TaskID,
		Status:     model.ParseTaskStatus(out.TaskStatus),
		SubmitTime: optional(out.SubmitTime),
		EndTime:    optional(out.EndTime),
		Raw:        r.RawOutput,
	}

	seen := make(map[model.ArtifactIdentity]bool, len(out.Results))
	for i, res := range out.Results {
		if res.URL == "" {
			continue
		}
		rr := model.RemoteResult{
			URL:          res.URL,
			OrigPrompt:   res.OrigPrompt,
			ActualPrompt: res.ActualPrompt,
		}
		// 同一批 n 张图在未扩写提示词时提示词完全相同
		if (rr.OrigPrompt == "" && rr.ActualPrompt == "") || seen[rr.Identity()] {
			if rr.ActualPrompt == "" {
				rr.ActualPrompt = fmt.Sprintf("result_%d", i+1)
			} else {
				rr.ActualPrompt = fmt.Sprintf("%s#%d", rr.ActualPrompt, i+1)
			}
		}
		for seen[rr.Identity()] {
			rr.ActualPrompt += "#"
		}
		seen[rr.Identity()] = true
		rs.Results = append(rs.Results, rr)
	}
	return rs
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
