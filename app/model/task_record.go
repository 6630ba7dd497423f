package model

import (
	"encoding/json"
	"time"
)

// TaskStatus 供应商任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusCanceled  TaskStatus = "CANCELED"
	TaskStatusUnknown   TaskStatus = "UNKNOWN"
)

// UnknownPrompt 无法从供应商结果推断提示词时使用的占位
const UnknownPrompt = "未知提示词"

// 任务类型
const (
	KindText2Image = "text2image"
	KindImageEdit  = "image_edit"
)

// ParseTaskStatus 将供应商返回的状态字符串转换为 TaskStatus，空字符串原样返回
func ParseTaskStatus(s string) TaskStatus {
	switch TaskStatus(s) {
	case "":
		return ""
	case TaskStatusPending, TaskStatusRunning, TaskStatusSucceeded,
		TaskStatusFailed, TaskStatusCanceled, TaskStatusUnknown:
		return TaskStatus(s)
	default:
		return TaskStatusUnknown
	}
}

// IsTerminal 是否为终态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusCanceled
}

// ArtifactRef 任务生成的单张图片
type ArtifactRef struct {
	URL          string `json:"url"`
	LocalPath    string `json:"localPath,omitempty"`
	OrigPrompt   string `json:"orig_prompt"`
	ActualPrompt string `json:"actual_prompt"`
}

// Identity 去重使用的身份，供应商可能为同一结果重新签发 URL
func (a ArtifactRef) Identity() ArtifactIdentity {
	return ArtifactIdentity{OrigPrompt: a.OrigPrompt, ActualPrompt: a.ActualPrompt}
}

// Downloaded 是否记录了本地路径（不代表文件仍然存在）
func (a ArtifactRef) Downloaded() bool {
	return a.LocalPath != ""
}

// ArtifactIdentity 图片身份
type ArtifactIdentity struct {
	OrigPrompt   string
	ActualPrompt string
}

// TaskRecord 本地任务记录，对应任务目录下的 task-info.json
type TaskRecord struct {
	TaskID     string          `json:"taskId"`
	Prompt     string          `json:"prompt"`
	Kind       string          `json:"kind,omitempty"`
	Model      string          `json:"model,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	Status     TaskStatus      `json:"status"`
	SubmitTime *string         `json:"submitTime"`
	EndTime    *string         `json:"endTime"`
	Images     []ArtifactRef   `json:"images"`
	TaskStatus json.RawMessage `json:"taskStatus,omitempty"`
}

// RemoteTaskStatus 读取原始供应商数据中的 task_status 字段
func (r *TaskRecord) RemoteTaskStatus() string {
	if r == nil || len(r.TaskStatus) == 0 {
		return ""
	}
	var probe struct {
		TaskStatus string `json:"task_status"`
	}
	if err := json.Unmarshal(r.TaskStatus, &probe); err != nil {
		return ""
	}
	return probe.TaskStatus
}

// HasPrompt 是否已记录真实提示词
func (r *TaskRecord) HasPrompt() bool {
	return r.Prompt != "" && r.Prompt != UnknownPrompt
}

// PendingImages 返回尚未下载到本地的图片数量
func (r *TaskRecord) PendingImages() int {
	n := 0
	for _, img := range r.Images {
		if !img.Downloaded() {
			n++
		}
	}
	return n
}

// Clone 深拷贝记录，合并时不修改已持久化的旧记录
func (r *TaskRecord) Clone() *TaskRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.SubmitTime = cloneString(r.SubmitTime)
	c.EndTime = cloneString(r.EndTime)
	if r.Images != nil {
		c.Images = append([]ArtifactRef(nil), r.Images...)
	}
	if r.TaskStatus != nil {
		c.TaskStatus = append(json.RawMessage(nil), r.TaskStatus...)
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// RemoteResult 供应商返回的单个结果
type RemoteResult struct {
	URL          string
	OrigPrompt   string
	ActualPrompt string
}

// Identity 结果身份
func (r RemoteResult) Identity() ArtifactIdentity {
	return ArtifactIdentity{OrigPrompt: r.OrigPrompt, ActualPrompt: r.ActualPrompt}
}

// RemoteStatus 经过校验的供应商任务状态快照
type RemoteStatus struct {
	TaskID     string
	Status     TaskStatus
	SubmitTime *string
	EndTime    *string
	Results    []RemoteResult
	Raw        json.RawMessage // 供应商原始 output，仅用于审计
}
