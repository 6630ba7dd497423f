package storage

import (
	"errors"
	"fmt"
)

// ErrInvalidTaskID 任务ID为空或包含路径分隔符
var ErrInvalidTaskID = errors.New("无效的任务ID")

// ErrEmptyBody 下载成功但响应体为空
var ErrEmptyBody = errors.New("响应体为空")

// DownloadError 单张图片下载失败
type DownloadError struct {
	URL        string
	StatusCode int // 传输层失败时为 0
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("下载图片失败: %s, 状态码: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("下载图片失败: %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// StorageReadError 任务记录不存在或无法解析
type StorageReadError struct {
	TaskID string
	Path   string
	Err    error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("读取任务信息失败 [%s] %s: %v", e.TaskID, e.Path, e.Err)
}

func (e *StorageReadError) Unwrap() error {
	return e.Err
}

// StorageWriteError 任务记录持久化失败
type StorageWriteError struct {
	TaskID string
	Path   string
	Err    error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("保存任务信息失败 [%s] %s: %v", e.TaskID, e.Path, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}
