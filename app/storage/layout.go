package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TaskInfoFile 任务目录下的任务信息文件名
const TaskInfoFile = "task-info.json"

// ImageFileName 第 index 张图片（从 0 开始）的文件名
func ImageFileName(index int) string {
	return fmt.Sprintf("image_%d.png", index+1)
}

// validateTaskID 任务ID直接作为目录名，不允许跳出根目录
func validateTaskID(taskID string) error {
	if strings.TrimSpace(taskID) == "" ||
		taskID == "." || taskID == ".." ||
		strings.ContainsAny(taskID, `/\`) ||
		strings.Contains(taskID, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, taskID)
	}
	return nil
}

func taskDir(root, taskID string) string {
	return filepath.Join(root, taskID)
}
