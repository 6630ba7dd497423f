package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wanx-studio/app/logger"
	"wanx-studio/app/model"
)

// ArtifactFetcher 图片下载和本地文件校验能力，由 storage.ArtifactStore 实现
type ArtifactFetcher interface {
	Fetch(ctx context.Context, remoteURL, taskID string, index int) (string, error)
	Exists(localPath string) bool
}

// Merger 根据已持久化的记录和最新的供应商状态计算新的任务记录
type Merger struct {
	artifacts ArtifactFetcher
	logger    *logger.Logger
	now       func() time.Time
}

// NewMerger 创建合并器
func NewMerger(artifacts ArtifactFetcher, log *logger.Logger) *Merger {
	return &Merger{
		artifacts: artifacts,
		logger:    log,
		now:       time.Now,
	}
}

// ComputeNext 计算新记录并返回是否有可观察的变化。
// existing 不会被修改；图片下载失败只记录日志，不向外返回。
func (m *Merger) ComputeNext(ctx context.Context, taskID string, existing *model.TaskRecord, remote *model.RemoteStatus) (*model.TaskRecord, bool) {
	if taskID == "" {
		taskID = remote.TaskID
	}

	var next *model.TaskRecord
	if existing == nil {
		next = &model.TaskRecord{
			TaskID:    taskID,
			Prompt:    model.UnknownPrompt,
			CreatedAt: m.now(),
			Images:    []model.ArtifactRef{},
		}
	} else {
		next = existing.Clone()
		if next.TaskID == "" {
			next.TaskID = taskID
		}
		if next.CreatedAt.IsZero() {
			next.CreatedAt = m.now()
		}
		if next.Images == nil {
			next.Images = []model.ArtifactRef{}
		}
	}

	if !next.HasPrompt() && len(remote.Results) > 0 && remote.Results[0].OrigPrompt != "" {
		next.Prompt = remote.Results[0].OrigPrompt
	}

	// 状态原样覆盖，包括 SUCCEEDED -> RUNNING 这样的回退
	switch {
	case remote.Status != "":
		next.Status = remote.Status
	case next.Status == "":
		next.Status = model.TaskStatusUnknown
	}

	// 供应商未返回时保留已知的时间
	if remote.SubmitTime != nil {
		v := *remote.SubmitTime
		next.SubmitTime = &v
	}
	if remote.EndTime != nil {
		v := *remote.EndTime
		next.EndTime = &v
	}

	if remote.Status == model.TaskStatusSucceeded && len(remote.Results) > 0 {
		next.Images = m.mergeImages(ctx, next.TaskID, next.Images, remote.Results)
	}

	next.TaskStatus = nil
	if len(remote.Raw) > 0 {
		next.TaskStatus = append(json.RawMessage(nil), remote.Raw...)
	}

	if existing == nil {
		return next, true
	}

	reason := diffReason(existing, next)
	if reason != "" {
		m.logger.Debugf("任务 %s %s", next.TaskID, reason)
		return next, true
	}
	return next, false
}

// mergeImages 按身份合并图片。已有条目的位置固定，新身份追加在末尾，
// 位置同时决定本地文件名。
func (m *Merger) mergeImages(ctx context.Context, taskID string, current []model.ArtifactRef, results []model.RemoteResult) []model.ArtifactRef {
	images := make([]model.ArtifactRef, 0, len(current)+len(results))
	positions := make(map[model.ArtifactIdentity]int, len(current)+len(results))
	for _, img := range current {
		if _, dup := positions[img.Identity()]; dup {
			continue
		}
		positions[img.Identity()] = len(images)
		images = append(images, img)
	}

	for _, r := range results {
		id := r.Identity()
		pos, found := positions[id]
		if found && m.artifacts.Exists(images[pos].LocalPath) {
			m.logger.Debugf("图片已存在，跳过下载: %s", images[pos].LocalPath)
			continue
		}
		if !found {
			pos = len(images)
			positions[id] = pos
			images = append(images, model.ArtifactRef{})
		}

		entry := model.ArtifactRef{
			URL:          r.URL,
			OrigPrompt:   r.OrigPrompt,
			ActualPrompt: r.ActualPrompt,
		}
		localPath, err := m.artifacts.Fetch(ctx, r.URL, taskID, pos)
		if err != nil {
			// 保留 URL，下次同步时只重试这一张
			m.logger.Warnf("下载图片 %d 失败: 任务=%s, 错误=%v", pos+1, taskID, err)
		} else {
			entry.LocalPath = localPath
		}
		images[pos] = entry
	}

	return images
}

// diffReason 返回两条记录之间第一个可观察的差异，无差异时返回空字符串。
// 原始供应商数据只比较 task_status 字段。
func diffReason(old, next *model.TaskRecord) string {
	if old.Status != next.Status {
		return fmt.Sprintf("状态变化: %s -> %s", old.Status, next.Status)
	}
	if !equalOptional(old.SubmitTime, next.SubmitTime) {
		return fmt.Sprintf("提交时间变化: %s -> %s", display(old.SubmitTime), display(next.SubmitTime))
	}
	if !equalOptional(old.EndTime, next.EndTime) {
		return fmt.Sprintf("结束时间变化: %s -> %s", display(old.EndTime), display(next.EndTime))
	}
	if len(old.Images) != len(next.Images) {
		return fmt.Sprintf("图片数量变化: %d -> %d", len(old.Images), len(next.Images))
	}
	for i := range old.Images {
		if old.Images[i] != next.Images[i] {
			return fmt.Sprintf("图片 %d 内容变化", i+1)
		}
	}
	if a, b := old.RemoteTaskStatus(), next.RemoteTaskStatus(); a != b {
		return fmt.Sprintf("任务状态详情变化: %s -> %s", a, b)
	}
	return ""
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func display(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
