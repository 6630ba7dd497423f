package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"wanx-studio/app/logger"
)

// Fetcher 网络下载能力，transport 失败返回 error，HTTP 状态码由调用方判断
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, int, error)
}

// ArtifactStore 将远程图片下载到任务目录，同一位置只下载一次
type ArtifactStore struct {
	root    string
	fetcher Fetcher
	logger  *logger.Logger
}

// NewArtifactStore 创建图片存储
func NewArtifactStore(root string, fetcher Fetcher, log *logger.Logger) *ArtifactStore {
	return &ArtifactStore{
		root:    root,
		fetcher: fetcher,
		logger:  log,
	}
}

// PathFor 返回任务第 index 张图片的本地路径
func (s *ArtifactStore) PathFor(taskID string, index int) string {
	return filepath.Join(taskDir(s.root, taskID), ImageFileName(index))
}

// Exists 检查本地文件是否仍然存在，空文件视为不存在
func (s *ArtifactStore) Exists(localPath string) bool {
	if localPath == "" {
		return false
	}
	info, err := os.Stat(localPath)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Fetch 下载图片并返回本地路径。
// 目标文件已存在时直接返回，不访问网络：同一 URL 生成的图片视为不可变。
func (s *ArtifactStore) Fetch(ctx context.Context, remoteURL, taskID string, index int) (string, error) {
	if err := validateTaskID(taskID); err != nil {
		return "", err
	}
	if index < 0 {
		return "", fmt.Errorf("无效的图片序号: %d", index)
	}

	dir := taskDir(s.root, taskID)
	localPath := s.PathFor(taskID, index)

	if s.Exists(localPath) {
		s.logger.Debugf("图片已存在，跳过下载: %s", localPath)
		return localPath, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建任务目录失败: %w", err)
	}

	body, status, err := s.fetcher.Fetch(ctx, remoteURL)
	if err != nil {
		return "", &DownloadError{URL: remoteURL, StatusCode: status, Err: err}
	}
	if status < 200 || status > 299 {
		return "", &DownloadError{URL: remoteURL, StatusCode: status}
	}
	if len(body) == 0 {
		return "", &DownloadError{URL: remoteURL, Err: ErrEmptyBody}
	}

	if err := atomicWriteFile(localPath, body, 0644); err != nil {
		return "", fmt.Errorf("保存图片失败: %w", err)
	}

	s.logger.Infof("图片已下载到: %s (%d bytes)", localPath, len(body))
	return localPath, nil
}
