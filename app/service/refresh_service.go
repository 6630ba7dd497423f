package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wanx-studio/app/logger"
	"wanx-studio/app/model"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RefreshTimeout 单次刷新的超时时间
const RefreshTimeout = 2 * time.Minute

// StatusSource 供应商任务状态查询，由 dashscope.Client 实现
type StatusSource interface {
	GetTaskStatus(ctx context.Context, taskID string) (*model.RemoteStatus, error)
}

// RefreshService 定时刷新未完成的任务，以及下载失败待重试的图片
type RefreshService struct {
	tasks  *TaskSyncService
	source StatusSource
	logger *logger.Logger
	spec   string

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewRefreshService 创建任务刷新服务，spec 为 cron 表达式，如 "@every 30s"
func NewRefreshService(syncService *TaskSyncService, source StatusSource, spec string, log *logger.Logger) *RefreshService {
	return &RefreshService{
		tasks:  syncService,
		source: source,
		logger: log,
		spec:   spec,
	}
}

// Start 启动任务刷新服务
func (s *RefreshService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("任务刷新服务已经在运行")
	}

	cl := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))
	if _, err := c.AddFunc(s.spec, s.tick); err != nil {
		return fmt.Errorf("无效的刷新计划 %q: %w", s.spec, err)
	}

	c.Start()
	s.cron = c
	s.running = true
	s.logger.Infof("任务刷新服务已启动，计划: %s", s.spec)
	return nil
}

// Stop 停止任务刷新服务，等待正在执行的刷新结束
func (s *RefreshService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("任务刷新服务已停止")
}

func (s *RefreshService) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), RefreshTimeout)
	defer cancel()
	s.RefreshOnce(ctx)
}

// RefreshOnce 刷新一轮，返回实际查询的任务数量
func (s *RefreshService) RefreshOnce(ctx context.Context) int {
	records := s.tasks.ScanAll()

	refreshed := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			s.logger.Warnf("刷新被中断: %v", ctx.Err())
			break
		}
		if !needsRefresh(rec) {
			continue
		}

		remote, err := s.source.GetTaskStatus(ctx, rec.TaskID)
		if err != nil {
			s.logger.WithTask(rec.TaskID).Warn("查询任务状态失败", zap.Error(err))
			continue
		}

		res := s.tasks.Reconcile(ctx, rec.TaskID, remote)
		refreshed++
		if res.Saved {
			s.logger.Debugf("任务 %s 已刷新: %s", rec.TaskID, res.Record.Status)
		}
	}

	if refreshed > 0 {
		s.logger.Infof("本次刷新了 %d 个任务", refreshed)
	}
	return refreshed
}

// needsRefresh 未到终态的任务，或成功但仍有图片未下载的任务需要刷新
func needsRefresh(rec *model.TaskRecord) bool {
	if !rec.Status.IsTerminal() {
		return true
	}
	return rec.Status == model.TaskStatusSucceeded && rec.PendingImages() > 0
}

// cronLogger 将 cron 的日志输出到 zap
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
