package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"wanx-studio/app/logger"
	"wanx-studio/app/model"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const taskListCacheKey = "task-list"

// DefaultPageSize 任务列表未指定或指定了无效 limit 时的每页数量
const DefaultPageSize = 50

// TaskRepository 任务记录持久化，由 storage.TaskDirectory 实现
type TaskRepository interface {
	Load(taskID string) *model.TaskRecord
	Save(taskID string, rec *model.TaskRecord) error
	ScanAll() []*model.TaskRecord
}

// ReconcileResult 一次同步的结果
type ReconcileResult struct {
	Record  *model.TaskRecord // 计算出的新记录，保存失败时同样返回
	Changed bool
	Saved   bool
}

// Submission 提交任务时记录的元信息
type Submission struct {
	TaskID    string
	Prompt    string
	Kind      string
	Model     string
	RequestID string
	Status    model.TaskStatus
	Raw       json.RawMessage
}

// TaskSyncService 将供应商的任务状态同步到本地任务目录
type TaskSyncService struct {
	repo      TaskRepository
	merger    *Merger
	locks     *keyedMutex
	logger    *logger.Logger
	listCache *cache.Cache
	tracer    trace.Tracer
	now       func() time.Time
}

// NewTaskSyncService 创建任务同步服务
func NewTaskSyncService(repo TaskRepository, merger *Merger, log *logger.Logger, listCacheTTL time.Duration) *TaskSyncService {
	if listCacheTTL <= 0 {
		listCacheTTL = 30 * time.Second
	}
	return &TaskSyncService{
		repo:      repo,
		merger:    merger,
		locks:     newKeyedMutex(),
		logger:    log,
		listCache: cache.New(listCacheTTL, 10*time.Minute),
		tracer:    otel.Tracer("wanx-studio/service"),
		now:       time.Now,
	}
}

// Reconcile 合并供应商状态并在有变化时保存。
// 同一任务的 load→merge→save 串行执行；任何失败只记录日志。
func (s *TaskSyncService) Reconcile(ctx context.Context, taskID string, remote *model.RemoteStatus) (result ReconcileResult) {
	ctx, span := s.tracer.Start(ctx, "tasksync.reconcile", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("同步任务 %s 时发生panic: %v", taskID, r)
			span.SetStatus(codes.Error, "panic")
		}
	}()

	if remote == nil {
		s.logger.Warnf("任务 %s 缺少供应商状态，跳过同步", taskID)
		return result
	}
	if taskID == "" {
		taskID = remote.TaskID
	}

	unlock := s.locks.Lock(taskID)
	defer unlock()

	existing := s.repo.Load(taskID)
	if existing == nil {
		s.logger.Infof("创建新任务信息: %s", taskID)
	}

	next, changed := s.merger.ComputeNext(ctx, taskID, existing, remote)
	result.Record = next
	result.Changed = changed

	span.SetAttributes(
		attribute.String("task.status", string(next.Status)),
		attribute.Int("task.images", len(next.Images)),
		attribute.Bool("task.changed", changed),
	)

	if !changed {
		s.logger.Debugf("任务 %s 信息无变化，跳过文件更新", taskID)
		return result
	}

	if err := s.repo.Save(taskID, next); err != nil {
		// 内存中的结果仍然返回，持久化状态过期后下次同步会再次写入
		s.logger.Errorf("%v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return result
	}

	result.Saved = true
	span.SetAttributes(attribute.Bool("task.saved", true))
	s.InvalidateList()
	s.logger.Infof("任务 %s 数据已更新: 状态=%s, 图片=%d", taskID, next.Status, len(next.Images))
	return result
}

// RecordSubmission 首次提交时保存任务信息，记录已存在时不覆盖
func (s *TaskSyncService) RecordSubmission(ctx context.Context, sub Submission) (*model.TaskRecord, bool) {
	_, span := s.tracer.Start(ctx, "tasksync.record_submission", trace.WithAttributes(attribute.String("task.id", sub.TaskID)))
	defer span.End()

	unlock := s.locks.Lock(sub.TaskID)
	defer unlock()

	if existing := s.repo.Load(sub.TaskID); existing != nil {
		s.logger.Infof("任务信息已存在，跳过保存: %s", sub.TaskID)
		return existing, false
	}

	status := model.ParseTaskStatus(string(sub.Status))
	if status == "" {
		status = model.TaskStatusPending
	}
	prompt := sub.Prompt
	if prompt == "" {
		prompt = model.UnknownPrompt
	}

	rec := &model.TaskRecord{
		TaskID:    sub.TaskID,
		Prompt:    prompt,
		Kind:      sub.Kind,
		Model:     sub.Model,
		RequestID: sub.RequestID,
		CreatedAt: s.now(),
		Status:    status,
		Images:    []model.ArtifactRef{},
	}
	if len(sub.Raw) > 0 {
		rec.TaskStatus = append(json.RawMessage(nil), sub.Raw...)
	}

	if err := s.repo.Save(sub.TaskID, rec); err != nil {
		// 提交本身已经成功，保存失败不影响调用方
		s.logger.Errorf("保存任务信息失败: %v", err)
		span.RecordError(err)
		return rec, false
	}

	s.InvalidateList()
	s.logger.Infof("任务信息已保存: %s", sub.TaskID)
	return rec, true
}

// Load 读取单个任务记录
func (s *TaskSyncService) Load(taskID string) *model.TaskRecord {
	return s.repo.Load(taskID)
}

// ScanAll 读取全部任务记录
func (s *TaskSyncService) ScanAll() []*model.TaskRecord {
	return s.repo.ScanAll()
}

// ListTasks 按创建时间倒序分页返回任务，page 从 1 开始
func (s *TaskSyncService) ListTasks(page, limit int) ([]*model.TaskRecord, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}

	all := s.sortedTasks()
	total := len(all)

	start := (page - 1) * limit
	if start >= total {
		return []*model.TaskRecord{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total
}

func (s *TaskSyncService) sortedTasks() []*model.TaskRecord {
	if cached, ok := s.listCache.Get(taskListCacheKey); ok {
		return cached.([]*model.TaskRecord)
	}

	all := s.repo.ScanAll()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	s.listCache.Set(taskListCacheKey, all, cache.DefaultExpiration)
	return all
}

// InvalidateList 清除任务列表缓存
func (s *TaskSyncService) InvalidateList() {
	s.listCache.Delete(taskListCacheKey)
}
