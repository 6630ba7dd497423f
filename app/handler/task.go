package handler

import (
	"net/http"
	"strconv"
	"time"

	"wanx-studio/app/model"
	"wanx-studio/app/service"

	"github.com/gin-gonic/gin"
)

// TaskHandler 本地任务记录处理器
type TaskHandler struct {
	tasks *service.TaskSyncService
}

// NewTaskHandler 创建任务记录处理器
func NewTaskHandler(tasks *service.TaskSyncService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// taskSummary 列表中的单个任务
type taskSummary struct {
	*model.TaskRecord
	DaysAgo int `json:"daysAgo"`
}

// ListTasks 获取任务列表，按创建时间倒序
func (h *TaskHandler) ListTasks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = service.DefaultPageSize
	}
	records, total := h.tasks.ListTasks(page, limit)

	now := time.Now()
	items := make([]taskSummary, 0, len(records))
	for _, rec := range records {
		items = append(items, taskSummary{
			TaskRecord: rec,
			DaysAgo:    int(now.Sub(rec.CreatedAt).Hours() / 24),
		})
	}

	success(c, gin.H{
		"items": items,
		"total": total,
		"page":  page,
		"limit": limit,
	}, "获取成功")
}

// GetTask 获取单个任务记录
func (h *TaskHandler) GetTask(c *gin.Context) {
	rec := h.tasks.Load(c.Param("id"))
	if rec == nil {
		fail(c, http.StatusNotFound, CodeNotFound, "任务不存在")
		return
	}
	success(c, rec, "获取成功")
}
