package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"wanx-studio/app/logger"
	"wanx-studio/app/middleware"
	"wanx-studio/app/model"
	"wanx-studio/app/service"
	"wanx-studio/app/utils/dashscope"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// apiKeyHeader 调用方自带 DashScope 密钥时使用的请求头
const apiKeyHeader = "X-DashScope-Api-Key"

// Provider DashScope 接口，由 dashscope.Client 实现
type Provider interface {
	SubmitText2Image(ctx context.Context, req dashscope.Text2ImageRequest) (*dashscope.SubmitResponse, error)
	SubmitImageEdit(ctx context.Context, req dashscope.ImageEditRequest) (*dashscope.SubmitResponse, error)
	GetTask(ctx context.Context, taskID, apiKey string) (*dashscope.TaskStatusResponse, error)
	ResolveModel(kind, requested string) string
}

// GenerationHandler 文生图与图像编辑任务处理器
type GenerationHandler struct {
	provider    Provider
	tasks       *service.TaskSyncService
	statusCache *cache.Cache
	logger      *logger.Logger
}

// NewGenerationHandler 创建任务处理器，终态的供应商响应缓存 statusTTL
func NewGenerationHandler(provider Provider, tasks *service.TaskSyncService, statusTTL time.Duration, log *logger.Logger) *GenerationHandler {
	if statusTTL <= 0 {
		statusTTL = 10 * time.Minute
	}
	return &GenerationHandler{
		provider:    provider,
		tasks:       tasks,
		statusCache: cache.New(statusTTL, 2*statusTTL),
		logger:      log,
	}
}

// submitResult 提交任务的响应数据
type submitResult struct {
	TaskID     string            `json:"taskId"`
	TaskStatus string            `json:"taskStatus"`
	RequestID  string            `json:"requestId"`
	Record     *model.TaskRecord `json:"record"`
}

// statusResult 查询任务状态的响应数据
type statusResult struct {
	Status json.RawMessage   `json:"status"`
	Record *model.TaskRecord `json:"record"`
	Cached bool              `json:"cached"`
}

// CreateText2Image 提交文生图任务
func (h *GenerationHandler) CreateText2Image(c *gin.Context) {
	var req dashscope.Text2ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if req.APIKey == "" {
		req.APIKey = c.GetHeader(apiKeyHeader)
	}

	resp, err := h.provider.SubmitText2Image(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorf("提交文生图任务失败: %v", err)
		providerError(c, "创建任务失败", err)
		return
	}

	h.logger.Infof("文生图任务已提交: %s [%s]", resp.Output.TaskID, middleware.GetRequestID(c))
	rec := h.record(c, resp, req.Prompt, model.KindText2Image, h.provider.ResolveModel(model.KindText2Image, req.Model))
	success(c, submitResult{
		TaskID:     resp.Output.TaskID,
		TaskStatus: resp.Output.TaskStatus,
		RequestID:  resp.RequestID,
		Record:     rec,
	}, "任务已提交")
}

// CreateImageEdit 提交图像编辑任务
func (h *GenerationHandler) CreateImageEdit(c *gin.Context) {
	var req dashscope.ImageEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if req.Function == "" {
		req.Function = model.EditStylizationAll
	}
	if !model.IsEditFunction(req.Function) {
		fail(c, http.StatusBadRequest, CodeBadRequest, "不支持的编辑功能: "+req.Function)
		return
	}
	if req.APIKey == "" {
		req.APIKey = c.GetHeader(apiKeyHeader)
	}

	resp, err := h.provider.SubmitImageEdit(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorf("提交图像编辑任务失败: %v", err)
		providerError(c, "创建任务失败", err)
		return
	}

	h.logger.Infof("图像编辑任务已提交: %s [%s]", resp.Output.TaskID, middleware.GetRequestID(c))
	rec := h.record(c, resp, req.Prompt, model.KindImageEdit, h.provider.ResolveModel(model.KindImageEdit, req.Model))
	success(c, submitResult{
		TaskID:     resp.Output.TaskID,
		TaskStatus: resp.Output.TaskStatus,
		RequestID:  resp.RequestID,
		Record:     rec,
	}, "任务已提交")
}

func (h *GenerationHandler) record(c *gin.Context, resp *dashscope.SubmitResponse, prompt, kind, modelName string) *model.TaskRecord {
	var raw json.RawMessage
	var envelope struct {
		Output json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(resp.Raw, &envelope); err == nil {
		raw = envelope.Output
	}

	rec, _ := h.tasks.RecordSubmission(c.Request.Context(), service.Submission{
		TaskID:    resp.Output.TaskID,
		Prompt:    prompt,
		Kind:      kind,
		Model:     modelName,
		RequestID: resp.RequestID,
		Status:    model.TaskStatus(resp.Output.TaskStatus),
		Raw:       raw,
	})
	return rec
}

// TaskStatus 查询任务状态，返回供应商原始数据并同步本地任务目录
func (h *GenerationHandler) TaskStatus(c *gin.Context) {
	taskID := strings.TrimSpace(c.Param("id"))
	if taskID == "" {
		fail(c, http.StatusBadRequest, CodeBadRequest, "任务ID不能为空")
		return
	}

	if cached, ok := h.statusCache.Get(taskID); ok {
		success(c, statusResult{
			Status: cached.(json.RawMessage),
			Record: h.tasks.Load(taskID),
			Cached: true,
		}, "查询成功")
		return
	}

	apiKey := c.Query("dashScopeApiKey")
	if apiKey == "" {
		apiKey = c.GetHeader(apiKeyHeader)
	}

	resp, err := h.provider.GetTask(c.Request.Context(), taskID, apiKey)
	if err != nil {
		h.logger.Warnf("查询任务 %s 状态失败: %v", taskID, err)
		providerError(c, "查询任务状态失败", err)
		return
	}

	remote := resp.ToRemoteStatus()
	if remote.TaskID == "" {
		remote.TaskID = taskID
	}
	res := h.tasks.Reconcile(c.Request.Context(), taskID, remote)

	// 终态且图片已全部落盘后才缓存，否则下次查询还需要重试下载
	if remote.Status.IsTerminal() && res.Record != nil && res.Record.PendingImages() == 0 {
		h.statusCache.Set(taskID, resp.Raw, cache.DefaultExpiration)
	}

	record := res.Record
	if record == nil {
		record = h.tasks.Load(taskID)
	}
	success(c, statusResult{
		Status: resp.Raw,
		Record: record,
	}, "查询成功")
}
