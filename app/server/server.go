package server

import (
	"context"
	"net/http"

	"wanx-studio/app/config"
	"wanx-studio/app/filewatcher"
	"wanx-studio/app/handler"
	"wanx-studio/app/logger"
	"wanx-studio/app/middleware"
	"wanx-studio/app/service"
	"wanx-studio/app/storage"
	"wanx-studio/app/utils/dashscope"
	"wanx-studio/app/utils/downloader"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	provider       *dashscope.Client
	fetcher        *downloader.Client
	tasks          *service.TaskSyncService
	refreshService *service.RefreshService
	assetsWatcher  *filewatcher.AssetsWatcher
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(log))

	provider := dashscope.New(cfg.DashScope)
	fetcher := downloader.New(&downloader.DownloadConfig{
		UserAgent:    cfg.Download.UserAgent,
		Timeout:      cfg.Download.Timeout,
		MaxRedirects: 10,
	})
	tasks := NewTaskSyncService(cfg, fetcher, log)

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:   cfg,
		Logger:   log,
		provider: provider,
		fetcher:  fetcher,
		tasks:    tasks,
	}

	if cfg.Sync.RefreshEnabled {
		s.refreshService = service.NewRefreshService(tasks, provider, cfg.Sync.RefreshSpec, log)
	}

	if cfg.Sync.WatchAssets {
		w, err := filewatcher.NewAssetsWatcher(cfg.Assets.Root, tasks.InvalidateList, log)
		if err != nil {
			log.Warnf("任务目录监控不可用: %v", err)
		} else {
			s.assetsWatcher = w
		}
	}

	// 设置路由
	s.setupRoutes()

	return s
}

// NewTaskSyncService 按配置组装任务同步服务
func NewTaskSyncService(cfg *config.Config, fetcher storage.Fetcher, log *logger.Logger) *service.TaskSyncService {
	repo := storage.NewTaskDirectory(cfg.Assets.Root, log)
	artifacts := storage.NewArtifactStore(cfg.Assets.Root, fetcher, log)
	merger := service.NewMerger(artifacts, log)
	return service.NewTaskSyncService(repo, merger, log, cfg.Sync.ListCacheTTL)
}

// Handler 返回路由，用于测试
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	if s.refreshService != nil {
		if err := s.refreshService.Start(); err != nil {
			s.Logger.Errorf("启动任务刷新服务失败: %v", err)
		}
	}
	if s.assetsWatcher != nil {
		if err := s.assetsWatcher.Start(); err != nil {
			s.Logger.Errorf("启动任务目录监控失败: %v", err)
		}
	}

	return s.http.ListenAndServe()
}

// Shutdown 停止后台服务并关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	if s.refreshService != nil {
		s.refreshService.Stop()
	}
	if s.assetsWatcher != nil {
		if err := s.assetsWatcher.Stop(); err != nil {
			s.Logger.Errorf("停止任务目录监控失败: %v", err)
		}
	}

	err := s.http.Shutdown(ctx)

	if cerr := s.provider.Close(); cerr != nil {
		s.Logger.Warnf("关闭 DashScope 客户端失败: %v", cerr)
	}
	if cerr := s.fetcher.Close(); cerr != nil {
		s.Logger.Warnf("关闭下载客户端失败: %v", cerr)
	}
	return err
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	generationHandler := handler.NewGenerationHandler(s.provider, s.tasks, s.Config.Sync.StatusCacheTTL, s.Logger)
	taskHandler := handler.NewTaskHandler(s.tasks)
	modelsHandler := handler.NewModelsHandler()

	api := s.gin.Group("/api")

	// 文生图
	text2image := api.Group("/text2image")
	{
		text2image.POST("", generationHandler.CreateText2Image)
		text2image.GET("/tasks/:id/status", generationHandler.TaskStatus)
	}

	// 图像编辑
	imageEdit := api.Group("/image-edit")
	{
		imageEdit.POST("", generationHandler.CreateImageEdit)
		imageEdit.GET("/tasks/:id/status", generationHandler.TaskStatus)
	}

	// 本地任务记录
	tasks := api.Group("/tasks")
	{
		tasks.GET("", taskHandler.ListTasks)
		tasks.GET("/:id", taskHandler.GetTask)
	}

	// 模型目录
	models := api.Group("/models")
	{
		models.GET("/text2image", modelsHandler.Text2ImageModels)
		models.GET("/image-edit", modelsHandler.ImageEditModels)
		models.GET("/image-edit/:name", modelsHandler.ImageEditModel)
		models.GET("/image-edit/capability/:capability", modelsHandler.ImageEditModelsByCapability)
	}

	// 已下载的图片
	s.gin.Static("/assets", s.Config.Assets.Root)

	s.gin.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
