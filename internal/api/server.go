package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"contractaudit/internal/config"
	"contractaudit/internal/errors"
	"contractaudit/internal/history"
	"contractaudit/internal/registry"
	"contractaudit/internal/validation"
	"contractaudit/internal/verifier"
	"contractaudit/pkg/models"
)

// 上传的注册表最大字节数
const maxRegistryUpload = 8 << 20

// Runner 执行一次对账
type Runner interface {
	Run(ctx context.Context) (*verifier.Result, error)
}

// Server API服务器
type Server struct {
	config     *config.Config
	runner     Runner
	history    *history.Store
	logger     *logrus.Logger
	logManager *LogManager
	metrics    *Metrics
	registry   *prometheus.Registry
	server     *http.Server
	startedAt  time.Time

	mu         sync.RWMutex
	isRunning  bool
	lastReport *models.DiscrepancyReport
}

// NewServer 创建API服务器，store可以为nil
func NewServer(cfg *config.Config, runner Runner, store *history.Store, logger *logrus.Logger) *Server {
	// 最多保存1000条日志
	logManager := NewLogManager(1000)
	logger.AddHook(NewLogHook(logManager))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	// 跳过的提案消息等非致命错误计入指标
	if h, ok := runner.(errorHandlerProvider); ok {
		h.ErrorHandler().AddCallback(metrics.ObserveError)
	}

	return &Server{
		config:     cfg,
		runner:     runner,
		history:    store,
		logger:     logger,
		logManager: logManager,
		metrics:    metrics,
		registry:   reg,
		startedAt:  time.Now(),
	}
}

type errorHandlerProvider interface {
	ErrorHandler() *errors.ErrorHandler
}

// Handler 构建路由
func (s *Server) Handler() http.Handler {
	gin.SetMode(s.ginMode())
	router := gin.New()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
	router.Use(gin.Recovery())

	s.setupRoutes(router)
	return router
}

func (s *Server) ginMode() string {
	if s.config.API != nil && s.config.API.Mode != "" {
		return s.config.API.Mode
	}
	return gin.ReleaseMode
}

// Start 启动API服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	port := 8080
	if s.config.API != nil && s.config.API.Port > 0 {
		port = s.config.API.Port
	}

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Infof("API服务器启动在端口 %d", port)
	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止API服务器
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("正在关闭API服务器")
	return srv.Shutdown(ctx)
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.POST("/verify", s.verify)
		api.GET("/reports/latest", s.latestReport)
		api.POST("/validate", s.validate)

		api.GET("/history", s.getHistory)
		api.GET("/config", s.getConfig)

		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	s.mu.RLock()
	running := s.isRunning
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "contractaudit-api",
		"running":   running,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// verify 同步执行一次对账，同一时间只允许一个运行
func (s *Server) verify(c *gin.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "对账任务正在运行"})
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	start := time.Now()
	res, err := s.runner.Run(c.Request.Context())
	elapsed := time.Since(start).Seconds()

	if err != nil {
		var ve *verifier.ValidationError
		if stderrors.As(err, &ve) {
			s.metrics.ObserveFailure(ResultInvalid, elapsed)
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":      err.Error(),
				"validation": ve.Result,
			})
			return
		}

		s.metrics.ObserveFailure(ResultError, elapsed)
		status := http.StatusInternalServerError
		var ae *errors.AuditError
		if stderrors.As(err, &ae) && ae.Type == errors.ErrorTypeTransport {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error":  err.Error(),
			"run_id": runID(res),
		})
		return
	}

	s.metrics.ObserveReport(res.Report, elapsed)
	s.mu.Lock()
	s.lastReport = res.Report
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"run_id": res.RunID,
		"clean":  res.Report.Clean(),
		"total":  res.Report.Total(),
		"report": res.Report,
	})
}

func runID(res *verifier.Result) string {
	if res == nil {
		return ""
	}
	return res.RunID
}

// latestReport 最近一次成功运行的报告
func (s *Server) latestReport(c *gin.Context) {
	s.mu.RLock()
	report := s.lastReport
	s.mu.RUnlock()

	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "尚无对账报告"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// validate 校验请求体中的注册表，请求体为空时校验配置的注册表文件
func (s *Server) validate(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRegistryUpload))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ds *registry.Dataset
	if len(body) == 0 {
		ds, err = registry.LoadFile(s.config.Registry.Path)
	} else {
		ds, err = registry.Parse(body)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validator := validation.NewValidator(s.logger, s.config.Registry.Strict)
	result := validator.ValidateDataset(ds.Raw, ds.Records)

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

// getHistory 运行历史
func (s *Server) getHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未启用运行历史"})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.history.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats, err := s.history.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"stats": stats,
	})
}

// getConfig 获取配置
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config": configView(s.config),
	})
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	filter := LogFilter{
		Level:     c.Query("level"),
		RunID:     c.Query("run_id"),
		Component: c.Query("component"),
	}

	page := 1
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 20
	if ps, err := strconv.Atoi(c.Query("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}

	logs, total := s.logManager.GetLogsWithPagination(filter, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()

	c.JSON(http.StatusOK, gin.H{
		"message": "日志已清空",
	})
}
