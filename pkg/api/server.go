package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"pcba_station/pkg/command"
	"pcba_station/pkg/logger"
	"pcba_station/pkg/metrics"
	"pcba_station/pkg/stage"

	"github.com/gin-gonic/gin"
)

// Server 测试站HTTP接口
type Server struct {
	router         *gin.Engine
	commandService *CommandService
	history        *History
	logger         logger.Logger
	started        time.Time
}

// NewServer 创建服务端
func NewServer(commands *CommandService, history *History, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	server := &Server{
		router:         router,
		commandService: commands,
		history:        history,
		logger:         log,
		started:        time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		// 命令API，只写共享文件
		api.POST("/command", s.submitCommand)
		api.POST("/start-test", s.startTest)
		api.POST("/search", s.search)
		api.GET("/submissions", s.listSubmissions)
		api.GET("/submission/:id", s.getSubmission)
		api.POST("/cleanup", s.cleanupSubmissions)

		// 结果API
		api.GET("/results", s.listResults)
		api.GET("/stages", s.listStages)

		// 系统API
		api.GET("/health", s.healthCheck)
	}

	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// requestLogger 用项目日志记录请求
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// submitCommand 写入一行原始命令
func (s *Server) submitCommand(c *gin.Context) {
	var request struct {
		Line string `json:"line" binding:"required"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	s.submit(c, request.Line)
}

// startTest 写入 TEST <serial>
func (s *Server) startTest(c *gin.Context) {
	var request struct {
		Serial string `json:"serial" binding:"required"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	// 序号中的空白会被解析截断
	if strings.IndexFunc(request.Serial, unicode.IsSpace) >= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "serial must not contain whitespace",
		})
		return
	}

	s.submit(c, "TEST "+request.Serial)
}

// search 写入 SEARCH
func (s *Server) search(c *gin.Context) {
	s.submit(c, "SEARCH")
}

func (s *Server) submit(c *gin.Context, line string) {
	submission, err := s.commandService.Submit(line)
	if err != nil {
		var parseErr *command.ParseError
		switch {
		case errors.Is(err, command.ErrEmptyLine), errors.As(err, &parseErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid command",
				"details": err.Error(),
			})
		case errors.Is(err, ErrCommandPending):
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
			})
		default:
			s.logger.Error("提交命令失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to submit command",
				"details": err.Error(),
			})
		}
		return
	}

	s.logger.Info("已提交命令: %s (%s)", submission.Line, submission.ID)
	c.JSON(http.StatusAccepted, gin.H{
		"success":       true,
		"submission_id": submission.ID,
		"line":          submission.Line,
		"message":       "Command written to shared file",
	})
}

// listSubmissions 列出所有提交
func (s *Server) listSubmissions(c *gin.Context) {
	submissions := s.commandService.ListSubmissions()
	c.JSON(http.StatusOK, gin.H{
		"submissions": submissions,
		"total":       len(submissions),
	})
}

// getSubmission 获取单个提交状态
func (s *Server) getSubmission(c *gin.Context) {
	submission, exists := s.commandService.GetSubmission(c.Param("id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Submission not found",
		})
		return
	}
	c.JSON(http.StatusOK, submission)
}

// cleanupSubmissions 清理旧提交
func (s *Server) cleanupSubmissions(c *gin.Context) {
	var request struct {
		MaxAgeMinutes int `json:"max_age_minutes"`
	}

	if err := c.ShouldBindJSON(&request); err != nil || request.MaxAgeMinutes <= 0 {
		request.MaxAgeMinutes = 60 // 默认清理1小时前的记录
	}

	cleaned := s.commandService.CleanupSubmissions(time.Duration(request.MaxAgeMinutes) * time.Minute)

	c.JSON(http.StatusOK, gin.H{
		"message": "Cleanup completed",
		"cleaned": cleaned,
		"max_age": request.MaxAgeMinutes,
	})
}

// listResults 最近的阶段事件
func (s *Server) listResults(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	results := s.history.Recent(c.Query("serial"), limit)
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
	})
}

// listStages 内置阶段说明
func (s *Server) listStages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stages": stage.GetStageInfo(),
	})
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	stats := s.commandService.GetStats()
	stats["status"] = "healthy"
	stats["results_recorded"] = s.history.Len()
	stats["uptime_seconds"] = int64(time.Since(s.started).Seconds())

	c.JSON(http.StatusOK, stats)
}

// Handler 返回底层 http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器，ctx 取消时优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Station API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
