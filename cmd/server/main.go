// YouPai 排班优化引擎服务
// 主程序入口

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/internal/config"
	"github.com/youpai/youpai/internal/database"
	"github.com/youpai/youpai/internal/handler"
	"github.com/youpai/youpai/internal/metrics"
	"github.com/youpai/youpai/internal/repository"
	"github.com/youpai/youpai/pkg/audit"
	"github.com/youpai/youpai/pkg/bulk"
	"github.com/youpai/youpai/pkg/catalog"
	"github.com/youpai/youpai/pkg/feedback"
	"github.com/youpai/youpai/pkg/logger"
	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/session"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: "console",
	})

	fmt.Printf("YouPai 排班优化引擎 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	// 目标权重校验失败禁止启动
	goals, err := catalog.NewGoalCatalog(nil)
	if err != nil {
		logger.Error().Err(err).Msg("优化目标配置无效")
		os.Exit(1)
	}
	constraints, err := catalog.NewConstraintCatalog(catalog.DefaultConstraints())
	if err != nil {
		logger.Error().Err(err).Msg("约束目录配置无效")
		os.Exit(1)
	}

	// 数据库连接可选：连接失败时以内存模式继续运行
	var sink audit.Sink = &metricsSink{next: audit.NewLogSink()}
	var persist *persistSink
	var db *database.DB
	if conn, err := database.New(&cfg.Database); err != nil {
		logger.Warn().Err(err).Msg("数据库不可用，以内存模式运行")
	} else {
		db = conn
		defer db.Close()
		persist = newPersistSink(db, sink)
		sink = persist
	}

	tracker := feedback.NewTracker(sink)
	manager := session.NewManager(constraints, goals, tracker.Priors, sink)
	store := bulk.NewMemoryStore(&model.ScheduleSnapshot{})
	coordinator := bulk.NewCoordinator(store, sink)
	coordinator.BindGuard(manager)
	if persist != nil {
		persist.bind(manager, coordinator, tracker)
	}

	optimizeHandler := handler.NewOptimizeHandler(manager, &cfg.Optimizer)
	bulkHandler := handler.NewBulkHandler(manager, coordinator)
	feedbackHandler := handler.NewFeedbackHandler(tracker)
	catalogHandler := handler.NewCatalogHandler(constraints, goals)

	mux := http.NewServeMux()

	// ========================================
	// 系统端点
	// ========================================

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"degraded","service":"youpai","database":"down"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"youpai"}`))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"version":"%s","build_time":"%s","git_commit":"%s"}`, Version, BuildTime, GitCommit)
	})

	// ========================================
	// API v1 端点
	// ========================================

	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"message": "YouPai 排班优化引擎 API v1",
			"endpoints": {
				"optimize": {
					"start": "POST /api/v1/optimize/start",
					"status": "GET /api/v1/optimize/status?session_id=",
					"cancel": "POST /api/v1/optimize/cancel",
					"suggestions": "GET /api/v1/optimize/suggestions?session_id=",
					"gaps": "GET /api/v1/optimize/gaps?session_id="
				},
				"bulk": {
					"preview": "POST /api/v1/bulk/preview",
					"apply": "POST /api/v1/bulk/apply",
					"promote": "POST /api/v1/bulk/promote",
					"rollback": "POST /api/v1/bulk/rollback",
					"operation": "GET /api/v1/bulk/operation?operation_id="
				},
				"feedback": {
					"record": "POST /api/v1/feedback/record",
					"stats": "GET /api/v1/feedback/stats"
				},
				"catalog": {
					"constraints": "GET /api/v1/catalog/constraints",
					"goals": "GET /api/v1/catalog/goals",
					"patterns": "GET /api/v1/catalog/patterns"
				}
			}
		}`))
	})

	// 优化会话 API
	mux.HandleFunc("/api/v1/optimize/start", optimizeHandler.Start)
	mux.HandleFunc("/api/v1/optimize/status", optimizeHandler.Status)
	mux.HandleFunc("/api/v1/optimize/cancel", optimizeHandler.Cancel)
	mux.HandleFunc("/api/v1/optimize/suggestions", optimizeHandler.Suggestions)
	mux.HandleFunc("/api/v1/optimize/gaps", optimizeHandler.Gaps)

	// 批量应用 API
	mux.HandleFunc("/api/v1/bulk/preview", bulkHandler.Preview)
	mux.HandleFunc("/api/v1/bulk/apply", bulkHandler.Apply)
	mux.HandleFunc("/api/v1/bulk/promote", bulkHandler.Promote)
	mux.HandleFunc("/api/v1/bulk/rollback", bulkHandler.Rollback)
	mux.HandleFunc("/api/v1/bulk/operation", bulkHandler.Operation)

	// 效果追踪 API
	mux.HandleFunc("/api/v1/feedback/record", feedbackHandler.Record)
	mux.HandleFunc("/api/v1/feedback/stats", feedbackHandler.Stats)

	// 目录 API
	mux.HandleFunc("/api/v1/catalog/constraints", catalogHandler.Constraints)
	mux.HandleFunc("/api/v1/catalog/goals", catalogHandler.Goals)
	mux.HandleFunc("/api/v1/catalog/patterns", catalogHandler.Patterns)

	// Prometheus 指标端点
	mux.Handle(cfg.Metrics.Path, metrics.Handler())

	// 中间件执行顺序：requestID -> rateLimit -> cors -> logging -> handler
	root := requestIDMiddleware(rateLimitMiddleware(corsMiddleware(loggingMiddleware(mux))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("url", fmt.Sprintf("http://localhost:%d", cfg.App.Port)).
			Str("api_docs", fmt.Sprintf("http://localhost:%d/api/v1/", cfg.App.Port)).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		os.Exit(1)
	}

	logger.Info().Msg("服务器已关闭")
}

// metricsSink 审计事件转发器，顺带落Prometheus指标
type metricsSink struct {
	next audit.Sink
}

func (s *metricsSink) Record(e audit.Event) {
	switch e.Type {
	case audit.EventSessionFinished:
		status, _ := e.After["status"].(string)
		best, _ := e.After["best_score"].(float64)
		durationMs, _ := e.After["duration_ms"].(int64)
		metrics.RecordSessionFinished(status, time.Duration(durationMs)*time.Millisecond, best)
	case audit.EventBulkRolledBack:
		metrics.RecordBulkRollback()
	}
	s.next.Record(e)
}

// persistSink 审计事件驱动的落库：会话结束、建议状态变更、批量操作与效果记录
// 入库失败只告警不阻断，内存状态始终是权威数据
type persistSink struct {
	next audit.Sink

	sessions    *repository.SessionRepository
	suggestions *repository.SuggestionRepository
	bulkOps     *repository.BulkOpRepository
	performance *repository.PerformanceRepository

	manager     *session.Manager
	coordinator *bulk.Coordinator
	tracker     *feedback.Tracker
}

func newPersistSink(db *database.DB, next audit.Sink) *persistSink {
	return &persistSink{
		next:        next,
		sessions:    repository.NewSessionRepository(db),
		suggestions: repository.NewSuggestionRepository(db),
		bulkOps:     repository.NewBulkOpRepository(db),
		performance: repository.NewPerformanceRepository(db),
	}
}

// bind 注入事件源组件，须在服务开始处理请求前完成
func (s *persistSink) bind(manager *session.Manager, coordinator *bulk.Coordinator, tracker *feedback.Tracker) {
	s.manager = manager
	s.coordinator = coordinator
	s.tracker = tracker
}

func (s *persistSink) Record(e audit.Event) {
	s.next.Record(e)
	if s.manager == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	switch e.Type {
	case audit.EventSessionFinished:
		s.persistSession(ctx, e)
	case audit.EventSuggestionStatus:
		s.persistSuggestionStatus(ctx, e)
	case audit.EventBulkApplied:
		s.persistBulkOp(ctx, e, true)
	case audit.EventPilotPromoted, audit.EventBulkRolledBack:
		s.persistBulkOp(ctx, e, false)
	case audit.EventFeedbackRecorded:
		s.persistFeedback(ctx, e)
	}
}

func (s *persistSink) persistSession(ctx context.Context, e audit.Event) {
	id, err := uuid.Parse(e.EntityID)
	if err != nil {
		return
	}
	sess, err := s.manager.Session(id)
	if err != nil {
		return
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		logger.Warn().Err(err).Str("session_id", e.EntityID).Msg("会话落库失败")
		return
	}
	suggestions, err := s.manager.Suggestions(id)
	if err != nil || len(suggestions) == 0 {
		return
	}
	if err := s.suggestions.CreateBatch(ctx, suggestions); err != nil {
		logger.Warn().Err(err).Str("session_id", e.EntityID).Msg("建议落库失败")
	}
}

func (s *persistSink) persistSuggestionStatus(ctx context.Context, e audit.Event) {
	id, err := uuid.Parse(e.EntityID)
	if err != nil {
		return
	}
	status, _ := e.After["status"].(string)
	if status == "" {
		return
	}
	if err := s.suggestions.UpdateStatus(ctx, id, model.SuggestionStatus(status)); err != nil {
		logger.Warn().Err(err).Str("suggestion_id", e.EntityID).Msg("建议状态落库失败")
	}
}

func (s *persistSink) persistBulkOp(ctx context.Context, e audit.Event, created bool) {
	id, err := uuid.Parse(e.EntityID)
	if err != nil {
		return
	}
	op, err := s.coordinator.Operation(id)
	if err != nil {
		return
	}
	if created {
		err = s.bulkOps.Create(ctx, op)
	} else {
		err = s.bulkOps.Update(ctx, op)
	}
	if err != nil {
		logger.Warn().Err(err).Str("operation_id", e.EntityID).Msg("批量操作落库失败")
	}
}

func (s *persistSink) persistFeedback(ctx context.Context, e audit.Event) {
	suggestionID, err := uuid.Parse(e.EntityID)
	if err != nil {
		return
	}
	// 效果记录按建议关联，取该建议最新一条
	records := s.tracker.Records()
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].SuggestionID != suggestionID {
			continue
		}
		if err := s.performance.Create(ctx, records[i]); err != nil {
			logger.Warn().Err(err).Str("suggestion_id", e.EntityID).Msg("效果记录落库失败")
		}
		return
	}
}

// requestIDMiddleware 请求ID追踪中间件
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

// loggingMiddleware 日志中间件
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID, _ := r.Context().Value(requestIDKey{}).(string)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Msg("请求处理")

		metrics.RecordRequestMetrics(r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

// responseWriter 包装ResponseWriter以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RateLimiter 简单的令牌桶限流器
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // 每秒添加的令牌数
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter 创建限流器
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     requestsPerSecond,
		maxTokens:  requestsPerSecond * 2, // 允许突发流量
		refillRate: requestsPerSecond,
		lastRefill: time.Now(),
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

var globalRateLimiter = NewRateLimiter(100) // 默认 100 QPS

// rateLimitMiddleware 限流中间件
func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !globalRateLimiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   true,
				"code":    "RATE_LIMITED",
				"message": "请求过于频繁，请稍后重试",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware CORS中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
