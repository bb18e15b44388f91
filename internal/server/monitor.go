package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qiminjie89/gochat/pkg/config"
	"github.com/qiminjie89/gochat/pkg/logger"
	"go.uber.org/zap"
)

var startTime = time.Now()

// HealthStatus 健康检查应答
type HealthStatus struct {
	Status        string  `json:"status"`
	Connections   int64   `json:"connections"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Monitor 监控 HTTP 服务:/health 与 /metrics。
// 只读取原子计数与 Prometheus 收集器,不触碰事件循环独占的状态。
type Monitor struct {
	cfg  *config.ServerConfig
	loop *EventLoop
}

// NewMonitor 创建监控服务
func NewMonitor(cfg *config.ServerConfig, loop *EventLoop) *Monitor {
	return &Monitor{cfg: cfg, loop: loop}
}

// Run 运行监控服务直到 ctx 取消
func (m *Monitor) Run(ctx context.Context) {
	r := mux.NewRouter()
	r.HandleFunc("/health", m.healthHandler).Methods(http.MethodGet)
	if m.cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	srv := &http.Server{
		Addr:    m.cfg.Server.MonitorAddr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting monitor server",
		zap.String("addr", m.cfg.Server.MonitorAddr),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("monitor server error", zap.Error(err))
	}
}

func (m *Monitor) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:        "healthy",
		Connections:   m.loop.ConnCount(),
		UptimeSeconds: time.Since(startTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}
