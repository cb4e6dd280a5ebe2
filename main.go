package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"fieldops-insight-service/api"
	_ "fieldops-insight-service/docs"
	"fieldops-insight-service/logger"
	"fieldops-insight-service/service"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

var (
	PORT         = 80
	BASE_CONTEXT = ""
)

func init() {
	if val := os.Getenv("LISTEN_PORT"); val != "" {
		PORT, _ = strconv.Atoi(val)
	}

	if val := os.Getenv("BASE_CONTEXT"); val != "" {
		BASE_CONTEXT = val
	}
}

// @title 现场服务洞察引擎 API
// @version 1.0
// @description CRM/现场服务 AI 洞察引擎的上下文质量门控服务，提供实体上下文评分、门控调用、洞察记录与领域健康报表
// @BasePath /swagger/fieldops-insight-service
func main() {
	logger.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := service.Initialize(ctx)
	if err != nil {
		log.Fatalf("服务初始化失败: %v", err)
	}
	if err := services.Start(); err != nil {
		log.Fatalf("定时任务启动失败: %v", err)
	}

	mux := chi.NewRouter()

	// 如果有BASE_CONTEXT，则在该路径下挂载所有路由
	if BASE_CONTEXT != "" {
		mux.Route(BASE_CONTEXT, func(r chi.Router) {
			api.InitRoute(r, services)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/swagger*", httpSwagger.WrapHandler)
		})
	} else {
		api.InitRoute(mux, services)
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/swagger*", httpSwagger.WrapHandler)
	}

	s := daprd.NewServiceWithMux(":"+strconv.Itoa(PORT), mux)

	go func() {
		<-ctx.Done()
		slog.Info("收到退出信号，开始优雅停机")
		if err := s.GracefulStop(); err != nil {
			slog.Error("HTTP服务停止失败", "error", err)
		}
	}()

	slog.Info("服务启动", "port", PORT, "base_context", BASE_CONTEXT)
	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := services.Close(); err != nil {
			slog.Error("释放资源失败", "error", err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		slog.Warn("释放资源超时")
	}
}
