/*
 * @module service/cleanup/insight_expiry_service
 * @description 洞察过期服务，定期将长时间停留在 pending 的洞察记录标记为 expired
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 定时触发 -> 获取锁 -> 读取过期时间配置 -> 条件更新 -> 记录结果
 * @rules 只处理 pending 记录，不删除任何记录；多实例部署时同一时刻仅一个实例执行
 * @dependencies fieldops-insight-service/service/intelligence, github.com/robfig/cron/v3
 * @refs service/intelligence/insight_store.go, service/config/config_service.go
 */

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fieldops-insight-service/service/distributed_lock"

	"github.com/robfig/cron/v3"
)

// DefaultExpirySchedule 每 10 分钟检查一次
const DefaultExpirySchedule = "0 */10 * * * *"

const expiryLockKey = "insight_expiry"

// PendingExpirer 过期待处理记录
type PendingExpirer interface {
	ExpireStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ExpirySettings 过期时间配置来源
type ExpirySettings interface {
	GetPendingExpiryMinutes() int
}

// InsightExpiryService 洞察过期服务
type InsightExpiryService struct {
	store    PendingExpirer
	settings ExpirySettings
	locker   *distributed_lock.LockExecutor
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
}

// NewInsightExpiryService 创建洞察过期服务实例，lock 为 nil 时使用进程内锁
func NewInsightExpiryService(store PendingExpirer, settings ExpirySettings, lock distributed_lock.DistributedLock) *InsightExpiryService {
	if lock == nil {
		lock = distributed_lock.NewLocalLock()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &InsightExpiryService{
		store:    store,
		settings: settings,
		locker:   distributed_lock.NewLockExecutor(lock),
		cron:     cron.New(cron.WithSeconds()),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ExpireStalePending 执行一次过期处理，锁被占用时返回 0
func (s *InsightExpiryService) ExpireStalePending(ctx context.Context) (int64, error) {
	minutes := s.settings.GetPendingExpiryMinutes()
	olderThan := time.Duration(minutes) * time.Minute

	var expired int64
	_, err := s.locker.ExecuteWithLock(ctx, expiryLockKey, 5*time.Minute, func(ctx context.Context) error {
		startTime := time.Now()
		n, err := s.store.ExpireStalePending(ctx, olderThan)
		if err != nil {
			return err
		}
		expired = n

		if n > 0 {
			slog.Info("过期待处理洞察完成",
				"expired_count", n,
				"expiry_minutes", minutes,
				"duration_ms", time.Since(startTime).Milliseconds())
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("过期待处理洞察失败: %w", err)
	}
	return expired, nil
}

// StartScheduledExpiry 启动定时过期任务
func (s *InsightExpiryService) StartScheduledExpiry(schedule string) error {
	if s.started {
		return fmt.Errorf("洞察过期调度器已经启动")
	}
	if schedule == "" {
		schedule = DefaultExpirySchedule
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.ExpireStalePending(s.ctx); err != nil {
			slog.Error("定时洞察过期任务失败", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("添加定时任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true
	slog.Info("洞察过期调度器启动成功", "schedule", schedule)
	return nil
}

// StopScheduledExpiry 停止定时过期任务
func (s *InsightExpiryService) StopScheduledExpiry() {
	if !s.started {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.started = false

	slog.Info("洞察过期调度器已停止")
}
