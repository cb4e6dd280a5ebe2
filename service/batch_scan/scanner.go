package batch_scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fieldops-insight-service/service/distributed_lock"
	"fieldops-insight-service/service/intelligence"
	"fieldops-insight-service/service/models"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrScanInProgress 同一角色的扫描正在其他实例或协程中执行
var ErrScanInProgress = errors.New("该角色的批量扫描正在执行")

const (
	scanLockTTL          = 30 * time.Minute
	scanLockRefresh      = 5 * time.Minute
	scanInitiator        = "batch_scanner"
	defaultScanLimit     = 50
	defaultConcurrency   = 4
	defaultLookbackDays  = 7
	scheduleParserFields = cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
)

// Settings 批量扫描运行参数来源
type Settings interface {
	GetBatchConcurrency() int
	GetBatchLookbackDays() int
}

// ScanResult 单次扫描统计
type ScanResult struct {
	PersonaKey string        `json:"persona_key"`
	Domain     string        `json:"domain"`
	Trigger    string        `json:"trigger"`
	Discovered int           `json:"discovered"`
	Retained   int           `json:"retained"`
	Completed  int           `json:"completed"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
}

func (r *ScanResult) record(status string) {
	switch status {
	case models.InsightStatusCompleted:
		r.Completed++
	case models.InsightStatusSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// Scanner 批量扫描器：候选发现 -> 质量筛选 -> 并发门控调用
type Scanner struct {
	db       *gorm.DB
	gate     *intelligence.QualityGate
	settings Settings
	locker   *distributed_lock.LockExecutor
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
}

// NewScanner 创建批量扫描器，lock 为 nil 时使用进程内锁
func NewScanner(db *gorm.DB, gate *intelligence.QualityGate, settings Settings, lock distributed_lock.DistributedLock) *Scanner {
	if lock == nil {
		lock = distributed_lock.NewLocalLock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scanner{
		db:       db,
		gate:     gate,
		settings: settings,
		locker:   distributed_lock.NewLockExecutor(lock),
		cron:     cron.New(cron.WithParser(cron.NewParser(scheduleParserFields))),
		entries:  make(map[string]cron.EntryID),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 为配置了扫描计划的角色注册定时任务
func (s *Scanner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, persona := range s.gate.Personas().List() {
		if persona.ScanSchedule == "" {
			continue
		}
		key := persona.Key
		id, err := s.cron.AddFunc(persona.ScanSchedule, func() {
			s.runScheduled(key)
		})
		if err != nil {
			return fmt.Errorf("注册角色 %s 扫描计划失败: %w", key, err)
		}
		s.entries[key] = id
		slog.Info("注册批量扫描计划", "persona", key, "schedule", persona.ScanSchedule)
	}

	s.cron.Start()
	slog.Info("批量扫描调度器已启动", "jobs", len(s.entries))
	return nil
}

// Stop 停止调度并等待执行中的任务结束
func (s *Scanner) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	slog.Info("批量扫描调度器已停止")
}

// NextRuns 各角色下次执行时间
func (s *Scanner) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]time.Time, len(s.entries))
	for key, id := range s.entries {
		result[key] = s.cron.Entry(id).Next
	}
	return result
}

func (s *Scanner) runScheduled(personaKey string) {
	result, err := s.Run(s.ctx, personaKey, models.TriggerScheduled)
	if errors.Is(err, ErrScanInProgress) {
		slog.Info("批量扫描已在执行，跳过本次调度", "persona", personaKey)
		return
	}
	if err != nil {
		slog.Error("定时批量扫描失败", "persona", personaKey, "error", err)
		return
	}
	slog.Info("定时批量扫描完成",
		"persona", personaKey,
		"discovered", result.Discovered,
		"retained", result.Retained,
		"completed", result.Completed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration)
}

// Run 在分布式锁保护下执行一次角色扫描
func (s *Scanner) Run(ctx context.Context, personaKey, trigger string) (*ScanResult, error) {
	if _, err := s.gate.Personas().Get(personaKey); err != nil {
		return nil, err
	}

	var result *ScanResult
	acquired, err := s.locker.ExecuteWithLockAndRefresh(ctx, "batch_scan:"+personaKey, scanLockTTL, scanLockRefresh,
		func(ctx context.Context) error {
			var runErr error
			result, runErr = s.scan(ctx, personaKey, trigger)
			return runErr
		})
	if err != nil {
		return result, err
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrScanInProgress, personaKey)
	}
	return result, nil
}

func (s *Scanner) scan(ctx context.Context, personaKey, trigger string) (*ScanResult, error) {
	persona, err := s.gate.Personas().Get(personaKey)
	if err != nil {
		return nil, err
	}
	scorer, err := s.gate.Scorers().Get(persona.Domain)
	if err != nil {
		return nil, err
	}
	if trigger == "" {
		trigger = models.TriggerManual
	}

	result := &ScanResult{
		PersonaKey: persona.Key,
		Domain:     persona.Domain,
		Trigger:    trigger,
		StartedAt:  time.Now(),
	}
	defer func() { result.Duration = time.Since(result.StartedAt) }()

	limit := persona.ScanLimit
	if limit <= 0 {
		limit = defaultScanLimit
	}
	since := result.StartedAt.AddDate(0, 0, -s.lookbackDays())

	candidates, err := DiscoverCandidates(ctx, s.db, scorer.Definition(), since, limit)
	if err != nil {
		return result, err
	}
	result.Discovered = len(candidates)

	retained, err := FilterCandidates(ctx, s.db, scorer, candidates, persona.MinContextQuality)
	if err != nil {
		return result, err
	}
	result.Retained = len(retained)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())

	for _, candidate := range retained {
		candidate := candidate
		g.Go(func() error {
			record, err := s.gate.Invoke(gctx, intelligence.InvokeRequest{
				PersonaKey: persona.Key,
				EntityType: candidate.EntityType,
				EntityID:   candidate.EntityID,
				Params:     candidate.Params,
				Trigger:    trigger,
				Initiator:  scanInitiator,
			})
			if record == nil {
				return err
			}

			mu.Lock()
			result.record(record.Status)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("角色 %s 批量扫描中断: %w", persona.Key, err)
	}
	return result, nil
}

func (s *Scanner) concurrency() int {
	if s.settings == nil {
		return defaultConcurrency
	}
	return s.settings.GetBatchConcurrency()
}

func (s *Scanner) lookbackDays() int {
	if s.settings == nil {
		return defaultLookbackDays
	}
	return s.settings.GetBatchLookbackDays()
}
