package job

import (
	"context"
	"sync"
	"time"

	"orders_manager/pkg/logger"
	"orders_manager/pkg/metrics"

	"go.uber.org/zap"
)

// Job 定时任务，返回本轮处理数量
type Job struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Scheduler 按固定间隔依次执行任务，同一时刻只有一轮在执行
type Scheduler struct {
	jobs     []Job
	interval time.Duration
	metrics  *metrics.MetricsCollector
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewScheduler(interval time.Duration, collector *metrics.MetricsCollector, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		interval: interval,
		metrics:  collector,
		stopCh:   make(chan struct{}),
	}
}

// Start 阻塞运行直到 ctx 取消或 Stop
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Log.Info("order job scheduler started", zap.Duration("interval", s.interval), zap.Int("jobs", len(s.jobs)))
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

// Stop 停止调度，正在执行的一轮会跑完
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// RunOnce 执行一轮全部任务，单个任务失败不影响其他任务
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		n, err := job.Run(ctx)
		s.metrics.ObserveSweep(job.Name, time.Since(start))
		if err != nil {
			logger.Log.Error("order job failed", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		if n > 0 {
			logger.Log.Info("order job finished", zap.String("job", job.Name), zap.Int("processed", n),
				zap.Duration("took", time.Since(start)))
		}
	}
}
