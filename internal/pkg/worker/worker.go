package worker

import (
	"context"
	"sync"
	"time"

	"orders_manager/pkg/logger"

	"go.uber.org/zap"
)

// RefundTask 即时退款任务
type RefundTask struct {
	OrderID int64
	Retry   int // 重试次数
}

// Handler 处理单个订单的退款
type Handler func(ctx context.Context, orderID int64) error

// WorkerPool 退款任务池
// 任务丢失不影响正确性：待退款记录仍在库中，定时任务会兜底
type WorkerPool struct {
	TaskQueue  chan RefundTask
	RetryQueue chan RefundTask // 重试队列
	WorkerNum  int
	MaxRetry   int // 最大重试次数

	handler Handler
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool(handler Handler, workerNum int, bufferSize int) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if bufferSize < 2 {
		bufferSize = 2
	}
	return &WorkerPool{
		TaskQueue:  make(chan RefundTask, bufferSize),
		RetryQueue: make(chan RefundTask, bufferSize/2),
		WorkerNum:  workerNum,
		MaxRetry:   3, // 最多重试3次
		handler:    handler,
	}
}

func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.WorkerNum; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	// 启动重试处理协程
	p.wg.Add(1)
	go p.retryWorker(ctx)
	logger.Log.Info("refund worker pool started", zap.Int("workers", p.WorkerNum))
}

// Stop 停止接收任务并等待协程退出，队列中剩余任务交给定时任务
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logger.Log.Info("refund worker pool stopped", zap.Int("pending", len(p.TaskQueue)+len(p.RetryQueue)))
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.TaskQueue:
			p.process(ctx, id, task)
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, id int, task RefundTask) {
	err := p.handler(ctx, task.OrderID)
	if err == nil {
		return
	}
	logger.Log.Warn("refund task failed",
		zap.Int("worker", id), zap.Int64("order_id", task.OrderID), zap.Int("retry", task.Retry), zap.Error(err))

	// 如果未达到最大重试次数，加入重试队列
	if task.Retry >= p.MaxRetry {
		p.logFailedTask(task, err)
		return
	}
	task.Retry++
	select {
	case p.RetryQueue <- task:
	default:
		p.logFailedTask(task, err)
	}
}

func (p *WorkerPool) retryWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.RetryQueue:
			// 延迟重试，避免立即重试
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(task.Retry) * time.Second):
			}

			select {
			case p.TaskQueue <- task:
			default:
				p.logFailedTask(task, nil)
			}
		}
	}
}

// logFailedTask 放弃即时重试，由定时退款任务兜底
func (p *WorkerPool) logFailedTask(task RefundTask, err error) {
	logger.Log.Warn("refund task dropped, left for scheduled sweep",
		zap.Int64("order_id", task.OrderID), zap.Int("retry", task.Retry), zap.Error(err))
}

// AddTask 非阻塞入队，队列满或已停止时返回 false
func (p *WorkerPool) AddTask(task RefundTask) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.logFailedTask(task, nil)
		return false
	}

	select {
	case p.TaskQueue <- task:
		return true
	default:
		p.logFailedTask(task, nil)
		return false
	}
}

// Dispatch 投递订单退款任务
func (p *WorkerPool) Dispatch(orderID int64) {
	p.AddTask(RefundTask{OrderID: orderID})
}
