package processor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"goflare.io/chargeprocessor/models"
)

const (
	minTickerInterval = 5 * time.Second
	maxTickerInterval = 30 * time.Second

	// handoffTimeout bounds the wait on a worker that stopped after it was
	// taken from the pool; the job goes back on the queue.
	handoffTimeout = 5 * time.Second
)

// Dispatcher queues webhook events and hands them to a pool of workers that
// grows and shrinks with the queue length.
type Dispatcher struct {
	WorkerPool chan chan WorkRequest
	maxWorkers int
	jobQueue   chan WorkRequest
	process    EventHandler
	logger     *zap.Logger
	workers    []Worker
	stop       chan bool
	mu         sync.Mutex
}

func NewDispatcher(maxWorkers int, jobQueueSize int, process EventHandler, logger *zap.Logger) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	pool := make(chan chan WorkRequest, maxWorkers)
	return &Dispatcher{
		WorkerPool: pool,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan WorkRequest, jobQueueSize),
		process:    process,
		logger:     logger,
		stop:       make(chan bool),
	}
}

func (d *Dispatcher) Run() {
	d.mu.Lock()
	for i := 0; i < d.maxWorkers; i++ {
		worker := NewWorker(i+1, d.WorkerPool, d.process, d.logger)
		worker.Start()
		d.workers = append(d.workers, worker)
	}
	d.mu.Unlock()

	go d.dispatch()
}

// Submit queues an event. It blocks while the queue is full unless ctx ends first.
func (d *Dispatcher) Submit(ctx context.Context, event *models.ChargeEvent) {
	select {
	case d.jobQueue <- WorkRequest{Event: event, Ctx: ctx}:
	case <-ctx.Done():
		d.logger.Warn("Job context canceled before it was queued",
			zap.Error(ctx.Err()),
			zap.String("event_id", event.ID))
	}
}

func (d *Dispatcher) dispatch() {
	tickerInterval := 10 * time.Second
	ticker := time.NewTicker(tickerInterval)
	defer ticker.Stop()
	var wg sync.WaitGroup

	for {
		select {
		case job := <-d.jobQueue:
			wg.Add(1)
			go func(job WorkRequest) {
				defer wg.Done()
				d.handoff(job)
			}(job)

		case <-ticker.C:
			d.adjustWorkerPool()

			jobQueueLength := len(d.jobQueue)
			if jobQueueLength > 50 {
				tickerInterval = minTickerInterval
			} else if jobQueueLength > 20 {
				tickerInterval = 10 * time.Second
			} else {
				tickerInterval = maxTickerInterval
			}

			ticker.Reset(tickerInterval)
		case <-d.stop:
			wg.Wait()
			return
		}
	}
}

func (d *Dispatcher) handoff(job WorkRequest) {
	select {
	case jobChannel := <-d.WorkerPool:
		select {
		case jobChannel <- job:
		case <-time.After(handoffTimeout):
			d.requeue(job)
		case <-job.Ctx.Done():
			d.logger.Warn("Job context canceled before processing",
				zap.Error(job.Ctx.Err()),
				zap.String("event_type", string(job.Event.Type)),
				zap.String("event_id", job.Event.ID))
		}
	case <-job.Ctx.Done():
		d.logger.Warn("Job context canceled while waiting for available worker",
			zap.Error(job.Ctx.Err()),
			zap.String("event_type", string(job.Event.Type)),
			zap.String("event_id", job.Event.ID))
	case <-d.stop:
	}
}

func (d *Dispatcher) requeue(job WorkRequest) {
	select {
	case d.jobQueue <- job:
	default:
		d.logger.Error("Job queue full, dropping event; the stored copy is left for the retry sweep",
			zap.String("event_id", job.Event.ID))
	}
}

func (d *Dispatcher) adjustWorkerPool() {
	d.mu.Lock()
	defer d.mu.Unlock()

	queued := len(d.jobQueue)
	threshold := float64(cap(d.jobQueue)) * 0.75
	currentWorkerCount := len(d.workers)

	if float64(queued) > threshold && currentWorkerCount < d.maxWorkers {
		newWorker := NewWorker(currentWorkerCount+1, d.WorkerPool, d.process, d.logger)
		newWorker.Start()
		d.workers = append(d.workers, newWorker)
		d.logger.Info("Added new worker", zap.Int("worker_id", newWorker.ID))
	}

	if float64(queued) < threshold/2 && currentWorkerCount > 1 {
		worker := d.workers[len(d.workers)-1]
		worker.Stop()
		d.workers = d.workers[:len(d.workers)-1]
		d.logger.Info("Removed worker", zap.Int("worker_id", worker.ID))
	}

	d.cleanupStoppedWorkers()

	if queued > 0 && len(d.workers) == 0 {
		newWorker := NewWorker(1, d.WorkerPool, d.process, d.logger)
		newWorker.Start()
		d.workers = append(d.workers, newWorker)
		d.logger.Info("Added a new worker because job queue is not empty but no workers are available")
	}
}

func (d *Dispatcher) cleanupStoppedWorkers() {
	var activeWorkers []Worker
	for _, worker := range d.workers {
		select {
		case <-worker.quit:
			d.logger.Info("Cleaned up stopped worker", zap.Int("worker_id", worker.ID))
		default:
			activeWorkers = append(activeWorkers, worker)
		}
	}
	d.workers = activeWorkers
}

func (d *Dispatcher) Stop() {
	close(d.stop)
	var wg sync.WaitGroup

	d.mu.Lock()
	for _, worker := range d.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			w.Stop()
		}(worker)
	}
	d.workers = nil
	d.mu.Unlock()

	wg.Wait()
}
