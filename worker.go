package processor

import (
	"context"

	"go.uber.org/zap"

	"goflare.io/chargeprocessor/models"
)

type Worker struct {
	ID         int
	WorkerPool chan chan WorkRequest
	JobChannel chan WorkRequest
	quit       chan bool
	process    EventHandler
	logger     *zap.Logger
}

type WorkRequest struct {
	Event *models.ChargeEvent
	Ctx   context.Context
}

func NewWorker(id int, workerPool chan chan WorkRequest, process EventHandler, logger *zap.Logger) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan WorkRequest),
		quit:       make(chan bool),
		process:    process,
		logger:     logger,
	}
}

func (w Worker) Start() {
	go func() {
		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-w.quit:
				return
			}

			select {
			case job := <-w.JobChannel:
				w.logger.Info("Processing event",
					zap.Int("worker_id", w.ID),
					zap.String("event_type", string(job.Event.Type)),
					zap.String("event_id", job.Event.ID))

				if err := w.process(job.Ctx, job.Event); err != nil {
					w.logger.Error("Failed to process event",
						zap.Error(err),
						zap.String("event_type", string(job.Event.Type)),
						zap.String("event_id", job.Event.ID))
				} else {
					w.logger.Info("Event processed",
						zap.String("event_type", string(job.Event.Type)),
						zap.String("event_id", job.Event.ID))
				}

			case <-w.quit:
				return
			}
		}
	}()
}

func (w Worker) Stop() {
	close(w.quit)
}
