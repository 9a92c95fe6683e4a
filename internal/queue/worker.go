package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Worker processes jobs of one type with a pool of goroutines
type Worker struct {
	queue      *RedisQueue
	jobType    JobType
	handler    JobHandler
	numWorkers int
	logger     *slog.Logger
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	scheduler  *gocron.Scheduler

	pollTimeout    time.Duration
	promoteEvery   time.Duration
	handlerTimeout time.Duration
}

// NewWorker creates a new worker
func NewWorker(queue *RedisQueue, jobType JobType, handler JobHandler, numWorkers int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		queue:          queue,
		jobType:        jobType,
		handler:        handler,
		numWorkers:     numWorkers,
		logger:         logger.With("queue", string(jobType)),
		ctx:            ctx,
		cancel:         cancel,
		scheduler:      gocron.NewScheduler(time.UTC),
		pollTimeout:    time.Second,
		promoteEvery:   5 * time.Second,
		handlerTimeout: 30 * time.Second,
	}
}

// Start starts the worker goroutines and the retry promoter
func (w *Worker) Start() error {
	w.logger.Info("starting workers", "count", w.numWorkers)

	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.process(i)
	}

	if _, err := w.scheduler.Every(w.promoteEvery).Do(w.promoteDelayed); err != nil {
		return err
	}
	w.scheduler.StartAsync()
	return nil
}

// Stop stops the worker and waits for in-flight jobs
func (w *Worker) Stop() {
	w.logger.Info("stopping workers")
	w.scheduler.Stop()
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) promoteDelayed() {
	moved, err := w.queue.PromoteDelayed(w.ctx, w.jobType)
	if err != nil {
		w.logger.Error("failed to promote delayed jobs", "error", err)
		return
	}
	if moved > 0 {
		w.logger.Debug("promoted delayed jobs", "count", moved)
	}
}

// process processes jobs from the queue
func (w *Worker) process(workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(w.ctx, w.jobType, w.pollTimeout)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.logger.Error("error dequeueing job", "worker", workerID, "error", err)
			w.sleep(time.Second)
			continue
		}
		if job == nil {
			w.sleep(100 * time.Millisecond)
			continue
		}

		w.run(workerID, job)
	}
}

func (w *Worker) run(workerID int, job *Job) {
	// In-flight jobs finish even when Stop is called
	ctx, cancel := context.WithTimeout(context.Background(), w.handlerTimeout)
	defer cancel()

	err := w.handler(ctx, *job)
	if err == nil {
		w.logger.Info("job completed", "worker", workerID, "job_id", job.ID, "retries", job.RetryCount)
		return
	}

	deadLettered, failErr := w.queue.Fail(ctx, job, err)
	if failErr != nil {
		w.logger.Error("error recording job failure", "job_id", job.ID, "error", failErr)
		return
	}
	if deadLettered {
		w.logger.Error("job failed permanently", "job_id", job.ID, "retries", job.RetryCount, "error", err)
		return
	}
	w.logger.Warn("job failed, retry scheduled",
		"job_id", job.ID,
		"retry", job.RetryCount,
		"next_retry", job.NextRetry,
		"error", err,
	)
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}
