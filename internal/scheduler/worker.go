package scheduler

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"commhistory_backend/internal/recent/repository"
	"commhistory_backend/platform/config"
	"commhistory_backend/platform/logger"
)

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	repo      *repository.Repository
	retention time.Duration
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*Worker, error) {
	opt := redisClientOpt(cfg)

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		repo:      repository.New(pool),
		retention: cfg.GetEventRetention(),
		log:       log,
	}

	mux.HandleFunc(TaskEventsPrune, w.handleEventsPrune)

	task, err := NewEventsPruneTask(EventsPrunePayload{
		RetentionDays: int(w.retention / (24 * time.Hour)),
	})
	if err != nil {
		return nil, err
	}

	sched := asynq.NewScheduler(opt, nil)
	if _, err := sched.Register("@every 24h", task, asynq.Queue(queue)); err != nil {
		return nil, err
	}
	w.scheduler = sched

	return w, nil
}

func (w *Worker) handleEventsPrune(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseEventsPrunePayload(task)
	if err != nil {
		return err
	}

	retention := w.retention
	if payload.RetentionDays > 0 {
		retention = time.Duration(payload.RetentionDays) * 24 * time.Hour
	}
	if retention <= 0 {
		return nil
	}

	cutoff := time.Now().Add(-retention)
	pruned, err := w.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	w.log.Info("pruned old communication events", "cutoff", cutoff, "deleted", pruned)
	return nil
}

// Run starts the periodic scheduler and the task server, blocking until the
// context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	go func() {
		if err := w.scheduler.Run(); err != nil {
			w.log.Error("periodic scheduler stopped", "error", err)
		}
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
