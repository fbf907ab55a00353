// Package workers holds the periodic maintenance jobs and the queue handlers
// run by cmd/worker.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"mystore/internal/engine/accounts"
	"mystore/internal/engine/health"
	"mystore/internal/engine/invitations"
	"mystore/internal/engine/mail"
	"mystore/internal/platform/queue"
)

const (
	beatSchedule = "@every 1m"
	jobTimeout   = 5 * time.Minute
)

type Schedule struct {
	InvitationSweep string
	SessionPrune    string
	BatchSize       int
}

type Jobs struct {
	invitations *invitations.Service
	accounts    *accounts.Service
	beats       *health.Recorder
	enqueuer    queue.Enqueuer
	schedule    Schedule
	now         func() time.Time
}

func NewJobs(inv *invitations.Service, acc *accounts.Service, beats *health.Recorder, enqueuer queue.Enqueuer, schedule Schedule) *Jobs {
	return &Jobs{
		invitations: inv,
		accounts:    acc,
		beats:       beats,
		enqueuer:    enqueuer,
		schedule:    schedule,
		now:         time.Now,
	}
}

// ExpireInvitations runs one live sweep over due invitations.
func (j *Jobs) ExpireInvitations(ctx context.Context) (int, error) {
	n, err := j.invitations.ExpireDue(ctx, j.now(), invitations.ExpireOptions{BatchSize: j.schedule.BatchSize})
	if err != nil {
		return n, fmt.Errorf("expire invitations: %w", err)
	}
	return n, nil
}

func (j *Jobs) PruneSessions(ctx context.Context) (int64, error) {
	n, err := j.accounts.PruneSessions(ctx)
	if err != nil {
		return n, fmt.Errorf("prune sessions: %w", err)
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("pruned idle sessions")
	}
	return n, nil
}

// Beat writes the scheduler heartbeat and queues a task that writes the queue
// heartbeat once a worker picks it up.
func (j *Jobs) Beat(ctx context.Context) error {
	if err := j.beats.Beat(ctx, health.SchedulerBeatKey); err != nil {
		return fmt.Errorf("scheduler beat: %w", err)
	}
	if j.enqueuer == nil {
		return nil
	}
	if err := j.enqueuer.Enqueue(ctx, queue.TypeQueueBeat, struct{}{}, queue.DefaultQueue); err != nil {
		return fmt.Errorf("queue beat: %w", err)
	}
	return nil
}

func (j *Jobs) HandleQueueBeat(ctx context.Context, t *asynq.Task) error {
	return j.beats.Beat(ctx, health.QueueBeatKey)
}

// Register adds the queue handlers to mux.
func (j *Jobs) Register(mux *asynq.ServeMux, sender mail.Sender) {
	mux.HandleFunc(queue.TypeQueueBeat, j.HandleQueueBeat)
	mux.Handle(queue.TypeMailSend, mail.NewTaskHandler(sender))
}

// Schedule adds the periodic jobs to c.
func (j *Jobs) Schedule(c *cron.Cron) error {
	entries := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{"invitations:expire", j.schedule.InvitationSweep, func(ctx context.Context) error {
			_, err := j.ExpireInvitations(ctx)
			return err
		}},
		{"sessions:prune", j.schedule.SessionPrune, func(ctx context.Context) error {
			_, err := j.PruneSessions(ctx)
			return err
		}},
		{"health:beat", beatSchedule, j.Beat},
	}

	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := c.AddFunc(e.spec, runJob(e.name, e.fn)); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", e.name, e.spec, err)
		}
		log.Info().Str("job", e.name).Str("schedule", e.spec).Msg("job scheduled")
	}
	return nil
}

func runJob(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("job failed")
			return
		}
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
	}
}
