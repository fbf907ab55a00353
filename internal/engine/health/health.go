// Package health records and reads liveness heartbeats of background processes.
package health

import (
	"context"
	"strconv"
	"time"

	"mystore/internal/platform/cache"
)

const (
	SchedulerBeatKey = "health:scheduler_beat"
	QueueBeatKey     = "health:queue_beat"

	BeatTTL = 5 * time.Minute
)

type Recorder struct {
	store cache.Store
	now   func() time.Time
}

func NewRecorder(store cache.Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Beat stores the current unix time under key for BeatTTL.
func (r *Recorder) Beat(ctx context.Context, key string) error {
	return r.store.Set(ctx, key, strconv.FormatInt(r.now().Unix(), 10), BeatTTL)
}

// LastBeat returns the time of the most recent beat, or false when none is live.
func (r *Recorder) LastBeat(ctx context.Context, key string) (time.Time, bool, error) {
	val, ok, err := r.store.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(sec, 0), true, nil
}
