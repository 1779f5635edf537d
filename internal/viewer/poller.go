package viewer

import (
	"context"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
)

const (
	PollInterval      = 500 * time.Millisecond
	PollErrorInterval = 1000 * time.Millisecond
)

type ProgressSource interface {
	Progress(ctx context.Context) (models.ProcessingStatus, error)
}

// Poller watches job progress until the job reaches a terminal status.
type Poller struct {
	src           ProgressSource
	interval      time.Duration
	errorInterval time.Duration
}

func NewPoller(src ProgressSource) *Poller {
	return &Poller{
		src:           src,
		interval:      PollInterval,
		errorInterval: PollErrorInterval,
	}
}

// Run calls onUpdate with every status fetched and returns the terminal one.
// onError, when set, sees failed fetches; polling carries on after them.
func (p *Poller) Run(ctx context.Context, onUpdate func(models.ProcessingStatus), onError func(error)) (models.ProcessingStatus, error) {
	for {
		wait := p.interval
		status, err := p.src.Progress(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return models.ProcessingStatus{}, ctx.Err()
			}
			if onError != nil {
				onError(err)
			}
			wait = p.errorInterval
		default:
			if onUpdate != nil {
				onUpdate(status)
			}
			if status.Terminal() {
				return status, nil
			}
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return models.ProcessingStatus{}, ctx.Err()
		case <-t.C:
		}
	}
}
