package estimator

import (
	"context"
	"sync"

	"github.com/amankumarsingh77/mhr-streamer/internal/media"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
)

var ErrInit = errors.New("estimator failed to initialize")

// Estimator maps one image to the people detected in it.
type Estimator interface {
	Estimate(ctx context.Context, img *media.Image) ([]models.BodyRecord, error)
	// Faces is the mesh triangulation shared by every record the estimator produces.
	Faces() models.Faces
	Close() error
}

type Loader func(ctx context.Context) (Estimator, error)

// Lazy loads the estimator on first use and keeps it for later jobs.
// A failed load, or a worker that died since, is retried on the next call.
type Lazy struct {
	mu   sync.Mutex
	load Loader
	est  Estimator
}

func NewLazy(load Loader) *Lazy {
	return &Lazy{load: load}
}

func (l *Lazy) Get(ctx context.Context) (Estimator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.est != nil {
		if a, ok := l.est.(interface{ Alive() bool }); !ok || a.Alive() {
			return l.est, nil
		}
		l.est.Close()
		l.est = nil
	}
	est, err := l.load(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrInit, "%v", err)
	}
	l.est = est
	return est, nil
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.est == nil {
		return nil
	}
	err := l.est.Close()
	l.est = nil
	return err
}
