package worker

import (
	"sync"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
)

// StatusChannel holds the progress record shared by the worker and the HTTP
// handlers. Readers always get a complete copy.
type StatusChannel struct {
	mu     sync.RWMutex
	status models.ProcessingStatus
	hook   func(models.ProcessingStatus)
}

func NewStatusChannel() *StatusChannel {
	return &StatusChannel{}
}

// OnChange registers fn to receive every snapshot after a mutation.
func (c *StatusChannel) OnChange(fn func(models.ProcessingStatus)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *StatusChannel) Snapshot() models.ProcessingStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Clone()
}

// Begin resets the record for a new job.
func (c *StatusChannel) Begin(isVideo bool) {
	c.mutate(func(s *models.ProcessingStatus) {
		*s = models.ProcessingStatus{
			IsProcessing: true,
			Message:      "starting",
			IsVideo:      isVideo,
		}
	})
}

func (c *StatusChannel) Update(fn func(s *models.ProcessingStatus)) {
	c.mutate(fn)
}

func (c *StatusChannel) Fail(msg string) {
	c.mutate(func(s *models.ProcessingStatus) {
		s.Error = &msg
		s.ResultLocator = nil
		s.Message = "failed"
	})
}

func (c *StatusChannel) Complete(result string) {
	c.mutate(func(s *models.ProcessingStatus) {
		s.ResultLocator = &result
		s.Progress = 100
		s.ETA = ""
		s.Message = "done"
	})
}

// Finish ends the job's lifecycle on the record.
func (c *StatusChannel) Finish() {
	c.mutate(func(s *models.ProcessingStatus) {
		s.IsProcessing = false
	})
}

func (c *StatusChannel) mutate(fn func(s *models.ProcessingStatus)) {
	c.mu.Lock()
	fn(&c.status)
	snap := c.status.Clone()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
}
