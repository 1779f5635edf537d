package worker

import (
	"context"

	"github.com/amankumarsingh77/mhr-streamer/internal/estimator"
	"github.com/pkg/errors"
)

var (
	ErrJobRunning  = errors.New("a job is already running")
	ErrNoDetection = errors.New("no human detected")
)

const (
	progressModelLoaded = 10
	progressDecoded     = 30
	progressEstimated   = 80
	progressDone        = 100
)

// EstimatorSource hands out the loaded estimation capability.
type EstimatorSource interface {
	Get(ctx context.Context) (estimator.Estimator, error)
}

// FrameSequence lists the frame indices a video job visits: every
// (skip+1)-th frame from start up to, but excluding, end. A negative end or
// one past the frame count means the last frame.
func FrameSequence(totalFrames, start, end, skip int) []int {
	if end < 0 || end > totalFrames {
		end = totalFrames
	}
	if start < 0 {
		start = 0
	}
	if skip < 0 {
		skip = 0
	}
	step := skip + 1
	if start >= end {
		return []int{}
	}
	indices := make([]int, 0, (end-start+step-1)/step)
	for i := start; i < end; i += step {
		indices = append(indices, i)
	}
	return indices
}

// frameProgress maps the i-th of n processed frames onto 10..100.
func frameProgress(i, n int) int {
	return progressModelLoaded + (100-progressModelLoaded)*(i+1)/n
}
