package viewer

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
)

const (
	MinSpeed       = 0.25
	MaxSpeed       = 4.0
	SpeedStep      = 0.25
	DefaultFPS     = 10.0
	FastSkipFrames = 5
)

var (
	ErrNoFrames        = errors.New("no frames to play")
	ErrFrameOutOfRange = errors.New("frame number out of range")
	ErrNoMarker        = errors.New("no marker at that frame")
)

type FrameGetter interface {
	Get(ctx context.Context, name string) (*models.FrameRecord, error)
}

// FrameView is what a frame load hands to the display.
type FrameView struct {
	Position int
	Total    int
	FrameIdx int
	Record   *models.FrameRecord
	Err      error
}

// playTask is one scheduled tick. Pause cancels it; a cancelled task never
// loads or reschedules.
type playTask struct {
	cancelled atomic.Bool
	timer     *time.Timer
}

func (t *playTask) cancel() {
	t.cancelled.Store(true)
	if t.timer != nil {
		t.timer.Stop()
	}
}

// PlaybackScheduler advances through the processed frames of a video at
// baseFPS × speed.
type PlaybackScheduler struct {
	frames  FrameGetter
	onFrame func(FrameView)

	mu      sync.Mutex
	list    []models.ProcessedFrame
	baseFPS float64
	speed   float64
	current int
	playing bool
	task    *playTask
	markers []int

	// loading is held for the whole of a frame load.
	loading sync.Mutex
}

func NewPlaybackScheduler(frames FrameGetter, onFrame func(FrameView)) *PlaybackScheduler {
	return &PlaybackScheduler{
		frames:  frames,
		onFrame: onFrame,
		baseFPS: DefaultFPS,
		speed:   1,
	}
}

// SetManifest replaces the frame list, keeping the position when it is still valid.
func (s *PlaybackScheduler) SetManifest(m *models.VideoManifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == nil {
		s.list = nil
		s.current = 0
		return
	}
	s.list = append(s.list[:0:0], m.ProcessedFrames...)
	s.baseFPS = DefaultFPS
	if m.FPS > 0 {
		s.baseFPS = m.FPS
	}
	if s.current >= len(s.list) {
		s.current = 0
	}
}

func (s *PlaybackScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

func (s *PlaybackScheduler) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *PlaybackScheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *PlaybackScheduler) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Interval is the delay between two frame loads at the current speed.
func (s *PlaybackScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervalLocked()
}

func (s *PlaybackScheduler) intervalLocked() time.Duration {
	return time.Duration(float64(time.Second) / (s.baseFPS * s.speed))
}

// ChangeSpeed adds delta to the speed, clamped to [MinSpeed, MaxSpeed].
func (s *PlaybackScheduler) ChangeSpeed(delta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = math.Max(MinSpeed, math.Min(MaxSpeed, s.speed+delta))
	return s.speed
}

func (s *PlaybackScheduler) TogglePlay(ctx context.Context) bool {
	if s.Playing() {
		s.Pause()
		return false
	}
	s.Play(ctx)
	return s.Playing()
}

// Play schedules the next frame one interval from now.
func (s *PlaybackScheduler) Play(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing || len(s.list) == 0 {
		return
	}
	s.playing = true
	s.scheduleLocked(ctx)
}

func (s *PlaybackScheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	if s.task != nil {
		s.task.cancel()
		s.task = nil
	}
}

func (s *PlaybackScheduler) scheduleLocked(ctx context.Context) {
	task := &playTask{}
	s.task = task
	task.timer = time.AfterFunc(s.intervalLocked(), func() {
		s.tick(ctx, task)
	})
}

func (s *PlaybackScheduler) tick(ctx context.Context, task *playTask) {
	if task.cancelled.Load() || ctx.Err() != nil {
		return
	}
	if !s.loading.TryLock() {
		// A step is loading. Try again next interval unless it paused us.
		s.mu.Lock()
		if s.task == task && !task.cancelled.Load() {
			s.scheduleLocked(ctx)
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if task.cancelled.Load() || len(s.list) == 0 {
		s.mu.Unlock()
		s.loading.Unlock()
		return
	}
	next := (s.current + 1) % len(s.list)
	s.mu.Unlock()

	s.load(ctx, next)
	s.loading.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing && s.task == task && !task.cancelled.Load() {
		s.scheduleLocked(ctx)
	}
}

// load shows the frame at position pos. The caller holds s.loading.
func (s *PlaybackScheduler) load(ctx context.Context, pos int) error {
	s.mu.Lock()
	if pos < 0 || pos >= len(s.list) {
		s.mu.Unlock()
		return ErrFrameOutOfRange
	}
	s.current = pos
	pf := s.list[pos]
	total := len(s.list)
	s.mu.Unlock()

	rec, err := s.frames.Get(ctx, pf.File)
	if s.onFrame != nil {
		s.onFrame(FrameView{Position: pos, Total: total, FrameIdx: pf.FrameIdx, Record: rec, Err: err})
	}
	return err
}

// step pauses playback, waits for an in-flight load and loads the position
// chosen by target.
func (s *PlaybackScheduler) step(ctx context.Context, target func(cur, n int) (int, error)) error {
	s.Pause()
	s.loading.Lock()
	defer s.loading.Unlock()

	s.mu.Lock()
	n := len(s.list)
	cur := s.current
	s.mu.Unlock()
	if n == 0 {
		return ErrNoFrames
	}
	pos, err := target(cur, n)
	if err != nil {
		return err
	}
	return s.load(ctx, pos)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Next wraps to the first frame after the last.
func (s *PlaybackScheduler) Next(ctx context.Context) error {
	return s.step(ctx, func(cur, n int) (int, error) {
		return (cur + 1) % n, nil
	})
}

// Prev wraps to the last frame before the first.
func (s *PlaybackScheduler) Prev(ctx context.Context) error {
	return s.step(ctx, func(cur, n int) (int, error) {
		return (cur - 1 + n) % n, nil
	})
}

// Skip moves by delta frames, clamped to the sequence.
func (s *PlaybackScheduler) Skip(ctx context.Context, delta int) error {
	return s.step(ctx, func(cur, n int) (int, error) {
		return clamp(cur+delta, 0, n-1), nil
	})
}

func (s *PlaybackScheduler) Seek(ctx context.Context, pos int) error {
	return s.step(ctx, func(cur, n int) (int, error) {
		return clamp(pos, 0, n-1), nil
	})
}

// JumpToFrame loads the 1-based frame number.
func (s *PlaybackScheduler) JumpToFrame(ctx context.Context, number int) error {
	return s.step(ctx, func(cur, n int) (int, error) {
		if number < 1 || number > n {
			return 0, ErrFrameOutOfRange
		}
		return number - 1, nil
	})
}

// AddMarker marks the current position. It reports false for a duplicate or
// when there are no frames.
func (s *PlaybackScheduler) AddMarker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.list) == 0 {
		return false
	}
	i := sort.SearchInts(s.markers, s.current)
	if i < len(s.markers) && s.markers[i] == s.current {
		return false
	}
	s.markers = append(s.markers, 0)
	copy(s.markers[i+1:], s.markers[i:])
	s.markers[i] = s.current
	return true
}

func (s *PlaybackScheduler) RemoveMarker(pos int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.SearchInts(s.markers, pos)
	if i == len(s.markers) || s.markers[i] != pos {
		return false
	}
	s.markers = append(s.markers[:i], s.markers[i+1:]...)
	return true
}

func (s *PlaybackScheduler) Markers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.markers...)
}

func (s *PlaybackScheduler) JumpToMarker(ctx context.Context, pos int) error {
	s.mu.Lock()
	i := sort.SearchInts(s.markers, pos)
	found := i < len(s.markers) && s.markers[i] == pos
	s.mu.Unlock()
	if !found {
		return ErrNoMarker
	}
	return s.Seek(ctx, pos)
}

// NextMarker jumps to the first marker after the current position, wrapping.
func (s *PlaybackScheduler) NextMarker(ctx context.Context) error {
	s.mu.Lock()
	if len(s.markers) == 0 {
		s.mu.Unlock()
		return ErrNoMarker
	}
	i := sort.SearchInts(s.markers, s.current+1)
	target := s.markers[0]
	if i < len(s.markers) {
		target = s.markers[i]
	}
	s.mu.Unlock()
	return s.Seek(ctx, target)
}
