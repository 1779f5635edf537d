package estimator

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/config"
	"github.com/amankumarsingh77/mhr-streamer/internal/media"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/pkg/logger"
	"github.com/pkg/errors"
)

const (
	defaultCallTimeout = 2 * time.Minute
	stopTimeout        = 2 * time.Second
)

var errSessionBroken = errors.New("estimator session is no longer usable")

type Config struct {
	Command       string
	Args          []string
	Timeout       time.Duration
	BBoxThreshold float64
}

// NewConfig maps the application's estimator settings.
func NewConfig(c config.EstimatorConfig) Config {
	return Config{
		Command:       c.Command,
		Args:          c.Args,
		Timeout:       c.Timeout,
		BBoxThreshold: c.BBoxThreshold,
	}
}

// SubprocessLoader returns a Loader that starts a worker process per load.
func SubprocessLoader(cfg Config, log logger.Logger) Loader {
	return func(ctx context.Context) (Estimator, error) {
		p, err := StartSubprocess(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// session runs one request/response exchange at a time over a framed stream.
type session struct {
	mu      sync.Mutex
	w       io.Writer
	r       io.Reader
	timeout time.Duration
	broken  atomic.Bool
}

func newSession(w io.Writer, r io.Reader, timeout time.Duration) *session {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &session{w: w, r: r, timeout: timeout}
}

func (s *session) call(ctx context.Context, req *request) (*response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken.Load() {
		return nil, errSessionBroken
	}

	type result struct {
		resp *response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if err := writeMessage(s.w, req); err != nil {
			done <- result{err: err}
			return
		}
		resp := &response{}
		if err := readMessage(s.r, resp); err != nil {
			done <- result{err: err}
			return
		}
		done <- result{resp: resp}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			s.broken.Store(true)
			return nil, res.err
		}
		if !res.resp.OK {
			return nil, errors.Errorf("estimator: %s", res.resp.Error)
		}
		return res.resp, nil
	case <-timer.C:
		// the stream is now out of step with the worker
		s.broken.Store(true)
		return nil, errors.Errorf("estimator did not answer %q within %s", req.Type, s.timeout)
	case <-ctx.Done():
		s.broken.Store(true)
		return nil, ctx.Err()
	}
}

// Subprocess drives an external inference worker over stdin/stdout.
type Subprocess struct {
	cfg    Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	sess   *session
	faces  models.Faces
	logger logger.Logger

	calls atomic.Uint64
	done  chan struct{}
}

// StartSubprocess spawns the worker and fetches the mesh topology. The
// topology request doubles as the readiness check.
func StartSubprocess(ctx context.Context, cfg Config, log logger.Logger) (*Subprocess, error) {
	if cfg.Command == "" {
		return nil, errors.New("estimator command is not configured")
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", cfg.Command)
	}

	p := &Subprocess{
		cfg:    cfg,
		cmd:    cmd,
		stdin:  stdin,
		sess:   newSession(stdin, bufio.NewReader(stdout), cfg.Timeout),
		logger: log,
		done:   make(chan struct{}),
	}
	go p.logStderr(stderr)
	go p.waitProcess()

	log.Infof("estimator worker started, pid: %d", cmd.Process.Pid)

	resp, err := p.sess.call(ctx, &request{Type: requestFaces})
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "fetch topology")
	}
	faces, err := toFaces(resp.Faces)
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "decode topology")
	}
	p.faces = faces
	log.Infof("estimator ready, topology: %d faces", len(faces))
	return p, nil
}

func (p *Subprocess) Estimate(ctx context.Context, img *media.Image) ([]models.BodyRecord, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	p.calls.Add(1)
	resp, err := p.sess.call(ctx, &request{
		Type:          requestEstimate,
		Image:         img.Data,
		Width:         img.Width,
		Height:        img.Height,
		Path:          img.Path,
		BBoxThreshold: p.cfg.BBoxThreshold,
	})
	if err != nil {
		return nil, err
	}
	return resp.People, nil
}

func (p *Subprocess) Faces() models.Faces {
	return p.faces
}

// Alive reports whether the worker process is running and the stream is in sync.
func (p *Subprocess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
	}
	return !p.sess.broken.Load()
}

func (p *Subprocess) Calls() uint64 {
	return p.calls.Load()
}

func (p *Subprocess) Close() error {
	p.stdin.Close()
	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		p.logger.Warnf("estimator worker did not exit within %s, killing", stopTimeout)
		if err := p.cmd.Process.Kill(); err != nil {
			return errors.Wrap(err, "kill estimator worker")
		}
		<-p.done
	}
	return nil
}

func (p *Subprocess) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.logger.Infof("estimator: %s", scanner.Text())
	}
}

func (p *Subprocess) waitProcess() {
	err := p.cmd.Wait()
	p.sess.broken.Store(true)
	close(p.done)
	if err != nil {
		p.logger.Warnf("estimator worker exited: %v", err)
		return
	}
	p.logger.Infof("estimator worker exited")
}
