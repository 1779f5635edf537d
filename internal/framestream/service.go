package framestream

import (
	"os"
	"path/filepath"

	"github.com/amankumarsingh77/mhr-streamer/internal/artifact"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
)

var ErrFrameNotFound = errors.New("frame not found")

// Locator reports where the current job's artifacts live.
type Locator interface {
	ActiveOutput() (models.JobOutput, bool)
}

// Service serves the artifacts of the current job straight from disk. It
// never waits on the worker: anything not yet written is simply absent.
type Service struct {
	locator Locator
}

func NewService(locator Locator) *Service {
	return &Service{locator: locator}
}

// SingleResult returns the record of a finished image job.
func (s *Service) SingleResult() ([]byte, bool) {
	out, ok := s.locator.ActiveOutput()
	if !ok || out.IsVideo {
		return nil, false
	}
	return readIfExists(out.Path)
}

func (s *Service) Manifest() ([]byte, bool) {
	dir, ok := s.videoDir()
	if !ok {
		return nil, false
	}
	return readIfExists(filepath.Join(dir, artifact.ManifestFile))
}

func (s *Service) Topology() ([]byte, bool) {
	dir, ok := s.videoDir()
	if !ok {
		return nil, false
	}
	return readIfExists(filepath.Join(dir, artifact.FacesFile))
}

func (s *Service) Frame(name string) ([]byte, error) {
	if !artifact.ValidFrameName(name) {
		return nil, errors.Wrapf(ErrFrameNotFound, "invalid name %q", name)
	}
	dir, ok := s.videoDir()
	if !ok {
		return nil, errors.Wrap(ErrFrameNotFound, "no video job")
	}
	data, ok := readIfExists(filepath.Join(dir, name))
	if !ok {
		return nil, errors.Wrap(ErrFrameNotFound, name)
	}
	return data, nil
}

func (s *Service) videoDir() (string, bool) {
	out, ok := s.locator.ActiveOutput()
	if !ok || !out.IsVideo {
		return "", false
	}
	return out.Path, true
}

func readIfExists(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}
