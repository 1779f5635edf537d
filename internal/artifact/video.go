package artifact

import (
	"os"
	"path/filepath"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
)

// VideoWriter stores the records of one video job. The topology is written
// once, with the first frame, and every frame record defers to it.
type VideoWriter struct {
	dir            string
	manifest       models.VideoManifest
	topologyWrites int
}

// NewVideoWriter prepares the job directory, dropping records left by an
// earlier run over the same file, and publishes an empty manifest.
func (s *Store) NewVideoWriter(stem string, manifest models.VideoManifest) (*VideoWriter, error) {
	dir := s.VideoDir(stem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create video dir %s", dir)
	}
	if err := clearVideoDir(dir); err != nil {
		return nil, err
	}
	manifest.ProcessedFrames = []models.ProcessedFrame{}
	w := &VideoWriter{dir: dir, manifest: manifest}
	if err := writeJSON(w.manifestPath(), w.manifest, true); err != nil {
		return nil, err
	}
	return w, nil
}

func clearVideoDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read video dir %s", dir)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(ValidFrameName(name) || name == FacesFile || name == ManifestFile) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return errors.Wrapf(err, "remove stale %s", name)
		}
	}
	return nil
}

func (w *VideoWriter) Dir() string {
	return w.dir
}

func (w *VideoWriter) manifestPath() string {
	return filepath.Join(w.dir, ManifestFile)
}

// WriteFrame persists the record of frame index and appends it to the manifest.
// The first record must carry its topology inline and keeps it; later records
// are stored against the shared faces file.
func (w *VideoWriter) WriteFrame(index int, rec *models.FrameRecord) (string, error) {
	stored := *rec
	if w.topologyWrites == 0 {
		if !rec.Faces.IsInline() {
			return "", ErrInlineTopologyRequired
		}
		if err := writeJSON(filepath.Join(w.dir, FacesFile), rec.Faces.Faces(), false); err != nil {
			return "", err
		}
		w.topologyWrites++
	} else {
		stored.Faces = models.SharedTopology()
	}
	name := FrameFileName(index)
	if err := writeJSON(filepath.Join(w.dir, name), &stored, false); err != nil {
		return "", err
	}

	w.manifest.ProcessedFrames = append(w.manifest.ProcessedFrames, models.ProcessedFrame{
		FrameIdx:  index,
		File:      name,
		NumPeople: rec.NumPeople,
	})
	if err := writeJSON(w.manifestPath(), w.manifest, true); err != nil {
		return "", err
	}
	return name, nil
}

// Finalize rewrites the manifest one last time and returns the job directory.
func (w *VideoWriter) Finalize() (string, error) {
	if err := writeJSON(w.manifestPath(), w.manifest, true); err != nil {
		return "", err
	}
	return w.dir, nil
}

func (w *VideoWriter) FramesWritten() int {
	return len(w.manifest.ProcessedFrames)
}

func (w *VideoWriter) TopologyWrites() int {
	return w.topologyWrites
}

func (w *VideoWriter) Manifest() models.VideoManifest {
	m := w.manifest
	m.ProcessedFrames = append([]models.ProcessedFrame(nil), w.manifest.ProcessedFrames...)
	return m
}
