package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
)

const (
	RecordExt    = ".mhr.json"
	FacesFile    = "faces.json"
	ManifestFile = "video_info.json"
	UploadsDir   = "uploads"
)

var (
	ErrInlineTopologyRequired = errors.New("record must carry its topology inline")
	frameNamePattern          = regexp.MustCompile(`^frame_\d{6}\.mhr\.json$`)
)

// FrameFileName names the record of a video frame.
func FrameFileName(index int) string {
	return fmt.Sprintf("frame_%06d%s", index, RecordExt)
}

// ValidFrameName reports whether name is a frame record file name, which also rules out path traversal.
func ValidFrameName(name string) bool {
	return frameNamePattern.MatchString(name)
}

// Store lays out job output under one root directory.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) ImageRecordPath(stem string) string {
	return filepath.Join(s.root, stem+RecordExt)
}

func (s *Store) VideoDir(stem string) string {
	return filepath.Join(s.root, stem)
}

// WriteImageRecord stores a self-contained record for a still image.
func (s *Store) WriteImageRecord(stem string, rec *models.FrameRecord) (string, error) {
	if !rec.Faces.IsInline() {
		return "", ErrInlineTopologyRequired
	}
	path := s.ImageRecordPath(stem)
	if err := writeJSON(path, rec, false); err != nil {
		return "", err
	}
	return path, nil
}

// SaveUpload copies an uploaded file into the uploads directory and returns its
// path. A non-empty key is prepended to the stored name so uploads sharing a
// file name never replace each other.
func (s *Store) SaveUpload(key, filename string, r io.Reader) (string, error) {
	name := sanitizeFileName(filename)
	if name == "" {
		return "", errors.New("empty file name")
	}
	if key != "" {
		name = key + "_" + name
	}
	dir := filepath.Join(s.root, UploadsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create uploads dir")
	}
	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp upload")
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "write upload")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close upload")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrap(err, "move upload")
	}
	return path, nil
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

type ResultEntry struct {
	Name    string `json:"name"`
	IsVideo bool   `json:"is_video"`
	Path    string `json:"path"`
}

// ListResults returns image records and video job directories found under the root.
func (s *Store) ListResults() ([]ResultEntry, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []ResultEntry{}, nil
		}
		return nil, errors.Wrap(err, "list results")
	}
	results := make([]ResultEntry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir() && name != UploadsDir:
			if _, err := os.Stat(filepath.Join(s.root, name, ManifestFile)); err != nil {
				continue
			}
			results = append(results, ResultEntry{Name: name, IsVideo: true, Path: filepath.Join(s.root, name)})
		case !e.IsDir() && strings.HasSuffix(name, RecordExt):
			results = append(results, ResultEntry{Name: strings.TrimSuffix(name, RecordExt), Path: filepath.Join(s.root, name)})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}
