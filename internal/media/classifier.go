package media

import (
	"path/filepath"
	"strings"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrDecode            = errors.New("media could not be decoded")
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

// Classify routes a file to the image or video pipeline by its extension.
func Classify(filename string) models.MediaKind {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExtensions[ext]:
		return models.MediaImage
	case videoExtensions[ext]:
		return models.MediaVideo
	default:
		return models.MediaUnknown
	}
}

// Stem is the file name without directory and extension; it names the job's artifacts.
func Stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
