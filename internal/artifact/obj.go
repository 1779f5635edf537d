package artifact

import (
	"bufio"
	"fmt"
	"io"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
)

// ExportOBJ writes one person's mesh as a Wavefront OBJ. Face indices are 1-based.
func ExportOBJ(w io.Writer, vertices [][]float64, faces models.Faces) error {
	bw := bufio.NewWriter(w)
	for i, v := range vertices {
		if len(v) < 3 {
			return errors.Errorf("vertex %d has %d components", i, len(v))
		}
		if _, err := fmt.Fprintf(bw, "v %.6f %.6f %.6f\n", v[0], v[1], v[2]); err != nil {
			return err
		}
	}
	for _, f := range faces {
		if _, err := fmt.Fprintf(bw, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1); err != nil {
			return err
		}
	}
	return bw.Flush()
}
