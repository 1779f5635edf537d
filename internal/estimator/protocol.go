package estimator

import (
	"encoding/binary"
	"io"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const maxMessageSize = 512 << 20

const (
	requestEstimate = "estimate"
	requestFaces    = "faces"
	requestPing     = "ping"
)

type request struct {
	Type          string  `msgpack:"type"`
	Image         []byte  `msgpack:"image,omitempty"`
	Width         int     `msgpack:"width,omitempty"`
	Height        int     `msgpack:"height,omitempty"`
	Path          string  `msgpack:"path,omitempty"`
	BBoxThreshold float64 `msgpack:"bbox_thr,omitempty"`
}

type response struct {
	OK     bool                `msgpack:"ok"`
	Error  string              `msgpack:"error"`
	People []models.BodyRecord `msgpack:"people"`
	Faces  [][]int             `msgpack:"faces"`
}

// writeMessage encodes v and writes it with a 4-byte big-endian length prefix.
func writeMessage(w io.Writer, v interface{}) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal msgpack message")
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return errors.Wrap(err, "failed to write length prefix")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "failed to write msgpack data")
	}
	return nil
}

func readMessage(r io.Reader, v interface{}) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return errors.Wrap(err, "failed to read length prefix")
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxMessageSize {
		return errors.Errorf("message of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return errors.Wrap(err, "failed to read msgpack data")
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return errors.Wrap(err, "failed to unmarshal msgpack message")
	}
	return nil
}

func toFaces(raw [][]int) (models.Faces, error) {
	faces := make(models.Faces, len(raw))
	for i, tri := range raw {
		if len(tri) != 3 {
			return nil, errors.Errorf("face %d has %d indices", i, len(tri))
		}
		faces[i] = [3]int{tri[0], tri[1], tri[2]}
	}
	return faces, nil
}
