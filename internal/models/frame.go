package models

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

const FrameRecordVersion = "1.0"

// Faces is the mesh triangulation, one vertex index triple per triangle.
type Faces [][3]int

// Topology is either carried inline by a record or refers to the job's shared faces.
// The zero value is a shared reference.
type Topology struct {
	inline bool
	faces  Faces
}

var ErrMissingTopology = errors.New("shared topology not available")

func InlineTopology(f Faces) Topology {
	return Topology{inline: true, faces: f}
}

func SharedTopology() Topology {
	return Topology{}
}

func (t Topology) IsInline() bool {
	return t.inline
}

// Faces returns the inline faces, nil for a shared reference.
func (t Topology) Faces() Faces {
	if !t.inline {
		return nil
	}
	return t.faces
}

// Resolve returns the concrete faces, falling back to shared when the record defers to it.
func (t Topology) Resolve(shared Faces) (Faces, error) {
	if t.inline {
		return t.faces, nil
	}
	if shared == nil {
		return nil, ErrMissingTopology
	}
	return shared, nil
}

func (t Topology) MarshalJSON() ([]byte, error) {
	if !t.inline {
		return []byte("null"), nil
	}
	if t.faces == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.faces)
}

func (t *Topology) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = SharedTopology()
		return nil
	}
	var f Faces
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = InlineTopology(f)
	return nil
}

type FrameRecord struct {
	Version   string       `json:"version"`
	ImagePath string       `json:"image_path"`
	ImageSize [2]int       `json:"image_size"`
	NumPeople int          `json:"num_people"`
	Faces     Topology     `json:"faces"`
	People    []BodyRecord `json:"people"`
}

// NewFrameRecord builds a record for one image or video frame.
func NewFrameRecord(imagePath string, width, height int, people []BodyRecord, faces Topology) *FrameRecord {
	if people == nil {
		people = []BodyRecord{}
	}
	for i := range people {
		people[i].ID = i
	}
	return &FrameRecord{
		Version:   FrameRecordVersion,
		ImagePath: imagePath,
		ImageSize: [2]int{width, height},
		NumPeople: len(people),
		Faces:     faces,
		People:    people,
	}
}

// Merged returns a copy whose topology is inline, resolved against shared.
func (r *FrameRecord) Merged(shared Faces) (*FrameRecord, error) {
	faces, err := r.Faces.Resolve(shared)
	if err != nil {
		return nil, err
	}
	out := *r
	out.Faces = InlineTopology(faces)
	return &out, nil
}

type BodyRecord struct {
	ID          int        `json:"id" msgpack:"id"`
	BBox        []float64  `json:"bbox" msgpack:"bbox"`
	FocalLength float64    `json:"focal_length" msgpack:"focal_length"`
	Camera      Camera     `json:"camera" msgpack:"camera"`
	Mesh        Mesh       `json:"mesh" msgpack:"mesh"`
	Params      PoseParams `json:"params" msgpack:"params"`
}

type Camera struct {
	Translation []float64 `json:"translation" msgpack:"translation"`
}

type Mesh struct {
	Vertices    [][]float64 `json:"vertices" msgpack:"vertices"`
	Keypoints3D [][]float64 `json:"keypoints_3d" msgpack:"keypoints_3d"`
	Keypoints2D [][]float64 `json:"keypoints_2d" msgpack:"keypoints_2d"`
}

type PoseParams struct {
	GlobalRot  []float64 `json:"global_rot" msgpack:"global_rot"`
	BodyPose   []float64 `json:"body_pose" msgpack:"body_pose"`
	Shape      []float64 `json:"shape" msgpack:"shape"`
	Scale      []float64 `json:"scale" msgpack:"scale"`
	Hand       []float64 `json:"hand" msgpack:"hand"`
	Expression []float64 `json:"expression" msgpack:"expression"`
}
