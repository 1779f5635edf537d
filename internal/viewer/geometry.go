package viewer

import (
	"math"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/go-gl/mathgl/mgl64"
)

// Bounds is an axis aligned box in render space.
type Bounds struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

func (b Bounds) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b Bounds) Size() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b Bounds) MaxDim() float64 {
	s := b.Size()
	return math.Max(s.X(), math.Max(s.Y(), s.Z()))
}

// SceneBounds boxes the vertices of every person in rec. Model space has Y
// pointing down, so Y is negated on the way into render space. It reports
// false when the record has no vertices.
func SceneBounds(rec *models.FrameRecord) (Bounds, bool) {
	if rec == nil {
		return Bounds{}, false
	}
	b := Bounds{
		Min: mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
	found := false
	for _, p := range rec.People {
		for _, v := range p.Mesh.Vertices {
			if len(v) < 3 {
				continue
			}
			pt := mgl64.Vec3{v[0], -v[1], v[2]}
			for i := 0; i < 3; i++ {
				b.Min[i] = math.Min(b.Min[i], pt[i])
				b.Max[i] = math.Max(b.Max[i], pt[i])
			}
			found = true
		}
	}
	if !found {
		return Bounds{}, false
	}
	return b, true
}
