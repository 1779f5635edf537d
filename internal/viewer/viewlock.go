package viewer

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

const (
	fitDistanceFactor = 1.5
	ZoomIn            = 0.8
	ZoomOut           = 1.25
	RotateStepDegrees = 15.0
)

type ViewAngle string

const (
	ViewFront ViewAngle = "front"
	ViewBack  ViewAngle = "back"
	ViewLeft  ViewAngle = "left"
	ViewRight ViewAngle = "right"
)

var (
	ErrUnknownAngle = errors.New("unknown view angle")
	ErrNoGeometry   = errors.New("no geometry to frame")
)

type Camera struct {
	Position mgl64.Vec3
	Target   mgl64.Vec3
}

// ViewLock keeps the camera at a fixed offset from the model center while
// locked, so a pan or zoom survives frames whose geometry moves.
type ViewLock struct {
	locked    bool
	offset    mgl64.Vec3
	hasOffset bool

	camera    Camera
	bounds    Bounds
	hasBounds bool
}

func NewViewLock(locked bool) *ViewLock {
	return &ViewLock{locked: locked}
}

func (v *ViewLock) Locked() bool {
	return v.locked
}

func (v *ViewLock) Camera() Camera {
	return v.camera
}

// Offset reports the captured camera offset, if any.
func (v *ViewLock) Offset() (mgl64.Vec3, bool) {
	return v.offset, v.hasOffset
}

func (v *ViewLock) SetLocked(locked bool) {
	v.locked = locked
	if locked {
		v.capture()
	}
}

// SetCamera moves the camera during an interactive manipulation. The offset
// is only captured once the interaction ends.
func (v *ViewLock) SetCamera(c Camera) {
	v.camera = c
}

func (v *ViewLock) EndInteraction() {
	if v.locked {
		v.capture()
	}
}

func (v *ViewLock) capture() {
	v.offset = v.camera.Position.Sub(v.camera.Target)
	v.hasOffset = true
}

// FrameChanged places the camera for new geometry.
func (v *ViewLock) FrameChanged(b Bounds) Camera {
	v.bounds = b
	v.hasBounds = true
	center := b.Center()
	if v.locked && v.hasOffset {
		v.camera = Camera{Position: center.Add(v.offset), Target: center}
		return v.camera
	}
	v.fit()
	if v.locked {
		v.capture()
	}
	return v.camera
}

func (v *ViewLock) fit() {
	center := v.bounds.Center()
	dist := v.bounds.MaxDim() * fitDistanceFactor
	v.camera = Camera{Position: center.Add(mgl64.Vec3{0, 0, dist}), Target: center}
}

// SetViewAngle looks at the model from one side.
func (v *ViewLock) SetViewAngle(angle ViewAngle) error {
	if !v.hasBounds {
		return ErrNoGeometry
	}
	center := v.bounds.Center()
	dist := v.bounds.MaxDim() * fitDistanceFactor

	var dir mgl64.Vec3
	switch angle {
	case ViewFront:
		dir = mgl64.Vec3{0, 0, 1}
	case ViewBack:
		dir = mgl64.Vec3{0, 0, -1}
	case ViewLeft:
		dir = mgl64.Vec3{-1, 0, 0}
	case ViewRight:
		dir = mgl64.Vec3{1, 0, 0}
	default:
		return errors.Wrapf(ErrUnknownAngle, "%q", angle)
	}
	v.camera = Camera{Position: center.Add(dir.Mul(dist)), Target: center}
	if v.locked {
		v.capture()
	}
	return nil
}

// Zoom scales the camera distance to the target; below 1 moves closer.
func (v *ViewLock) Zoom(factor float64) {
	dir := v.camera.Position.Sub(v.camera.Target).Mul(factor)
	v.camera.Position = v.camera.Target.Add(dir)
	if v.locked {
		v.capture()
	}
}

// Rotate orbits the camera around the vertical axis through the target.
func (v *ViewLock) Rotate(degrees float64) {
	offset := v.camera.Position.Sub(v.camera.Target)
	rotated := mgl64.Rotate3DY(-mgl64.DegToRad(degrees)).Mul3x1(offset)
	v.camera.Position = v.camera.Target.Add(rotated)
	if v.locked {
		v.capture()
	}
}

// Reset forgets the captured offset and refits the camera.
func (v *ViewLock) Reset() {
	v.hasOffset = false
	if !v.hasBounds {
		return
	}
	v.fit()
	if v.locked {
		v.capture()
	}
}
