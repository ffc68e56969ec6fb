package rig

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform is the placement of the model on screen, independent of its
// animation parameters.
type Transform struct {
	Scale    mgl64.Vec2 `json:"scale"`
	Position mgl64.Vec2 `json:"position"`
	Anchor   mgl64.Vec2 `json:"anchor"`
}

// IdentityTransform returns a unit-scale transform at the origin.
func IdentityTransform() Transform {
	return Transform{Scale: mgl64.Vec2{1, 1}}
}

// Drift returns the largest per-axis scale and position deviation from base.
func (t Transform) Drift(base Transform) (scale, position float64) {
	ds := t.Scale.Sub(base.Scale)
	dp := t.Position.Sub(base.Position)
	scale = math.Max(math.Abs(ds.X()), math.Abs(ds.Y()))
	position = math.Max(math.Abs(dp.X()), math.Abs(dp.Y()))
	return scale, position
}

// Exceeds reports whether t deviates from base by more than the tolerances.
func (t Transform) Exceeds(base Transform, scaleTol, positionTol float64) bool {
	scale, position := t.Drift(base)
	return scale > scaleTol || position > positionTol
}

// Equal reports whether both transforms match within a small epsilon.
func (t Transform) Equal(o Transform) bool {
	return t.Scale.ApproxEqual(o.Scale) &&
		t.Position.ApproxEqual(o.Position) &&
		t.Anchor.ApproxEqual(o.Anchor)
}
