package anim

import (
	"strings"
)

// Easing remaps interpolation progress in [0,1].
type Easing string

const (
	EaseLinear Easing = "linear"
	EaseIn     Easing = "ease_in"
	EaseOut    Easing = "ease_out"
	EaseInOut  Easing = "ease_in_out"
)

// ParseEasing accepts snake, kebab and camel case spellings. Unknown names
// are linear.
func ParseEasing(name string) Easing {
	n := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(name))
	switch n {
	case "easein":
		return EaseIn
	case "easeout":
		return EaseOut
	case "easeinout":
		return EaseInOut
	default:
		return EaseLinear
	}
}

// Apply evaluates the curve at t.
func (e Easing) Apply(t float64) float64 {
	switch ParseEasing(string(e)) {
	case EaseIn:
		return t * t
	case EaseOut:
		return t * (2 - t)
	case EaseInOut:
		if t < 0.5 {
			return 2 * t * t
		}
		u := -2*t + 2
		return 1 - u*u/2
	default:
		return t
	}
}
