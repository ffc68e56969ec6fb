// Package rig is the gateway between animation sources and the character model.
//
// Parameters are addressed by ParameterID, a model-agnostic name that the
// Registry classifies (mouth, eye, head...) and maps to known alternate
// spellings. The Arbiter is the only component that writes into a Model; it
// enforces the protection window that keeps lip-sync and the other sources from
// corrupting each other's state.
package rig

import (
	"sort"
)

// ParameterID names a scalar control on the model.
type ParameterID string

// Standard Live2D parameter names.
const (
	ParamMouthOpenY ParameterID = "ParamMouthOpenY"
	ParamMouthForm  ParameterID = "ParamMouthForm"
	ParamEyeLOpen   ParameterID = "ParamEyeLOpen"
	ParamEyeROpen   ParameterID = "ParamEyeROpen"
	ParamEyeBallX   ParameterID = "ParamEyeBallX"
	ParamEyeBallY   ParameterID = "ParamEyeBallY"
	ParamAngleX     ParameterID = "ParamAngleX"
	ParamAngleY     ParameterID = "ParamAngleY"
	ParamAngleZ     ParameterID = "ParamAngleZ"
	ParamBodyAngleX ParameterID = "ParamBodyAngleX"
	ParamBodyAngleY ParameterID = "ParamBodyAngleY"
	ParamBodyAngleZ ParameterID = "ParamBodyAngleZ"
	ParamBreath     ParameterID = "ParamBreath"
	ParamHairFront  ParameterID = "ParamHairFront"
	ParamHairSide   ParameterID = "ParamHairSide"
	ParamHairBack   ParameterID = "ParamHairBack"
)

// Params is a set of parameter values.
type Params map[ParameterID]float64

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge copies every value of other into p, overwriting existing keys.
func (p Params) Merge(other Params) {
	for k, v := range other {
		p[k] = v
	}
}

// Keys returns the parameter ids in lexical order.
func (p Params) Keys() []ParameterID {
	keys := make([]ParameterID, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Lerp interpolates per parameter from a to b. Keys present in only one side
// hold that side's value.
func Lerp(a, b Params, t float64) Params {
	out := make(Params, len(a)+len(b))
	for k, va := range a {
		vb, ok := b[k]
		if !ok {
			out[k] = va
			continue
		}
		switch t {
		case 0:
			out[k] = va
		case 1:
			out[k] = vb
		default:
			out[k] = va + (vb-va)*t
		}
	}
	for k, vb := range b {
		if _, ok := a[k]; !ok {
			out[k] = vb
		}
	}
	return out
}
