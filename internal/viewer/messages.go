package viewer

import (
	"github.com/normanking/lipsync/internal/rig"
)

// Message types exchanged with the viewer page.
const (
	TypeModel     = "model"     // viewer -> server: loaded model parameters and transform
	TypeTransform = "transform" // both directions
	TypeParams    = "params"    // both directions: parameter values by name
	TypeBaseIdle  = "base_idle" // viewer -> server: built-in idle motion on/off
	TypePhysics   = "physics"   // server -> viewer: toggle native physics
	TypeEvent     = "event"     // server -> viewer: lifecycle event
	TypeError     = "error"     // server -> viewer
)

// Message is the single JSON envelope used on the socket.
type Message struct {
	Type       string              `json:"type"`
	Parameters []rig.ParameterSpec `json:"parameters,omitempty"`
	Transform  *rig.Transform      `json:"transform,omitempty"`
	Values     map[string]float64  `json:"values,omitempty"`
	Enabled    *bool               `json:"enabled,omitempty"`
	IDs        []string            `json:"ids,omitempty"`
	Event      string              `json:"event,omitempty"`
	Data       map[string]any      `json:"data,omitempty"`
	Error      string              `json:"error,omitempty"`
}
