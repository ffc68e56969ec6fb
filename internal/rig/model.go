package rig

import (
	"sync"
)

// Model is the output sink: the character whose parameters are animated.
type Model interface {
	ParameterIndex(name string) (int, bool)
	SetParameterValue(index int, value float64)
	Transform() Transform
	SetTransform(t Transform)
}

// ParameterRanges is implemented by models that expose parameter limits.
// Older rigs do not, in which case values are written unclamped.
type ParameterRanges interface {
	ParameterMin(index int) float64
	ParameterMax(index int) float64
	ParameterDefault(index int) float64
}

// PhysicsController is implemented by models with a native physics simulation
// that can be switched off for parameters driven explicitly.
type PhysicsController interface {
	SetPhysicsEnabled(ids []ParameterID, enabled bool)
}

// Flusher is implemented by models that batch writes until Flush.
type Flusher interface {
	Flush()
}

// Capabilities lists the optional interfaces a model supports.
type Capabilities struct {
	Ranges  ParameterRanges
	Physics PhysicsController
	Flusher Flusher
}

// CapabilitiesOf probes m once for every optional interface.
func CapabilitiesOf(m Model) Capabilities {
	var caps Capabilities
	caps.Ranges, _ = m.(ParameterRanges)
	caps.Physics, _ = m.(PhysicsController)
	caps.Flusher, _ = m.(Flusher)
	return caps
}

// ParameterSpec declares one parameter of a MemoryModel.
type ParameterSpec struct {
	ID      string  `json:"id"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// StandardSpecs returns the usual ranges of the standard Live2D parameters.
func StandardSpecs() []ParameterSpec {
	return []ParameterSpec{
		{ID: string(ParamMouthOpenY), Min: 0, Max: 1, Default: 0},
		{ID: string(ParamMouthForm), Min: -1, Max: 1, Default: 0},
		{ID: string(ParamEyeLOpen), Min: 0, Max: 1, Default: 1},
		{ID: string(ParamEyeROpen), Min: 0, Max: 1, Default: 1},
		{ID: string(ParamEyeBallX), Min: -1, Max: 1, Default: 0},
		{ID: string(ParamEyeBallY), Min: -1, Max: 1, Default: 0},
		{ID: string(ParamAngleX), Min: -30, Max: 30, Default: 0},
		{ID: string(ParamAngleY), Min: -30, Max: 30, Default: 0},
		{ID: string(ParamAngleZ), Min: -30, Max: 30, Default: 0},
		{ID: string(ParamBodyAngleX), Min: -10, Max: 10, Default: 0},
		{ID: string(ParamBodyAngleY), Min: -10, Max: 10, Default: 0},
		{ID: string(ParamBodyAngleZ), Min: -10, Max: 10, Default: 0},
		{ID: string(ParamBreath), Min: 0, Max: 1, Default: 0},
		{ID: string(ParamHairFront), Min: -1, Max: 1, Default: 0},
		{ID: string(ParamHairSide), Min: -1, Max: 1, Default: 0},
		{ID: string(ParamHairBack), Min: -1, Max: 1, Default: 0},
	}
}

// MemoryModel is an in-process Model used headless and in tests.
type MemoryModel struct {
	mu        sync.RWMutex
	index     map[string]int
	specs     []ParameterSpec
	values    []float64
	transform Transform
	noPhysics map[ParameterID]bool
}

// NewMemoryModel creates a model holding the given parameters at their defaults.
func NewMemoryModel(specs ...ParameterSpec) *MemoryModel {
	m := &MemoryModel{
		index:     make(map[string]int, len(specs)),
		specs:     make([]ParameterSpec, len(specs)),
		values:    make([]float64, len(specs)),
		transform: IdentityTransform(),
		noPhysics: make(map[ParameterID]bool),
	}
	copy(m.specs, specs)
	for i, spec := range specs {
		m.index[spec.ID] = i
		m.values[i] = spec.Default
	}
	return m
}

func (m *MemoryModel) ParameterIndex(name string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[name]
	return i, ok
}

func (m *MemoryModel) SetParameterValue(index int, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index >= 0 && index < len(m.values) {
		m.values[index] = value
	}
}

func (m *MemoryModel) Transform() Transform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transform
}

func (m *MemoryModel) SetTransform(t Transform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transform = t
}

func (m *MemoryModel) ParameterMin(index int) float64     { return m.spec(index).Min }
func (m *MemoryModel) ParameterMax(index int) float64     { return m.spec(index).Max }
func (m *MemoryModel) ParameterDefault(index int) float64 { return m.spec(index).Default }

func (m *MemoryModel) spec(index int) ParameterSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.specs) {
		return ParameterSpec{}
	}
	return m.specs[index]
}

func (m *MemoryModel) SetPhysicsEnabled(ids []ParameterID, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if enabled {
			delete(m.noPhysics, id)
		} else {
			m.noPhysics[id] = true
		}
	}
}

// PhysicsEnabled reports whether native physics drives id.
func (m *MemoryModel) PhysicsEnabled(id ParameterID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.noPhysics[id]
}

// Value returns the current value of the named parameter.
func (m *MemoryModel) Value(name string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[name]
	if !ok {
		return 0, false
	}
	return m.values[i], true
}

// Values returns a snapshot of every parameter value by name.
func (m *MemoryModel) Values() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.values))
	for name, i := range m.index {
		out[name] = m.values[i]
	}
	return out
}
