package rig

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/lipsync/internal/scheduler"
)

// bareModel exposes only the mandatory Model methods, like an older rig.
type bareModel struct {
	inner *MemoryModel
}

func (b bareModel) ParameterIndex(name string) (int, bool)     { return b.inner.ParameterIndex(name) }
func (b bareModel) SetParameterValue(index int, value float64) { b.inner.SetParameterValue(index, value) }
func (b bareModel) Transform() Transform                       { return b.inner.Transform() }
func (b bareModel) SetTransform(t Transform)                   { b.inner.SetTransform(t) }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestArbiter(t *testing.T, model Model) (*Arbiter, *scheduler.Scheduler, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	sched := scheduler.New(zerolog.Nop())
	a := NewArbiter(model, NewRegistry(), sched, DefaultProtectionConfig(), zerolog.Nop(), WithClock(clock.Now))
	return a, sched, clock
}

func value(t *testing.T, m *MemoryModel, id ParameterID) float64 {
	t.Helper()
	v, ok := m.Value(string(id))
	require.True(t, ok, "model has %s", id)
	return v
}

func TestArbiter_ApplyWritesAndClamps(t *testing.T) {
	model := NewMemoryModel(StandardSpecs()...)
	a, _, _ := newTestArbiter(t, model)

	res := a.Apply(Params{ParamMouthOpenY: 1.7, ParamAngleX: -12}, SourceUser)

	assert.Equal(t, ApplyResult{Written: 2}, res)
	assert.Equal(t, 1.0, value(t, model, ParamMouthOpenY), "clamped to the model maximum")
	assert.Equal(t, -12.0, value(t, model, ParamAngleX))
}

func TestArbiter_ModelWithoutRangesSkipsClamping(t *testing.T) {
	inner := NewMemoryModel(StandardSpecs()...)
	a, _, _ := newTestArbiter(t, bareModel{inner: inner})

	assert.Nil(t, a.Capabilities().Ranges)
	res := a.Apply(Params{ParamMouthOpenY: 1.7}, SourceLipSync)

	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1.7, value(t, inner, ParamMouthOpenY))

	_, ok := a.DefaultValue(ParamMouthOpenY)
	assert.False(t, ok)
}

func TestArbiter_ResolvesAliases(t *testing.T) {
	model := NewMemoryModel(
		ParameterSpec{ID: "PARAM_MOUTH_OPEN_Y", Min: 0, Max: 1},
		ParameterSpec{ID: "ParamMouthShape", Min: -1, Max: 1},
	)
	a, _, _ := newTestArbiter(t, model)

	res := a.Apply(Params{ParamMouthOpenY: 0.6, ParamMouthForm: -0.4}, SourceLipSync)

	assert.Equal(t, 2, res.Written)
	v, _ := model.Value("PARAM_MOUTH_OPEN_Y")
	assert.Equal(t, 0.6, v)
	v, _ = model.Value("ParamMouthShape")
	assert.Equal(t, -0.4, v)
}

func TestArbiter_MissingParameterIsSkipped(t *testing.T) {
	model := NewMemoryModel(ParameterSpec{ID: string(ParamMouthOpenY), Max: 1})
	a, _, _ := newTestArbiter(t, model)

	for i := 0; i < 3; i++ {
		res := a.Apply(Params{ParamMouthOpenY: 0.5, ParamHairFront: 0.3}, SourceIdle)
		assert.Equal(t, ApplyResult{Written: 1, Missing: 1}, res)
	}
}

func TestArbiter_UnknownIDsDoNotGrowCaches(t *testing.T) {
	model := NewMemoryModel(StandardSpecs()...)
	a, _, _ := newTestArbiter(t, model)
	registered := len(a.registry.defs)

	for i := 0; i < 2000; i++ {
		res := a.Apply(Params{ParameterID(fmt.Sprintf("Junk%d", i)): 1, ParamMouthOpenY: 0.5}, SourceUser)
		require.Equal(t, ApplyResult{Written: 1, Missing: 1}, res)
	}

	assert.Len(t, a.registry.defs, registered)
	assert.LessOrEqual(t, len(a.indexes), maxUnresolved+1)
	assert.Equal(t, 0.5, value(t, model, ParamMouthOpenY))
}

func TestArbiter_ProtectionFiltersNonLipSyncSources(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		written int
		dropped int
	}{
		{"lipsync passes everything", SourceLipSync, 3, 0},
		{"idle keeps only mouth", SourceIdle, 1, 2},
		{"user keeps only mouth", SourceUser, 1, 2},
		{"system keeps only mouth", SourceSystem, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := NewMemoryModel(StandardSpecs()...)
			a, _, _ := newTestArbiter(t, model)
			a.OpenWindow(false)

			res := a.Apply(Params{ParamMouthOpenY: 0.5, ParamAngleX: 10, ParamEyeLOpen: 0.2}, tt.src)

			assert.Equal(t, tt.written, res.Written)
			assert.Equal(t, tt.dropped, res.Dropped)
			assert.Equal(t, 0.5, value(t, model, ParamMouthOpenY))
		})
	}
}

func TestArbiter_ProtectionInvariant(t *testing.T) {
	model := NewMemoryModel(StandardSpecs()...)
	a, _, _ := newTestArbiter(t, model)
	a.OpenWindow(false)

	rng := rand.New(rand.NewSource(7))
	ids := []ParameterID{ParamMouthOpenY, ParamMouthForm, ParamAngleX, ParamEyeLOpen, ParamBreath, ParamHairSide, "ParamLipWide", "口開き"}
	sources := []Source{SourceLipSync, SourceIdle, SourceUser, SourceSystem}

	for i := 0; i < 500; i++ {
		before := model.Values()
		params := Params{}
		for _, id := range ids {
			if rng.Intn(2) == 0 {
				params[id] = rng.Float64()
			}
		}
		src := sources[rng.Intn(len(sources))]

		a.Apply(params, src)

		if src == SourceLipSync {
			continue
		}
		for name, v := range model.Values() {
			if a.Registry().IsMouth(ParameterID(name)) {
				continue
			}
			assert.Equal(t, before[name], v, "%s changed by %s", name, src)
		}
	}
}

func TestArbiter_MonitorRevertsDrift(t *testing.T) {
	model := NewMemoryModel(StandardSpecs()...)
	original := Transform{Scale: mgl64.Vec2{0.8, 0.8}, Position: mgl64.Vec2{400, 300}, Anchor: mgl64.Vec2{0.5, 0.5}}
	model.SetTransform(original)

	a, sched, clock := newTestArbiter(t, model)
	a.OpenWindow(false)

	// an idle source bumps scale by +50%
	drifted := original
	drifted.Scale = original.Scale.Mul(1.5)
	model.SetTransform(drifted)

	clock.Advance(16 * time.Millisecond)
	sched.Tick(clock.Now())

	assert.True(t, model.Transform().Equal(original))
}

func TestArbiter_MonitorToleratesSmallDrift(t *testing.T) {
	model := NewMemoryModel()
	a, sched, clock := newTestArbiter(t, model)
	a.OpenWindow(false)

	nudged := IdentityTransform()
	nudged.Scale = mgl64.Vec2{1.05, 1.05}
	nudged.Position = mgl64.Vec2{30, -40}
	model.SetTransform(nudged)

	clock.Advance(16 * time.Millisecond)
	sched.Tick(clock.Now())

	assert.True(t, model.Transform().Equal(nudged))
}

func TestArbiter_WindowExpires(t *testing.T) {
	model := NewMemoryModel(StandardSpecs()...)
	a, sched, clock := newTestArbiter(t, model)
	a.OpenWindow(false)
	require.Equal(t, 1, sched.Len())

	clock.Advance(100 * time.Millisecond)
	sched.Tick(clock.Now())
	assert.True(t, a.WindowActive())

	clock.Advance(150 * time.Millisecond)
	sched.Tick(clock.Now())
	assert.False(t, a.WindowActive())
	assert.Equal(t, 0, sched.Len(), "monitor is cancelled with the window")

	res := a.Apply(Params{ParamAngleX: 5}, SourceIdle)
	assert.Equal(t, 1, res.Written)
}

func TestArbiter_ExpiredWindowClosesOnApply(t *testing.T) {
	model := NewMemoryModel(StandardSpecs()...)
	a, sched, clock := newTestArbiter(t, model)
	a.OpenWindow(false)

	clock.Advance(time.Second)
	res := a.Apply(Params{ParamAngleX: 5}, SourceIdle)

	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 0, sched.Len())
}

func TestArbiter_RestoreOnClose(t *testing.T) {
	model := NewMemoryModel()
	a, _, _ := newTestArbiter(t, model)
	a.OpenWindow(true)

	moved := IdentityTransform()
	moved.Position = mgl64.Vec2{10, 10}
	model.SetTransform(moved)

	require.True(t, a.CloseWindow())
	assert.True(t, model.Transform().Equal(IdentityTransform()))
	assert.False(t, a.CloseWindow(), "closing twice is a no-op")
}

func TestArbiter_ReopenKeepsBaseline(t *testing.T) {
	model := NewMemoryModel()
	a, sched, clock := newTestArbiter(t, model)
	a.OpenWindow(false)

	clock.Advance(150 * time.Millisecond)
	a.OpenWindow(false)
	assert.Equal(t, 1, sched.Len())

	clock.Advance(150 * time.Millisecond)
	assert.True(t, a.WindowActive(), "reopening restarts the lifetime")

	w, ok := a.Window()
	require.True(t, ok)
	assert.True(t, w.Baseline.Equal(IdentityTransform()))
}

func TestArbiter_PhysicsCapability(t *testing.T) {
	model := NewMemoryModel(StandardSpecs()...)
	a, _, _ := newTestArbiter(t, model)

	require.True(t, a.SetPhysics([]ParameterID{ParamHairFront}, false))
	assert.False(t, model.PhysicsEnabled(ParamHairFront))

	bare, _, _ := newTestArbiter(t, bareModel{inner: model})
	assert.False(t, bare.SetPhysics([]ParameterID{ParamHairFront}, true))
}
