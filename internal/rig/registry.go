package rig

import (
	"strings"
	"sync"
)

// Tag classifies a parameter. A parameter may carry several tags.
type Tag uint8

const (
	TagMouth Tag = 1 << iota
	TagEye
	TagHead
	TagBody
	TagHair
	TagBreath
)

// Definition describes one logical parameter.
type Definition struct {
	ID      ParameterID
	Tags    Tag
	Aliases []string
}

var standardDefinitions = []Definition{
	{ID: ParamMouthOpenY, Tags: TagMouth, Aliases: []string{"PARAM_MOUTH_OPEN_Y", "ParamMouthOpen", "MouthOpenY", "ParamMouthA", "PARAM_MOUTH_OPEN"}},
	{ID: ParamMouthForm, Tags: TagMouth, Aliases: []string{"PARAM_MOUTH_FORM", "ParamMouthShape", "MouthForm"}},
	{ID: ParamEyeLOpen, Tags: TagEye, Aliases: []string{"PARAM_EYE_L_OPEN", "EyeLOpen"}},
	{ID: ParamEyeROpen, Tags: TagEye, Aliases: []string{"PARAM_EYE_R_OPEN", "EyeROpen"}},
	{ID: ParamEyeBallX, Tags: TagEye, Aliases: []string{"PARAM_EYE_BALL_X", "EyeBallX"}},
	{ID: ParamEyeBallY, Tags: TagEye, Aliases: []string{"PARAM_EYE_BALL_Y", "EyeBallY"}},
	{ID: ParamAngleX, Tags: TagHead, Aliases: []string{"PARAM_ANGLE_X", "AngleX"}},
	{ID: ParamAngleY, Tags: TagHead, Aliases: []string{"PARAM_ANGLE_Y", "AngleY"}},
	{ID: ParamAngleZ, Tags: TagHead, Aliases: []string{"PARAM_ANGLE_Z", "AngleZ"}},
	{ID: ParamBodyAngleX, Tags: TagBody, Aliases: []string{"PARAM_BODY_ANGLE_X", "BodyAngleX"}},
	{ID: ParamBodyAngleY, Tags: TagBody, Aliases: []string{"PARAM_BODY_ANGLE_Y", "BodyAngleY"}},
	{ID: ParamBodyAngleZ, Tags: TagBody, Aliases: []string{"PARAM_BODY_ANGLE_Z", "BodyAngleZ"}},
	{ID: ParamBreath, Tags: TagBreath, Aliases: []string{"PARAM_BREATH", "Breath"}},
	{ID: ParamHairFront, Tags: TagHair, Aliases: []string{"PARAM_HAIR_FRONT", "HairFront"}},
	{ID: ParamHairSide, Tags: TagHair, Aliases: []string{"PARAM_HAIR_SIDE", "HairSide"}},
	{ID: ParamHairBack, Tags: TagHair, Aliases: []string{"PARAM_HAIR_BACK", "HairBack"}},
}

// ClassifyName derives tags from a parameter name. Any name containing
// "mouth", "lip" (case-insensitive) or 口 is a mouth parameter.
func ClassifyName(name string) Tag {
	lower := strings.ToLower(name)
	var tags Tag
	if strings.Contains(lower, "mouth") || strings.Contains(lower, "lip") || strings.Contains(name, "口") {
		tags |= TagMouth
	}
	if strings.Contains(lower, "eye") {
		tags |= TagEye
	}
	if strings.Contains(lower, "body") {
		tags |= TagBody
	} else if strings.Contains(lower, "angle") {
		tags |= TagHead
	}
	if strings.Contains(lower, "hair") {
		tags |= TagHair
	}
	if strings.Contains(lower, "breath") {
		tags |= TagBreath
	}
	return tags
}

// Registry holds the classification and aliases of every known parameter.
// Unknown ids are classified by ClassifyName on each lookup and are not
// remembered, so arbitrary names from clients cannot grow it.
type Registry struct {
	mu   sync.RWMutex
	defs map[ParameterID]Definition
}

// NewRegistry returns a registry preloaded with the standard Live2D parameters.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[ParameterID]Definition, len(standardDefinitions))}
	for _, def := range standardDefinitions {
		r.Register(def)
	}
	return r
}

// Register adds or replaces a definition. Zero tags are derived from the id.
func (r *Registry) Register(def Definition) {
	if def.Tags == 0 {
		def.Tags = ClassifyName(string(def.ID))
	}
	aliases := make([]string, len(def.Aliases))
	copy(aliases, def.Aliases)
	def.Aliases = aliases

	r.mu.Lock()
	r.defs[def.ID] = def
	r.mu.Unlock()
}

// Lookup returns the definition of id. Ids that were never registered get a
// definition derived from their name.
func (r *Registry) Lookup(id ParameterID) Definition {
	r.mu.RLock()
	def, ok := r.defs[id]
	r.mu.RUnlock()
	if ok {
		return def
	}
	return Definition{ID: id, Tags: ClassifyName(string(id))}
}

// IsMouth reports whether id is a mouth/lip parameter.
func (r *Registry) IsMouth(id ParameterID) bool {
	return r.Lookup(id).Tags&TagMouth != 0
}

// HasTag reports whether id carries tag.
func (r *Registry) HasTag(id ParameterID, tag Tag) bool {
	return r.Lookup(id).Tags&tag != 0
}

// Candidates returns the names to try when resolving id on a model, in order.
func (r *Registry) Candidates(id ParameterID) []string {
	def := r.Lookup(id)
	out := make([]string, 0, 1+len(def.Aliases))
	out = append(out, string(id))
	return append(out, def.Aliases...)
}
