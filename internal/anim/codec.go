package anim

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/normanking/lipsync/internal/phoneme"
	"github.com/normanking/lipsync/internal/rig"
)

// Document is a decoded input file: either a dense clip or a vowel-frame
// utterance. Exactly one of the fields is set.
type Document struct {
	Clip      *Clip
	Utterance *phoneme.Utterance
}

type clipMetadata struct {
	Name     string  `yaml:"name" json:"name"`
	Duration float64 `yaml:"duration" json:"duration"`
}

type keyframeDoc struct {
	Time       float64            `yaml:"time" json:"time"`
	Parameters map[string]float64 `yaml:"parameters" json:"parameters"`
	Easing     string             `yaml:"easing,omitempty" json:"easing,omitempty"`
}

type document struct {
	Metadata  *clipMetadata `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Loop      bool          `yaml:"loop" json:"loop"`
	Keyframes []keyframeDoc `yaml:"keyframes,omitempty" json:"keyframes,omitempty"`

	Text          string          `yaml:"text,omitempty" json:"text,omitempty"`
	TotalDuration float64         `yaml:"total_duration,omitempty" json:"total_duration,omitempty"`
	VowelFrames   []phoneme.Frame `yaml:"vowel_frames,omitempty" json:"vowel_frames,omitempty"`
}

// ParseDocument decodes YAML or JSON in either accepted shape. Dense clips are
// validated here.
func ParseDocument(data []byte) (Document, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// tab-indented JSON is not valid YAML
		doc = document{}
		if jerr := json.Unmarshal(data, &doc); jerr != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrMalformedClip, err)
		}
	}

	switch {
	case len(doc.Keyframes) > 0 || doc.Metadata != nil:
		keyframes := make([]Keyframe, len(doc.Keyframes))
		for i, kf := range doc.Keyframes {
			params := make(rig.Params, len(kf.Parameters))
			for id, v := range kf.Parameters {
				params[rig.ParameterID(id)] = v
			}
			keyframes[i] = Keyframe{Time: kf.Time, Parameters: params, Easing: ParseEasing(kf.Easing)}
		}
		var name string
		var duration float64
		if doc.Metadata != nil {
			name, duration = doc.Metadata.Name, doc.Metadata.Duration
		}
		clip, err := NewClip(name, duration, doc.Loop, keyframes)
		if err != nil {
			return Document{}, err
		}
		return Document{Clip: clip}, nil

	case len(doc.VowelFrames) > 0:
		return Document{Utterance: &phoneme.Utterance{
			Text:          doc.Text,
			TotalDuration: doc.TotalDuration,
			Frames:        doc.VowelFrames,
		}}, nil

	default:
		return Document{}, fmt.Errorf("%w: neither keyframes nor vowel_frames present", ErrMalformedClip)
	}
}

// Decode returns a playable clip for either shape, resampling utterances at
// fps through table without further preprocessing.
func Decode(data []byte, table *phoneme.Table, fps int) (*Clip, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	if doc.Clip != nil {
		return doc.Clip, nil
	}
	return GenerateSequence(*doc.Utterance, fps, table)
}

// Encode writes c in the dense keyframe shape.
func Encode(c *Clip) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	doc := document{
		Metadata:  &clipMetadata{Name: c.Name, Duration: c.Duration},
		Loop:      c.Loop,
		Keyframes: make([]keyframeDoc, len(c.Keyframes)),
	}
	for i, kf := range c.Keyframes {
		params := make(map[string]float64, len(kf.Parameters))
		for id, v := range kf.Parameters {
			params[string(id)] = v
		}
		easing := kf.Easing
		if easing == "" {
			easing = EaseLinear
		}
		doc.Keyframes[i] = keyframeDoc{Time: kf.Time, Parameters: params, Easing: string(easing)}
	}
	return yaml.Marshal(doc)
}
