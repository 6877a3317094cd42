package model

import "slices"

// SceneType classifies a scene within a script.
type SceneType string

// Scene types produced by the script builder.
const (
	SceneIntro      SceneType = "intro"
	ScenePremise    SceneType = "premise"
	SceneGathering  SceneType = "gathering"
	SceneDebate     SceneType = "debate"
	SceneResolution SceneType = "resolution"
	SceneOutro      SceneType = "outro"
)

// Emphasis tells a renderer how to frame a scene.
type Emphasis string

// Emphasis modes.
const (
	EmphasisNone  Emphasis = "none"
	EmphasisFocus Emphasis = "focus"
	EmphasisPulse Emphasis = "pulse"
	EmphasisWide  Emphasis = "wide"
)

// Caption is timed text within a scene. Start and Duration are seconds
// relative to the scene start.
type Caption struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// Contains reports whether t falls in [Start, Start+Duration).
func (c Caption) Contains(t float64) bool {
	return t >= c.Start && t < c.Start+c.Duration
}

// SceneDescriptor is one fixed-duration unit of a playback script.
type SceneDescriptor struct {
	ID         string            `json:"id"`
	Type       SceneType         `json:"type"`
	Title      string            `json:"title"`
	Subtitle   string            `json:"subtitle,omitempty"`
	Duration   float64           `json:"duration"` // seconds, > 0
	Emphasis   Emphasis          `json:"emphasis"`
	Atmosphere *GlobalAtmosphere `json:"atmosphere,omitempty"`
	Captions   []Caption         `json:"captions"`
}

// Clone returns a copy sharing no mutable state with d.
func (d SceneDescriptor) Clone() SceneDescriptor {
	d.Captions = slices.Clone(d.Captions)
	if d.Atmosphere != nil {
		a := *d.Atmosphere
		d.Atmosphere = &a
	}
	return d
}

// ActiveCaption returns the first caption containing t.
func (d SceneDescriptor) ActiveCaption(t float64) (Caption, bool) {
	for _, c := range d.Captions {
		if c.Contains(t) {
			return c, true
		}
	}
	return Caption{}, false
}

// PlayerStatus is the lifecycle state of a scene player.
type PlayerStatus string

// Player statuses.
const (
	StatusIdle     PlayerStatus = "idle"
	StatusPlaying  PlayerStatus = "playing"
	StatusPaused   PlayerStatus = "paused"
	StatusComplete PlayerStatus = "complete"
)

// PlayerState is an immutable snapshot of a scene player.
type PlayerState struct {
	Status        PlayerStatus `json:"status"`
	SceneIndex    int          `json:"scene_index"`
	SceneElapsed  float64      `json:"scene_elapsed"` // seconds into the current scene
	TotalElapsed  float64      `json:"total_elapsed"` // seconds into the script
	TotalDuration float64      `json:"total_duration"`
	Complete      bool         `json:"complete"`
	ActiveCaption string       `json:"active_caption,omitempty"` // empty when no caption is active
}
