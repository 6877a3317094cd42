// Package script assembles the scene sequence played by the scene player.
package script

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/pulse/internal/domain/model"
)

const defaultTitle = "Untitled session"

// Input is the minimal data a script is built from.
type Input struct {
	ID    string `toml:"id"`
	Title string `toml:"title"`
	Goal  string `toml:"goal"`
}

type template struct {
	kind     model.SceneType
	title    string
	subtitle string
	duration float64
	emphasis model.Emphasis
	mood     *model.GlobalAtmosphere
	captions []model.Caption
}

// Build returns the templated scene sequence for in. The premise scene is
// only included when a goal is given. A missing ID is replaced by a name
// based uuid of the title and goal, so equal inputs build equal scripts.
func Build(in Input) []model.SceneDescriptor {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = defaultTitle
	}
	goal := strings.TrimSpace(in.Goal)
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(title+"\x00"+goal)).String()
	}

	templates := make([]template, 0, 6)
	templates = append(templates, template{
		kind:     model.SceneIntro,
		title:    title,
		subtitle: "A live session",
		duration: 6,
		emphasis: model.EmphasisWide,
		captions: []model.Caption{
			{Start: 0.5, Duration: 4, Text: fmt.Sprintf("Welcome to %s", title)},
		},
	})
	if goal != "" {
		templates = append(templates, template{
			kind:     model.ScenePremise,
			title:    "The premise",
			subtitle: goal,
			duration: 8,
			emphasis: model.EmphasisFocus,
			captions: []model.Caption{
				{Start: 0.5, Duration: 3.5, Text: "Everyone came here for one reason"},
				{Start: 4, Duration: 3.5, Text: goal},
			},
		})
	}
	templates = append(templates,
		template{
			kind:     model.SceneGathering,
			title:    "The gathering",
			subtitle: "Participants take their places",
			duration: 10,
			emphasis: model.EmphasisWide,
			mood:     &model.GlobalAtmosphere{Cohesion: 0.4, Tension: 0.1, Energy: 0.3},
			captions: []model.Caption{
				{Start: 1, Duration: 4, Text: "One by one, they arrive"},
				{Start: 5.5, Duration: 4, Text: "Nobody knows how this ends"},
			},
		},
		template{
			kind:     model.SceneDebate,
			title:    "The debate",
			subtitle: "Positions collide",
			duration: 14,
			emphasis: model.EmphasisPulse,
			mood:     &model.GlobalAtmosphere{Cohesion: 0.2, Tension: 0.8, Energy: 0.9},
			captions: []model.Caption{
				{Start: 1, Duration: 4, Text: "Ideas are put on the table"},
				{Start: 5.5, Duration: 4, Text: "Not everyone agrees"},
				{Start: 10, Duration: 3.5, Text: "The room heats up"},
			},
		},
		template{
			kind:     model.SceneResolution,
			title:    "The resolution",
			subtitle: "Common ground",
			duration: 10,
			emphasis: model.EmphasisFocus,
			mood:     &model.GlobalAtmosphere{Cohesion: 0.9, Tension: 0.2, Energy: 0.5},
			captions: []model.Caption{
				{Start: 1, Duration: 4, Text: "A way forward appears"},
				{Start: 5.5, Duration: 4, Text: resolutionLine(goal)},
			},
		},
		template{
			kind:     model.SceneOutro,
			title:    title,
			subtitle: "Fin",
			duration: 6,
			emphasis: model.EmphasisNone,
			captions: []model.Caption{
				{Start: 0.5, Duration: 4.5, Text: "Thanks for watching"},
			},
		},
	)

	scenes := make([]model.SceneDescriptor, 0, len(templates))
	for _, t := range templates {
		scenes = append(scenes, model.SceneDescriptor{
			ID:         fmt.Sprintf("%s-%s", id, t.kind),
			Type:       t.kind,
			Title:      t.title,
			Subtitle:   t.subtitle,
			Duration:   t.duration,
			Emphasis:   t.emphasis,
			Atmosphere: t.mood,
			Captions:   t.captions,
		})
	}
	return scenes
}

// TotalDuration sums the durations of scenes in seconds.
func TotalDuration(scenes []model.SceneDescriptor) float64 {
	var total float64
	for _, s := range scenes {
		total += s.Duration
	}
	return total
}

func resolutionLine(goal string) string {
	if goal == "" {
		return "Something has changed"
	}
	return fmt.Sprintf("Closer to: %s", goal)
}
