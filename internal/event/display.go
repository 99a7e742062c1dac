package event

import (
	"fmt"
	"sort"

	"horizoncal/internal/model"
)

// DefaultColor is used when no category sets a color.
const DefaultColor = "#146792"

const strikethroughClass = "hcevt-strikethrough"

// opacity thresholds, highest first; anything lower gets hcevt-opa10.
var opacitySteps = []int{80, 70, 60, 50, 40, 30, 20}

// CategoryStyle is the look a category lends to its events. Nil pointers and
// empty strings leave the property to lower-priority categories.
type CategoryStyle struct {
	Color          string `yaml:"color,omitempty" json:"color,omitempty"`
	Opacity        *int   `yaml:"opacity,omitempty" json:"opacity,omitempty"`
	EffectPriority int    `yaml:"effectPriority,omitempty" json:"effectPriority,omitempty"`
	Strikethrough  *bool  `yaml:"strikethrough,omitempty" json:"strikethrough,omitempty"`
}

// Styles maps a bare category name to its style.
type Styles map[string]CategoryStyle

// Resolve merges the styles of cats in ascending effect priority, so the
// highest priority category wins each property it sets.
func (s Styles) Resolve(cats []string) CategoryStyle {
	ordered := append([]string(nil), cats...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return s[ordered[i]].EffectPriority < s[ordered[j]].EffectPriority
	})

	out := CategoryStyle{Color: DefaultColor}
	for _, c := range ordered {
		st, ok := s[c]
		if !ok {
			continue
		}
		if st.Color != "" {
			out.Color = st.Color
		}
		if st.Opacity != nil {
			out.Opacity = st.Opacity
		}
		if st.Strikethrough != nil {
			out.Strikethrough = st.Strikethrough
		}
		if st.EffectPriority > out.EffectPriority {
			out.EffectPriority = st.EffectPriority
		}
	}
	return out
}

// ClassNames are the widget CSS classes for the style.
func (c CategoryStyle) ClassNames() []string {
	var classes []string
	if c.Opacity != nil && *c.Opacity > 0 {
		classes = append(classes, opacityClass(*c.Opacity))
	}
	if c.Strikethrough != nil && *c.Strikethrough {
		classes = append(classes, strikethroughClass)
	}
	return classes
}

func opacityClass(pct int) string {
	for _, step := range opacitySteps {
		if pct >= step {
			return fmt.Sprintf("hcevt-opa%d", step)
		}
	}
	return "hcevt-opa10"
}

// ToDisplay converts a persisted, valid event into the widget shape.
func (e *Event) ToDisplay(styles Styles) (model.DisplayEvent, error) {
	if e.LoadedFrom == "" {
		return model.DisplayEvent{}, ErrNotPersisted
	}
	if err := e.Validate(); err != nil {
		return model.DisplayEvent{}, fmt.Errorf("event %s: %w", e.LoadedFrom, err)
	}
	start, err := e.StartInstant()
	if err != nil {
		return model.DisplayEvent{}, err
	}
	end, err := e.EndInstant()
	if err != nil {
		return model.DisplayEvent{}, err
	}
	title, _ := e.Title.Primitive()
	cats, _ := e.Categories.StructuredOK()
	style := styles.Resolve(cats)

	return model.DisplayEvent{
		ID:         e.LoadedFrom,
		Title:      title,
		Start:      start,
		End:        end,
		Color:      style.Color,
		ClassNames: style.ClassNames(),
	}, nil
}
