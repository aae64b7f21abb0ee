package vitals

// Level is the severity of a percentile against its thresholds.
type Level int

const (
	LevelGood Level = iota
	LevelNeedsImprovement
	LevelPoor
)

// Classify counts how many thresholds value strictly exceeds. Thresholds
// must be strictly increasing.
func Classify(value float64, thresholds [2]float64) Level {
	level := LevelGood
	for _, t := range thresholds {
		if value > t {
			level++
		}
	}
	return level
}

// LevelStyle is the presentation of a severity level.
type LevelStyle struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
	Tint  string `json:"tint"`
}

// Styles is indexed by Level.
type Styles [3]LevelStyle

// DefaultStyles matches the web.dev palette.
var DefaultStyles = Styles{
	LevelGood: {
		Label: "GOOD",
		Color: "#0CCE6B",
		Icon:  "HARDWARE_AND_SOFTWARE__SOFTWARE__BROWSER__A_CHECKED",
		Tint:  "green",
	},
	LevelNeedsImprovement: {
		Label: "NEEDS IMPROVEMENT",
		Color: "#FFA400",
		Icon:  "HARDWARE_AND_SOFTWARE__SOFTWARE__BROWSER__S_WARNING",
		Tint:  "orange",
	},
	LevelPoor: {
		Label: "POOR",
		Color: "#FF4E42",
		Icon:  "HARDWARE_AND_SOFTWARE__SOFTWARE__BROWSER__S_ERROR",
		Tint:  "red",
	},
}

// For returns the style of l, falling back to the poor style for levels
// outside the table.
func (s Styles) For(l Level) LevelStyle {
	if l < LevelGood || int(l) >= len(s) {
		return s[LevelPoor]
	}
	return s[l]
}

func (l Level) String() string {
	return DefaultStyles.For(l).Label
}
