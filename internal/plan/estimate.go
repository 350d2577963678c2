package plan

import "strings"

// Session length bounds in minutes. Every subtask duration, whether from
// an override, a cue match or the suggester, is clamped into this range.
const (
	MinBlockMinutes = 15
	MaxBlockMinutes = 120

	// DefaultBlockMinutes is used when a title matches no cue set and no
	// override was supplied.
	DefaultBlockMinutes = 45

	// Deep-work and light-work session lengths.
	deepBlockMinutes  = 60
	lightBlockMinutes = 25
)

// Cue words matched case-insensitively as substrings of the task title.
var (
	deepCues  = []string{"write", "design", "study", "research", "draft", "analyze", "build"}
	lightCues = []string{"email", "call", "review", "read", "plan", "outline", "clean"}
)

// Estimator maps a task title plus an optional override to a session
// duration in minutes. It is a pure value; the zero value uses
// DefaultBlockMinutes for unmatched titles.
type Estimator struct {
	// DefaultMinutes is returned for titles matching no cue set.
	// Zero or negative falls back to DefaultBlockMinutes.
	DefaultMinutes int
}

// NewEstimator returns an Estimator with the given default block length.
func NewEstimator(defaultMinutes int) Estimator {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultBlockMinutes
	}
	return Estimator{DefaultMinutes: defaultMinutes}
}

// Estimate returns the session length in minutes for the given title.
// A positive override wins and is clamped to [MinBlockMinutes,
// MaxBlockMinutes]; zero or negative overrides are treated as absent.
func (e Estimator) Estimate(title string, override int) int {
	if override > 0 {
		return clampMinutes(override)
	}
	t := strings.ToLower(title)
	for _, cue := range deepCues {
		if strings.Contains(t, cue) {
			return deepBlockMinutes
		}
	}
	for _, cue := range lightCues {
		if strings.Contains(t, cue) {
			return lightBlockMinutes
		}
	}
	if e.DefaultMinutes > 0 {
		return e.DefaultMinutes
	}
	return DefaultBlockMinutes
}

// clampMinutes bounds a duration to [MinBlockMinutes, MaxBlockMinutes].
func clampMinutes(m int) int {
	if m < MinBlockMinutes {
		return MinBlockMinutes
	}
	if m > MaxBlockMinutes {
		return MaxBlockMinutes
	}
	return m
}
