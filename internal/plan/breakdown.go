package plan

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/timeboxd/timeboxd/pkg/logger"
)

// MaxSubtasks bounds how many sessions a single task may be split into,
// both by the rule-based splitter and by the suggester.
const MaxSubtasks = 6

// splitPattern separates a title into pieces on the whole word "and"
// (case-insensitive) or on ';'/':' characters.
var splitPattern = regexp.MustCompile(`(?i)\band\b|[;:]`)

// pieceCutset strips surrounding whitespace and leading bullet/dash
// punctuation from split pieces.
const pieceCutset = " \t–—•-"

// SuggestRequest is the payload handed to an external suggester.
type SuggestRequest struct {
	Title           string
	NeedsBreakdown  bool
	OverrideMinutes int
	Notes           string
}

// Suggester proposes a subtask breakdown for a task. Implementations are
// free to fail; the Breakdown policy treats every failure as a signal to
// use the deterministic rule-based result instead.
type Suggester interface {
	Suggest(ctx context.Context, req SuggestRequest) ([]Subtask, error)
}

// Breakdown decides whether and how a task splits into ordered subtasks.
// When Suggester is nil the policy is fully deterministic. The policy
// never fails and never returns an empty list.
type Breakdown struct {
	Estimator Estimator
	Suggester Suggester
	Log       logger.Logger
}

// Subtasks returns the ordered work sessions for a task. The same
// override applies to every rule-based piece; suggester output is
// sanitized (clamped minutes, override applied, blank titles replaced)
// and collapsed to the single longest item when no breakdown was asked
// for. Any suggester failure falls back silently to the rule-based path.
func (b *Breakdown) Subtasks(ctx context.Context, title string, needsBreakdown bool, override int, notes string) []Subtask {
	if b.Suggester == nil {
		return b.fallback(title, needsBreakdown, override)
	}
	subs, err := b.Suggester.Suggest(ctx, SuggestRequest{
		Title:           title,
		NeedsBreakdown:  needsBreakdown,
		OverrideMinutes: override,
		Notes:           notes,
	})
	if err != nil || len(subs) == 0 {
		if b.Log != nil && err != nil {
			b.Log.Warning("suggester failed for %q, using rule-based breakdown: %v", title, err)
		}
		return b.fallback(title, needsBreakdown, override)
	}
	return sanitizeSuggestion(subs, title, needsBreakdown, override)
}

// fallback is the deterministic rule-based breakdown.
func (b *Breakdown) fallback(title string, needsBreakdown bool, override int) []Subtask {
	if !needsBreakdown {
		return []Subtask{{Title: title, Minutes: b.Estimator.Estimate(title, override)}}
	}
	pieces := splitTitle(title)
	if len(pieces) == 0 {
		pieces = []string{title}
	}
	subs := make([]Subtask, 0, len(pieces))
	for _, p := range pieces {
		subs = append(subs, Subtask{Title: p, Minutes: b.Estimator.Estimate(p, override)})
	}
	return subs
}

// splitTitle cuts a title into at most MaxSubtasks trimmed, non-empty
// pieces. Returns nil when nothing usable remains.
func splitTitle(title string) []string {
	var pieces []string
	for _, raw := range splitPattern.Split(title, -1) {
		p := strings.Trim(raw, pieceCutset)
		if p == "" {
			continue
		}
		pieces = append(pieces, p)
		if len(pieces) == MaxSubtasks {
			break
		}
	}
	return pieces
}

// sanitizeSuggestion enforces the policy's bounds on suggester output:
// at most MaxSubtasks items, minutes clamped (or replaced by the user
// override), blank titles replaced by the task title, and a collapse to
// exactly the longest item when the user did not ask for a breakdown.
func sanitizeSuggestion(subs []Subtask, title string, needsBreakdown bool, override int) []Subtask {
	if len(subs) > MaxSubtasks {
		subs = subs[:MaxSubtasks]
	}
	out := make([]Subtask, 0, len(subs))
	for _, s := range subs {
		t := strings.TrimSpace(s.Title)
		if t == "" {
			t = title
		}
		minutes := s.Minutes
		if override > 0 {
			minutes = override
		}
		out = append(out, Subtask{Title: t, Minutes: clampMinutes(minutes)})
	}
	if !needsBreakdown && len(out) > 1 {
		// The user did not ask for a split: keep the single longest
		// suggested session, not the first.
		sort.SliceStable(out, func(i, j int) bool { return out[i].Minutes > out[j].Minutes })
		out = out[:1]
	}
	return out
}
