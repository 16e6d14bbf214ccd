package usecase

import (
	"math"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/teamname"
)

const (
	DefaultKickoffTolerance = 5 * time.Minute
	// maxZoneOffsetHours bounds the whole-hour shift accepted as a time zone mislabel.
	maxZoneOffsetHours = 14
)

type normalizedEvent struct {
	event SecondaryEvent
	home  []string
	away  []string
}

func normalizeEvents(events []SecondaryEvent) []normalizedEvent {
	out := make([]normalizedEvent, 0, len(events))
	for _, ev := range events {
		if ev.ID <= 0 {
			continue
		}
		home := teamname.Variants(ev.HomeNames...)
		away := teamname.Variants(ev.AwayNames...)
		if len(home) == 0 || len(away) == 0 {
			continue
		}
		out = append(out, normalizedEvent{event: ev, home: home, away: away})
	}
	return out
}

// MatchByTeams is the first pass: both teams must agree with the event's
// two sides, in either order.
func MatchByTeams(m match.Match, events []SecondaryEvent) (SecondaryEvent, bool) {
	return matchByTeams(m, normalizeEvents(events))
}

func matchByTeams(m match.Match, events []normalizedEvent) (SecondaryEvent, bool) {
	home, away := teamname.Normalize(m.HomeTeam), teamname.Normalize(m.AwayTeam)
	if home == "" || away == "" {
		return SecondaryEvent{}, false
	}
	for _, ev := range events {
		direct := teamname.AgreesWithAny(home, ev.home) && teamname.AgreesWithAny(away, ev.away)
		swapped := teamname.AgreesWithAny(home, ev.away) && teamname.AgreesWithAny(away, ev.home)
		if direct || swapped {
			return ev.event, true
		}
	}
	return SecondaryEvent{}, false
}

// MatchByTeamAndKickoff is the second pass: one team agreeing with either
// side is enough when the kickoff times agree.
func MatchByTeamAndKickoff(m match.Match, events []SecondaryEvent, tolerance time.Duration) (SecondaryEvent, bool) {
	return matchByTeamAndKickoff(m, normalizeEvents(events), tolerance)
}

func matchByTeamAndKickoff(m match.Match, events []normalizedEvent, tolerance time.Duration) (SecondaryEvent, bool) {
	if m.KickoffAt.IsZero() {
		return SecondaryEvent{}, false
	}
	home, away := teamname.Normalize(m.HomeTeam), teamname.Normalize(m.AwayTeam)
	if home == "" && away == "" {
		return SecondaryEvent{}, false
	}
	for _, ev := range events {
		if ev.event.StartTimestamp <= 0 || !KickoffAgrees(m.KickoffAt, ev.event.StartTime(), tolerance) {
			continue
		}
		sides := append(append([]string(nil), ev.home...), ev.away...)
		if teamname.AgreesWithAny(home, sides) || teamname.AgreesWithAny(away, sides) {
			return ev.event, true
		}
	}
	return SecondaryEvent{}, false
}

// KickoffAgrees accepts an absolute gap within tolerance, or a gap that is a
// whole number of hours (up to 14) off by at most tolerance.
func KickoffAgrees(kickoff, start time.Time, tolerance time.Duration) bool {
	if tolerance <= 0 {
		tolerance = DefaultKickoffTolerance
	}
	diff := math.Abs(kickoff.Sub(start).Minutes())
	tol := tolerance.Minutes()
	if diff <= tol {
		return true
	}
	hours := math.Round(diff / 60)
	if hours > maxZoneOffsetHours {
		return false
	}
	return math.Abs(diff-hours*60) <= tol
}

// ReconcileDate runs both passes over the matches of one kickoff date. Each
// event is attached to at most one match.
func ReconcileDate(matches []match.Match, events []SecondaryEvent, tolerance time.Duration) []Reconciliation {
	normalized := normalizeEvents(events)
	claimed := make(map[int64]struct{}, len(matches))
	available := func() []normalizedEvent {
		out := make([]normalizedEvent, 0, len(normalized))
		for _, ev := range normalized {
			if _, ok := claimed[ev.event.ID]; !ok {
				out = append(out, ev)
			}
		}
		return out
	}

	results := make([]Reconciliation, len(matches))
	for i, m := range matches {
		results[i].Match = m
		if ev, ok := matchByTeams(m, available()); ok {
			results[i].Event = &ev
			results[i].Pass = 1
			claimed[ev.ID] = struct{}{}
		}
	}
	for i, m := range matches {
		if results[i].Event != nil {
			continue
		}
		if ev, ok := matchByTeamAndKickoff(m, available(), tolerance); ok {
			results[i].Event = &ev
			results[i].Pass = 2
			claimed[ev.ID] = struct{}{}
		}
	}
	return results
}

// Reconciliation is the outcome for one match; Event is nil on a miss.
type Reconciliation struct {
	Match match.Match
	Event *SecondaryEvent
	Pass  int
}

// Join returns the metadata persisted for second-pass attachments.
func (r Reconciliation) Join() *match.SecondaryJoin {
	if r.Event == nil || r.Pass != 2 {
		return nil
	}
	return &match.SecondaryJoin{Slug: r.Event.Slug, StartTimestamp: r.Event.StartTimestamp}
}
