package match

import "testing"

func TestStatus_CanAdvanceTo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusInProgress, true},
		{StatusScheduled, StatusFinished, true},
		{StatusInProgress, StatusFinished, true},
		{StatusInProgress, StatusScheduled, false},
		{StatusFinished, StatusInProgress, false},
		{StatusFinished, StatusScheduled, false},
		{StatusFinished, StatusFinished, false},
		{Status("unknown"), StatusFinished, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got=%v want=%v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseOutcome(t *testing.T) {
	t.Parallel()

	cases := map[string]Outcome{
		"1":   OutcomeHome,
		" x ": OutcomeDraw,
		"1x":  OutcomeHomeOrDraw,
		"x1":  OutcomeHomeOrDraw,
		"2X":  OutcomeDrawOrAway,
		"2":   OutcomeAway,
	}
	for raw, want := range cases {
		got, ok := ParseOutcome(raw)
		if !ok || got != want {
			t.Fatalf("parse %q: got=%q ok=%v want=%q", raw, got, ok, want)
		}
	}
	if _, ok := ParseOutcome("12"); ok {
		t.Fatalf("expected 12 to be rejected")
	}
}

func TestMatch_FavoriteLosingAndWon(t *testing.T) {
	t.Parallel()

	home := true
	m := Match{FavoriteTeam: "Arsenal", FavoriteIsHome: &home}

	if !m.FavoriteLosing(Score{Home: 0, Away: 1}) {
		t.Fatalf("expected home favorite trailing 0-1 to be losing")
	}
	if m.FavoriteLosing(Score{Home: 1, Away: 1}) {
		t.Fatalf("draw is not losing")
	}
	if won := m.FavoriteWonWith(Score{Home: 1, Away: 1}); won == nil || *won {
		t.Fatalf("draw must count as not won, got=%v", won)
	}

	none := Match{FavoriteTeam: NoFavorite}
	if none.FavoriteLosing(Score{Home: 0, Away: 3}) {
		t.Fatalf("match without favorite can not be losing")
	}
	if none.FavoriteWonWith(Score{Home: 2, Away: 0}) != nil {
		t.Fatalf("expected nil favorite_won without favorite")
	}
}
