package teamname

import (
	"testing"

	"golang.org/x/text/unicode/norm"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"FC København":             "kobenhavn",
		"Bayern München":           "bayernmunchen",
		"1. FC Köln":               "koln",
		"AS Roma":                  "roma",
		"Atlético Madrid":          "atleticomadrid",
		"Paris Saint-Germain":      "parissaintgermain",
		"Brighton & Hove Albion":   "brightonhovealbion",
		"  Bodø/Glimt ":            "bodoglimt",
		"Malmö FF":                 "malmoff",
		"Beşiktaş":                 "besiktas",
		"The Strongest":            "strongest",
		"VVV-Venlo":                "venlo",
		"":                         "",
		"FC":                       "fc",
		"Borussia Mönchengladbach": "borussiamonchengladbach",
	}

	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"FC København", "1. FC Köln", "Real Sociedad de Fútbol", "ŁKS Łódź",
		"Olympiacos Πειραιάς", "Зенит", "R. Charleroi S.C.", "sk sk sk Slavia",
		"Ørn-Horten", "İstanbul Başakşehir", "  ", "AC", "vvv. ", "Ñublense",
		"Ǿrsta", "Ǽgir FC", "Ǻlesund",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize_FoldsLettersBehindMarks(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Ǿrsta":   "orsta",
		"Ǽgir FC": "aegirfc",
		"ǾRN":     "orn",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNormalize_ComposedAndDecomposedAgree(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"Ålesund", "Bodø/Glimt", "Mjøndalen", "Malmö FF", "Atlético Madrid"} {
		composed := Normalize(norm.NFC.String(name))
		decomposed := Normalize(norm.NFD.String(name))
		if composed != decomposed {
			t.Errorf("%q: composed %q, decomposed %q", name, composed, decomposed)
		}
	}
}

func FuzzNormalize_Idempotent(f *testing.F) {
	for _, seed := range []string{"FC København", "1. FC Köln", "AFC Bournemouth", "ß-Ø", "Ǿrsta", "Ǽgir FC"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	})
}

func TestVariants_DeduplicatesNormalizedForms(t *testing.T) {
	t.Parallel()

	got := Variants("Manchester United", "Man United", "manchester-united", "", "MAN UNITED")
	want := []string{"manchesterunited", "manunited"}
	if len(got) != len(want) {
		t.Fatalf("unexpected variants %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("variant[%d]=%q want %q", i, got[i], want[i])
		}
	}
}

func TestAgree(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want bool
	}{
		{"arsenal", "arsenal", true},
		{"tottenhamhotspur", "tottenham", true},
		{"psg", "parissaintgermain", false},
		{"ac", "acmilan", false},
		{"", "", false},
		{"inter", "intermilan", true},
	}
	for _, tc := range cases {
		if got := Agree(tc.a, tc.b); got != tc.want {
			t.Errorf("Agree(%q,%q)=%v want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
