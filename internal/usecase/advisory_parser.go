package usecase

import (
	"regexp"
	"strings"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
)

// ParsedRecommendation is what could be read out of one advisory answer.
type ParsedRecommendation struct {
	Outcome   match.Outcome
	Bet       *bool
	Alternate *match.Outcome
	Reason    string
}

// RecommendationParser turns free text into a recommendation. It returns
// ErrNoOutcome when no outcome code can be found.
type RecommendationParser interface {
	Parse(text string) (ParsedRecommendation, error)
}

const outcomeToken = `(1X|X1|X2|2X|1|X|2)`

var (
	labelledOutcomeRegex   = regexp.MustCompile(`(?im)^[\s*#>-]*(?:OUTCOME|RECOMMENDATION|PREDICTION|PICK)[\s*]*[:=][\s*"'\x60]*` + outcomeToken + `\b`)
	labelledAlternateRegex = regexp.MustCompile(`(?im)^[\s*#>-]*(?:ALTERNATE|ALTERNATIVE|BACKUP)[\s*]*[:=][\s*"'\x60]*` + outcomeToken + `\b`)
	labelledBetRegex       = regexp.MustCompile(`(?im)^[\s*#>-]*BET[\s*]*[:=][\s*"'\x60]*(YES|NO|Y|N|TRUE|FALSE)\b`)
	labelledReasonRegex    = regexp.MustCompile(`(?is)(?:^|\n)[\s*#>-]*(?:REASON|RATIONALE)[\s*]*[:=]\s*(.+)`)
	doubleChanceRegex      = regexp.MustCompile(`(?i)(?:^|[^0-9A-Z])(1X|X2)(?:[^0-9A-Z]|$)`)
	bareOutcomeRegex       = regexp.MustCompile(`(?i)^[\s*"'\x60]*` + outcomeToken + `[\s*"'\x60.]*$`)
)

var cyrillicX = strings.NewReplacer("Х", "X", "х", "X")

// RegexRecommendationParser reads the labelled response shape first, then
// falls back to a standalone double-chance code or an answer that is only a code.
type RegexRecommendationParser struct{}

func (RegexRecommendationParser) Parse(text string) (ParsedRecommendation, error) {
	text = cyrillicX.Replace(strings.TrimSpace(text))
	if text == "" {
		return ParsedRecommendation{}, ErrNoOutcome
	}

	var out ParsedRecommendation
	outcome, ok := firstOutcome(labelledOutcomeRegex, text)
	if !ok {
		outcome, ok = firstOutcome(doubleChanceRegex, text)
	}
	if !ok {
		firstLine, _, _ := strings.Cut(text, "\n")
		outcome, ok = firstOutcome(bareOutcomeRegex, firstLine)
	}
	if !ok {
		return ParsedRecommendation{}, ErrNoOutcome
	}
	out.Outcome = outcome

	if alt, ok := firstOutcome(labelledAlternateRegex, text); ok && alt != outcome {
		out.Alternate = &alt
	}
	if m := labelledBetRegex.FindStringSubmatch(text); m != nil {
		bet := strings.HasPrefix(strings.ToUpper(m[1]), "Y") || strings.EqualFold(m[1], "true")
		out.Bet = &bet
	}
	if m := labelledReasonRegex.FindStringSubmatch(text); m != nil {
		out.Reason = strings.TrimSpace(m[1])
	}
	return out, nil
}

func firstOutcome(re *regexp.Regexp, text string) (match.Outcome, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return match.ParseOutcome(m[1])
}
