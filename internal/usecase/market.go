package usecase

import (
	"sort"
	"strings"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/teamname"
)

const headToHeadMarket = "h2h"

// MarketQuote is the per-outcome median across bookmakers for one fixture.
type MarketQuote struct {
	Prices     match.ThreeWay
	Bookmakers int
}

// Median returns the middle value, averaging the two middles for even counts.
func Median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// QuoteMarket collects head-to-head offers per outcome and takes the median
// of each. Outcomes no bookmaker offered stay nil.
func QuoteMarket(event ExternalOddsEvent) MarketQuote {
	var home, draw, away []float64
	quote := MarketQuote{}
	for _, bookmaker := range event.Bookmakers {
		offered := false
		for _, market := range bookmaker.Markets {
			if market.Key != headToHeadMarket {
				continue
			}
			for _, outcome := range market.Outcomes {
				if outcome.Price <= 1 {
					continue
				}
				switch outcomeSide(outcome.Name, event.HomeTeam, event.AwayTeam) {
				case sideHome:
					home = append(home, outcome.Price)
				case sideDraw:
					draw = append(draw, outcome.Price)
				case sideAway:
					away = append(away, outcome.Price)
				default:
					continue
				}
				offered = true
			}
		}
		if offered {
			quote.Bookmakers++
		}
	}

	quote.Prices.Home = medianPtr(home)
	quote.Prices.Draw = medianPtr(draw)
	quote.Prices.Away = medianPtr(away)
	return quote
}

// Favorite picks the lower of the home and away medians, home on ties.
// It returns nil unless that price is at or below ceiling.
func (q MarketQuote) Favorite(homeTeam, awayTeam string, ceiling float64) *match.Favorite {
	if q.Prices.Home == nil || q.Prices.Away == nil {
		return nil
	}
	fav := match.Favorite{Team: homeTeam, IsHome: true, Price: *q.Prices.Home}
	if *q.Prices.Away < *q.Prices.Home {
		fav = match.Favorite{Team: awayTeam, IsHome: false, Price: *q.Prices.Away}
	}
	if ceiling > 0 && fav.Price > ceiling {
		return nil
	}
	return &fav
}

// SidePrice is the median of the home or away outcome.
func (q MarketQuote) SidePrice(isHome bool) *float64 {
	if isHome {
		return q.Prices.Home
	}
	return q.Prices.Away
}

type side int

const (
	sideUnknown side = iota
	sideHome
	sideDraw
	sideAway
)

func outcomeSide(name, homeTeam, awayTeam string) side {
	name = strings.TrimSpace(name)
	switch {
	case strings.EqualFold(name, "draw"):
		return sideDraw
	case strings.EqualFold(name, strings.TrimSpace(homeTeam)):
		return sideHome
	case strings.EqualFold(name, strings.TrimSpace(awayTeam)):
		return sideAway
	}

	normalized := teamname.Normalize(name)
	switch {
	case normalized == "":
		return sideUnknown
	case normalized == teamname.Normalize(homeTeam):
		return sideHome
	case normalized == teamname.Normalize(awayTeam):
		return sideAway
	default:
		return sideUnknown
	}
}

func medianPtr(values []float64) *float64 {
	v, ok := Median(values)
	if !ok {
		return nil
	}
	return &v
}
