package oddsapi

import (
	"strings"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/usecase"
)

type eventPayload struct {
	ID           string             `json:"id"`
	SportKey     string             `json:"sport_key"`
	SportTitle   string             `json:"sport_title"`
	CommenceTime time.Time          `json:"commence_time"`
	HomeTeam     string             `json:"home_team"`
	AwayTeam     string             `json:"away_team"`
	Bookmakers   []bookmakerPayload `json:"bookmakers"`
}

type bookmakerPayload struct {
	Key        string          `json:"key"`
	Title      string          `json:"title"`
	LastUpdate string          `json:"last_update"`
	Markets    []marketPayload `json:"markets"`
}

type marketPayload struct {
	Key      string           `json:"key"`
	Outcomes []outcomePayload `json:"outcomes"`
}

type outcomePayload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type sportPayload struct {
	Key          string `json:"key"`
	Group        string `json:"group"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Active       bool   `json:"active"`
	HasOutrights bool   `json:"has_outrights"`
}

func (p eventPayload) toExternal() usecase.ExternalOddsEvent {
	out := usecase.ExternalOddsEvent{
		ID:           strings.TrimSpace(p.ID),
		SportKey:     p.SportKey,
		HomeTeam:     strings.TrimSpace(p.HomeTeam),
		AwayTeam:     strings.TrimSpace(p.AwayTeam),
		CommenceTime: p.CommenceTime.UTC(),
		Bookmakers:   make([]usecase.ExternalBookmaker, 0, len(p.Bookmakers)),
	}
	for _, b := range p.Bookmakers {
		bookmaker := usecase.ExternalBookmaker{
			Key:     b.Key,
			Title:   b.Title,
			Markets: make([]usecase.ExternalMarket, 0, len(b.Markets)),
		}
		for _, m := range b.Markets {
			market := usecase.ExternalMarket{Key: m.Key, Outcomes: make([]usecase.ExternalOutcome, 0, len(m.Outcomes))}
			for _, o := range m.Outcomes {
				market.Outcomes = append(market.Outcomes, usecase.ExternalOutcome{Name: strings.TrimSpace(o.Name), Price: o.Price})
			}
			bookmaker.Markets = append(bookmaker.Markets, market)
		}
		out.Bookmakers = append(out.Bookmakers, bookmaker)
	}
	return out
}
