package sofascore

import (
	"sort"
	"strings"

	"github.com/riskibarqy/match-odds-engine/internal/usecase"
)

type scheduledEventsPayload struct {
	Events []eventPayload `json:"events"`
}

type eventDetailPayload struct {
	Event eventPayload `json:"event"`
}

type eventPayload struct {
	ID             int64         `json:"id"`
	Slug           string        `json:"slug"`
	StartTimestamp int64         `json:"startTimestamp"`
	Status         statusPayload `json:"status"`
	HomeTeam       teamPayload   `json:"homeTeam"`
	AwayTeam       teamPayload   `json:"awayTeam"`
	HomeScore      scorePayload  `json:"homeScore"`
	AwayScore      scorePayload  `json:"awayScore"`
}

type statusPayload struct {
	Code        int    `json:"code"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type scorePayload struct {
	Current *int `json:"current"`
}

type teamPayload struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	ShortName         string `json:"shortName"`
	FieldTranslations struct {
		NameTranslation map[string]string `json:"nameTranslation"`
	} `json:"fieldTranslations"`
}

type statisticsPayload struct {
	Statistics []periodPayload `json:"statistics"`
}

type periodPayload struct {
	Period string         `json:"period"`
	Groups []groupPayload `json:"groups"`
}

type groupPayload struct {
	GroupName       string        `json:"groupName"`
	StatisticsItems []itemPayload `json:"statisticsItems"`
}

type itemPayload struct {
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	Home      string   `json:"home"`
	Away      string   `json:"away"`
	HomeValue *float64 `json:"homeValue"`
	AwayValue *float64 `json:"awayValue"`
}

func (t teamPayload) names() []string {
	out := make([]string, 0, 2+len(t.FieldTranslations.NameTranslation))
	add := func(v string) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	add(t.Name)
	add(t.ShortName)

	langs := make([]string, 0, len(t.FieldTranslations.NameTranslation))
	for lang := range t.FieldTranslations.NameTranslation {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		add(t.FieldTranslations.NameTranslation[lang])
	}
	return out
}

func (e eventPayload) toSecondary() usecase.SecondaryEvent {
	return usecase.SecondaryEvent{
		ID:             e.ID,
		Slug:           e.Slug,
		StartTimestamp: e.StartTimestamp,
		HomeNames:      e.HomeTeam.names(),
		AwayNames:      e.AwayTeam.names(),
	}
}

func (e eventPayload) toDetail() usecase.SecondaryEventDetail {
	return usecase.SecondaryEventDetail{
		ID:         e.ID,
		StatusType: strings.ToLower(strings.TrimSpace(e.Status.Type)),
		StatusCode: e.Status.Code,
		HomeScore:  e.HomeScore.Current,
		AwayScore:  e.AwayScore.Current,
	}
}

func (p statisticsPayload) toStatistics() usecase.SecondaryStatistics {
	out := usecase.SecondaryStatistics{Periods: make([]usecase.StatisticsPeriod, 0, len(p.Statistics))}
	for _, period := range p.Statistics {
		sp := usecase.StatisticsPeriod{Period: period.Period, Groups: make([]usecase.StatisticsGroup, 0, len(period.Groups))}
		for _, group := range period.Groups {
			sg := usecase.StatisticsGroup{Name: group.GroupName, Items: make([]usecase.StatisticsItem, 0, len(group.StatisticsItems))}
			for _, item := range group.StatisticsItems {
				sg.Items = append(sg.Items, usecase.StatisticsItem{
					Key:       item.Key,
					Name:      item.Name,
					Home:      item.Home,
					Away:      item.Away,
					HomeValue: item.HomeValue,
					AwayValue: item.AwayValue,
				})
			}
			sp.Groups = append(sp.Groups, sg)
		}
		out.Periods = append(out.Periods, sp)
	}
	return out
}
