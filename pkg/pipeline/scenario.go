package pipeline

import (
	"github.com/wayfarer-ai/wayfarer/pkg/events"
	"github.com/wayfarer-ai/wayfarer/pkg/widgets"
)

// withItems filters out widget results whose backend returned nothing. An
// empty result carries no cards, so it must not steer the scenario or the
// UI decision.
func withItems(results []widgets.Result) []widgets.Result {
	out := results[:0:0]
	for _, r := range results {
		if r.Items > 0 {
			out = append(out, r)
		}
	}
	return out
}

// scenarioFor derives the answer scenario from which widgets produced
// results and how many items they carry. Widget results are the only input:
// the client must never re-derive the scenario from data presence.
func scenarioFor(results []widgets.Result) events.Scenario {
	results = withItems(results)
	items := make(map[string]int, len(results))
	for _, r := range results {
		items[r.WidgetType] = r.Items
	}
	if n, ok := items[widgets.TypeHotel]; ok {
		if n == 1 {
			return events.ScenarioHotelLookupSingle
		}
		return events.ScenarioHotelBrowse
	}
	if _, ok := items[widgets.TypeProduct]; ok {
		return events.ScenarioProductBrowse
	}
	if _, ok := items[widgets.TypePlace]; ok {
		return events.ScenarioPlaceBrowse
	}
	return events.ScenarioGeneralAnswer
}

// uiDecisionFor computes the rendering hints for a scenario.
func uiDecisionFor(scenario events.Scenario, results []widgets.Result) events.UIDecision {
	results = withItems(results)
	productItems := 0
	for _, r := range results {
		if r.WidgetType == widgets.TypeProduct {
			productItems = r.Items
		}
	}
	return events.UIDecision{
		ShowMap:        scenario == events.ScenarioHotelBrowse || scenario == events.ScenarioPlaceBrowse,
		ShowCards:      len(results) > 0 && scenario != events.ScenarioHotelLookupSingle,
		ShowImages:     scenario != events.ScenarioHotelBrowse,
		ShowComparison: scenario == events.ScenarioProductBrowse && productItems >= 2,
	}
}
