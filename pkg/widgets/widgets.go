// Package widgets resolves classifier widget flags into rendered widget
// blocks by querying per-domain backends in parallel.
package widgets

import (
	"context"
	"encoding/json"

	"github.com/wayfarer-ai/wayfarer/pkg/classify"
)

// Widget type names, used both as block widgetType values and as keys in
// the widgets configuration map.
const (
	TypeWeather     = "weather"
	TypeStock       = "stock"
	TypeCalculation = "calculation"
	TypeProduct     = "product"
	TypeHotel       = "hotel"
	TypePlace       = "place"
	TypeMovie       = "movie"
)

// flagged maps widget types to their classifier flags, in emission order.
var flagged = []struct {
	widgetType string
	enabled    func(classify.Classification) bool
}{
	{TypeWeather, func(c classify.Classification) bool { return c.ShowWeatherWidget }},
	{TypeStock, func(c classify.Classification) bool { return c.ShowStockWidget }},
	{TypeCalculation, func(c classify.Classification) bool { return c.ShowCalculationWidget }},
	{TypeProduct, func(c classify.Classification) bool { return c.ShowProductWidget }},
	{TypeHotel, func(c classify.Classification) bool { return c.ShowHotelWidget }},
	{TypePlace, func(c classify.Classification) bool { return c.ShowPlaceWidget }},
	{TypeMovie, func(c classify.Classification) bool { return c.ShowMovieWidget }},
}

// Result is one successful widget lookup.
type Result struct {
	// WidgetType names the widget.
	WidgetType string
	// Params is the backend's response body, forwarded to clients untouched.
	Params json.RawMessage
	// Items is how many entries the widget carries; it drives scenario
	// selection (single lookup vs browse).
	Items int
}

// Provider fetches the data for one widget type.
type Provider interface {
	Fetch(ctx context.Context, widgetType, query string) (params json.RawMessage, items int, err error)
}
