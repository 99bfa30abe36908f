package monitor

import "github.com/tash-comp/rain-app/internal/models"

// EventKind tags an Event.
type EventKind string

const (
	EventWeatherUpdate EventKind = "weather_update"
	EventRainAlert     EventKind = "rain_alert"
)

// Event is delivered to subscribers. Exactly one of Update or Alert is set, matching Kind.
type Event struct {
	Kind   EventKind
	Update *models.WeatherUpdate
	Alert  *models.RainAlert
}
