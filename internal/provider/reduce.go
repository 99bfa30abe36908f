package provider

import (
	"fmt"
	"math"

	"github.com/tash-comp/rain-app/internal/models"
)

const (
	unknownCode     = "Unknown weather code"
	noPrecipitation = "No precipitation"
)

// rainCodes maps WMO weather codes to the descriptions shown in alerts.
var rainCodes = map[int]string{
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	82: "Rain showers (violent)",
}

// DescribeCode returns the alert description for a WMO weather code.
func DescribeCode(code int) string {
	if d, ok := rainCodes[code]; ok {
		return d
	}
	return unknownCode
}

type forecastResponse struct {
	Minutely15 *minutely15 `json:"minutely_15"`
}

type minutely15 struct {
	Precipitation []*float64 `json:"precipitation"`
	WeatherCode   []*float64 `json:"weathercode"`
}

// Reduce turns a forecast into a snapshot using only the first 15-minute slot.
// Any nonzero precipitation counts as rain.
func Reduce(f forecastResponse) (models.WeatherSnapshot, error) {
	m := f.Minutely15
	if m == nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing minutely_15", ErrDecode)
	}
	if len(m.Precipitation) == 0 || m.Precipitation[0] == nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing precipitation", ErrDecode)
	}
	if len(m.WeatherCode) == 0 || m.WeatherCode[0] == nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing weathercode", ErrDecode)
	}
	p := *m.Precipitation[0]
	if p < 0 || math.IsNaN(p) {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: precipitation %v", ErrDecode, p)
	}
	if p == 0 {
		return models.WeatherSnapshot{Raining: false, WeatherCode: noPrecipitation, PrecipitationMM: 0}, nil
	}
	return models.WeatherSnapshot{
		Raining:         true,
		WeatherCode:     DescribeCode(int(*m.WeatherCode[0])),
		PrecipitationMM: p,
	}, nil
}
