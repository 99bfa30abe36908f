package validation

import (
	"errors"
	"math"
	"testing"

	"github.com/tash-comp/rain-app/internal/models"
)

func TestValidateCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		coord   models.Coordinate
		wantErr bool
	}{
		{"origin", models.Coordinate{}, false},
		{"new york", models.Coordinate{Latitude: 40.7128, Longitude: -74.006}, false},
		{"poles and antimeridian", models.Coordinate{Latitude: -90, Longitude: 180}, false},
		{"latitude too high", models.Coordinate{Latitude: 90.01, Longitude: 0}, true},
		{"longitude too low", models.Coordinate{Latitude: 0, Longitude: -180.5}, true},
		{"nan latitude", models.Coordinate{Latitude: math.NaN(), Longitude: 0}, true},
		{"infinite longitude", models.Coordinate{Latitude: 0, Longitude: math.Inf(1)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCoordinate(tc.coord)
			if tc.wantErr {
				if !errors.Is(err, ErrCoordinateInvalid) {
					t.Errorf("ValidateCoordinate(%+v) error = %v, want ErrCoordinateInvalid", tc.coord, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateCoordinate(%+v) unexpected error: %v", tc.coord, err)
			}
		})
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		lat     string
		lon     string
		want    models.Coordinate
		wantErr error
	}{
		{"valid", "51.5074", "-0.1278", models.Coordinate{Latitude: 51.5074, Longitude: -0.1278}, nil},
		{"whitespace trimmed", " 10 ", " 20 ", models.Coordinate{Latitude: 10, Longitude: 20}, nil},
		{"missing latitude", "", "20", models.Coordinate{}, ErrCoordinateMissing},
		{"missing longitude", "10", "  ", models.Coordinate{}, ErrCoordinateMissing},
		{"not a number", "north", "20", models.Coordinate{}, ErrCoordinateInvalid},
		{"out of range", "10", "200", models.Coordinate{}, ErrCoordinateInvalid},
		{"nan", "NaN", "0", models.Coordinate{}, ErrCoordinateInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCoordinate(tc.lat, tc.lon)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ParseCoordinate() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCoordinate() unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ParseCoordinate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestValidatePermission(t *testing.T) {
	for _, in := range []string{"granted", " DENIED ", "not_determined"} {
		if _, err := ValidatePermission(in); err != nil {
			t.Errorf("ValidatePermission(%q) unexpected error: %v", in, err)
		}
	}
	got, _ := ValidatePermission(" Granted")
	if got != "granted" {
		t.Errorf("ValidatePermission normalized = %q, want granted", got)
	}
	for _, in := range []string{"", "maybe", "authorized_always"} {
		if _, err := ValidatePermission(in); !errors.Is(err, ErrPermissionInvalid) {
			t.Errorf("ValidatePermission(%q) error = %v, want ErrPermissionInvalid", in, err)
		}
	}
}
