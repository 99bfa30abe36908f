package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tash-comp/rain-app/internal/models"
)

// ErrCoordinateMissing is returned when latitude or longitude is absent.
var ErrCoordinateMissing = errors.New("latitude and longitude are required")

// ErrCoordinateInvalid is returned when a coordinate is not a number or is out of range.
var ErrCoordinateInvalid = errors.New("coordinate out of range")

// ErrPermissionInvalid is returned for an unknown location permission status.
var ErrPermissionInvalid = errors.New("permission status must be granted, denied or not_determined")

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

type permissionBody struct {
	Status string `validate:"required,oneof=granted denied not_determined"`
}

// ValidateCoordinate checks latitude is within [-90, 90] and longitude within [-180, 180].
// NaN and infinities are rejected.
func ValidateCoordinate(c models.Coordinate) error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return ErrCoordinateInvalid
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", ErrCoordinateInvalid, strings.ToLower(verrs[0].Field()))
		}
		return fmt.Errorf("%w: %v", ErrCoordinateInvalid, err)
	}
	return nil
}

// ParseCoordinate parses decimal-degree query values and validates the result.
func ParseCoordinate(lat, lon string) (models.Coordinate, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" || lon == "" {
		return models.Coordinate{}, ErrCoordinateMissing
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: latitude", ErrCoordinateInvalid)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: longitude", ErrCoordinateInvalid)
	}
	c := models.Coordinate{Latitude: la, Longitude: lo}
	if err := ValidateCoordinate(c); err != nil {
		return models.Coordinate{}, err
	}
	return c, nil
}

// ValidatePermission trims and lowercases the status and checks it is a known value.
func ValidatePermission(status string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(status))
	if err := validate.Struct(permissionBody{Status: s}); err != nil {
		return "", ErrPermissionInvalid
	}
	return s, nil
}
