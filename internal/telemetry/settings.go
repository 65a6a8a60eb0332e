package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig marks configuration problems detected before any network call.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// OutdoorSettings is the raw outdoor-source configuration. Coordinates stay
// strings until the source validates them at collection time.
type OutdoorSettings struct {
	APIKey       string
	Latitude     string
	Longitude    string
	LocationID   string
	LocationName string
}

type coordinates struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

// Location parses and range-checks the configured coordinates.
func (s OutdoorSettings) Location() (Location, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return Location{}, fmt.Errorf("%w: outdoor api key is not set", ErrInvalidConfig)
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(s.Latitude), 64)
	if latErr != nil {
		return Location{}, invalidLatitude(s.Latitude)
	}
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(s.Longitude), 64)
	if lonErr != nil {
		return Location{}, invalidLongitude(s.Longitude)
	}

	if err := validate.Struct(coordinates{Latitude: lat, Longitude: lon}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Longitude" {
			return Location{}, invalidLongitude(s.Longitude)
		}
		return Location{}, invalidLatitude(s.Latitude)
	}

	return Location{
		ID:        s.LocationID,
		Name:      s.LocationName,
		Latitude:  lat,
		Longitude: lon,
	}, nil
}

func invalidLatitude(raw string) error {
	return fmt.Errorf("%w: invalid latitude: %q. Must be between -90 and 90", ErrInvalidConfig, raw)
}

func invalidLongitude(raw string) error {
	return fmt.Errorf("%w: invalid longitude: %q. Must be between -180 and 180", ErrInvalidConfig, raw)
}

// IndoorSettings holds the home-sensor service credentials.
type IndoorSettings struct {
	Token  string `validate:"required"`
	Secret string `validate:"required"`
}

// Validate reports missing credentials.
func (s IndoorSettings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: indoor %s is not set", ErrInvalidConfig, strings.ToLower(verrs[0].Field()))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
