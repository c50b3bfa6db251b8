package attendance

import (
	"context"
	"strconv"
	"strings"

	"github.com/phillip-england/hrsuite/internal/apperr"
)

type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Locator acquires the device position once. It returns either a position
// or an error, never both.
type Locator interface {
	Locate(ctx context.Context) (Position, error)
}

type LocatorFunc func(ctx context.Context) (Position, error)

func (f LocatorFunc) Locate(ctx context.Context) (Position, error) { return f(ctx) }

// Browser geolocation failure codes posted by the attendance page script.
const (
	GeoUnsupported = "unsupported"
	GeoDenied      = "denied"
	GeoUnavailable = "unavailable"
	GeoTimeout     = "timeout"
)

var geoMessages = map[string]string{
	GeoUnsupported: "Geolocation not supported by your browser",
	GeoDenied:      "Permission denied or unable to get location",
	GeoUnavailable: "Unable to determine your location",
	GeoTimeout:     "Timed out while getting your location",
}

// FormLocator adapts what the browser's geolocation call produced, as posted
// with the check-in/out form, into a Locator.
type FormLocator struct {
	Lat      string
	Lng      string
	Accuracy string
	Error    string
}

func (f FormLocator) Locate(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	if code := strings.TrimSpace(f.Error); code != "" {
		msg, ok := geoMessages[code]
		if !ok {
			msg = geoMessages[GeoDenied]
		}
		return Position{}, apperr.Geolocation(msg)
	}
	if strings.TrimSpace(f.Lat) == "" || strings.TrimSpace(f.Lng) == "" {
		return Position{}, apperr.Geolocation("Location was not provided by your browser")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(f.Lat), 64)
	if err != nil || lat < -90 || lat > 90 {
		return Position{}, apperr.Geolocation("Your browser reported an invalid latitude")
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(f.Lng), 64)
	if err != nil || lng < -180 || lng > 180 {
		return Position{}, apperr.Geolocation("Your browser reported an invalid longitude")
	}
	acc, _ := strconv.ParseFloat(strings.TrimSpace(f.Accuracy), 64)
	return Position{Latitude: lat, Longitude: lng, Accuracy: acc}, nil
}
