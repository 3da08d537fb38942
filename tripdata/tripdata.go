// Package tripdata loads the static trip configuration: bookings, which are
// never synchronised, plus the seed roster and itinerary.
package tripdata

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tripsync/model"
)

//go:embed trip.yaml
var defaultTrip []byte

type Trip struct {
	Members   []model.Member       `yaml:"members"`
	Bookings  []model.Booking      `yaml:"bookings"`
	Itinerary []model.ItineraryDay `yaml:"itinerary"`
}

// Default returns the trip bundled with the binary.
func Default() (*Trip, error) {
	return Parse(defaultTrip)
}

// Load reads a trip file, or the bundled trip when path is empty.
func Load(path string) (*Trip, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trip data: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Trip, error) {
	var t Trip
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse trip data: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Trip) validate() error {
	seen := make(map[string]bool, len(t.Itinerary))
	for i, d := range t.Itinerary {
		if d.Date == "" {
			return fmt.Errorf("trip data: itinerary day %d has no date", i)
		}
		if seen[d.Date] {
			return fmt.Errorf("trip data: duplicate itinerary date %s", d.Date)
		}
		seen[d.Date] = true
		if len(d.Groups) > 0 && len(d.Activities) > 0 {
			return fmt.Errorf("trip data: itinerary day %s has both groups and activities", d.Date)
		}
	}
	for i, m := range t.Members {
		if m.Name == "" {
			return fmt.Errorf("trip data: member %d has no name", i)
		}
	}
	return nil
}
