package view

import (
	"regexp"
	"sort"
	"strings"

	"tripsync/model"
)

const (
	flightTag    = "機票"
	stayTag      = "住宿"
	transportTag = "交通"
)

var flightDatePattern = regexp.MustCompile(`\d{2}/\d{2}`)

// FlightDates extracts the MM/DD date of every flight booking, deduplicated.
// Dates starting with "12" sort before all others; the rest keep booking
// order. This only orders a trip spanning December into January correctly.
func FlightDates(bookings []model.Booking) []string {
	var dates []string
	seen := make(map[string]bool)
	for _, b := range bookings {
		if !strings.Contains(b.Category, flightTag) {
			continue
		}
		d := flightDatePattern.FindString(b.Category)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}
	sort.SliceStable(dates, func(i, j int) bool {
		return strings.HasPrefix(dates[i], "12") && !strings.HasPrefix(dates[j], "12")
	})
	return dates
}

// DefaultFlightDate is the first derived date, or "" without flights.
func DefaultFlightDate(bookings []model.Booking) string {
	if dates := FlightDates(bookings); len(dates) > 0 {
		return dates[0]
	}
	return ""
}

// FlightsOn returns the flight bookings whose category carries date.
func FlightsOn(bookings []model.Booking, date string) []model.Booking {
	return filterBookings(bookings, func(b model.Booking) bool {
		return strings.Contains(b.Category, flightTag) && strings.Contains(b.Category, date)
	})
}

func Stays(bookings []model.Booking) []model.Booking {
	return filterBookings(bookings, func(b model.Booking) bool { return strings.Contains(b.Category, stayTag) })
}

func Transports(bookings []model.Booking) []model.Booking {
	return filterBookings(bookings, func(b model.Booking) bool { return strings.Contains(b.Category, transportTag) })
}

func filterBookings(bookings []model.Booking, keep func(model.Booking) bool) []model.Booking {
	out := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// Endpoints is a flight card split into departure and arrival.
type Endpoints struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Depart string `json:"depart"`
	Arrive string `json:"arrive"`
}

// FlightEndpoints splits "A -> B" details and "dep - arr" times. A missing
// arrival time renders as "--:--".
func FlightEndpoints(b model.Booking) Endpoints {
	var e Endpoints
	e.From, e.To, _ = strings.Cut(b.Details, " -> ")
	e.Depart, e.Arrive, _ = strings.Cut(b.Time, " - ")
	if e.Arrive == "" {
		e.Arrive = "--:--"
	}
	return e
}
