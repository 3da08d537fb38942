package view

import (
	"regexp"
	"strings"

	"tripsync/model"
)

// Selection is the local itinerary cursor.
type Selection struct {
	Day   int `json:"day"`
	Group int `json:"group"`
}

// SelectDay moves to day i and resets the group.
func (s Selection) SelectDay(i int) Selection {
	return Selection{Day: i}
}

func (s Selection) SelectGroup(i int) Selection {
	s.Group = i
	return s
}

// GroupTabs returns the group names of a day, or nil when a day has at most
// one group and no tabs are shown.
func GroupTabs(day model.ItineraryDay) []string {
	if len(day.Groups) <= 1 {
		return nil
	}
	names := make([]string, 0, len(day.Groups))
	for _, g := range day.Groups {
		names = append(names, g.Name)
	}
	return names
}

// Activities returns the activity list of the selected day and group. An
// out-of-range selection yields nil.
func Activities(days []model.ItineraryDay, sel Selection) []model.Activity {
	if sel.Day < 0 || sel.Day >= len(days) {
		return nil
	}
	day := days[sel.Day]
	if len(day.Groups) == 0 {
		return day.Activities
	}
	if sel.Group < 0 || sel.Group >= len(day.Groups) {
		return nil
	}
	return day.Groups[sel.Group].Activities
}

// WeatherOf fills the placeholders shown while a day has no forecast.
func WeatherOf(day model.ItineraryDay) model.Weather {
	w := day.Weather
	if w.Icon == "" {
		w.Icon = "❄️"
	}
	if w.Temp == "" {
		w.Temp = "--"
	}
	if w.Wear == "" {
		w.Wear = "載入中..."
	}
	return w
}

// NoteLines splits an activity note into display lines.
func NoteLines(note string) []string {
	if note == "" {
		return nil
	}
	return strings.Split(note, "\n")
}

// Highlight is the decoration class of a note segment.
type Highlight string

const (
	Plain    Highlight = ""
	Food     Highlight = "food"
	Souvenir Highlight = "souvenir"
	Alert    Highlight = "alert"
)

type Segment struct {
	Text      string    `json:"text"`
	Highlight Highlight `json:"highlight,omitempty"`
}

// Decorator splits a plain-text line into styled segments.
type Decorator func(line string) []Segment

var keywordClasses = map[string]Highlight{
	"必吃美食":   Food,
	"必點菜單":   Food,
	"必買伴手禮":  Souvenir,
	"重要預約代號": Alert,
	"重要提醒":   Alert,
}

var keywordPattern = regexp.MustCompile(`必吃美食|必點菜單|必買伴手禮|重要預約代號|重要提醒`)

// HighlightKeywords is the default Decorator.
func HighlightKeywords(line string) []Segment {
	var out []Segment
	last := 0
	for _, loc := range keywordPattern.FindAllStringIndex(line, -1) {
		if loc[0] > last {
			out = append(out, Segment{Text: line[last:loc[0]]})
		}
		kw := line[loc[0]:loc[1]]
		out = append(out, Segment{Text: kw, Highlight: keywordClasses[kw]})
		last = loc[1]
	}
	if last < len(line) {
		out = append(out, Segment{Text: line[last:]})
	}
	return out
}

// DecoratedNote splits note into lines and decorates each.
func DecoratedNote(note string, decorate Decorator) [][]Segment {
	if decorate == nil {
		decorate = HighlightKeywords
	}
	lines := NoteLines(note)
	out := make([][]Segment, 0, len(lines))
	for _, l := range lines {
		out = append(out, decorate(l))
	}
	return out
}
