package instantiate

import "strings"

// Slot is the end of the date range a parameter receives.
type Slot int

const (
	SlotStart Slot = iota
	SlotEnd
)

func (s Slot) String() string {
	if s == SlotEnd {
		return "end"
	}
	return "start"
}

// DateRule marks a parameter as a date target by name.
type DateRule struct {
	Name  string
	Slot  Slot
	Match func(param string) bool
}

func nameContains(parts ...string) func(string) bool {
	return func(param string) bool {
		lower := strings.ToLower(param)
		for _, p := range parts {
			if !strings.Contains(lower, p) {
				return false
			}
		}
		return true
	}
}

func nameEquals(name string) func(string) bool {
	return func(param string) bool { return strings.ToLower(param) == name }
}

var dateRules = []DateRule{
	{Name: "posting-low", Slot: SlotStart, Match: nameContains("posting", "low")},
	{Name: "budat-low", Slot: SlotStart, Match: nameContains("budat", "low")},
	{Name: "start-date", Slot: SlotStart, Match: nameEquals("startdate")},
	{Name: "posting-high", Slot: SlotEnd, Match: nameContains("posting", "high")},
	{Name: "budat-high", Slot: SlotEnd, Match: nameContains("budat", "high")},
	{Name: "end-date", Slot: SlotEnd, Match: nameEquals("enddate")},
}

// DateRules returns the date-target rules in evaluation order.
func DateRules() []DateRule {
	out := make([]DateRule, len(dateRules))
	copy(out, dateRules)
	return out
}

// matchDate returns the slot of the first rule matching param.
func matchDate(param string) (Slot, bool) {
	for _, r := range dateRules {
		if r.Match(param) {
			return r.Slot, true
		}
	}
	return 0, false
}
