package profile

import (
	"strings"

	"sqpr-engine/internal/engine/dateformat"
	"sqpr-engine/internal/models"
)

// Rule pairs a parameter-name predicate with the default it yields for a
// profile. Effect returns false when the rule has nothing for that profile.
type Rule struct {
	Name   string
	Exact  bool
	Match  func(param string) bool
	Effect func(p Profile) (models.Value, bool)
}

func exact(name string) func(string) bool {
	return func(param string) bool { return param == name }
}

func containsAll(parts ...string) func(string) bool {
	return func(param string) bool {
		lower := strings.ToLower(param)
		for _, part := range parts {
			if !strings.Contains(lower, part) {
				return false
			}
		}
		return true
	}
}

// checkbox parameters are ["All"] on detail reports and true on summary loads
func checkbox(p Profile) (models.Value, bool) {
	if p.DateKind == dateformat.Summary {
		return models.BoolValue(true), true
	}
	return models.AllValue(), true
}

// rules is ordered: exact names first, then substring patterns.
var rules = []Rule{
	{Name: "columns", Exact: true, Match: exact("Columns"), Effect: checkbox},
	{Name: "no-sum", Exact: true, Match: exact("NoSum"), Effect: checkbox},
	{
		Name:  "controlling-area",
		Match: containsAll("controlling", "area"),
		Effect: func(Profile) (models.Value, bool) {
			return models.StringValue("2000"), true
		},
	},
	{
		Name:  "cost-element-group",
		Match: containsAll("cost", "element", "group"),
		Effect: func(Profile) (models.Value, bool) {
			return models.StringValue("CE_STD"), true
		},
	},
	{
		Name:  "layout",
		Match: containsAll("layout"),
		Effect: func(p Profile) (models.Value, bool) {
			if p.Layout == "" {
				return models.Value{}, false
			}
			return models.StringValue(p.Layout), true
		},
	},
}

// Rules returns the default-value rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}
