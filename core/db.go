package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrderings parses a "field,-other" list into DBOrderings.
// A leading "-" means descending. Fields not present in allowed are dropped.
func ParseOrderings(s string, allowed ...string) []DBOrdering {
	if s == "" {
		return nil
	}
	var res []DBOrdering
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !isAllowed(field, allowed) {
			continue
		}
		res = append(res, DBOrdering{Field: field, Ascending: !descending})
	}
	return res
}

func isAllowed(field string, allowed []string) bool {
	for _, a := range allowed {
		if a == field {
			return true
		}
	}
	return false
}
