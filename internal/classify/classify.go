// Package classify assigns an incident category from keyword matches.
package classify

import (
	"strings"

	"github.com/harunnryd/autopdf/internal/incident"
)

type rule struct {
	category incident.Category
	keywords []string
}

// rules are checked in order; the first rule with any matching keyword wins.
var rules = []rule{
	{incident.CategoryNetwork, []string{"network", "outage", "internet", "connection"}},
	{incident.CategorySoftware, []string{"software", "install", "application", "program"}},
	{incident.CategoryPassword, []string{"password", "reset", "login"}},
	{incident.CategoryQueue, []string{"queue", "purge", "queued"}},
}

// Classify matches keywords against the lowercased content, solution and
// title, and falls back to CategoryOther.
func Classify(content, solution, title string) incident.Category {
	text := strings.ToLower(content + " " + solution + " " + title)
	for _, r := range rules {
		for _, k := range r.keywords {
			if strings.Contains(text, k) {
				return r.category
			}
		}
	}
	return incident.CategoryOther
}
