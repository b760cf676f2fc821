// Package capability evaluates which of a set of required capabilities a user lacks
// and which cart actions become unavailable because of it.
package capability

import (
	"sort"
	"strings"
)

const (
	RestoreCourse   = "moodle/restore:restorecourse"
	RestoreActivity = "moodle/restore:restoreactivity"
)

// actions maps a capability to the cart action it unlocks.
var actions = map[string]string{
	RestoreCourse:   "restore",
	RestoreActivity: "copy",
}

// Checker answers whether the current user holds a capability.
type Checker interface {
	HasCapability(name string) bool
}

// Set is a Checker backed by a set of granted capability names.
type Set map[string]struct{}

func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s Set) HasCapability(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the granted capabilities sorted by name.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Required is the evaluated result of checking a list of capabilities.
type Required struct {
	missing    []string
	disallowed []string
}

// Init checks every capability against checker once. A nil checker grants nothing.
func Init(checker Checker, capabilities ...string) *Required {
	r := &Required{}
	seen := make(map[string]bool)
	for _, c := range capabilities {
		if checker != nil && checker.HasCapability(c) {
			continue
		}
		r.missing = append(r.missing, c)
		action := ActionFor(c)
		if !seen[action] {
			seen[action] = true
			r.disallowed = append(r.disallowed, action)
		}
	}
	return r
}

// ActionFor returns the action name guarded by capability. Unknown capabilities
// fall back to the part after the ":".
func ActionFor(capability string) string {
	if a, ok := actions[capability]; ok {
		return a
	}
	if i := strings.LastIndex(capability, ":"); i >= 0 {
		return capability[i+1:]
	}
	return capability
}

// DisallowedActions lists the actions blocked by missing capabilities, without duplicates.
func (r *Required) DisallowedActions() []string {
	return r.disallowed
}

// MissingCapabilities lists the capabilities the user lacks, in request order.
func (r *Required) MissingCapabilities() []string {
	return r.missing
}

func (r *Required) TotalMissing() int {
	return len(r.missing)
}
