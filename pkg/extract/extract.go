// Package extract turns display-set output into group -> members mappings.
package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Pattern selects configuration lines and the capture groups that name the
// group and the member. For flat lists GroupIndex == MemberIndex.
type Pattern struct {
	Re          *regexp.Regexp
	GroupIndex  int
	MemberIndex int
}

// Groups maps a group name to its members in first-seen order, unique
// within the group. A Groups value is never modified after Extract returns.
type Groups map[string][]string

// Extract scans raw line by line. Lines are trimmed, blanks skipped, and each
// is matched against p; unmatched lines (echo, banners, prompts) are ignored.
func Extract(raw string, p Pattern) Groups {
	groups := make(Groups)
	seen := make(map[string]map[string]bool)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := p.Re.FindStringSubmatch(line)
		if m == nil || p.GroupIndex >= len(m) || p.MemberIndex >= len(m) {
			continue
		}
		group, member := m[p.GroupIndex], m[p.MemberIndex]
		if group == "" || member == "" {
			continue
		}
		if seen[group] == nil {
			seen[group] = make(map[string]bool)
		}
		if seen[group][member] {
			continue
		}
		seen[group][member] = true
		groups[group] = append(groups[group], member)
	}
	return groups
}

// Names returns group names sorted lexicographically.
func (g Groups) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Members returns a sorted copy of group's members, or nil.
func (g Groups) Members(group string) []string {
	members, ok := g[group]
	if !ok {
		return nil
	}
	out := append([]string(nil), members...)
	sort.Strings(out)
	return out
}

// Has reports whether group exists.
func (g Groups) Has(group string) bool {
	_, ok := g[group]
	return ok
}

// Contains reports whether member belongs to group.
func (g Groups) Contains(group, member string) bool {
	for _, m := range g[group] {
		if m == member {
			return true
		}
	}
	return false
}

// Len returns the number of groups.
func (g Groups) Len() int {
	return len(g)
}

// Equal compares two mappings as group -> set of members.
func (g Groups) Equal(other Groups) bool {
	if len(g) != len(other) {
		return false
	}
	for name, members := range g {
		om, ok := other[name]
		if !ok || len(om) != len(members) {
			return false
		}
		set := make(map[string]bool, len(om))
		for _, m := range om {
			set[m] = true
		}
		for _, m := range members {
			if !set[m] {
				return false
			}
		}
	}
	return true
}
