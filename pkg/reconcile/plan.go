package reconcile

import (
	"fmt"
	"strings"

	"github.com/newtron-network/junotron/pkg/extract"
	"github.com/newtron-network/junotron/pkg/util"
)

// planAdd builds the add batch for candidates against current.
//
// Candidate lines are trimmed and blanks dropped. A line that is not an IPv4
// prefix in x.x.x.x/n form is rejected and produces no command; if nothing
// survives, the whole call fails. Blackhole routes must be host routes: one
// non-/32 line rejects the call before any command is built. Duplicates and
// members already configured are skipped.
func planAdd(d *Domain, device string, current extract.Groups, group string, candidates []string) (*CommandBatch, error) {
	if d.Flat() {
		group = ""
	} else {
		if group == "" {
			return nil, util.NewValidationError(fmt.Sprintf("%s: group name required", d.Kind))
		}
		if !current.Has(group) {
			return nil, util.NewPreconditionError("add", d.groupLabel(group), "group must exist on the device", "create it on the device first")
		}
	}
	if d.Kind == KindStatic && !util.IsValidIPv4(d.nextHop) {
		return nil, util.NewValidationError(fmt.Sprintf("static: next-hop %q is not an IPv4 address", d.nextHop))
	}

	b := newBatch(device, d.Kind, OpAdd, group)
	var valid []string
	for _, line := range candidates {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !util.IsValidIPv4CIDR(line) {
			b.Rejected = append(b.Rejected, line)
			continue
		}
		valid = append(valid, line)
	}

	if len(valid) == 0 {
		if len(b.Rejected) == 0 {
			return nil, util.NewValidationError("no addresses given")
		}
		return nil, util.NewValidationError(fmt.Sprintf("no valid addresses (want x.x.x.x/n), rejected: %s", strings.Join(b.Rejected, ", ")))
	}

	if d.Kind == KindBlackhole {
		for _, p := range valid {
			if !util.IsHostRoute(p) {
				return nil, util.NewValidationError(fmt.Sprintf("blackhole: %s is not a /32 host route", p))
			}
		}
	}

	seen := make(map[string]bool)
	for _, p := range valid {
		if seen[p] || present(d, current, group, p) {
			b.Skipped = append(b.Skipped, p)
			continue
		}
		seen[p] = true
		b.Commands = append(b.Commands, d.addCommands(group, p)...)
		b.Expect = append(b.Expect, addExpectation(d, group, p))
	}

	if b.IsEmpty() {
		return nil, util.NewValidationError(fmt.Sprintf("nothing to add: %s already configured", strings.Join(b.Skipped, ", ")))
	}
	return b, nil
}

func present(d *Domain, current extract.Groups, group, prefix string) bool {
	if d.Flat() {
		return current.Has(prefix)
	}
	return current.Contains(group, prefix)
}

func addExpectation(d *Domain, group, prefix string) Expectation {
	switch d.Kind {
	case KindStatic:
		return Expectation{Group: prefix, Member: d.nextHop, Present: true}
	case KindBlackhole:
		return Expectation{Group: prefix, Member: prefix, Present: true}
	}
	return Expectation{Group: group, Member: prefix, Present: true}
}

// planDelete builds the delete batch for selected members of group.
//
// Flat domains delete the whole route with one command. Otherwise every
// selected member must be in the group, at least one member must remain,
// and the placeholder is never deleted.
func planDelete(d *Domain, device string, current extract.Groups, group string, selected []string) (*CommandBatch, error) {
	if group == "" {
		return nil, util.NewValidationError(fmt.Sprintf("%s: group required", d.Kind))
	}
	if !current.Has(group) {
		return nil, util.NewPreconditionError("delete", d.groupLabel(group), "group must exist on the device", "")
	}

	b := newBatch(device, d.Kind, OpDelete, group)
	if d.Flat() {
		b.Commands = append(b.Commands, d.deleteGroupCommand(group))
		b.Expect = append(b.Expect, Expectation{Group: group, Present: false})
		return b, nil
	}

	selected = util.Dedup(trimAll(selected))
	if len(selected) == 0 {
		return nil, util.NewValidationError(fmt.Sprintf("%s: no members selected", d.groupLabel(group)))
	}

	v := &util.ValidationBuilder{}
	chosen := make(map[string]bool, len(selected))
	for _, m := range selected {
		if !current.Contains(group, m) {
			v.AddErrorf("%s: %s is not a member", d.groupLabel(group), m)
		}
		chosen[m] = true
	}
	if err := v.Build(); err != nil {
		return nil, err
	}

	remaining := 0
	for _, m := range current[group] {
		if !chosen[m] {
			remaining++
		}
	}
	if remaining == 0 {
		return nil, util.NewValidationError(fmt.Sprintf("%s: deleting %d member(s) would leave it empty; at least one must remain", d.groupLabel(group), len(selected)))
	}

	for _, m := range selected {
		if m == Placeholder {
			b.Skipped = append(b.Skipped, m)
			continue
		}
		b.Commands = append(b.Commands, d.deleteMemberCommand(group, m))
		b.Expect = append(b.Expect, Expectation{Group: group, Member: m, Present: false})
	}

	// Selecting only the placeholder yields an empty batch; Apply refuses it.
	return b, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
