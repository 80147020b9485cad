// Package reconcile plans and applies membership changes to Junos
// configuration groups: prefix-lists, firewall filter terms, static routes
// and blackhole routes.
package reconcile

import (
	"fmt"
	"regexp"

	"github.com/newtron-network/junotron/pkg/extract"
	"github.com/newtron-network/junotron/pkg/util"
)

// Kind names a configuration domain.
type Kind string

const (
	KindPrefixList Kind = "prefix-list"
	KindFirewall   Kind = "firewall"
	KindStatic     Kind = "static"
	KindBlackhole  Kind = "blackhole"
)

// Kinds lists every domain in display order.
var Kinds = []Kind{KindPrefixList, KindFirewall, KindStatic, KindBlackhole}

// Placeholder is kept in every prefix-list and firewall term so the group
// never disappears from the configuration. It is never deleted.
const Placeholder = "1.1.1.1/32"

// DefaultFirewallFilter is the policy-based forwarding filter managed when
// no other filter is configured.
const DefaultFirewallFilter = "inside-outside-fbf"

// Domain describes how one kind of group is read from and written to the
// device.
type Domain struct {
	Kind Kind
	// Show is the read-only command returning the domain in display-set form.
	Show    string
	Pattern extract.Pattern
	// Attributes are extra per-member statements appended after the member
	// statement, e.g. "tag 888" for static routes. Only static and
	// blackhole honour them.
	Attributes []string

	filter  string
	nextHop string
}

// DomainConfig carries the site-specific parameters of the domains.
type DomainConfig struct {
	FirewallFilter string
	NextHop        string
	Attributes     []string
}

// NewDomain builds the domain for kind.
func NewDomain(kind Kind, cfg DomainConfig) (*Domain, error) {
	switch kind {
	case KindPrefixList:
		return PrefixListDomain(), nil
	case KindFirewall:
		return FirewallDomain(cfg.FirewallFilter), nil
	case KindStatic:
		d := StaticDomain(cfg.NextHop)
		d.Attributes = cfg.Attributes
		return d, nil
	case KindBlackhole:
		d := BlackholeDomain()
		d.Attributes = cfg.Attributes
		return d, nil
	}
	return nil, fmt.Errorf("unknown domain %q (want prefix-list, firewall, static or blackhole)", kind)
}

var (
	prefixListRe = regexp.MustCompile(`^set policy-options prefix-list (\S+) (` + util.CIDRPattern + `)`)
	staticRe     = regexp.MustCompile(`^set routing-options static route (` + util.CIDRPattern + `) .*?(?:next-hop|qualified-next-hop) (` + util.IPv4Pattern + `)`)
	blackholeRe  = regexp.MustCompile(`^set routing-options static route (` + util.CIDRPattern + `) discard`)
)

// PrefixListDomain manages policy-options prefix-list members.
func PrefixListDomain() *Domain {
	return &Domain{
		Kind:    KindPrefixList,
		Show:    "show configuration policy-options | display set | match prefix-list | no-more",
		Pattern: extract.Pattern{Re: prefixListRe, GroupIndex: 1, MemberIndex: 2},
	}
}

// FirewallDomain manages source-address matches of the terms of one filter.
func FirewallDomain(filter string) *Domain {
	if filter == "" {
		filter = DefaultFirewallFilter
	}
	re := regexp.MustCompile(`^set firewall filter ` + regexp.QuoteMeta(filter) +
		` term (\S+) from source-address (` + util.CIDRPattern + `)`)
	return &Domain{
		Kind:    KindFirewall,
		Show:    "show configuration firewall filter " + filter + " | display set | no-more",
		Pattern: extract.Pattern{Re: re, GroupIndex: 1, MemberIndex: 2},
		filter:  filter,
	}
}

// StaticDomain manages static routes via nextHop. Groups are prefixes,
// members their next-hops.
func StaticDomain(nextHop string) *Domain {
	return &Domain{
		Kind:    KindStatic,
		Show:    "show configuration routing-options static | display set | no-more",
		Pattern: extract.Pattern{Re: staticRe, GroupIndex: 1, MemberIndex: 2},
		nextHop: nextHop,
	}
}

// BlackholeDomain manages discard routes. Each prefix is its own group.
func BlackholeDomain() *Domain {
	return &Domain{
		Kind:    KindBlackhole,
		Show:    `show configuration routing-options | display set | match "discard" | no-more`,
		Pattern: extract.Pattern{Re: blackholeRe, GroupIndex: 1, MemberIndex: 1},
	}
}

// Filter returns the firewall filter name, or "".
func (d *Domain) Filter() string { return d.filter }

// NextHop returns the static next-hop, or "".
func (d *Domain) NextHop() string { return d.nextHop }

// Flat reports whether the domain keys groups by the route prefix itself.
// Flat domains add by prefix and delete whole groups.
func (d *Domain) Flat() bool {
	return d.Kind == KindStatic || d.Kind == KindBlackhole
}

// KeepsMember reports whether the domain refuses to empty a group.
func (d *Domain) KeepsMember() bool {
	return !d.Flat()
}

// addCommands returns the statements adding member to group.
func (d *Domain) addCommands(group, member string) []string {
	var base string
	switch d.Kind {
	case KindPrefixList:
		return []string{"set policy-options prefix-list " + group + " " + member}
	case KindFirewall:
		return []string{"set firewall filter " + d.filter + " term " + group + " from source-address " + member}
	case KindStatic:
		base = "set routing-options static route " + member
		cmds := []string{base + " next-hop " + d.nextHop}
		for _, a := range d.Attributes {
			cmds = append(cmds, base+" "+a)
		}
		return cmds
	case KindBlackhole:
		base = "set routing-options static route " + member
		cmds := []string{base + " discard"}
		for _, a := range d.Attributes {
			cmds = append(cmds, base+" "+a)
		}
		return cmds
	}
	return nil
}

func (d *Domain) deleteMemberCommand(group, member string) string {
	switch d.Kind {
	case KindPrefixList:
		return "delete policy-options prefix-list " + group + " " + member
	case KindFirewall:
		return "delete firewall filter " + d.filter + " term " + group + " from source-address " + member
	}
	return ""
}

func (d *Domain) deleteGroupCommand(group string) string {
	return "delete routing-options static route " + group
}

// groupLabel is how errors name a group of this domain.
func (d *Domain) groupLabel(group string) string {
	switch d.Kind {
	case KindFirewall:
		return "term " + group
	case KindStatic, KindBlackhole:
		return "route " + group
	}
	return string(d.Kind) + " " + group
}
