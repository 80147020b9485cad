package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/junotron/pkg/executor"
	"github.com/newtron-network/junotron/pkg/extract"
)

// Operation is the kind of change a batch makes.
type Operation string

const (
	OpAdd    Operation = "add"
	OpDelete Operation = "delete"
)

// Expectation is one membership fact that must hold after a batch is
// committed. An empty Member refers to the group itself.
type Expectation struct {
	Group   string `json:"group"`
	Member  string `json:"member,omitempty"`
	Present bool   `json:"present"`
}

// Holds reports whether the expectation is met by g.
func (x Expectation) Holds(g extract.Groups) bool {
	var found bool
	if x.Member == "" {
		found = g.Has(x.Group)
	} else {
		found = g.Contains(x.Group, x.Member)
	}
	return found == x.Present
}

func (x Expectation) String() string {
	what := x.Group
	if x.Member != "" {
		what += " " + x.Member
	}
	if x.Present {
		return what + " present"
	}
	return what + " absent"
}

// CommandBatch is one planned change: the ordered commands plus what was
// left out and why. It is a value; nothing mutates it after planning.
type CommandBatch struct {
	Device    string        `json:"device"`
	Domain    Kind          `json:"domain"`
	Operation Operation     `json:"operation"`
	Group     string        `json:"group,omitempty"`
	Commands  []string      `json:"commands"`
	Rejected  []string      `json:"rejected,omitempty"`
	Skipped   []string      `json:"skipped,omitempty"`
	Expect    []Expectation `json:"expect"`
	Timestamp time.Time     `json:"timestamp"`
}

func newBatch(device string, kind Kind, op Operation, group string) *CommandBatch {
	return &CommandBatch{
		Device:    device,
		Domain:    kind,
		Operation: op,
		Group:     group,
		Commands:  make([]string, 0),
		Timestamp: time.Now(),
	}
}

// IsEmpty returns true if there are no commands.
func (b *CommandBatch) IsEmpty() bool {
	return len(b.Commands) == 0
}

// Wrapped returns the commands inside the exclusive-configure transaction,
// exactly as they are sent.
func (b *CommandBatch) Wrapped() []string {
	return executor.Wrap(b.Commands)
}

// Verify reports whether every expectation holds in g.
func (b *CommandBatch) Verify(g extract.Groups) bool {
	for _, x := range b.Expect {
		if !x.Holds(g) {
			return false
		}
	}
	return true
}

// String returns a human-readable representation of the commands.
func (b *CommandBatch) String() string {
	if b.IsEmpty() {
		return "No changes"
	}

	var sb strings.Builder
	tag := "[ADD]"
	if b.Operation == OpDelete {
		tag = "[DEL]"
	}
	for _, c := range b.Commands {
		sb.WriteString(fmt.Sprintf("  %s %s\n", tag, c))
	}
	for _, r := range b.Rejected {
		sb.WriteString(fmt.Sprintf("  [REJECTED] %s\n", r))
	}
	for _, s := range b.Skipped {
		sb.WriteString(fmt.Sprintf("  [SKIPPED] %s\n", s))
	}
	return sb.String()
}

// Preview returns a formatted preview of the batch.
func (b *CommandBatch) Preview() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Operation: %s %s\n", b.Domain, b.Operation))
	sb.WriteString(fmt.Sprintf("Device: %s\n", b.Device))
	if b.Group != "" {
		sb.WriteString(fmt.Sprintf("Group: %s\n", b.Group))
	}
	sb.WriteString(fmt.Sprintf("Commands:\n%s", b.String()))
	return sb.String()
}
