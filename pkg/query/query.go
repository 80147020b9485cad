// Package query builds the read-only route queries and runs inspection
// sweeps over a command list.
package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/newtron-network/junotron/pkg/executor"
	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/session"
	"github.com/newtron-network/junotron/pkg/util"
)

// Paging commands bracketing an inspection sweep.
const (
	PagingOff     = "set cli screen-length 0"
	PagingRestore = "set cli screen-length 24"
)

func checkPrefix(prefix string) error {
	if !util.IsValidIPv4OrCIDR(prefix) {
		return util.NewValidationError(fmt.Sprintf("%q is not an IPv4 address or prefix", prefix))
	}
	return nil
}

func finish(cmd string, extensive bool) string {
	if extensive {
		cmd += " extensive"
	}
	return cmd + "|no-more"
}

// RouteTable returns the route-table lookup for prefix.
func RouteTable(prefix string, extensive bool) (string, error) {
	if err := checkPrefix(prefix); err != nil {
		return "", err
	}
	return finish("show route "+prefix, extensive), nil
}

// Advertised returns the query for routes within prefix advertised to the
// BGP peer on line.
func Advertised(prefix string, line inventory.Line, extensive bool) (string, error) {
	return peerQuery(prefix, "advertising-protocol", line, extensive)
}

// Received returns the query for routes within prefix received from the
// BGP peer on line.
func Received(prefix string, line inventory.Line, extensive bool) (string, error) {
	return peerQuery(prefix, "receive-protocol", line, extensive)
}

func peerQuery(prefix, direction string, line inventory.Line, extensive bool) (string, error) {
	if err := checkPrefix(prefix); err != nil {
		return "", err
	}
	if !util.IsValidIPv4(line.Address) {
		return "", util.NewValidationError(fmt.Sprintf("line %s: peer address %q is not an IPv4 address", line.Name, line.Address))
	}
	return finish(fmt.Sprintf("show route %s %s bgp %s", prefix, direction, line.Address), extensive), nil
}

// InspectResult summarizes an inspection sweep.
type InspectResult struct {
	Outputs  []executor.Captured
	TimedOut []string
	Rejected []string
	Duration time.Duration
}

// Inspect runs commands one at a time with paging disabled around them and
// writes every output to w. Timeouts and device errors are noted in w and
// the sweep continues; a lost session or cancelled ctx ends it.
func Inspect(ctx context.Context, exec *executor.Executor, s *session.Session, commands []string, w io.Writer) (*InspectResult, error) {
	start := time.Now()
	res := &InspectResult{}
	log := util.WithOperation("inspect").WithField("device", s.Device().Name).WithField("session", s.ID)

	cmds := make([]string, 0, len(commands)+2)
	cmds = append(cmds, PagingOff)
	for _, c := range commands {
		if c = strings.TrimSpace(c); c != "" {
			cmds = append(cmds, c)
		}
	}
	cmds = append(cmds, PagingRestore)
	log.Infof("inspecting %d command(s)", len(cmds)-2)

	for _, cmd := range cmds {
		fmt.Fprintf(w, "\n===== %s =====\n", cmd)
		c, err := exec.RunOne(ctx, s, cmd)
		res.Outputs = append(res.Outputs, c)
		if c.Output != "" {
			io.WriteString(w, c.Output)
		}
		if err != nil {
			fmt.Fprintf(w, "\n!!! aborted: %v\n", err)
			res.Duration = time.Since(start)
			if errors.Is(err, util.ErrIO) {
				return res, err
			}
			return res, fmt.Errorf("inspection stopped at %q: %w", cmd, err)
		}
		switch {
		case c.TimedOut:
			res.TimedOut = append(res.TimedOut, cmd)
			fmt.Fprintf(w, "\n!!! no prompt after %s\n", c.Duration.Round(time.Millisecond))
			log.Warnf("%q timed out", cmd)
		case c.DeviceError() != "":
			res.Rejected = append(res.Rejected, cmd)
		}
	}

	res.Duration = time.Since(start)
	log.Infof("inspection finished in %s (%d timed out, %d rejected)",
		res.Duration.Round(time.Millisecond), len(res.TimedOut), len(res.Rejected))
	return res, nil
}
