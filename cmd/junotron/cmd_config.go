package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/junotron/pkg/auth"
	"github.com/newtron-network/junotron/pkg/cli"
	"github.com/newtron-network/junotron/pkg/executor"
	"github.com/newtron-network/junotron/pkg/extract"
	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/reconcile"
)

var kindAliases = map[string]reconcile.Kind{
	"prefix-list": reconcile.KindPrefixList,
	"pl":          reconcile.KindPrefixList,
	"firewall":    reconcile.KindFirewall,
	"fw":          reconcile.KindFirewall,
	"static":      reconcile.KindStatic,
	"blackhole":   reconcile.KindBlackhole,
	"bh":          reconcile.KindBlackhole,
}

func parseKind(s string) (reconcile.Kind, error) {
	if k, ok := kindAliases[strings.ToLower(s)]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown domain %q (valid: prefix-list, firewall, static, blackhole)", s)
}

// printGroups renders the mapping, or one group's members when group is set.
func printGroups(wf *reconcile.Workflow, g extract.Groups, group string) error {
	if group != "" {
		if !g.Has(group) {
			return fmt.Errorf("%s %q not found on %s", wf.Domain().Kind, group, wf.Device().Name)
		}
		fmt.Printf("%s %s:\n", wf.Domain().Kind, bold(group))
		for _, m := range g.Members(group) {
			if m == reconcile.Placeholder {
				fmt.Printf("  %s %s\n", m, dim("(placeholder)"))
				continue
			}
			fmt.Printf("  %s\n", m)
		}
		return nil
	}

	if g.Len() == 0 {
		fmt.Printf("No %s entries on %s\n", wf.Domain().Kind, wf.Device().Name)
		return nil
	}
	headers := []string{"GROUP", "MEMBERS"}
	switch wf.Domain().Kind {
	case reconcile.KindStatic:
		headers = []string{"ROUTE", "NEXT-HOP"}
	case reconcile.KindBlackhole:
		headers = []string{"ROUTE", "ACTION"}
	}
	t := cli.NewTable(os.Stdout, headers...)
	for _, name := range g.Names() {
		if wf.Domain().Kind == reconcile.KindBlackhole {
			t.Row(name, "discard")
			continue
		}
		t.Row(name, strings.Join(g.Members(name), ", "))
	}
	return t.Flush()
}

// printBatch shows what a batch will send.
func printBatch(b *reconcile.CommandBatch) {
	fmt.Printf("Device: %s   Domain: %s   Operation: %s\n", bold(b.Device), b.Domain, b.Operation)
	if b.Group != "" {
		fmt.Printf("Group: %s\n", b.Group)
	}
	fmt.Println("\nCommands:")
	for _, c := range b.Wrapped() {
		fmt.Println("  " + cli.CommandLine(c))
	}
	for _, r := range b.Rejected {
		fmt.Println(yellow("  rejected: " + r + " (want x.x.x.x/n)"))
	}
	for _, s := range b.Skipped {
		fmt.Println(dim("  skipped:  " + s))
	}
}

// applyBatch commits b, waits for the refresh and prints the outcome.
func applyBatch(ctx context.Context, wf *reconcile.Workflow, b *reconcile.CommandBatch) error {
	printBatch(b)
	if b.IsEmpty() {
		fmt.Println(dim("Nothing to commit."))
		return nil
	}
	if !executeMode {
		printDryRunNotice()
		return nil
	}

	fmt.Println()
	res, err := wf.Apply(ctx, b)
	fmt.Println(cli.DotPad("commit", 24), cli.Verdict(err, res != nil && res.Verified))
	if err != nil {
		if res != nil && len(res.Outputs) > 0 {
			last := res.Outputs[len(res.Outputs)-1]
			fmt.Println(dim(strings.TrimSpace(last.Output)))
		}
		return fmt.Errorf("apply failed: %w", err)
	}
	if !res.Verified {
		fmt.Println(yellow("Commit accepted but the change could not be confirmed; check with 'show'."))
	}

	r := <-res.Refresh
	fmt.Println(cli.DotPad("refresh", 24), cli.Verdict(r.Err, true))
	if r.Err != nil {
		return r.Err
	}
	group := b.Group
	if b.Operation == reconcile.OpDelete && wf.Domain().Flat() {
		group = ""
	}
	fmt.Println()
	return printGroups(wf, r.Groups, group)
}

var showCmd = &cobra.Command{
	Use:   "show <domain> [group]",
	Short: "Show groups and members of a domain",
	Long: `Fetch a configuration domain from the device and print it.

Domains: prefix-list (pl), firewall (fw), static, blackhole (bh)

Examples:
  junotron -d edge1 show prefix-list
  junotron -d edge1 show prefix-list ISP-A
  junotron -d edge1 show blackhole`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		if err := app.Authorize(auth.PermConfigView); err != nil {
			return err
		}
		wf, err := app.Workflow(kind)
		if err != nil {
			return err
		}
		g, err := wf.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		group := ""
		if len(args) == 2 {
			group = args[1]
		}
		return printGroups(wf, g, group)
	},
}

var addFile string

var addCmd = &cobra.Command{
	Use:   "add <domain> [group] <prefix>... [-x]",
	Short: "Add members to a group",
	Long: `Add prefixes to a prefix-list or firewall term, or add static or
blackhole routes. Prefixes must be x.x.x.x/n; blackhole routes must be /32.
Static and blackhole take no group.

Examples:
  junotron -d edge1 add prefix-list ISP-A 10.0.0.0/8 192.168.0.0/16
  junotron -d edge1 add firewall T1 -f prefixes.txt -x
  junotron -d edge1 add static 10.20.0.0/16 -x
  junotron -d edge1 add blackhole 203.0.113.9/32 -x`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		wf, err := app.Workflow(kind)
		if err != nil {
			return err
		}

		rest := args[1:]
		group := ""
		if !wf.Domain().Flat() {
			if len(rest) == 0 {
				return fmt.Errorf("group required: add %s <group> <prefix>...", kind)
			}
			group, rest = rest[0], rest[1:]
		}
		if addFile != "" {
			lines, err := inventory.LoadCommands(addFile)
			if err != nil {
				return err
			}
			rest = append(rest, lines...)
		}

		if _, err := wf.Fetch(cmd.Context()); err != nil {
			return err
		}
		b, err := wf.PlanAdd(group, rest)
		if err != nil {
			return err
		}
		return applyBatch(cmd.Context(), wf, b)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <domain> <group> [member]... [-x]",
	Short: "Delete members or routes",
	Long: `Delete members from a prefix-list or firewall term, or delete a static
or blackhole route. A group always keeps at least one member, and the
placeholder 1.1.1.1/32 is never deleted.

Examples:
  junotron -d edge1 delete prefix-list ISP-A 10.0.0.0/8 -x
  junotron -d edge1 delete blackhole 203.0.113.9/32 -x`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		wf, err := app.Workflow(kind)
		if err != nil {
			return err
		}
		if _, err := wf.Fetch(cmd.Context()); err != nil {
			return err
		}
		wf.Select(args[1], args[2:])
		b, err := wf.PlanDelete(args[1], args[2:])
		if err != nil {
			return err
		}
		return applyBatch(cmd.Context(), wf, b)
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit [-x]",
	Short: "Commit pending configuration",
	Long: `Enter exclusive configuration mode, commit and exit. Use this to commit
changes made by other sessions or left by an interrupted run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, c := range executor.Wrap(nil) {
			fmt.Println("  " + c)
		}
		if !executeMode {
			printDryRunNotice()
			return nil
		}
		wf, err := app.Workflow(reconcile.KindPrefixList)
		if err != nil {
			return err
		}
		outs, err := wf.Commit(cmd.Context())
		fmt.Println(cli.DotPad("commit", 24), cli.Verdict(err, true))
		if err != nil && len(outs) > 0 {
			fmt.Println(dim(strings.TrimSpace(outs[len(outs)-1].Output)))
		}
		return err
	},
}

var (
	refreshAttempts int
	refreshInterval time.Duration
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <domain> [group]",
	Short: "Re-read a domain with retries",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		wf, err := app.Workflow(kind)
		if err != nil {
			return err
		}
		group := ""
		if len(args) == 2 {
			group = args[1]
			wf.Select(group, nil)
		}
		g, err := wf.RetryFetch(cmd.Context(), refreshAttempts, refreshInterval)
		if err != nil {
			return err
		}
		if group != "" && wf.Selection().Group == "" {
			fmt.Println(yellow(fmt.Sprintf("%s no longer exists", group)))
			group = ""
		}
		return printGroups(wf, g, group)
	},
}

func init() {
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "Read prefixes from file, one per line")
	refreshCmd.Flags().IntVar(&refreshAttempts, "attempts", 0, "Fetch attempts (default from settings, 3)")
	refreshCmd.Flags().DurationVar(&refreshInterval, "interval", 0, "Delay between attempts (default 1s)")
}
