package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/junotron/pkg/audit"
	"github.com/newtron-network/junotron/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View the audit log of applied changes.

Every apply and commit is logged with:
  - Timestamp and user
  - Device, domain and group
  - Commands sent and lines rejected
  - Success and verification status

Examples:
  junotron audit list --device edge1
  junotron audit list --last 24h
  junotron audit list --domain blackhole --failures`,
}

var (
	auditDevice   string
	auditUser     string
	auditDomain   string
	auditLast     string
	auditLimit    int
	auditFailures bool
	auditJSON     bool
	auditVerbose  bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			Domain:      auditDomain,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}

		if auditLast != "" {
			duration, err := parseSince(auditLast)
			if err != nil {
				return err
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		logger, err := openAudit(userSettings)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer logger.Close()

		events, err := logger.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if auditJSON {
			return json.NewEncoder(os.Stdout).Encode(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable(os.Stdout, "TIMESTAMP", "USER", "DEVICE", "DOMAIN", "OPERATION", "GROUP", "CMDS", "STATUS")
		for _, event := range events {
			status := green("ok")
			switch {
			case !event.Success:
				status = red("failed")
			case !event.Verified:
				status = yellow("unverified")
			}
			t.Row(
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.User,
				event.Device,
				event.Domain,
				event.Operation,
				event.Group,
				fmt.Sprint(len(event.Commands)),
				status,
			)
		}
		if err := t.Flush(); err != nil {
			return err
		}

		if auditVerbose {
			for _, event := range events {
				fmt.Printf("\n%s %s %s\n", bold(event.ID), event.Operation, event.Group)
				for _, c := range event.Commands {
					fmt.Println("  " + cli.CommandLine(c))
				}
				if len(event.Rejected) > 0 {
					fmt.Println(yellow("  rejected: " + strings.Join(event.Rejected, ", ")))
				}
				if event.Error != "" {
					fmt.Println(red("  error: " + event.Error))
				}
			}
		}
		return nil
	},
}

// parseSince accepts Go durations plus a day suffix ("7d").
func parseSince(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}
	return d, nil
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditDomain, "domain", "", "Filter by domain")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h, 7d)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Output JSON")
	auditListCmd.Flags().BoolVar(&auditVerbose, "commands", false, "Print the commands of each event")

	auditCmd.AddCommand(auditListCmd)
}
