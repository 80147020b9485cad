// Junotron - Junos CLI configuration reconciler
//
// Drives Junos routers that expose only an interactive CLI (SSH or telnet):
//   - prefix-list, firewall term, static and blackhole route membership
//   - dry-run by default (preview commands, require -x to commit)
//   - exclusive-mode transactions with post-commit verification
//   - route queries per BGP line and inspection sweeps
//   - audit log of every applied change and a raw output transcript
//
// Usage:
//
//	junotron -d <device> <verb> [args] [-x]
//
// Examples:
//
//	junotron devices
//	junotron -d edge1 show prefix-list ISP-A
//	junotron -d edge1 add prefix-list ISP-A 10.0.0.0/8 192.168.0.0/16 -x
//	junotron -d edge1 delete firewall T1 10.0.0.0/8 -x
//	junotron -d edge1 add blackhole 203.0.113.9/32 -x
//	junotron -d edge1 route 10.0.0.0/8 --line ISP-A --advertised
//	junotron -d edge1 inspect -o sweep.txt
//	junotron -d edge1 shell
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/junotron/pkg/settings"
	"github.com/newtron-network/junotron/pkg/util"
	"github.com/newtron-network/junotron/pkg/version"
)

var (
	// Context flags
	deviceName    string // -d, --device
	inventoryPath string // -I, --inventory

	// Option flags
	executeMode     bool
	verbose         bool
	jsonLogs        bool
	transcriptPath  string
	metricsTextfile string

	userSettings *settings.Settings
	app          *App
)

func main() {
	err := rootCmd.Execute()
	if app != nil {
		app.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "junotron",
	Short:             "Junos CLI configuration reconciler",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Junotron manages prefix-lists, firewall terms, static and blackhole routes
on Junos routers through their interactive CLI.

Write commands preview changes by default; use -x to execute.

  junotron -d <device> <verb> [args] [-x]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if jsonLogs {
			util.SetJSONFormat()
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}
		if skipsInit(cmd) {
			return nil
		}

		if inventoryPath == "" {
			inventoryPath = userSettings.Inventory
		}
		if deviceName == "" {
			deviceName = userSettings.DefaultDevice
		}
		if deviceName == "" {
			deviceName = userSettings.LastDevice
		}
		if !executeMode && userSettings.ExecuteByDefault {
			executeMode = true
		}

		app, err = NewApp(userSettings, inventoryPath)
		return err
	},
}

// skipsInit reports commands that need neither inventory nor sessions.
func skipsInit(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "version", "help", "audit":
			return true
		}
	}
	return false
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Device name from the inventory")
	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "I", "", "Inventory YAML file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log in JSON")
	rootCmd.PersistentFlags().StringVar(&transcriptPath, "transcript", "", "Raw output transcript file (default ~/.junotron/transcript.log)")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	for _, cmd := range []*cobra.Command{addCmd, deleteCmd, commitCmd} {
		cmd.Flags().BoolVarP(&executeMode, "execute", "x", false, "Execute changes (default is dry-run)")
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "config", Title: "Configuration:"},
		&cobra.Group{ID: "query", Title: "Queries:"},
		&cobra.Group{ID: "meta", Title: "Inventory & Meta:"},
	)
	for _, cmd := range []*cobra.Command{showCmd, addCmd, deleteCmd, commitCmd, refreshCmd} {
		cmd.GroupID = "config"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{routeCmd, runCmd, inspectCmd, shellCmd} {
		cmd.GroupID = "query"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{devicesCmd, linesCmd, auditCmd, settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}

// printDryRunNotice reminds the user nothing was sent.
func printDryRunNotice() {
	if !executeMode {
		fmt.Println("\n" + yellow("DRY-RUN: No changes applied. Use -x to execute."))
	}
}
