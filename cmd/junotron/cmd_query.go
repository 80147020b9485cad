package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/junotron/pkg/auth"
	"github.com/newtron-network/junotron/pkg/cli"
	"github.com/newtron-network/junotron/pkg/executor"
	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/query"
	"github.com/newtron-network/junotron/pkg/transcript"
)

var (
	routeLine       string
	routeAdvertised bool
	routeReceived   bool
	routeExtensive  bool

	saveResult bool   // --save
	saveFile   string // -o, --output

	runIndex    int
	runCommands string

	inspectOutput string
)

// runQuery sends one read-only command, streaming its output to stdout.
func runQuery(ctx context.Context, command string) (executor.Captured, error) {
	fmt.Println(dim("> " + command))
	v, err := app.Stream(ctx, command, os.Stdout, func(ctx context.Context) (any, error) {
		s, err := app.Session(ctx)
		if err != nil {
			return nil, err
		}
		return app.Exec.RunOne(ctx, s, command)
	})
	fmt.Println()
	c, _ := v.(executor.Captured)
	if err != nil {
		return c, err
	}
	if c.TimedOut {
		fmt.Println(yellow("No prompt received; output may be incomplete."))
	}
	if msg := c.DeviceError(); msg != "" {
		fmt.Println(yellow("Device: " + msg))
	}
	return c, nil
}

// saveOutput writes the last streamed output when --save or -o was given.
func saveOutput() error {
	path := saveFile
	if path == "" {
		if !saveResult {
			return nil
		}
		path = transcript.QueryResultName(time.Now())
	}
	if err := transcript.SaveBuffer(path, app.Buffer()); err != nil {
		return fmt.Errorf("saving output: %w", err)
	}
	fmt.Println(cli.DotPad("saved", 24), path)
	return nil
}

// routeCommand builds the route query for prefix from the route flags.
func routeCommand(prefix, lineName string, advertised, received, extensive bool) (string, error) {
	if advertised && received {
		return "", fmt.Errorf("--advertised and --received are mutually exclusive")
	}
	if lineName == "" {
		if advertised || received {
			return "", fmt.Errorf("--line is required with --advertised or --received")
		}
		return query.RouteTable(prefix, extensive)
	}

	dev, err := app.Inventory.Device(deviceName)
	if err != nil {
		return "", err
	}
	line, ok := dev.Line(lineName)
	if !ok {
		return "", fmt.Errorf("device %s has no line %q (have: %s)", dev.Name, lineName, strings.Join(dev.LineNames(), ", "))
	}
	if received {
		return query.Received(prefix, line, extensive)
	}
	return query.Advertised(prefix, line, extensive)
}

var routeCmd = &cobra.Command{
	Use:   "route <prefix>",
	Short: "Query the routing table",
	Long: `Show a prefix in the routing table, or as advertised to / received from
the BGP peer of a line.

Examples:
  junotron -d edge1 route 10.0.0.0/8
  junotron -d edge1 route 10.0.0.0/8 --line ISP-A --advertised
  junotron -d edge1 route 10.0.0.0/8 --line ISP-B --received --extensive --save`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if deviceName == "" {
			return fmt.Errorf("device required: use -d <device> flag")
		}
		if err := app.Authorize(auth.PermRouteQuery); err != nil {
			return err
		}
		q, err := routeCommand(args[0], routeLine, routeAdvertised, routeReceived, routeExtensive)
		if err != nil {
			return err
		}
		if _, err := runQuery(cmd.Context(), q); err != nil {
			return err
		}
		return saveOutput()
	},
}

// cannedCommands returns the command list from file, or from settings.
func cannedCommands(file string) ([]string, error) {
	if file != "" {
		return inventory.LoadCommands(file)
	}
	if app.Settings.Commands != "" {
		return inventory.LoadCommands(app.Settings.Commands)
	}
	return nil, nil
}

var runCmd = &cobra.Command{
	Use:   "run [command...]",
	Short: "Run a read-only CLI command",
	Long: `Run an arbitrary operational command, or one from the command list.
Without arguments the command list is printed.

Examples:
  junotron -d edge1 run show bgp summary
  junotron -d edge1 run --index 3 --save`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var command string
		switch {
		case len(args) > 0:
			command = strings.Join(args, " ")
		default:
			cmds, err := cannedCommands(runCommands)
			if err != nil {
				return err
			}
			if runIndex == 0 {
				if len(cmds) == 0 {
					return fmt.Errorf("no command given and no command list configured")
				}
				for i, c := range cmds {
					fmt.Printf("%3d  %s\n", i+1, c)
				}
				return nil
			}
			if runIndex < 1 || runIndex > len(cmds) {
				return fmt.Errorf("--index %d out of range 1-%d", runIndex, len(cmds))
			}
			command = cmds[runIndex-1]
		}
		if deviceName == "" {
			return fmt.Errorf("device required: use -d <device> flag")
		}
		if err := app.Authorize(auth.PermRouteQuery); err != nil {
			return err
		}
		if _, err := runQuery(cmd.Context(), command); err != nil {
			return err
		}
		return saveOutput()
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Run the command list and save every output",
	Long: `Run each command of the command list with paging disabled and write
the outputs to a file. Commands that time out are noted and skipped.

Examples:
  junotron -d edge1 inspect
  junotron -d edge1 inspect --commands sweep.txt -o edge1-sweep.txt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Authorize(auth.PermInspect); err != nil {
			return err
		}
		cmds, err := cannedCommands(runCommands)
		if err != nil {
			return err
		}
		if len(cmds) == 0 {
			return fmt.Errorf("no commands: use --commands <file> or 'junotron settings set commands <file>'")
		}
		path := inspectOutput
		if path == "" {
			path = transcript.InspectionResultName(time.Now())
		}
		f, err := transcript.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()

		v, err := app.Stream(cmd.Context(), "inspect", os.Stdout, func(ctx context.Context) (any, error) {
			s, err := app.Session(ctx)
			if err != nil {
				return nil, err
			}
			return query.Inspect(ctx, app.Exec, s, cmds, f)
		})
		fmt.Println()
		res, _ := v.(*query.InspectResult)
		if res != nil {
			fmt.Println(cli.DotPad("commands", 24), strconv.Itoa(len(res.Outputs)-2))
			if len(res.TimedOut) > 0 {
				fmt.Println(cli.DotPad("timed out", 24), yellow(strings.Join(res.TimedOut, "; ")))
			}
			if len(res.Rejected) > 0 {
				fmt.Println(cli.DotPad("rejected", 24), yellow(strings.Join(res.Rejected, "; ")))
			}
			fmt.Println(cli.DotPad("duration", 24), res.Duration.Round(time.Millisecond))
			fmt.Println(cli.DotPad("saved", 24), path)
		}
		return err
	},
}

func init() {
	routeCmd.Flags().StringVarP(&routeLine, "line", "l", "", "BGP line from the inventory")
	routeCmd.Flags().BoolVar(&routeAdvertised, "advertised", false, "Routes advertised to the line's peer")
	routeCmd.Flags().BoolVar(&routeReceived, "received", false, "Routes received from the line's peer")
	routeCmd.Flags().BoolVar(&routeExtensive, "extensive", false, "Extensive output")

	for _, c := range []*cobra.Command{routeCmd, runCmd} {
		c.Flags().BoolVar(&saveResult, "save", false, "Save output to junos_query_result_<timestamp>.txt")
		c.Flags().StringVarP(&saveFile, "output", "o", "", "Save output to file")
	}

	runCmd.Flags().IntVarP(&runIndex, "index", "n", 0, "Run command N of the command list")
	runCmd.Flags().StringVar(&runCommands, "commands", "", "Command list file (default from settings)")
	inspectCmd.Flags().StringVar(&runCommands, "commands", "", "Command list file (default from settings)")
	inspectCmd.Flags().StringVarP(&inspectOutput, "output", "o", "", "Output file (default junos_inspection_result_<timestamp>.txt)")
}
