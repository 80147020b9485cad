package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/newtron-network/junotron/pkg/settings"
	"github.com/newtron-network/junotron/pkg/transcript"
)

// Shell is an interactive REPL over one device session. Lines are dispatched
// to the same commands the CLI exposes; the session stays open between them.
type Shell struct {
	ctx      context.Context
	rl       *readline.Instance
	execute  bool
	commands map[string]func(args []string) error
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell with a persistent session",
	Long: `Start an interactive shell on the device. The session stays open between
commands. Write commands follow the execute mode toggled with 'execute on'.

Example:
  junotron -d edge1 shell`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := app.Session(cmd.Context()); err != nil {
			return err
		}
		userSettings.LastDevice = deviceName
		if err := userSettings.Save(); err != nil {
			fmt.Fprintln(os.Stderr, yellow("Could not save settings: "+err.Error()))
		}
		sh, err := NewShell(cmd.Context())
		if err != nil {
			return err
		}
		return sh.Run()
	},
}

// domainCompleter offers the domain names after a verb.
func domainCompleter(verb string) readline.PrefixCompleterInterface {
	return readline.PcItem(verb,
		readline.PcItem("prefix-list"),
		readline.PcItem("firewall"),
		readline.PcItem("static"),
		readline.PcItem("blackhole"),
	)
}

// NewShell creates a shell bound to the current device.
func NewShell(ctx context.Context) (*Shell, error) {
	completer := readline.NewPrefixCompleter(
		domainCompleter("show"),
		domainCompleter("add"),
		domainCompleter("delete"),
		domainCompleter("refresh"),
		readline.PcItem("commit"),
		readline.PcItem("route"),
		readline.PcItem("run"),
		readline.PcItem("inspect"),
		readline.PcItem("lines"),
		readline.PcItem("save"),
		readline.PcItem("execute", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt(false),
		HistoryFile:     filepath.Join(settings.Dir(), "history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return nil, fmt.Errorf("readline: %w", err)
	}

	s := &Shell{ctx: ctx, rl: rl, execute: executeMode}
	s.commands = map[string]func(args []string) error{
		"save":    s.cmdSave,
		"execute": s.cmdExecute,
		"help":    func([]string) error { s.cmdHelp(); return nil },
		"?":       func([]string) error { s.cmdHelp(); return nil },
	}
	return s, nil
}

func prompt(execute bool) string {
	if execute {
		return fmt.Sprintf("%s%s> ", deviceName, red("[x]"))
	}
	return deviceName + "> "
}

// Run reads lines until quit or EOF.
func (s *Shell) Run() error {
	defer s.rl.Close()
	fmt.Printf("Connected to %s.\n", bold(deviceName))
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args := strings.Fields(line)
		switch args[0] {
		case "quit", "exit", "q":
			return nil
		}
		if err := s.dispatch(args); err != nil {
			fmt.Println(red("Error:"), err)
		}
	}
}

// dispatch runs a shell built-in or the matching CLI command.
func (s *Shell) dispatch(args []string) error {
	if fn, ok := s.commands[args[0]]; ok {
		return fn(args[1:])
	}

	c, rest, err := rootCmd.Find(args)
	if err != nil || c == rootCmd || c.RunE == nil {
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", args[0])
	}
	if c.Name() == "shell" {
		return fmt.Errorf("already in the shell")
	}

	c.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	if err := c.ParseFlags(rest); err != nil {
		return err
	}
	if s.execute {
		executeMode = true
	}
	pos := c.Flags().Args()
	if err := c.ValidateArgs(pos); err != nil {
		return err
	}
	c.SetContext(s.ctx)
	return c.RunE(c, pos)
}

func (s *Shell) cmdExecute(args []string) error {
	if len(args) == 1 {
		switch args[0] {
		case "on":
			s.execute = true
		case "off":
			s.execute = false
		default:
			return fmt.Errorf("usage: execute on|off")
		}
	}
	s.rl.SetPrompt(prompt(s.execute))
	if s.execute {
		fmt.Println(red("Execute mode: changes are committed."))
	} else {
		fmt.Println(green("Dry-run mode: changes are previewed only."))
	}
	return nil
}

// cmdSave writes the output of the last query to a file.
func (s *Shell) cmdSave(args []string) error {
	path := transcript.QueryResultName(time.Now())
	if len(args) > 0 {
		path = args[0]
	}
	if err := transcript.SaveBuffer(path, app.Buffer()); err != nil {
		return err
	}
	fmt.Println("Saved to " + path)
	return nil
}

func (s *Shell) cmdHelp() {
	fmt.Println(`Commands:
  show <domain> [group]              Show groups or one group's members
  add <domain> [group] <prefix>...   Add members (previewed unless execute on)
  delete <domain> <group> [member]...  Delete members or a route
  refresh <domain> [group]           Re-read a domain
  commit                             Commit pending configuration
  route <prefix> [--line L --advertised|--received] [--extensive]
  run <command...> | run -n <index>  Run an operational command
  inspect [--commands file] [-o file]  Run the command list into a file
  lines                              List BGP lines
  save [file]                        Save the last query output
  execute on|off                     Toggle execute mode
  quit                               Leave the shell

Domains: prefix-list (pl), firewall (fw), static, blackhole (bh)`)
}
