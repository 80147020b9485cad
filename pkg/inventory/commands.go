package inventory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadCommands reads a newline-delimited command list. Blank lines and lines
// starting with '#' are skipped; the rest are returned trimmed, in order.
func LoadCommands(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading command list: %w", err)
	}
	defer f.Close()

	cmds, err := ReadCommands(f)
	if err != nil {
		return nil, fmt.Errorf("command list %s: %w", path, err)
	}
	return cmds, nil
}

// ReadCommands is LoadCommands over an arbitrary reader.
func ReadCommands(r io.Reader) ([]string, error) {
	var cmds []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmds = append(cmds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cmds, nil
}
