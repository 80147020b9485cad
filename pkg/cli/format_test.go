package cli

import (
	"strings"
	"testing"
)

func TestDotPad(t *testing.T) {
	tests := []struct {
		input string
		width int
		want  string
	}{
		{"refresh", 20, "refresh " + strings.Repeat(".", 12)},
		{"ok", 10, "ok " + strings.Repeat(".", 7)},
		{"abcde", 6, "abcde"},
		{"prefix-list", 5, "prefix-list"},
		{"", 2, " ."},
		{"", 1, ""},
	}
	for _, tt := range tests {
		if got := DotPad(tt.input, tt.width); got != tt.want {
			t.Errorf("DotPad(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.want)
		}
	}
}

func TestDotPad_ResultLength(t *testing.T) {
	result := DotPad("test", 20)
	if len(result) != 20 {
		t.Errorf("DotPad(%q, 20) len = %d, want 20", "test", len(result))
	}
}

func setColor(t *testing.T, on bool) {
	t.Helper()
	prev := colorEnabled
	colorEnabled = on
	t.Cleanup(func() { colorEnabled = prev })
}

func TestColorFunctions(t *testing.T) {
	setColor(t, true)
	tests := []struct {
		name   string
		fn     func(string) string
		prefix string
	}{
		{"Green", Green, "\033[32m"},
		{"Yellow", Yellow, "\033[33m"},
		{"Red", Red, "\033[31m"},
		{"Bold", Bold, "\033[1m"},
		{"Dim", Dim, "\033[2m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn("hello")
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("%s should start with %q", tt.name, tt.prefix)
			}
			if !strings.Contains(got, "hello") {
				t.Errorf("%s should contain the input string", tt.name)
			}
			if !strings.HasSuffix(got, "\033[0m") {
				t.Errorf("%s should end with reset code", tt.name)
			}
		})

		t.Run(tt.name+"_empty", func(t *testing.T) {
			got := tt.fn("")
			if !strings.HasSuffix(got, "\033[0m") {
				t.Errorf("%s(\"\") should end with reset code", tt.name)
			}
		})
	}
}

func TestColorFunctions_NoColor(t *testing.T) {
	setColor(t, false)
	for _, fn := range []func(string) string{Green, Yellow, Red, Bold, Dim} {
		if got := fn("hello"); got != "hello" {
			t.Errorf("got %q, want plain text with colour off", got)
		}
	}
}

func TestVerdictAndCommandLine(t *testing.T) {
	setColor(t, false)
	if got := Verdict(nil, true); got != "ok" {
		t.Errorf("Verdict(nil, true) = %q", got)
	}
	if got := Verdict(nil, false); got != "unverified" {
		t.Errorf("Verdict(nil, false) = %q", got)
	}
	if got := Verdict(errTest{}, true); got != "failed" {
		t.Errorf("Verdict(err, true) = %q", got)
	}

	tests := []struct {
		cmd  string
		want string
	}{
		{"set policy-options prefix-list A 10.0.0.0/8", "+ set policy-options prefix-list A 10.0.0.0/8"},
		{"delete policy-options prefix-list A 10.0.0.0/8", "- delete policy-options prefix-list A 10.0.0.0/8"},
		{"commit", "  commit"},
	}
	for _, tt := range tests {
		if got := CommandLine(tt.cmd); got != tt.want {
			t.Errorf("CommandLine(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestCommandLine_Colored(t *testing.T) {
	setColor(t, true)
	cmd := "set policy-options prefix-list A 10.0.0.0/8"
	got := CommandLine(cmd)
	if !strings.HasPrefix(got, "\033[32m+ ") || !strings.HasSuffix(got, "\033[0m"+cmd) {
		t.Errorf("CommandLine(%q) = %q", cmd, got)
	}
}

type errTest struct{}

func (errTest) Error() string { return "x" }
