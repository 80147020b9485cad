package inventory

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/newtron-network/junotron/pkg/util"
)

const sampleInventory = `
devices:
  zeta:
    address: 192.0.2.10
    transport: ssh
    port: 22
    username: admin
    password: secret
    lines:
      - {name: ISP-A, address: 203.0.113.1}
      - {name: ISP-B, address: 198.51.100.1}
  alpha:
    address: 192.0.2.20
    transport: telnet
    port: 2323
    username: ops
`

func TestParse_Order(t *testing.T) {
	inv, err := Parse([]byte(sampleInventory))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got, want := inv.Names(), []string{"zeta", "alpha"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v (file order)", got, want)
	}

	zeta, err := inv.Device("zeta")
	if err != nil {
		t.Fatalf("Device(zeta) error = %v", err)
	}
	if zeta.Port != 22 {
		t.Errorf("zeta.Port = %d, want 22", zeta.Port)
	}
	if zeta.Endpoint() != "192.0.2.10:22" {
		t.Errorf("Endpoint() = %q", zeta.Endpoint())
	}
	if got := zeta.LineNames(); !reflect.DeepEqual(got, []string{"ISP-A", "ISP-B"}) {
		t.Errorf("LineNames() = %v", got)
	}
	l, ok := zeta.Line("ISP-B")
	if !ok || l.Address != "198.51.100.1" {
		t.Errorf("Line(ISP-B) = %+v, %v", l, ok)
	}

	alpha, _ := inv.Device("alpha")
	if alpha.Port != 2323 || alpha.Transport != TransportTelnet {
		t.Errorf("alpha = %+v", alpha)
	}
	if alpha.Password != "" {
		t.Errorf("empty password should stay empty for prompting, got %q", alpha.Password)
	}
}

func TestDevice_Key(t *testing.T) {
	a := &Device{Address: "192.0.2.1", Port: 22, Transport: "ssh", Username: "admin"}
	b := *a
	b.Name = "other-name"
	if a.Key() != b.Key() {
		t.Error("same endpoint under a different name should share a key")
	}
	b.Port = 2222
	if a.Key() == b.Key() {
		t.Error("different port should change the key")
	}
}

func TestParse_NotFound(t *testing.T) {
	inv, err := Parse([]byte(sampleInventory))
	if err != nil {
		t.Fatal(err)
	}
	_, err = inv.Device("missing")
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Device(missing) error = %v, want ErrNotFound", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "no devices section",
			yaml: "other: 1\n",
			want: []string{"devices: section is required"},
		},
		{
			name: "devices not a mapping",
			yaml: "devices:\n  - a\n",
			want: []string{"expected a mapping"},
		},
		{
			name: "missing fields reported together",
			yaml: "devices:\n  r1:\n    port: 22\n",
			want: []string{"r1: address is required", "r1: transport is required", "r1: username is required"},
		},
		{
			name: "missing port is not defaulted",
			yaml: "devices:\n  r1:\n    address: 10.0.0.1\n    transport: ssh\n    username: a\n",
			want: []string{"r1: port is required"},
		},
		{
			name: "missing telnet port",
			yaml: "devices:\n  r1:\n    address: 10.0.0.1\n    transport: telnet\n    username: a\n",
			want: []string{"r1: port is required"},
		},
		{
			name: "bad transport and port",
			yaml: "devices:\n  r1:\n    address: 10.0.0.1\n    transport: http\n    port: 70000\n    username: a\n",
			want: []string{"transport must be 'ssh' or 'telnet'", "port 70000 out of range"},
		},
		{
			name: "bad line",
			yaml: "devices:\n  r1:\n    address: 10.0.0.1\n    transport: ssh\n    port: 22\n    username: a\n    lines:\n      - {name: ISP-A, address: nope}\n      - {address: 10.0.0.2}\n",
			want: []string{`line ISP-A: address "nope"`, "line 1: name is required"},
		},
		{
			name: "duplicate device",
			yaml: "devices:\n  r1:\n    address: 10.0.0.1\n    transport: ssh\n    port: 22\n    username: a\n  r1:\n    address: 10.0.0.2\n    transport: ssh\n    port: 22\n    username: a\n",
			want: []string{"r1: duplicate name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, util.ErrValidationFailed) {
				t.Errorf("error %v should be a validation error", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q missing %q", err, w)
				}
			}
		})
	}
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("devices: [unterminated"))
	if err == nil || !strings.Contains(err.Error(), "parsing inventory YAML") {
		t.Errorf("Parse() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := os.WriteFile(path, []byte(sampleInventory), 0644); err != nil {
		t.Fatal(err)
	}
	inv, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if inv.Path != path || inv.Len() != 2 {
		t.Errorf("inv = path %q len %d", inv.Path, inv.Len())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) should fail")
	}
}

func TestLoadCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.txt")
	content := "# inspection sweep\nshow version\n\n   show chassis alarms  \n#show log\nshow route summary\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCommands(path)
	if err != nil {
		t.Fatalf("LoadCommands() error = %v", err)
	}
	want := []string{"show version", "show chassis alarms", "show route summary"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadCommands() = %q, want %q", got, want)
	}
}

func TestReadCommands_Empty(t *testing.T) {
	got, err := ReadCommands(strings.NewReader("\n# only comments\n"))
	if err != nil || len(got) != 0 {
		t.Errorf("ReadCommands() = %v, %v", got, err)
	}
}

func TestParse_Access(t *testing.T) {
	inv, err := Parse([]byte(sampleInventory))
	if err != nil {
		t.Fatal(err)
	}
	if inv.Access != nil {
		t.Errorf("Access = %+v, want nil without an access section", inv.Access)
	}

	withAccess := sampleInventory + `
access:
  superusers: [admin]
  user_groups:
    soc: [charlie]
  permissions:
    blackhole.modify: [soc]
  devices:
    zeta:
      firewall.modify: [soc]
`
	inv, err = Parse([]byte(withAccess))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if inv.Access == nil {
		t.Fatal("Access not parsed")
	}
	if got := inv.Access.Permissions["blackhole.modify"]; !reflect.DeepEqual(got, []string{"soc"}) {
		t.Errorf("permissions = %v", got)
	}
	if got := inv.Access.Devices["zeta"]["firewall.modify"]; !reflect.DeepEqual(got, []string{"soc"}) {
		t.Errorf("device permissions = %v", got)
	}
}
