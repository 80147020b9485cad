package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/junotron/pkg/auth"
	"github.com/newtron-network/junotron/pkg/util"
)

// NotFoundError is returned when a device name is not in the inventory.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("device %q not in inventory", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return util.ErrNotFound
}

type inventoryFile struct {
	Devices yaml.Node    `yaml:"devices"`
	Access  *auth.Policy `yaml:"access"`
}

// Load reads and validates an inventory file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %w", err)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	inv.Path = path
	return inv, nil
}

// Parse decodes inventory YAML. Device order follows the document.
// Missing or malformed fields are all reported together; nothing is
// silently defaulted.
func Parse(data []byte) (*Inventory, error) {
	var f inventoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing inventory YAML: %w", err)
	}

	if f.Devices.Kind == 0 {
		return nil, util.NewValidationError("devices: section is required")
	}
	if f.Devices.Kind != yaml.MappingNode {
		return nil, util.NewValidationError(fmt.Sprintf("devices: expected a mapping of name to device (line %d)", f.Devices.Line))
	}

	inv := &Inventory{Access: f.Access, byName: make(map[string]*Device)}
	v := &util.ValidationBuilder{}

	// Mapping node content alternates key, value.
	for i := 0; i+1 < len(f.Devices.Content); i += 2 {
		keyNode, valNode := f.Devices.Content[i], f.Devices.Content[i+1]
		name := keyNode.Value

		var d Device
		if err := valNode.Decode(&d); err != nil {
			v.AddErrorf("device %s (line %d): %v", name, keyNode.Line, err)
			continue
		}
		d.Name = name

		if _, dup := inv.byName[name]; dup {
			v.AddErrorf("device %s: duplicate name (line %d)", name, keyNode.Line)
			continue
		}
		validateDevice(&d, v)

		inv.devices = append(inv.devices, &d)
		inv.byName[name] = &d
	}

	if len(inv.devices) == 0 && !v.HasErrors() {
		v.AddError("devices: at least one device is required")
	}
	if err := v.Build(); err != nil {
		return nil, err
	}
	return inv, nil
}

func validateDevice(d *Device, v *util.ValidationBuilder) {
	if d.Name == "" {
		v.AddError("device with empty name")
	}
	if d.Address == "" {
		v.AddErrorf("device %s: address is required", d.Name)
	}
	switch d.Transport {
	case TransportSSH, TransportTelnet:
	case "":
		v.AddErrorf("device %s: transport is required (ssh or telnet)", d.Name)
	default:
		v.AddErrorf("device %s: transport must be 'ssh' or 'telnet', got %q", d.Name, d.Transport)
	}
	if d.Port == 0 {
		v.AddErrorf("device %s: port is required", d.Name)
	} else if d.Port < 0 || d.Port > 65535 {
		v.AddErrorf("device %s: port %d out of range", d.Name, d.Port)
	}
	if d.Username == "" {
		v.AddErrorf("device %s: username is required", d.Name)
	}

	seen := make(map[string]bool)
	for i, l := range d.Lines {
		if l.Name == "" {
			v.AddErrorf("device %s: line %d: name is required", d.Name, i)
			continue
		}
		if seen[l.Name] {
			v.AddErrorf("device %s: line %s: duplicate name", d.Name, l.Name)
		}
		seen[l.Name] = true
		if !util.IsValidIPv4(l.Address) {
			v.AddErrorf("device %s: line %s: address %q is not an IPv4 address", d.Name, l.Name, l.Address)
		}
	}
}
