// Package inventory loads the device inventory and canned command lists.
package inventory

import (
	"net"
	"strconv"

	"github.com/newtron-network/junotron/pkg/auth"
)

// Transport kinds.
const (
	TransportSSH    = "ssh"
	TransportTelnet = "telnet"
)

// Device describes one managed router endpoint. It is read-only after load.
type Device struct {
	Name      string `yaml:"-"`
	Address   string `yaml:"address"`
	Transport string `yaml:"transport"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Lines     []Line `yaml:"lines"`
}

// Line binds a human name to a BGP peer address.
type Line struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Endpoint returns host:port.
func (d *Device) Endpoint() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// Key identifies the endpoint for session reuse. Two devices with the same
// key share a connection; anything else forces a reconnect.
func (d *Device) Key() string {
	return d.Transport + "://" + d.Username + "@" + d.Endpoint()
}

// Line returns the line with the given name.
func (d *Device) Line(name string) (Line, bool) {
	for _, l := range d.Lines {
		if l.Name == name {
			return l, true
		}
	}
	return Line{}, false
}

// LineNames returns line names in inventory order.
func (d *Device) LineNames() []string {
	names := make([]string, len(d.Lines))
	for i, l := range d.Lines {
		names[i] = l.Name
	}
	return names
}

// Inventory is the ordered set of devices from one file.
type Inventory struct {
	Path string
	// Access is the optional permission policy; nil allows everything.
	Access *auth.Policy

	devices []*Device
	byName  map[string]*Device
}

// Devices returns devices in file order.
func (inv *Inventory) Devices() []*Device {
	out := make([]*Device, len(inv.devices))
	copy(out, inv.devices)
	return out
}

// Names returns device names in file order.
func (inv *Inventory) Names() []string {
	names := make([]string, len(inv.devices))
	for i, d := range inv.devices {
		names[i] = d.Name
	}
	return names
}

// Device looks up a device by name.
func (inv *Inventory) Device(name string) (*Device, error) {
	d, ok := inv.byName[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return d, nil
}

// Len returns the number of devices.
func (inv *Inventory) Len() int {
	return len(inv.devices)
}
