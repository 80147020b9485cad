package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newtron-network/junotron/pkg/cli"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List inventory devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devs := app.Inventory.Devices()
		if len(devs) == 0 {
			fmt.Println("No devices in " + app.Inventory.Path)
			return nil
		}
		t := cli.NewTable(os.Stdout, "NAME", "ADDRESS", "TRANSPORT", "PORT", "USER", "LINES")
		for _, d := range devs {
			name := d.Name
			if d.Name == deviceName {
				name = green(d.Name + "*")
			}
			t.Row(name, d.Address, d.Transport, strconv.Itoa(d.Port), d.Username, strconv.Itoa(len(d.Lines)))
		}
		return t.Flush()
	},
}

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "List BGP lines of the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if deviceName == "" {
			return fmt.Errorf("device required: use -d <device> flag")
		}
		dev, err := app.Inventory.Device(deviceName)
		if err != nil {
			return err
		}
		if len(dev.Lines) == 0 {
			fmt.Printf("No lines defined for %s\n", dev.Name)
			return nil
		}
		t := cli.NewTable(os.Stdout, "LINE", "PEER")
		for _, l := range dev.Lines {
			t.Row(l.Name, l.Address)
		}
		return t.Flush()
	},
}
