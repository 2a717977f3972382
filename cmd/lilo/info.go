package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <device-address>",
	Short: "Show manufacturer and firmware revision",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	d, err := s.driver(args[0])
	if err != nil {
		return err
	}

	manufacturer, err := d.ManufacturerName(s.ctx)
	if optional(err) != nil {
		return s.fail(err)
	}
	firmware, err := d.FirmwareRevision(s.ctx)
	if optional(err) != nil {
		return s.fail(err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Device:\t%s\n", d.Address())
	fmt.Fprintf(w, "Manufacturer:\t%s\n", orDash(manufacturer))
	fmt.Fprintf(w, "Firmware:\t%s\n", orDash(firmware))
	return w.Flush()
}
