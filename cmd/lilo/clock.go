package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/lilo/internal/lilo"
)

var clockCmd = &cobra.Command{
	Use:   "clock <device-address> [HH:MM]",
	Short: "Show or set the device clock",
	Long: `Without a time prints the device clock. With a time sets it; --sync sets it
to the local wall clock, writing only when it differs.

Examples:
  lilo clock C4:64:E3:00:11:22
  lilo clock C4:64:E3:00:11:22 --sync
  lilo clock C4:64:E3:00:11:22 07:45`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runClock,
}

var clockSync bool

func init() {
	clockCmd.Flags().BoolVar(&clockSync, "sync", false, "Set the device clock to the local time")
}

func runClock(cmd *cobra.Command, args []string) error {
	var target *lilo.TimeOfDay
	if len(args) == 2 {
		if clockSync {
			return fmt.Errorf("--sync cannot be combined with an explicit time")
		}
		parsed, err := lilo.ParseTimeOfDay(args[1])
		if err != nil {
			return fmt.Errorf("invalid time: %w", err)
		}
		target = &parsed
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	d, err := s.driver(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch {
	case clockSync:
		written, err := d.SyncClock(s.ctx)
		if err != nil {
			return s.fail(err)
		}
		if written {
			fmt.Fprintf(out, "%s: clock synchronised\n", d.Address())
		} else {
			fmt.Fprintf(out, "%s: clock already in sync\n", d.Address())
		}
		return nil

	case target != nil:
		if err := d.WriteClock(s.ctx, *target); err != nil {
			return s.fail(err)
		}
		fmt.Fprintf(out, "%s: clock set to %s\n", d.Address(), target)
		return nil
	}

	current, err := d.ReadClock(s.ctx)
	if err != nil {
		return s.fail(err)
	}
	if current == nil {
		fmt.Fprintf(out, "%s: clock not set\n", d.Address())
		return nil
	}
	fmt.Fprintf(out, "%s: %s\n", d.Address(), current)
	return nil
}
