package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/lilo/internal/lilo"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <device-address> [HH:MM-HH:MM|clear]",
	Short: "Show or change the on/off schedule",
	Long: `Without a window prints the current schedule. With a window sets it;
"clear" removes the schedule.

Examples:
  lilo schedule C4:64:E3:00:11:22
  lilo schedule C4:64:E3:00:11:22 18:30-23:00
  lilo schedule C4:64:E3:00:11:22 clear`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	var (
		window *lilo.Schedule
		write  bool
	)
	if len(args) == 2 {
		write = true
		if !strings.EqualFold(args[1], "clear") {
			parsed, err := lilo.ParseSchedule(args[1])
			if err != nil {
				return fmt.Errorf("invalid schedule: %w", err)
			}
			window = &parsed
		}
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

	if write {
		if err := d.WriteSchedule(s.ctx, window); err != nil {
			return s.fail(err)
		}
		if window == nil {
			fmt.Fprintf(out, "%s: schedule cleared\n", d.Address())
			return nil
		}
		fmt.Fprintf(out, "%s: schedule set to %s\n", d.Address(), window)
		return nil
	}

	current, err := d.ReadSchedule(s.ctx)
	if err != nil {
		return s.fail(err)
	}
	if current == nil {
		fmt.Fprintf(out, "%s: no schedule\n", d.Address())
		return nil
	}
	fmt.Fprintf(out, "%s: %s\n", d.Address(), current)
	return nil
}
