package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/lilo/internal/device"
	"github.com/srg/lilo/internal/lilo"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [device-address...]",
	Short: "Show whether the light is on, with its settings",
	Long: `Reads the on/off state, intensity, schedule, clock and device information of
one or more timers. Without an address the devices listed in the config file are used.

Examples:
  lilo status C4:64:E3:00:11:22
  lilo status C4:64:E3:00:11:22 --format json`,
	RunE: runStatus,
}

var statusFormat string

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "", "Output format (table, json)")
}

// statusReport is everything status shows about one timer.
// Empty fields are not supported by the device or not configured on it.
type statusReport struct {
	Address      string `json:"address"`
	State        string `json:"state"`
	Intensity    string `json:"intensity,omitempty"`
	Schedule     string `json:"schedule,omitempty"`
	Clock        string `json:"clock,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Firmware     string `json:"firmware,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	format, err := outputFormat(statusFormat, s.cfg.OutputFormat)
	if err != nil {
		return err
	}
	addresses, err := s.addresses(args)
	if err != nil {
		return err
	}

	reports := make([]statusReport, 0, len(addresses))
	for _, address := range addresses {
		d, err := s.driver(address)
		if err != nil {
			return err
		}
		report, err := readStatus(s.ctx, d)
		if err != nil {
			return s.fail(err)
		}
		reports = append(reports, report)
	}

	if format == "json" {
		if len(reports) == 1 {
			return writeJSON(cmd.OutOrStdout(), reports[0])
		}
		return writeJSON(cmd.OutOrStdout(), reports)
	}
	return writeStatusTable(cmd.OutOrStdout(), reports)
}

// optional turns "not supported" into an empty value.
func optional(err error) error {
	if errors.Is(err, device.ErrCharacteristicNotFound) {
		return nil
	}
	return err
}

func readStatus(ctx context.Context, d *lilo.Lilo) (statusReport, error) {
	report := statusReport{Address: d.Address()}

	state, err := d.OnValue(ctx)
	if err != nil {
		return report, err
	}
	report.State = state.String()

	intensity, err := d.ReadIntensity(ctx)
	if err := optional(err); err != nil {
		return report, err
	}
	if intensity != nil {
		report.Intensity = intensity.String()
	}

	schedule, err := d.ReadSchedule(ctx)
	if err := optional(err); err != nil {
		return report, err
	}
	if schedule != nil {
		report.Schedule = schedule.String()
	}

	clock, err := d.ReadClock(ctx)
	if err := optional(err); err != nil {
		return report, err
	}
	if clock != nil {
		report.Clock = clock.String()
	}

	if report.Manufacturer, err = d.ManufacturerName(ctx); optional(err) != nil {
		return report, err
	}
	if report.Firmware, err = d.FirmwareRevision(ctx); optional(err) != nil {
		return report, err
	}
	return report, nil
}

var (
	stateOn      = color.New(color.FgGreen, color.Bold).SprintFunc()
	stateOff     = color.New(color.FgRed).SprintFunc()
	stateUnknown = color.New(color.FgYellow).SprintFunc()
)

func colorState(state string) string {
	switch state {
	case lilo.On.String():
		return stateOn(state)
	case lilo.Off.String():
		return stateOff(state)
	default:
		return stateUnknown(state)
	}
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func writeStatusTable(out io.Writer, reports []statusReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Device:\t%s\n", r.Address)
		fmt.Fprintf(w, "State:\t%s\n", colorState(r.State))
		fmt.Fprintf(w, "Intensity:\t%s\n", orDash(r.Intensity))
		fmt.Fprintf(w, "Schedule:\t%s\n", orDash(r.Schedule))
		fmt.Fprintf(w, "Clock:\t%s\n", orDash(r.Clock))
		fmt.Fprintf(w, "Manufacturer:\t%s\n", orDash(r.Manufacturer))
		fmt.Fprintf(w, "Firmware:\t%s\n", orDash(r.Firmware))
	}
	return w.Flush()
}
