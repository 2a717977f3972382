package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/lilo/internal/device"
	"github.com/srg/lilo/internal/scanner"
	"golang.org/x/term"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find nearby LILO timers",
	Long: `Scans for Bluetooth Low Energy advertisements and lists the LILO timers found.

Examples:
  # Scan with the configured duration (10s by default)
  lilo scan

  # Scan for 30 seconds and print JSON
  lilo scan --duration 30s --format json

  # List every BLE device, not only LILO timers
  lilo scan --all`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanAllowList []string
	scanAll       bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Show every device, not only LILO timers")
}

// scanResult is the JSON form of one discovered device.
type scanResult struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	RSSI        int      `json:"rssi"`
	Connectable bool     `json:"connectable"`
	Services    []string `json:"services,omitempty"`
}

func runScan(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	format, err := outputFormat(scanFormat, s.cfg.OutputFormat)
	if err != nil {
		return err
	}

	opts := scanner.DefaultOptions()
	opts.Duration = s.cfg.ScanTimeout
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}
	opts.LocalName = s.cfg.LocalName
	if scanAll {
		opts.LocalName = ""
	}
	opts.AllowList = scanAllowList

	source, err := newScanner()
	if err != nil {
		return s.fail(err)
	}

	if isTerminal(cmd.ErrOrStderr()) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Scanning for %s...\n", describeScan(opts))
	}

	found, err := scanner.New(source, s.logger).Scan(s.ctx, opts)
	if err != nil {
		return s.fail(err)
	}

	if format == "json" {
		return writeScanJSON(cmd.OutOrStdout(), found)
	}
	return writeScanTable(cmd.OutOrStdout(), found)
}

func describeScan(opts *scanner.Options) string {
	what := "BLE devices"
	if opts.LocalName != "" {
		what = opts.LocalName + " timers"
	}
	if opts.Duration > 0 {
		return fmt.Sprintf("%s (%s)", what, opts.Duration)
	}
	return what + " (Ctrl+C to stop)"
}

func writeScanTable(out io.Writer, found []device.Advertisement) error {
	if len(found) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 48))
	for _, adv := range found {
		name := adv.LocalName()
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", name, strings.ToUpper(adv.Addr()), adv.RSSI())
	}
	return w.Flush()
}

func writeScanJSON(out io.Writer, found []device.Advertisement) error {
	results := make([]scanResult, 0, len(found))
	for _, adv := range found {
		results = append(results, scanResult{
			Name:        adv.LocalName(),
			Address:     strings.ToUpper(adv.Addr()),
			RSSI:        adv.RSSI(),
			Connectable: adv.Connectable(),
			Services:    adv.Services(),
		})
	}
	return writeJSON(out, results)
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// outputFormat picks the flag value over the configured one and validates it.
func outputFormat(flag, configured string) (string, error) {
	format := configured
	if flag != "" {
		format = flag
	}
	switch format {
	case "table", "json":
		return format, nil
	default:
		return "", fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
