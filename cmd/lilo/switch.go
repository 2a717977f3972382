package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/lilo/internal/lilo"
)

var onCmd = &cobra.Command{
	Use:   "on <device-address>",
	Short: "Switch the light on",
	Long: `Switches the light on by setting an all-day schedule and the scheduled
intensity. The device clock is synchronised first. Nothing is written when the
light is already on.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwitch(cmd, args[0], true)
	},
}

var offCmd = &cobra.Command{
	Use:   "off <device-address>",
	Short: "Switch the light off",
	Long: `Switches the light off by setting the intensity to zero. Nothing is written
when the light is already off.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwitch(cmd, args[0], false)
	},
}

func runSwitch(cmd *cobra.Command, address string, on bool) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	d, err := s.driver(address)
	if err != nil {
		return err
	}
	if err := d.SetOnValue(s.ctx, on); err != nil {
		return s.fail(err)
	}

	state := lilo.Off
	if on {
		state = lilo.On
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", d.Address(), colorState(state.String()))
	return nil
}
