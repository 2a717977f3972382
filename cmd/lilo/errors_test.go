package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/lilo/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "usage errors are shown as is",
			err:  errors.New("invalid schedule: hour 25 out of range"),
			want: "invalid schedule: hour 25 out of range",
		},
		{
			name: "bluetooth off",
			err:  communication(fmt.Errorf("connect AA: %w", device.ErrBluetoothOff)),
			want: "communication failure: bluetooth is turned off",
		},
		{
			name: "connect timeout",
			err:  communication(&device.ConnectionError{Fault: device.ConnectTimeout, Msg: "after 90s"}),
			want: "communication failure: device did not respond",
		},
		{
			name: "command timeout",
			err:  communication(device.ErrCommandTimeout),
			want: "communication failure: command timed out",
		},
		{
			name: "adapter in error state",
			err:  communication(device.ErrPeripheralInErrorState),
			want: "communication failure: bluetooth adapter unavailable",
		},
		{
			name: "missing characteristic",
			err:  communication(&device.NotFoundError{Resource: "characteristic", UUIDs: []string{"180a", "2a29"}}),
			want: "communication failure: not supported by this device",
		},
		{
			name: "deadline",
			err:  communication(context.DeadlineExceeded),
			want: "communication failure: timed out",
		},
		{
			name: "details stay in the log",
			err:  communication(errors.New("hci: unexpected opcode 0x2a")),
			want: "communication failure: unexpected device error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestCommunicationKeepsChain(t *testing.T) {
	err := communication(device.ErrQueueClosed)

	assert.ErrorIs(t, err, device.ErrQueueClosed, "wrapped error MUST stay reachable")
	assert.Nil(t, communication(nil))
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
