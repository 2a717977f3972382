package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		expected string
	}{
		{
			name:     "no UUIDs",
			err:      &NotFoundError{Resource: "service"},
			expected: "service not found",
		},
		{
			name:     "service",
			err:      &NotFoundError{Resource: "service", UUIDs: []string{"180a"}},
			expected: `service "180a" not found`,
		},
		{
			name:     "characteristic in service",
			err:      &NotFoundError{Resource: "characteristic", UUIDs: []string{"180a", "2a29"}},
			expected: `characteristic "2a29" not found in service "180a"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.ErrorIs(t, fmt.Errorf("wrapped: %w", tt.err), ErrCharacteristicNotFound,
				"every NotFoundError MUST match ErrCharacteristicNotFound")
		})
	}
}

func TestConnectionError_Is(t *testing.T) {
	err := fmt.Errorf("%w: dial aborted", ErrConnectTimeout)

	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.NotErrorIs(t, err, ErrPeripheralInErrorState)
	assert.True(t, IsConnectionFault(err, ConnectTimeout))
	assert.False(t, IsConnectionFault(errors.New("other"), ConnectTimeout))
	assert.Equal(t, "connect_timeout: after 90s", (&ConnectionError{Fault: ConnectTimeout, Msg: "after 90s"}).Error())
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		input  error
		target error
	}{
		{"nil passes through", nil, nil},
		{"bluetooth off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), ErrBluetoothOff},
		{"not connected", errors.New("Device Not Connected"), ErrNotConnected},
		{"disconnected", errors.New("peripheral disconnected"), ErrNotConnected},
		{"already connected", errors.New("device already connected"), ErrAlreadyConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.input)
			if tt.target == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.target)
			assert.Contains(t, got.Error(), tt.input.Error(), "original message MUST be preserved")
		})
	}

	t.Run("unknown errors are returned unchanged", func(t *testing.T) {
		orig := errors.New("att: invalid handle")
		assert.Same(t, orig, NormalizeError(orig))
	})
}

func TestMalformedPayloadError(t *testing.T) {
	err := &MalformedPayloadError{Attribute: "clock", Want: 2, Payload: []byte{0x01, 0x02, 0x03}}
	assert.Equal(t, "malformed clock payload: want 2 bytes, got 3 (010203)", err.Error())
}

func TestConnectionState(t *testing.T) {
	assert.Equal(t, "disconnecting", Disconnecting.String())

	assert.True(t, Error.IsTerminal())
	assert.False(t, Connected.IsTerminal())
	assert.Equal(t, "ConnectionState(42)", ConnectionState(42).String())
}

func TestFindCharacteristic(t *testing.T) {
	chars := []Characteristic{
		testChar{service: "180a", uuid: "2a29"},
		testChar{service: "53e11631b8404b2193ce081726ddc739", uuid: "53e11632b8404b2193ce081726ddc739"},
	}

	c, err := FindCharacteristic(chars, "0000180a-0000-1000-8000-00805f9b34fb", "2A29")
	assert.NoError(t, err)
	assert.Equal(t, "2a29", c.UUID())

	c, err = FindCharacteristic(chars, "53e11631-b840-4b21-93ce-081726ddc739", "53e11632-b840-4b21-93ce-081726ddc739")
	assert.NoError(t, err)
	assert.Equal(t, "53e11632b8404b2193ce081726ddc739", c.UUID())

	_, err = FindCharacteristic(chars, "180a", "2a26")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, "characteristic", nf.Resource)

	_, err = FindCharacteristic(chars, "ffff", "2a26")
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, "service", nf.Resource)
}

type testChar struct {
	service string
	uuid    string
}

func (c testChar) ServiceUUID() string { return c.service }
func (c testChar) UUID() string        { return c.uuid }
