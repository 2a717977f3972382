package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	// input → normalized form used for characteristic lookups
	cases := map[string]string{
		"2a29":                                 "2a29",
		"0X2A26":                               "2a26",
		" 0x180A ":                             "180a",
		"0000180a-0000-1000-8000-00805f9b34fb": "180a",
		"00002A2900001000800000805F9B34FB":     "2a29",
		"53E11631-B840-4B21-93CE-081726DDC739": "53e11631b8404b2193ce081726ddc739",
		"53e12189b8404b2193ce081726ddc739":     "53e12189b8404b2193ce081726ddc739",
		"aa002902-0000-1000-8000-00805f9b34fb": "aa00290200001000800000805f9b34fb",
		"":                                     "",
		"timer":                                "",
	}

	for in, want := range cases {
		assert.Equalf(t, want, NormalizeUUID(in), "NormalizeUUID(%q)", in)
	}
}

func TestNormalizeUUID_SameCharacteristic(t *testing.T) {
	// go-ble reports the clock characteristic without dashes; lookups use the dashed constant.
	assert.Equal(t,
		NormalizeUUID("53e12189-b840-4b21-93ce-081726ddc739"),
		NormalizeUUID("53E12189B8404B2193CE081726DDC739"),
	)
}
