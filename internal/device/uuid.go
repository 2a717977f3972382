package device

import "strings"

// sigBaseSuffix is the Bluetooth SIG base UUID tail (0000xxxx-0000-1000-8000-00805f9b34fb).
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal BLE library format (lowercase, no dashes).
// Strips a 0x prefix and shortens full UUIDs in Bluetooth SIG base format to their 16-bit form.
// Returns "" when the input is not hexadecimal.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		u = u[4:8]
	}

	if u == "" {
		return ""
	}
	for _, r := range u {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return ""
		}
	}
	return u
}
