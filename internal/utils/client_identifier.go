package utils

import (
	"net/http"
	"strings"
)

// DeviceIDHeader carries the scanning handset's stable identifier.
const DeviceIDHeader = "X-Device-ID"

// GetDeviceID returns the trimmed X-Device-ID header, or "" when absent.
func GetDeviceID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(DeviceIDHeader))
}
