package transport

import "fmt"

var closeReasons = map[int]string{
	1000: "normal closure",
	1001: "endpoint going away",
	1002: "protocol error",
	1003: "unsupported data",
	1005: "no status received",
	1006: "abnormal closure",
	1007: "invalid frame payload",
	1008: "policy violation",
	1009: "message too big",
	1010: "missing extension",
	1011: "internal server error",
	1012: "service restart",
	1013: "try again later",
	1014: "bad gateway",
	1015: "TLS handshake failure",
}

// CloseReason describes a WebSocket close code.
func CloseReason(code int) string {
	if reason, ok := closeReasons[code]; ok {
		return reason
	}
	if code >= 4000 && code <= 4999 {
		return fmt.Sprintf("application close %d", code)
	}
	return fmt.Sprintf("close code %d", code)
}
