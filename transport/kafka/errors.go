package kafka

import "strings"

var (
	connectionPatterns = []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no route to host",
		"network is unreachable",
		"broker not available",
		"leader not available",
		"connection closed",
		"dial tcp",
		"network exception",
	}
	retryablePatterns = []string{
		"temporary",
		"request timed out",
		"not enough replicas",
		"not leader for partition",
	}
)

func matches(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsConnectionError reports whether err is a connection-level failure.
func IsConnectionError(err error) bool {
	return matches(err, connectionPatterns)
}

// IsRetryableError reports whether a failed write may succeed when
// repeated.
func IsRetryableError(err error) bool {
	return IsConnectionError(err) || matches(err, retryablePatterns)
}
