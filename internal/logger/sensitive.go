package logger

import (
	"regexp"
)

// sensitiveDataPatterns match values that must never reach a log file.
// The first capture group is kept, the rest is replaced.
var sensitiveDataPatterns = []*regexp.Regexp{
	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-._~+/]+=*)`),
	// key=value style secrets
	regexp.MustCompile(`(?i)((?:api[_-]?key|access[_-]?token|secret|password|passwd|dsn)[\s:=]+)([^;,\s]{3,})`),
	// user:password@ in DSNs and URLs
	regexp.MustCompile(`([A-Za-z0-9_.\-]+:)([^@/\s]+)(@)`),
	// Sentry DSN keys
	regexp.MustCompile(`(https://)([0-9a-f]{16,})(@)`),
}

// RedactSensitiveData replaces secrets in input with [REDACTED]
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitiveDataPatterns {
		if pattern.NumSubexp() >= 3 {
			input = pattern.ReplaceAllString(input, "${1}[REDACTED]${3}")
			continue
		}
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]")
	}
	return input
}
