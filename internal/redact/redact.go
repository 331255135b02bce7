// Package redact strips provider content from strings before they leave the
// core, and maps transport status codes to the stable error-code taxonomy.
// Every error message produced by the gateway passes through Redact.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// deniedKeys are provider response field names whose values must never
// appear in logs, metrics, or error messages.
var deniedKeys = []string{
	"displayName",
	"formattedAddress",
	"shortFormattedAddress",
	"nationalPhoneNumber",
	"internationalPhoneNumber",
	"websiteUri",
	"googleMapsUri",
	"editorialSummary",
	"reviews",
	"photos",
	"currentOpeningHours",
	"regularOpeningHours",
	"rating",
	"userRatingCount",
}

// denyPattern elides the value following any denied key in JSON-ish or
// key=value text. Values are replaced wholesale with [REDACTED].
var denyPattern = regexp.MustCompile(
	`(?i)"?(` + strings.Join(deniedKeys, "|") + `)"?\s*[:=]\s*("(?:[^"\\]|\\.)*"|\[[^\]]*\]|\{[^}]*\}|[^,}\s]+)`,
)

// Redact replaces the value of every denylisted key-value substring in text
// with [REDACTED]. Text without denied keys is returned unchanged.
func Redact(text string) string {
	return denyPattern.ReplaceAllString(text, `$1:[REDACTED]`)
}

// ContainsDenied reports whether text still matches the denylist pattern.
// Used by tests and as a last-line guard before emitting error messages.
func ContainsDenied(text string) bool {
	return denyPattern.MatchString(text)
}

// StatusToCode maps an HTTP status to a stable wire error code.
func StatusToCode(httpStatus int) string {
	switch httpStatus {
	case 400:
		return "INVALID_REQUEST"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 429:
		return "RATE_LIMITED"
	case 500:
		return "INTERNAL_ERROR"
	case 502:
		return "BAD_GATEWAY"
	case 503:
		return "SERVICE_UNAVAILABLE"
	case 504:
		return "GATEWAY_TIMEOUT"
	default:
		return fmt.Sprintf("HTTP_%d", httpStatus)
	}
}

// IsRetryable reports whether an HTTP status is worth retrying:
// 429 and 500-504.
func IsRetryable(httpStatus int) bool {
	return httpStatus == 429 || (httpStatus >= 500 && httpStatus <= 504)
}
