// Package secutil provides log-sanitization helpers shared by the pipeline
// logger and the HTTP request-logging middleware, grounded on
// internal/middleware/logger.go's sanitizeBody regex-masking pattern.
package secutil

import "regexp"

type sensitivePattern struct {
	pattern     *regexp.Regexp
	replacement string
}

var sensitivePatterns = []sensitivePattern{
	{regexp.MustCompile(`(?i)"password"\s*:\s*"[^"]*"`), `"password":"***"`},
	{regexp.MustCompile(`(?i)"token"\s*:\s*"[^"]*"`), `"token":"***"`},
	{regexp.MustCompile(`(?i)"access_token"\s*:\s*"[^"]*"`), `"access_token":"***"`},
	{regexp.MustCompile(`(?i)"refresh_token"\s*:\s*"[^"]*"`), `"refresh_token":"***"`},
	{regexp.MustCompile(`(?i)"authorization"\s*:\s*"[^"]*"`), `"authorization":"***"`},
	{regexp.MustCompile(`(?i)"api_key"\s*:\s*"[^"]*"`), `"api_key":"***"`},
	{regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer ***"},
}

// SanitizeForLog masks known-sensitive substrings (credentials, bearer
// tokens) before a value is written to a structured log line. Applied by
// common.PipelineLog to every field value.
func SanitizeForLog(value string) string {
	for _, p := range sensitivePatterns {
		value = p.pattern.ReplaceAllString(value, p.replacement)
	}
	return value
}
