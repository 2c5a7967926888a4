package config

import (
	"regexp"
	"strings"
)

// SensitivePattern represents a pattern that might indicate a credential
// committed to a config file.
type SensitivePattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// Tokens belong in PREBUILT_GITHUB_TOKEN or the npm user config, not in
// a file that is usually checked into a repository.
var sensitivePatterns = []SensitivePattern{
	{
		Name:    "GitHub Token",
		Pattern: regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}|github_pat_[a-zA-Z0-9_]{40,}`),
	},
	{
		Name:    "npm Token",
		Pattern: regexp.MustCompile(`npm_[a-zA-Z0-9]{36}`),
	},
	{
		Name:    "Token",
		Pattern: regexp.MustCompile(`(?i)(token|auth[_-]?token|access[_-]?token|bearer)\s*=\s*['"][a-zA-Z0-9_-]{15,}['"]`),
	},
	{
		Name:    "URL Credentials",
		Pattern: regexp.MustCompile(`(?i)https?://[^/\s:@'"]+:[^/\s@'"]+@`),
	},
}

// SensitiveDataFinding represents a detected sensitive data instance
type SensitiveDataFinding struct {
	PatternName string
	Line        int
	Preview     string // Redacted preview of the match
}

// DetectSensitiveData scans configuration content for likely credentials.
// At most one finding is reported per line.
func DetectSensitiveData(content string) []SensitiveDataFinding {
	var findings []SensitiveDataFinding

	for lineNum, line := range strings.Split(content, "\n") {
		for _, pattern := range sensitivePatterns {
			if pattern.Pattern.MatchString(line) {
				findings = append(findings, SensitiveDataFinding{
					PatternName: pattern.Name,
					Line:        lineNum + 1,
					Preview:     redactSensitiveValue(line),
				})
				break
			}
		}
	}

	return findings
}

// redactSensitiveValue keeps the key of an assignment and hides the value
func redactSensitiveValue(line string) string {
	eqIdx := strings.Index(line, "=")
	if eqIdx == -1 {
		line = strings.TrimSpace(line)
		if len(line) > 12 {
			return line[:12] + "... [REDACTED]"
		}
		return "[REDACTED]"
	}

	keyPart := strings.TrimSpace(line[:eqIdx])
	return keyPart + " = [REDACTED]"
}
