package report

import "strings"

// Service groups used for severity classification. Remote access and mail
// protocols carry the highest exposure, common infrastructure protocols a
// moderate one.
var (
	highRiskServices = map[string]bool{
		"ssh":    true,
		"telnet": true,
		"ftp":    true,
		"smtp":   true,
		"pop3":   true,
		"imap":   true,
	}

	mediumRiskServices = map[string]bool{
		"http":  true,
		"https": true,
		"dns":   true,
		"ntp":   true,
	}
)

// ClassifySeverity assigns a severity to a service based on its protocol
// exposure and whether any known vulnerabilities were found for it.
// Service name matching is case-insensitive.
func ClassifySeverity(service string, vulnCount int) Severity {
	name := strings.ToLower(service)

	switch {
	case highRiskServices[name]:
		return SeverityHigh
	case mediumRiskServices[name]:
		return SeverityMedium
	case vulnCount > 0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
