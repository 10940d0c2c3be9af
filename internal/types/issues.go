package types

// Severity grades a static check finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// HasErrors reports whether any severity in the list is an error.
func HasErrors(severities ...Severity) bool {
	for _, s := range severities {
		if s == SeverityError {
			return true
		}
	}
	return false
}
