package incident

// escalate computes the severity an incident should carry given its current
// call count — a pure function so the "severity engine" §4.I delegates to
// can be unit tested without a store. Severity is tiered by the number of
// affected calls.
func escalate(callsAffected int64, current Severity) (next Severity, escalated bool) {
	var computed Severity
	switch {
	case callsAffected >= 500:
		computed = SeverityCritical
	case callsAffected >= 100:
		computed = SeverityHigh
	case callsAffected >= 10:
		computed = SeverityMedium
	default:
		computed = SeverityLow
	}

	if severityRank(computed) <= severityRank(current) {
		return current, false
	}
	return computed, true
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// initialSeverity picks the starting severity for a brand new incident.
func initialSeverity(callsAffected int64) Severity {
	sev, _ := escalate(callsAffected, SeverityLow)
	return sev
}

// initialTitle builds a default title when the caller doesn't supply one.
func initialTitle(triggerType, triggerValue string) string {
	if triggerValue == "" {
		return triggerType + " incident"
	}
	return triggerType + ": " + triggerValue
}
