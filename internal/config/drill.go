package config

import "time"

const (
	DefaultDrillPollInterval       = 1500 * time.Millisecond
	DefaultDrillFeedbackGracePolls = 12
)

func GetDrillPollInterval() time.Duration {
	return parseEnvDuration("DRILL_POLL_INTERVAL", DefaultDrillPollInterval)
}

// GetDrillFeedbackGracePolls is how many consecutive terminal polls without
// feedback are tolerated before falling back to heuristic feedback.
func GetDrillFeedbackGracePolls() int {
	n := parseEnvInt("DRILL_FEEDBACK_GRACE_POLLS", DefaultDrillFeedbackGracePolls)
	if n < 1 {
		return DefaultDrillFeedbackGracePolls
	}
	return n
}
