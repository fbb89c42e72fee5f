package events

import (
	"strings"
	"time"
)

// StreamMaxAge bounds how long the stream keeps events.
const StreamMaxAge = 7 * 24 * time.Hour

// StreamName derives the JetStream stream name from the subject prefix.
func StreamName(prefix string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(prefix)) + "_EVENTS"
}

func SubjectCalculationCompleted(prefix, runID string) string {
	return prefix + ".calculation." + runID + ".completed"
}

func SubjectCalculationRejected(prefix string) string {
	return prefix + ".calculation.rejected"
}

func SubjectDeliveryFailed(prefix, runID string) string {
	return prefix + ".delivery." + runID + ".failed"
}
