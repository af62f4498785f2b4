package progress

import (
	"fmt"
	"time"
)

// EstimateRemaining returns a human readable estimate of the time left for an
// operation started at startedAt that has reached the given percentage at now.
// It returns "" until progress is meaningful.
func EstimateRemaining(startedAt, now time.Time, percent float64) string {
	if percent <= 5 || percent >= ProgressCompleted {
		return ""
	}
	elapsed := now.Sub(startedAt)
	if elapsed <= 0 {
		return ""
	}
	totalEstimated := time.Duration(float64(elapsed) * (100.0 / percent))
	remaining := totalEstimated - elapsed
	if remaining <= 0 {
		return ""
	}
	return formatDuration(remaining)
}

// LastPercent returns the progress of the last step, or 0.
func LastPercent(steps []Step) float64 {
	if len(steps) == 0 || steps[len(steps)-1].Progress == nil {
		return 0
	}
	return *steps[len(steps)-1].Progress
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return "< 1m"
	}

	minutes := int(d.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	remainingMinutes := minutes % 60
	if remainingMinutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %02dm", hours, remainingMinutes)
}
