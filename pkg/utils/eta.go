package utils

import (
	"fmt"
	"time"
)

// EstimateRemaining projects the time left from the average duration of done items.
func EstimateRemaining(spent time.Duration, done, remaining int) time.Duration {
	if done <= 0 || remaining <= 0 {
		return 0
	}
	avg := spent / time.Duration(done)
	return avg * time.Duration(remaining)
}

// FormatETA renders seconds below a minute and minutes with one decimal above.
func FormatETA(d time.Duration) string {
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.0fs", secs)
	}
	return fmt.Sprintf("%.1fmin", secs/60)
}
