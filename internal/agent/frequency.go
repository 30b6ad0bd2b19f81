package agent

import "time"

// FrequencyToDuration maps a DCA frequency to its interval. Unrecognized
// frequencies fall back to daily.
func FrequencyToDuration(frequency string) time.Duration {
	switch frequency {
	case "hourly":
		return time.Hour
	case "daily":
		return 24 * time.Hour
	case "weekly":
		return 7 * 24 * time.Hour
	case "monthly":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// FrequencyToCron maps a DCA frequency to the standard 5-field cron line
// handed to the external scheduler. Unrecognized frequencies fall back
// to daily.
func FrequencyToCron(frequency string) string {
	switch frequency {
	case "hourly":
		return "0 * * * *"
	case "daily":
		return "0 9 * * *"
	case "weekly":
		return "0 9 * * 1"
	case "monthly":
		return "0 9 1 * *"
	default:
		return "0 9 * * *"
	}
}
