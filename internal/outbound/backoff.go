package outbound

import "time"

// MaxAttempts is how many delivery attempts a message gets before it is
// dead-lettered.
const MaxAttempts = 5

// backoffSchedule maps attempt count to the wait before the next try.
// Index is the number of attempts already made.
var backoffSchedule = []time.Duration{
	0,
	5 * time.Second,
	30 * time.Second,
	120 * time.Second,
	600 * time.Second,
}

// backoffCeiling applies past the end of the schedule.
const backoffCeiling = 1800 * time.Second

// BackoffDelay returns how long a message with the given attempt count
// must wait before it is claimable again.
func BackoffDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts < len(backoffSchedule) {
		return backoffSchedule[attempts]
	}
	return backoffCeiling
}
