package domain

import "time"

// SessionStatus is a point-in-time copy of one session, safe to hand to
// observers and renderers.
type SessionStatus struct {
	UserID      UserID
	Status      Status
	Gateway     string
	DeviceType  DeviceType
	Cursor      uint64
	Handle      string
	LastGroupID uint64
	UpdatedAt   time.Time
	Logs        []LogEntry
}

// CountByStatus tallies sessions per status, including zero counts.
func CountByStatus(sessions []SessionStatus) map[Status]int {
	counts := make(map[Status]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	for _, s := range sessions {
		counts[s.Status]++
	}
	return counts
}
