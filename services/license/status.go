package license

import "time"

// Status is the human-facing license state label.
type Status string

const (
	StatusBanned    Status = "BANNED"
	StatusSuspended Status = "SUSPENDED"
	StatusExpired   Status = "EXPIRED"
	StatusExpiring  Status = "EXPIRING"
	StatusInactive  Status = "INACTIVE"
	StatusActive    Status = "ACTIVE"
)

const (
	// ExpiringWindow is how close to expiry a license reports EXPIRING.
	ExpiringWindow = 3 * 24 * time.Hour

	// DefaultActivityWindow is the trailing window of creation or
	// validation activity before a license reports INACTIVE.
	DefaultActivityWindow = 90 * 24 * time.Hour
)

// Expired reports whether the license's expiry is set and in the past.
func (l *License) Expired(now time.Time) bool {
	return l.Expiry != nil && l.Expiry.Before(now)
}

// Banned reports whether the owning user is banned. Requires User to be
// preloaded; a license without an owner is never banned.
func (l *License) Banned() bool {
	return l.User.Banned()
}

// StatusAt resolves the status label in strict priority order: ownership
// states outrank time states, so a banned license that is also expired
// reports BANNED.
func (l *License) StatusAt(now time.Time, activityWindow time.Duration) Status {
	switch {
	case l.Banned():
		return StatusBanned
	case l.Suspended:
		return StatusSuspended
	case l.Expired(now):
		return StatusExpired
	case l.Expiry != nil && l.Expiry.Before(now.Add(ExpiringWindow)):
		return StatusExpiring
	case !l.activeSince(now.Add(-activityWindow)):
		return StatusInactive
	default:
		return StatusActive
	}
}

// Status resolves the label against the current clock and default activity
// window.
func (l *License) Status() Status {
	return l.StatusAt(time.Now(), DefaultActivityWindow)
}

func (l *License) activeSince(cutoff time.Time) bool {
	if l.CreatedAt.After(cutoff) {
		return true
	}
	return l.LastValidatedAt != nil && l.LastValidatedAt.After(cutoff)
}
