// lockout.go - Login lockout after repeated failures
package server

import (
	"sync"
	"time"
)

const adminAccount = "admin"

func teacherAccount(username string) string {
	return "teacher:" + username
}

// loginAttempt tracks failed logins for one account key.
type loginAttempt struct {
	count       int
	lastAttempt time.Time
	lockedUntil time.Time
}

// AccountLockout refuses logins for an account after too many failures in a
// window. Teacher accounts are keyed by username, the admin by a fixed key.
type AccountLockout struct {
	mu              sync.Mutex
	attempts        map[string]*loginAttempt
	maxAttempts     int
	lockoutDuration time.Duration
	windowDuration  time.Duration
	now             func() time.Time
}

// NewAccountLockout creates a new account lockout manager
// maxAttempts: number of failed attempts before lockout (e.g., 5)
// lockoutDuration: how long to lock the account (e.g., 15 minutes)
// windowDuration: time window to count attempts (e.g., 10 minutes)
func NewAccountLockout(maxAttempts int, lockoutDuration, windowDuration time.Duration) *AccountLockout {
	return &AccountLockout{
		attempts:        make(map[string]*loginAttempt),
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		windowDuration:  windowDuration,
		now:             time.Now,
	}
}

// RecordFailedAttempt records a failed login and reports whether the account
// is now locked.
func (al *AccountLockout) RecordFailedAttempt(account string) (locked bool, lockedUntil time.Time) {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := al.now()
	al.prune(now)

	attempt, exists := al.attempts[account]
	if !exists {
		attempt = &loginAttempt{}
		al.attempts[account] = attempt
	}

	// Reset count if outside window
	if now.Sub(attempt.lastAttempt) > al.windowDuration {
		attempt.count = 0
	}
	attempt.count++
	attempt.lastAttempt = now

	if attempt.count >= al.maxAttempts {
		attempt.lockedUntil = now.Add(al.lockoutDuration)
		return true, attempt.lockedUntil
	}
	return false, time.Time{}
}

// RecordSuccessfulLogin resets failed attempts for an account
func (al *AccountLockout) RecordSuccessfulLogin(account string) {
	al.mu.Lock()
	defer al.mu.Unlock()
	delete(al.attempts, account)
}

// IsLocked reports whether the account is locked and until when.
func (al *AccountLockout) IsLocked(account string) (bool, time.Time) {
	al.mu.Lock()
	defer al.mu.Unlock()

	attempt, exists := al.attempts[account]
	if !exists {
		return false, time.Time{}
	}
	if al.now().Before(attempt.lockedUntil) {
		return true, attempt.lockedUntil
	}
	return false, time.Time{}
}

// prune drops entries whose lock expired and whose last attempt fell out of
// the window twice over. Callers hold al.mu.
func (al *AccountLockout) prune(now time.Time) {
	for account, attempt := range al.attempts {
		if now.After(attempt.lockedUntil) && now.Sub(attempt.lastAttempt) > 2*al.windowDuration {
			delete(al.attempts, account)
		}
	}
}
