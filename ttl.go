package policy

import "time"

// ttl computes the remaining lifetime of an entry created at instant
// created, governed by rule, as observed at instant now. Pure function,
// spec.md §4.2.
func ttl(rule Rule, created, now time.Time) time.Duration {
	if now.Before(created) {
		return 0
	}

	switch {
	case rule.ExpiresIn > 0:
		remaining := rule.ExpiresIn - now.Sub(created)
		if remaining < 0 {
			return 0
		}

		return remaining

	case rule.ExpiresAt != nil:
		if now.Sub(created) > 24*time.Hour {
			return 0
		}

		expires := time.Date(created.Year(), created.Month(), created.Day(),
			rule.ExpiresAt.Hour, rule.ExpiresAt.Minute, 0, 0, created.Location())

		if !expires.After(created) {
			expires = expires.Add(24 * time.Hour)
		}

		if !now.Before(expires) {
			return 0
		}

		return expires.Sub(now)

	default:
		return 0
	}
}
