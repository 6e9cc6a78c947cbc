package domain

import "time"

// QuotaTier is the daily chat allowance class of a caller.
type QuotaTier string

const (
	TierAnonymous  QuotaTier = "anonymous"
	TierGuest      QuotaTier = "guest"
	TierRegistered QuotaTier = "registered"
	TierAdmin      QuotaTier = "admin"
)

// TierFor maps an authenticated user (or nil) to its quota tier.
func TierFor(u *AuthUser) QuotaTier {
	switch {
	case u == nil:
		return TierAnonymous
	case u.Role == RoleAdmin:
		return TierAdmin
	case u.UserType == UserTypeGuest:
		return TierGuest
	default:
		return TierRegistered
	}
}

// ChatQuota reports a caller's usage for the current UTC day. Limit is -1
// for unlimited tiers.
type ChatQuota struct {
	Tier      QuotaTier `json:"tier"`
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetsAt  time.Time `json:"resetsAt"`
}
