// Package cachestore implements the ephemeral stores of the repository
// package on top of pkg/cache.
package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/utafrali/bullseye/internal/domain"
)

func userKey(id string) string     { return "user:" + id }
func authUserKey(id string) string { return "auth_user:" + id }

func otpKey(typ domain.OTPType, email string) string {
	return "otp:" + string(typ) + ":" + normalizeEmail(email)
}

func otpLockKey(typ domain.OTPType, email string) string {
	return "otp_lock:" + string(typ) + ":" + normalizeEmail(email)
}

func otpAttemptsKey(typ domain.OTPType, email string) string {
	return "otp_attempts:" + string(typ) + ":" + normalizeEmail(email)
}

func resetTicketKey(email string) string { return "reset_ticket:" + normalizeEmail(email) }

// blacklistKey hashes the token so raw credentials never sit in the cache.
func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "blacklist:" + hex.EncodeToString(sum[:])
}

func quotaKey(subject string, day time.Time) string {
	return "chat_quota:" + subject + ":" + day.UTC().Format("20060102")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
