package domain

import "time"

// OTPType is the purpose an OTP was issued for.
type OTPType string

const (
	OTPEmailVerification OTPType = "emailVerification"
	OTPForgotPassword    OTPType = "forgotPassword"
)

func (t OTPType) Valid() bool {
	return t == OTPEmailVerification || t == OTPForgotPassword
}

// IssuedOTP is the durable copy of the latest OTP, kept on the user row.
// Issuing an OTP of either type replaces it.
type IssuedOTP struct {
	Code      string
	Type      OTPType
	ExpiresAt time.Time
}

// OTPVerification is the outcome of a successful OTP check. Tokens are set
// for email verification; ResetToken is set for password recovery when reset
// tickets are enabled.
type OTPVerification struct {
	Verified   bool       `json:"verified"`
	User       *User      `json:"user,omitempty"`
	Tokens     *TokenPair `json:"tokens,omitempty"`
	ResetToken string     `json:"resetToken,omitempty"`
}
