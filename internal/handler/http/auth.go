package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/service"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
	"github.com/utafrali/bullseye/pkg/httputil"
	"github.com/utafrali/bullseye/pkg/middleware"
	"github.com/utafrali/bullseye/pkg/validator"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

type SignupRequest struct {
	Username string  `json:"username" validate:"required,min=2,max=50"`
	Email    string  `json:"email" validate:"required,email,max=254"`
	Phone    *string `json:"phone" validate:"omitempty,e164"`
	Password string  `json:"password" validate:"required,strongpassword"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type GoogleAuthRequest struct {
	IDToken  string `json:"idToken" validate:"required"`
	Username string `json:"username" validate:"omitempty,min=2,max=50"`
}

type GuestRequest struct {
	Username string `json:"username" validate:"omitempty,min=2,max=50"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,otpcode"`
	Type  string `json:"type" validate:"required,oneof=emailVerification forgotPassword"`
}

type ResendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Type  string `json:"type" validate:"required,oneof=emailVerification forgotPassword"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest carries the reset ticket returned by verify-otp when
// reset tickets are enabled.
type ResetPasswordRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,strongpassword"`
	ResetToken string `json:"resetToken"`
}

// RefreshTokenRequest may omit the token when the refreshToken cookie is set.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,strongpassword,nefield=CurrentPassword"`
}

type UpdateProfileRequest struct {
	Username       *string `json:"username" validate:"omitempty,min=2,max=50"`
	Phone          *string `json:"phone" validate:"omitempty,e164"`
	ProfilePicture *string `json:"profilePicture" validate:"omitempty,url,max=2048"`
}

type ConvertGuestRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,strongpassword"`
	Username string `json:"username" validate:"omitempty,min=2,max=50"`
}

// --- Handlers ---

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, err := h.service.Signup(r.Context(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, map[string]any{"user": user},
		"signup successful, please verify your email")
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeSession(w, http.StatusOK, res, "login successful")
}

// Google handles POST /auth/google
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req GoogleAuthRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.GoogleAuth(r.Context(), req.IDToken, req.Username)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeSession(w, http.StatusOK, res, "google sign-in successful")
}

// Guest handles POST /auth/guest. The body is optional.
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	var req GuestRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.GuestLogin(r.Context(), req.Username)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeSession(w, http.StatusCreated, res, "guest session created")
}

// VerifyOTP handles POST /auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP, domain.OTPType(req.Type))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.cookies.setTokens(w, res.Tokens)
	httputil.WriteSuccess(w, http.StatusOK, res, "otp verified")
}

// ResendOTP handles POST /auth/resend-otp
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.ResendOTP(r.Context(), req.Email, domain.OTPType(req.Type)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, nil, "otp sent")
}

// ForgotPassword handles POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, nil, "password reset code sent")
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.Password, req.ResetToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.cookies.clearTokens(w)
	httputil.WriteSuccess(w, http.StatusOK, nil, "password has been reset")
}

// RefreshToken handles POST /auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	token := req.RefreshToken
	if token == "" {
		token = cookieValue(r, refreshTokenCookie)
	}

	res, err := h.service.RefreshToken(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeSession(w, http.StatusOK, res, "token refreshed")
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	var req LogoutRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	refresh := req.RefreshToken
	if refresh == "" {
		refresh = cookieValue(r, refreshTokenCookie)
	}
	access := middleware.ExtractToken(r, middleware.AccessTokenCookie)

	if err := h.service.Logout(r.Context(), user.ID, refresh, access); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.cookies.clearTokens(w)
	httputil.WriteSuccess(w, http.StatusOK, nil, "logged out")
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), user.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]any{"user": profile}, "")
}

// ChangePassword handles PUT /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, nil, "password changed")
}

// UpdateProfile handles PUT /auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user.ID, domain.ProfileUpdate{
		Username:       req.Username,
		Phone:          req.Phone,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]any{"user": updated}, "profile updated")
}

// ConvertGuest handles POST /auth/convert-guest
func (h *AuthHandler) ConvertGuest(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	var req ConvertGuestRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.ConvertGuestToRegistered(r.Context(), user.ID, service.ConvertGuestInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeSession(w, http.StatusOK, res, "account registered, please verify your email")
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, res *domain.AuthResult, message string) {
	h.cookies.setTokens(w, res.Tokens)
	httputil.WriteSuccess(w, status, res, message)
}

// decodeOptional is DecodeAndValidate for endpoints whose body may be empty.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, validator.MaxBodyBytes)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.InvalidInput("invalid request body")
	}
	return validator.Validate(dst)
}

func cookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}
