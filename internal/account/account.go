// Package account runs administrator registration, login and password reset.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/medialink/internal/apperr"
	"github.com/YannKr/medialink/internal/auth"
	"github.com/YannKr/medialink/internal/clock"
	"github.com/YannKr/medialink/internal/email"
	"github.com/YannKr/medialink/internal/model"
	"github.com/YannKr/medialink/internal/store"
	"github.com/YannKr/medialink/internal/validation"
)

const (
	DefaultSessionTTL      = 24 * time.Hour
	DefaultRegistrationTTL = 7 * 24 * time.Hour
)

const (
	msgUserExists       = "User already exists. Please login."
	msgInvalidOTP       = "Invalid or expired OTP."
	msgBadCredentials   = "Invalid email or password."
	msgUserNotFound     = "User not found. Please sign up first."
	msgAlreadyVerified  = "User is already verified."
	msgTokenInvalid     = "Token is not valid."
	msgMailFailed       = "Failed to send email. Please try again."
	msgAccountLookupErr = "Failed to load account."
)

// Session is a freshly issued bearer token for an administrator.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Admin     *model.Administrator
}

type Options struct {
	SessionTTL      time.Duration
	RegistrationTTL time.Duration
}

type Service struct {
	admins  store.Admins
	tokens  *auth.TokenService
	mailer  email.Sender
	clock   clock.Clock
	options Options
}

func NewService(admins store.Admins, tokens *auth.TokenService, mailer email.Sender, c clock.Clock, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.RegistrationTTL <= 0 {
		opts.RegistrationTTL = DefaultRegistrationTTL
	}
	if c == nil {
		c = clock.System{}
	}
	return &Service{admins: admins, tokens: tokens, mailer: mailer, clock: c, options: opts}
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type otpInput struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *Service) lookup(ctx context.Context, emailAddr string) (*model.Administrator, error) {
	a, err := s.admins.GetAdminByEmail(ctx, emailAddr)
	if err != nil {
		return nil, apperr.Internal(msgAccountLookupErr, err)
	}
	return a, nil
}

// SignUp creates an unverified administrator, or refreshes the password and
// passcode of one that never verified, and mails the passcode.
func (s *Service) SignUp(ctx context.Context, emailAddr, password string) error {
	in := credentials{Email: normalizeEmail(emailAddr), Password: password}
	if err := validation.Struct(&in); err != nil {
		return err
	}

	existing, err := s.lookup(ctx, in.Email)
	if err != nil {
		return err
	}
	if existing != nil && existing.Verified {
		return apperr.Validation(msgUserExists)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return apperr.Internal("Failed to create account.", err)
	}
	otp, err := auth.NewOTP(s.clock.Now())
	if err != nil {
		return apperr.Internal("Failed to create account.", err)
	}

	if existing == nil {
		admin := &model.Administrator{
			ID:           uuid.NewString(),
			Email:        in.Email,
			PasswordHash: hash,
			OTP:          otp,
			CreatedAt:    s.clock.Now(),
		}
		if err := s.admins.CreateAdmin(ctx, admin); err != nil {
			if errors.Is(err, store.ErrDuplicateEmail) {
				return apperr.Validation(msgUserExists)
			}
			return apperr.Internal("Failed to create account.", err)
		}
	} else {
		existing.PasswordHash = hash
		existing.OTP = otp
		if err := s.admins.UpdateAdmin(ctx, existing); err != nil {
			return apperr.Internal("Failed to create account.", err)
		}
	}

	if err := s.mailer.SendOTP(ctx, in.Email, otp.Code); err != nil {
		return apperr.Internal(msgMailFailed, fmt.Errorf("send otp: %w", err))
	}
	slog.Info("sign-up otp issued", "email", in.Email)
	return nil
}

// VerifyOTP marks the administrator verified and returns a session token
// with the registration validity.
func (s *Service) VerifyOTP(ctx context.Context, emailAddr, code string) (*Session, error) {
	in := otpInput{Email: normalizeEmail(emailAddr), OTP: strings.TrimSpace(code)}
	if err := validation.Struct(&in); err != nil {
		return nil, apperr.Validation(msgInvalidOTP)
	}

	admin, err := s.lookup(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if admin == nil || !auth.MatchOTP(admin.OTP, in.OTP, s.clock.Now()) {
		return nil, apperr.Validation(msgInvalidOTP)
	}

	admin.Verified = true
	admin.OTP = nil
	if err := s.admins.UpdateAdmin(ctx, admin); err != nil {
		return nil, apperr.Internal("Failed to verify account.", err)
	}
	slog.Info("administrator verified", "admin_id", admin.ID)
	return s.issue(admin, s.options.RegistrationTTL)
}

func (s *Service) Login(ctx context.Context, emailAddr, password string) (*Session, error) {
	in := credentials{Email: normalizeEmail(emailAddr), Password: password}
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}

	admin, err := s.lookup(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if admin == nil || !admin.Verified || !auth.CheckPassword(admin.PasswordHash, in.Password) {
		return nil, apperr.Authentication(msgBadCredentials)
	}
	return s.issue(admin, s.options.SessionTTL)
}

// ForgotPassword mails a reset passcode to verified administrators. Unknown
// addresses get the same silent success.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	addr := normalizeEmail(emailAddr)
	if err := validation.Var("email", addr, "required,email"); err != nil {
		return err
	}

	admin, err := s.lookup(ctx, addr)
	if err != nil {
		return err
	}
	if admin == nil || !admin.Verified {
		slog.Debug("password reset requested for unknown or unverified email")
		return nil
	}

	otp, err := auth.NewOTP(s.clock.Now())
	if err != nil {
		return apperr.Internal("Failed to start password reset.", err)
	}
	admin.ResetOTP = otp
	if err := s.admins.UpdateAdmin(ctx, admin); err != nil {
		return apperr.Internal("Failed to start password reset.", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, addr, otp.Code); err != nil {
		return apperr.Internal(msgMailFailed, fmt.Errorf("send reset otp: %w", err))
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, emailAddr, code, newPassword string) error {
	in := otpInput{Email: normalizeEmail(emailAddr), OTP: strings.TrimSpace(code)}
	if err := validation.Struct(&in); err != nil {
		return apperr.Validation(msgInvalidOTP)
	}
	if err := validation.Var("new_password", newPassword, "required"); err != nil {
		return err
	}

	admin, err := s.lookup(ctx, in.Email)
	if err != nil {
		return err
	}
	if admin == nil || !auth.MatchOTP(admin.ResetOTP, in.OTP, s.clock.Now()) {
		return apperr.Validation(msgInvalidOTP)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperr.Internal("Failed to reset password.", err)
	}
	admin.PasswordHash = hash
	admin.ResetOTP = nil
	if err := s.admins.UpdateAdmin(ctx, admin); err != nil {
		return apperr.Internal("Failed to reset password.", err)
	}
	slog.Info("password reset", "admin_id", admin.ID)
	return nil
}

func (s *Service) ResendOTP(ctx context.Context, emailAddr string) error {
	addr := normalizeEmail(emailAddr)
	if err := validation.Var("email", addr, "required,email"); err != nil {
		return err
	}

	admin, err := s.lookup(ctx, addr)
	if err != nil {
		return err
	}
	if admin == nil {
		return apperr.Validation(msgUserNotFound)
	}
	if admin.Verified {
		return apperr.Validation(msgAlreadyVerified)
	}

	otp, err := auth.NewOTP(s.clock.Now())
	if err != nil {
		return apperr.Internal("Failed to resend OTP.", err)
	}
	admin.OTP = otp
	if err := s.admins.UpdateAdmin(ctx, admin); err != nil {
		return apperr.Internal("Failed to resend OTP.", err)
	}
	if err := s.mailer.SendOTP(ctx, addr, otp.Code); err != nil {
		return apperr.Internal(msgMailFailed, fmt.Errorf("resend otp: %w", err))
	}
	return nil
}

// Authenticate resolves a session token to a verified administrator.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Administrator, error) {
	id, err := s.tokens.VerifySession(token)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindAuthentication, Message: msgTokenInvalid, Err: err}
	}
	admin, err := s.admins.GetAdminByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(msgAccountLookupErr, err)
	}
	if admin == nil || !admin.Verified {
		return nil, apperr.Authentication(msgTokenInvalid)
	}
	return admin, nil
}

func (s *Service) issue(admin *model.Administrator, ttl time.Duration) (*Session, error) {
	token, exp, err := s.tokens.IssueSession(admin.ID, ttl)
	if err != nil {
		return nil, apperr.Internal("Failed to issue token.", err)
	}
	return &Session{Token: token, ExpiresAt: exp, Admin: admin}, nil
}
