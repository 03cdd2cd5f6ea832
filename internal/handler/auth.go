package handler

import (
	"net/http"
	"time"

	"github.com/YannKr/medialink/internal/account"
)

type authRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      sessionUser `json:"user"`
}

func toSessionResponse(s *account.Session) sessionResponse {
	return sessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      sessionUser{ID: s.Admin.ID, Email: s.Admin.Email},
	}
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.Accounts.SignUp(r.Context(), req.Email, req.Password); err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusCreated, "OTP sent to your email. Please verify to complete registration.", nil)
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, r, err)
		return
	}
	s, err := h.Accounts.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusOK, "Account verified successfully.", toSessionResponse(s))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, r, err)
		return
	}
	s, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusOK, "Login successful.", toSessionResponse(s))
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.Accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusOK, "If the account exists, a password reset OTP has been sent.", nil)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.Accounts.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusOK, "Password reset successfully.", nil)
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.Accounts.ResendOTP(r.Context(), req.Email); err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusOK, "OTP resent successfully.", nil)
}
