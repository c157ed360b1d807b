package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careconnect/identity/internal/account"
	"github.com/careconnect/identity/internal/httputil"
	"github.com/careconnect/identity/internal/logging"
	"github.com/careconnect/identity/internal/ratelimit"
)

// Handler contains the HTTP handlers for signup, login, and the
// password flows.
type Handler struct {
	service     *Service
	rateLimiter *ratelimit.Limiter
	logger      *logging.Logger
}

func NewHandler(service *Service, rateLimiter *ratelimit.Limiter, logger *logging.Logger) *Handler {
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

type SignupRequest struct {
	Name             string                 `json:"name"`
	Email            string                 `json:"email"`
	Password         string                 `json:"password"`
	Role             account.Role           `json:"role"`
	OrganizationName string                 `json:"organization_name,omitempty"`
	Documents        []account.DocumentKind `json:"documents,omitempty"`
}

type SignupResponse struct {
	Account          *account.Account `json:"account"`
	Token            string           `json:"token,omitempty"`
	RequiresApproval bool             `json:"requires_approval,omitempty"`
	Message          string           `json:"message"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Account              *account.Account                           `json:"account"`
	Token                string                                     `json:"token"`
	ResubmissionRequired bool                                       `json:"resubmission_required,omitempty"`
	RejectedDocuments    map[account.DocumentKind]*account.Document `json:"rejected_documents,omitempty"`
	Code                 string                                     `json:"code,omitempty"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type SetAccountStatusRequest struct {
	Status account.Status `json:"status"`
}

// Signup handles account registration.
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body SignupRequest true "Signup data"
// @Success      201 {object} SignupResponse
// @Router       /auth/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "signup") {
		return
	}

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	result, err := h.service.Signup(r.Context(), SignupInput{
		Name:             req.Name,
		Email:            req.Email,
		Password:         req.Password,
		Role:             req.Role,
		OrganizationName: req.OrganizationName,
		Documents:        req.Documents,
	})
	if err != nil {
		switch {
		case errors.Is(err, account.ErrDuplicateEmail):
			httputil.RespondErrorWithCode(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, ErrNameRequired),
			errors.Is(err, ErrEmailRequired),
			errors.Is(err, ErrInvalidEmailFormat),
			errors.Is(err, ErrInvalidRole),
			errors.Is(err, ErrInvalidDocumentKind),
			errors.Is(err, ErrPasswordTooShort):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
		default:
			logger.Error("signup failed", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to register account", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("account registered", "account_id", result.Account.ID, "role", result.Account.Role)

	message := "Registration successful."
	if result.RequiresApproval {
		message = "Registration submitted. Please wait for admin approval before logging in."
	} else if result.Account.Role == account.RoleVolunteer {
		message = "Registration successful. Please check your email for a verification code."
	}

	httputil.RespondJSON(w, SignupResponse{
		Account:          result.Account,
		Token:            result.Token,
		RequiresApproval: result.RequiresApproval,
		Message:          message,
	}, http.StatusCreated)
}

// Login handles authentication.
// @Summary      Log in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Credentials"
// @Success      200 {object} LoginResponse
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "login") {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			httputil.RespondErrorWithCode(w, "invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
		case errors.Is(err, ErrAccountSuspended):
			httputil.RespondErrorWithCode(w, "your account has been suspended, please contact support", httputil.CodeAccountSuspended, http.StatusForbidden)
		case errors.Is(err, ErrPendingApproval):
			httputil.RespondErrorWithCode(w, "your registration is pending approval", httputil.CodePendingApproval, http.StatusForbidden)
		case errors.Is(err, ErrRegistrationRejected):
			httputil.RespondErrorWithCode(w, "your registration has been rejected, please contact support", httputil.CodeRegistrationRejected, http.StatusForbidden)
		default:
			logger.Error("login failed", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to log in", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	resp := LoginResponse{
		Account:              result.Account,
		Token:                result.Token,
		ResubmissionRequired: result.ResubmissionRequired,
		RejectedDocuments:    result.RejectedDocuments,
	}
	if result.ResubmissionRequired {
		resp.Code = httputil.CodeDocumentsRejected
	}

	httputil.RespondJSON(w, resp, http.StatusOK)
}

// ForgotPassword issues a password reset code. The response never
// reveals whether the email exists.
// @Summary      Request a password reset code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Email"
// @Success      200 {object} map[string]string
// @Router       /auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "forgot-password") {
		return
	}

	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		httputil.RespondErrorWithCode(w, "email is required", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, ErrDeliveryFailed) {
			httputil.RespondErrorWithCode(w, "failed to send password reset email, please try again", httputil.CodeDeliveryFailed, http.StatusInternalServerError)
			return
		}
		logger.Error("password reset request failed", "error", err.Error())
		httputil.RespondErrorWithCode(w, "something went wrong, please try again", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, map[string]string{
		"message": "If an account with that email exists, we have sent a password reset code.",
	}, http.StatusOK)
}

// ResetPassword consumes a reset code and replaces the password.
// @Summary      Reset password with a code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Code and new password"
// @Success      200 {object} map[string]string
// @Router       /auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "reset-password") {
		return
	}

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		httputil.RespondErrorWithCode(w, "verification code is required", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Code, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, ErrPasswordTooShort):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidResetCode):
			httputil.RespondErrorWithCode(w, "invalid or expired verification code", httputil.CodeInvalidResetCode, http.StatusBadRequest)
		default:
			logger.Error("password reset failed", "error", err.Error())
			httputil.RespondErrorWithCode(w, "something went wrong, please try again", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	httputil.RespondJSON(w, map[string]string{
		"message": "Password reset successful. You can now log in with your new password.",
	}, http.StatusOK)
}

// ChangePassword replaces the password of the authenticated account.
// @Summary      Change password
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body ChangePasswordRequest true "Current and new password"
// @Success      200 {object} map[string]string
// @Router       /auth/change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	accountID, ok := GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := h.service.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, ErrPasswordTooShort):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
		case errors.Is(err, ErrWrongPassword):
			httputil.RespondErrorWithCode(w, "current password is incorrect", httputil.CodeValidationFailed, http.StatusBadRequest)
		case errors.Is(err, account.ErrNotFound):
			httputil.RespondErrorWithCode(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
		default:
			logger.Error("password change failed", "error", err.Error())
			httputil.RespondErrorWithCode(w, "something went wrong, please try again", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	httputil.RespondJSON(w, map[string]string{"message": "Password changed successfully."}, http.StatusOK)
}

// SetAccountStatus suspends or reactivates an account (admin only).
// @Summary      Set account status
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Account ID"
// @Param        request body SetAccountStatusRequest true "New status"
// @Success      200 {object} account.Account
// @Router       /admin/accounts/{id}/account-status [post]
func (h *Handler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "invalid account id", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	var req SetAccountStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	a, err := h.service.SetAccountStatus(r.Context(), id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAccountStatus):
			httputil.RespondErrorWithCode(w, "invalid account status", httputil.CodeValidationFailed, http.StatusBadRequest)
		case errors.Is(err, account.ErrNotFound):
			httputil.RespondErrorWithCode(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
		default:
			logger.Error("failed to set account status", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to set account status", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("account status changed", "account_id", a.ID, "status", a.Status)
	httputil.RespondJSON(w, a, http.StatusOK)
}

// allow applies the per-IP rate limit for a public endpoint. A limiter
// backend failure fails open: losing abuse protection briefly beats
// refusing all logins.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	if h.rateLimiter == nil {
		return true
	}

	allowed, err := h.rateLimiter.Allow(r.Context(), clientIP(r), purpose)
	if err != nil {
		h.logger.Error("failed to check rate limit", "purpose", purpose, "error", err.Error())
		return true
	}
	if !allowed {
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return false
	}
	return true
}

// clientIP returns the remote host; chi's RealIP middleware has already
// resolved forwarding headers by the time this runs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
