package verification

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careconnect/identity/internal/account"
	"github.com/careconnect/identity/internal/auth"
	"github.com/careconnect/identity/internal/httputil"
	"github.com/careconnect/identity/internal/logging"
	"github.com/careconnect/identity/internal/ratelimit"
)

// Handler contains the HTTP handlers for email verification and the
// NGO document review flow.
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

type SendCodeRequest struct {
	Email string `json:"email"`
}

type SendCodeResponse struct {
	Message           string `json:"message"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type ResubmitDocumentsRequest struct {
	Documents []account.DocumentKind `json:"documents"`
}

type ReviewDocumentRequest struct {
	Kind    account.DocumentKind `json:"kind"`
	Approve bool                 `json:"approve"`
	Reason  string               `json:"reason,omitempty"`
}

type SetOverallStatusRequest struct {
	Status account.VerificationStatus `json:"status"`
	Reason string                     `json:"reason,omitempty"`
}

type DocumentStatusResponse struct {
	VerificationStatus account.VerificationStatus                 `json:"verification_status"`
	IsNGOVerified      bool                                       `json:"is_ngo_verified"`
	Documents          map[account.DocumentKind]*account.Document `json:"documents"`
	RejectionHistory   []account.Rejection                        `json:"rejection_history,omitempty"`
}

// SendCode issues an email verification code.
// @Summary      Send an email verification code
// @Tags         verification
// @Accept       json
// @Produce      json
// @Param        request body SendCodeRequest true "Email"
// @Success      200 {object} SendCodeResponse
// @Router       /verification/send-code [post]
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	h.sendCode(w, r, h.service.IssueCode, "send-code")
}

// ResendCode issues a fresh code, subject to the resend throttle.
// @Summary      Resend the email verification code
// @Tags         verification
// @Accept       json
// @Produce      json
// @Param        request body SendCodeRequest true "Email"
// @Success      200 {object} SendCodeResponse
// @Router       /verification/resend-code [post]
func (h *Handler) ResendCode(w http.ResponseWriter, r *http.Request) {
	h.sendCode(w, r, h.service.ResendCode, "resend-code")
}

func (h *Handler) sendCode(w http.ResponseWriter, r *http.Request, issue func(ctx context.Context, email string) (int, error), purpose string) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, purpose) {
		return
	}

	var req SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		httputil.RespondErrorWithCode(w, "email is required", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	remaining, err := issue(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			httputil.RespondErrorWithCode(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
		case errors.Is(err, ErrAlreadyVerified):
			httputil.RespondErrorWithCode(w, "email is already verified", httputil.CodeAlreadyVerified, http.StatusBadRequest)
		case errors.Is(err, ErrAttemptsExhausted):
			httputil.RespondErrorWithCode(w, "too many failed attempts, please contact support", httputil.CodeAttemptsExhausted, http.StatusTooManyRequests)
		case errors.Is(err, ErrResendTooSoon):
			httputil.RespondErrorWithCode(w, "a code was sent recently, please wait before requesting another", httputil.CodeRateLimited, http.StatusTooManyRequests)
		default:
			logger.Error("failed to issue verification code", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to send verification code", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	httputil.RespondJSON(w, SendCodeResponse{
		Message:           "Verification code sent. Please check your email.",
		RemainingAttempts: remaining,
	}, http.StatusOK)
}

// VerifyEmail checks a submitted code and marks the email verified.
// @Summary      Verify email with a code
// @Tags         verification
// @Accept       json
// @Produce      json
// @Param        request body VerifyEmailRequest true "Email and code"
// @Success      200 {object} map[string]string
// @Router       /verification/verify-email [post]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "verify-email") {
		return
	}

	var req VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Code == "" {
		httputil.RespondErrorWithCode(w, "email and code are required", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	if err := h.service.VerifyCode(r.Context(), req.Email, req.Code); err != nil {
		var invalid *InvalidCodeError
		switch {
		case errors.Is(err, account.ErrNotFound):
			httputil.RespondErrorWithCode(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
		case errors.Is(err, ErrAlreadyVerified):
			httputil.RespondErrorWithCode(w, "email is already verified", httputil.CodeAlreadyVerified, http.StatusBadRequest)
		case errors.Is(err, ErrAttemptsExhausted):
			httputil.RespondErrorWithCode(w, "too many failed attempts, please contact support", httputil.CodeAttemptsExhausted, http.StatusTooManyRequests)
		case errors.Is(err, ErrCodeExpired):
			httputil.RespondErrorWithCode(w, "verification code has expired, please request a new one", httputil.CodeCodeExpired, http.StatusBadRequest)
		case errors.As(err, &invalid):
			httputil.RespondErrorWithDetails(w, "invalid verification code", httputil.CodeInvalidCode, http.StatusBadRequest, map[string]int{
				"remaining_attempts": invalid.Remaining,
			})
		default:
			logger.Error("email verification failed", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to verify email", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	httputil.RespondJSON(w, map[string]string{"message": "Email verified successfully."}, http.StatusOK)
}

// ResubmitDocuments replaces rejected documents for the authenticated
// organization and puts its review back in the queue.
// @Summary      Resubmit NGO documents
// @Tags         verification
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body ResubmitDocumentsRequest true "Document kinds"
// @Success      200 {object} account.Account
// @Router       /ngo/documents/resubmit [post]
func (h *Handler) ResubmitDocuments(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	email, ok := auth.GetEmailFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req ResubmitDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	a, err := h.service.Resubmit(r.Context(), email, req.Documents)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			httputil.RespondErrorWithCode(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
		case errors.Is(err, ErrNotOrganization):
			httputil.RespondErrorWithCode(w, "only organization accounts can submit documents", httputil.CodeForbidden, http.StatusForbidden)
		case errors.Is(err, ErrNoDocuments):
			httputil.RespondErrorWithCode(w, "at least one document is required", httputil.CodeValidationFailed, http.StatusBadRequest)
		default:
			logger.Error("document resubmission failed", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to resubmit documents", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("documents resubmitted", "account_id", a.ID)
	httputil.RespondJSON(w, a, http.StatusOK)
}

// DocumentStatus returns the review state of the authenticated
// organization's documents.
// @Summary      Get NGO document status
// @Tags         verification
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} DocumentStatusResponse
// @Router       /ngo/documents/status [get]
func (h *Handler) DocumentStatus(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	accountID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	a, err := h.service.DocumentStatus(r.Context(), accountID)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			httputil.RespondErrorWithCode(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
		case errors.Is(err, ErrNotOrganization):
			httputil.RespondErrorWithCode(w, "only organization accounts have documents", httputil.CodeForbidden, http.StatusForbidden)
		default:
			logger.Error("failed to fetch document status", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to fetch document status", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	httputil.RespondJSON(w, DocumentStatusResponse{
		VerificationStatus: a.VerificationStatus,
		IsNGOVerified:      a.IsNGOVerified,
		Documents:          a.Documents,
		RejectionHistory:   a.RejectionHistory,
	}, http.StatusOK)
}

// ReviewDocument approves or rejects a single document (admin only).
// @Summary      Review an NGO document
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Account ID"
// @Param        request body ReviewDocumentRequest true "Review decision"
// @Success      200 {object} account.Account
// @Router       /admin/accounts/{id}/documents/review [post]
func (h *Handler) ReviewDocument(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "invalid account id", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	var req ReviewDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	a, err := h.service.ReviewDocument(r.Context(), id, req.Kind, req.Approve, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			httputil.RespondErrorWithCode(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
		case errors.Is(err, ErrNotOrganization):
			httputil.RespondErrorWithCode(w, "account is not an organization", httputil.CodeValidationFailed, http.StatusBadRequest)
		case errors.Is(err, ErrDocumentNotFound):
			httputil.RespondErrorWithCode(w, "document not found", httputil.CodeNotFound, http.StatusNotFound)
		case errors.Is(err, ErrReasonRequired):
			httputil.RespondErrorWithCode(w, "a rejection reason is required", httputil.CodeValidationFailed, http.StatusBadRequest)
		default:
			logger.Error("document review failed", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to review document", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("document reviewed", "account_id", a.ID, "kind", req.Kind, "approved", req.Approve)
	httputil.RespondJSON(w, a, http.StatusOK)
}

// SetOverallStatus sets the overall verification decision for an
// organization (admin only).
// @Summary      Set NGO verification status
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Account ID"
// @Param        request body SetOverallStatusRequest true "Decision"
// @Success      200 {object} account.Account
// @Router       /admin/accounts/{id}/verification-status [post]
func (h *Handler) SetOverallStatus(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "invalid account id", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	var req SetOverallStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	a, err := h.service.SetOverallStatus(r.Context(), id, req.Status, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			httputil.RespondErrorWithCode(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
		case errors.Is(err, ErrNotOrganization):
			httputil.RespondErrorWithCode(w, "account is not an organization", httputil.CodeValidationFailed, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidStatus):
			httputil.RespondErrorWithCode(w, "invalid verification status", httputil.CodeValidationFailed, http.StatusBadRequest)
		case errors.Is(err, ErrReasonRequired):
			httputil.RespondErrorWithCode(w, "a rejection reason is required", httputil.CodeValidationFailed, http.StatusBadRequest)
		default:
			logger.Error("failed to set verification status", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to set verification status", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("verification status changed", "account_id", a.ID, "status", a.VerificationStatus)
	httputil.RespondJSON(w, a, http.StatusOK)
}

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

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
