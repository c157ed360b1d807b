package httputil

// Machine-readable error codes returned alongside error messages so
// clients can branch without parsing prose.
const (
	CodeInvalidRequestBody   = "INVALID_REQUEST_BODY"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeEmailAlreadyExists   = "EMAIL_ALREADY_EXISTS"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeAccountSuspended     = "ACCOUNT_SUSPENDED"
	CodePendingApproval      = "PENDING_APPROVAL"
	CodeRegistrationRejected = "REGISTRATION_REJECTED"
	CodeDocumentsRejected    = "DOCUMENTS_REJECTED"
	CodeAlreadyVerified      = "ALREADY_VERIFIED"
	CodeAttemptsExhausted    = "ATTEMPTS_EXHAUSTED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeCodeExpired          = "CODE_EXPIRED"
	CodeInvalidCode          = "INVALID_CODE"
	CodeInvalidResetCode     = "INVALID_OR_EXPIRED_CODE"
	CodeDeliveryFailed       = "DELIVERY_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeMissingAuth          = "MISSING_AUTH"
	CodeInvalidAuthHeader    = "INVALID_AUTH_HEADER"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeForbidden            = "FORBIDDEN"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeInternalError        = "INTERNAL_ERROR"
)
