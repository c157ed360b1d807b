package verification

// MaxAttempts is the ceiling shared by every code-gated flow. Once an
// account reaches it, no further codes are issued without manual
// intervention.
const MaxAttempts = 5

// Exhausted reports whether the counter has reached the ceiling.
func Exhausted(attempts int) bool {
	return attempts >= MaxAttempts
}

// Remaining returns how many attempts are left, never negative.
func Remaining(attempts int) int {
	if attempts >= MaxAttempts {
		return 0
	}
	return MaxAttempts - attempts
}
