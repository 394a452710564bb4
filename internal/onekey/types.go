package onekey

import (
	"veribatch/internal/identifier"
)

// Outcome is the verification state reported by the service for one identifier.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeUnknown   Outcome = "unknown"
)

// Terminal reports whether the outcome is final. Unknown is not terminal:
// the service emits steps we do not model and they resolve on later polls.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeCancelled:
		return true
	}
	return false
}

// parseStep maps the service's currentStep values to outcomes. The service
// reports failures as "error".
func parseStep(step string) Outcome {
	switch step {
	case "pending":
		return OutcomePending
	case "success":
		return OutcomeSuccess
	case "error":
		return OutcomeFailure
	case "cancelled":
		return OutcomeCancelled
	default:
		return OutcomeUnknown
	}
}

// Result is the last-known verification state for one identifier. CheckToken
// is set while the service expects further status polls for it.
type Result struct {
	ID         identifier.Identifier
	Outcome    Outcome
	Message    string
	CheckToken string
}

// SubmitResult collects the per-identifier state observed on the submission
// stream. Identifiers absent from the map produced no events.
type SubmitResult struct {
	Results map[identifier.Identifier]Result
}

// CancelResult reports the service's response to a cancellation hint.
type CancelResult struct {
	Cancelled bool
	Message   string
}

// event is one SSE payload on the submission stream, and doubles as the
// check-status response body.
type event struct {
	VerificationID string `json:"verificationId"`
	CurrentStep    string `json:"currentStep"`
	Message        string `json:"message"`
	CheckToken     string `json:"checkToken"`
}

type submitRequest struct {
	VerificationIDs []string `json:"verificationIds"`
	HCaptchaToken   string   `json:"hCaptchaToken"`
	UseLucky        bool     `json:"useLucky"`
	ProgramID       string   `json:"programId,omitempty"`
}

type checkStatusRequest struct {
	CheckToken string `json:"checkToken"`
}

type cancelRequest struct {
	VerificationID string `json:"verificationId"`
}

type cancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
