package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fridgeshare/pkg/domain"
)

type errorResponse struct {
	Error      string             `json:"error"`
	Violations []violationPayload `json:"violations,omitempty"`
}

type violationPayload struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// statusFor maps service errors onto HTTP status codes. Anything the client
// cannot correct is a 500.
func statusFor(err error) int {
	var violation domain.RuleViolationError
	switch {
	case errors.Is(err, domain.ErrNotFoundKind):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbiddenKind):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidInputKind):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAvailableKind),
		errors.Is(err, domain.ErrDuplicateClaimKind),
		errors.Is(err, domain.ErrInvalidTransitionKind),
		errors.As(err, &violation):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var violation domain.RuleViolationError
	if errors.As(err, &violation) {
		for _, v := range violation.Result.Violations {
			resp.Violations = append(resp.Violations, violationPayload{Rule: v.Rule, Severity: string(v.Severity), Message: v.Message})
		}
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		resp.Error = "internal error"
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
