package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/bookkeeping/internal/account/domain"
	auditdomain "github.com/smallbiznis/bookkeeping/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/bookkeeping/internal/ledger/domain"
	"github.com/smallbiznis/bookkeeping/internal/ledger/lock"
	taxdomain "github.com/smallbiznis/bookkeeping/internal/tax/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

var validationErrs = []error{
	ErrInvalidRequest,
	accountdomain.ErrInvalidTenant,
	accountdomain.ErrInvalidID,
	accountdomain.ErrInvalidName,
	accountdomain.ErrInvalidCode,
	accountdomain.ErrInvalidAccountType,
	accountdomain.ErrInvalidParent,
	accountdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidTenant,
	ledgerdomain.ErrInvalidID,
	ledgerdomain.ErrInvalidEntryType,
	ledgerdomain.ErrInvalidDate,
	ledgerdomain.ErrInsufficientLines,
	ledgerdomain.ErrInvalidLine,
	ledgerdomain.ErrInvalidSource,
	ledgerdomain.ErrInvalidStatus,
	taxdomain.ErrInvalidTenant,
	taxdomain.ErrInvalidName,
	taxdomain.ErrInvalidID,
	taxdomain.ErrInvalidTaxCode,
	taxdomain.ErrInvalidTaxRate,
	taxdomain.ErrInvalidTaxType,
	taxdomain.ErrInvalidAmount,
	taxdomain.ErrInvalidContact,
	taxdomain.ErrInvalidExemptionType,
	taxdomain.ErrInvalidTaxSelection,
	auditdomain.ErrInvalidTenant,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
}

var notFoundErrs = []error{
	ErrNotFound,
	accountdomain.ErrAccountNotFound,
	ledgerdomain.ErrEntryNotFound,
	taxdomain.ErrTaxNotFound,
	taxdomain.ErrGroupNotFound,
	taxdomain.ErrExemptionNotFound,
	gorm.ErrRecordNotFound,
}

var conflictErrs = []error{
	ErrConflict,
	accountdomain.ErrDuplicateCode,
	accountdomain.ErrAccountTypeImmutable,
	accountdomain.ErrAccountCycle,
	accountdomain.ErrVersionConflict,
	ledgerdomain.ErrInvalidStatusTransition,
	ledgerdomain.ErrAlreadyReversed,
	ledgerdomain.ErrTransactionConflict,
	taxdomain.ErrDuplicateTaxCode,
	taxdomain.ErrDuplicateMember,
}

// Requests that are well formed but break a bookkeeping rule.
var unprocessableErrs = []error{
	ledgerdomain.ErrUnbalanced,
	ledgerdomain.ErrApprovalRequired,
	ledgerdomain.ErrHistoryImmutable,
	accountdomain.ErrAccountInactive,
	taxdomain.ErrTaxInactive,
}

var unavailableErrs = []error{
	ErrServiceUnavailable,
	ledgerdomain.ErrStorageUnavailable,
	ledgerdomain.ErrRetriesExhausted,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// Exhausted retries are joined with the last conflict, so availability is checked first.
	switch {
	case isAny(err, unavailableErrs):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case isAny(err, validationErrs):
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	case isAny(err, notFoundErrs):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isAny(err, conflictErrs):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: matchedCode(err, conflictErrs),
		}
	case isAny(err, unprocessableErrs):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable_entity",
			Message: matchedCode(err, unprocessableErrs),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the error type and code attached to request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if errors.Is(err, lock.ErrLockNotAcquired) {
		return "conflict", lock.ErrLockNotAcquired.Error()
	}
	status, payload := mapError(err)
	switch payload.Type {
	case "validation_error":
		if len(payload.Errors) > 0 {
			return payload.Type, payload.Errors[0].Code
		}
		return payload.Type, ""
	case "internal_error":
		return payload.Type, http.StatusText(status)
	default:
		return payload.Type, payload.Message
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func matchedCode(err error, targets []error) string {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorCode(err error) string {
	return matchedCode(err, validationErrs)
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "insufficient_lines", "invalid_line":
		return "lines"
	case "invalid_tax_selection":
		return "tax_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "insufficient_lines":
		return "at least two lines are required"
	case "invalid_line":
		return "each line needs an account and exactly one positive side"
	case "invalid_tax_selection":
		return "exactly one of tax_id or group_id is required"
	default:
		return "invalid value"
	}
}
