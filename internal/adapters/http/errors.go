package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, conflict, internal_error, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errFromDomain maps player and store errors onto HTTP statuses.
func errFromDomain(c *fiber.Ctx, err error) error {
	var loadErr *domain.PlaybackLoadError
	var persistErr *domain.PersistenceError

	switch {
	case errors.Is(err, domain.ErrTourNotFound), errors.Is(err, domain.ErrUnknownStop):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrNoActiveStop),
		errors.Is(err, domain.ErrNoAdjacentStop),
		errors.Is(err, domain.ErrInvalidTransition):
		return errConflict(c, err.Error())
	case errors.Is(err, domain.ErrSessionClosed), errors.Is(err, domain.ErrNotStarted):
		return errUnavailable(c, err.Error())
	case errors.As(err, &loadErr):
		return newError(c, fiber.StatusBadGateway, "narration_unavailable", err.Error())
	case errors.As(err, &persistErr):
		return errUnavailable(c, err.Error())
	default:
		return errInternal(c, err.Error())
	}
}
