package serverutils

import (
	"errors"

	"llm-knowledge-be/internal/service"
	"llm-knowledge-be/pkg/vectorstore"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into JSON bodies
// with a status derived from the error kind.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var verr *ValidationError
		if errors.As(err, &verr) {
			body := ErrorResponse(fiber.StatusBadRequest, "Validation failed")
			body.Errors = verr.Fields
			return ctx.Status(fiber.StatusBadRequest).JSON(body)
		}

		code := StatusFor(err)
		return ctx.Status(code).JSON(ErrorResponse(code, err.Error()))
	}
}

func StatusFor(err error) int {
	var ferr *fiber.Error
	var operr *vectorstore.OperationError
	switch {
	case errors.As(err, &ferr):
		return ferr.Code
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrThreadBusy), errors.Is(err, service.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrConfiguration):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &operr):
		if operr.Code == vectorstore.OperationErrorValidation || operr.Code == vectorstore.OperationErrorUnsupportedFilter {
			return fiber.StatusBadRequest
		}
		if operr.Retryable() {
			return fiber.StatusServiceUnavailable
		}
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
