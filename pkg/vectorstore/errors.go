package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type OperationErrorCode string

const (
	OperationErrorValidation         OperationErrorCode = "validation_failed"
	OperationErrorUnsupportedFilter  OperationErrorCode = "unsupported_filter"
	OperationErrorEncodeFailed       OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed       OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed    OperationErrorCode = "transport_failed"
	OperationErrorTimeout            OperationErrorCode = "timeout"
	OperationErrorQueryFailed        OperationErrorCode = "query_failed"
	OperationErrorCollectionNotFound OperationErrorCode = "collection_not_found"
)

// OperationError is returned by every adapter call that fails.
type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "vector store operation failed"
	}
	if e.Message != "" {
		return fmt.Sprintf("vector store operation failed (op=%s code=%s status=%d): %s", e.Operation, e.Code, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("vector store operation failed (op=%s code=%s status=%d): %v", e.Operation, e.Code, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("vector store operation failed (op=%s code=%s status=%d)", e.Operation, e.Code, e.StatusCode)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether the failure is transient.
func (e *OperationError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case OperationErrorTimeout, OperationErrorTransportFailed, OperationErrorCollectionNotFound:
		return true
	case OperationErrorQueryFailed:
		return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
	}
	return false
}

// IsCode reports whether err is an OperationError with the given code.
func IsCode(err error, code OperationErrorCode) bool {
	var opErr *OperationError
	return errors.As(err, &opErr) && opErr.Code == code
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}
