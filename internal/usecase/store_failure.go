package usecase

import (
	"context"
	stderrors "errors"

	"campusmarket/pkg/errors"
)

// storeFailure classifies an error coming back from a store call. Timeouts
// and unavailable stores become STORE_UNAVAILABLE, typed errors the caller
// can act on pass through, anything else is handed to fallback.
func storeFailure(err error, operation string, fallback func(error) *errors.AppError) *errors.AppError {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.StoreUnavailable(operation+" timed out", err)
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		switch appErr.Code {
		case errors.CodeStoreUnavailable, errors.CodeNotFound, errors.CodeForbidden,
			errors.CodeBadRequest, errors.CodeTooManyRequests:
			return appErr
		}
	}
	return fallback(err)
}
