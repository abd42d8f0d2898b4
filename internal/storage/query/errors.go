package query

import (
	"errors"
	"fmt"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// Error is a request the engine rejected.
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return e.msg
}

func errorf(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// IsError reports whether err is, or wraps, a query *Error.
func IsError(err error) bool {
	var qe *Error
	return errors.As(err, &qe)
}

// AsDomainError converts a rejected request into the backend query error
// reported to clients. Other errors are returned unchanged.
func AsDomainError(err error) error {
	var qe *Error
	if errors.As(err, &qe) {
		return domain.ErrBackendQuery.WithDetails(qe.msg)
	}
	return err
}
