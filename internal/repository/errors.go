package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/lib/pq"

	"github.com/andrsadr/koravi/internal/domain"
)

// SQLSTATE codes the repository reacts to
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidTextRepr     = "22P02"
)

// normalize turns a driver failure into a *domain.DataError and decides
// whether the retry policy may run it again.
func normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.DataError
	if errors.As(err, &de) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.DataError{Op: op, Message: err.Error(), Code: domain.CodeUnexpected, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &domain.DataError{
			Op:        op,
			Message:   describe(pqErr),
			Code:      string(pqErr.Code),
			Details:   pqErr.Detail,
			Retryable: retryableSQLState(pqErr.Code),
			Err:       err,
		}
	}

	if transient(err) {
		return &domain.DataError{
			Op:        op,
			Message:   "backend unreachable: " + err.Error(),
			Code:      domain.CodeBackendUnavailable,
			Retryable: true,
			Err:       err,
		}
	}

	return &domain.DataError{Op: op, Message: err.Error(), Code: domain.CodeUnexpected, Err: err}
}

func describe(e *pq.Error) string {
	switch string(e.Code) {
	case codeUniqueViolation:
		return "duplicate value violates unique constraint"
	case codeForeignKeyViolation:
		return "referenced record does not exist"
	}
	return e.Message
}

// retryableSQLState covers connection exceptions, serialization failures,
// deadlocks, resource exhaustion and server restarts.
func retryableSQLState(code pq.ErrorCode) bool {
	switch code.Class() {
	case "08", "40", "53":
		return true
	}
	switch code {
	case "57P01", "57P02", "57P03":
		return true
	}
	return false
}

func transient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isInvalidID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeInvalidTextRepr
}
