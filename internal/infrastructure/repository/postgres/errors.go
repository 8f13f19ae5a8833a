package postgres

import (
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/infrastructure/resilience"
)

// errVersionConflict marks a lost optimistic write; the whole
// read-modify-write cycle is retried.
var errVersionConflict = errors.New("application version changed concurrently")

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func classifyPostgresError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case resilience.IsContextDone(err):
		return resilience.ErrorClassification{}
	case errors.Is(err, errVersionConflict):
		return resilience.ErrorClassification{Retryable: true}
	case isDomainError(err):
		return resilience.ErrorClassification{}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeSerializationFailure, pgErr.Code == codeDeadlockDetected:
			return resilience.ErrorClassification{Retryable: true}
		case pgErr.Code == codeUniqueViolation:
			return resilience.ErrorClassification{}
		case strings.HasPrefix(pgErr.Code, "08"):
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{RecordFailure: true}
	}
	if pgconn.Timeout(err) || errors.Is(err, driver.ErrBadConn) || resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func isDomainError(err error) bool {
	for _, kind := range []error{
		domain.ErrApplicationNotFound,
		domain.ErrInvalidInput,
		domain.ErrForbidden,
		domain.ErrUnauthorized,
		domain.ErrConflict,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// translateError maps exhausted infrastructure failures onto domain kinds.
func translateError(operation string, err error) error {
	if err == nil || isDomainError(err) || resilience.IsContextDone(err) {
		return err
	}
	if errors.Is(err, errVersionConflict) {
		return domain.WrapError(domain.ErrConflict, operation, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return domain.WrapError(domain.ErrConflict, operation, err)
	}
	if classifyPostgresError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
