package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirinyoku/tripavail/internal/repository"
)

const (
	constraintHoldCapacity = "holds_capacity_check"
	constraintStayOverlap  = "holds_stay_overlap"
)

// IsRetryable reports serialization failures and deadlocks.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}

	return false
}

func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		switch {
		// unique_violation
		case pge.Code == "23505":
			return fmt.Errorf("%w: %s", repository.ErrConflict, pge.ConstraintName)
		// check_violation raised by the capacity trigger
		case pge.Code == "23514" && pge.ConstraintName == constraintHoldCapacity:
			return repository.ErrCapacityConstraint
		case pge.Code == "23514" && pge.ConstraintName == constraintStayOverlap:
			return repository.ErrStayOverlap
		// foreign_key_violation
		case pge.Code == "23503":
			return repository.ErrNotFound
		case IsRetryable(err),
			strings.HasPrefix(pge.Code, "08"),
			pge.Code == "57P01", pge.Code == "57P03":
			return fmt.Errorf("%w: %s", repository.ErrUnavailable, pge.Message)
		}
		return err
	}

	if pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}

	return err
}

// wrapDBErr maps common DB errors to repository-level errors and wraps them with
// the provided operation name.
func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s:%w", op, translateDBErr(err))
}
