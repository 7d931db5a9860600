package reservation

import (
	"fmt"

	"github.com/kirinyoku/tripavail/internal/domain"
	"github.com/kirinyoku/tripavail/internal/repository"
)

type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeAlreadyFinalized Outcome = "already_finalized"
)

// Confirmation is the result of a payment-success signal. A second arrival
// for the same hold is reported as OutcomeAlreadyFinalized, not as an error.
type Confirmation struct {
	Outcome Outcome      `json:"outcome"`
	Hold    *domain.Hold `json:"hold"`
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s:%w", op, repository.ToDomain(err))
}
