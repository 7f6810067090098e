package reinvest

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
	"wheelhouse/internal/events"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/ledger"
)

// Service resolves reinvestment signals and reports how much cash is
// free for redeployment.
type Service struct {
	db       *database.DB
	repo     *Repository
	accounts *accounts.Repository
	ledger   *ledger.Service
	bus      *events.Bus
	log      zerolog.Logger
}

// NewService creates a new reinvestment service
func NewService(db *database.DB, repo *Repository, accountsRepo *accounts.Repository, ledgerSvc *ledger.Service, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		accounts: accountsRepo,
		ledger:   ledgerSvc,
		bus:      bus,
		log:      log.With().Str("service", "reinvest").Logger(),
	}
}

// GetPendingSignals returns PENDING signals for an account ordered by
// creation time
func (s *Service) GetPendingSignals(accountID string) ([]Signal, error) {
	if _, err := s.accounts.Get(s.db, accountID); err != nil {
		return nil, err
	}
	return s.repo.GetPending(accountID)
}

// ReadyAmount returns max(0, cashBalance - cashflowReserve): the portion
// of cash considered available for redeployment, independent of any
// specific signal.
func (s *Service) ReadyAmount(accountID string) (decimal.Decimal, error) {
	account, err := s.accounts.Get(s.db, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	ready := account.CashBalance.Sub(account.CashflowReserve)
	if ready.IsNegative() {
		return decimal.Zero, nil
	}
	return ready, nil
}

// ActionRequest is the operator's decision on a signal
type ActionRequest struct {
	Action        Action           `json:"action"`
	PartialAmount *decimal.Decimal `json:"partial_amount,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

// ProcessAction resolves a PENDING signal. APPROVE withdraws the full
// amount, PARTIAL withdraws partialAmount and abandons the remainder
// (deliberately not re-queued; it stays in cash until the next organic
// signal), REJECT moves no cash. A signal that is no longer PENDING
// fails with StaleSignalError and mutates nothing.
//
// The withdrawal only commits the capital; recording the subsequent
// reinvestment BUY is the caller's responsibility.
func (s *Service) ProcessAction(signalID string, req ActionRequest) (*Signal, error) {
	now := time.Now().UTC()

	var resolved *Signal
	err := s.db.WithTx(func(tx *sql.Tx) error {
		signal, err := s.repo.Get(tx, signalID)
		if err != nil {
			return err
		}

		if signal.Status != StatusPending {
			return &domain.StaleSignalError{SignalID: signalID, Status: string(signal.Status)}
		}

		switch req.Action {
		case ActionApprove:
			if err := s.repo.Resolve(tx, signalID, StatusApproved, nil, req.Notes, now); err != nil {
				return err
			}
			if _, err := s.ledger.Post(tx, signal.AccountID, signal.CycleID, ledger.EntryReinvestment,
				signal.Amount.Neg(), now, "reinvestment approved"); err != nil {
				return err
			}
			signal.Status = StatusApproved

		case ActionReject:
			if err := s.repo.Resolve(tx, signalID, StatusRejected, nil, req.Notes, now); err != nil {
				return err
			}
			signal.Status = StatusRejected

		case ActionPartial:
			if req.PartialAmount == nil {
				return &domain.ValidationError{Field: "partial_amount", Reason: "required for PARTIAL"}
			}
			partial := *req.PartialAmount
			if err := domain.CheckGranularity(partial); err != nil {
				return err
			}
			if !partial.IsPositive() || !partial.LessThan(signal.Amount) {
				return &domain.ValidationError{
					Field:  "partial_amount",
					Reason: fmt.Sprintf("must be between 0 and %s exclusive", signal.Amount.String()),
				}
			}
			if err := s.repo.Resolve(tx, signalID, StatusPartial, &partial, req.Notes, now); err != nil {
				return err
			}
			if _, err := s.ledger.Post(tx, signal.AccountID, signal.CycleID, ledger.EntryReinvestment,
				partial.Neg(), now, "partial reinvestment"); err != nil {
				return err
			}
			signal.Status = StatusPartial
			signal.PartialAmount = &partial

		default:
			return &domain.ValidationError{Field: "action", Reason: "unknown action: " + string(req.Action)}
		}

		signal.Notes = req.Notes
		signal.ResolvedAt = &now
		resolved = signal
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("signal_id", signalID).
		Str("status", string(resolved.Status)).
		Msg("Reinvestment signal resolved")

	s.bus.Publish(events.Event{
		Type:      events.TypeSignalResolved,
		AccountID: resolved.AccountID,
		Payload:   resolved,
	})

	return resolved, nil
}
