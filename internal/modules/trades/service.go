package trades

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
	"wheelhouse/internal/events"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/cycles"
	"wheelhouse/internal/modules/ledger"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/underlyings"
	"wheelhouse/internal/modules/wheel"
)

// Service ingests trade events. Validation happens before any write,
// each request commits as a single transaction, and bus notifications
// go out only after the commit succeeds.
type Service struct {
	db          *database.DB
	accounts    *accounts.Repository
	underlyings *underlyings.Repository
	ledger      *ledger.Service
	lots        *lots.Tracker
	cyclesRepo  *cycles.Repository
	engine      *cycles.Engine
	wheel       *wheel.Repository
	bus         *events.Bus
	log         zerolog.Logger
}

// NewService creates a new trade ingestion service
func NewService(db *database.DB, accountsRepo *accounts.Repository, underlyingsRepo *underlyings.Repository, ledgerSvc *ledger.Service, lotTracker *lots.Tracker, cyclesRepo *cycles.Repository, engine *cycles.Engine, wheelRepo *wheel.Repository, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		db:          db,
		accounts:    accountsRepo,
		underlyings: underlyingsRepo,
		ledger:      ledgerSvc,
		lots:        lotTracker,
		cyclesRepo:  cyclesRepo,
		engine:      engine,
		wheel:       wheelRepo,
		bus:         bus,
		log:         log.With().Str("service", "trades").Logger(),
	}
}

// Deposit records a cash deposit: one ledger entry plus the matching
// balance adjustment.
func (s *Service) Deposit(accountID string, req DepositRequest) (*ledger.Entry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var entry *ledger.Entry
	err := s.db.WithTx(func(tx *sql.Tx) error {
		if _, err := s.accounts.Get(tx, accountID); err != nil {
			return err
		}

		var err error
		entry, err = s.ledger.Post(tx, accountID, "", ledger.EntryDeposit, req.Amount, req.OccurredAt, depositDescription(req))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", accountID).
		Str("amount", req.Amount.String()).
		Msg("Deposit recorded")

	s.bus.Publish(events.Event{
		Type:      events.TypeDepositMade,
		AccountID: accountID,
		Payload:   entry,
	})

	return entry, nil
}

// RecordStockTrade ingests a stock BUY or SELL. A BUY opens a new lot
// at the trade price; a SELL consumes lots FIFO and may finalize the
// underlying's open cycle when it leaves nothing open.
func (s *Service) RecordStockTrade(accountID string, req StockTradeRequest) (*StockTradeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &StockTradeResult{}
	err := s.db.WithTx(func(tx *sql.Tx) error {
		if _, err := s.accounts.Get(tx, accountID); err != nil {
			return err
		}

		u, err := s.underlyings.GetOrCreate(tx, accountID, req.Symbol)
		if err != nil {
			return err
		}
		result.Underlying = u

		if req.WheelCategory != nil {
			err := s.wheel.UpsertClassification(tx, &wheel.Classification{
				AccountID:    accountID,
				UnderlyingID: u.ID,
				Category:     *req.WheelCategory,
				UpdatedAt:    req.OccurredAt.UTC(),
			})
			if err != nil {
				return err
			}
		}

		gross := req.Price.Mul(decimal.NewFromInt(req.Quantity))

		switch req.Action {
		case StockBuy:
			lot, err := s.lots.OpenLot(tx, accountID, u.ID, "", req.Quantity, req.Price, req.OccurredAt)
			if err != nil {
				return err
			}
			result.Lot = lot

			desc := fmt.Sprintf("bought %d %s @ %s", req.Quantity, u.Symbol, domain.RenderAmount(req.Price))
			entry, err := s.ledger.Post(tx, accountID, "", ledger.EntryStockBuy, gross.Add(req.Fees).Neg(), req.OccurredAt, desc)
			if err != nil {
				return err
			}
			result.Entry = entry

		case StockSell:
			consumption, err := s.lots.Consume(tx, u.ID, req.Quantity, req.Price)
			if err != nil {
				return err
			}
			result.Consumption = consumption

			// Attach the sale to the open cycle, if any, so finalization
			// sees the inflow.
			cycleID := ""
			if cycle, err := s.cyclesRepo.OpenCycleByUnderlying(tx, u.ID); err == nil {
				cycleID = cycle.ID
			} else if !domain.IsNotFound(err) {
				return err
			}

			desc := fmt.Sprintf("sold %d %s @ %s", req.Quantity, u.Symbol, domain.RenderAmount(req.Price))
			entry, err := s.ledger.Post(tx, accountID, cycleID, ledger.EntryStockSell, gross.Sub(req.Fees), req.OccurredAt, desc)
			if err != nil {
				return err
			}
			result.Entry = entry

			cycleResult, err := s.engine.MaybeFinalizeAfterStockSale(tx, accountID, u.ID, req.OccurredAt)
			if err != nil {
				return err
			}
			if cycleResult.Cycle != nil {
				result.Cycle = cycleResult
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", accountID).
		Str("symbol", result.Underlying.Symbol).
		Str("action", string(req.Action)).
		Int64("quantity", req.Quantity).
		Msg("Stock trade recorded")

	s.publishTrade(accountID, result.Cycle, result)

	return result, nil
}

// RecordOptionTrade ingests an option lifecycle event and runs the
// matching cycle transition. Collected premium follows the premium
// policy: COMPOUND leaves it in free cash, RESERVE also sets it aside
// in the cashflow reserve.
func (s *Service) RecordOptionTrade(accountID string, req OptionTradeRequest) (*cycles.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *cycles.Result
	err := s.db.WithTx(func(tx *sql.Tx) error {
		if _, err := s.accounts.Get(tx, accountID); err != nil {
			return err
		}

		u, err := s.underlyings.GetOrCreate(tx, accountID, req.Symbol)
		if err != nil {
			return err
		}

		if req.WheelCategoryOverride != nil {
			err := s.wheel.UpsertClassification(tx, &wheel.Classification{
				AccountID:    accountID,
				UnderlyingID: u.ID,
				Category:     *req.WheelCategoryOverride,
				UpdatedAt:    req.OccurredAt.UTC(),
			})
			if err != nil {
				return err
			}
		}

		key := req.LegKey()

		switch req.Action {
		case SellToOpen:
			result, err = s.engine.OpenShortOption(tx, accountID, u.ID, key, req.Quantity, req.Price, req.Fees, req.OccurredAt)
			if err != nil {
				return err
			}

			policy := PolicyCompound
			if req.PremiumPolicyOverride != nil {
				policy = *req.PremiumPolicyOverride
			}
			if policy == PolicyReserve {
				if err := s.accounts.AdjustReserve(tx, accountID, result.Entry.Amount); err != nil {
					return err
				}
			}

		case BuyToClose:
			result, err = s.engine.BuyToClose(tx, accountID, u.ID, key, req.Quantity, req.Price, req.Fees, req.OccurredAt)
			if err != nil {
				return err
			}

		case Expire:
			result, err = s.engine.ExpireOption(tx, accountID, u.ID, key, req.OccurredAt)
			if err != nil {
				return err
			}

		case Assign:
			result, err = s.engine.AssignOption(tx, accountID, u.ID, key, req.Quantity, req.Fees, req.OccurredAt)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", accountID).
		Str("symbol", req.Symbol).
		Str("action", string(req.Action)).
		Str("call_put", string(req.CallPut)).
		Msg("Option trade recorded")

	s.publishTrade(accountID, result, result)

	return result, nil
}

// publishTrade emits the post-commit notifications for a trade and its
// cycle side effects.
func (s *Service) publishTrade(accountID string, cycleResult *cycles.Result, payload interface{}) {
	s.bus.Publish(events.Event{
		Type:      events.TypeTradeRecorded,
		AccountID: accountID,
		Payload:   payload,
	})

	if cycleResult == nil {
		return
	}
	if cycleResult.CycleCreated {
		s.bus.Publish(events.Event{
			Type:      events.TypeCycleOpened,
			AccountID: accountID,
			Payload:   cycleResult.Cycle,
		})
	}
	if cycleResult.Finalized {
		s.bus.Publish(events.Event{
			Type:      events.TypeCycleFinalized,
			AccountID: accountID,
			Payload:   cycleResult.Cycle,
		})
	}
	if cycleResult.Signal != nil {
		s.bus.Publish(events.Event{
			Type:      events.TypeSignalCreated,
			AccountID: accountID,
			Payload:   cycleResult.Signal,
		})
	}
}

func depositDescription(req DepositRequest) string {
	if req.Notes != "" {
		return req.Notes
	}
	return "cash deposit"
}
