/**
 * @description
 * This file contains the core business logic for the transfer-service: the
 * saga coordinating a money transfer between two accounts across independently
 * owned services. The `Service` struct validates the request against the
 * account gateway, writes the pending ledger record, dispatches the fraud
 * check, awaits the verdict with a bounded timeout, and settles or declines
 * the transfer.
 *
 * Key features:
 * - Registers the verdict waiter before publishing the fraud check so a fast
 *   verdict cannot be lost to the register/publish race.
 * - Fails closed on dependency errors at validation time, but fails open on a
 *   verdict timeout: the transfer settles provisionally and the delayed
 *   reconciliation listener corrects it if the thorough re-check disagrees.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For transfer id generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/accountclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dlsbank/transfer-service/internal/domain"
	"github.com/dlsbank/transfer-service/internal/store"
	"github.com/dlsbank/transfer-service/pkg/accountclient"
	"github.com/dlsbank/transfer-service/pkg/rabbitmq"
)

var (
	ErrInvalidTransferAmount = errors.New("transfer amount must be positive")
	ErrMissingAccount        = errors.New("both accounts must be provided")
	ErrSameAccountTransfer   = errors.New("cannot transfer to the same account")
	ErrUnknownAccount        = errors.New("account does not exist")
	ErrNotAccountOwner       = errors.New("caller does not own the source account")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrDependencyUnavailable = errors.New("a required dependency is unavailable")
)

// AccountGateway is the narrow contract to the account system used during
// validation.
type AccountGateway interface {
	GetAccount(ctx context.Context, accountID string) (*accountclient.Account, error)
}

// Service provides the core business logic for transfers.
type Service struct {
	repo            store.Repository
	accounts        AccountGateway
	producer        rabbitmq.Publisher
	dispatcher      *BalanceDispatcher
	registry        *VerdictRegistry
	exchange        string
	verdictTimeout  time.Duration
	defaultCurrency string
}

// NewService creates a new transfer service instance.
func NewService(
	repo store.Repository,
	accounts AccountGateway,
	producer rabbitmq.Publisher,
	dispatcher *BalanceDispatcher,
	registry *VerdictRegistry,
	exchange string,
	verdictTimeout time.Duration,
	defaultCurrency string,
) *Service {
	return &Service{
		repo:            repo,
		accounts:        accounts,
		producer:        producer,
		dispatcher:      dispatcher,
		registry:        registry,
		exchange:        exchange,
		verdictTimeout:  verdictTimeout,
		defaultCurrency: defaultCurrency,
	}
}

// InitiateTransfer runs the transfer saga for one request and blocks until
// the transfer resolves: declined, completed, or provisionally completed via
// the fail-open path when no verdict arrives in time.
func (s *Service) InitiateTransfer(ctx context.Context, userID string, req domain.InitiateTransferRequest) (*domain.Transfer, error) {
	fromAccount := strings.TrimSpace(req.FromAccount)
	toAccount := strings.TrimSpace(req.ToAccount)

	// 1. Validate the request before any ledger write.
	if fromAccount == "" || toAccount == "" {
		return nil, ErrMissingAccount
	}
	if fromAccount == toAccount {
		return nil, ErrSameAccountTransfer
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidTransferAmount
	}

	source, err := s.lookupAccount(ctx, fromAccount)
	if err != nil {
		return nil, err
	}
	if _, err := s.lookupAccount(ctx, toAccount); err != nil {
		return nil, err
	}

	if source.UserID != userID {
		log.Printf("level=warn component=service flow=transfer outcome=reject reason=not_owner user_id=%s from_account=%s", userID, fromAccount)
		return nil, ErrNotAccountOwner
	}
	if source.Balance.LessThan(req.Amount) {
		return nil, ErrInsufficientFunds
	}

	// 2. Create the parent ledger record as pending.
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}
	parent := &domain.Transfer{
		ID:              uuid.New().String(),
		TransferID:      uuid.New().String(),
		Role:            domain.RoleParent,
		UserID:          userID,
		FromAccount:     fromAccount,
		ToAccount:       toAccount,
		Amount:          req.Amount,
		Currency:        currency,
		Status:          domain.StatusPending,
		TransactionType: req.TransactionType,
		Description:     req.Description,
	}
	if err := s.repo.CreateTransfer(ctx, parent); err != nil {
		return nil, fmt.Errorf("create transfer record: %v: %w", err, ErrDependencyUnavailable)
	}

	// 3. Register the verdict waiter BEFORE publishing, so a verdict returned
	// faster than we can come back around is stashed, not lost.
	waiter, err := s.registry.Register(parent.TransferID)
	if err != nil {
		s.markFailed(ctx, parent.TransferID)
		return nil, fmt.Errorf("register verdict waiter for %s: %w", parent.TransferID, err)
	}

	// 4. Publish the fraud check request.
	check := domain.FraudCheckRequest{
		TransferID:  parent.TransferID,
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		Amount:      req.Amount,
		UserID:      userID,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, s.exchange, RoutingKeyFraudCheckRequested, check); err != nil {
		s.registry.Release(parent.TransferID)
		s.markFailed(ctx, parent.TransferID)
		return nil, fmt.Errorf("publish fraud check for %s: %v: %w", parent.TransferID, err, ErrDependencyUnavailable)
	}
	log.Printf("level=info component=service flow=transfer msg=\"fraud check dispatched\" transfer_id=%s amount=%s", parent.TransferID, req.Amount)

	// 5. Await the verdict with a bounded timeout.
	select {
	case verdict := <-waiter:
		if !verdict.Approved() {
			if err := s.repo.UpdateTransferStatus(ctx, parent.TransferID, domain.StatusDeclined); err != nil {
				return nil, fmt.Errorf("decline transfer %s: %v: %w", parent.TransferID, err, ErrDependencyUnavailable)
			}
			parent.Status = domain.StatusDeclined
			log.Printf("level=info component=service flow=transfer outcome=declined transfer_id=%s", parent.TransferID)
			return parent, nil
		}
		if err := settleTransfer(ctx, s.repo, s.dispatcher, parent, domain.FraudResultUnset); err != nil {
			return nil, err
		}
		parent.Status = domain.StatusCompleted
		log.Printf("level=info component=service flow=transfer outcome=completed transfer_id=%s", parent.TransferID)
		return parent, nil

	case <-time.After(s.verdictTimeout):
		// Fail open: no verdict in time means provisional approval. The fraud
		// check result stays unset so the delayed reconciliation listener can
		// still act on a late verdict.
		s.registry.Release(parent.TransferID)
		log.Printf("level=warn component=service flow=transfer msg=\"verdict timeout; proceeding fail-open\" transfer_id=%s timeout=%s", parent.TransferID, s.verdictTimeout)
		if err := settleTransfer(ctx, s.repo, s.dispatcher, parent, domain.FraudResultUnset); err != nil {
			return nil, err
		}
		parent.Status = domain.StatusCompleted
		return parent, nil

	case <-ctx.Done():
		s.registry.Release(parent.TransferID)
		s.markFailed(context.WithoutCancel(ctx), parent.TransferID)
		return nil, ctx.Err()
	}
}

// GetTransfer loads one ledger record by its logical transfer id.
func (s *Service) GetTransfer(ctx context.Context, transferID string) (*domain.Transfer, error) {
	return s.repo.FindTransferByTransferID(ctx, transferID)
}

func (s *Service) lookupAccount(ctx context.Context, accountID string) (*accountclient.Account, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, accountclient.ErrAccountNotFound) {
			return nil, fmt.Errorf("account %s: %w", accountID, ErrUnknownAccount)
		}
		return nil, fmt.Errorf("account lookup for %s: %v: %w", accountID, err, ErrDependencyUnavailable)
	}
	return account, nil
}

// markFailed is a best-effort transition used on critical-path errors; the
// caller already has an error to surface, so a second failure is only logged.
func (s *Service) markFailed(ctx context.Context, transferID string) {
	if err := s.repo.UpdateTransferStatus(ctx, transferID, domain.StatusFailed); err != nil {
		log.Printf("level=error component=service flow=transfer msg=\"failed to mark transfer failed\" transfer_id=%s err=%v", transferID, err)
	}
}

// settleTransfer applies the approval path for a parent record: create both
// legs as pending, dispatch the two balance-update messages, then mark legs
// and parent completed. It is shared by the coordinator (explicit approval and
// fail-open timeout), the delayed reconciliation listener (late no-fraud
// verdict) and the sweeper, and is idempotent: replayed leg inserts and
// repeated completed transitions are no-ops.
func settleTransfer(ctx context.Context, repo store.Repository, dispatcher *BalanceDispatcher, parent *domain.Transfer, fraudCheckResult string) error {
	legs := []domain.Transfer{
		legRecord(parent, domain.RoleWithdrawal, domain.WithdrawalLegID(parent.TransferID)),
		legRecord(parent, domain.RoleDeposit, domain.DepositLegID(parent.TransferID)),
	}
	for i := range legs {
		err := repo.CreateTransfer(ctx, &legs[i])
		if err != nil && !errors.Is(err, store.ErrDuplicateTransfer) {
			// No funds movement has been dispatched yet; fail the transfer.
			if markErr := repo.UpdateTransferStatus(ctx, parent.TransferID, domain.StatusFailed); markErr != nil {
				log.Printf("level=error component=service flow=settle msg=\"failed to mark transfer failed after leg create error\" transfer_id=%s err=%v", parent.TransferID, markErr)
			}
			return fmt.Errorf("create %s leg for %s: %v: %w", legs[i].Role, parent.TransferID, err, ErrDependencyUnavailable)
		}
	}

	if err := dispatcher.DispatchTransferLegs(ctx, parent); err != nil {
		// The dispatch may have partially succeeded; this needs operator
		// attention, so the transfer is failed loudly rather than dropped.
		if markErr := repo.UpdateTransferStatus(ctx, parent.TransferID, domain.StatusFailed); markErr != nil {
			log.Printf("level=error component=service flow=settle msg=\"failed to mark transfer failed after dispatch error\" transfer_id=%s err=%v", parent.TransferID, markErr)
		}
		return fmt.Errorf("%v: %w", err, ErrDependencyUnavailable)
	}

	// Both messages are out. From here the intent exists downstream, so
	// repository errors must not fail the record: the balance completion
	// listener converges it to completed on confirmation.
	for _, leg := range legs {
		if err := repo.UpdateTransferStatus(ctx, leg.TransferID, domain.StatusCompleted); err != nil {
			log.Printf("level=error component=service flow=settle msg=\"leg completion update failed; completion listener will reconcile\" transfer_id=%s err=%v", leg.TransferID, err)
		}
	}
	if err := repo.SetTransferOutcome(ctx, parent.TransferID, domain.StatusCompleted, fraudCheckResult); err != nil {
		log.Printf("level=error component=service flow=settle msg=\"parent completion update failed; completion listener will reconcile\" transfer_id=%s err=%v", parent.TransferID, err)
		return fmt.Errorf("complete transfer %s: %w", parent.TransferID, err)
	}
	return nil
}

func legRecord(parent *domain.Transfer, role, legTransferID string) domain.Transfer {
	return domain.Transfer{
		ID:              uuid.New().String(),
		TransferID:      legTransferID,
		Role:            role,
		UserID:          parent.UserID,
		FromAccount:     parent.FromAccount,
		ToAccount:       parent.ToAccount,
		Amount:          parent.Amount,
		Currency:        parent.Currency,
		Status:          domain.StatusPending,
		TransactionType: parent.TransactionType,
		Description:     parent.Description,
	}
}
