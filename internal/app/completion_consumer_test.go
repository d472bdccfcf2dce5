package app

import (
	"errors"
	"testing"

	"github.com/dlsbank/transfer-service/internal/domain"
)

func completionEvent(transactionID string) []byte {
	return []byte(`{"transactionId":"` + transactionID + `","accountId":"acc-src","newBalance":400.00,"transactionType":"Withdrawal"}`)
}

func TestCompletion_ConvergesPendingParent(t *testing.T) {
	repo := newLedgerStub()
	parent := seedTransfer(t, repo, domain.StatusPending)
	seedLegs(t, repo, parent, domain.StatusPending)

	consumer := NewBalanceCompletionConsumer(repo)
	if !consumer.HandleMessage(completionEvent(domain.WithdrawalLegID(parent.TransferID))) {
		t.Fatal("expected the confirmation to be acknowledged")
	}

	if got := repo.status(t, domain.WithdrawalLegID(parent.TransferID)); got != domain.StatusCompleted {
		t.Fatalf("expected confirmed leg completed, got %s", got)
	}
	if got := repo.status(t, parent.TransferID); got != domain.StatusCompleted {
		t.Fatalf("expected parent converged to completed, got %s", got)
	}
}

func TestCompletion_TerminalParentLeftAlone(t *testing.T) {
	repo := newLedgerStub()
	parent := seedTransfer(t, repo, domain.StatusDeclined)
	seedLegs(t, repo, parent, domain.StatusDeclined)

	consumer := NewBalanceCompletionConsumer(repo)
	if !consumer.HandleMessage(completionEvent(domain.DepositLegID(parent.TransferID))) {
		t.Fatal("expected the stale confirmation to be acknowledged")
	}

	if got := repo.status(t, parent.TransferID); got != domain.StatusDeclined {
		t.Fatalf("expected declined parent untouched, got %s", got)
	}
	if got := repo.status(t, domain.DepositLegID(parent.TransferID)); got != domain.StatusDeclined {
		t.Fatalf("expected declined leg untouched, got %s", got)
	}
}

func TestCompletion_NonLegTransactionAcknowledged(t *testing.T) {
	repo := newLedgerStub()
	consumer := NewBalanceCompletionConsumer(repo)

	// Reversal adjustment confirmations carry no leg suffix; nothing to do.
	if !consumer.HandleMessage(completionEvent("tr-1-withdrawal-reversal")) {
		t.Fatal("expected a non-leg confirmation to be acknowledged")
	}
}

func TestCompletion_UnknownTransferAcknowledged(t *testing.T) {
	repo := newLedgerStub()
	consumer := NewBalanceCompletionConsumer(repo)

	if !consumer.HandleMessage(completionEvent(domain.WithdrawalLegID("tr-missing"))) {
		t.Fatal("expected an unknown transfer to be acknowledged and dropped")
	}
}

func TestCompletion_MalformedPayloadAcknowledged(t *testing.T) {
	consumer := NewBalanceCompletionConsumer(newLedgerStub())

	if !consumer.HandleMessage([]byte(`{{{`)) {
		t.Fatal("expected a malformed payload to be acknowledged")
	}
	if !consumer.HandleMessage([]byte(`{"accountId":"acc-src"}`)) {
		t.Fatal("expected a confirmation without a transaction id to be acknowledged")
	}
}

func TestCompletion_RepositoryFailureRequeues(t *testing.T) {
	repo := newLedgerStub()
	parent := seedTransfer(t, repo, domain.StatusPending)
	seedLegs(t, repo, parent, domain.StatusPending)
	repo.failUpdate = errors.New("connection reset")

	consumer := NewBalanceCompletionConsumer(repo)
	if consumer.HandleMessage(completionEvent(domain.WithdrawalLegID(parent.TransferID))) {
		t.Fatal("expected a repository failure to requeue the confirmation")
	}
}
