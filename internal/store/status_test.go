package store

import (
	"testing"

	"github.com/dlsbank/transfer-service/internal/domain"
)

func TestCanTransition_PendingReachesAllStates(t *testing.T) {
	for _, to := range []string{domain.StatusProcessing, domain.StatusCompleted, domain.StatusDeclined, domain.StatusFailed} {
		if !CanTransition(domain.StatusPending, to) {
			t.Fatalf("expected pending -> %s to be legal", to)
		}
	}
}

func TestCanTransition_RepeatIsIdempotent(t *testing.T) {
	for _, status := range []string{domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusDeclined, domain.StatusFailed} {
		if !CanTransition(status, status) {
			t.Fatalf("expected %s -> %s repeat to be legal", status, status)
		}
	}
}

func TestCanTransition_TerminalStatesAreSticky(t *testing.T) {
	cases := []struct{ from, to string }{
		{domain.StatusDeclined, domain.StatusCompleted},
		{domain.StatusDeclined, domain.StatusPending},
		{domain.StatusFailed, domain.StatusCompleted},
		{domain.StatusFailed, domain.StatusDeclined},
		{domain.StatusCompleted, domain.StatusPending},
		{domain.StatusCompleted, domain.StatusProcessing},
		{domain.StatusCompleted, domain.StatusFailed},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Fatalf("expected %s -> %s to be illegal", c.from, c.to)
		}
	}
}

func TestCanTransition_CompletedAllowsCompensatingDecline(t *testing.T) {
	if !CanTransition(domain.StatusCompleted, domain.StatusDeclined) {
		t.Fatal("expected completed -> declined compensating transition to be legal")
	}
}

func TestTransitionSources_DeclineIncludesCompleted(t *testing.T) {
	sources := transitionSources(domain.StatusDeclined)
	found := map[string]bool{}
	for _, s := range sources {
		found[s] = true
	}
	if !found[domain.StatusPending] || !found[domain.StatusProcessing] || !found[domain.StatusCompleted] {
		t.Fatalf("expected decline sources to include pending, processing and completed, got %v", sources)
	}
	if found[domain.StatusDeclined] || found[domain.StatusFailed] {
		t.Fatalf("unexpected decline sources %v", sources)
	}
}

func TestTransitionSources_CompleteExcludesTerminals(t *testing.T) {
	sources := transitionSources(domain.StatusCompleted)
	for _, s := range sources {
		if IsTerminal(s) {
			t.Fatalf("expected no terminal source for completed, got %v", sources)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []string{domain.StatusCompleted, domain.StatusDeclined, domain.StatusFailed} {
		if !IsTerminal(status) {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	for _, status := range []string{domain.StatusPending, domain.StatusProcessing} {
		if IsTerminal(status) {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}
