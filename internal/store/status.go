/**
 * @description
 * This file defines the transfer status state machine. All status mutations in
 * the repository consult these rules, so a record can never regress out of a
 * terminal state except through the single sanctioned compensating transition
 * from completed to declined, which a late fraud verdict triggers.
 */

package store

import "github.com/dlsbank/transfer-service/internal/domain"

// IsTerminal reports whether a status accepts no further ordinary transitions.
func IsTerminal(status string) bool {
	switch status {
	case domain.StatusCompleted, domain.StatusDeclined, domain.StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from one status to another is legal.
// Repeating the current status is always allowed so retried updates stay
// idempotent.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case domain.StatusPending:
		switch to {
		case domain.StatusProcessing, domain.StatusCompleted, domain.StatusDeclined, domain.StatusFailed:
			return true
		}
	case domain.StatusProcessing:
		switch to {
		case domain.StatusCompleted, domain.StatusDeclined, domain.StatusFailed:
			return true
		}
	case domain.StatusCompleted:
		// Compensating transition for a fraud verdict that lands after the
		// fail-open window settled the transfer.
		return to == domain.StatusDeclined
	}
	return false
}

// transitionSources lists the statuses a record may currently hold for a
// compare-and-set update to the target status to match. The target itself is
// excluded; an idempotent repeat is classified after the update misses.
func transitionSources(to string) []string {
	var sources []string
	for _, from := range []string{
		domain.StatusPending,
		domain.StatusProcessing,
		domain.StatusCompleted,
		domain.StatusDeclined,
		domain.StatusFailed,
	} {
		if from != to && CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}
