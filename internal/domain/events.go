/**
 * @description
 * This file defines the wire payloads exchanged with the fraud detection and
 * balance services over RabbitMQ, together with the tolerant deserialization
 * the delayed verdict channel requires.
 *
 * @notes
 * - The fraud detection service emits camelCase fields on the fast channel and
 *   a mix of camelCase and snake_case on the delayed FraudEvents channel; both
 *   spellings are declared as recognized aliases here.
 * - Verdict amounts may arrive as JSON numbers or strings; decimal.Decimal
 *   accepts both. Malformed individual fields fall back to safe defaults so a
 *   single bad payload can never crash a consumer loop.
 */

package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FraudCheckRequest is published to the fraud detection service when a
// transfer enters the saga.
type FraudCheckRequest struct {
	TransferID  string          `json:"transferId"`
	FromAccount string          `json:"fromAccount"`
	ToAccount   string          `json:"toAccount"`
	Amount      decimal.Decimal `json:"amount"`
	UserID      string          `json:"userId"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Verdict statuses reported by the fraud detection service.
const (
	VerdictApproved = "approved"
	VerdictDeclined = "declined"
	VerdictPending  = "pending"
)

// FraudVerdict is the decision for one transfer. It is delivered at least once,
// on two independent channels, possibly duplicated and out of order relative to
// the coordinator's verdict timeout.
type FraudVerdict struct {
	TransferID string
	IsFraud    bool
	Status     string
	Amount     decimal.Decimal
	Timestamp  time.Time
}

// Approved reports whether the verdict clears the transfer. A missing status
// defers to the isFraud flag.
func (v FraudVerdict) Approved() bool {
	switch strings.ToLower(strings.TrimSpace(v.Status)) {
	case VerdictApproved:
		return true
	case VerdictDeclined:
		return false
	}
	return !v.IsFraud
}

// fraudVerdictWire mirrors the fast-channel payload with loose field types so
// that one malformed field degrades to its zero value instead of failing the
// whole message.
type fraudVerdictWire struct {
	TransferID json.RawMessage `json:"transferId"`
	IsFraud    json.RawMessage `json:"isFraud"`
	Status     json.RawMessage `json:"status"`
	Amount     json.RawMessage `json:"amount"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// ParseFraudVerdict decodes a fast-channel verdict defensively. It returns an
// error only when the payload is not a JSON object at all; individual fields
// that fail to parse are left at safe defaults.
func ParseFraudVerdict(body []byte, receivedAt time.Time) (FraudVerdict, error) {
	var wire fraudVerdictWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return FraudVerdict{}, err
	}
	return FraudVerdict{
		TransferID: coerceString(wire.TransferID),
		IsFraud:    coerceBool(wire.IsFraud),
		Status:     coerceString(wire.Status),
		Amount:     coerceDecimal(wire.Amount),
		Timestamp:  coerceTimestamp(wire.Timestamp, receivedAt),
	}, nil
}

// DelayedVerdictEvent is the FraudEvents payload produced by the thorough
// re-check. The producer has historically used both camelCase and snake_case
// field names, so both are declared as aliases.
type DelayedVerdictEvent struct {
	EventType       string          `json:"event_type"`
	TransferID      string          `json:"transferId"`
	TransferIDSnake string          `json:"transfer_id"`
	IsFraud         *bool           `json:"isFraud"`
	IsFraudSnake    *bool           `json:"is_fraud"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Timestamp       string          `json:"timestamp"`
}

// Verdict normalizes the event into a FraudVerdict, preferring the camelCase
// spelling when both are present and falling back to the receipt time when the
// timestamp cannot be parsed.
func (e DelayedVerdictEvent) Verdict(receivedAt time.Time) FraudVerdict {
	transferID := strings.TrimSpace(e.TransferID)
	if transferID == "" {
		transferID = strings.TrimSpace(e.TransferIDSnake)
	}
	isFraud := false
	if e.IsFraud != nil {
		isFraud = *e.IsFraud
	} else if e.IsFraudSnake != nil {
		isFraud = *e.IsFraudSnake
	}
	return FraudVerdict{
		TransferID: transferID,
		IsFraud:    isFraud,
		Status:     strings.TrimSpace(e.Status),
		Amount:     e.Amount,
		Timestamp:  parseFlexibleTimestamp(e.Timestamp, receivedAt),
	}
}

// BalanceUpdateMessage instructs the account system to apply one leg of a
// transfer. TransactionID doubles as the downstream idempotency key.
type BalanceUpdateMessage struct {
	AccountID       string          `json:"accountId"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionID   string          `json:"transactionId"`
	TransactionType string          `json:"transactionType"`
	IsAdjustment    bool            `json:"isAdjustment"`
	Timestamp       time.Time       `json:"timestamp"`
}

// BalanceCompletionEvent confirms that the account system applied a balance
// update, keyed by the same transaction id the dispatcher published.
type BalanceCompletionEvent struct {
	TransactionID   string          `json:"transactionId"`
	AccountID       string          `json:"accountId"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	TransactionType string          `json:"transactionType"`
	CompletedAt     string          `json:"completedAt"`
}

// timestampLayouts lists the formats the fraud service has been observed to
// emit, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseFlexibleTimestamp(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return fallback
}

func coerceString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// Non-string scalars (e.g. a numeric id) are kept verbatim.
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

func coerceBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed := strings.ToLower(strings.TrimSpace(s))
		return parsed == "true" || parsed == "1"
	}
	return false
}

func coerceDecimal(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err == nil {
		return d
	}
	return decimal.Zero
}

func coerceTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	if len(raw) == 0 {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseFlexibleTimestamp(s, fallback)
	}
	var epoch float64
	if err := json.Unmarshal(raw, &epoch); err == nil && epoch > 0 {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC()
	}
	return fallback
}
