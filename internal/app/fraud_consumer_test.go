package app

import (
	"testing"
	"time"
)

func TestFraudConsumer_DeliversVerdictToWaiter(t *testing.T) {
	registry := NewVerdictRegistry(time.Minute, 100)
	consumer := NewFraudResultConsumer(registry, nil)

	waiter, err := registry.Register("tr-1")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if !consumer.HandleMessage([]byte(`{"transferId":"tr-1","isFraud":true,"amount":2500}`)) {
		t.Fatal("expected the verdict to be acknowledged")
	}

	select {
	case verdict := <-waiter:
		if !verdict.IsFraud {
			t.Fatal("expected the fraud flag delivered")
		}
	default:
		t.Fatal("expected verdict on the waiter channel")
	}
}

func TestFraudConsumer_StashesVerdictWithoutWaiter(t *testing.T) {
	registry := NewVerdictRegistry(time.Minute, 100)
	consumer := NewFraudResultConsumer(registry, nil)

	if !consumer.HandleMessage([]byte(`{"transferId":"tr-orphan","isFraud":false,"status":"approved"}`)) {
		t.Fatal("expected the verdict to be acknowledged")
	}

	verdict, ok := registry.ClaimStashed("tr-orphan")
	if !ok {
		t.Fatal("expected the verdict stashed for a later claim")
	}
	if !verdict.Approved() {
		t.Fatal("expected an approved verdict")
	}
}

func TestFraudConsumer_AcknowledgesMalformedPayload(t *testing.T) {
	registry := NewVerdictRegistry(time.Minute, 100)
	consumer := NewFraudResultConsumer(registry, nil)

	if !consumer.HandleMessage([]byte(`definitely not json`)) {
		t.Fatal("expected a malformed payload to be acknowledged, not requeued")
	}
}

func TestFraudConsumer_AcknowledgesVerdictWithoutTransferID(t *testing.T) {
	registry := NewVerdictRegistry(time.Minute, 100)
	consumer := NewFraudResultConsumer(registry, nil)

	if !consumer.HandleMessage([]byte(`{"isFraud":true}`)) {
		t.Fatal("expected a verdict without a transfer id to be acknowledged")
	}
	if _, ok := registry.ClaimStashed(""); ok {
		t.Fatal("expected nothing stashed under an empty id")
	}
}

func TestFraudConsumer_ToleratesMixedFieldTypes(t *testing.T) {
	registry := NewVerdictRegistry(time.Minute, 100)
	consumer := NewFraudResultConsumer(registry, nil)

	if !consumer.HandleMessage([]byte(`{"transferId":"tr-mixed","isFraud":"true","amount":"1500.00","timestamp":1769904000.5}`)) {
		t.Fatal("expected the verdict to be acknowledged")
	}

	verdict, ok := registry.ClaimStashed("tr-mixed")
	if !ok {
		t.Fatal("expected the verdict stashed")
	}
	if !verdict.IsFraud {
		t.Fatal("expected string isFraud coerced to true")
	}
	if verdict.Amount.String() != "1500" {
		t.Fatalf("expected amount 1500, got %s", verdict.Amount)
	}
}
