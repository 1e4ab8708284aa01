package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reseller-ledger/internal/domain"
)

func TestNewRecord_KeyedByTransaction(t *testing.T) {
	e := Event{
		Type:          TypeCommissionDistributed,
		BusinessTxnID: "txn-1",
		UserID:        7,
		Service:       domain.ServiceRecharge,
		Amount:        decimal.RequireFromString("7.50"),
	}

	record, err := NewRecord("ledger-events", e)
	require.NoError(t, err)
	assert.Equal(t, "ledger-events", record.Topic)
	assert.Equal(t, "txn-1", string(record.Key))
	require.Len(t, record.Headers, 1)
	assert.Equal(t, "commission.distributed", string(record.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, "7.5", decoded["amount"])
	assert.NotEmpty(t, decoded["occurred_at"])
}

func TestEventKey_FallsBackToType(t *testing.T) {
	assert.Equal(t, "wallet.credited", Event{Type: TypeWalletCredited}.Key())
}

func TestNopPublisher(t *testing.T) {
	p := NewNopPublisher()
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeTransactionSucceeded}))
	p.Close()
}

func TestKafkaPublisher_UnreachableBrokerFailsWithinDeliveryTimeout(t *testing.T) {
	p, err := NewKafkaPublisher(KafkaConfig{
		Brokers:         []string{"127.0.0.1:1"},
		Topic:           "ledger-events",
		ClientID:        "ledger-test",
		DeliveryTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	defer p.Close()

	done := make(chan error, 1)
	go func() {
		done <- p.Publish(context.Background(), Event{Type: TypeTransactionSucceeded, BusinessTxnID: "txn-9"})
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Publish did not give up on an unreachable broker")
	}
}
