package handlers

import (
	"reflect"
	"testing"

	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/events"
	"github.com/collateral-pay/backend/internal/keys"
	"go.uber.org/zap"
)

func TestWSHub_Recipients(t *testing.T) {
	buyer := keys.Address{1}
	seller := keys.Address{2}
	admin := keys.Address{3}
	hub := NewWSHub(&config.Config{AdminAddresses: []keys.Address{admin}}, events.NewMemoryBus(), zap.NewNop())

	tests := []struct {
		name  string
		event events.Event
		want  []keys.Address
	}{
		{
			name: "both parties",
			event: events.New(events.EventPaymentApplied, map[string]any{
				"buyer": buyer.String(), "seller": seller.String(),
			}),
			want: []keys.Address{buyer, seller},
		},
		{
			name: "buyer is also seller",
			event: events.New(events.EventChannelCreated, map[string]any{
				"buyer": buyer.String(), "seller": buyer.String(),
			}),
			want: []keys.Address{buyer},
		},
		{
			name: "garbage seller",
			event: events.New(events.EventCollateralLocked, map[string]any{
				"buyer": buyer.String(), "seller": "not-an-address",
			}),
			want: []keys.Address{buyer},
		},
		{
			name:  "violation goes to admins",
			event: events.New(events.EventInvariantViolation, map[string]any{"buyer": buyer.String()}),
			want:  []keys.Address{admin},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hub.recipients(tt.event)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("recipients() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWSHub_NoConnections(t *testing.T) {
	hub := NewWSHub(&config.Config{}, events.NewMemoryBus(), zap.NewNop())
	// отправка без соединений не паникует
	hub.SendTo(keys.Address{7}, events.New(events.EventChannelCreated, nil))
	if n := hub.ConnectionCount(keys.Address{7}); n != 0 {
		t.Errorf("ConnectionCount = %d, want 0", n)
	}
}
