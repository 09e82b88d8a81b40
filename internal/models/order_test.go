package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_TransitionTable(t *testing.T) {
	allowed := map[[2]OrderStatus]bool{
		{OrderPending, OrderAccepted}:    true,
		{OrderPending, OrderCancelled}:   true,
		{OrderAccepted, OrderPickedUp}:   true,
		{OrderAccepted, OrderCancelled}:  true,
		{OrderPickedUp, OrderInTransit}:  true,
		{OrderPickedUp, OrderCancelled}:  true,
		{OrderInTransit, OrderDelivered}: true,
		{OrderInTransit, OrderCancelled}: true,
	}
	for _, from := range OrderStatuses {
		for _, to := range OrderStatuses {
			assert.Equal(t, allowed[[2]OrderStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, OrderDelivered.Terminal())
	assert.True(t, OrderCancelled.Terminal())
	assert.False(t, OrderInTransit.Terminal())
	assert.False(t, OrderStatus("lost").Valid())
}

func TestOrder_IsParty(t *testing.T) {
	driver := "d1"
	o := Order{CustomerID: "c1", DriverID: &driver}
	assert.True(t, o.IsParty("c1"))
	assert.True(t, o.IsParty("d1"))
	assert.False(t, o.IsParty("x"))
	assert.False(t, Order{CustomerID: "c1"}.IsParty("d1"))
}
