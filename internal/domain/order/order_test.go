package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_Table(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusPending, StatusPending, false},

		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusConfirmed, StatusConfirmed, false},

		// Terminal states stay terminal.
		{StatusShipped, StatusPending, false},
		{StatusShipped, StatusConfirmed, false},
		{StatusShipped, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusShipped, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusShipped, StatusCancelled} {
		assert.True(t, ValidStatus(s), "%s", s)
	}
	assert.False(t, ValidStatus("delivered"))
	assert.False(t, ValidStatus(""))
}

func TestRequiresPayment(t *testing.T) {
	assert.True(t, RequiresPayment(StatusConfirmed))
	assert.True(t, RequiresPayment(StatusShipped))
	assert.False(t, RequiresPayment(StatusPending))
	assert.False(t, RequiresPayment(StatusCancelled))
}

func TestCanView(t *testing.T) {
	o := &Order{BuyerID: "buyer-1", SupplierID: "supplier-1"}

	assert.True(t, o.CanView("buyer-1", false))
	assert.True(t, o.CanView("supplier-1", false))
	assert.True(t, o.CanView("someone-else", true))
	assert.False(t, o.CanView("someone-else", false))
}
