package common

import (
	"testing"

	"promarket/src/models"
	"promarket/src/types"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []types.BookingStatus{
	types.BOOKING_RFQ,
	types.BOOKING_QUOTED,
	types.BOOKING_QUOTE_ACCEPTED,
	types.BOOKING_QUOTE_REJECTED,
	types.BOOKING_PAYMENT_PENDING,
	types.BOOKING_BOOKED,
	types.BOOKING_IN_PROGRESS,
	types.BOOKING_COMPLETED,
	types.BOOKING_CANCELED,
	types.BOOKING_DISPUTE,
	types.BOOKING_REFUNDED,
}

func TestTransitionTable(t *testing.T) {
	legal := map[types.BookingStatus][]types.BookingStatus{
		types.BOOKING_RFQ:             {types.BOOKING_QUOTED, types.BOOKING_CANCELED},
		types.BOOKING_QUOTED:          {types.BOOKING_QUOTE_ACCEPTED, types.BOOKING_QUOTE_REJECTED, types.BOOKING_CANCELED},
		types.BOOKING_QUOTE_ACCEPTED:  {types.BOOKING_PAYMENT_PENDING, types.BOOKING_BOOKED, types.BOOKING_CANCELED},
		types.BOOKING_PAYMENT_PENDING: {types.BOOKING_BOOKED, types.BOOKING_CANCELED},
		types.BOOKING_BOOKED:          {types.BOOKING_IN_PROGRESS, types.BOOKING_COMPLETED, types.BOOKING_CANCELED, types.BOOKING_DISPUTE},
		types.BOOKING_IN_PROGRESS:     {types.BOOKING_COMPLETED, types.BOOKING_CANCELED, types.BOOKING_DISPUTE},
		types.BOOKING_DISPUTE:         {types.BOOKING_COMPLETED, types.BOOKING_CANCELED, types.BOOKING_REFUNDED},
	}
	allowed := map[string]bool{}
	for from, tos := range legal {
		for _, to := range tos {
			allowed[string(from)+">"+string(to)] = true
		}
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := from == to || allowed[string(from)+">"+string(to)]
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []types.BookingStatus{
		types.BOOKING_QUOTE_REJECTED,
		types.BOOKING_COMPLETED,
		types.BOOKING_CANCELED,
		types.BOOKING_REFUNDED,
	} {
		for _, to := range allStatuses {
			if to == terminal {
				continue
			}
			assert.Falsef(t, CanTransition(terminal, to), "%s should be terminal", terminal)
		}
	}
}

func TestReleasesBlocksOnOccupancyExit(t *testing.T) {
	releasing := map[types.BookingStatus]bool{
		types.BOOKING_QUOTE_REJECTED: true,
		types.BOOKING_CANCELED:       true,
		types.BOOKING_COMPLETED:      true,
		types.BOOKING_REFUNDED:       true,
	}
	for _, s := range allStatuses {
		assert.Equalf(t, releasing[s], releasesBlocks(s), "release on entering %s", s)
	}
}

func TestAuthorizeActorParties(t *testing.T) {
	proID := uint(7)
	booking := models.Booking{
		CustomerID:     42,
		ProfessionalID: &proID,
	}

	assert.NoError(t, authorizeActor(nil, &booking, SystemActor))
	assert.NoError(t, authorizeActor(nil, &booking, Actor{ID: 1, Role: types.ROLE_ADMIN}))
	assert.NoError(t, authorizeActor(nil, &booking, Actor{ID: 42, Role: types.ROLE_CUSTOMER}))
	assert.NoError(t, authorizeActor(nil, &booking, Actor{ID: 9, Role: types.ROLE_PROFESSIONAL, ProfessionalID: 7}))

	err := authorizeActor(nil, &booking, Actor{ID: 99, Role: types.ROLE_CUSTOMER})
	assert.True(t, types.IsAuthorizationError(err))

	err = authorizeActor(nil, &booking, Actor{ID: 9, Role: types.ROLE_PROFESSIONAL, ProfessionalID: 8})
	assert.True(t, types.IsAuthorizationError(err))
}

func TestRoleAllowedPerEdge(t *testing.T) {
	proID := uint(7)
	booking := models.Booking{CustomerID: 42, ProfessionalID: &proID}
	customer := Actor{ID: 42, Role: types.ROLE_CUSTOMER}
	professional := Actor{ID: 9, Role: types.ROLE_PROFESSIONAL, ProfessionalID: 7}

	// Quote submission is the professional's move.
	assert.NoError(t, roleAllowed(types.BOOKING_QUOTED, professional, &booking))
	assert.Error(t, roleAllowed(types.BOOKING_QUOTED, customer, &booking))

	// Quote response is the customer's.
	assert.NoError(t, roleAllowed(types.BOOKING_QUOTE_ACCEPTED, customer, &booking))
	assert.Error(t, roleAllowed(types.BOOKING_QUOTE_ACCEPTED, professional, &booking))
	assert.NoError(t, roleAllowed(types.BOOKING_QUOTE_REJECTED, customer, &booking))

	// Work start is the professional's, completion the customer's.
	assert.NoError(t, roleAllowed(types.BOOKING_IN_PROGRESS, professional, &booking))
	assert.Error(t, roleAllowed(types.BOOKING_IN_PROGRESS, customer, &booking))
	assert.NoError(t, roleAllowed(types.BOOKING_COMPLETED, customer, &booking))
	assert.Error(t, roleAllowed(types.BOOKING_COMPLETED, professional, &booking), "a professional cannot certify their own completion")

	// Payment and dispute edges belong to webhooks.
	assert.Error(t, roleAllowed(types.BOOKING_BOOKED, customer, &booking))
	assert.Error(t, roleAllowed(types.BOOKING_DISPUTE, customer, &booking))
	assert.Error(t, roleAllowed(types.BOOKING_REFUNDED, customer, &booking))
	assert.NoError(t, roleAllowed(types.BOOKING_BOOKED, SystemActor, &booking))
	assert.NoError(t, roleAllowed(types.BOOKING_REFUNDED, Actor{ID: 1, Role: types.ROLE_ADMIN}, &booking))

	// Either party may cancel.
	assert.NoError(t, roleAllowed(types.BOOKING_CANCELED, customer, &booking))
	assert.NoError(t, roleAllowed(types.BOOKING_CANCELED, professional, &booking))
}
