package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarycirculation/pkg/calendar"
)

func day(y int, m time.Month, d int) calendar.Date { return calendar.New(y, m, d) }

func TestNewUserDefaultsLimitAndCard(t *testing.T) {
	u := NewUser(7, "Ann", "Lee", "ann@example.com", UserRoleReader, "", 0, day(2026, time.May, 9))

	assert.Equal(t, DefaultBookLimit, u.BookLimit)
	require.NotNil(t, u.Card)
	assert.Equal(t, 7, u.Card.CardID)
	assert.False(t, u.Card.Blocked)
}

func TestCardValidity(t *testing.T) {
	card := NewLibraryCard(1, day(2025, time.June, 1))

	assert.True(t, card.IsValid(day(2025, time.May, 31)))
	assert.True(t, card.IsValid(day(2025, time.June, 1)), "expiry day is inclusive")
	assert.False(t, card.IsValid(day(2025, time.June, 2)))

	card.Blocked = true
	assert.False(t, card.IsValid(day(2025, time.May, 1)))
}

func TestNotificationsDrainOnRead(t *testing.T) {
	u := NewUser(1, "Ann", "Lee", "ann@example.com", UserRoleReader, "", 5, day(2026, time.May, 9))
	assert.Empty(t, u.DrainNotifications())

	u.Notify("one")
	u.Notify("two")
	assert.Equal(t, []string{"one", "two"}, u.Notifications())
	assert.Equal(t, []string{"one", "two"}, u.DrainNotifications())
	assert.Empty(t, u.Notifications())
}

func TestSetReturnDateRearmsReminder(t *testing.T) {
	b := NewBorrow(NewBook("T", "A", "", "", ""), nil, day(2025, time.May, 9), day(2025, time.June, 9))
	b.SetReminderSent(true)

	b.SetReturnDate(day(2025, time.June, 20))

	assert.False(t, b.ReminderSent())
	assert.Equal(t, day(2025, time.June, 20), b.ReturnDate())
	assert.True(t, b.IsOverdue(day(2025, time.June, 21)))
	assert.False(t, b.IsOverdue(day(2025, time.June, 20)))
}

func TestReservationTransitionsNeverRegress(t *testing.T) {
	r := NewReservation(nil, nil, day(2025, time.May, 9))
	assert.Equal(t, ReservationStatusPending, r.Status())

	require.NoError(t, r.MarkReadyForPickup())
	assert.ErrorIs(t, r.MarkReadyForPickup(), ErrInvalidTransition)

	require.NoError(t, r.MarkFulfilled())
	assert.False(t, r.IsActive())
	assert.ErrorIs(t, r.MarkReadyForPickup(), ErrInvalidTransition)
	assert.ErrorIs(t, r.MarkFulfilled(), ErrInvalidTransition)

	direct := NewReservation(nil, nil, day(2025, time.May, 9))
	require.NoError(t, direct.MarkFulfilled(), "PENDING may be fulfilled directly")
}

func TestCardHistoryIsCopied(t *testing.T) {
	card := NewLibraryCard(1, day(2026, time.January, 1))
	card.Record(ReservationAction(NewReservation(nil, nil, day(2025, time.May, 9))))

	h := card.History()
	h[0] = Action{}
	assert.Equal(t, ActionReservation, card.History()[0].Kind)
}
