package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarycirculation/internal/config"
	"librarycirculation/internal/models"
	"librarycirculation/internal/repositories"
	"librarycirculation/internal/services"
	"librarycirculation/pkg/calendar"
)

var startDate = calendar.New(2025, time.May, 9)

type harness struct {
	svc   services.LibraryService
	users *repositories.UserDirectory
	out   bytes.Buffer
	app   *App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	books, err := repositories.NewFileBookRepository(filepath.Join(dir, "books.csv"), nil)
	require.NoError(t, err)
	index, err := repositories.NewPresenceIndex(books, nil)
	require.NoError(t, err)
	users, err := repositories.NewUserDirectory(filepath.Join(dir, "users.csv"), nil)
	require.NoError(t, err)
	_, err = users.CreateUser("Admin", "User", "admin@library.local", models.UserRoleLibrarian, "admin", 10, calendar.New(2027, time.May, 9))
	require.NoError(t, err)
	engine := services.NewTransactionEngine(books, index, nil, nil)
	return &harness{
		svc:   services.NewLibraryService(engine, books, index, nil),
		users: users,
	}
}

// run feeds script (one input per line) to a fresh App.
func (h *harness) run(t *testing.T, script ...string) string {
	t.Helper()
	cfg := config.Library{
		ReminderDays:     7,
		DefaultBookLimit: 5,
		ReaderCardMonths: 12,
		BorrowMonths:     1,
		AdminEmail:       "admin@library.local",
		AdminPassword:    "admin",
	}
	in := strings.NewReader(strings.Join(script, "\n") + "\n")
	h.out.Reset()
	h.app = New(h.svc, h.users, cfg, in, &h.out, nil, WithClock(func() calendar.Date { return startDate }))
	require.NoError(t, h.app.SeedAdmin())
	require.NoError(t, h.app.Run())
	return h.out.String()
}

func TestLibrarianAddsBookAndReaderBorrows(t *testing.T) {
	h := newHarness(t)
	out := h.run(t,
		"1", "admin@library.local", "admin",
		"2", "1", "Dune", "Herbert", "SF", "Desert planet", "111", "8",
		"1",
		"2", "Ann", "Lee", "ann@example.com", "pw",
		"1", "ann@example.com", "pw",
		"2", "1", "1", "1", "1", "4", "10",
		"4",
	)

	assert.Contains(t, out, "Added 'Dune' with ID 1.")
	assert.Contains(t, out, "Registered Ann with ID 2.")
	assert.Contains(t, out, "Borrowed 'Dune'. Due: 2025-06-09")
	assert.Contains(t, out, "Could not borrow book: conflict: book not available")
	assert.Contains(t, out, "Book: 'Dune' (ID: 1), Borrowed: 2025-05-09, Due: 2025-06-09")
	assert.Contains(t, out, "Exiting...")

	ann := h.users.FindByEmail("ann@example.com")
	require.NotNil(t, ann)
	assert.Equal(t, "2026-05-09", ann.Card.ExpiryDate.String())
	assert.Equal(t, 1, h.svc.CountActiveBorrows(ann))
}

func TestSimulatedTimeRearmsReminders(t *testing.T) {
	h := newHarness(t)
	book, err := h.svc.AddBook(models.NewBook("Dune", "Herbert", "", "", ""))
	require.NoError(t, err)
	reader, err := h.users.CreateUser("Ann", "Lee", "ann@example.com", models.UserRoleReader, "pw", 5, calendar.New(2026, time.May, 9))
	require.NoError(t, err)
	_, err = h.svc.CreateBorrow(book, reader, startDate, startDate.AddMonths(1))
	require.NoError(t, err)

	out := h.run(t,
		"3",
		"3", "25",
		"4", "1",
		"5",
		"6",
		"4",
	)

	assert.Contains(t, out, "New Simulated Date: 2025-06-03")
	assert.Contains(t, out, "New Simulated Date: 2025-06-02")
	assert.Contains(t, out, "New Simulated Date: 2025-05-09")
	assert.Len(t, reader.DrainNotifications(), 2, "one reminder per date change inside the window")
	assert.True(t, h.app.Session().Today.Equal(startDate))
}

func TestRemoveUserGuardedByActiveBorrows(t *testing.T) {
	h := newHarness(t)
	book, err := h.svc.AddBook(models.NewBook("Dune", "Herbert", "", "", ""))
	require.NoError(t, err)
	reader, err := h.users.CreateUser("Ann", "Lee", "ann@example.com", models.UserRoleReader, "pw", 5, calendar.New(2026, time.May, 9))
	require.NoError(t, err)
	_, err = h.svc.CreateBorrow(book, reader, startDate, startDate.AddMonths(1))
	require.NoError(t, err)

	out := h.run(t,
		"1", "admin@library.local", "admin",
		"2", "5", "6", "ann@example.com",
		"7", "2", "1", "8",
		"4",
	)
	assert.Contains(t, out, "They have active borrows.")
	assert.Contains(t, out, "Cannot remove book 1: it is currently borrowed.")
	assert.NotNil(t, h.users.FindByEmail("ann@example.com"))

	require.NoError(t, h.svc.ReturnBook(book, reader))
	out = h.run(t,
		"1", "admin@library.local", "admin",
		"2", "5", "6", "ann@example.com", "7", "8",
		"4",
	)
	assert.Contains(t, out, "User Ann removed.")
	assert.Nil(t, h.users.FindByEmail("ann@example.com"))
}

func TestReaderNotificationsAreDrained(t *testing.T) {
	h := newHarness(t)
	_, err := h.users.CreateUser("Ann", "Lee", "ann@example.com", models.UserRoleReader, "pw", 5, calendar.New(2026, time.May, 9))
	require.NoError(t, err)
	_, err = h.svc.AddBook(models.NewBook("Dune", "Herbert", "", "", ""))
	require.NoError(t, err)

	out := h.run(t,
		"1", "ann@example.com", "pw",
		"2", "3", "1", "8", "8", "10",
		"4",
	)
	assert.Contains(t, out, "Reserved 'Dune'.")
	assert.Contains(t, out, "- Book 'Dune' has been reserved. Reservation date: 2025-05-09")
	assert.Contains(t, out, "No new notifications.")
}

func TestInputHandling(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "abc", "9", "1", "nobody@example.com", "x", "4")
	assert.Contains(t, out, "Invalid input. Please enter a number: ")
	assert.Contains(t, out, "Invalid choice.")
	assert.Contains(t, out, "Login failed. Please check credentials.")

	// closed input ends the session without an error
	h.out.Reset()
	app := New(h.svc, h.users, config.Library{}, strings.NewReader(""), &h.out, nil)
	assert.NoError(t, app.Run())
}

func TestSeedAdminOnlyWhenEmpty(t *testing.T) {
	users, err := repositories.NewUserDirectory(filepath.Join(t.TempDir(), "users.csv"), nil)
	require.NoError(t, err)
	cfg := config.Library{AdminEmail: "root@library.local", AdminPassword: "pw"}
	var out bytes.Buffer
	app := New(nil, users, cfg, strings.NewReader(""), &out, nil, WithClock(func() calendar.Date { return startDate }))

	require.NoError(t, app.SeedAdmin())
	require.NoError(t, app.SeedAdmin())
	all := users.ListAll()
	require.Len(t, all, 1)
	assert.True(t, all[0].IsLibrarian())
	assert.Equal(t, "2027-05-09", all[0].Card.ExpiryDate.String())
	assert.NotNil(t, users.Login("root@library.local", "pw"))
}
