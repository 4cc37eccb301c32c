package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"librarycirculation/internal/metrics"
	"librarycirculation/internal/models"
	"librarycirculation/internal/repositories"
	"librarycirculation/pkg/calendar"
)

// ─── Error Kinds ──────────────────────────────────────────────────────────────

var (
	// ErrInvalidArgument marks a caller error such as a nil book or user.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict marks a business-rule violation.
	ErrConflict = errors.New("conflict")
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────
// Each wraps one of the kinds above, so errors.Is works against both.

var (
	ErrNilBook = fmt.Errorf("%w: book is required", ErrInvalidArgument)
	ErrNilUser = fmt.Errorf("%w: user is required", ErrInvalidArgument)

	// ErrBookNotFound is returned when the book id does not resolve in the repository.
	ErrBookNotFound = fmt.Errorf("%w: book does not exist", ErrConflict)

	// ErrBookNotAvailable is returned when the book is already lent out.
	ErrBookNotAvailable = fmt.Errorf("%w: book not available", ErrConflict)

	// ErrCardInvalid covers a missing, blocked or expired library card.
	ErrCardInvalid = fmt.Errorf("%w: library card invalid, expired or blocked", ErrConflict)

	// ErrLimitReached is returned when the user already holds BookLimit active borrows.
	ErrLimitReached = fmt.Errorf("%w: book limit reached", ErrConflict)

	ErrAlreadyBorrowed      = fmt.Errorf("%w: book already borrowed by this user", ErrConflict)
	ErrDuplicateReservation = fmt.Errorf("%w: user already has an active reservation for this book", ErrConflict)

	// ErrNotBorrowed is returned by ReturnBook when no active borrow matches.
	ErrNotBorrowed = fmt.Errorf("%w: book not recorded as borrowed by this user", ErrConflict)
)

// RemoveResult tells why RemoveBook did or did not delete a book.
type RemoveResult string

const (
	RemoveResultRemoved  RemoveResult = "REMOVED"
	RemoveResultNotFound RemoveResult = "NOT_FOUND"
	RemoveResultBorrowed RemoveResult = "BORROWED"
	RemoveResultReserved RemoveResult = "RESERVED"
)

const (
	opBorrow     = "borrow"
	opReserve    = "reserve"
	opReturn     = "return"
	opRemoveBook = "remove_book"
)

// ─── Engine Interface ─────────────────────────────────────────────────────────

// TransactionEngine owns the active borrows and the reservation history and
// enforces the circulation rules. It is not safe for concurrent use: exactly
// one caller drives it at a time.
type TransactionEngine interface {
	CreateBorrow(book *models.Book, user *models.User, borrowDate, returnDate calendar.Date) (*models.Borrow, error)
	CreateReservation(book *models.Book, user *models.User, reservationDate calendar.Date) (*models.Reservation, error)
	ReturnBook(book *models.Book, user *models.User) error
	RemoveBook(title, author string) (RemoveResult, error)
	CheckAndNotifyForUpcomingReturns(currentDate calendar.Date, daysInAdvance int) int

	CountActiveBorrowsForUser(user *models.User) int
	ActiveBorrows() []*models.Borrow
	AllReservations() []*models.Reservation
	ActiveReservationsForUser(user *models.User) []*models.Reservation
	ActiveReservations() []*models.Reservation
	ListBooks() ([]*models.Book, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type transactionEngine struct {
	books   repositories.BookRepository
	index   repositories.BookIndex
	log     *zap.Logger
	metrics *metrics.Recorder

	activeBorrows []*models.Borrow
	reservations  []*models.Reservation
}

// NewTransactionEngine wires the engine to its book store and presence index.
// log and rec may be nil.
func NewTransactionEngine(
	books repositories.BookRepository,
	index repositories.BookIndex,
	log *zap.Logger,
	rec *metrics.Recorder,
) TransactionEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &transactionEngine{
		books:   books,
		index:   index,
		log:     log.Named("engine"),
		metrics: rec,
	}
}

// ─── Borrowing ────────────────────────────────────────────────────────────────

// CreateBorrow lends the repository's record for book.ID to user. All rules
// are checked before anything changes; on success the stored book becomes
// unavailable and an active reservation the user holds on it is fulfilled.
func (s *transactionEngine) CreateBorrow(book *models.Book, user *models.User, borrowDate, returnDate calendar.Date) (*models.Borrow, error) {
	if book == nil {
		return nil, s.reject(opBorrow, ErrNilBook)
	}
	if user == nil {
		return nil, s.reject(opBorrow, ErrNilUser)
	}

	stored, err := s.resolveBook(opBorrow, book)
	if err != nil {
		return nil, err
	}
	if !stored.Available {
		return nil, s.reject(opBorrow, fmt.Errorf("%w: %q (id=%d)", ErrBookNotAvailable, stored.Title, stored.ID))
	}
	if user.Card == nil || !user.Card.IsValid(borrowDate) {
		return nil, s.reject(opBorrow, fmt.Errorf("%w: user %d on %s", ErrCardInvalid, user.ID, borrowDate))
	}
	if active := s.CountActiveBorrowsForUser(user); active >= user.BookLimit {
		return nil, s.reject(opBorrow, fmt.Errorf("%w: limit %d, currently %d active", ErrLimitReached, user.BookLimit, active))
	}

	if err := s.books.SetAvailability(stored.ID, false); err != nil {
		return nil, s.fail(opBorrow, fmt.Errorf("mark book %d unavailable: %w", stored.ID, err))
	}
	stored.Available = false

	borrow := models.NewBorrow(stored, user, borrowDate, returnDate)
	user.Card.Record(models.BorrowAction(borrow))
	s.activeBorrows = append(s.activeBorrows, borrow)
	s.index.RegisterOrUpdate(stored)

	s.log.Info("book borrowed",
		zap.Int("book_id", stored.ID),
		zap.String("title", stored.Title),
		zap.Int("user_id", user.ID),
		zap.Stringer("due", returnDate),
		zap.Stringer("borrow_id", borrow.ID),
	)

	if res := s.findActiveReservation(stored.ID, user.ID); res != nil {
		if err := res.MarkFulfilled(); err == nil {
			user.Notify(fmt.Sprintf("Your reservation for '%s' has been fulfilled by borrowing the book.", stored.Title))
			s.log.Info("reservation fulfilled", zap.Stringer("reservation_id", res.ID), zap.Int("user_id", user.ID))
		}
	}

	s.metrics.Operation(opBorrow, metrics.OutcomeSuccess)
	return borrow, nil
}

// ReturnBook closes the user's active borrow of book and hands the book to the
// oldest PENDING reservation, if any.
func (s *transactionEngine) ReturnBook(book *models.Book, user *models.User) error {
	if book == nil {
		return s.reject(opReturn, ErrNilBook)
	}
	if user == nil {
		return s.reject(opReturn, ErrNilUser)
	}

	stored, err := s.resolveBook(opReturn, book)
	if err != nil {
		return err
	}

	pos := -1
	for i, b := range s.activeBorrows {
		if b.Book.ID == stored.ID && b.User.ID == user.ID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return s.reject(opReturn, fmt.Errorf("%w: %q (id=%d), user %d", ErrNotBorrowed, stored.Title, stored.ID, user.ID))
	}

	if err := s.books.SetAvailability(stored.ID, true); err != nil {
		return s.fail(opReturn, fmt.Errorf("mark book %d available: %w", stored.ID, err))
	}
	stored.Available = true
	s.activeBorrows = append(s.activeBorrows[:pos], s.activeBorrows[pos+1:]...)
	s.index.RegisterOrUpdate(stored)

	s.log.Info("book returned", zap.Int("book_id", stored.ID), zap.Int("user_id", user.ID))

	for _, res := range s.reservations {
		if res.Book.ID != stored.ID || res.Status() != models.ReservationStatusPending {
			continue
		}
		if err := res.MarkReadyForPickup(); err == nil {
			if res.User != nil {
				res.User.Notify(fmt.Sprintf("Book '%s' you reserved is now available for pickup!", stored.Title))
			}
			s.log.Info("reservation ready for pickup",
				zap.Stringer("reservation_id", res.ID),
				zap.Int("book_id", stored.ID),
			)
		}
		break
	}

	s.metrics.Operation(opReturn, metrics.OutcomeSuccess)
	return nil
}

// ─── Reservations ─────────────────────────────────────────────────────────────

// CreateReservation queues user for book. Availability is not checked: an
// available book may be reserved too.
func (s *transactionEngine) CreateReservation(book *models.Book, user *models.User, reservationDate calendar.Date) (*models.Reservation, error) {
	if book == nil {
		return nil, s.reject(opReserve, ErrNilBook)
	}
	if user == nil {
		return nil, s.reject(opReserve, ErrNilUser)
	}

	stored, err := s.resolveBook(opReserve, book)
	if err != nil {
		return nil, err
	}
	if user.Card == nil || !user.Card.IsValid(reservationDate) {
		return nil, s.reject(opReserve, fmt.Errorf("%w: user %d on %s", ErrCardInvalid, user.ID, reservationDate))
	}
	for _, b := range s.activeBorrows {
		if b.Book.ID == stored.ID && b.User.ID == user.ID {
			return nil, s.reject(opReserve, fmt.Errorf("%w: %q", ErrAlreadyBorrowed, stored.Title))
		}
	}
	if s.findActiveReservation(stored.ID, user.ID) != nil {
		return nil, s.reject(opReserve, fmt.Errorf("%w: %q", ErrDuplicateReservation, stored.Title))
	}

	res := models.NewReservation(stored, user, reservationDate)
	user.Card.Record(models.ReservationAction(res))
	s.reservations = append(s.reservations, res)
	user.Notify(fmt.Sprintf("Book '%s' has been reserved. Reservation date: %s", stored.Title, reservationDate))

	s.log.Info("book reserved",
		zap.Int("book_id", stored.ID),
		zap.Int("user_id", user.ID),
		zap.Stringer("reservation_id", res.ID),
	)
	s.metrics.Operation(opReserve, metrics.OutcomeSuccess)
	return res, nil
}

// ─── Catalogue ────────────────────────────────────────────────────────────────

// RemoveBook deletes the book matching title and author exactly, unless it is
// lent out or has active reservations. Reservations of a removed book are
// dropped whatever their status.
func (s *transactionEngine) RemoveBook(title, author string) (RemoveResult, error) {
	all, err := s.books.ListAll()
	if err != nil {
		return "", s.fail(opRemoveBook, fmt.Errorf("list books: %w", err))
	}
	var found *models.Book
	for _, b := range all {
		if b.Title == title && b.Author == author {
			found = b
			break
		}
	}
	if found == nil {
		s.log.Info("book not found for removal", zap.String("title", title), zap.String("author", author))
		s.metrics.Operation(opRemoveBook, metrics.OutcomeRejected)
		return RemoveResultNotFound, nil
	}

	for _, b := range s.activeBorrows {
		if b.Book.ID == found.ID {
			s.log.Warn("cannot remove borrowed book", zap.Int("book_id", found.ID))
			s.metrics.Operation(opRemoveBook, metrics.OutcomeRejected)
			return RemoveResultBorrowed, nil
		}
	}
	for _, r := range s.reservations {
		if r.Book.ID == found.ID && r.IsActive() {
			s.log.Warn("cannot remove book with active reservations", zap.Int("book_id", found.ID))
			s.metrics.Operation(opRemoveBook, metrics.OutcomeRejected)
			return RemoveResultReserved, nil
		}
	}

	if err := s.books.Delete(found.ID); err != nil {
		return "", s.fail(opRemoveBook, fmt.Errorf("delete book %d: %w", found.ID, err))
	}
	s.index.Delist(title, author)

	kept := s.reservations[:0]
	for _, r := range s.reservations {
		if r.Book.ID != found.ID {
			kept = append(kept, r)
		}
	}
	clear(s.reservations[len(kept):])
	s.reservations = kept

	s.log.Info("book removed", zap.Int("book_id", found.ID), zap.String("title", title))
	s.metrics.Operation(opRemoveBook, metrics.OutcomeSuccess)
	return RemoveResultRemoved, nil
}

// ListBooks returns every book in the repository, ordered by id.
func (s *transactionEngine) ListBooks() ([]*models.Book, error) {
	return s.books.ListAll()
}

// ─── Reminders ────────────────────────────────────────────────────────────────

// CheckAndNotifyForUpcomingReturns reminds borrowers whose due date falls in
// [currentDate, currentDate+daysInAdvance]. A borrow is reminded once per due
// date. A zero currentDate means today. Returns the number of reminders sent.
func (s *transactionEngine) CheckAndNotifyForUpcomingReturns(currentDate calendar.Date, daysInAdvance int) int {
	if currentDate.IsZero() {
		currentDate = calendar.Today()
	}
	threshold := currentDate.AddDays(daysInAdvance)

	sent := 0
	for _, b := range s.activeBorrows {
		if b.ReminderSent() {
			continue
		}
		due := b.ReturnDate()
		if !due.Between(currentDate, threshold) {
			continue
		}
		b.User.Notify(fmt.Sprintf("Reminder: The book '%s' is due for return on %s.", b.Book.Title, due))
		b.SetReminderSent(true)
		s.metrics.ReminderSent()
		sent++
		s.log.Info("return reminder sent",
			zap.Int("book_id", b.Book.ID),
			zap.Int("user_id", b.User.ID),
			zap.Stringer("due", due),
		)
	}
	return sent
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// CountActiveBorrowsForUser counts the user's active borrows; 0 for a nil user.
func (s *transactionEngine) CountActiveBorrowsForUser(user *models.User) int {
	if user == nil {
		return 0
	}
	n := 0
	for _, b := range s.activeBorrows {
		if b.User.ID == user.ID {
			n++
		}
	}
	return n
}

// ActiveBorrows returns a copy of the active borrows in creation order.
func (s *transactionEngine) ActiveBorrows() []*models.Borrow {
	out := make([]*models.Borrow, len(s.activeBorrows))
	copy(out, s.activeBorrows)
	return out
}

// AllReservations returns every reservation ever made, in creation order.
func (s *transactionEngine) AllReservations() []*models.Reservation {
	out := make([]*models.Reservation, len(s.reservations))
	copy(out, s.reservations)
	return out
}

// ActiveReservationsForUser returns the user's PENDING and READY_FOR_PICKUP
// reservations; empty for a nil user.
func (s *transactionEngine) ActiveReservationsForUser(user *models.User) []*models.Reservation {
	out := []*models.Reservation{}
	if user == nil {
		return out
	}
	for _, r := range s.reservations {
		if r.User.ID == user.ID && r.IsActive() {
			out = append(out, r)
		}
	}
	return out
}

// ActiveReservations returns every PENDING or READY_FOR_PICKUP reservation.
func (s *transactionEngine) ActiveReservations() []*models.Reservation {
	out := []*models.Reservation{}
	for _, r := range s.reservations {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	return out
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

// resolveBook swaps the caller's book for the repository's record with the same id.
func (s *transactionEngine) resolveBook(op string, book *models.Book) (*models.Book, error) {
	stored, err := s.books.FindByID(book.ID)
	if err != nil {
		return nil, s.fail(op, fmt.Errorf("find book %d: %w", book.ID, err))
	}
	if stored == nil {
		return nil, s.reject(op, fmt.Errorf("%w: %q (id=%d)", ErrBookNotFound, book.Title, book.ID))
	}
	return stored, nil
}

func (s *transactionEngine) findActiveReservation(bookID, userID int) *models.Reservation {
	for _, r := range s.reservations {
		if r.Book.ID == bookID && r.User.ID == userID && r.IsActive() {
			return r
		}
	}
	return nil
}

func (s *transactionEngine) reject(op string, err error) error {
	s.log.Warn("operation rejected", zap.String("op", op), zap.Error(err))
	s.metrics.Operation(op, metrics.OutcomeRejected)
	return err
}

func (s *transactionEngine) fail(op string, err error) error {
	s.log.Error("operation failed", zap.String("op", op), zap.Error(err))
	s.metrics.Operation(op, metrics.OutcomeError)
	return err
}
