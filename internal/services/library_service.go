package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"librarycirculation/internal/models"
	"librarycirculation/internal/repositories"
	"librarycirculation/pkg/calendar"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrDuplicateBook is returned by AddBook when a book with the same title and
	// author is already in the catalogue.
	ErrDuplicateBook = fmt.Errorf("%w: book with this title and author already exists", ErrConflict)

	// ErrUserHasBorrows is returned by CanRemoveUser while the user still holds books.
	ErrUserHasBorrows = fmt.Errorf("%w: user has active borrows", ErrConflict)

	// ErrUserHasReservations is returned by CanRemoveUser while the user still
	// has PENDING or READY_FOR_PICKUP reservations.
	ErrUserHasReservations = fmt.Errorf("%w: user has active reservations", ErrConflict)
)

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService is what the menus talk to: the engine's operations plus the
// catalogue and per-user views built on top of them.
type LibraryService interface {
	AddBook(book *models.Book) (*models.Book, error)
	RemoveBookByID(id int) (RemoveResult, error)
	FindBookByID(id int) (*models.Book, error)
	ListBooks() ([]*models.Book, error)
	ListAvailableBooks() ([]*models.Book, error)
	SearchBooks(term string) ([]*models.Book, error)

	CreateBorrow(book *models.Book, user *models.User, borrowDate, returnDate calendar.Date) (*models.Borrow, error)
	ReturnBook(book *models.Book, user *models.User) error
	CreateReservation(book *models.Book, user *models.User, date calendar.Date) (*models.Reservation, error)

	UserBorrows(user *models.User) []*models.Borrow
	AllBorrows() []*models.Borrow
	UserActiveReservations(user *models.User) []*models.Reservation
	AllActiveReservations() []*models.Reservation
	ReservationHistory() []*models.Reservation
	CountActiveBorrows(user *models.User) int

	SendReminders(date calendar.Date, daysInAdvance int) int
	RearmReminders()
	CanRemoveUser(user *models.User) error
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	engine TransactionEngine
	books  repositories.BookRepository
	index  repositories.BookIndex
	log    *zap.Logger
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
// engine must have been built over the same books and index.
func NewLibraryService(
	engine TransactionEngine,
	books repositories.BookRepository,
	index repositories.BookIndex,
	log *zap.Logger,
) LibraryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &libraryService{
		engine: engine,
		books:  books,
		index:  index,
		log:    log.Named("library"),
	}
}

// ─── Book Management ──────────────────────────────────────────────────────────

// AddBook stores book under a fresh id and registers it in the index.
func (s *libraryService) AddBook(book *models.Book) (*models.Book, error) {
	if book == nil {
		return nil, ErrNilBook
	}
	if strings.TrimSpace(book.Title) == "" || strings.TrimSpace(book.Author) == "" {
		return nil, fmt.Errorf("%w: title and author are required", ErrInvalidArgument)
	}
	if s.index.Contains(book.Title, book.Author) {
		s.log.Warn("AddBook: duplicate", zap.String("title", book.Title), zap.String("author", book.Author))
		return nil, fmt.Errorf("%w: %q by %s", ErrDuplicateBook, book.Title, book.Author)
	}

	book.ID = models.UnassignedID
	book.Available = true
	if err := s.books.Insert(book); err != nil {
		s.log.Error("AddBook: insert failed", zap.String("title", book.Title), zap.Error(err))
		return nil, fmt.Errorf("insert book: %w", err)
	}
	s.index.RegisterOrUpdate(book)
	s.log.Info("AddBook: added", zap.Int("book_id", book.ID), zap.String("title", book.Title))
	return book, nil
}

// RemoveBookByID resolves id to its title and author and asks the engine to
// remove it.
func (s *libraryService) RemoveBookByID(id int) (RemoveResult, error) {
	book, err := s.books.FindByID(id)
	if err != nil {
		return "", fmt.Errorf("find book %d: %w", id, err)
	}
	if book == nil {
		return RemoveResultNotFound, nil
	}
	return s.engine.RemoveBook(book.Title, book.Author)
}

func (s *libraryService) FindBookByID(id int) (*models.Book, error) {
	return s.books.FindByID(id)
}

// ListBooks returns all books in the catalogue.
func (s *libraryService) ListBooks() ([]*models.Book, error) {
	return s.engine.ListBooks()
}

func (s *libraryService) ListAvailableBooks() ([]*models.Book, error) {
	all, err := s.index.ListAll()
	if err != nil {
		return nil, err
	}
	out := []*models.Book{}
	for _, b := range all {
		if b.Available {
			out = append(out, b)
		}
	}
	return out, nil
}

// SearchBooks matches term case-insensitively against title, author, ISBN and genre.
// An empty term matches everything.
func (s *libraryService) SearchBooks(term string) ([]*models.Book, error) {
	all, err := s.engine.ListBooks()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	out := []*models.Book{}
	for _, b := range all {
		for _, field := range []string{b.Title, b.Author, b.ISBN, b.Genre} {
			if strings.Contains(strings.ToLower(field), needle) {
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

// ─── Circulation ──────────────────────────────────────────────────────────────

func (s *libraryService) CreateBorrow(book *models.Book, user *models.User, borrowDate, returnDate calendar.Date) (*models.Borrow, error) {
	return s.engine.CreateBorrow(book, user, borrowDate, returnDate)
}

func (s *libraryService) ReturnBook(book *models.Book, user *models.User) error {
	return s.engine.ReturnBook(book, user)
}

func (s *libraryService) CreateReservation(book *models.Book, user *models.User, date calendar.Date) (*models.Reservation, error) {
	return s.engine.CreateReservation(book, user, date)
}

// ─── Queries ──────────────────────────────────────────────────────────────────

func (s *libraryService) UserBorrows(user *models.User) []*models.Borrow {
	out := []*models.Borrow{}
	if user == nil {
		return out
	}
	for _, b := range s.engine.ActiveBorrows() {
		if b.User.ID == user.ID {
			out = append(out, b)
		}
	}
	return out
}

func (s *libraryService) AllBorrows() []*models.Borrow {
	return s.engine.ActiveBorrows()
}

func (s *libraryService) UserActiveReservations(user *models.User) []*models.Reservation {
	return s.engine.ActiveReservationsForUser(user)
}

func (s *libraryService) AllActiveReservations() []*models.Reservation {
	return s.engine.ActiveReservations()
}

// ReservationHistory includes fulfilled and cancelled reservations.
func (s *libraryService) ReservationHistory() []*models.Reservation {
	return s.engine.AllReservations()
}

func (s *libraryService) CountActiveBorrows(user *models.User) int {
	return s.engine.CountActiveBorrowsForUser(user)
}

// ─── Reminders ────────────────────────────────────────────────────────────────

func (s *libraryService) SendReminders(date calendar.Date, daysInAdvance int) int {
	return s.engine.CheckAndNotifyForUpcomingReturns(date, daysInAdvance)
}

// RearmReminders clears the reminder flag on every active borrow so the next
// sweep evaluates them again. Called when the simulated date moves.
func (s *libraryService) RearmReminders() {
	for _, b := range s.engine.ActiveBorrows() {
		b.SetReminderSent(false)
	}
}

// ─── Users ────────────────────────────────────────────────────────────────────

// CanRemoveUser reports why user may not be deleted yet, or nil if it may.
func (s *libraryService) CanRemoveUser(user *models.User) error {
	if user == nil {
		return ErrNilUser
	}
	if n := s.engine.CountActiveBorrowsForUser(user); n > 0 {
		return fmt.Errorf("%w: %d", ErrUserHasBorrows, n)
	}
	if n := len(s.engine.ActiveReservationsForUser(user)); n > 0 {
		return fmt.Errorf("%w: %d", ErrUserHasReservations, n)
	}
	return nil
}
