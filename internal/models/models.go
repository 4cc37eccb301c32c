package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"librarycirculation/pkg/calendar"
	"librarycirculation/pkg/utils"
)

type UserRole string

const (
	UserRoleReader    UserRole = "READER"
	UserRoleLibrarian UserRole = "LIBRARIAN"
)

// DefaultBookLimit applies when a user is created with a non-positive limit.
const DefaultBookLimit = 5

// UnassignedID marks a Book that has not been inserted into a repository yet.
const UnassignedID = -1

type ReservationStatus string

const (
	ReservationStatusPending        ReservationStatus = "PENDING"
	ReservationStatusReadyForPickup ReservationStatus = "READY_FOR_PICKUP"
	ReservationStatusFulfilled      ReservationStatus = "FULFILLED"
	ReservationStatusCancelled      ReservationStatus = "CANCELLED"
)

// ErrInvalidTransition is returned when a reservation status would regress.
var ErrInvalidTransition = errors.New("invalid reservation status transition")

// Notifier receives free-text messages for later reading.
type Notifier interface {
	Notify(message string)
}

var _ Notifier = (*User)(nil)

// ─── Book ─────────────────────────────────────────────────────────────────────

type Book struct {
	ID          int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title       string `gorm:"size:255;not null;index:idx_books_title_author" json:"title"`
	Author      string `gorm:"size:255;not null;index:idx_books_title_author" json:"author"`
	Genre       string `gorm:"size:255" json:"genre"`
	Description string `json:"description"`
	ISBN        string `gorm:"column:isbn;size:32" json:"isbn"`
	Available   bool   `gorm:"not null" json:"available"`
}

// NewBook returns an available book with an unassigned id.
func NewBook(title, author, genre, description, isbn string) *Book {
	return &Book{
		ID:          UnassignedID,
		Title:       title,
		Author:      author,
		Genre:       genre,
		Description: description,
		ISBN:        isbn,
		Available:   true,
	}
}

func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func (b *Book) String() string {
	return fmt.Sprintf("Book[id=%d, title=%s, author=%s, genre=%s, isbn=%s, available=%t]",
		b.ID, b.Title, b.Author, b.Genre, b.ISBN, b.Available)
}

// ─── User & LibraryCard ───────────────────────────────────────────────────────

type User struct {
	ID           int
	Name         string
	Surname      string
	Email        string
	Role         UserRole
	PasswordHash string
	BookLimit    int
	Card         *LibraryCard

	notifications []string
}

// NewUser creates a user together with a library card sharing the user's id.
func NewUser(id int, name, surname, email string, role UserRole, passwordHash string, bookLimit int, cardExpiry calendar.Date) *User {
	if bookLimit <= 0 {
		bookLimit = DefaultBookLimit
	}
	return &User{
		ID:           id,
		Name:         name,
		Surname:      surname,
		Email:        email,
		Role:         role,
		PasswordHash: passwordHash,
		BookLimit:    bookLimit,
		Card:         NewLibraryCard(id, cardExpiry),
	}
}

func (u *User) CheckPassword(password string) bool {
	return utils.CheckPassword(password, u.PasswordHash)
}

func (u *User) IsLibrarian() bool { return u.Role == UserRoleLibrarian }

// Notify appends a message to the user's queue.
func (u *User) Notify(message string) {
	u.notifications = append(u.notifications, message)
}

// Notifications returns a copy of the queued messages without clearing them.
func (u *User) Notifications() []string {
	out := make([]string, len(u.notifications))
	copy(out, u.notifications)
	return out
}

// DrainNotifications returns the queued messages and empties the queue.
func (u *User) DrainNotifications() []string {
	out := u.notifications
	u.notifications = nil
	if out == nil {
		return []string{}
	}
	return out
}

func (u *User) String() string {
	s := fmt.Sprintf("User[id=%d, name=%s, surname=%s, email=%s, role=%s, bookLimit=%d",
		u.ID, u.Name, u.Surname, u.Email, u.Role, u.BookLimit)
	if u.Card != nil {
		s += fmt.Sprintf(", cardValidUntil=%s, cardBlocked=%t", u.Card.ExpiryDate, u.Card.Blocked)
	} else {
		s += ", noCard"
	}
	return s + "]"
}

type LibraryCard struct {
	CardID     int
	ExpiryDate calendar.Date
	Blocked    bool

	history []Action
}

func NewLibraryCard(cardID int, expiry calendar.Date) *LibraryCard {
	return &LibraryCard{CardID: cardID, ExpiryDate: expiry}
}

// IsValid reports whether the card may be used on the given day: not blocked
// and the day is on or before the expiry date.
func (c *LibraryCard) IsValid(on calendar.Date) bool {
	if c.Blocked {
		return false
	}
	return on.OnOrBefore(c.ExpiryDate)
}

// Record appends an action to the card history.
func (c *LibraryCard) Record(a Action) {
	c.history = append(c.history, a)
}

func (c *LibraryCard) History() []Action {
	out := make([]Action, len(c.history))
	copy(out, c.history)
	return out
}

// ─── Actions ──────────────────────────────────────────────────────────────────

type ActionKind string

const (
	ActionBorrow      ActionKind = "BORROW"
	ActionReservation ActionKind = "RESERVATION"
)

// Action is one entry of a card history: exactly one of Borrow or
// Reservation is set, as named by Kind.
type Action struct {
	Kind        ActionKind
	Borrow      *Borrow
	Reservation *Reservation
}

func BorrowAction(b *Borrow) Action { return Action{Kind: ActionBorrow, Borrow: b} }

func ReservationAction(r *Reservation) Action {
	return Action{Kind: ActionReservation, Reservation: r}
}

type Borrow struct {
	ID         uuid.UUID
	Book       *Book
	User       *User
	BorrowDate calendar.Date

	returnDate   calendar.Date
	reminderSent bool
}

func NewBorrow(book *Book, user *User, borrowDate, returnDate calendar.Date) *Borrow {
	return &Borrow{
		ID:         uuid.New(),
		Book:       book,
		User:       user,
		BorrowDate: borrowDate,
		returnDate: returnDate,
	}
}

func (b *Borrow) ReturnDate() calendar.Date { return b.returnDate }

// SetReturnDate moves the due date and re-arms the reminder.
func (b *Borrow) SetReturnDate(d calendar.Date) {
	b.returnDate = d
	b.reminderSent = false
}

func (b *Borrow) ReminderSent() bool { return b.reminderSent }

func (b *Borrow) SetReminderSent(sent bool) { b.reminderSent = sent }

func (b *Borrow) IsOverdue(on calendar.Date) bool {
	if on.IsZero() || b.returnDate.IsZero() {
		return false
	}
	return on.After(b.returnDate)
}

type Reservation struct {
	ID   uuid.UUID
	Book *Book
	User *User
	Date calendar.Date

	status ReservationStatus
}

func NewReservation(book *Book, user *User, date calendar.Date) *Reservation {
	return &Reservation{
		ID:     uuid.New(),
		Book:   book,
		User:   user,
		Date:   date,
		status: ReservationStatusPending,
	}
}

func (r *Reservation) Status() ReservationStatus { return r.status }

// IsActive is true for PENDING and READY_FOR_PICKUP.
func (r *Reservation) IsActive() bool {
	return r.status == ReservationStatusPending || r.status == ReservationStatusReadyForPickup
}

// MarkReadyForPickup moves a PENDING reservation to READY_FOR_PICKUP.
func (r *Reservation) MarkReadyForPickup() error {
	if r.status != ReservationStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, ReservationStatusReadyForPickup)
	}
	r.status = ReservationStatusReadyForPickup
	return nil
}

// MarkFulfilled closes an active reservation, with or without a pickup step.
func (r *Reservation) MarkFulfilled() error {
	if !r.IsActive() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, ReservationStatusFulfilled)
	}
	r.status = ReservationStatusFulfilled
	return nil
}
