// Package cli is the interactive console front end of the library: menus for
// readers and librarians plus a simulated clock.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"librarycirculation/internal/config"
	"librarycirculation/internal/models"
	"librarycirculation/internal/repositories"
	"librarycirculation/internal/services"
	"librarycirculation/pkg/calendar"
)

// Session is the state of one console run: who is logged in and what day the
// library believes it is.
type Session struct {
	User  *models.User
	Today calendar.Date
}

type App struct {
	svc     services.LibraryService
	users   *repositories.UserDirectory
	cfg     config.Library
	log     *zap.Logger
	in      *bufio.Scanner
	out     io.Writer
	clock   func() calendar.Date
	session Session
}

type Option func(*App)

// WithClock replaces calendar.Today as the source of the real date.
func WithClock(clock func() calendar.Date) Option {
	return func(a *App) { a.clock = clock }
}

func New(svc services.LibraryService, users *repositories.UserDirectory, cfg config.Library, in io.Reader, out io.Writer, log *zap.Logger, opts ...Option) *App {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{
		svc:   svc,
		users: users,
		cfg:   cfg,
		log:   log.Named("cli"),
		in:    bufio.NewScanner(in),
		out:   out,
		clock: calendar.Today,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.session.Today = a.clock()
	return a
}

// Session returns a copy of the current session.
func (a *App) Session() Session { return a.session }

// SeedAdmin creates a librarian account when the directory holds no users.
func (a *App) SeedAdmin() error {
	if len(a.users.ListAll()) > 0 {
		return nil
	}
	_, err := a.users.CreateUser("Admin", "User", a.cfg.AdminEmail, models.UserRoleLibrarian, a.cfg.AdminPassword,
		10, a.session.Today.AddMonths(24))
	if err != nil {
		return fmt.Errorf("seed default librarian: %w", err)
	}
	a.log.Info("default librarian created", zap.String("email", a.cfg.AdminEmail))
	return nil
}

// Run drives the main menu until the user exits or input ends.
func (a *App) Run() error {
	a.printf("Library System Initialized.\n")
	a.printf("Simulated Date: %s\n", a.session.Today)
	err := a.mainMenu()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ─── Main Menu ────────────────────────────────────────────────────────────────

func (a *App) mainMenu() error {
	for {
		a.sweepReminders()
		a.printf("\n--- LIBRARY MAIN MENU (Simulated Date: %s) ---\n", a.session.Today)
		if a.session.User == nil {
			a.printf("1. Login\n2. Register (New Reader)\n")
		} else {
			u := a.session.User
			a.printf("Logged in as: %s (%s)\n1. Logout\n", u.Name, u.Role)
			if u.IsLibrarian() {
				a.printf("2. Librarian Menu\n")
			} else {
				a.printf("2. Reader Menu\n")
			}
		}
		a.printf("3. Simulate Time\n4. Exit\n")

		choice, err := a.readInt("Enter choice: ")
		if err != nil {
			return err
		}
		switch {
		case choice == 1 && a.session.User == nil:
			err = a.login()
		case choice == 2 && a.session.User == nil:
			err = a.register()
		case choice == 1:
			a.printf("%s logged out.\n", a.session.User.Name)
			a.session.User = nil
		case choice == 2 && a.session.User.IsLibrarian():
			err = a.librarianMenu()
		case choice == 2:
			err = a.readerMenu()
		case choice == 3:
			err = a.simulateTimeMenu()
		case choice == 4:
			a.printf("Exiting...\n")
			return nil
		default:
			a.printf("Invalid choice.\n")
		}
		if err != nil {
			return err
		}
	}
}

func (a *App) login() error {
	email, err := a.readLine("Enter email: ")
	if err != nil {
		return err
	}
	password, err := a.readLine("Enter password: ")
	if err != nil {
		return err
	}
	u := a.users.Login(email, password)
	if u == nil {
		a.log.Warn("login failed", zap.String("email", email))
		a.printf("Login failed. Please check credentials.\n")
		return nil
	}
	a.session.User = u
	a.printf("Login successful for %s\n", u.Name)
	if len(u.Notifications()) > 0 {
		a.printf("You have new notifications! Check them in the Reader Menu.\n")
	}
	return nil
}

func (a *App) register() error {
	fields, err := a.readLines("Enter name: ", "Enter surname: ", "Enter email: ", "Enter password: ")
	if err != nil {
		return err
	}
	u, err := a.users.CreateUser(fields[0], fields[1], fields[2], models.UserRoleReader, fields[3],
		a.cfg.DefaultBookLimit, a.session.Today.AddMonths(a.cfg.ReaderCardMonths))
	if err != nil {
		a.printf("Registration failed: %v\n", err)
		return nil
	}
	a.printf("Registered %s with ID %d. You can log in now.\n", u.Name, u.ID)
	return nil
}

// ─── Simulated Time ───────────────────────────────────────────────────────────

func (a *App) simulateTimeMenu() error {
	for {
		a.printf("\n--- SIMULATE TIME ---\nCurrent Simulated Date: %s\n", a.session.Today)
		a.printf("1. Add Months\n2. Subtract Months\n3. Add Days\n4. Subtract Days\n5. Reset to Real Date\n6. Back to Main Menu\n")
		choice, err := a.readInt("Enter choice: ")
		if err != nil {
			return err
		}
		if choice == 6 {
			return nil
		}

		next := a.session.Today
		switch choice {
		case 1, 2, 3, 4:
			n, err := a.readInt([]string{"Months to add: ", "Months to subtract: ", "Days to add: ", "Days to subtract: "}[choice-1])
			if err != nil {
				return err
			}
			switch choice {
			case 1:
				next = next.AddMonths(n)
			case 2:
				next = next.AddMonths(-n)
			case 3:
				next = next.AddDays(n)
			case 4:
				next = next.AddDays(-n)
			}
		case 5:
			next = a.clock()
		default:
			a.printf("Invalid choice.\n")
		}
		a.setToday(next)
		a.printf("New Simulated Date: %s\n", a.session.Today)
		a.sweepReminders()
	}
}

// setToday moves the simulated clock. Any move re-arms due-date reminders.
func (a *App) setToday(d calendar.Date) {
	if d.Equal(a.session.Today) {
		return
	}
	a.log.Info("simulated date changed", zap.Stringer("from", a.session.Today), zap.Stringer("to", d))
	a.session.Today = d
	a.svc.RearmReminders()
}

func (a *App) sweepReminders() {
	if n := a.svc.SendReminders(a.session.Today, a.cfg.ReminderDays); n > 0 {
		a.log.Info("reminders sent", zap.Int("count", n), zap.Stringer("date", a.session.Today))
	}
}

// ─── Input & Output ───────────────────────────────────────────────────────────

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// readLine prompts and returns the next input line without surrounding
// whitespace. io.EOF means input has ended.
func (a *App) readLine(prompt string) (string, error) {
	a.printf("%s", prompt)
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", io.EOF
	}
	return strings.TrimSpace(a.in.Text()), nil
}

func (a *App) readLines(prompts ...string) ([]string, error) {
	out := make([]string, 0, len(prompts))
	for _, p := range prompts {
		line, err := a.readLine(p)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

// readInt keeps asking until it gets a whole number.
func (a *App) readInt(prompt string) (int, error) {
	for {
		line, err := a.readLine(prompt)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil {
			return n, nil
		}
		prompt = "Invalid input. Please enter a number: "
	}
}

// lookupBook reads a book id and resolves it, printing a notice when absent.
func (a *App) lookupBook(prompt string) (*models.Book, error) {
	id, err := a.readInt(prompt)
	if err != nil {
		return nil, err
	}
	book, err := a.svc.FindBookByID(id)
	if err != nil {
		a.log.Error("find book failed", zap.Int("book_id", id), zap.Error(err))
		a.printf("Could not look up book %d: %v\n", id, err)
		return nil, nil
	}
	if book == nil {
		a.printf("Book with ID %d not found.\n", id)
	}
	return book, nil
}
