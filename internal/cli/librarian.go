package cli

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"librarycirculation/internal/models"
	"librarycirculation/internal/services"
)

func (a *App) librarianMenu() error {
	for {
		a.sweepReminders()
		a.printf("\n--- LIBRARIAN MENU (%s) ---\n", a.session.User.Name)
		a.printf("1. Add Book\n2. Remove Book\n3. View All Books (Full Details)\n4. Search Books\n" +
			"5. Manage Users\n6. View All Borrows\n7. View All Reservations (Active/History)\n8. Back to Main Menu\n")
		choice, err := a.readInt("Enter choice: ")
		if err != nil {
			return err
		}
		switch choice {
		case 1:
			err = a.addBook()
		case 2:
			err = a.removeBook()
		case 3:
			a.viewAllBooks()
		case 4:
			err = a.searchBooks()
		case 5:
			err = a.manageUsersMenu()
		case 6:
			a.viewAllBorrows()
		case 7:
			err = a.viewAllReservations()
		case 8:
			return nil
		default:
			a.printf("Invalid choice.\n")
		}
		if err != nil {
			return err
		}
	}
}

func (a *App) addBook() error {
	f, err := a.readLines("Enter title: ", "Enter author: ", "Enter genre: ", "Enter description: ", "Enter ISBN: ")
	if err != nil {
		return err
	}
	book, err := a.svc.AddBook(models.NewBook(f[0], f[1], f[2], f[3], f[4]))
	if err != nil {
		a.printf("Could not add book: %v\n", err)
		return nil
	}
	a.printf("Added '%s' with ID %d.\n", book.Title, book.ID)
	return nil
}

func (a *App) removeBook() error {
	id, err := a.readInt("Enter ID of book to remove: ")
	if err != nil {
		return err
	}
	result, err := a.svc.RemoveBookByID(id)
	if err != nil {
		a.printf("Could not remove book: %v\n", err)
		return nil
	}
	switch result {
	case services.RemoveResultRemoved:
		a.printf("Book %d removed.\n", id)
	case services.RemoveResultNotFound:
		a.printf("Book with ID %d not found.\n", id)
	case services.RemoveResultBorrowed:
		a.printf("Cannot remove book %d: it is currently borrowed.\n", id)
	case services.RemoveResultReserved:
		a.printf("Cannot remove book %d: it has active reservations.\n", id)
	}
	return nil
}

func (a *App) viewAllBooks() {
	books, err := a.svc.ListBooks()
	if err != nil {
		a.printf("Could not list books: %v\n", err)
		return
	}
	if len(books) == 0 {
		a.printf("No books in the system.\n")
		return
	}
	a.printf("\n--- ALL BOOKS (LIBRARIAN VIEW - FULL DETAILS) ---\n")
	for _, b := range books {
		a.printBook(b, true)
	}
}

func (a *App) viewAllBorrows() {
	borrows := a.svc.AllBorrows()
	if len(borrows) == 0 {
		a.printf("No active borrows in the system.\n")
		return
	}
	a.printf("\n--- ALL ACTIVE BORROWS ---\n")
	for _, b := range borrows {
		a.printBorrow(b, true)
	}
}

func (a *App) viewAllReservations() error {
	a.printf("\n--- VIEW ALL RESERVATIONS (LIBRARIAN) ---\n")
	a.printf("1. View only active (PENDING, READY_FOR_PICKUP)\n2. View full history (including FULFILLED, CANCELLED)\n")
	choice, err := a.readInt("Enter choice: ")
	if err != nil {
		return err
	}
	var reservations []*models.Reservation
	switch choice {
	case 1:
		a.printf("\n--- ALL ACTIVE RESERVATIONS ---\n")
		reservations = a.svc.AllActiveReservations()
	case 2:
		a.printf("\n--- FULL RESERVATION HISTORY ---\n")
		reservations = a.svc.ReservationHistory()
	default:
		a.printf("Invalid choice. Returning to menu.\n")
		return nil
	}
	if len(reservations) == 0 {
		a.printf("No reservations found for the selected criteria.\n")
		return nil
	}
	for _, r := range reservations {
		a.printf("Book: '%s' (ID: %d), User: %s (ID: %d), Reserved: %s, Status: %s\n",
			r.Book.Title, r.Book.ID, r.User.Name, r.User.ID, r.Date, r.Status())
	}
	return nil
}

// ─── Manage Users ─────────────────────────────────────────────────────────────

func (a *App) manageUsersMenu() error {
	for {
		a.printf("\n--- MANAGE USERS ---\n")
		a.printf("1. Add New User (Reader/Librarian)\n2. View All Users\n3. Set User Book Limit\n" +
			"4. Extend User Card Expiry\n5. Block/Unblock User Card\n6. Remove User\n7. Back to Librarian Menu\n")
		choice, err := a.readInt("Enter choice: ")
		if err != nil {
			return err
		}
		switch choice {
		case 1:
			err = a.addUser()
		case 2:
			a.viewAllUsers()
		case 3:
			err = a.setUserBookLimit()
		case 4:
			err = a.extendUserCard()
		case 5:
			err = a.toggleBlockUserCard()
		case 6:
			err = a.removeUser()
		case 7:
			return nil
		default:
			a.printf("Invalid choice.\n")
		}
		if err != nil {
			return err
		}
	}
}

func (a *App) addUser() error {
	f, err := a.readLines("Enter name: ", "Enter surname: ", "Enter email: ", "Enter role (READER/LIBRARIAN): ", "Enter password: ")
	if err != nil {
		return err
	}
	limit, err := a.readInt("Enter book limit: ")
	if err != nil {
		return err
	}
	months, err := a.readInt("Card validity in months: ")
	if err != nil {
		return err
	}
	role := models.UserRole(strings.ToUpper(f[3]))
	u, err := a.users.CreateUser(f[0], f[1], f[2], role, f[4], limit, a.session.Today.AddMonths(months))
	if err != nil {
		a.printf("Failed to create user: %v\n", err)
		return nil
	}
	a.printf("Created %s %s (ID: %d, %s).\n", u.Name, u.Surname, u.ID, u.Role)
	return nil
}

func (a *App) viewAllUsers() {
	users := a.users.ListAll()
	if len(users) == 0 {
		a.printf("No users in the system.\n")
		return
	}
	a.printf("\n--- ALL USERS ---\n")
	for _, u := range users {
		valid := "N/A"
		if u.Card != nil {
			if u.Card.IsValid(a.session.Today) {
				valid = "true"
			} else {
				valid = "false"
			}
		}
		a.printf("%s, Card Valid Now: %s\n", u, valid)
	}
}

func (a *App) setUserBookLimit() error {
	id, err := a.readInt("Enter user ID: ")
	if err != nil {
		return err
	}
	limit, err := a.readInt("Enter new book limit: ")
	if err != nil {
		return err
	}
	u, err := a.users.SetBookLimit(id, limit)
	if err != nil {
		a.printf("Could not update book limit: %v\n", err)
		return nil
	}
	a.printf("Book limit for %s (ID: %d) updated to %d\n", u.Name, u.ID, u.BookLimit)
	return nil
}

func (a *App) extendUserCard() error {
	id, err := a.readInt("Enter user ID: ")
	if err != nil {
		return err
	}
	months, err := a.readInt("Months to extend: ")
	if err != nil {
		return err
	}
	u, err := a.users.ExtendCard(id, months)
	if err != nil {
		a.printf("Could not extend card: %v\n", err)
		return nil
	}
	a.printf("Card expiry for %s (ID: %d) extended to %s\n", u.Name, u.ID, u.Card.ExpiryDate)
	return nil
}

func (a *App) toggleBlockUserCard() error {
	id, err := a.readInt("Enter user ID: ")
	if err != nil {
		return err
	}
	u, err := a.users.ToggleBlocked(id)
	if err != nil {
		a.printf("Could not change card status: %v\n", err)
		return nil
	}
	state := "UNBLOCKED"
	if u.Card.Blocked {
		state = "BLOCKED"
	}
	a.printf("Card for %s (ID: %d) is now %s\n", u.Name, u.ID, state)
	return nil
}

func (a *App) removeUser() error {
	email, err := a.readLine("Enter email of user to remove: ")
	if err != nil {
		return err
	}
	u := a.users.FindByEmail(email)
	if u == nil {
		a.printf("User with email %s not found.\n", email)
		return nil
	}
	if err := a.svc.CanRemoveUser(u); err != nil {
		switch {
		case errors.Is(err, services.ErrUserHasBorrows):
			a.printf("Cannot remove user %s (ID: %d). They have active borrows.\n", u.Name, u.ID)
		case errors.Is(err, services.ErrUserHasReservations):
			a.printf("Cannot remove user %s (ID: %d). They have active reservations.\n", u.Name, u.ID)
		default:
			a.printf("Cannot remove user %s: %v\n", u.Name, err)
		}
		return nil
	}
	if a.session.User != nil && a.session.User.ID == u.ID {
		a.printf("You cannot remove the account you are logged in with.\n")
		return nil
	}
	if _, err := a.users.RemoveUser(email); err != nil {
		a.log.Error("remove user failed", zap.String("email", email), zap.Error(err))
		a.printf("Could not remove user: %v\n", err)
		return nil
	}
	a.printf("User %s removed.\n", u.Name)
	return nil
}
