package cli

import (
	"librarycirculation/internal/models"
)

func (a *App) readerMenu() error {
	for {
		a.sweepReminders()
		a.printf("\n--- READER MENU (%s) ---\n", a.session.User.Name)
		a.printf("1. Borrow Book\n2. Return Book\n3. Reserve Book\n4. View My Borrows\n" +
			"5. View My Active Reservations\n6. Search Books\n7. List Available Books\n" +
			"8. View My Notifications\n9. View My Card Details\n10. Back to Main Menu\n")
		choice, err := a.readInt("Enter choice: ")
		if err != nil {
			return err
		}
		switch choice {
		case 1:
			err = a.borrowBook()
		case 2:
			err = a.returnBook()
		case 3:
			err = a.reserveBook()
		case 4:
			a.viewMyBorrows()
		case 5:
			a.viewMyReservations()
		case 6:
			err = a.searchBooks()
		case 7:
			a.listAvailableBooks()
		case 8:
			a.viewMyNotifications()
		case 9:
			a.viewMyCard()
		case 10:
			return nil
		default:
			a.printf("Invalid choice.\n")
		}
		if err != nil {
			return err
		}
	}
}

func (a *App) borrowBook() error {
	book, err := a.lookupBook("Enter Book ID to borrow: ")
	if err != nil || book == nil {
		return err
	}
	today := a.session.Today
	borrow, err := a.svc.CreateBorrow(book, a.session.User, today, today.AddMonths(a.cfg.BorrowMonths))
	if err != nil {
		a.printf("Could not borrow book: %v\n", err)
		return nil
	}
	a.printf("Borrowed '%s'. Due: %s\n", borrow.Book.Title, borrow.ReturnDate())
	return nil
}

func (a *App) returnBook() error {
	book, err := a.lookupBook("Enter Book ID to return: ")
	if err != nil || book == nil {
		return err
	}
	if err := a.svc.ReturnBook(book, a.session.User); err != nil {
		a.printf("Could not return book: %v\n", err)
		return nil
	}
	a.printf("Returned '%s'.\n", book.Title)
	return nil
}

func (a *App) reserveBook() error {
	book, err := a.lookupBook("Enter Book ID to reserve: ")
	if err != nil || book == nil {
		return err
	}
	if _, err := a.svc.CreateReservation(book, a.session.User, a.session.Today); err != nil {
		a.printf("Could not reserve book: %v\n", err)
		return nil
	}
	a.printf("Reserved '%s'.\n", book.Title)
	return nil
}

func (a *App) viewMyBorrows() {
	borrows := a.svc.UserBorrows(a.session.User)
	if len(borrows) == 0 {
		a.printf("You have no borrowed books.\n")
		return
	}
	a.printf("\n--- MY BORROWED BOOKS ---\n")
	for _, b := range borrows {
		a.printBorrow(b, false)
	}
}

func (a *App) viewMyReservations() {
	reservations := a.svc.UserActiveReservations(a.session.User)
	if len(reservations) == 0 {
		a.printf("You have no active reservations.\n")
		return
	}
	a.printf("\n--- MY ACTIVE RESERVATIONS ---\n")
	for _, r := range reservations {
		a.printf("Title: %s, Reserved: %s, Status: %s\n", r.Book.Title, r.Date, r.Status())
	}
}

func (a *App) searchBooks() error {
	term, err := a.readLine("Enter search term (title, author, ISBN, genre; empty for all): ")
	if err != nil {
		return err
	}
	books, err := a.svc.SearchBooks(term)
	if err != nil {
		a.printf("Search failed: %v\n", err)
		return nil
	}
	if len(books) == 0 {
		a.printf("No books found matching your criteria: '%s'\n", term)
		return nil
	}
	a.printf("\n--- SEARCH RESULTS ---\n")
	for _, b := range books {
		a.printBook(b, false)
	}
	return nil
}

func (a *App) listAvailableBooks() {
	books, err := a.svc.ListAvailableBooks()
	if err != nil {
		a.printf("Could not list books: %v\n", err)
		return
	}
	if len(books) == 0 {
		a.printf("No books currently available in the library.\n")
		return
	}
	a.printf("\n--- AVAILABLE BOOKS ---\n")
	for _, b := range books {
		a.printBook(b, false)
	}
}

func (a *App) viewMyNotifications() {
	msgs := a.session.User.DrainNotifications()
	if len(msgs) == 0 {
		a.printf("No new notifications.\n")
		return
	}
	a.printf("\n--- MY NOTIFICATIONS ---\n")
	for _, m := range msgs {
		a.printf("- %s\n", m)
	}
	a.printf("(Notifications cleared after viewing)\n")
}

func (a *App) viewMyCard() {
	u := a.session.User
	card := u.Card
	if card == nil {
		a.printf("You do not have a library card associated with your account.\n")
		return
	}
	a.printf("\n--- MY LIBRARY CARD ---\n")
	a.printf("Card ID: %d\nExpires on: %s\nIs Blocked: %t\n", card.CardID, card.ExpiryDate, card.Blocked)
	a.printf("Is Valid (as of %s): %t\n", a.session.Today, card.IsValid(a.session.Today))
	a.printf("Book Limit: %d\n", u.BookLimit)
}

// ─── Shared Rendering ─────────────────────────────────────────────────────────

func (a *App) printBook(b *models.Book, full bool) {
	a.printf("ID: %d, Title: %s, Author: %s, Genre: %s, ISBN: %s", b.ID, b.Title, b.Author, b.Genre, b.ISBN)
	if full {
		a.printf(", Description: %s", b.Description)
	}
	a.printf(", Available: %t\n", b.Available)
}

func (a *App) printBorrow(b *models.Borrow, withUser bool) {
	a.printf("Book: '%s' (ID: %d)", b.Book.Title, b.Book.ID)
	if withUser {
		a.printf(", User: %s (ID: %d)", b.User.Name, b.User.ID)
	}
	a.printf(", Borrowed: %s, Due: %s", b.BorrowDate, b.ReturnDate())
	if b.IsOverdue(a.session.Today) {
		a.printf(" (OVERDUE)")
	}
	if b.ReminderSent() {
		a.printf(" (Reminder Sent)")
	}
	a.printf("\n")
}
