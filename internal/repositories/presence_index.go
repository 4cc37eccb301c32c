package repositories

import (
	"strings"

	"go.uber.org/zap"

	"librarycirculation/internal/models"
)

// PresenceIndex maps a case-insensitive (title, author) pair to its book.
type PresenceIndex struct {
	source BookRepository
	log    *zap.Logger
	books  map[string]*models.Book
}

// NewPresenceIndex builds the index from everything source currently holds.
func NewPresenceIndex(source BookRepository, log *zap.Logger) (*PresenceIndex, error) {
	if log == nil {
		log = zap.NewNop()
	}
	idx := &PresenceIndex{source: source, log: log, books: make(map[string]*models.Book)}
	if err := idx.Refresh(); err != nil {
		return nil, err
	}
	return idx, nil
}

func presenceKey(title, author string) string {
	return strings.ToLower(title) + "#" + strings.ToLower(author)
}

// Refresh drops the index and rebuilds it from the repository.
func (p *PresenceIndex) Refresh() error {
	books, err := p.source.ListAll()
	if err != nil {
		return err
	}
	p.books = make(map[string]*models.Book, len(books))
	for _, b := range books {
		p.RegisterOrUpdate(b)
	}
	return nil
}

func (p *PresenceIndex) RegisterOrUpdate(book *models.Book) {
	if book == nil {
		return
	}
	p.books[presenceKey(book.Title, book.Author)] = book
	p.log.Debug("index noted book", zap.Int("book_id", book.ID), zap.Int("size", len(p.books)))
}

func (p *PresenceIndex) Contains(title, author string) bool {
	_, ok := p.books[presenceKey(title, author)]
	return ok
}

func (p *PresenceIndex) Delist(title, author string) {
	key := presenceKey(title, author)
	if _, ok := p.books[key]; !ok {
		return
	}
	delete(p.books, key)
	p.log.Debug("index delisted book", zap.String("title", title), zap.String("author", author), zap.Int("size", len(p.books)))
}

// ListAll returns the presentable books, which is the repository listing.
func (p *PresenceIndex) ListAll() ([]*models.Book, error) {
	return p.source.ListAll()
}

func (p *PresenceIndex) Len() int { return len(p.books) }
