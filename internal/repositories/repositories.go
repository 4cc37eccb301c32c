package repositories

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarycirculation/internal/models"
)

// BookRepository is the canonical store of books keyed by id. Implementations
// hand out one stable *models.Book per id so that every holder of a record
// sees availability changes.
type BookRepository interface {
	// FindByID returns (nil, nil) when no book has the id.
	FindByID(id int) (*models.Book, error)
	// Insert stores the book, assigning the next id when it is unassigned.
	Insert(book *models.Book) error
	ListAll() ([]*models.Book, error)
	SetAvailability(id int, available bool) error
	Delete(id int) error
}

// BookIndex is a (title, author) presence lookup kept in step with a
// BookRepository by explicit register and delist calls.
type BookIndex interface {
	RegisterOrUpdate(book *models.Book)
	Contains(title, author string) bool
	Delist(title, author string)
	ListAll() ([]*models.Book, error)
}

// concrete implementations

type gormBookRepository struct {
	db  *gorm.DB
	log *zap.Logger

	// identity map: one canonical pointer per id
	books map[int]*models.Book
}

// NewGormBookRepository stores books in the "books" table. The table is
// migrated on construction.
func NewGormBookRepository(db *gorm.DB, log *zap.Logger) (BookRepository, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&models.Book{}); err != nil {
		return nil, fmt.Errorf("migrate books: %w", err)
	}
	return &gormBookRepository{db: db, log: log, books: make(map[int]*models.Book)}, nil
}

func (r *gormBookRepository) canonical(row *models.Book) *models.Book {
	if cached, ok := r.books[row.ID]; ok {
		*cached = *row
		return cached
	}
	r.books[row.ID] = row
	return row
}

func (r *gormBookRepository) FindByID(id int) (*models.Book, error) {
	if cached, ok := r.books[id]; ok {
		return cached, nil
	}
	var book models.Book
	if err := r.db.First(&book, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.canonical(&book), nil
}

func (r *gormBookRepository) Insert(book *models.Book) error {
	if book.ID == models.UnassignedID {
		var maxID int
		if err := r.db.Model(&models.Book{}).
			Select("COALESCE(MAX(id), 0)").
			Scan(&maxID).Error; err != nil {
			return err
		}
		book.ID = maxID + 1
	}
	if err := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(book).Error; err != nil {
		return err
	}
	if cached, ok := r.books[book.ID]; ok && cached != book {
		*cached = *book
	}
	r.books[book.ID] = book
	r.log.Info("book stored", zap.Int("book_id", book.ID), zap.String("title", book.Title))
	return nil
}

func (r *gormBookRepository) ListAll() ([]*models.Book, error) {
	var rows []models.Book
	if err := r.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Book, 0, len(rows))
	for i := range rows {
		out = append(out, r.canonical(&rows[i]))
	}
	return out, nil
}

func (r *gormBookRepository) SetAvailability(id int, available bool) error {
	res := r.db.Model(&models.Book{}).
		Where("id = ?", id).
		Update("available", available)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Warn("availability update for unknown book", zap.Int("book_id", id))
		return nil
	}
	if cached, ok := r.books[id]; ok {
		cached.Available = available
	}
	return nil
}

func (r *gormBookRepository) Delete(id int) error {
	res := r.db.Delete(&models.Book{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	delete(r.books, id)
	if res.RowsAffected == 0 {
		r.log.Warn("delete of unknown book", zap.Int("book_id", id))
		return nil
	}
	r.log.Info("book deleted", zap.Int("book_id", id))
	return nil
}
