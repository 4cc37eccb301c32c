package repositories

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"librarycirculation/internal/models"
)

var bookFileHeader = []string{"ID", "Title", "Author", "Genre", "Description", "ISBN", "Available"}

type fileBookRepository struct {
	path  string
	log   *zap.Logger
	books map[int]*models.Book
}

// NewFileBookRepository keeps books in a ';'-delimited text file with a header
// row. The file is read once here and rewritten in full after every mutation.
// A missing file is an empty catalogue.
func NewFileBookRepository(path string, log *zap.Logger) (BookRepository, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &fileBookRepository{path: path, log: log, books: make(map[int]*models.Book)}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *fileBookRepository) FindByID(id int) (*models.Book, error) {
	return r.books[id], nil
}

// Insert stores book, assigning the next id when it has none. A failed write
// leaves both the repository and book as they were.
func (r *fileBookRepository) Insert(book *models.Book) error {
	origID := book.ID
	if book.ID == models.UnassignedID {
		book.ID = r.nextID()
	}
	prev, existed := r.books[book.ID]
	r.books[book.ID] = book
	if err := r.save(); err != nil {
		if existed {
			r.books[book.ID] = prev
		} else {
			delete(r.books, book.ID)
		}
		book.ID = origID
		return err
	}
	r.log.Info("book stored", zap.Int("book_id", book.ID), zap.String("title", book.Title))
	return nil
}

func (r *fileBookRepository) ListAll() ([]*models.Book, error) {
	out := make([]*models.Book, 0, len(r.books))
	for _, b := range r.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fileBookRepository) SetAvailability(id int, available bool) error {
	book, ok := r.books[id]
	if !ok {
		r.log.Warn("availability update for unknown book", zap.Int("book_id", id))
		return nil
	}
	was := book.Available
	book.Available = available
	if err := r.save(); err != nil {
		book.Available = was
		return err
	}
	return nil
}

func (r *fileBookRepository) Delete(id int) error {
	book, ok := r.books[id]
	if !ok {
		r.log.Warn("delete of unknown book", zap.Int("book_id", id))
		return nil
	}
	delete(r.books, id)
	if err := r.save(); err != nil {
		r.books[id] = book
		return err
	}
	r.log.Info("book deleted", zap.Int("book_id", id))
	return nil
}

func (r *fileBookRepository) nextID() int {
	maxID := 0
	for id := range r.books {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

func (r *fileBookRepository) load() error {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.log.Info("books file not found, starting empty", zap.String("path", r.path))
			return nil
		}
		return fmt.Errorf("open books file: %w", err)
	}
	defer f.Close()

	cr := newSemicolonReader(f)
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read books header: %w", err)
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read books file: %w", err)
		}
		book, err := parseBookRecord(rec)
		if err != nil {
			r.log.Warn("skipping malformed book row", zap.Strings("row", rec), zap.Error(err))
			continue
		}
		r.books[book.ID] = book
	}
	r.log.Info("books loaded", zap.Int("count", len(r.books)), zap.String("path", r.path))
	return nil
}

func parseBookRecord(rec []string) (*models.Book, error) {
	if len(rec) < len(bookFileHeader) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(bookFileHeader), len(rec))
	}
	id, err := strconv.Atoi(rec[0])
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	available, err := strconv.ParseBool(rec[6])
	if err != nil {
		return nil, fmt.Errorf("available: %w", err)
	}
	return &models.Book{
		ID:          id,
		Title:       rec[1],
		Author:      rec[2],
		Genre:       rec[3],
		Description: rec[4],
		ISBN:        rec[5],
		Available:   available,
	}, nil
}

func (r *fileBookRepository) save() error {
	books, _ := r.ListAll()
	rows := make([][]string, 0, len(books)+1)
	rows = append(rows, bookFileHeader)
	for _, b := range books {
		rows = append(rows, []string{
			strconv.Itoa(b.ID), b.Title, b.Author, b.Genre, b.Description, b.ISBN,
			strconv.FormatBool(b.Available),
		})
	}
	if err := writeSemicolonFile(r.path, rows); err != nil {
		r.log.Error("saving books failed", zap.String("path", r.path), zap.Error(err))
		return fmt.Errorf("save books: %w", err)
	}
	return nil
}

// ─── shared flat-file helpers ─────────────────────────────────────────────────

func newSemicolonReader(rd io.Reader) *csv.Reader {
	cr := csv.NewReader(rd)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// writeSemicolonFile replaces path with rows, going through a temp file in the
// same directory so a failed write leaves the previous file intact.
func writeSemicolonFile(path string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	cw.Comma = ';'
	if err := cw.WriteAll(rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
