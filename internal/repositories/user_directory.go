package repositories

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"librarycirculation/internal/models"
	"librarycirculation/pkg/calendar"
	"librarycirculation/pkg/utils"
)

var (
	ErrInvalidEmail = errors.New("email cannot be empty")
	ErrUserExists   = errors.New("user with this email already exists")
	ErrInvalidRole  = errors.New("role must be READER or LIBRARIAN")
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidValue = errors.New("value must be a positive number")
)

var userFileHeader = []string{"ID", "Name", "Surname", "Email", "Role", "Password", "BookLimit", "CardExpiry", "CardBlocked"}

// UserDirectory holds the library's users keyed by lower-cased email and
// persists them to a ';'-delimited file. Passwords are stored as bcrypt hashes.
type UserDirectory struct {
	path  string
	log   *zap.Logger
	users map[string]*models.User
}

func NewUserDirectory(path string, log *zap.Logger) (*UserDirectory, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := &UserDirectory{path: path, log: log, users: make(map[string]*models.User)}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func emailKey(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// CreateUser registers a new user with the next free id.
func (d *UserDirectory) CreateUser(name, surname, email string, role models.UserRole, password string, bookLimit int, cardExpiry calendar.Date) (*models.User, error) {
	key := emailKey(email)
	if key == "" {
		return nil, ErrInvalidEmail
	}
	if _, ok := d.users[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, email)
	}
	if role != models.UserRoleReader && role != models.UserRoleLibrarian {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := models.NewUser(d.nextID(), name, surname, strings.TrimSpace(email), role, hash, bookLimit, cardExpiry)
	d.users[key] = u
	if err := d.Save(); err != nil {
		delete(d.users, key)
		return nil, err
	}
	d.log.Info("user created", zap.Int("user_id", u.ID), zap.String("email", u.Email), zap.String("role", string(role)))
	return u, nil
}

// Login returns the user when the credentials match, nil otherwise.
func (d *UserDirectory) Login(email, password string) *models.User {
	u := d.users[emailKey(email)]
	if u == nil || !u.CheckPassword(password) {
		d.log.Info("login failed", zap.String("email", email))
		return nil
	}
	d.log.Info("login succeeded", zap.Int("user_id", u.ID))
	return u
}

func (d *UserDirectory) FindByID(id int) *models.User {
	for _, u := range d.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (d *UserDirectory) FindByEmail(email string) *models.User {
	return d.users[emailKey(email)]
}

// ListAll returns users ordered by id.
func (d *UserDirectory) ListAll() []*models.User {
	out := make([]*models.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveUser deletes the user with the given email; false when there is none.
func (d *UserDirectory) RemoveUser(email string) (bool, error) {
	key := emailKey(email)
	u, ok := d.users[key]
	if !ok {
		d.log.Warn("user not found for removal", zap.String("email", email))
		return false, nil
	}
	delete(d.users, key)
	if err := d.Save(); err != nil {
		d.users[key] = u
		return false, err
	}
	d.log.Info("user removed", zap.String("email", email))
	return true, nil
}

func (d *UserDirectory) SetBookLimit(id, limit int) (*models.User, error) {
	if limit <= 0 {
		return nil, ErrInvalidValue
	}
	u := d.FindByID(id)
	if u == nil {
		return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, id)
	}
	was := u.BookLimit
	u.BookLimit = limit
	if err := d.Save(); err != nil {
		u.BookLimit = was
		return nil, err
	}
	return u, nil
}

// ExtendCard pushes the card expiry forward by the given number of months.
func (d *UserDirectory) ExtendCard(id, months int) (*models.User, error) {
	if months <= 0 {
		return nil, ErrInvalidValue
	}
	u := d.FindByID(id)
	if u == nil || u.Card == nil {
		return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, id)
	}
	was := u.Card.ExpiryDate
	u.Card.ExpiryDate = was.AddMonths(months)
	if err := d.Save(); err != nil {
		u.Card.ExpiryDate = was
		return nil, err
	}
	return u, nil
}

// ToggleBlocked flips the card's blocked flag.
func (d *UserDirectory) ToggleBlocked(id int) (*models.User, error) {
	u := d.FindByID(id)
	if u == nil || u.Card == nil {
		return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, id)
	}
	u.Card.Blocked = !u.Card.Blocked
	if err := d.Save(); err != nil {
		u.Card.Blocked = !u.Card.Blocked
		return nil, err
	}
	return u, nil
}

func (d *UserDirectory) nextID() int {
	maxID := 0
	for _, u := range d.users {
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	return maxID + 1
}

// Save rewrites the users file from memory.
func (d *UserDirectory) Save() error {
	users := d.ListAll()
	rows := make([][]string, 0, len(users)+1)
	rows = append(rows, userFileHeader)
	for _, u := range users {
		expiry, blocked := "N/A", "false"
		if u.Card != nil {
			expiry = u.Card.ExpiryDate.String()
			blocked = strconv.FormatBool(u.Card.Blocked)
		}
		rows = append(rows, []string{
			strconv.Itoa(u.ID), u.Name, u.Surname, u.Email, string(u.Role), u.PasswordHash,
			strconv.Itoa(u.BookLimit), expiry, blocked,
		})
	}
	if err := writeSemicolonFile(d.path, rows); err != nil {
		d.log.Error("saving users failed", zap.String("path", d.path), zap.Error(err))
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

func (d *UserDirectory) load() error {
	f, err := os.Open(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.log.Info("users file not found, starting empty", zap.String("path", d.path))
			return nil
		}
		return fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()

	cr := newSemicolonReader(f)
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read users header: %w", err)
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read users file: %w", err)
		}
		u, err := parseUserRecord(rec)
		if err != nil {
			d.log.Warn("skipping malformed user row", zap.Int("fields", len(rec)), zap.Error(err))
			continue
		}
		d.users[emailKey(u.Email)] = u
	}
	d.log.Info("users loaded", zap.Int("count", len(d.users)), zap.String("path", d.path))
	return nil
}

func parseUserRecord(rec []string) (*models.User, error) {
	if len(rec) < 8 {
		return nil, fmt.Errorf("expected at least 8 fields, got %d", len(rec))
	}
	id, err := strconv.Atoi(rec[0])
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	limit, err := strconv.Atoi(rec[6])
	if err != nil {
		return nil, fmt.Errorf("book limit: %w", err)
	}
	expiry, err := calendar.Parse(rec[7])
	if err != nil {
		return nil, err
	}
	u := models.NewUser(id, rec[1], rec[2], rec[3], models.UserRole(rec[4]), rec[5], limit, expiry)
	if len(rec) > 8 && rec[8] != "" {
		blocked, err := strconv.ParseBool(rec[8])
		if err != nil {
			return nil, fmt.Errorf("card blocked: %w", err)
		}
		u.Card.Blocked = blocked
	}
	return u, nil
}
