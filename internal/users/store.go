package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt cost for new password hashes.
var HashCost = 12

// Store keeps users and parent links in the users and parent_children tables.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), HashCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const userCols = `id,username,display_name,password_hash,role,telegram_chat_id,created_at`

func scanUser(sc interface{ Scan(...any) error }) (User, error) {
	var u User
	var created int64
	if err := sc.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &u.TelegramChatID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func (s *Store) GetByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE username=$1`, username))
}

// Authenticate returns the user when password matches.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.GetByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrBadPassword
	}
	return u, nil
}

// List returns users ordered by username, optionally only those with one of roles.
func (s *Store) List(ctx context.Context, roles ...string) ([]User, error) {
	q := `SELECT ` + userCols + ` FROM users`
	args := make([]any, 0, len(roles))
	if len(roles) > 0 {
		ph := make([]string, len(roles))
		for i, r := range roles {
			ph[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, r)
		}
		q += ` WHERE role IN (` + strings.Join(ph, ",") + `)`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY username`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// BulkUpsert inserts or updates rows in one transaction. Existing users are matched by id
// or username; new users need a password. An empty role keeps the stored role, or means student for
// new users.
func (s *Store) BulkUpsert(ctx context.Context, rows []Row) (inserted, updated int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	now := s.now().Unix()
	for _, r := range rows {
		r.Username = strings.TrimSpace(r.Username)
		r.Role = strings.ToLower(strings.TrimSpace(r.Role))
		if r.Role != "" && !ValidRole(r.Role) {
			return inserted, updated, fmt.Errorf("%w: role %q", ErrInvalid, r.Role)
		}
		if r.Username == "" {
			return inserted, updated, fmt.Errorf("%w: username required", ErrInvalid)
		}
		var hash string
		if r.Password != "" {
			if hash, err = HashPassword(r.Password); err != nil {
				return inserted, updated, err
			}
		}

		var existingID, existingRole string
		err = tx.QueryRowContext(ctx, `SELECT id, role FROM users WHERE id=$1 OR username=$2`, r.ID, r.Username).Scan(&existingID, &existingRole)
		switch {
		case err == nil:
			if r.Role == "" {
				r.Role = existingRole
			}
			if err = checkLastAdmin(ctx, tx, existingRole, r.Role); err != nil {
				return inserted, updated, err
			}
			if hash != "" {
				_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, display_name=$2, role=$3, password_hash=$4 WHERE id=$5`,
					r.Username, r.DisplayName, r.Role, hash, existingID)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, display_name=$2, role=$3 WHERE id=$4`,
					r.Username, r.DisplayName, r.Role, existingID)
			}
			if err != nil {
				return inserted, updated, err
			}
			updated++
		case errors.Is(err, sql.ErrNoRows):
			if hash == "" {
				return inserted, updated, fmt.Errorf("%w: password required for new user %s", ErrInvalid, r.Username)
			}
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			if r.Role == "" {
				r.Role = RoleStudent
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO users (`+userCols+`) VALUES ($1,$2,$3,$4,$5,0,$6)`,
				r.ID, r.Username, r.DisplayName, hash, r.Role, now)
			if err != nil {
				return inserted, updated, err
			}
			inserted++
		default:
			return inserted, updated, err
		}
	}
	return inserted, updated, nil
}

func (s *Store) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password required", ErrInvalid)
	}
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return ErrBadPassword
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, id)
	return err
}

// UpdateRole changes the role of the user with the given id or username.
func (s *Store) UpdateRole(ctx context.Context, target, role string) (User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !ValidRole(role) {
		return User{}, fmt.Errorf("%w: role %q", ErrInvalid, role)
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1 OR username=$1`, target))
	if err != nil {
		return User{}, err
	}
	if err := checkLastAdmin(ctx, s.db, u.Role, role); err != nil {
		return User{}, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET role=$1 WHERE id=$2`, role, u.ID); err != nil {
		return User{}, err
	}
	u.Role = role
	return u, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkLastAdmin returns ErrLastAdmin when moving a user from role from to role to would
// leave no admin.
func checkLastAdmin(ctx context.Context, q queryRower, from, to string) error {
	if from != RoleAdmin || to == RoleAdmin {
		return nil
	}
	var admins int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE role=$1`, RoleAdmin).Scan(&admins); err != nil {
		return err
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// SetChildren replaces the students linked to a parent, keeping the given order.
func (s *Store) SetChildren(ctx context.Context, parentID string, childIDs []string) error {
	p, err := s.GetByID(ctx, parentID)
	if err != nil {
		return err
	}
	if p.Role != RoleParent {
		return fmt.Errorf("%w: %s is not a parent", ErrInvalid, p.Username)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM parent_children WHERE parent_id=$1`, parentID); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, id := range childIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		var role string
		err := tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, id).Scan(&role)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: child %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if role != RoleStudent {
			return fmt.Errorf("%w: %s is not a student", ErrInvalid, id)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO parent_children (parent_id,child_id,position) VALUES ($1,$2,$3)`,
			parentID, id, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Children returns the students linked to parentID in link order.
func (s *Store) Children(ctx context.Context, parentID string) ([]User, error) {
	return s.linked(ctx, `SELECT u.id,u.username,u.display_name,u.password_hash,u.role,u.telegram_chat_id,u.created_at
		FROM parent_children pc JOIN users u ON u.id = pc.child_id
		WHERE pc.parent_id=$1 ORDER BY pc.position`, parentID)
}

// Parents returns the parents linked to a student.
func (s *Store) Parents(ctx context.Context, childID string) ([]User, error) {
	return s.linked(ctx, `SELECT u.id,u.username,u.display_name,u.password_hash,u.role,u.telegram_chat_id,u.created_at
		FROM parent_children pc JOIN users u ON u.id = pc.parent_id
		WHERE pc.child_id=$1 ORDER BY u.username`, childID)
}

func (s *Store) linked(ctx context.Context, q, id string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetTelegramChatID stores where notifications for the user go. Zero disables them.
func (s *Store) SetTelegramChatID(ctx context.Context, id string, chatID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET telegram_chat_id=$1 WHERE id=$2`, chatID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureAdmin creates the admin account if no user has that username. created reports
// whether a row was inserted.
func (s *Store) EnsureAdmin(ctx context.Context, username, passwordHash string) (created bool, err error) {
	if username == "" || passwordHash == "" {
		return false, fmt.Errorf("%w: admin username and password hash required", ErrInvalid)
	}
	if _, err := s.GetByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (`+userCols+`) VALUES ($1,$2,$3,$4,$5,0,$6)`,
		uuid.NewString(), username, "", passwordHash, RoleAdmin, s.now().Unix())
	return err == nil, err
}
