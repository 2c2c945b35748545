package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"nodue/internal/store"
)

var (
	ErrAccountExists      = errors.New("an account with this email already exists, sign in instead")
	ErrAccountNotFound    = errors.New("no account found for this email, create an account first")
	ErrInvalidCredentials = errors.New("incorrect password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrTokenRevoked       = errors.New("refresh token revoked or unknown")
)

const minPasswordLen = 8

// Account is a remote sync identity.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Accounts stores accounts and refresh tokens in the remote database.
type Accounts struct {
	db *sql.DB
}

// NewAccounts builds the account store on an open remote database.
func NewAccounts(db *store.DB) *Accounts {
	return &Accounts{db: db.Client}
}

// NormalizeEmail lowercases and validates an email address.
func NormalizeEmail(v string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(v))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp creates an account with a bcrypt password hash.
func (a *Accounts) SignUp(ctx context.Context, email, password string) (Account, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Account{}, err
	}
	if len(password) < minPasswordLen {
		return Account{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}

	acc := Account{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		acc.ID, acc.Email, string(hash), acc.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Account{}, ErrAccountExists
	}
	if err != nil {
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

// SignIn checks the password of an existing account.
func (a *Accounts) SignIn(ctx context.Context, email, password string) (Account, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Account{}, err
	}
	var (
		acc  Account
		hash string
	)
	err = a.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = $1`, email,
	).Scan(&acc.ID, &acc.Email, &hash, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acc, nil
}

// SaveRefresh records an issued refresh token.
func (a *Accounts) SaveRefresh(ctx context.Context, id, userID string, expiresAt time.Time) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, expires_at) VALUES ($1, $2, $3)`,
		id, userID, expiresAt.UTC(),
	)
	return err
}

// CheckRefresh verifies the refresh token is recorded, unrevoked and unexpired.
func (a *Accounts) CheckRefresh(ctx context.Context, id, userID string) error {
	var (
		revoked   bool
		expiresAt time.Time
	)
	err := a.db.QueryRowContext(ctx,
		`SELECT revoked, expires_at FROM refresh_tokens WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&revoked, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTokenRevoked
	}
	if err != nil {
		return err
	}
	if revoked || time.Now().After(expiresAt) {
		return ErrTokenRevoked
	}
	return nil
}

// RevokeRefresh marks a refresh token unusable.
func (a *Accounts) RevokeRefresh(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = true WHERE id = $1`, id)
	return err
}
