package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/RichardoC/chatdesk/internal/auth"
	"github.com/RichardoC/chatdesk/internal/models"
)

// Register creates a user. It returns ErrAlreadyExists when the username
// is taken.
func (db *Database) Register(ctx context.Context, username, password string) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	query := `
        INSERT INTO users (username, password)
        VALUES (?, ?)
        RETURNING id`

	user := &models.User{Username: username, Password: hash}
	if err := db.db.QueryRowContext(ctx, query, username, hash).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate returns the matching user, or nil without an error when the
// username is unknown or the password is wrong.
func (db *Database) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	query := `
        SELECT id, username, password
        FROM users
        WHERE username = ?`

	var user models.User
	err := db.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username, &user.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !auth.CheckPassword(user.Password, password) {
		return nil, nil
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
