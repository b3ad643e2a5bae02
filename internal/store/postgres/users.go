package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"urbanpark/internal/models"
	"urbanpark/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const emailConstraint = "users_email_key"

func (s *Store) Register(ctx context.Context, input store.RegisterInput) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, email, password_hash, full_name, phone, address, pin_code, is_admin, created_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, FALSE, $8)
		RETURNING user_id, email, full_name, phone, address, pin_code, is_admin, created_at
	`, uuid.NewString(), input.Email, string(hash), input.FullName, input.Phone, input.Address, input.PinCode, time.Now().UTC())
	if err := row.Scan(&user.UserID, &user.Email, &user.FullName, &user.Phone, &user.Address, &user.PinCode, &user.IsAdmin, &user.CreatedAt); err != nil {
		if violatesConstraint(err, emailConstraint) {
			return models.User{}, store.ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	var user models.User
	var passwordHash string
	var lastLoginNull sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, password_hash, full_name, phone, address, pin_code, is_admin, created_at, last_login
		FROM users
		WHERE lower(email) = lower($1)
	`, input.Email)
	if err := row.Scan(&user.UserID, &user.Email, &passwordHash, &user.FullName, &user.Phone, &user.Address, &user.PinCode, &user.IsAdmin, &user.CreatedAt, &lastLoginNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}
	user.LastLogin = nullTimePtr(lastLoginNull)

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if _, err := s.pool.Exec(ctx, `
		UPDATE users SET last_login = $1 WHERE user_id = $2
	`, now, user.UserID); err != nil {
		return store.LoginResult{}, err
	}
	user.LastLogin = &now

	session, err := s.createSession(ctx, user.UserID, now.Add(s.sessionTTL))
	if err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{User: user, Session: session}, nil
}

func (s *Store) createSession(ctx context.Context, userID string, expiresAt time.Time) (models.Session, error) {
	sessionID := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, sessionID, userID, expiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{SessionID: sessionID, UserID: userID, ExpiresAt: expiresAt}, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	var session models.Session
	var user models.User
	var lastLoginNull sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at,
		       u.user_id, u.email, u.full_name, u.phone, u.address, u.pin_code, u.is_admin, u.created_at, u.last_login
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt, &user.UserID, &user.Email, &user.FullName, &user.Phone, &user.Address, &user.PinCode, &user.IsAdmin, &user.CreatedAt, &lastLoginNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.User{}, store.ErrSessionNotFound
		}
		return models.Session{}, models.User{}, err
	}
	user.LastLogin = nullTimePtr(lastLoginNull)
	return session, user, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM sessions WHERE session_id = $1
	`, sessionID)
	return err
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	var lastLoginNull sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, full_name, phone, address, pin_code, is_admin, created_at, last_login
		FROM users
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&user.UserID, &user.Email, &user.FullName, &user.Phone, &user.Address, &user.PinCode, &user.IsAdmin, &user.CreatedAt, &lastLoginNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	user.LastLogin = nullTimePtr(lastLoginNull)
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, email, full_name, phone, address, pin_code, is_admin, created_at, last_login
		FROM users
		WHERE is_admin = FALSE
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListRegularUsers is the broadcast audience for monthly reports.
func (s *Store) ListRegularUsers(ctx context.Context) ([]models.User, error) {
	return s.ListUsers(ctx)
}

// ListInactiveUsers returns non-admin users whose last login is older than
// cutoff, or who have never logged in. These get the daily reminder.
func (s *Store) ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, email, full_name, phone, address, pin_code, is_admin, created_at, last_login
		FROM users
		WHERE is_admin = FALSE AND (last_login IS NULL OR last_login < $1)
		ORDER BY created_at ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows pgx.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var user models.User
		var lastLoginNull sql.NullTime
		if err := rows.Scan(&user.UserID, &user.Email, &user.FullName, &user.Phone, &user.Address, &user.PinCode, &user.IsAdmin, &user.CreatedAt, &lastLoginNull); err != nil {
			return nil, err
		}
		user.LastLogin = nullTimePtr(lastLoginNull)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
