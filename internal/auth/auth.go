package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/saltyorg/subrewind/internal/database"
)

const (
	// SessionDuration is how long web sessions last
	SessionDuration = 7 * 24 * time.Hour // 7 days
	// BcryptCost is the bcrypt cost factor
	BcryptCost = 12
)

// Service handles user authentication and web sessions.
type Service struct {
	db *database.DB
}

// NewService creates a new auth service
func NewService(db *database.DB) *Service {
	return &Service{db: db}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateUser creates a new user account
func (s *Service) CreateUser(username, password string) (*database.UserRecord, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.db.CreateUser(username, hash)
}

// Authenticate verifies credentials and returns the user. Returns nil for
// unknown users and wrong passwords alike.
func (s *Service) Authenticate(username, password string) (*database.UserRecord, error) {
	user, err := s.db.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (s *Service) GetUserByID(id int64) (*database.UserRecord, error) {
	return s.db.GetUserByID(id)
}

// GetUserByUsername retrieves a user by username. Returns nil when no such
// user exists.
func (s *Service) GetUserByUsername(username string) (*database.UserRecord, error) {
	return s.db.GetUserByUsername(username)
}

// UpdatePassword changes a user's password
func (s *Service) UpdatePassword(userID int64, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.UpdateUserPassword(userID, hash)
}

// UpdateUsername changes a user's username
func (s *Service) UpdateUsername(userID int64, newUsername string) error {
	return s.db.UpdateUsername(userID, newUsername)
}

// CreateSession creates a new session for a user
func (s *Service) CreateSession(userID int64) (*database.SessionRecord, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}
	return s.db.CreateSession(sessionID, userID, time.Now().Add(SessionDuration))
}

// GetSession retrieves a session by ID. Expired sessions are deleted and
// reported as absent.
func (s *Service) GetSession(sessionID string) (*database.SessionRecord, error) {
	session, err := s.db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	if time.Now().After(session.ExpiresAt) {
		if err := s.db.DeleteSession(sessionID); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}

	return session, nil
}

// DeleteSession removes a session
func (s *Service) DeleteSession(sessionID string) error {
	return s.db.DeleteSession(sessionID)
}

// ExtendSession pushes a session's expiration out by the full duration.
// Called on authenticated requests so active users stay logged in.
func (s *Service) ExtendSession(sessionID string) error {
	return s.db.ExtendSession(sessionID, time.Now().Add(SessionDuration))
}

// generateSessionID creates a cryptographically secure session ID
func generateSessionID() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
