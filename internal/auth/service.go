package auth

import (
	"fmt"
	"strings"

	"finker/internal/db"
	"finker/internal/errs"
	"finker/internal/models"
)

// Service implements registration and login on top of the store. It is the
// identity collaborator: the rest of the application only ever sees the user
// id it attaches to a request.
type Service struct {
	store  *db.Database
	issuer *TokenIssuer
}

func NewService(store *db.Database, issuer *TokenIssuer) *Service {
	return &Service{store: store, issuer: issuer}
}

func (s *Service) Register(username, password, confirmation string) (*models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	req := RegisterRequest{
		Username:     username,
		Password:     password,
		Confirmation: confirmation,
	}
	// Validated before any cryptographic work.
	if err := ValidateRegister(req); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	return s.store.CreateUser(username, hash)
}

// Login verifies credentials and issues a session token. Both a missing user
// and a wrong password come back as ErrInvalidCredentials so usernames cannot
// be enumerated.
func (s *Service) Login(username, password string) (string, *models.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		return "", nil, errs.ErrInvalidCredentials
	}

	match, err := ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", nil, errs.ErrInvalidCredentials
	}

	token, err := s.issuer.Generate(user)
	if err != nil {
		return "", nil, fmt.Errorf("token generation failed: %w", err)
	}
	return token, user, nil
}
