// Package services contains server-side business logic. Services own no
// transport concerns: they take validated-or-not request values, enforce
// business rules and return models or sentinel errors from internal/common.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/server/auth"
	"github.com/dmitrijs2005/cellscope/internal/server/config"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cellscope/internal/validation"
	"github.com/google/uuid"
)

// PasswordHasher hashes and verifies credentials off the request goroutine.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encoded string) (bool, error)
}

// TokenIssuer seals claims into a token.
type TokenIssuer interface {
	Issue(claims auth.Claims) (string, error)
}

type RegisterRequest struct {
	Username string `json:"username" validate:"min=3,max=255"`
	Password string `json:"password" validate:"min=12,strongpassword"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserSummary is the public view of a user.
type UserSummary struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

type RegisterResult struct {
	UserSummary
	CreatedAt time.Time
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token lifetime, seconds
	User         UserSummary
}

// AuthService registers users and logs them in.
//   - Register: uniqueness check, hash, single insert
//   - Login: lookup, verify, issue an access/refresh token pair
//
// Tokens are stateless; there is no server-side session or refresh store.
type AuthService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	hasher                       PasswordHasher
	tokens                       TokenIssuer
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, hasher PasswordHasher, tokens TokenIssuer, cfg *config.Config) *AuthService {
	return &AuthService{
		db:                           db,
		repomanager:                  m,
		hasher:                       hasher,
		tokens:                       tokens,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          time.Now,
	}
}

// Register creates a user. A taken username is common.ErrorUsernameExists;
// invalid input is a common.ValidationError.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)

	exists, err := repo.Exists(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("error checking username: %w", err)
	}
	if exists {
		return nil, common.ErrorUsernameExists
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	user, err := repo.Create(ctx, req.Username, hash)
	if err != nil {
		if errors.Is(err, common.ErrorUsernameExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return &RegisterResult{
		UserSummary: UserSummary{UserID: user.ID, Username: user.UserName},
		CreatedAt:   user.CreatedAt,
	}, nil
}

// Login checks credentials and issues a token pair. An unknown username and
// a wrong password both yield common.ErrorInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, req.Username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInvalidCredentials
		}
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	ok, err := s.hasher.Verify(ctx, req.Password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrorInvalidCredentials
	}

	now := s.now()

	access, err := s.tokens.Issue(auth.NewClaims(user.ID, user.UserName, auth.TokenTypeAccess,
		now.Add(s.accessTokenValidityDuration)))
	if err != nil {
		return nil, fmt.Errorf("error issuing access token: %w", err)
	}

	refresh, err := s.tokens.Issue(auth.NewClaims(user.ID, user.UserName, auth.TokenTypeRefresh,
		now.Add(s.refreshTokenValidityDuration)))
	if err != nil {
		return nil, fmt.Errorf("error issuing refresh token: %w", err)
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTokenValidityDuration / time.Second),
		User:         UserSummary{UserID: user.ID, Username: user.UserName},
	}, nil
}
