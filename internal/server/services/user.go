// Package services contains the server's business logic. Services own
// transactions and translate repository errors into the sentinels of
// package common; transports only map those sentinels to responses.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/cryptox"
	"github.com/dmitrijs2005/clearhuma/internal/dbx"
	"github.com/dmitrijs2005/clearhuma/internal/server/auth"
	"github.com/dmitrijs2005/clearhuma/internal/server/config"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserService handles sessions: password login, refresh token rotation,
// one-time sign-in token redemption and operator checks.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          time.Now,
	}
}

// Register creates an account with its profile in one transaction. It backs
// the operator bootstrap command; there is no self sign-up.
func (s *UserService) Register(ctx context.Context, email, password, fullName string, role models.Role) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, common.NewError(common.ErrValidation, "email and password required")
	}
	if !role.Valid() {
		return nil, common.NewError(common.ErrValidation, fmt.Sprintf("unknown role %q", role))
	}

	var user *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.repomanager.Users(tx).Create(ctx, &models.User{
			Email:        email,
			PasswordHash: cryptox.HashPassword(password),
			Role:         role,
		})
		if err != nil {
			return err
		}
		if err := s.repomanager.Profiles(tx).Upsert(ctx, &models.Profile{
			UserID:   u.ID,
			FullName: fullName,
			Email:    email,
		}); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return user, nil
}

// Login verifies the password and returns a new TokenPair. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	ok, err := cryptox.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return nil, common.ErrorUnauthorized
	}
	return s.generateTokenPair(ctx, user.ID, s.db)
}

// RefreshToken rotates refreshToken inside a transaction and returns a fresh
// TokenPair. Expired tokens yield ErrRefreshTokenExpired; unknown or already
// rotated ones yield ErrorUnauthorized.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(s.now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// VerifySignIn redeems a one-time sign-in token issued by activation code
// redemption. A token works once and only before it expires.
func (s *UserService) VerifySignIn(ctx context.Context, token string) (*TokenPair, error) {
	if token == "" {
		return nil, common.NewError(common.ErrValidation, "token_hash required")
	}

	var pair *TokenPair
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		userID, err := s.repomanager.SignInTokens(tx).Consume(ctx, cryptox.HashToken(token), s.now())
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.NewError(common.ErrorUnauthorized, "Geçersiz veya süresi dolmuş oturum bağlantısı")
			}
			return fmt.Errorf("error consuming sign-in token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, userID, tx)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Authenticate validates an access token and returns its account id.
func (s *UserService) Authenticate(accessToken string) (string, error) {
	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}
	return userID, nil
}

// RequireOperator reloads the account and checks its stored role, so a
// demotion takes effect on the next request rather than at token expiry.
func (s *UserService) RequireOperator(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	if !user.Role.IsOperator() {
		return nil, common.ErrForbidden
	}
	return user, nil
}

// SetRole changes the stored role of the account with email.
func (s *UserService) SetRole(ctx context.Context, email string, role models.Role) error {
	if !role.Valid() {
		return common.NewError(common.ErrValidation, fmt.Sprintf("unknown role %q", role))
	}
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("error loading user: %w", err)
	}
	return s.repomanager.Users(s.db).SetRole(ctx, user.ID, role)
}

// PurgeExpiredTokens drops expired refresh and sign-in tokens.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	now := s.now()
	n1, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	n2, err := s.repomanager.SignInTokens(s.db).DeleteExpired(ctx, now)
	if err != nil {
		return n1, err
	}
	return n1 + n2, nil
}

func (s *UserService) generateAccessToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
