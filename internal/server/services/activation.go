package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/cryptox"
	"github.com/dmitrijs2005/clearhuma/internal/dbx"
	"github.com/dmitrijs2005/clearhuma/internal/server/config"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
	"github.com/dmitrijs2005/clearhuma/internal/server/repositories/repomanager"
)

const (
	activationCodeLength   = 8
	activationCodeAttempts = 3
	signInTokenBytes       = 32
)

var (
	errCodeRequired   = common.NewError(common.ErrValidation, "Aktivasyon kodu gerekli")
	errCodeInvalid    = common.NewError(common.ErrorNotFound, "Geçersiz aktivasyon kodu")
	errCodeExpired    = common.NewError(common.ErrExpired, "Aktivasyon kodunun süresi dolmuş")
	errOwnerNotFound  = common.NewError(common.ErrorNotFound, "Kullanıcı bulunamadı")
	errNoSession      = common.NewError(common.ErrorUnauthorized, "Yetkilendirme gerekli")
	errCodeNotCreated = common.NewError(common.ErrorInternal, "Kod oluşturulamadı")
	errNoSignIn       = common.NewError(common.ErrorInternal, "Oturum oluşturulamadı")
)

// ActivationService issues activation codes and redeems them for a one-time
// sign-in token.
type ActivationService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	codeTTL      time.Duration
	signInTTL    time.Duration
	now          func() time.Time
	generateCode func() (string, error)
}

func NewActivationService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *ActivationService {
	return &ActivationService{
		db:          db,
		repomanager: m,
		codeTTL:     cfg.ActivationCodeTTL,
		signInTTL:   cfg.SignInTokenTTL,
		now:         time.Now,
		generateCode: func() (string, error) {
			return common.MakeRandAlnumString(activationCodeLength)
		},
	}
}

// Generate creates a code for userID valid for the configured TTL. A code
// collision draws again, a bounded number of times.
func (s *ActivationService) Generate(ctx context.Context, userID string) (*models.Activation, error) {
	if userID == "" {
		return nil, errNoSession
	}

	repo := s.repomanager.Activations(s.db)
	for attempt := 0; attempt < activationCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, fmt.Errorf("error generating code: %w", err)
		}

		now := s.now()
		a, err := repo.Create(ctx, &models.Activation{
			UserID:         userID,
			ActivationCode: code,
			ExpiresAt:      now.Add(s.codeTTL),
		})
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, common.ErrConflict) {
			return nil, fmt.Errorf("error creating activation: %w", err)
		}
	}
	return nil, errCodeNotCreated
}

// Validate redeems code for a device. The row is locked for the whole
// redemption, so concurrent redemptions of one code serialize. An expired
// code is rejected before anything is written. Redeeming an already
// activated code succeeds and overwrites the device fields.
func (s *ActivationService) Validate(ctx context.Context, code, deviceName string, deviceInfo json.RawMessage) (*models.Redemption, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, errCodeRequired
	}
	if len(deviceInfo) > 0 && !json.Valid(deviceInfo) {
		return nil, common.NewError(common.ErrValidation, "device_info must be JSON")
	}

	var out *models.Redemption
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.repomanager.Activations(tx).GetByCodeForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errCodeInvalid
			}
			return err
		}

		now := s.now()
		if a.Expired(now) {
			return errCodeExpired
		}

		if err := s.repomanager.Activations(tx).MarkActivated(ctx, a.ID, deviceName, deviceInfo, now); err != nil {
			return err
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, a.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errOwnerNotFound
			}
			return err
		}

		profile, err := s.repomanager.Profiles(tx).Get(ctx, a.UserID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		token, err := common.MakeRandHexString(signInTokenBytes)
		if err != nil {
			return errNoSignIn.WithDetails(err.Error())
		}
		if err := s.repomanager.SignInTokens(tx).Create(ctx, user.ID, cryptox.HashToken(token), now.Add(s.signInTTL)); err != nil {
			return errNoSignIn.WithDetails(err.Error())
		}

		out = &models.Redemption{
			Success:     true,
			UserID:      user.ID,
			ProfileName: models.DisplayName(profile, user.Email),
			TokenHash:   token,
			Email:       user.Email,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the caller's codes, newest first.
func (s *ActivationService) List(ctx context.Context, userID string) ([]*models.Activation, error) {
	if userID == "" {
		return nil, errNoSession
	}
	return s.repomanager.Activations(s.db).ListByUser(ctx, userID)
}
