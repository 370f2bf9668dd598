// Package signintokens stores one-time sign-in credentials issued to devices
// that redeemed an activation code. Tokens are kept as SHA-256 digests only.
package signintokens

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// Consume marks the token used and returns its owner. A missing, used or
	// expired token yields common.ErrorNotFound. The check and the update are
	// one statement, so a token can be consumed only once.
	Consume(ctx context.Context, tokenHash string, now time.Time) (string, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
