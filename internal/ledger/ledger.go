// Package ledger issues and redeems single-use restore codes. Only argon2
// digests of the codes are ever written to storage.
package ledger

import (
	"context"
	"fmt"

	"urbanmobility/internal/auth"
	"urbanmobility/internal/models"
)

type codeStore interface {
	InsertRestoreCode(ctx context.Context, backupName string, userID int64, codeHash string) (models.RestoreCode, error)
	ConsumeRestoreCode(ctx context.Context, userID int64, backupName string, match func(codeHash string) bool) (bool, error)
	ListRestoreCodes(ctx context.Context, userID int64) ([]models.RestoreCode, error)
}

type Ledger struct {
	store    codeStore
	hasher   auth.Hasher
	newToken func() (string, error)
}

func New(store codeStore, hasher auth.Hasher) *Ledger {
	return &Ledger{store: store, hasher: hasher, newToken: auth.NewOpaqueToken}
}

// Issue creates a code for backupName granted to userID and returns the
// plaintext. It cannot be retrieved again.
func (l *Ledger) Issue(ctx context.Context, backupName string, userID int64) (string, error) {
	token, err := l.newToken()
	if err != nil {
		return "", fmt.Errorf("generate restore code: %w", err)
	}
	hash, err := l.hasher.Hash(token)
	if err != nil {
		return "", fmt.Errorf("hash restore code: %w", err)
	}
	if _, err := l.store.InsertRestoreCode(ctx, backupName, userID, hash); err != nil {
		return "", fmt.Errorf("store restore code: %w", err)
	}
	return token, nil
}

// Consume redeems candidate for (userID, backupName). It returns true exactly
// once per issued code; unknown, foreign and spent codes all yield false.
func (l *Ledger) Consume(ctx context.Context, userID int64, backupName, candidate string) (bool, error) {
	if candidate == "" {
		return false, nil
	}
	ok, err := l.store.ConsumeRestoreCode(ctx, userID, backupName, func(codeHash string) bool {
		return l.hasher.Verify(codeHash, candidate)
	})
	if err != nil {
		return false, fmt.Errorf("consume restore code: %w", err)
	}
	return ok, nil
}

// List returns code metadata for userID (all users when zero) with the
// digests blanked.
func (l *Ledger) List(ctx context.Context, userID int64) ([]models.RestoreCode, error) {
	codes, err := l.store.ListRestoreCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range codes {
		codes[i].CodeHash = ""
	}
	return codes, nil
}
