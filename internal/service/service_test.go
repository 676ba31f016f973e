package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"urbanmobility/internal/backup"
	"urbanmobility/internal/cryptobox"
	"urbanmobility/internal/db"
	"urbanmobility/internal/ledger"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/rate"
	"urbanmobility/internal/recovery"
	"urbanmobility/internal/seclog"
	"urbanmobility/internal/store"
)

const (
	superPassword = "Sup3r!Admin#2024"
	sysPassword   = "Sys!Admin#2024a"
	engPassword   = "Eng!neer#2024ab"
)

// plainHasher keeps tests fast; argon2 itself is covered in the auth package.
type plainHasher struct{}

func (plainHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}
	return "plain$" + secret, nil
}

func (plainHasher) Verify(encoded, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(encoded), []byte("plain$"+secret)) == 1
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc      *Service
	st       *store.Store
	audit    *seclog.Logger
	throttle *rate.Throttle
	clock    *fakeClock
	super    models.CurrentUser
	sysadmin models.CurrentUser
	engineer models.CurrentUser
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	h, err := db.Open(ctx, filepath.Join(root, "data", "app.db"), 2, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	box, err := cryptobox.New(make([]byte, 32))
	require.NoError(t, err)

	hasher := plainHasher{}
	st := store.New(h, box)
	audit := seclog.New(filepath.Join(root, "logs.enc"), box, nil)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	throttle := rate.NewThrottle(rate.WithClock(clock.Now))
	pol := policy.New(policy.Options{})
	engine := backup.NewEngine(filepath.Join(root, "backups"), h, audit, nil)
	orch := recovery.New(pol, ledger.New(st, hasher), engine, st, audit, nil)

	svc := New(Deps{Store: st, Policy: pol, Throttle: throttle, Audit: audit, Recovery: orch, Hasher: hasher})

	superHash, _ := hasher.Hash(superPassword)
	require.NoError(t, st.EnsureSuperAdmin(ctx, superHash))
	hs := &harness{svc: svc, st: st, audit: audit, throttle: throttle, clock: clock}

	hs.super, err = svc.Login(ctx, models.SuperAdminUsername, superPassword)
	require.NoError(t, err)
	_, err = svc.CreateSysAdmin(ctx, hs.super, NewAccount{Username: "sysadmin1", Password: sysPassword})
	require.NoError(t, err)
	hs.sysadmin, err = svc.Login(ctx, "sysadmin1", sysPassword)
	require.NoError(t, err)
	_, err = svc.CreateEngineer(ctx, hs.sysadmin, NewAccount{Username: "eng_0001", Password: engPassword, FirstName: "Eve"})
	require.NoError(t, err)
	hs.engineer, err = svc.Login(ctx, "eng_0001", engPassword)
	require.NoError(t, err)
	return hs
}

func (h *harness) events(t *testing.T, name string) []models.SecurityLogEntry {
	t.Helper()
	entries, err := h.audit.ReadAll(context.Background())
	require.NoError(t, err)
	var out []models.SecurityLogEntry
	for _, e := range entries {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}
