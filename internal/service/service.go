// Package service is the facade the console talks to. Every exported method
// takes the caller's identity and is gated by the capability table.
package service

import (
	"context"

	"go.uber.org/zap"

	"urbanmobility/internal/auth"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/rate"
	"urbanmobility/internal/recovery"
	"urbanmobility/internal/seclog"
	"urbanmobility/internal/store"
)

type Deps struct {
	Store    *store.Store
	Policy   *policy.Policy
	Throttle *rate.Throttle
	Audit    *seclog.Logger
	Recovery *recovery.Orchestrator
	Hasher   auth.Hasher
	Log      *zap.Logger
}

type Service struct {
	st       *store.Store
	policy   *policy.Policy
	throttle *rate.Throttle
	audit    *seclog.Logger
	recovery *recovery.Orchestrator
	hasher   auth.Hasher
	log      *zap.Logger
}

func New(d Deps) *Service {
	if d.Throttle == nil {
		d.Throttle = rate.NewThrottle()
	}
	if d.Hasher == nil {
		d.Hasher = auth.Argon2{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{
		st:       d.Store,
		policy:   d.Policy,
		throttle: d.Throttle,
		audit:    d.Audit,
		recovery: d.Recovery,
		hasher:   d.Hasher,
		log:      d.Log.Named("service"),
	}
}

// record appends to the audit log. A failed append is reported on the
// operational log and never fails the calling operation.
func (s *Service) record(ctx context.Context, event, actor string, details map[string]string, suspicious bool) {
	if err := s.audit.Log(ctx, event, actor, details, suspicious); err != nil {
		s.log.Error("audit append failed", zap.String("event", event), zap.Error(err))
	}
}

// Allowed lets front ends hide options the caller cannot use.
func (s *Service) Allowed(caller models.CurrentUser, action policy.Action) bool {
	return s.policy.Allowed(caller.Role, action)
}

// Capabilities lists every action the caller's role is granted.
func (s *Service) Capabilities(caller models.CurrentUser) []policy.Action {
	return s.policy.Actions(caller.Role)
}
