package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/revocation"
	"github.com/iliyamo/gso-inventory-auth/internal/utils"
)

// revoker blacklists tokens of deleted sessions until their natural expiry.
type revoker struct {
	registry revocation.Registry
	ttl      time.Duration
	log      *zap.SugaredLogger
	now      func() time.Time
}

// revoke adds every token to the registry.  A token whose exp cannot be
// decoded is kept for a full access token lifetime.  Failures are logged:
// the session rows are already gone, so the tokens no longer authenticate
// on any instance that consults the session store.
func (r revoker) revoke(ctx context.Context, tokens ...string) {
	if r.registry == nil {
		return
	}
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		exp, ok := utils.ExpiryOf(tok)
		if !ok {
			exp = r.now().Add(r.ttl)
		}
		if err := r.registry.Add(ctx, tok, exp); err != nil {
			r.log.Warnw("token revocation failed", "error", err)
		}
	}
}
