// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import "github.com/aa105132/CatieCli/internal/config"

// Resolver computes the set of credentials a user is allowed to dispatch
// through, according to the provider's configured pool mode.
type Resolver struct {
	store *Store
}

// NewResolver returns a Resolver over the given store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Visible returns the credentials a user may use for a request needing
// requiredTier on a provider. Only active credentials are returned.
//
//   - private: the user's own credentials only.
//   - tier-shared: if the user owns an active credential of the required
//     tier, every public active credential of that tier plus the user's own;
//     otherwise only the user's own.
//   - full-shared: if the user owns at least one public active credential
//     of any tier, every public active credential plus the user's own;
//     otherwise only the user's own.
//
// System credentials (UserID 0) are treated as contributed by nobody: they
// participate in shared pools when public but never unlock sharing for a
// user on their own.
func (r *Resolver) Visible(userID int64, provider string, mode config.PoolMode, requiredTier string) []*Credential {
	all := r.store.List(provider)

	shared := false
	switch mode {
	case config.PoolModeTierShared:
		shared = r.store.HasActiveTier(userID, provider, requiredTier)
	case config.PoolModeFullShared:
		shared = r.store.CountPublicActive(userID, provider) > 0
	}

	var out []*Credential
	for _, c := range all {
		if !c.Active {
			continue
		}
		if c.UserID == userID && userID != 0 {
			out = append(out, c)
			continue
		}
		if !shared || !c.Public {
			continue
		}
		if mode == config.PoolModeTierShared && c.Tier != requiredTier {
			continue
		}
		out = append(out, c)
	}
	return out
}
