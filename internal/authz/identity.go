package authz

import (
	"context"
	"sync"
	"time"
)

// IdentityProvider is the external plug-in of §6: "memberships(uid) ->
// (committees_as_member, committees_as_committer)". Consumed, not
// implemented, here -- directory/LDAP resolution is explicitly out of
// scope per §1.
type IdentityProvider interface {
	Memberships(ctx context.Context, uid string) (asMember []string, asCommitter []string, err error)
}

type membershipEntry struct {
	asMember    []string
	asCommitter []string
	fetchedAt   time.Time
}

// cacheTTL is the 10-minute per-user refresh ceiling of §4.G/§5.
const cacheTTL = 10 * time.Minute

// Authorisation resolves a caller's committee memberships, caching per-user
// results for up to 10 minutes; stale reads are tolerated (§5 "In-memory
// authorization cache is per-process and per-user, with a 10-minute TTL").
//
// Two implementations are named in §4.G: one backed by already-populated
// session data (the HTTP request case, out of scope here since HTTP is
// excluded per §1) and one that queries the external directory (the worker
// case, which is Authorisation itself, querying its IdentityProvider).
type Authorisation struct {
	provider IdentityProvider
	mu       sync.Mutex
	cache    map[string]membershipEntry
}

func NewAuthorisation(provider IdentityProvider) *Authorisation {
	return &Authorisation{provider: provider, cache: make(map[string]membershipEntry)}
}

// Memberships returns the cached or freshly fetched membership sets for uid.
func (a *Authorisation) Memberships(ctx context.Context, uid string) ([]string, []string, error) {
	a.mu.Lock()
	entry, ok := a.cache[uid]
	a.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < cacheTTL {
		return entry.asMember, entry.asCommitter, nil
	}

	asMember, asCommitter, err := a.provider.Memberships(ctx, uid)
	if err != nil {
		if ok {
			// Stale reads are tolerated per §5; prefer a cached answer to a
			// hard failure when the directory is unreachable.
			return entry.asMember, entry.asCommitter, nil
		}
		return nil, nil, err
	}

	a.mu.Lock()
	a.cache[uid] = membershipEntry{asMember: asMember, asCommitter: asCommitter, fetchedAt: time.Now()}
	a.mu.Unlock()
	return asMember, asCommitter, nil
}

// StaticIdentityProvider is a fixed in-memory IdentityProvider, useful for
// tests and for the ALLOW_TESTS configuration surface (§6).
type StaticIdentityProvider struct {
	Members    map[string][]string
	Committers map[string][]string
}

func (s StaticIdentityProvider) Memberships(_ context.Context, uid string) ([]string, []string, error) {
	return s.Members[uid], s.Committers[uid], nil
}
