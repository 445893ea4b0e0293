package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/store"
)

type cacheEntry struct {
	identity  domain.Identity
	expiresAt time.Time
}

// Authenticator resolves API keys to caller identities. Token issuance
// is external; this only looks identities up, three levels deep:
// static config keys, in-memory cache, redis.
type Authenticator struct {
	localCache sync.Map
	redis      *store.Redis
	ttl        time.Duration
	staticKeys map[string]domain.Identity
}

func NewAuthenticator(cfg *config.Config, redis *store.Redis) *Authenticator {
	staticKeys := make(map[string]domain.Identity, len(cfg.StaticAPIKeys))
	for _, entry := range cfg.StaticAPIKeys {
		// "key=subject:role:org"
		key, spec, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		parts := strings.Split(spec, ":")
		if len(parts) != 3 {
			continue
		}
		staticKeys[key] = domain.Identity{
			SubjectID: parts[0],
			Role:      domain.Role(parts[1]),
			OrgID:     parts[2],
		}
	}

	return &Authenticator{
		redis:      redis,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
	}
}

// Identify returns the caller identity for an API key, or false when
// the key is unknown.
func (a *Authenticator) Identify(ctx context.Context, apiKey string) (domain.Identity, bool) {
	// Level 0: static config keys
	if id, ok := a.staticKeys[apiKey]; ok {
		return id, true
	}

	// Level 1: in-memory cache
	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.identity, true
		}
		a.localCache.Delete(apiKey)
	}

	// Level 2: redis lookup
	if a.redis == nil {
		return domain.Identity{}, false
	}
	id, err := a.redis.GetCallerIdentity(ctx, apiKey)
	if err != nil || id == nil {
		return domain.Identity{}, false
	}

	a.localCache.Store(apiKey, cacheEntry{
		identity:  *id,
		expiresAt: time.Now().Add(a.ttl),
	})

	return *id, true
}

// Authorize applies the shipment access rule: the assigned courier, or
// an administrator in the shipment's organization. The denial is
// deliberately generic.
func Authorize(id domain.Identity, sh *domain.Shipment) error {
	if id.Role == domain.RoleCourier && id.SubjectID == sh.CourierID {
		return nil
	}
	if id.Role == domain.RoleAdmin && id.OrgID == sh.OrgID {
		return nil
	}
	return domain.ErrUnauthorized
}

// ShipmentAuthorizer re-checks authorization against the current
// shipment record. The broadcast hub uses it at subscribe time.
type ShipmentAuthorizer struct {
	Store store.Store
}

func (s ShipmentAuthorizer) Authorize(ctx context.Context, id domain.Identity, shipmentID string) error {
	sh, err := s.Store.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	return Authorize(id, sh)
}
