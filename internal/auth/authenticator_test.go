package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		AuthCacheTTLSeconds: 300,
		StaticAPIKeys: []string{
			"asha_key=courier_asha:courier:org_acme",
			"admin_key=admin_meera:admin:org_acme",
			"garbage-no-equals",
			"bad_key=too:few",
		},
	}
}

func TestIdentifyStaticKeys(t *testing.T) {
	a := NewAuthenticator(testConfig(), nil)
	ctx := context.Background()

	id, ok := a.Identify(ctx, "asha_key")
	require.True(t, ok)
	assert.Equal(t, domain.Identity{
		SubjectID: "courier_asha",
		Role:      domain.RoleCourier,
		OrgID:     "org_acme",
	}, id)

	id, ok = a.Identify(ctx, "admin_key")
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, id.Role)
}

func TestIdentifyRejectsUnknownAndMalformed(t *testing.T) {
	a := NewAuthenticator(testConfig(), nil)
	ctx := context.Background()

	_, ok := a.Identify(ctx, "unknown")
	assert.False(t, ok)

	// Malformed static entries are skipped at load, not resolvable.
	_, ok = a.Identify(ctx, "garbage-no-equals")
	assert.False(t, ok)
	_, ok = a.Identify(ctx, "bad_key")
	assert.False(t, ok)
}

func TestAuthorize(t *testing.T) {
	sh := &domain.Shipment{
		ID:        "ship_1",
		CourierID: "courier_asha",
		OrgID:     "org_acme",
	}

	tests := []struct {
		name    string
		id      domain.Identity
		allowed bool
	}{
		{"assigned courier", domain.Identity{SubjectID: "courier_asha", Role: domain.RoleCourier, OrgID: "org_acme"}, true},
		{"other courier", domain.Identity{SubjectID: "courier_ravi", Role: domain.RoleCourier, OrgID: "org_acme"}, false},
		{"same-org admin", domain.Identity{SubjectID: "admin_meera", Role: domain.RoleAdmin, OrgID: "org_acme"}, true},
		{"other-org admin", domain.Identity{SubjectID: "admin_x", Role: domain.RoleAdmin, OrgID: "org_other"}, false},
		{"admin subject as courier role", domain.Identity{SubjectID: "admin_meera", Role: domain.RoleCourier, OrgID: "org_acme"}, false},
		{"empty identity", domain.Identity{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.id, sh)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrUnauthorized)
			}
		})
	}
}
