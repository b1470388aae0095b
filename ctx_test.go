package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/stretchr/testify/assert"
)

func TestIdentityFromContext(t *testing.T) {
	tests := []struct {
		name   string
		ctx    func() context.Context
		wantOK bool
	}{
		{
			name: "identity present",
			ctx: func() context.Context {
				return auth.WithIdentityContext(context.Background(), testIdentity(auth.RoleAdmin))
			},
			wantOK: true,
		},
		{
			name:   "nothing stored",
			ctx:    context.Background,
			wantOK: false,
		},
		{
			name: "nil identity stored",
			ctx: func() context.Context {
				return auth.WithIdentityContext(context.Background(), nil)
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, ok := auth.IdentityFromContext(tt.ctx())
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "user-1", identity.ID)
			}
		})
	}
}

func TestIdentityFromRouter(t *testing.T) {
	ctx := newFakeContext("GET", "/")

	_, ok := auth.IdentityFromRouter(ctx)
	assert.False(t, ok)

	ctx.locals[auth.IdentityKey] = "not an identity"
	_, ok = auth.IdentityFromRouter(ctx)
	assert.False(t, ok)

	ctx.locals[auth.IdentityKey] = testIdentity(auth.RoleEnterprise)
	identity, ok := auth.IdentityFromRouter(ctx)
	assert.True(t, ok)
	assert.Equal(t, auth.RoleEnterprise, identity.Role)
}

func TestHasRole(t *testing.T) {
	ctx := auth.WithIdentityContext(context.Background(), testIdentity(auth.RoleStartup))

	assert.True(t, auth.HasRole(ctx, auth.RoleStartup))
	assert.True(t, auth.HasRole(ctx, auth.RoleAdmin, auth.RoleStartup))
	assert.False(t, auth.HasRole(ctx, auth.RoleAdmin))
	assert.False(t, auth.HasRole(context.Background(), auth.RoleStartup))
}
