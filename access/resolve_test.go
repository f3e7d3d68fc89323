package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atomicbase/directory/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func caps(cs ...Capability) map[Capability]bool {
	m := map[Capability]bool{}
	for _, c := range cs {
		m[c] = true
	}
	return m
}

// =============================================================================
// ResolveVisibility
// =============================================================================

func TestResolveVisibility(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		req  VisibilityRequest
		want []Visibility
	}{
		{
			name: "anonymous open directory",
			ctx:  Anonymous(Policy{}),
			want: []Visibility{Public},
		},
		{
			name: "anonymous login required",
			ctx:  Anonymous(Policy{LoginRequired: true}),
			want: []Visibility{None},
		},
		{
			name: "anonymous public override requested but not allowed",
			ctx:  Anonymous(Policy{LoginRequired: true}),
			req:  VisibilityRequest{PublicOverride: true},
			want: []Visibility{None},
		},
		{
			name: "anonymous public override allowed and requested",
			ctx:  Anonymous(Policy{LoginRequired: true, AllowPublicOverride: true}),
			req:  VisibilityRequest{PublicOverride: true},
			want: []Visibility{Public},
		},
		{
			name: "anonymous private override adds public",
			ctx:  Anonymous(Policy{LoginRequired: true, AllowPrivateOverride: true}),
			req:  VisibilityRequest{PrivateOverride: true},
			want: []Visibility{Public, Private},
		},
		{
			name: "explicit list wins over anonymity",
			ctx:  Anonymous(Policy{LoginRequired: true}),
			req:  VisibilityRequest{Explicit: []string{"private", "unlisted", "private"}},
			want: []Visibility{Private, Unlisted},
		},
		{
			name: "authenticated subscriber",
			ctx:  Context{Authenticated: true, Capabilities: caps(ViewPublic), Policy: Policy{LoginRequired: true}},
			want: []Visibility{Public},
		},
		{
			name: "authenticated without capabilities on open directory",
			ctx:  Context{Authenticated: true},
			want: []Visibility{Public},
		},
		{
			name: "authenticated without capabilities on closed directory",
			ctx:  Context{Authenticated: true, Policy: Policy{LoginRequired: true}},
			want: []Visibility{None},
		},
		{
			name: "unlisted hidden on public surface",
			ctx:  Context{Authenticated: true, Capabilities: caps(ViewPublic, ViewPrivate, ViewUnlisted), Surface: SurfacePublic},
			want: []Visibility{Public, Private},
		},
		{
			name: "unlisted shown on api surface",
			ctx:  Context{Authenticated: true, Capabilities: caps(ViewPublic, ViewPrivate, ViewUnlisted), Surface: SurfaceAPI},
			want: []Visibility{Public, Private, Unlisted},
		},
		{
			name: "unlisted shown on admin surface",
			ctx:  Context{Authenticated: true, Capabilities: caps(ViewUnlisted), Surface: SurfaceAdmin},
			want: []Visibility{Public, Unlisted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveVisibility(tt.ctx, tt.req))
		})
	}
}

func TestResolveVisibility_NeverEmpty(t *testing.T) {
	bools := []bool{false, true}
	surfaces := []Surface{SurfacePublic, SurfaceAdmin, SurfaceAPI}

	for _, authed := range bools {
		for _, login := range bools {
			for _, pubOK := range bools {
				for _, privOK := range bools {
					for _, pubReq := range bools {
						for _, privReq := range bools {
							for _, s := range surfaces {
								for _, capSet := range []map[Capability]bool{nil, caps(ViewUnlisted), caps(ViewPrivate)} {
									ctx := Context{
										Authenticated: authed,
										Capabilities:  capSet,
										Surface:       s,
										Policy:        Policy{LoginRequired: login, AllowPublicOverride: pubOK, AllowPrivateOverride: privOK},
									}
									got := ResolveVisibility(ctx, VisibilityRequest{PublicOverride: pubReq, PrivateOverride: privReq})
									require.NotEmpty(t, got)
									if len(got) > 1 {
										assert.NotContains(t, got, None)
									}
								}
							}
						}
					}
				}
			}
		}
	}
}

// =============================================================================
// ResolveStatus
// =============================================================================

func TestResolveStatus(t *testing.T) {
	editor := Context{Authenticated: true, Capabilities: caps(EditEntry)}
	moderated := Context{Authenticated: true, Capabilities: caps(EditEntryModerated)}
	reader := Context{Authenticated: true, Capabilities: caps(ViewPublic)}

	tests := []struct {
		name      string
		ctx       Context
		requested []string
		want      []Status
	}{
		{"anonymous ignores request", Anonymous(Policy{}), []string{"approved", "pending"}, []Status{Approved}},
		{"anonymous pending only", Anonymous(Policy{}), []string{"pending"}, []Status{Approved}},
		{"editor all", editor, []string{"all"}, []Status{Approved, Pending}},
		{"moderated editor pending", moderated, []string{"pending"}, []Status{Pending}},
		{"reader cannot see pending", reader, []string{"all"}, []Status{Approved}},
		{"reader pending only is empty", reader, []string{"pending"}, []Status{}},
		{"unknown statuses dropped", editor, []string{"approved", "deleted"}, []Status{Approved}},
		{"nothing requested", editor, nil, []Status{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveStatus(tt.ctx, tt.requested)
			assert.Equal(t, tt.want, got)
			for _, s := range got {
				assert.Contains(t, Statuses, s)
			}
		})
	}
}

// =============================================================================
// Enforcer / Provider
// =============================================================================

func TestEnforcer_DefaultPolicy(t *testing.T) {
	en, err := NewEnforcer(nil)
	require.NoError(t, err)

	got, err := en.Capabilities([]string{"subscriber"})
	require.NoError(t, err)
	assert.Equal(t, caps(ViewPublic), got)

	got, err = en.Capabilities([]string{"administrator"})
	require.NoError(t, err)
	assert.Equal(t, caps(Capabilities...), got, "administrator inherits editor")

	got, err = en.Capabilities([]string{"nobody"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEnforcer_Overrides(t *testing.T) {
	en, err := NewEnforcer(map[string][]string{
		"subscriber": {"view_public", "view_private"},
		"volunteer":  {"edit_entry_moderated"},
	})
	require.NoError(t, err)

	got, err := en.Capabilities([]string{"subscriber", "volunteer"})
	require.NoError(t, err)
	assert.Equal(t, caps(ViewPublic, ViewPrivate, EditEntryModerated), got)
}

func TestProvider_FromRequest(t *testing.T) {
	en, err := NewEnforcer(nil)
	require.NoError(t, err)
	secret := []byte("test-secret")
	p := &Provider{Secret: secret, Enforcer: en, Policy: Policy{LoginRequired: true}}

	r := httptest.NewRequest(http.MethodGet, "/api/directory/entries", nil)
	r.RemoteAddr = "203.0.113.7:5000"
	c, err := p.FromRequest(r, SurfaceAPI)
	require.NoError(t, err)
	assert.False(t, c.Authenticated)
	assert.Equal(t, "203.0.113.7", c.RemoteAddr)
	assert.True(t, c.Policy.LoginRequired)

	token, err := NewToken(secret, "user-1", []string{"editor"}, time.Hour)
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+token)
	c, err = p.FromRequest(r, SurfaceAPI)
	require.NoError(t, err)
	assert.True(t, c.Authenticated)
	assert.Equal(t, "user-1", c.UserID)
	assert.True(t, c.Can(ViewUnlisted))
	assert.True(t, c.CanEdit())

	r.Header.Set("Authorization", "Bearer not-a-token")
	_, err = p.FromRequest(r, SurfaceAPI)
	assert.ErrorIs(t, err, tools.ErrUnauthorized)

	r.Header.Set("Authorization", "Basic abc")
	_, err = p.FromRequest(r, SurfaceAPI)
	assert.ErrorIs(t, err, tools.ErrUnauthorized)
}
