package authstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/helpdeskpro/helpdesk/internal/identity"
	"github.com/helpdeskpro/helpdesk/internal/profile"
	"github.com/helpdeskpro/helpdesk/internal/recovery"
	"github.com/helpdeskpro/helpdesk/internal/supabase"
)

type memoryStore struct {
	mu      sync.Mutex
	session *supabase.Session
}

func (m *memoryStore) Load(ctx context.Context) (*supabase.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	copied := *m.session
	return &copied, nil
}

func (m *memoryStore) Save(ctx context.Context, session *supabase.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.session = &copied
	return nil
}

func (m *memoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// userBackend responde apenas GetUser; o resto não é usado no bootstrap.
type userBackend struct {
	identity.Backend
}

func (userBackend) GetUser(ctx context.Context, accessToken string) (*supabase.User, error) {
	return &supabase.User{ID: "u1", Email: "ana@example.com"}, nil
}

type slowResolver struct {
	delay time.Duration
}

func (r slowResolver) Resolve(ctx context.Context, userID, accessToken string) *profile.Profile {
	time.Sleep(r.delay)
	return &profile.Profile{ID: userID, FullName: "Ana", Role: profile.RoleClient}
}

func recoveryToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.Claims{
		Email: "ana@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("segredo"))
	require.NoError(t, err)
	return signed
}

func TestSlowProfileKeepsRecoverySession(t *testing.T) {
	store := &memoryStore{}
	client := identity.NewClient(userBackend{}, store, identity.NewTokenParser("segredo"))
	p := New(client, slowResolver{delay: 400 * time.Millisecond}, 300*time.Millisecond)
	defer p.Close()

	frag := recovery.ParseFragment("#access_token=" + recoveryToken(t) + "&refresh_token=rt&type=recovery")
	p.Bootstrap(context.Background(), frag)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, saved)

	state := p.State()
	require.True(t, state.Authenticated())
	require.False(t, state.Loading)
	require.False(t, p.Degraded())
	require.NotNil(t, state.Profile)
	require.Equal(t, "u1", state.Profile.ID)
}

func TestSlowProfileKeepsCachedSession(t *testing.T) {
	store := &memoryStore{session: &supabase.Session{
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		User:        &supabase.User{ID: "u1"},
	}}
	client := identity.NewClient(userBackend{}, store, nil)
	p := New(client, slowResolver{delay: 100 * time.Millisecond}, 50*time.Millisecond)
	defer p.Close()

	p.Bootstrap(context.Background(), recovery.Fragment{})

	require.True(t, p.State().Authenticated())
	require.False(t, p.Degraded())
	require.Equal(t, profile.RoleClient, p.State().Profile.Role)
}
