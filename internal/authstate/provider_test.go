package authstate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/helpdeskpro/helpdesk/internal/identity"
	"github.com/helpdeskpro/helpdesk/internal/profile"
	"github.com/helpdeskpro/helpdesk/internal/recovery"
	"github.com/helpdeskpro/helpdesk/internal/supabase"
)

type fakeIdentity struct {
	mu        sync.Mutex
	listeners map[int]identity.Listener
	next      int

	session     *supabase.Session
	getSession  func(ctx context.Context) (*supabase.Session, error)
	setRecovery func(ctx context.Context, access, refresh string) (*supabase.Session, error)
	signOuts    int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{listeners: map[int]identity.Listener{}}
}

func (f *fakeIdentity) OnAuthStateChange(fn identity.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeIdentity) emit(ctx context.Context, event identity.Event, session *supabase.Session) {
	f.mu.Lock()
	fns := make([]identity.Listener, 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ctx, event, session)
	}
}

func (f *fakeIdentity) GetSession(ctx context.Context) (*supabase.Session, error) {
	if f.getSession != nil {
		return f.getSession(ctx)
	}
	f.emit(ctx, identity.EventInitialSession, f.session)
	return f.session, nil
}

func (f *fakeIdentity) SetRecoverySession(ctx context.Context, access, refresh string) (*supabase.Session, error) {
	session, err := f.setRecovery(ctx, access, refresh)
	if err != nil {
		return nil, err
	}
	f.emit(ctx, identity.EventPasswordRecovery, session)
	return session, nil
}

func (f *fakeIdentity) SignOut(ctx context.Context) error {
	f.signOuts++
	f.session = nil
	f.emit(ctx, identity.EventSignedOut, nil)
	return nil
}

type fakeResolver struct {
	calls atomic.Int32
	gate  chan struct{}
	roles map[string]profile.Role
}

func (r *fakeResolver) Resolve(ctx context.Context, userID, accessToken string) *profile.Profile {
	r.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	role, ok := r.roles[userID]
	if !ok {
		return nil
	}
	return &profile.Profile{ID: userID, FullName: "Nome " + userID, Role: role}
}

func sessionFor(uid string) *supabase.Session {
	return &supabase.Session{AccessToken: "token-" + uid, User: &supabase.User{ID: uid}}
}

func TestBootstrapWithoutSession(t *testing.T) {
	auth := newFakeIdentity()
	resolver := &fakeResolver{}
	p := New(auth, resolver, time.Second)
	defer p.Close()

	require.True(t, p.State().Loading)
	p.Bootstrap(context.Background(), recovery.Fragment{})

	state := p.State()
	require.False(t, state.Loading)
	require.False(t, state.Authenticated())
	require.Nil(t, state.Profile)
	require.False(t, p.Degraded())
	require.Zero(t, resolver.calls.Load())
}

func TestBootstrapResolvesProfileOnce(t *testing.T) {
	auth := newFakeIdentity()
	auth.session = sessionFor("u1")
	resolver := &fakeResolver{roles: map[string]profile.Role{"u1": profile.RoleAdmin}}
	p := New(auth, resolver, time.Second)
	defer p.Close()

	p.Bootstrap(context.Background(), recovery.Fragment{})
	p.Bootstrap(context.Background(), recovery.Fragment{})

	state := p.State()
	require.Equal(t, "u1", state.UserID())
	require.Equal(t, profile.RoleAdmin, state.Profile.Role)
	require.EqualValues(t, 1, resolver.calls.Load())
}

func TestBootstrapStalledSessionCheck(t *testing.T) {
	auth := newFakeIdentity()
	auth.getSession = func(ctx context.Context) (*supabase.Session, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p := New(auth, &fakeResolver{}, 30*time.Millisecond)
	defer p.Close()

	start := time.Now()
	p.Bootstrap(context.Background(), recovery.Fragment{})
	require.Less(t, time.Since(start), 500*time.Millisecond)

	state := p.State()
	require.False(t, state.Loading)
	require.False(t, state.Authenticated())
	require.True(t, p.Degraded())
}

func TestBootstrapRecoveryFragment(t *testing.T) {
	auth := newFakeIdentity()
	auth.setRecovery = func(ctx context.Context, access, refresh string) (*supabase.Session, error) {
		require.Equal(t, "at", access)
		return sessionFor("u1"), nil
	}
	resolver := &fakeResolver{roles: map[string]profile.Role{"u1": profile.RoleClient}}
	p := New(auth, resolver, time.Second)
	defer p.Close()

	p.Bootstrap(context.Background(), recovery.ParseFragment("#access_token=at&refresh_token=rt&type=recovery"))

	state := p.State()
	require.True(t, state.Authenticated())
	require.Equal(t, profile.RoleClient, state.Profile.Role)
	require.EqualValues(t, 1, resolver.calls.Load())
}

func TestBootstrapErrorFragment(t *testing.T) {
	auth := newFakeIdentity()
	p := New(auth, &fakeResolver{}, time.Second)
	defer p.Close()

	p.Bootstrap(context.Background(), recovery.ParseFragment("#error=access_denied&error_code=otp_expired"))
	require.False(t, p.State().Authenticated())
	require.False(t, p.State().Loading)
	require.False(t, p.Degraded())
}

func TestEventPolicy(t *testing.T) {
	auth := newFakeIdentity()
	auth.session = sessionFor("u1")
	resolver := &fakeResolver{roles: map[string]profile.Role{"u1": profile.RoleClient, "u2": profile.RoleTechnician}}
	p := New(auth, resolver, time.Second)
	defer p.Close()
	ctx := context.Background()

	p.Bootstrap(ctx, recovery.Fragment{})
	require.EqualValues(t, 1, resolver.calls.Load())

	auth.emit(ctx, identity.EventTokenRefreshed, sessionFor("u1"))
	p.Settle(ctx)
	require.EqualValues(t, 1, resolver.calls.Load(), "same user keeps cached profile")

	auth.emit(ctx, identity.EventUserUpdated, sessionFor("u1"))
	require.EqualValues(t, 1, resolver.calls.Load(), "events only record the session")
	p.Settle(ctx)
	require.EqualValues(t, 2, resolver.calls.Load())

	auth.emit(ctx, identity.EventSignedIn, sessionFor("u2"))
	require.Equal(t, "u2", p.State().UserID())
	require.Nil(t, p.State().Profile, "profile of the previous user is dropped")
	p.Settle(ctx)
	p.Settle(ctx)
	require.EqualValues(t, 3, resolver.calls.Load())
	require.Equal(t, profile.RoleTechnician, p.State().Profile.Role)

	auth.emit(ctx, identity.EventSignedOut, nil)
	p.Settle(ctx)
	require.EqualValues(t, 3, resolver.calls.Load())
	require.Nil(t, p.State().Profile)
	require.False(t, p.State().Authenticated())
}

func TestSignOutClearsState(t *testing.T) {
	auth := newFakeIdentity()
	auth.session = sessionFor("u1")
	p := New(auth, &fakeResolver{roles: map[string]profile.Role{"u1": profile.RoleAdmin}}, time.Second)
	defer p.Close()

	p.Bootstrap(context.Background(), recovery.Fragment{})
	require.NotNil(t, p.State().Profile)

	next := p.SignOut(context.Background())
	require.Equal(t, "/", next)
	state := p.State()
	require.Nil(t, state.User)
	require.Nil(t, state.Session)
	require.Nil(t, state.Profile)
	require.False(t, state.Loading)
	require.Equal(t, 1, auth.signOuts)
}

func TestCloseUnsubscribes(t *testing.T) {
	auth := newFakeIdentity()
	p := New(auth, &fakeResolver{}, time.Second)
	require.Len(t, auth.listeners, 1)
	p.Close()
	p.Close()
	require.Empty(t, auth.listeners)
}

func TestLateProfileAfterSignOutIsDiscarded(t *testing.T) {
	auth := newFakeIdentity()
	auth.session = sessionFor("u1")
	resolver := &fakeResolver{roles: map[string]profile.Role{"u1": profile.RoleAdmin}}
	p := New(auth, resolver, time.Second)
	defer p.Close()
	p.Bootstrap(context.Background(), recovery.Fragment{})

	resolver.gate = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.RefreshProfile(context.Background())
	}()
	require.Eventually(t, func() bool { return resolver.calls.Load() == 2 }, time.Second, time.Millisecond)

	p.SignOut(context.Background())
	close(resolver.gate)
	<-done

	require.Nil(t, p.State().Profile)
	require.False(t, p.State().Loading)
}

func TestConcurrentRefreshConverges(t *testing.T) {
	auth := newFakeIdentity()
	auth.session = sessionFor("u1")
	resolver := &fakeResolver{roles: map[string]profile.Role{"u1": profile.RoleTechnician}}
	p := New(auth, resolver, time.Second)
	defer p.Close()
	p.Bootstrap(context.Background(), recovery.Fragment{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.RefreshProfile(context.Background())
		}()
	}
	wg.Wait()

	state := p.State()
	require.NotNil(t, state.Profile)
	require.Equal(t, "u1", state.Profile.ID)
	require.Equal(t, profile.RoleTechnician, state.Profile.Role)
	require.False(t, state.Loading)
}

func TestContextHelpers(t *testing.T) {
	require.True(t, StateFromContext(context.Background()).Loading)

	p := New(newFakeIdentity(), &fakeResolver{}, time.Second)
	defer p.Close()
	ctx := WithProvider(context.Background(), p)
	require.Same(t, p, FromContext(ctx))
}

func TestEventAfterDeadlineIsDiscarded(t *testing.T) {
	auth := newFakeIdentity()
	p := New(auth, &fakeResolver{}, time.Second)
	defer p.Close()
	p.Bootstrap(context.Background(), recovery.Fragment{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	auth.emit(ctx, identity.EventSignedIn, sessionFor("u1"))

	require.False(t, p.State().Authenticated())
}
