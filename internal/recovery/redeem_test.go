package recovery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/helpdeskpro/helpdesk/internal/supabase"
	"github.com/helpdeskpro/helpdesk/internal/timing"
)

type fakeAuth struct {
	calls atomic.Int32

	getSession  func(ctx context.Context) (*supabase.Session, error)
	setRecovery func(ctx context.Context, access, refresh string) (*supabase.Session, error)
	refresh     func(ctx context.Context, refresh string) (*supabase.Session, error)
	update      func(ctx context.Context, attempt int) (*supabase.User, error)
	updates     atomic.Int32
}

func (f *fakeAuth) GetSession(ctx context.Context) (*supabase.Session, error) {
	f.calls.Add(1)
	if f.getSession == nil {
		return nil, nil
	}
	return f.getSession(ctx)
}

func (f *fakeAuth) SetRecoverySession(ctx context.Context, access, refresh string) (*supabase.Session, error) {
	f.calls.Add(1)
	return f.setRecovery(ctx, access, refresh)
}

func (f *fakeAuth) RefreshWithToken(ctx context.Context, refresh string) (*supabase.Session, error) {
	f.calls.Add(1)
	return f.refresh(ctx, refresh)
}

func (f *fakeAuth) UpdateUser(ctx context.Context, password string) (*supabase.User, error) {
	f.calls.Add(1)
	attempt := int(f.updates.Add(1))
	if f.update == nil {
		return &supabase.User{ID: "u1"}, nil
	}
	return f.update(ctx, attempt)
}

func stall(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func testPolicy() Policy {
	return Policy{
		SessionCheck:   50 * time.Millisecond,
		SessionRefresh: 20 * time.Millisecond,
		Update:         50 * time.Millisecond,
		UpdateAttempts: 2,
		Backoff:        time.Millisecond,
	}
}

var recoveryFragment = ParseFragment("#access_token=at&refresh_token=rt&expires_in=3600&type=recovery")

func okSession(ctx context.Context, access, refresh string) (*supabase.Session, error) {
	return &supabase.Session{AccessToken: access, RefreshToken: refresh, User: &supabase.User{ID: "u1"}}, nil
}

func TestParseFragment(t *testing.T) {
	require.True(t, recoveryFragment.IsRecovery())
	require.Equal(t, "at", recoveryFragment.AccessToken)
	require.NoError(t, recoveryFragment.Err())

	frag := ParseFragment("error=access_denied&error_code=otp_expired&error_description=Email+link+is+invalid+or+has+expired")
	require.False(t, frag.IsRecovery())
	require.ErrorIs(t, frag.Err(), ErrInvalidLink)

	require.True(t, ParseFragment("").Empty())
	require.False(t, ParseFragment("#access_token=at&type=signup").IsRecovery())
	require.Equal(t, recoveryFragment, ParseFragment(recoveryFragment.Encode()))
}

func TestResetValidatesLocally(t *testing.T) {
	auth := &fakeAuth{}
	r := NewRedeemer(auth, testPolicy())

	err := r.Reset(context.Background(), recoveryFragment, "abc", "abc")
	require.ErrorIs(t, err, ErrPasswordTooShort)
	require.Equal(t, "A senha deve ter pelo menos 6 caracteres", Message(err))

	err = r.Reset(context.Background(), recoveryFragment, "secret1", "secret2")
	require.ErrorIs(t, err, ErrPasswordMismatch)
	require.Equal(t, "As senhas não coincidem", Message(err))

	require.Zero(t, auth.calls.Load())
}

func TestErrorFragmentSkipsNetwork(t *testing.T) {
	auth := &fakeAuth{}
	r := NewRedeemer(auth, testPolicy())

	err := r.Reset(context.Background(), ParseFragment("#error=access_denied&error_code=otp_expired"), "secret1", "secret1")
	require.ErrorIs(t, err, ErrInvalidLink)
	require.Zero(t, auth.calls.Load())
	require.Equal(t, 0, int(auth.updates.Load()))
}

func TestResetWithRecoveryTokens(t *testing.T) {
	auth := &fakeAuth{setRecovery: okSession}
	r := NewRedeemer(auth, testPolicy())

	require.NoError(t, r.Reset(context.Background(), recoveryFragment, "secret1", "secret1"))
	require.EqualValues(t, 1, auth.updates.Load())
}

func TestEstablishFallsBackToRefreshOnStall(t *testing.T) {
	auth := &fakeAuth{
		setRecovery: func(ctx context.Context, access, refresh string) (*supabase.Session, error) {
			return nil, stall(ctx)
		},
		refresh: func(ctx context.Context, refresh string) (*supabase.Session, error) {
			require.Equal(t, "rt", refresh)
			return &supabase.Session{AccessToken: "fresh"}, nil
		},
	}
	r := NewRedeemer(auth, testPolicy())

	session, err := r.Establish(context.Background(), recoveryFragment)
	require.NoError(t, err)
	require.Equal(t, "fresh", session.AccessToken)
}

func TestEstablishTimesOutWithinBound(t *testing.T) {
	auth := &fakeAuth{
		setRecovery: func(ctx context.Context, access, refresh string) (*supabase.Session, error) {
			return nil, stall(ctx)
		},
		refresh: func(ctx context.Context, refresh string) (*supabase.Session, error) {
			return nil, stall(ctx)
		},
	}
	policy := testPolicy()
	r := NewRedeemer(auth, policy)

	start := time.Now()
	err := r.Reset(context.Background(), recoveryFragment, "secret1", "secret1")
	require.ErrorIs(t, err, ErrLinkExpired)
	require.Less(t, time.Since(start), policy.SessionCheck+policy.SessionRefresh+200*time.Millisecond)
	require.Zero(t, auth.updates.Load())
	require.Equal(t, ErrLinkExpired.Error(), Message(err))
}

func TestEstablishRejectedLinkDoesNotFallBack(t *testing.T) {
	auth := &fakeAuth{
		setRecovery: func(ctx context.Context, access, refresh string) (*supabase.Session, error) {
			return nil, &supabase.APIError{Status: 403, Code: "otp_expired", Message: "Token has expired or is invalid"}
		},
		refresh: func(ctx context.Context, refresh string) (*supabase.Session, error) {
			t.Fatalf("refresh must not be attempted")
			return nil, nil
		},
	}
	r := NewRedeemer(auth, testPolicy())

	_, err := r.Establish(context.Background(), recoveryFragment)
	require.ErrorIs(t, err, ErrLinkExpired)
	require.ErrorIs(t, err, supabase.ErrSessionInvalid)
}

func TestEstablishWithoutTokensUsesExistingSession(t *testing.T) {
	auth := &fakeAuth{}
	r := NewRedeemer(auth, testPolicy())
	_, err := r.Establish(context.Background(), Fragment{})
	require.ErrorIs(t, err, ErrLinkExpired)

	auth.getSession = func(ctx context.Context) (*supabase.Session, error) {
		return &supabase.Session{AccessToken: "at"}, nil
	}
	session, err := r.Establish(context.Background(), Fragment{})
	require.NoError(t, err)
	require.Equal(t, "at", session.AccessToken)
}

func TestResetSamePasswordTranslated(t *testing.T) {
	auth := &fakeAuth{
		setRecovery: okSession,
		update: func(ctx context.Context, attempt int) (*supabase.User, error) {
			return nil, &supabase.APIError{Status: 422, Code: "same_password", Message: "New password should be different from the old password."}
		},
	}
	r := NewRedeemer(auth, testPolicy())

	err := r.Reset(context.Background(), recoveryFragment, "secret1", "secret1")
	require.ErrorIs(t, err, ErrSamePassword)
	require.Equal(t, ErrSamePassword.Error(), Message(err))
	require.EqualValues(t, 1, auth.updates.Load())
}

func TestResetRetriesTransientUpdate(t *testing.T) {
	auth := &fakeAuth{
		setRecovery: okSession,
		update: func(ctx context.Context, attempt int) (*supabase.User, error) {
			if attempt == 1 {
				return nil, &supabase.APIError{Status: 502, Message: "bad gateway"}
			}
			return &supabase.User{ID: "u1"}, nil
		},
	}
	r := NewRedeemer(auth, testPolicy())

	require.NoError(t, r.Reset(context.Background(), recoveryFragment, "secret1", "secret1"))
	require.EqualValues(t, 2, auth.updates.Load())
}

func TestResetUpdateTimeoutIsBounded(t *testing.T) {
	auth := &fakeAuth{
		setRecovery: okSession,
		update: func(ctx context.Context, attempt int) (*supabase.User, error) {
			return nil, stall(ctx)
		},
	}
	policy := testPolicy()
	r := NewRedeemer(auth, policy)

	start := time.Now()
	err := r.Reset(context.Background(), recoveryFragment, "secret1", "secret1")
	require.True(t, errors.Is(err, timing.ErrTimeout))
	require.Less(t, time.Since(start), 2*policy.Update+300*time.Millisecond)
	require.EqualValues(t, 2, auth.updates.Load())
	require.Contains(t, Message(err), "demorou muito")
}

func TestResetTimeoutThenSamePasswordCountsAsSuccess(t *testing.T) {
	auth := &fakeAuth{
		setRecovery: okSession,
		update: func(ctx context.Context, attempt int) (*supabase.User, error) {
			if attempt == 1 {
				return nil, stall(ctx)
			}
			return nil, &supabase.APIError{Status: 422, Code: "same_password", Message: "New password should be different from the old password."}
		},
	}
	r := NewRedeemer(auth, testPolicy())

	require.NoError(t, r.Reset(context.Background(), recoveryFragment, "secret1", "secret1"))
}
