package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/helpdeskpro/helpdesk/internal/config"
	"github.com/helpdeskpro/helpdesk/internal/identity"
	"github.com/helpdeskpro/helpdesk/internal/supabase"
)

const (
	testPassword  = "segredo123"
	testJWTSecret = "segredo-de-teste"
)

// testToken assina um token de acesso cujo subject carrega o papel: "u-ADMIN", "u-CLIENT".
func testToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.Claims{
		Email: strings.ToLower(role) + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-" + role,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// fakeBackend imita as APIs de autenticação e REST. O papel do usuário
// vem do subject do token de acesso.
type fakeBackend struct {
	t       *testing.T
	tokens  *identity.TokenParser
	updates atomic.Int32
	tickets atomic.Int32
	// profileDelay atrasa as leituras de perfil.
	profileDelay atomic.Int64
}

func (f *fakeBackend) roleOf(r *http.Request) string {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := f.tokens.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(claims.Subject, "u-")
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := f.roleOf(r)

	switch {
	case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "password":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != testPassword {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_code":"invalid_credentials","msg":"Invalid login credentials"}`))
			return
		}
		role := "CLIENT"
		if strings.HasPrefix(body.Email, "admin") {
			role = "ADMIN"
		}
		writeTestJSON(w, supabase.Session{
			AccessToken:  testToken(f.t, role),
			RefreshToken: "refresh-" + role,
			ExpiresIn:    3600,
			User:         &supabase.User{ID: "u-" + role, Email: body.Email},
		})
	case strings.HasPrefix(r.URL.Path, "/auth/v1/user") && role == "":
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_code":"bad_jwt","msg":"invalid JWT"}`))
	case r.URL.Path == "/auth/v1/user" && r.Method == http.MethodPut:
		f.updates.Add(1)
		writeTestJSON(w, supabase.User{ID: "u-" + role})
	case r.URL.Path == "/auth/v1/user":
		writeTestJSON(w, supabase.User{ID: "u-" + role})
	case r.URL.Path == "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/auth/v1/health":
		writeTestJSON(w, map[string]string{"name": "auth"})
	case r.URL.Path == "/rest/v1/profiles":
		if id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq."); id != "" {
			if d := time.Duration(f.profileDelay.Load()); d > 0 {
				time.Sleep(d)
			}
			writeTestJSON(w, []map[string]string{{
				"id": id, "email": strings.ToLower(role) + "@example.com",
				"full_name": "Pessoa " + role, "role": role,
			}})
			return
		}
		writeTestJSON(w, []map[string]string{
			{"id": "u-ADMIN", "email": "admin@example.com", "full_name": "Pessoa ADMIN", "role": "ADMIN"},
			{"id": "u-CLIENT", "email": "client@example.com", "full_name": "Pessoa CLIENT", "role": "CLIENT"},
		})
	case r.URL.Path == "/rest/v1/tickets":
		f.tickets.Add(1)
		writeTestJSON(w, []any{})
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		writeTestJSON(w, []any{})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type testApp struct {
	server  *httptest.Server
	backend *fakeBackend
	redis   *miniredis.Miniredis
}

func newTestApp(t *testing.T, opts ...func(*config.Config)) *testApp {
	t.Helper()

	fake := &fakeBackend{t: t, tokens: identity.NewTokenParser(testJWTSecret)}
	remote := httptest.NewServer(fake)
	t.Cleanup(remote.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	supa, err := supabase.New(supabase.Config{URL: remote.URL, AnonKey: "anon"})
	require.NoError(t, err)

	timeouts := config.DefaultTimeouts()
	timeouts.RetryBackoff = 10 * time.Millisecond
	cfg := &config.Config{
		SiteURL:     "http://localhost:8080",
		SupabaseURL: remote.URL,
		SupabaseKey: "anon",
		JWTSecret:   testJWTSecret,
		SessionTTL:  time.Hour,
		Timeouts:    timeouts,
		RateLimit:   config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	router, err := NewRouter(cfg, rdb, supa, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testApp{server: srv, backend: fake, redis: mr}
}

// browser segue cookies e não segue redirecionamentos.
func (a *testApp) browser(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func (a *testApp) login(t *testing.T, c *http.Client, email string) {
	t.Helper()
	resp, err := c.PostForm(a.server.URL+"/", url.Values{"email": {email}, "password": {testPassword}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), `"status":"ok"`)
}

func TestReadyReportsRedis(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/ready")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	app.redis.Close()
	resp, err = http.Get(app.server.URL + "/ready")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestProtectedPageRedirectsWithoutSession(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)

	resp, err := c.Get(app.server.URL + "/dashboard")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestPublicPagesRenderWithoutSession(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)

	for _, path := range []string{"/", "/register", "/forgot-password", "/reset-password"} {
		resp, err := c.Get(app.server.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		resp.Body.Close()
	}
}

func TestLoginOpensDashboard(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)

	app.login(t, c, "client@example.com")

	resp, err := c.Get(app.server.URL + "/dashboard")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, "Chamados Abertos")
	require.Contains(t, body, "Pessoa CLIENT")
	require.NotContains(t, body, `href="/users"`)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)

	resp, err := c.PostForm(app.server.URL+"/", url.Values{"email": {"client@example.com"}, "password": {"errada"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "Email ou senha inválidos")
}

func TestUsersRestrictedToAdmins(t *testing.T) {
	app := newTestApp(t)

	client := app.browser(t)
	app.login(t, client, "client@example.com")
	resp, err := client.Get(app.server.URL + "/users")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))

	admin := app.browser(t)
	app.login(t, admin, "admin@example.com")
	resp, err = admin.Get(app.server.URL + "/users")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, "Pessoa CLIENT")
	require.Contains(t, body, "Grupos de Acesso")
}

func TestLogoutClearsSession(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)
	app.login(t, c, "client@example.com")

	resp, err := c.PostForm(app.server.URL+"/logout", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	resp, err = c.Get(app.server.URL + "/dashboard")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestTicketsListCallsBackend(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)
	app.login(t, c, "client@example.com")

	resp, err := c.Get(app.server.URL + "/tickets?ok=created")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, "Nenhum chamado encontrado")
	require.Contains(t, body, notices["created"])
	require.Positive(t, app.backend.tickets.Load())
}

func TestResetMismatchNeverCallsBackend(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)

	resp, err := c.PostForm(app.server.URL+"/reset-password", url.Values{
		"step":             {"reset"},
		"password":         {"abcdef"},
		"confirm_password": {"abcdeg"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "As senhas não coincidem")
	require.Zero(t, app.backend.updates.Load())
}

func TestResetErrorFragmentShowsInvalidLink(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)

	resp, err := c.PostForm(app.server.URL+"/reset-password", url.Values{
		"step":     {"session"},
		"fragment": {"error=access_denied&error_code=otp_expired&error_description=Email+link+is+invalid"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, "Link de recuperação inválido")
	require.Contains(t, body, "Solicitar novo link")
}

func TestResetWithoutLinkSessionIsExpired(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)

	resp, err := c.PostForm(app.server.URL+"/reset-password", url.Values{"step": {"session"}, "fragment": {""}})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "Link expirado ou inválido")
}

func TestNoticeCodesAreNotReflected(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)
	app.login(t, c, "client@example.com")

	resp, err := c.Get(app.server.URL + "/tickets?ok=%3Cscript%3E")
	require.NoError(t, err)
	require.NotContains(t, readBody(t, resp), "<script>")
}

// openRecoveryLink entrega o fragmento do link como a tela de redefinição faz.
func (a *testApp) openRecoveryLink(t *testing.T, c *http.Client, role string) *http.Response {
	t.Helper()
	resp, err := c.Get(a.server.URL + "/reset-password")
	require.NoError(t, err)
	resp.Body.Close()

	fragment := url.Values{
		"access_token":  {testToken(t, role)},
		"refresh_token": {"refresh-" + role},
		"expires_in":    {"3600"},
		"type":          {"recovery"},
	}.Encode()
	resp, err = c.PostForm(a.server.URL+"/reset-password", url.Values{"step": {"session"}, "fragment": {"#" + fragment}})
	require.NoError(t, err)
	return resp
}

func TestRecoveryLinkResetsPassword(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)

	resp := app.openRecoveryLink(t, c, "CLIENT")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, `name="confirm_password"`)
	require.NotContains(t, body, "Link expirado")

	resp, err := c.PostForm(app.server.URL+"/reset-password", url.Values{
		"step":             {"reset"},
		"password":         {"novaSenha1"},
		"confirm_password": {"novaSenha1"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = readBody(t, resp)
	require.Contains(t, body, "Senha redefinida com sucesso")
	require.Contains(t, body, `<meta http-equiv="refresh" content="3;url=/">`)
	require.EqualValues(t, 1, app.backend.updates.Load())

	resp, err = c.Get(app.server.URL + "/dashboard")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "recovery session stays signed in")
	require.Contains(t, readBody(t, resp), "Pessoa CLIENT")
}

func TestSlowProfileDoesNotDropSession(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) {
		cfg.Timeouts.SessionCheck = 150 * time.Millisecond
		cfg.Timeouts.SignUp = 150 * time.Millisecond
	})
	app.backend.profileDelay.Store(int64(300 * time.Millisecond))

	recovering := app.browser(t)
	resp := app.openRecoveryLink(t, recovering, "CLIENT")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, `name="confirm_password"`)
	require.NotContains(t, body, "Link expirado")

	c := app.browser(t)
	app.login(t, c, "client@example.com")
	resp, err := c.Get(app.server.URL + "/dashboard")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "Pessoa CLIENT")
}

func TestUnavailableSessionOffersRetry(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)
	app.login(t, c, "client@example.com")

	app.redis.Close()

	resp, err := c.Get(app.server.URL + "/tickets")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.Equal(t, "/?retry=%2Ftickets", location)

	resp, err = c.Get(app.server.URL + location)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, "Serviço indisponível")
	require.Contains(t, body, `href="/tickets"`)
}

func TestProfileRefreshStaysOnSite(t *testing.T) {
	app := newTestApp(t)
	c := app.browser(t)
	app.login(t, c, "client@example.com")

	for next, want := range map[string]string{
		"/tickets":      "/tickets",
		"/\\evil.com":   "/dashboard",
		"//evil.com":    "/dashboard",
		"https://x.io":  "/dashboard",
	} {
		resp, err := c.PostForm(app.server.URL+"/profile/refresh", url.Values{"next": {next}})
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, want, resp.Header.Get("Location"), next)
	}
}
