package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

type stubSource struct {
	perms []string
	err   error
	calls int
}

func (s *stubSource) EffectivePermissions(context.Context, int64) ([]string, error) {
	s.calls++
	return s.perms, s.err
}

type stubSyncer struct {
	labels []string
	err    error
}

func (s *stubSyncer) SyncSessionRole(_ context.Context, label string) error {
	s.labels = append(s.labels, label)
	return s.err
}

type fixture struct {
	router   chi.Router
	sessions *shared.SessionManager
	verifier *auth.Verifier
	cookie   string
}

func newFixture(t *testing.T, source auth.PermissionSource, syncer auth.RoleSyncer) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	verifier := auth.NewVerifier("handoffsecret", time.Minute)
	handler := auth.NewHandler(nil, auth.NewService(source, syncer), verifier, sessions, shared.NewCSRFManager("csrfsecret"))
	r := chi.NewRouter()
	r.Route("/session", handler.MountRoutes)
	return &fixture{router: r, sessions: sessions, verifier: verifier}
}

// stamp adds a current issued_at to a JSON object body.
func stamp(t *testing.T, body string, issued time.Time) string {
	t.Helper()
	fields := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(body), &fields))
	fields["issued_at"] = issued.Unix()
	out, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(out)
}

// do sends body through the fixture; POST bodies are stamped and signed.
func (f *fixture) do(t *testing.T, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	if method != http.MethodPost {
		return f.send(t, method, body, "")
	}
	body = stamp(t, body, time.Now())
	return f.send(t, method, body, f.verifier.Sign([]byte(body)))
}

// send loads the fixture's session, runs the request and commits the session.
func (f *fixture) send(t *testing.T, method, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/session", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(auth.SignatureHeader, signature)
	}
	if f.cookie != "" {
		req.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: f.cookie})
	}
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req.WithContext(ctx))
	require.NoError(t, f.sessions.Commit(ctx, httptest.NewRecorder(), sess))
	f.cookie = sess.ID
	return rec
}

func TestSignInWithExplicitPermissions(t *testing.T) {
	source := &stubSource{}
	syncer := &stubSyncer{}
	f := newFixture(t, source, syncer)

	rec := f.do(t, http.MethodPost, `{"user_id":7,"role_label":"Manager","permissions":["sales.view","sales.create","reports.view"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "manager", body["role"])
	assert.Equal(t, "7", body["user_id"])
	assert.NotEmpty(t, body["csrf_token"])
	assert.Equal(t, []string{"Manager"}, syncer.labels)
	assert.Zero(t, source.calls)

	rec = f.do(t, http.MethodGet, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var identity auth.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, rbac.RoleManager, identity.Role)
	assert.Equal(t, rbac.Grant(rbac.OpView, rbac.OpCreate), identity.Grants[rbac.ModuleSales])
	assert.Equal(t, rbac.Grant(rbac.OpView), identity.Grants[rbac.ModuleReports])
}

func TestSignInResolvesPermissions(t *testing.T) {
	source := &stubSource{perms: []string{"vouchers.view", "vouchers.delete"}}
	f := newFixture(t, source, &stubSyncer{})

	rec := f.do(t, http.MethodPost, `{"user_id":3,"role_label":"Clerk"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, source.calls)

	var identity auth.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, rbac.RoleUser, identity.Role, "unknown labels map to user")
	assert.Equal(t, rbac.Grant(rbac.OpView, rbac.OpDelete), identity.Grants[rbac.ModuleVouchers])
}

func TestSignInFailures(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		for _, body := range []string{`{}`, `{"user_id":0,"role_label":"User"}`, `{"user_id":1}`, `{"user_id":1,"role_label":"User","permissions":[""]}`} {
			assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, body).Code, body)
		}
	})
	t.Run("source error", func(t *testing.T) {
		f := newFixture(t, &stubSource{err: errors.New("db down")}, nil)
		assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodPost, `{"user_id":1,"role_label":"User"}`).Code)
		assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "").Code)
	})
	t.Run("store error", func(t *testing.T) {
		f := newFixture(t, nil, &stubSyncer{err: errors.New("disk full")})
		assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodPost, `{"user_id":1,"role_label":"User","permissions":[]}`).Code)
		assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "").Code)
	})
}

func TestSignInRejectsUnsignedHandoff(t *testing.T) {
	syncer := &stubSyncer{}
	f := newFixture(t, nil, syncer)
	body := stamp(t, `{"user_id":1,"role_label":"Administrator","permissions":[]}`, time.Now())
	forger := auth.NewVerifier("guessed", time.Minute)

	cases := map[string]string{
		"missing":    "",
		"not hex":    "zz",
		"wrong key":  forger.Sign([]byte(body)),
		"other body": f.verifier.Sign([]byte(`{"user_id":1,"role_label":"User"}`)),
	}
	for name, signature := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, f.send(t, http.MethodPost, body, signature).Code)
		})
	}
	assert.Empty(t, syncer.labels, "rejected hand-offs never reach the store")
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "").Code)
}

func TestSignInRejectsStaleHandoff(t *testing.T) {
	syncer := &stubSyncer{}
	f := newFixture(t, nil, syncer)
	for _, issued := range []time.Time{time.Now().Add(-time.Hour), time.Now().Add(time.Hour)} {
		body := stamp(t, `{"user_id":1,"role_label":"Administrator","permissions":[]}`, issued)
		assert.Equal(t, http.StatusUnauthorized, f.send(t, http.MethodPost, body, f.verifier.Sign([]byte(body))).Code)
	}
	assert.Empty(t, syncer.labels)
}

func TestVerifierWithoutSecretRejects(t *testing.T) {
	v := auth.NewVerifier("", 0)
	assert.ErrorIs(t, v.Verify([]byte("{}"), v.Sign([]byte("{}"))), auth.ErrSignatureInvalid)
}

func TestSignOut(t *testing.T) {
	f := newFixture(t, nil, &stubSyncer{})
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, `{"user_id":1,"role_label":"Administrator","permissions":[]}`).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "").Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "").Code)
}

func TestIssueCSRFToken(t *testing.T) {
	f := newFixture(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/session/csrf", nil)
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req.WithContext(shared.ContextWithSession(req.Context(), sess)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, sess.Get(shared.CSRFSessionKey), body["csrf_token"])
	assert.NotEmpty(t, body["csrf_token"])
}
