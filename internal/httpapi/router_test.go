package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhub/internal/auth"
	"sessionhub/internal/domain"
	"sessionhub/internal/hub"
	"sessionhub/internal/query"
	"sessionhub/internal/store"
	"sessionhub/internal/wire"
	"sessionhub/internal/ws"
	"sessionhub/pkg/testutil"
)

type nullPeer struct{ id string }

func (p nullPeer) UserID() domain.UserID    { return domain.UserID(p.id) }
func (p nullPeer) Send(wire.Envelope) error { return nil }

type routerFixture struct {
	router   http.Handler
	registry *hub.Registry
	store    store.Store
	verifier *auth.Verifier
	cancel   context.CancelFunc
}

func newRouterFixture(t *testing.T, st store.Store) *routerFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	writer := store.NewWriter(st, 16, nil)
	go writer.Run(ctx)

	registry := hub.NewRegistry(ctx, st, writer, nil, nil)
	verifier := auth.NewVerifier(auth.Config{Secret: "test-secret", Issuer: "sessionhub", Lifetime: time.Hour})
	surface := query.New(registry, st)
	protocol := ws.NewHandler(registry, verifier, nil, nil)

	router := NewRouter(Deps{
		Verifier:        verifier,
		Surface:         surface,
		ProtocolHandler: protocol,
		CORSOrigins:     []string{"http://localhost:3000"},
	})

	return &routerFixture{router: router, registry: registry, store: st, verifier: verifier, cancel: cancel}
}

func TestAuthAnonymous_MintsVerifiableToken(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/anonymous", map[string]string{"username": "Guest"})
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[struct {
		Token       string `json:"token"`
		UserID      string `json:"user_id"`
		Username    string `json:"username"`
		IsAnonymous bool   `json:"is_anonymous"`
	}](t, rr)

	assert.Equal(t, "Guest", resp.Username)
	assert.True(t, resp.IsAnonymous)
	assert.Contains(t, resp.UserID, "anon_")

	principal, err := f.verifier.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID(resp.UserID), principal.UserID)
}

func TestAuthLogin_RequiresEmail(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{})
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestAuthLogin_MalformedBody(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/api/v1/auth/login", "{not json")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestAuthRefresh_RejectsGarbageToken(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"token": "garbage"})
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestAuthMe_ReturnsClaims(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	token, err := f.verifier.Issue("user-1", "Ada", "ada@example.com", false)
	require.NoError(t, err)

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/auth/me?token="+token)
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "user_id", "user-1")
	testutil.AssertJSONContains(t, rr, "username", "Ada")
	testutil.AssertJSONHasKey(t, rr, "expires_at")
}

func TestSessionsCreate_MintsID(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/sessions", nil)
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[struct {
		SessionID string `json:"session_id"`
		JoinURL   string `json:"join_url"`
	}](t, rr)
	assert.Len(t, resp.SessionID, 8)
	assert.Contains(t, resp.JoinURL, resp.SessionID)
}

func TestSessionsGet_NotFoundWithoutLiveHub(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/sessions/nope")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestSessionsList_ReflectsLiveHubs(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	f.registry.Join("room-live", nullPeer{id: "u1"}, domain.Principal{UserID: "u1", DisplayName: "Ada"}, "")
	f.registry.Propose("room-live", "u1", domain.Params{domain.ParamMu: 0.6})

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/sessions/room-live")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[struct {
		SessionID  string             `json:"session_id"`
		UserCount  int                `json:"user_count"`
		CurrentSeq uint64             `json:"current_seq"`
		State      map[string]float64 `json:"state"`
	}](t, rr)
	assert.Equal(t, "room-live", resp.SessionID)
	assert.Equal(t, 1, resp.UserCount)
	assert.Equal(t, uint64(1), resp.CurrentSeq)
	assert.InDelta(t, 0.6, resp.State["mu"], 1e-9)
}

func TestHistory_UnavailableWithoutStore(t *testing.T) {
	f := newRouterFixture(t, store.NewNoopStore())

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/history/room-x")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusServiceUnavailable, "unavailable")
}

func TestHistoryMetadata_NotFoundWithoutSnapshot(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/history/room-x/metadata")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestHistoryRange_ReturnsPersistedEvents(t *testing.T) {
	st := store.NewMemoryStore()
	f := newRouterFixture(t, st)

	ctx := context.Background()
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, st.AppendHistory(ctx, "room-h", "u1", domain.Params{domain.ParamMu: 0.55}, seq))
	}

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/history/room-h?start_seq=2")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[struct {
		SessionID  string `json:"session_id"`
		TotalCount int    `json:"total_count"`
	}](t, rr)
	assert.Equal(t, "room-h", resp.SessionID)
	assert.Equal(t, 2, resp.TotalCount)
}

func TestSessionsDelete_TearsDownHubAndSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	f := newRouterFixture(t, st)

	f.registry.Join("room-del", nullPeer{id: "u1"}, domain.Principal{UserID: "u1", DisplayName: "Ada"}, "")
	f.registry.Propose("room-del", "u1", domain.Params{domain.ParamMu: 0.6})

	require.Eventually(t, func() bool {
		rec, err := st.LoadState(context.Background(), "room-del")
		return err == nil && rec != nil
	}, time.Second, 5*time.Millisecond)

	req := testutil.NewRequest(t, http.MethodDelete, "/api/v1/sessions/room-del")
	rr := testutil.DoRequest(f.router, req)
	testutil.AssertStatusOK(t, rr)

	_, ok := query.New(f.registry, st).GetLiveSession("room-del")
	assert.False(t, ok, "the live hub is gone after delete")

	rec, err := st.LoadState(context.Background(), "room-del")
	require.NoError(t, err)
	assert.Nil(t, rec, "the persisted snapshot is deleted too")
}

func TestHealth_ReportsLiveCounts(t *testing.T) {
	f := newRouterFixture(t, store.NewMemoryStore())

	f.registry.Join("room-health", nullPeer{id: "u1"}, domain.Principal{UserID: "u1", DisplayName: "Ada"}, "")

	req := testutil.NewRequest(t, http.MethodGet, "/health")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "healthy")
	testutil.AssertJSONContains(t, rr, "active_sessions", float64(1))
}
