package fetchadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basestub/basestub/pkg/auth"
	"github.com/basestub/basestub/pkg/authrouter"
	"github.com/basestub/basestub/pkg/datarouter"
	"github.com/basestub/basestub/pkg/rls"
	"github.com/basestub/basestub/pkg/schema"
	"github.com/basestub/basestub/pkg/sqlengine"
	"github.com/basestub/basestub/pkg/storageblob"
	"github.com/basestub/basestub/pkg/storagehandler"
	"github.com/basestub/basestub/pkg/storagerouter"
)

const localHost = "project.supabase.local"

// newStack wires the full emulator the way cmd/basestub does, minus
// the listener.
func newStack(t *testing.T) (*Adapter, *rls.PolicyStore, *sqlengine.Engine) {
	t.Helper()
	ctx := context.Background()

	engine, err := sqlengine.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	require.NoError(t, schema.InstallAuthSchema(ctx, engine))
	require.NoError(t, schema.InstallStorageSchema(ctx, engine))
	require.NoError(t, schema.RegisterFunctions(ctx, engine))

	store := auth.NewStore(engine)
	handler := auth.NewHandler(store)
	policies := rls.NewPolicyStore()

	dataRouter, err := datarouter.New(engine, nil, policies, store)
	require.NoError(t, err)

	storageHandler := storagehandler.New(engine, storageblob.NewMemoryBackend(), store)

	adapter, err := New(Options{
		SupabaseURL:   "http://" + localHost,
		AuthRouter:    authrouter.New(handler),
		DataRouter:    dataRouter,
		StorageRouter: storagerouter.New(storageHandler, engine, store),
		Passthrough: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Passthrough", "1")
			w.WriteHeader(http.StatusOK)
		}),
	})
	require.NoError(t, err)
	return adapter, policies, engine
}

func request(t *testing.T, a *Adapter, method, target, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "http://"+localHost+target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)
	return rec
}

func TestForeignHostPassesThrough(t *testing.T) {
	a, _, _ := newStack(t)

	req := httptest.NewRequest("GET", "https://api.github.com/rest/v1/notes", nil)
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)

	assert.Equal(t, "1", rec.Header().Get("X-Passthrough"))
}

func TestUnknownLocalPathPassesThrough(t *testing.T) {
	a, _, _ := newStack(t)

	rec := request(t, a, "GET", "/functions/v1/hello", "", "", nil)
	assert.Equal(t, "1", rec.Header().Get("X-Passthrough"))
}

func TestStoragePassesThroughWhenDisabled(t *testing.T) {
	a, err := New(Options{
		SupabaseURL: "http://" + localHost,
		Passthrough: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Passthrough", "1")
		}),
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "http://"+localHost+"/storage/v1/bucket", nil)
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)
	assert.Equal(t, "1", rec.Header().Get("X-Passthrough"))
}

func TestPanicBecomes500(t *testing.T) {
	a, err := New(Options{
		SupabaseURL: "http://" + localHost,
		AuthRouter: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}),
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "http://"+localHost+"/auth/v1/signup", nil)
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

// TestEndToEndAuthDataStorage runs the emulator's flagship scenario:
// two users sign up, row-level security isolates their notes, and a
// private bucket round-trips bytes through upload, signed URL, and
// download.
func TestEndToEndAuthDataStorage(t *testing.T) {
	a, policies, engine := newStack(t)
	ctx := context.Background()

	_, err := engine.Exec(ctx, `CREATE TABLE notes (user_id TEXT, body TEXT)`)
	require.NoError(t, err)
	policies.EnableRLS("notes")
	require.NoError(t, policies.Register(rls.Policy{
		Name:  "notes_owner",
		Table: "notes",
		Using: `auth_uid() = "user_id"`,
	}))

	signUp := func(email string) (token, userID string) {
		rec := request(t, a, "POST", "/auth/v1/signup", "",
			`{"email":"`+email+`","password":"p123456"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			AccessToken string `json:"access_token"`
			User        struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp.AccessToken, resp.User.ID
	}

	aliceToken, aliceID := signUp("alice@example.com")
	bobToken, _ := signUp("bob@example.com")

	rec := request(t, a, "POST", "/rest/v1/notes", aliceToken,
		`{"user_id":"`+aliceID+`","body":"x"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = request(t, a, "GET", "/rest/v1/notes?select=*", bobToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = request(t, a, "GET", "/rest/v1/notes?select=*", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, aliceID, rows[0]["user_id"])

	// storage round trip through the same adapter
	rec = request(t, a, "POST", "/storage/v1/bucket", aliceToken, `{"id":"d"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, a, "POST", "/storage/v1/object/d/report.pdf", aliceToken, "%PDF",
		map[string]string{"Content-Type": "application/pdf"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = request(t, a, "POST", "/storage/v1/object/sign/d/report.pdf", aliceToken,
		`{"expiresIn":60}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signed))

	rec = request(t, a, "GET", "/storage/v1"+signed.SignedURL, "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF", rec.Body.String())
}
