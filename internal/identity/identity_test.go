package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/serenitybot/serenity/internal/store"
)

func newFirebase(t *testing.T, handler http.HandlerFunc) *FirebaseProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewFirebaseProvider("test-key", WithEndpoint(srv.URL), WithRetry(3, time.Millisecond))
	require.NoError(t, err)
	return p
}

func TestFirebase_SignUp(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	p := newFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"localId": "uid-1", "email": "a@b.c", "idToken": "tok"})
	})

	u, err := p.SignUp(context.Background(), "a@b.c", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", u.ID)
	assert.Equal(t, "a@b.c", u.Email)
	assert.Equal(t, "tok", u.IDToken)
	assert.False(t, u.Anonymous)

	assert.Equal(t, "/accounts:signUp", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, true, gotBody["returnSecureToken"])
	assert.Equal(t, "a@b.c", gotBody["email"])
}

func TestFirebase_LoginAndAnonymous(t *testing.T) {
	var paths []string
	p := newFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"localId": "uid-2"})
	})

	_, err := p.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	u, err := p.Anonymous(context.Background())
	require.NoError(t, err)
	assert.True(t, u.Anonymous)
	assert.Equal(t, []string{"/accounts:signInWithPassword", "/accounts:signUp"}, paths)
}

func TestFirebase_ClientErrorSurfacedVerbatimWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	body := `{"error":{"code":400,"message":"EMAIL_EXISTS"}}`
	p := newFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	})

	_, err := p.SignUp(context.Background(), "a@b.c", "pw")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr), "error = %v", err)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.Equal(t, body, perr.Body)
	assert.Equal(t, "EMAIL_EXISTS", perr.Message())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFirebase_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	p := newFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"localId": "uid-3"})
	})

	u, err := p.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "uid-3", u.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFirebase_RequiresCredentials(t *testing.T) {
	p := newFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := p.SignUp(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrEmailRequired)
	_, err = p.Login(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = NewFirebaseProvider(" ")
	assert.Error(t, err)
}

func newLocal(t *testing.T) *LocalProvider {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "id.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	p := NewLocalProvider(s)
	p.SetCost(bcrypt.MinCost)
	return p
}

func TestLocal_SignUpLogin(t *testing.T) {
	p := newLocal(t)
	ctx := context.Background()

	u, err := p.SignUp(ctx, " Teen@Example.com ", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "teen@example.com", u.Email)

	_, err = p.SignUp(ctx, "teen@example.com", "other")
	assert.ErrorIs(t, err, ErrEmailExists)

	got, err := p.Login(ctx, "TEEN@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = p.Login(ctx, "teen@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.Login(ctx, "ghost@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLocal_Anonymous(t *testing.T) {
	p := newLocal(t)
	a, err := p.Anonymous(context.Background())
	require.NoError(t, err)
	b, err := p.Anonymous(context.Background())
	require.NoError(t, err)
	assert.True(t, a.Anonymous)
	assert.NotEqual(t, a.ID, b.ID)
}
