package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/scottscharl/scottystack/internal/backend"
	"github.com/scottscharl/scottystack/pkg/models"
	"github.com/scottscharl/scottystack/pkg/models/passwd"
	"github.com/scottscharl/scottystack/pkg/translate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *backend.Client) {
	t.Helper()
	opts = append([]Option{WithHasher(passwd.Hasher{Cost: bcrypt.MinCost}), WithSecret("test-secret")}, opts...)
	s := New(opts...)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, backend.New(srv.URL)
}

func postJSON(t *testing.T, url string, body any, header http.Header) (*http.Response, ErrorResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestServer_Health(t *testing.T) {
	_, c := newTestServer(t)
	assert.NoError(t, c.Health(context.Background()))
}

func TestServer_RegisterLoginRefresh(t *testing.T) {
	ctx := context.Background()
	s, c := newTestServer(t)

	rec, err := c.CreateUser(ctx, "a@b.com", "password1", "password1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", rec.Email)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Created.IsZero())
	assert.Equal(t, 1, s.Users())

	auth, err := c.AuthWithPassword(ctx, "a@b.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, auth.Record.ID)

	sess, err := models.NewSession(auth.Token, &auth.Record)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	require.True(t, s.SetVerified("a@b.com", true))
	refreshed, err := c.AuthRefresh(ctx, auth.Token)
	require.NoError(t, err)
	assert.NotEqual(t, auth.Token, refreshed.Token)
	assert.Equal(t, rec.ID, refreshed.Record.ID)
	assert.True(t, refreshed.Record.Verified)
}

func TestServer_LoginFailures(t *testing.T) {
	ctx := context.Background()
	_, c := newTestServer(t)
	_, err := c.CreateUser(ctx, "a@b.com", "password1", "password1")
	require.NoError(t, err)

	for _, creds := range [][2]string{
		{"a@b.com", "wrongpass"},
		{"nobody@b.com", "password1"},
		{"", ""},
	} {
		_, err := c.AuthWithPassword(ctx, creds[0], creds[1])
		require.Error(t, err)
		kind, msg := translate.Translate(err.Error())
		assert.Equal(t, models.KindInvalidCredentials, kind, creds)
		assert.Equal(t, "Invalid email or password. Please try again.", msg)
	}
}

func TestServer_CreateValidation(t *testing.T) {
	ctx := context.Background()
	_, c := newTestServer(t)
	_, err := c.CreateUser(ctx, "taken@b.com", "password1", "password1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		confirm  string
		wantCode map[string]string
		wantKind models.ErrorKind
	}{
		{
			name:     "Malformed email",
			email:    "not-an-email",
			password: "password1",
			confirm:  "password1",
			wantCode: map[string]string{"email": CodeIsEmail},
			wantKind: models.KindInvalidInput,
		},
		{
			name:     "Duplicate email",
			email:    "taken@b.com",
			password: "password1",
			confirm:  "password1",
			wantCode: map[string]string{"email": CodeNotUnique},
			wantKind: models.KindDuplicateAccount,
		},
		{
			name:     "Short password",
			email:    "new@b.com",
			password: "short",
			confirm:  "short",
			wantCode: map[string]string{"password": CodeLengthOutRange},
			wantKind: models.KindInvalidInput,
		},
		{
			name:     "Mismatched confirmation",
			email:    "new@b.com",
			password: "password1",
			confirm:  "password2",
			wantCode: map[string]string{"passwordConfirm": CodeValuesMismatch},
			wantKind: models.KindUnknown,
		},
		{
			name:     "Blank",
			email:    "",
			password: "",
			confirm:  "",
			wantCode: map[string]string{"email": CodeRequired, "password": CodeRequired},
			wantKind: models.KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateUser(ctx, tt.email, tt.password, tt.confirm)
			var rerr *backend.ResponseError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, http.StatusBadRequest, rerr.Status)
			assert.Equal(t, "Failed to create record.", rerr.Message)

			got := map[string]string{}
			for field, fe := range rerr.Data {
				got[field] = fe.Code
			}
			assert.Equal(t, tt.wantCode, got)

			kind, _ := translate.Translate(err.Error())
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestServer_RefreshRejections(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Now())
	_, c := newTestServer(t, WithClock(clock), WithTokenTTL(10*time.Minute))
	_, err := c.CreateUser(ctx, "a@b.com", "password1", "password1")
	require.NoError(t, err)
	auth, err := c.AuthWithPassword(ctx, "a@b.com", "password1")
	require.NoError(t, err)

	other := New(WithSecret("other-secret"), WithHasher(passwd.Hasher{Cost: bcrypt.MinCost}))
	forged, err := other.issueToken(&user{ID: auth.Record.ID})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"Missing":       "",
		"Garbage":       "not-a-token",
		"Wrong signing": forged,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.AuthRefresh(ctx, token)
			var rerr *backend.ResponseError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, http.StatusUnauthorized, rerr.Status)

			kind, _ := translate.Translate(err.Error())
			assert.Equal(t, models.KindUnauthorized, kind)
		})
	}

	clock.Advance(11 * time.Minute)
	_, err = c.AuthRefresh(ctx, auth.Token)
	var rerr *backend.ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusUnauthorized, rerr.Status)
}

func TestServer_UnknownCollection(t *testing.T) {
	s := New(WithHasher(passwd.Hasher{Cost: bcrypt.MinCost}))
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/api/collections/admins/auth-with-password",
		map[string]string{"identity": "a@b.com", "password": "password1"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Missing collection context.", body.Message)
}

func TestServer_BearerPrefix(t *testing.T) {
	ctx := context.Background()
	s := New(WithHasher(passwd.Hasher{Cost: bcrypt.MinCost}))
	srv := httptest.NewServer(s)
	defer srv.Close()
	c := backend.New(srv.URL)

	_, err := c.CreateUser(ctx, "a@b.com", "password1", "password1")
	require.NoError(t, err)
	auth, err := c.AuthWithPassword(ctx, "a@b.com", "password1")
	require.NoError(t, err)

	resp, _ := postJSON(t, srv.URL+"/api/collections/users/auth-refresh", map[string]string{},
		http.Header{"Authorization": {"Bearer " + auth.Token}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_InvalidJSON(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/collections/users/records", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
