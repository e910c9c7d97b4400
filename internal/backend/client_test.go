package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scottscharl/scottystack/pkg/translate"
	"github.com/scottscharl/scottystack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_AuthWithPassword(t *testing.T) {
	var gotBody map[string]string
	var gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/collections/users/auth-with-password", r.URL.Path)
		gotRequestID = r.Header.Get("X-Request-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "tok",
			"record": map[string]any{
				"id":       "rec1",
				"email":    "a@b.com",
				"verified": true,
				"created":  "2024-03-01 10:20:30.123Z",
				"updated":  "2024-03-01 10:20:30.123Z",
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	resp, err := c.AuthWithPassword(context.Background(), "a@b.com", "password1")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"identity": "a@b.com", "password": "password1"}, gotBody)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, "rec1", resp.Record.ID)
	assert.Equal(t, "a@b.com", resp.Record.Email)
	assert.True(t, resp.Record.Verified)
	assert.Equal(t, 2024, resp.Record.Created.Year())
	assert.Equal(t, srv.URL, c.BaseURL())
}

func TestClient_CreateUser(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/collections/members/records", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusOK, map[string]any{"id": "rec2", "email": gotBody["email"]})
	}))
	defer srv.Close()

	c := New(srv.URL, WithCollection("members"))
	id, err := c.CreateUser(context.Background(), "a@b.com", "password1", "password1")
	require.NoError(t, err)

	assert.Equal(t, "password1", gotBody["passwordConfirm"])
	assert.Equal(t, "rec2", id.ID)
}

func TestClient_AuthRefreshSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/collections/users/auth-refresh", r.URL.Path)
		if r.Header.Get("Authorization") != "old-token" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"code":    401,
				"message": "The request requires valid record authorization token to be set.",
				"data":    map[string]any{},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": "new-token", "record": map[string]any{"id": "rec1"}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.AuthRefresh(context.Background(), "old-token")
	require.NoError(t, err)
	assert.Equal(t, "new-token", resp.Token)

	_, err = c.AuthRefresh(context.Background(), "wrong")
	var rerr *ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusUnauthorized, rerr.Status)
	assert.NotEmpty(t, rerr.RequestID)

	kind, _ := translate.Translate(err.Error())
	assert.Equal(t, models.KindUnauthorized, kind)
}

func TestClient_ValidationErrorText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    400,
			"message": "Failed to create record.",
			"data": map[string]any{
				"password": map[string]string{"code": "validation_length_out_of_range", "message": "Must be at least 8 character(s)."},
				"email":    map[string]string{"code": "validation_not_unique", "message": "Value must be unique."},
			},
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateUser(context.Background(), "a@b.com", "short", "short")
	require.Error(t, err)
	assert.Equal(t,
		"Failed to create record. (400 Bad Request) email: validation_not_unique; password: validation_length_out_of_range",
		err.Error())
	assert.False(t, IsTransport(err))

	// the duplicate rule outranks the password length rule
	kind, _ := translate.Translate(err.Error())
	assert.Equal(t, models.KindDuplicateAccount, kind)
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).Health(context.Background())
	var rerr *ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusBadGateway, rerr.Status)
	assert.Equal(t, "upstream exploded", rerr.Message)
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).AuthWithPassword(context.Background(), "a@b.com", "password1")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Contains(t, err.Error(), "NetworkError")

	kind, _ := translate.Translate(err.Error())
	assert.Equal(t, models.KindTransport, kind)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).AuthWithPassword(context.Background(), "a@b.com", "password1")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Timeout)

	_, msg := translate.Translate(err.Error())
	assert.Equal(t, "The request timed out. Please try again.", msg)
}

func TestIsTemporary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "Transport", err: &TransportError{Err: errors.New("connection refused")}, want: true},
		{name: "Service unavailable", err: &ResponseError{Status: http.StatusServiceUnavailable}, want: true},
		{name: "Internal error", err: &ResponseError{Status: http.StatusInternalServerError}, want: true},
		{name: "Rate limited", err: &ResponseError{Status: http.StatusTooManyRequests}, want: true},
		{name: "Unauthorized", err: &ResponseError{Status: http.StatusUnauthorized}, want: false},
		{name: "Forbidden", err: &ResponseError{Status: http.StatusForbidden}, want: false},
		{name: "Not found", err: &ResponseError{Status: http.StatusNotFound}, want: false},
		{name: "Other", err: errors.New("bad token"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTemporary(tt.err))
		})
	}
}
