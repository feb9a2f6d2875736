package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/psichat/client-go/internal/config"
	"github.com/psichat/client-go/internal/domain"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(config.APIConfig{BaseURL: srv.URL, Timeout: time.Second}), srv
}

func TestLogin(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ana@example.com", body["email"])

		json.NewEncoder(w).Encode(AuthResponse{
			AccessToken: "tok",
			User:        domain.User{ID: 1, Name: "Ana", Email: "ana@example.com", Role: "estudiante"},
		})
	}))
	defer srv.Close()

	out, err := client.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "tok", out.AccessToken)
	require.EqualValues(t, 1, out.User.ID)
}

func TestLoginRejected(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := client.Login(context.Background(), "ana@example.com", "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestMeSendsBearerToken(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/me", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(domain.User{ID: 1, Name: "Ana"})
	}))
	defer srv.Close()

	user, err := client.Me(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "Ana", user.Name)
}

func TestMeExpiredToken(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := client.Me(context.Background(), "stale")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestErrorDetailSurfaces(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"detail": "email already registered"})
	}))
	defer srv.Close()

	_, err := client.Register(context.Background(), RegisterRequest{Email: "ana@example.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "email already registered")
}

func TestSessionMessages(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tutor-chat/session/4/messages", r.URL.Path)
		json.NewEncoder(w).Encode([]domain.Message{
			{ID: 1, SessionID: 4, Text: "hola", Sender: domain.RoleUser},
			{ID: 2, SessionID: 4, Text: "buenas", Sender: domain.RoleTutor},
		})
	}))
	defer srv.Close()

	msgs, err := client.SessionMessages(context.Background(), "tok", 4)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, domain.RoleTutor, msgs[1].Sender)
}
