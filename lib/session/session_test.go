package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type authFunc func(ctx context.Context, s *Session) error

func (f authFunc) Authenticate(ctx context.Context, s *Session) error {
	return f(ctx, s)
}

func TestAuthenticatorFailureWrapsAuthenticationFailed(t *testing.T) {
	cause := fmt.Errorf("the portal said no")
	_, err := New(context.Background(), Options{
		Tenant:  "gwsc",
		BaseUrl: "https://gwsc.example.com",
	}, authFunc(func(ctx context.Context, s *Session) error {
		return cause
	}))
	require.ErrorIs(t, err, AuthenticationFailed)
	require.ErrorIs(t, err, cause)
}

func TestCloudflareBypassInjectsBrowserHeaders(t *testing.T) {
	var acceptLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acceptLanguage = r.Header.Get("Accept-Language")
	}))
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Options{
		Tenant:           "gwsc",
		BaseUrl:          srv.URL,
		CloudflareBypass: true,
	}, authFunc(func(ctx context.Context, s *Session) error {
		return nil
	}))
	require.NoError(t, err)

	_, err = s.Http.R().Get("/")
	require.NoError(t, err)
	// the bypass transport fills in the browser headers cloudflare
	// fingerprints on
	require.NotEmpty(t, acceptLanguage)
}

func TestCookiesSurviveIntoRequests(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("ASP.NET_SessionId")
		if err == nil {
			got = c.Value
		}
	}))
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Options{
		Tenant:      "gwsc",
		BaseUrl:     srv.URL,
		MinInterval: time.Millisecond,
	}, authFunc(func(ctx context.Context, s *Session) error {
		s.SetCookies([]*http.Cookie{{Name: "ASP.NET_SessionId", Value: "abc"}})
		return nil
	}))
	require.NoError(t, err)

	_, err = s.Http.R().Get("/")
	require.NoError(t, err)
	require.Equal(t, "abc", got)

	require.False(t, s.LastDispatch().IsZero())
}
