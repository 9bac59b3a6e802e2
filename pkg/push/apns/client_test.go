package apns_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/push/apns"
)

func testPrivateKeyPEM(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})), key
}

func newClient(t *testing.T, srv *httptest.Server) *apns.Client {
	t.Helper()

	keyPEM, _ := testPrivateKeyPEM(t)
	client, err := apns.New(apns.Config{
		KeyID:      "KEY123",
		TeamID:     "TEAM456",
		PrivateKey: keyPEM,
		Topic:      "com.example.app",
	}, apns.WithHost(srv.URL), apns.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return client
}

func TestClient_Unconfigured(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client, err := apns.New(apns.Config{}, apns.WithHost(srv.URL), apns.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	assert.False(t, client.Configured())

	res, err := client.Send(context.Background(), []string{"a", "b", "c", "d", "e"}, push.Payload{})
	require.NoError(t, err)

	assert.Zero(t, res.DeliveredTo)
	assert.Equal(t, 5, res.FailedCount)
	assert.Equal(t, int64(0), calls.Load(), "unconfigured client must not contact the provider")
	for _, r := range res.Results {
		assert.Equal(t, push.CodeAPNSNotConfigured, r.Error.Code)
	}
}

func TestClient_InvalidKey(t *testing.T) {
	t.Parallel()

	_, err := apns.New(apns.Config{
		KeyID:      "k",
		TeamID:     "t",
		PrivateKey: "not a pem key",
	})
	assert.ErrorIs(t, err, apns.ErrInvalidPrivateKey)
}

func TestClient_Send(t *testing.T) {
	t.Parallel()

	t.Run("delivers and maps headers", func(t *testing.T) {
		t.Parallel()

		badge := 3
		var gotReq *http.Request
		var gotBody map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotReq = r.Clone(context.Background())
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := newClient(t, srv)
		res, err := client.Send(context.Background(), []string{"dev-token"}, push.Payload{
			Title:       "Timetable changed",
			Body:        "Third period moved",
			Badge:       &badge,
			Sound:       "default",
			Priority:    push.PriorityHigh,
			CollapseKey: "timetable",
			Data:        map[string]any{"week": 12},
		})
		require.NoError(t, err)

		assert.Equal(t, 1, res.DeliveredTo)
		assert.Zero(t, res.FailedCount)

		require.NotNil(t, gotReq)
		assert.True(t, strings.HasSuffix(gotReq.URL.Path, "/3/device/dev-token"))
		assert.Equal(t, "com.example.app", gotReq.Header.Get("apns-topic"))
		assert.Equal(t, "10", gotReq.Header.Get("apns-priority"))
		assert.Equal(t, "timetable", gotReq.Header.Get("apns-collapse-id"))
		assert.True(t, strings.HasPrefix(gotReq.Header.Get("authorization"), "bearer "))

		aps, ok := gotBody["aps"].(map[string]any)
		require.True(t, ok)
		alert := aps["alert"].(map[string]any)
		assert.Equal(t, "Timetable changed", alert["title"])
		assert.Equal(t, "Third period moved", alert["body"])
		assert.EqualValues(t, 3, aps["badge"])
		assert.Equal(t, "default", aps["sound"])
		assert.EqualValues(t, 12, gotBody["week"])
	})

	t.Run("normal priority maps to 5", func(t *testing.T) {
		t.Parallel()

		var priority string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			priority = r.Header.Get("apns-priority")
		}))
		defer srv.Close()

		client := newClient(t, srv)
		_, err := client.Send(context.Background(), []string{"t"}, push.Payload{Priority: push.PriorityNormal})
		require.NoError(t, err)
		assert.Equal(t, "5", priority)
	})

	t.Run("410 marks the token invalid", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/gone") {
				w.WriteHeader(http.StatusGone)
				_ = json.NewEncoder(w).Encode(map[string]string{"reason": "Unregistered"})
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := newClient(t, srv)
		res, err := client.Send(context.Background(), []string{"ok", "gone"}, push.Payload{})
		require.NoError(t, err)

		assert.Equal(t, 1, res.DeliveredTo)
		assert.Equal(t, 1, res.FailedCount)
		assert.Equal(t, []string{"gone"}, res.InvalidTokens)
	})

	t.Run("status code mapping", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			status int
			code   push.Code
		}{
			{http.StatusBadRequest, push.CodeBadRequest},
			{http.StatusForbidden, push.CodeForbidden},
			{http.StatusMethodNotAllowed, push.CodeMethodNotAllowed},
			{http.StatusGone, push.CodeUnregisteredToken},
			{http.StatusRequestEntityTooLarge, push.CodePayloadTooLarge},
			{http.StatusTooManyRequests, push.CodeTooManyRequests},
			{http.StatusInternalServerError, push.CodeServerError},
			{http.StatusServiceUnavailable, push.CodeServerError},
			{http.StatusTeapot, push.CodeUnknownError},
		}

		for _, tt := range tests {
			t.Run(string(tt.code), func(t *testing.T) {
				t.Parallel()

				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
				}))
				defer srv.Close()

				res, err := newClient(t, srv).Send(context.Background(), []string{"t"}, push.Payload{})
				require.NoError(t, err)
				require.Len(t, res.Results, 1)
				assert.Equal(t, tt.code, res.Results[0].Error.Code)
			})
		}
	})

	t.Run("counters add up across chunks", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if calls.Load()%3 == 0 {
				w.WriteHeader(http.StatusInternalServerError)
			}
		}))
		defer srv.Close()

		tokens := make([]string, 600)
		for i := range tokens {
			tokens[i] = "token"
		}
		res, err := newClient(t, srv).Send(context.Background(), tokens, push.Payload{})
		require.NoError(t, err)

		assert.Equal(t, 600, res.TotalDevices)
		assert.Equal(t, 600, res.DeliveredTo+res.FailedCount)
	})
}

func TestProviderToken_Bearer(t *testing.T) {
	t.Parallel()

	keyPEM, key := testPrivateKeyPEM(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("authorization"), "bearer ")
		tok, err := jwt.Parse(bearer, func(tok *jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"ES256"}))
		require.NoError(t, err)
		assert.Equal(t, "KEY123", tok.Header["kid"])
		iss, err := tok.Claims.GetIssuer()
		require.NoError(t, err)
		assert.Equal(t, "TEAM456", iss)
	}))
	defer srv.Close()

	client, err := apns.New(apns.Config{
		KeyID:      "KEY123",
		TeamID:     "TEAM456",
		PrivateKey: keyPEM,
	}, apns.WithHost(srv.URL), apns.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = client.Send(context.Background(), []string{"t"}, push.Payload{})
	require.NoError(t, err)
}
