package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/types"
)

func TestIssueToken(t *testing.T) {
	s := setupServer(t, newFakeRegistry(), nil, nil)

	t.Run("Editor", func(t *testing.T) {
		body := map[string]string{"client_id": editorClientID, "client_secret": editorSecret}
		w := doRequest(s, http.MethodPost, "/auth/token", "", body)
		require.Equal(t, http.StatusOK, w.Code)

		var resp BaseResponse[TokenResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Data)
		assert.NotEmpty(t, resp.Data.AccessToken)
		assert.Equal(t, "Bearer", resp.Data.TokenType)
		assert.Equal(t, "editor", resp.Data.Role)
		assert.Greater(t, resp.Data.ExpiresIn, int64(0))
	})

	t.Run("Viewer", func(t *testing.T) {
		body := map[string]string{"client_id": viewerClientID, "client_secret": viewerSecret}
		w := doRequest(s, http.MethodPost, "/auth/token", "", body)
		require.Equal(t, http.StatusOK, w.Code)

		var resp BaseResponse[TokenResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "viewer", resp.Data.Role)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		body := map[string]string{"client_id": editorClientID, "client_secret": "wrong"}
		w := doRequest(s, http.MethodPost, "/auth/token", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("UnknownClient", func(t *testing.T) {
		body := map[string]string{"client_id": "nobody", "client_secret": "whatever"}
		w := doRequest(s, http.MethodPost, "/auth/token", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("MissingFields", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/auth/token", "", map[string]string{"client_id": editorClientID})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthManager_Authenticate(t *testing.T) {
	cfg := testConfig(t)
	am := NewAuthManager(&cfg.Server)

	t.Run("Valid", func(t *testing.T) {
		role, err := am.Authenticate(viewerClientID, viewerSecret)
		require.NoError(t, err)
		assert.Equal(t, types.RoleViewer, role)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		_, err := am.Authenticate(viewerClientID, "nope")
		assert.Error(t, err)
	})

	t.Run("UnknownClient", func(t *testing.T) {
		_, err := am.Authenticate("ghost", "nope")
		assert.Error(t, err)
	})
}

func TestAuthManager_JWTRoundtrip(t *testing.T) {
	cfg := testConfig(t)
	am := NewAuthManager(&cfg.Server)

	token, expiresAt, err := am.GenerateJWT("backoffice", types.RoleEditor)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := am.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "backoffice", claims.ClientID)
	assert.Equal(t, "editor", claims.Role)
	assert.Equal(t, "userdir-api", claims.Issuer)
}

func TestAuthManager_ExpiredToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.TokenTTL = -time.Minute
	am := NewAuthManager(&cfg.Server)

	token, _, err := am.GenerateJWT("backoffice", types.RoleEditor)
	require.NoError(t, err)

	_, err = am.ValidateJWT(token)
	assert.Error(t, err)
}

func TestAuthManager_WrongSigningKey(t *testing.T) {
	cfg := testConfig(t)
	am := NewAuthManager(&cfg.Server)

	other := config.NewServerConfig()
	other.JWTSecret = "another-secret-entirely-0123456789"
	otherAM := NewAuthManager(&other)

	token, _, err := otherAM.GenerateJWT("backoffice", types.RoleEditor)
	require.NoError(t, err)

	_, err = am.ValidateJWT(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"Empty", "", ""},
		{"Bearer", "Bearer abc123", "abc123"},
		{"LowercaseBearer", "bearer abc123", "abc123"},
		{"NoScheme", "abc123", ""},
		{"WrongScheme", "Basic abc123", ""},
		{"SchemeOnly", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractTokenFromHeader(tt.header))
		})
	}
}

func TestServer_Authentication(t *testing.T) {
	s := setupServer(t, newFakeRegistry(), nil, nil)

	t.Run("NoToken", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/users", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/users", "Bearer not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ValidToken", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/users", viewerToken(t, s), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("HealthIsPublic", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("TokenEndpointIsPublic", func(t *testing.T) {
		// 400 for the empty body, not 401
		w := doRequest(s, http.MethodPost, "/auth/token", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_RoleGating(t *testing.T) {
	registry := newFakeRegistry(types.User{ID: 1, Name: "Alice"})
	s := setupServer(t, registry, nil, nil)

	createBody := map[string]interface{}{
		"name":     "Frank",
		"username": "frankz",
		"email":    "frank@example.com",
	}

	t.Run("ViewerCannotCreate", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/users", viewerToken(t, s), createBody)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("ViewerCannotUpdate", func(t *testing.T) {
		w := doRequest(s, http.MethodPatch, "/users/1", viewerToken(t, s), map[string]interface{}{"name": "x"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("ViewerCanRead", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/users/1", viewerToken(t, s), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("EditorCanCreate", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/users", editorToken(t, s), createBody)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("EditorCanRead", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/users", editorToken(t, s), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
