package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/types"
)

// AuthManager issues and validates bearer tokens for configured API clients.
type AuthManager struct {
	clients   map[string]config.ClientCredential
	jwtSecret []byte
	tokenTTL  time.Duration
}

// Claims represents JWT claims
type Claims struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthManager creates a new authentication manager from server configuration.
func NewAuthManager(cfg *config.ServerConfig) *AuthManager {
	clients := make(map[string]config.ClientCredential, len(cfg.Clients))
	for _, cred := range cfg.Clients {
		clients[cred.ID] = cred
	}

	return &AuthManager{
		clients:   clients,
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  cfg.TokenTTL,
	}
}

// Authenticate verifies client credentials and returns the configured role.
func (am *AuthManager) Authenticate(clientID, clientSecret string) (types.Role, error) {
	cred, exists := am.clients[clientID]
	if !exists {
		return "", fmt.Errorf("unknown client")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(clientSecret)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	return types.Role(cred.Role), nil
}

// GenerateJWT generates a signed token for an authenticated client.
func (am *AuthManager) GenerateJWT(clientID string, role types.Role) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(am.tokenTTL)

	claims := &Claims{
		ClientID: clientID,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "userdir-api",
			Subject:   clientID,
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(am.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateJWT validates a token and returns the claims
func (am *AuthManager) ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// issueToken handles client authentication and token issuance
func (s *Server) issueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Invalid request format",
			Error:   err.Error(),
		})
		return
	}

	role, err := s.authManager.Authenticate(req.ClientID, req.ClientSecret)
	if err != nil {
		s.logger.Warn("token issuance refused", map[string]interface{}{
			"client_id": req.ClientID,
		})
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    http.StatusUnauthorized,
			Message: "Authentication failed",
			Error:   err.Error(),
		})
		return
	}

	token, expiresAt, err := s.authManager.GenerateJWT(req.ClientID, role)
	if err != nil {
		s.handleError(c, "Failed to generate token", err)
		return
	}

	response := TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		Role:        string(role),
	}

	c.JSON(http.StatusOK, BaseResponse[TokenResponse]{
		Code:    http.StatusOK,
		Message: "Token issued successfully",
		Data:    &response,
	})
}

// jwtAuthMiddleware authenticates every request outside the public endpoints
// and propagates client identity into the request context.
func (s *Server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.isPublicEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		tokenString := extractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "No token provided",
			})
			return
		}

		claims, err := s.authManager.ValidateJWT(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "Invalid token",
				Error:   err.Error(),
			})
			return
		}

		c.Set("client_id", claims.ClientID)
		c.Set("role", claims.Role)

		// Carry identity on the request context so the registry and its
		// audit trail see it downstream of the HTTP layer.
		ctx := context.WithValue(c.Request.Context(), types.ContextKeyClientID, claims.ClientID)
		ctx = context.WithValue(ctx, types.ContextKeyRole, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// requireEditor gates mutating routes on the editor role.
func (s *Server) requireEditor() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := types.Role(c.GetString("role"))
		if !role.CanWrite() {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Code:    http.StatusForbidden,
				Message: "Insufficient role",
				Details: "this operation requires the editor role",
			})
			return
		}
		c.Next()
	}
}

// Helper functions

func extractTokenFromHeader(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}

func (s *Server) isPublicEndpoint(path string) bool {
	publicPaths := []string{
		"/health",
		"/auth/token",
	}

	for _, publicPath := range publicPaths {
		if path == publicPath {
			return true
		}
	}

	return false
}
