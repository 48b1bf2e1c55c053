package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"ledger-api/pkg/errors"
)

// AuthMiddleware validates JWT tokens on incoming requests.
type AuthMiddleware struct {
	jwtSecret      []byte
	issuer         string
	internalAPIKey string
	skipPaths      map[string]bool
}

// Claims carries the identity encoded in an access token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthMiddleware(jwtSecret, issuer, internalAPIKey string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret:      []byte(jwtSecret),
		issuer:         issuer,
		internalAPIKey: internalAPIKey,
		skipPaths: map[string]bool{
			"/health":  true,
			"/metrics": true,
		},
	}
}

// ServiceAuth authenticates service-to-service callbacks with the shared
// internal key. The deposit confirmation sent by the payment collaborator
// uses this instead of a user token.
func (m *AuthMiddleware) ServiceAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if m.internalAPIKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(m.internalAPIKey)) != 1 {
			abortWithError(c, errors.NewUnauthorizedError("Invalid service credentials"))
			return
		}

		c.Set("role", "service")
		c.Next()
	}
}

// JWTAuth authenticates requests using a Bearer token and stores the
// parsed claims in the gin context.
func (m *AuthMiddleware) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		tokenString, err := extractToken(c)
		if err != nil {
			abortWithError(c, err)
			return
		}

		claims, err := m.parseToken(tokenString)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// AdminAuth requires an authenticated user with the admin role. It must
// run after JWTAuth.
func (m *AuthMiddleware) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists || role != "admin" {
			abortWithError(c, errors.NewForbiddenError("Admin access required"))
			return
		}
		c.Next()
	}
}

// ValidateUserAccess ensures a user can only operate on their own
// resources. Admins bypass the check.
func (m *AuthMiddleware) ValidateUserAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		if role == "admin" {
			c.Next()
			return
		}

		param := c.Param("userId")
		if param == "" {
			c.Next()
			return
		}

		requestedID, err := strconv.ParseInt(param, 10, 64)
		if err != nil {
			abortWithError(c, errors.NewValidationError("Invalid user ID", err.Error()))
			return
		}

		userID, exists := c.Get("user_id")
		if !exists || userID.(int64) != requestedID {
			abortWithError(c, errors.NewForbiddenError("Access denied to this resource"))
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.NewUnauthorizedError("Unexpected signing method")
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		return nil, errors.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.NewUnauthorizedError("Invalid token claims")
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, errors.NewUnauthorizedError("Invalid token issuer")
	}
	return claims, nil
}

// GenerateJWT issues a signed access token. Used by tests and internal
// tooling.
func (m *AuthMiddleware) GenerateJWT(userID int64, username, role string, expiry time.Duration) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.jwtSecret)
}

func extractToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errors.NewUnauthorizedError("Authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.NewUnauthorizedError("Invalid authorization header format")
	}
	return parts[1], nil
}

func abortWithError(c *gin.Context, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		c.AbortWithStatusJSON(appErr.Code, gin.H{
			"error":   http.StatusText(appErr.Code),
			"message": appErr.Message,
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal Server Error",
		"message": err.Error(),
	})
}
