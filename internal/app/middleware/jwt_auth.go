package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

// JWTConfig holds JWT authentication configuration
type JWTConfig struct {
	SecretKey       string
	TokenExpiration time.Duration
	Logger          *zap.Logger
	Optional        bool // If true, missing/invalid tokens won't block the request
}

// Claims represents the JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthMiddleware creates a middleware for JWT authentication
func JWTAuthMiddleware(config JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// Check query parameter (useful for WebSocket connections)
			authHeader = c.Query("token")
			if authHeader != "" {
				authHeader = "Bearer " + authHeader
			}
		}
		if authHeader == "" {
			// Fall back to the session cookie set at login
			if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
				authHeader = "Bearer " + cookie
			}
		}

		if authHeader == "" {
			if config.Optional {
				c.Set("user_id", "anonymous")
				c.Set("authenticated", false)
				c.Next()
				return
			}

			config.Logger.Warn("Missing authorization header", zap.String("path", c.Request.URL.Path))
			unauthorized(c, "Authorization required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			if config.Optional {
				c.Set("user_id", "anonymous")
				c.Set("authenticated", false)
				c.Next()
				return
			}

			config.Logger.Warn("Invalid authorization header format", zap.String("path", c.Request.URL.Path))
			unauthorized(c, "Invalid authorization header format")
			return
		}

		tokenString := parts[1]

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(config.SecretKey), nil
		})

		if err != nil || !token.Valid {
			if config.Optional {
				c.Set("user_id", "anonymous")
				c.Set("authenticated", false)
				c.Next()
				return
			}

			config.Logger.Warn("Invalid token",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			unauthorized(c, "Invalid or expired token")
			return
		}

		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			if config.Optional {
				c.Set("user_id", "anonymous")
				c.Set("authenticated", false)
				c.Next()
				return
			}

			config.Logger.Warn("Expired token",
				zap.String("path", c.Request.URL.Path),
				zap.String("user_id", claims.UserID))
			unauthorized(c, "Token has expired")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Set("authenticated", true)

		c.Next()
	}
}

// unauthorized answers with the login location so clients can redirect and
// come back to the page they asked for.
func unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":    message,
		"redirect": "/login",
		"next":     c.Request.URL.RequestURI(),
	})
	c.Abort()
}

// GenerateToken generates a new JWT token
func GenerateToken(config JWTConfig, userID, email string, role models.UserRole) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(config.TokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(config.SecretKey))
	if err != nil {
		config.Logger.Error("Failed to sign token", zap.Error(err))
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// RequireAuthMiddleware ensures the user is authenticated (not anonymous)
func RequireAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticated, exists := c.Get("authenticated")
		if !exists || !authenticated.(bool) {
			unauthorized(c, "Authentication required")
			return
		}

		c.Next()
	}
}
