package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/Dhoini/premium-billing-reconciler/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey тип для ключей контекста во избежание коллизий.
type ContextKey string

const (
	// ContextSubjectKey ключ для хранения субъекта токена в контексте
	ContextSubjectKey ContextKey = "subject"

	// ScopeBillingRead доступ на чтение состояния аккаунтов и журнала
	ScopeBillingRead = "billing:read"

	authHeaderPrefix = "Bearer "
)

type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims набор claims административного токена. Scope содержит
// права через пробел, как в OAuth2.
type TokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// HasScope проверяет наличие права в токене
func (c *TokenClaims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

func NewJWTMiddleware(validator TokenValidator, log *logger.Logger) *JWTMiddleware {
	return &JWTMiddleware{
		log:       log,
		validator: validator,
	}
}

// RequireAuth пропускает запрос, только если токен валиден и содержит
// хотя бы одно из перечисленных прав
func (m *JWTMiddleware) RequireAuth(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, "Missing authorization token")
			return
		}

		claims, err := m.validator.Validate(strings.TrimPrefix(authHeader, authHeaderPrefix))
		if err != nil {
			m.handleAuthError(c, fmt.Sprintf("Token validation failed: %v", err))
			return
		}

		if !hasAnyScope(claims, requiredScopes) {
			m.handleForbidden(c)
			return
		}

		if claims.Subject == "" {
			m.handleAuthError(c, "Subject (sub) missing in token")
			return
		}

		c.Set(string(ContextSubjectKey), claims.Subject)
		m.log.Debugw("Admin request authenticated", "subject", claims.Subject, "path", c.Request.URL.Path)
		c.Next()
	}
}

func hasAnyScope(claims *TokenClaims, requiredScopes []string) bool {
	if len(requiredScopes) == 0 {
		return true
	}
	for _, scope := range requiredScopes {
		if claims.HasScope(scope) {
			return true
		}
	}
	return false
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, message string) {
	m.log.Warnw("HTTP authentication failed", "path", c.Request.URL.Path, "error", message)
	res.JsonResponse(c.Writer, res.ErrorResponse{
		Error:     message,
		ErrorCode: http.StatusUnauthorized,
	}, http.StatusUnauthorized)
	c.Abort()
}

func (m *JWTMiddleware) handleForbidden(c *gin.Context) {
	m.log.Warnw("HTTP authorization failed", "path", c.Request.URL.Path)
	res.JsonResponse(c.Writer, res.ErrorResponse{
		Error:     "Insufficient token permissions",
		ErrorCode: http.StatusForbidden,
	}, http.StatusForbidden)
	c.Abort()
}

// HMACTokenValidator проверяет токены, подписанные общим секретом (HS256/384/512)
type HMACTokenValidator struct {
	Secret []byte
}

func NewHMACTokenValidator(secret string) *HMACTokenValidator {
	return &HMACTokenValidator{Secret: []byte(secret)}
}

func (v *HMACTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.New("malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.New("invalid token signature")
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("token expired")
		default:
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}
