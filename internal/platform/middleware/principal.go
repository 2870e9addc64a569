package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mealflow/internal/workflow/models"
)

type contextKeyActor struct{}

// ContextKeyActor is exported for use in handlers.
var ContextKeyActor = contextKeyActor{}

// GetActor retrieves the authenticated principal from the context.
func GetActor(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(models.Actor)
	return actor, ok
}

// PrincipalResolver validates a bearer token and resolves the acting
// principal: who the user is, which role the identity service assigned, and
// which organization the user is bound to.
type PrincipalResolver struct {
	signingKey []byte
}

// NewPrincipalResolver constructs a resolver over an HMAC signing key.
func NewPrincipalResolver(signingKey string) *PrincipalResolver {
	return &PrincipalResolver{signingKey: []byte(signingKey)}
}

type principalClaims struct {
	Role       string `json:"role"`
	OrgBinding string `json:"org_binding"`
	jwt.RegisteredClaims
}

// Resolve parses and validates the token into an Actor.
func (r *PrincipalResolver) Resolve(tokenString string) (models.Actor, error) {
	claims := &principalClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.signingKey, nil
	})
	if err != nil {
		return models.Actor{}, err
	}
	if !token.Valid {
		return models.Actor{}, jwt.ErrTokenUnverifiable
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Actor{}, err
	}
	return models.Actor{
		UserID:     userID,
		Role:       models.Role(claims.Role),
		OrgBinding: claims.OrgBinding,
	}, nil
}

// RequireActor rejects requests without a valid bearer token and puts the
// resolved Actor in context for handlers.
func RequireActor(resolver *PrincipalResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token", "path", r.URL.Path)
				writeUnauthorized(w)
				return
			}
			actor, err := resolver.Resolve(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"path", r.URL.Path,
					"error", err,
				)
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ContextKeyActor, actor)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or missing token"}`))
}
