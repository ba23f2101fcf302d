package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/swifthaul/swifthaul-api/databases"
	"github.com/swifthaul/swifthaul-api/models"
)

type contextKey string

const adminContextKey contextKey = "authedAdmin"

// MiddlewareDB is a struct that holds the database for the auth middleware
type MiddlewareDB struct {
	ADB databases.AdminDatabase
}

// AdminAuth verifies the bearer JWT on admin routes, resolves the admin
// account it names and stashes it in the request context. Inactive accounts
// are treated as non-existent.
func (m MiddlewareDB) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		admin, err := m.authenticate(r)
		if err != nil {
			zap.S().Debugw("unauthorized admin request",
				"url", r.URL,
				"reason", err.Error(),
			)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}

		ctx := context.WithValue(r.Context(), adminContextKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m MiddlewareDB) authenticate(r *http.Request) (*models.AdminUser, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		return nil, fmt.Errorf("JWT_SECRET not set")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	adminID, err := primitive.ObjectIDFromHex(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid subject")
	}

	ctx, cancel := WithQueryTimeout(r.Context())
	defer cancel()

	admin, err := m.ADB.FindOne(ctx, bson.M{"_id": adminID, "active": true})
	if err != nil {
		return nil, fmt.Errorf("admin not found or inactive")
	}
	return admin, nil
}

// AdminFromContext returns the authenticated admin stashed by AdminAuth
func AdminFromContext(ctx context.Context) (*models.AdminUser, bool) {
	admin, ok := ctx.Value(adminContextKey).(*models.AdminUser)
	return admin, ok
}

// ContextWithAdmin returns a context carrying the given admin. Exported for
// handler tests that bypass the middleware.
func ContextWithAdmin(ctx context.Context, admin *models.AdminUser) context.Context {
	return context.WithValue(ctx, adminContextKey, admin)
}
