package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/swifthaul/swifthaul-api/api"
	"github.com/swifthaul/swifthaul-api/databases/mocks"
	"github.com/swifthaul/swifthaul-api/models"
)

func signAdminToken(t *testing.T, secret string, adminID primitive.ObjectID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": adminID.Hex(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)
	return signed
}

func TestAdminAuthMissingToken(t *testing.T) {
	m := api.MiddlewareDB{ADB: &mocks.AdminDatabase{}}

	handler := m.AdminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req, _ := http.NewRequest("GET", "/api/v1/admin/invitations", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminAuthBadToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	m := api.MiddlewareDB{ADB: &mocks.AdminDatabase{}}

	handler := m.AdminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req, _ := http.NewRequest("GET", "/api/v1/admin/invitations", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminAuthWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	m := api.MiddlewareDB{ADB: &mocks.AdminDatabase{}}

	handler := m.AdminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req, _ := http.NewRequest("GET", "/api/v1/admin/invitations", nil)
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "other-secret", primitive.NewObjectID()))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminAuthInactiveAdmin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	adminID := primitive.NewObjectID()

	adb := &mocks.AdminDatabase{}
	adb.On("FindOne", mock.Anything, bson.M{"_id": adminID, "active": true}).
		Return(nil, mongo.ErrNoDocuments)

	m := api.MiddlewareDB{ADB: adb}

	handler := m.AdminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req, _ := http.NewRequest("GET", "/api/v1/admin/invitations", nil)
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "test-secret", adminID))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminAuthResolvesAdmin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	admin := &models.AdminUser{
		ID:     primitive.NewObjectID(),
		Email:  "ops@swifthaul-logistics.com",
		Role:   models.RoleAdmin,
		Active: true,
	}

	adb := &mocks.AdminDatabase{}
	adb.On("FindOne", mock.Anything, bson.M{"_id": admin.ID, "active": true}).Return(admin, nil)

	m := api.MiddlewareDB{ADB: adb}

	var seen *models.AdminUser
	handler := m.AdminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = api.AdminFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req, _ := http.NewRequest("GET", "/api/v1/admin/invitations", nil)
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "test-secret", admin.ID))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	if assert.NotNil(t, seen) {
		assert.Equal(t, admin.Email, seen.Email)
	}
}
