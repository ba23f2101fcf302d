package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/swifthaul/swifthaul-api/api/handlers"
	"github.com/swifthaul/swifthaul-api/databases/mocks"
	"github.com/swifthaul/swifthaul-api/models"
)

const acceptToken = "aaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999"

func pendingInvitation() *models.Invitation {
	return &models.Invitation{
		ID:        primitive.NewObjectID(),
		Email:     "invitee@swifthaul-logistics.com",
		Token:     acceptToken,
		Role:      models.RoleAdmin,
		Status:    models.InvitationPending,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestInvitation_AcceptInvitationHandler(t *testing.T) {
	invitation := pendingInvitation()
	userID := primitive.NewObjectID()

	idb := &mocks.InvitationDatabase{}
	adb := &mocks.AdminDatabase{}
	insertResult := &mocks.InsertOneResultHelper{}

	var created models.AdminUser

	idb.On("FindOne", mock.Anything, bson.M{"token": acceptToken}).Return(invitation, nil)
	adb.On("FindOne", mock.Anything, bson.M{"email": invitation.Email}).Return(nil, mongo.ErrNoDocuments)
	insertResult.On("Decode").Return(userID)
	adb.On("InsertOne", mock.Anything, mock.AnythingOfType("models.AdminUser")).
		Return(insertResult, nil).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(models.AdminUser)
		})
	idb.On("UpdateOne", mock.Anything,
		bson.M{"_id": invitation.ID, "status": models.InvitationPending},
		mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)

	h := handlers.Invitation{IDB: idb, ADB: adb, Mailer: &fakeMailer{}}

	req := postJSON(t, "/api/v1/invitations/accept", map[string]string{
		"token":    acceptToken,
		"name":     "  New Admin  ",
		"password": "s3cret-enough",
	})
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AcceptInvitationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"success": true, "userId": "`+userID.Hex()+`"}`, rr.Body.String())

	// account inherits the invitation's email and role, name is trimmed
	assert.Equal(t, invitation.Email, created.Email)
	assert.Equal(t, models.RoleAdmin, created.Role)
	assert.Equal(t, "New Admin", created.Name)
	assert.True(t, created.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("s3cret-enough")))

	idb.AssertCalled(t, "UpdateOne", mock.Anything,
		bson.M{"_id": invitation.ID, "status": models.InvitationPending},
		mock.Anything)
}

func TestInvitation_AcceptInvitationHandlerShortName(t *testing.T) {
	h := handlers.Invitation{IDB: &mocks.InvitationDatabase{}, ADB: &mocks.AdminDatabase{}, Mailer: &fakeMailer{}}

	req := postJSON(t, "/api/v1/invitations/accept", map[string]string{
		"token":    acceptToken,
		"name":     " A ",
		"password": "s3cret-enough",
	})
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AcceptInvitationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, models.CodeValidation, resp.Code)
	assert.Equal(t, "Name must be at least 2 characters", resp.Error)
}

func TestInvitation_AcceptInvitationHandlerShortPassword(t *testing.T) {
	h := handlers.Invitation{IDB: &mocks.InvitationDatabase{}, ADB: &mocks.AdminDatabase{}, Mailer: &fakeMailer{}}

	req := postJSON(t, "/api/v1/invitations/accept", map[string]string{
		"token":    acceptToken,
		"name":     "New Admin",
		"password": "short",
	})
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AcceptInvitationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, models.CodeValidation, resp.Code)
	assert.Equal(t, "Password must be at least 8 characters", resp.Error)
}

func TestInvitation_AcceptInvitationHandlerUnknownToken(t *testing.T) {
	idb := &mocks.InvitationDatabase{}
	idb.On("FindOne", mock.Anything, bson.M{"token": acceptToken}).Return(nil, mongo.ErrNoDocuments)

	h := handlers.Invitation{IDB: idb, ADB: &mocks.AdminDatabase{}, Mailer: &fakeMailer{}}

	req := postJSON(t, "/api/v1/invitations/accept", map[string]string{
		"token":    acceptToken,
		"name":     "New Admin",
		"password": "s3cret-enough",
	})
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AcceptInvitationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Invalid invitation link", decodeError(t, rr).Error)
}

func TestInvitation_AcceptInvitationHandlerTerminalStates(t *testing.T) {
	cases := []struct {
		status  string
		code    int
		message string
	}{
		{models.InvitationAccepted, http.StatusConflict, "Invitation has already been accepted"},
		{models.InvitationRevoked, http.StatusConflict, "Invitation has already been revoked"},
		{models.InvitationExpired, http.StatusGone, "Invitation has expired"},
	}

	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			invitation := pendingInvitation()
			invitation.Status = tc.status

			idb := &mocks.InvitationDatabase{}
			adb := &mocks.AdminDatabase{}
			idb.On("FindOne", mock.Anything, bson.M{"token": acceptToken}).Return(invitation, nil)

			h := handlers.Invitation{IDB: idb, ADB: adb, Mailer: &fakeMailer{}}

			req := postJSON(t, "/api/v1/invitations/accept", map[string]string{
				"token":    acceptToken,
				"name":     "New Admin",
				"password": "s3cret-enough",
			})
			rr := httptest.NewRecorder()
			http.HandlerFunc(h.AcceptInvitationHandler).ServeHTTP(rr, req)

			assert.Equal(t, tc.code, rr.Code)
			assert.Equal(t, tc.message, decodeError(t, rr).Error)
			adb.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
		})
	}
}

func TestInvitation_AcceptInvitationHandlerLazyExpiry(t *testing.T) {
	invitation := pendingInvitation()
	invitation.ExpiresAt = time.Now().Add(-time.Hour)

	idb := &mocks.InvitationDatabase{}
	adb := &mocks.AdminDatabase{}

	idb.On("FindOne", mock.Anything, bson.M{"token": acceptToken}).Return(invitation, nil)
	idb.On("UpdateOne", mock.Anything,
		bson.M{"_id": invitation.ID, "status": models.InvitationPending},
		bson.M{"$set": bson.M{"status": models.InvitationExpired}}).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)

	h := handlers.Invitation{IDB: idb, ADB: adb, Mailer: &fakeMailer{}}

	req := postJSON(t, "/api/v1/invitations/accept", map[string]string{
		"token":    acceptToken,
		"name":     "New Admin",
		"password": "s3cret-enough",
	})
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AcceptInvitationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusGone, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, models.CodeInvitationExpired, resp.Code)

	// the correction is persisted, no account is created
	idb.AssertCalled(t, "UpdateOne", mock.Anything,
		bson.M{"_id": invitation.ID, "status": models.InvitationPending},
		bson.M{"$set": bson.M{"status": models.InvitationExpired}})
	adb.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestInvitation_AcceptInvitationHandlerAccountExists(t *testing.T) {
	invitation := pendingInvitation()

	idb := &mocks.InvitationDatabase{}
	adb := &mocks.AdminDatabase{}

	idb.On("FindOne", mock.Anything, bson.M{"token": acceptToken}).Return(invitation, nil)
	adb.On("FindOne", mock.Anything, bson.M{"email": invitation.Email}).
		Return(&models.AdminUser{Email: invitation.Email}, nil)

	h := handlers.Invitation{IDB: idb, ADB: adb, Mailer: &fakeMailer{}}

	req := postJSON(t, "/api/v1/invitations/accept", map[string]string{
		"token":    acceptToken,
		"name":     "New Admin",
		"password": "s3cret-enough",
	})
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AcceptInvitationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, models.CodeDuplicateUser, decodeError(t, rr).Code)
	adb.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestInvitation_AcceptInvitationHandlerInsertRace(t *testing.T) {
	invitation := pendingInvitation()

	idb := &mocks.InvitationDatabase{}
	adb := &mocks.AdminDatabase{}

	idb.On("FindOne", mock.Anything, bson.M{"token": acceptToken}).Return(invitation, nil)
	adb.On("FindOne", mock.Anything, bson.M{"email": invitation.Email}).Return(nil, mongo.ErrNoDocuments)
	adb.On("InsertOne", mock.Anything, mock.Anything).
		Return(nil, mongo.WriteException{WriteErrors: mongo.WriteErrors{{
			Code:    11000,
			Message: "E11000 duplicate key error collection: swifthaul.adminUsers index: uniq_admin_email dup key",
		}}})

	h := handlers.Invitation{IDB: idb, ADB: adb, Mailer: &fakeMailer{}}

	req := postJSON(t, "/api/v1/invitations/accept", map[string]string{
		"token":    acceptToken,
		"name":     "New Admin",
		"password": "s3cret-enough",
	})
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AcceptInvitationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, models.CodeDuplicateUser, decodeError(t, rr).Code)
	idb.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}
