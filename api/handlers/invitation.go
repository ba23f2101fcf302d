package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/swifthaul/swifthaul-api/api"
	"github.com/swifthaul/swifthaul-api/databases"
	"github.com/swifthaul/swifthaul-api/mailer"
	"github.com/swifthaul/swifthaul-api/models"
)

// Invitation handles admin invitation requests
type Invitation struct {
	IDB    databases.InvitationDatabase
	ADB    databases.AdminDatabase
	Mailer mailer.Mailer
}

type createInvitationRequest struct {
	Email         string `json:"email"`
	Role          string `json:"role"`
	InvitedBy     string `json:"invitedBy"`
	InvitedByName string `json:"invitedByName"`
}

type invitationEmailOutcome struct {
	EmailSent  bool   `json:"emailSent"`
	EmailError string `json:"emailError,omitempty"`
}

type createInvitationResponse struct {
	Success      bool      `json:"success"`
	InvitationID string    `json:"invitationId"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expiresAt"`
	invitationEmailOutcome
}

type resendInvitationResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	invitationEmailOutcome
}

// issueInviteToken mints the opaque bearer credential for an invitation:
// 32 bytes from the OS CSPRNG, hex-encoded to 64 characters
func issueInviteToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// isValidEmail checks if an email address is valid
func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && strings.Contains(email[at:], ".")
}

func writeInvitationError(w http.ResponseWriter, status int, message, code string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// CreateInvitationHandler creates a new pending invitation and asks the
// mailer to deliver the accept link. The email send happens after the
// invitation write commits; a failed send is reported back, not rolled back.
func (h Invitation) CreateInvitationHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req createInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvitationError(w, http.StatusBadRequest, "Invalid request body", models.CodeValidation)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !isValidEmail(email) {
		writeInvitationError(w, http.StatusBadRequest, "Invalid email format", models.CodeValidation)
		return
	}
	if !models.ValidRole(req.Role) {
		writeInvitationError(w, http.StatusBadRequest, "Invalid role", models.CodeValidation)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	inviterID, err := primitive.ObjectIDFromHex(req.InvitedBy)
	if err != nil {
		writeInvitationError(w, http.StatusForbidden, "Inviter account not found", models.CodeInviterNotFound)
		return
	}
	inviter, err := h.ADB.FindOne(ctx, bson.M{"_id": inviterID})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeInvitationError(w, http.StatusForbidden, "Inviter account not found", models.CodeInviterNotFound)
			return
		}
		writeInvitationError(w, http.StatusInternalServerError, "Failed to resolve inviter", models.CodeDatabaseError)
		return
	}
	if !inviter.Active {
		writeInvitationError(w, http.StatusForbidden, "Inviter account is inactive", models.CodeInviterInactive)
		return
	}
	if !models.CanGrant(inviter.Role, req.Role) {
		if inviter.Role == models.RoleViewer {
			writeInvitationError(w, http.StatusForbidden, "Viewers cannot create invitations", models.CodePermissionDenied)
			return
		}
		writeInvitationError(w, http.StatusForbidden, "Admins cannot create super_admin invitations", models.CodeRoleCeiling)
		return
	}

	// duplicate account check
	_, err = h.ADB.FindOne(ctx, bson.M{"email": email})
	if err == nil {
		writeInvitationError(w, http.StatusConflict, "An account already exists for this email", models.CodeDuplicateUser)
		return
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to check existing accounts", models.CodeDatabaseError)
		return
	}

	// duplicate pending invitation check. A stored-pending invitation past
	// its expiry is corrected here so the partial unique index does not
	// block the new one.
	now := time.Now()
	existing, err := h.IDB.FindOne(ctx, bson.M{"email": email, "status": models.InvitationPending})
	if err == nil {
		if existing.EffectivelyPending(now) {
			writeInvitationError(w, http.StatusConflict, "A pending invitation already exists for this email", models.CodeDuplicateInvitation)
			return
		}
		_, err = h.IDB.UpdateOne(ctx,
			bson.M{"_id": existing.ID, "status": models.InvitationPending},
			bson.M{"$set": bson.M{"status": models.InvitationExpired}})
		if err != nil {
			writeInvitationError(w, http.StatusInternalServerError, "Failed to expire stale invitation", models.CodeDatabaseError)
			return
		}
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to check existing invitations", models.CodeDatabaseError)
		return
	}

	token, err := issueInviteToken()
	if err != nil {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to issue invitation token", models.CodeDatabaseError)
		return
	}

	invitation := models.Invitation{
		Email:         email,
		Token:         token,
		Role:          req.Role,
		InvitedBy:     inviter.ID.Hex(),
		InvitedByName: req.InvitedByName,
		Status:        models.InvitationPending,
		ExpiresAt:     now.Add(models.InvitationTTL),
		CreatedAt:     now,
	}

	result, err := h.IDB.InsertOne(ctx, invitation)
	if databases.IsDuplicateOnIndex(err, databases.IndexInvitationToken) {
		// negligible probability, retried once with a fresh token
		token, err = issueInviteToken()
		if err != nil {
			writeInvitationError(w, http.StatusInternalServerError, "Failed to issue invitation token", models.CodeDatabaseError)
			return
		}
		invitation.Token = token
		result, err = h.IDB.InsertOne(ctx, invitation)
	}
	if err != nil {
		if databases.IsDuplicateOnIndex(err, databases.IndexInvitationPendingEmail) {
			// lost a create race for the same email
			writeInvitationError(w, http.StatusConflict, "A pending invitation already exists for this email", models.CodeDuplicateInvitation)
			return
		}
		zap.S().Errorw("failed to insert invitation", "email", email, "error", err)
		writeInvitationError(w, http.StatusInternalServerError, "Failed to create invitation", models.CodeDatabaseError)
		return
	}

	invitationID := ""
	if oid, ok := result.Decode().(primitive.ObjectID); ok {
		invitationID = oid.Hex()
	}

	sendResult := h.Mailer.SendInvitation(email, token, req.Role, req.InvitedByName)

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createInvitationResponse{
		Success:      true,
		InvitationID: invitationID,
		Token:        token,
		ExpiresAt:    invitation.ExpiresAt,
		invitationEmailOutcome: invitationEmailOutcome{
			EmailSent:  sendResult.Sent,
			EmailError: sendResult.Error,
		},
	})
}

// ResendInvitationHandler replaces the token of a pending invitation, extends
// its expiry and resends the email. Non-pending invitations cannot be resent.
func (h Invitation) ResendInvitationHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	invitationID, err := primitive.ObjectIDFromHex(mux.Vars(r)["invitation_id"])
	if err != nil {
		writeInvitationError(w, http.StatusBadRequest, "Invalid invitation id", models.CodeValidation)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	invitation, err := h.IDB.FindOne(ctx, bson.M{"_id": invitationID})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeInvitationError(w, http.StatusNotFound, "Invitation not found", models.CodeNotFound)
			return
		}
		writeInvitationError(w, http.StatusInternalServerError, "Failed to load invitation", models.CodeDatabaseError)
		return
	}
	if invitation.Status != models.InvitationPending {
		writeInvitationError(w, http.StatusConflict, "Can only resend pending invitations", models.CodeInvalidState)
		return
	}

	token, err := issueInviteToken()
	if err != nil {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to issue invitation token", models.CodeDatabaseError)
		return
	}
	expiresAt := time.Now().Add(models.InvitationTTL)

	update := func(token string) (*mongo.UpdateResult, error) {
		return h.IDB.UpdateOne(ctx,
			bson.M{"_id": invitationID, "status": models.InvitationPending},
			bson.M{"$set": bson.M{"token": token, "expiresAt": expiresAt}})
	}
	res, err := update(token)
	if databases.IsDuplicateOnIndex(err, databases.IndexInvitationToken) {
		token, err = issueInviteToken()
		if err != nil {
			writeInvitationError(w, http.StatusInternalServerError, "Failed to issue invitation token", models.CodeDatabaseError)
			return
		}
		res, err = update(token)
	}
	if err != nil {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to update invitation", models.CodeDatabaseError)
		return
	}
	if res.ModifiedCount == 0 {
		// raced with a revoke/accept between the read and the write
		writeInvitationError(w, http.StatusConflict, "Can only resend pending invitations", models.CodeInvalidState)
		return
	}

	sendResult := h.Mailer.SendInvitation(invitation.Email, token, invitation.Role, invitation.InvitedByName)

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resendInvitationResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt,
		invitationEmailOutcome: invitationEmailOutcome{
			EmailSent:  sendResult.Sent,
			EmailError: sendResult.Error,
		},
	})
}

// RevokeInvitationHandler withdraws a pending invitation. Revoked is terminal.
func (h Invitation) RevokeInvitationHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	invitationID, err := primitive.ObjectIDFromHex(mux.Vars(r)["invitation_id"])
	if err != nil {
		writeInvitationError(w, http.StatusBadRequest, "Invalid invitation id", models.CodeValidation)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := h.IDB.UpdateOne(ctx,
		bson.M{"_id": invitationID, "status": models.InvitationPending},
		bson.M{"$set": bson.M{"status": models.InvitationRevoked}})
	if err != nil {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to update invitation", models.CodeDatabaseError)
		return
	}
	if res.ModifiedCount == 0 {
		_, err = h.IDB.FindOne(ctx, bson.M{"_id": invitationID})
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeInvitationError(w, http.StatusNotFound, "Invitation not found", models.CodeNotFound)
			return
		}
		writeInvitationError(w, http.StatusConflict, "Can only revoke pending invitations", models.CodeInvalidState)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success": true}`))
}

// DeleteInvitationHandler permanently removes a non-pending invitation.
// Pending invitations must be revoked first so a withdrawn invitation leaves
// a trace instead of silently vanishing.
func (h Invitation) DeleteInvitationHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	invitationID, err := primitive.ObjectIDFromHex(mux.Vars(r)["invitation_id"])
	if err != nil {
		writeInvitationError(w, http.StatusBadRequest, "Invalid invitation id", models.CodeValidation)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := h.IDB.DeleteOne(ctx, bson.M{
		"_id":    invitationID,
		"status": bson.M{"$ne": models.InvitationPending},
	})
	if err != nil {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to delete invitation", models.CodeDatabaseError)
		return
	}
	if res.DeletedCount == 0 {
		_, err = h.IDB.FindOne(ctx, bson.M{"_id": invitationID})
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeInvitationError(w, http.StatusNotFound, "Invitation not found", models.CodeNotFound)
			return
		}
		writeInvitationError(w, http.StatusConflict, "Cannot delete pending invitations", models.CodeInvalidState)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success": true}`))
}

// InvitationByTokenHandler returns the invitation behind a token with its
// status corrected for expiry at read time. Public: the invitee only holds
// the token.
func (h Invitation) InvitationByTokenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	token := mux.Vars(r)["token"]
	if token == "" {
		writeInvitationError(w, http.StatusBadRequest, "Invitation token is required", models.CodeValidation)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	invitation, err := h.IDB.FindOne(ctx, bson.M{"token": token})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeInvitationError(w, http.StatusNotFound, "Invalid invitation link", models.CodeNotFound)
			return
		}
		writeInvitationError(w, http.StatusInternalServerError, "Failed to load invitation", models.CodeDatabaseError)
		return
	}

	invitation.Status = invitation.EffectiveStatus(time.Now())

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(invitation)
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

type checkEmailResponse struct {
	HasPendingInvitation bool `json:"hasPendingInvitation"`
	HasAdminUser         bool `json:"hasAdminUser"`
}

// CheckInvitationEmailHandler reports whether an email already has an admin
// account or a pending invitation, for early feedback in the invite dialog
func (h Invitation) CheckInvitationEmailHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req checkEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvitationError(w, http.StatusBadRequest, "Invalid request body", models.CodeValidation)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !isValidEmail(email) {
		writeInvitationError(w, http.StatusBadRequest, "Invalid email format", models.CodeValidation)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	var resp checkEmailResponse

	_, err := h.ADB.FindOne(ctx, bson.M{"email": email})
	if err == nil {
		resp.HasAdminUser = true
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to check existing accounts", models.CodeDatabaseError)
		return
	}

	invitation, err := h.IDB.FindOne(ctx, bson.M{"email": email, "status": models.InvitationPending})
	if err == nil {
		resp.HasPendingInvitation = invitation.EffectivelyPending(time.Now())
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to check existing invitations", models.CodeDatabaseError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// ListInvitationsHandler returns all invitations newest first, with statuses
// corrected for expiry at read time
func (h Invitation) ListInvitationsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	invitations, err := h.IDB.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to list invitations", models.CodeDatabaseError)
		return
	}

	now := time.Now()
	for i := range invitations {
		invitations[i].Status = invitations[i].EffectiveStatus(now)
	}
	if invitations == nil {
		invitations = []models.Invitation{}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(invitations)
}

// InvitationStatsHandler recomputes status counts over the live records.
// Expiry is derived from the clock, never trusted from the stored status.
func (h Invitation) InvitationStatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	invitations, err := h.IDB.Find(ctx, bson.M{})
	if err != nil {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to load invitations", models.CodeDatabaseError)
		return
	}

	now := time.Now()
	stats := models.InvitationStats{Total: len(invitations)}
	for i := range invitations {
		switch invitations[i].EffectiveStatus(now) {
		case models.InvitationPending:
			stats.Pending++
		case models.InvitationAccepted:
			stats.Accepted++
		case models.InvitationExpired:
			stats.Expired++
		case models.InvitationRevoked:
			stats.Revoked++
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(stats)
}

type acceptInvitationRequest struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type acceptInvitationResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

// AcceptInvitationHandler redeems a pending invitation token into a live
// admin account. The unique index on admin emails is the guard against two
// acceptances racing on the same token: only one insert can win, the loser
// observes the winner's account.
func (h Invitation) AcceptInvitationHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req acceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvitationError(w, http.StatusBadRequest, "Invalid request body", models.CodeValidation)
		return
	}

	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		writeInvitationError(w, http.StatusBadRequest, "Name must be at least 2 characters", models.CodeValidation)
		return
	}
	if len(req.Password) < 8 {
		writeInvitationError(w, http.StatusBadRequest, "Password must be at least 8 characters", models.CodeValidation)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	invitation, err := h.IDB.FindOne(ctx, bson.M{"token": req.Token})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeInvitationError(w, http.StatusNotFound, "Invalid invitation link", models.CodeNotFound)
			return
		}
		writeInvitationError(w, http.StatusInternalServerError, "Failed to load invitation", models.CodeDatabaseError)
		return
	}

	switch invitation.Status {
	case models.InvitationAccepted:
		writeInvitationError(w, http.StatusConflict, "Invitation has already been accepted", models.CodeInvalidState)
		return
	case models.InvitationRevoked:
		writeInvitationError(w, http.StatusConflict, "Invitation has already been revoked", models.CodeInvalidState)
		return
	case models.InvitationExpired:
		writeInvitationError(w, http.StatusGone, "Invitation has expired", models.CodeInvitationExpired)
		return
	}

	now := time.Now()
	if !invitation.EffectivelyPending(now) {
		// stored pending, clock expired: persist the lazy correction and fail
		_, err = h.IDB.UpdateOne(ctx,
			bson.M{"_id": invitation.ID, "status": models.InvitationPending},
			bson.M{"$set": bson.M{"status": models.InvitationExpired}})
		if err != nil {
			zap.S().Errorw("failed to persist invitation expiry", "invitationId", invitation.ID.Hex(), "error", err)
		}
		writeInvitationError(w, http.StatusGone, "Invitation has expired", models.CodeInvitationExpired)
		return
	}

	_, err = h.ADB.FindOne(ctx, bson.M{"email": invitation.Email})
	if err == nil {
		writeInvitationError(w, http.StatusConflict, "An account already exists for this email", models.CodeDuplicateUser)
		return
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to check existing accounts", models.CodeDatabaseError)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeInvitationError(w, http.StatusInternalServerError, "Failed to hash password", models.CodeDatabaseError)
		return
	}

	admin := models.AdminUser{
		Email:        invitation.Email,
		PasswordHash: string(hash),
		Name:         name,
		Role:         invitation.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	result, err := h.ADB.InsertOne(ctx, admin)
	if err != nil {
		if databases.IsDuplicateOnIndex(err, databases.IndexAdminEmail) {
			writeInvitationError(w, http.StatusConflict, "An account already exists for this email", models.CodeDuplicateUser)
			return
		}
		zap.S().Errorw("failed to create admin account", "email", invitation.Email, "error", err)
		writeInvitationError(w, http.StatusInternalServerError, "Failed to create account", models.CodeDatabaseError)
		return
	}

	userID := ""
	if oid, ok := result.Decode().(primitive.ObjectID); ok {
		userID = oid.Hex()
	}

	res, err := h.IDB.UpdateOne(ctx,
		bson.M{"_id": invitation.ID, "status": models.InvitationPending},
		bson.M{"$set": bson.M{"status": models.InvitationAccepted, "acceptedAt": now}})
	if err != nil {
		// account exists; the invitation correction is retried on next read
		zap.S().Errorw("failed to mark invitation accepted", "invitationId", invitation.ID.Hex(), "error", err)
	} else if res.ModifiedCount == 0 {
		zap.S().Warnw("invitation left pending state before acceptance write", "invitationId", invitation.ID.Hex())
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(acceptInvitationResponse{
		Success: true,
		UserID:  userID,
	})
}
