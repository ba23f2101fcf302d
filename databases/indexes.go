package databases

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Index names referenced when mapping duplicate-key write errors back to
// domain conflicts
const (
	IndexInvitationToken        = "uniq_invitation_token"
	IndexInvitationPendingEmail = "uniq_invitation_pending_email"
	IndexInvitationStatus       = "invitation_status"
	IndexAdminEmail             = "uniq_admin_email"
)

// EnsureIndexes creates the indexes the invitation subsystem relies on for
// its uniqueness invariants: one pending invitation per email, globally
// unique tokens, and unique admin emails. The partial index on pending
// status is what makes concurrent check-then-insert races safe; the
// application-level checks exist only to produce friendly error messages.
func EnsureIndexes(ctx context.Context, db DatabaseHelper) error {
	_, err := db.Collection(invitationCollectionName).CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetName(IndexInvitationToken).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName(IndexInvitationPendingEmail).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "pending"}),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName(IndexInvitationStatus),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(adminCollectionName).CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(IndexAdminEmail).SetUnique(true),
		},
	})
	return err
}

// IsDuplicateOnIndex reports whether err is a duplicate-key violation of the
// named unique index. Mongo embeds the index name in the write error message.
func IsDuplicateOnIndex(err error, index string) bool {
	return err != nil && mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), index)
}
