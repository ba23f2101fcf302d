package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/swifthaul/swifthaul-api/databases"
	"github.com/swifthaul/swifthaul-api/databases/mocks"
)

func dupKeyError(index string) error {
	return mongo.WriteException{WriteErrors: mongo.WriteErrors{{
		Code:    11000,
		Message: "E11000 duplicate key error collection: swifthaul.adminInvitations index: " + index + " dup key",
	}}}
}

func TestIsDuplicateOnIndex(t *testing.T) {
	err := dupKeyError(databases.IndexInvitationToken)

	assert.True(t, databases.IsDuplicateOnIndex(err, databases.IndexInvitationToken))
	assert.False(t, databases.IsDuplicateOnIndex(err, databases.IndexInvitationPendingEmail))
	assert.False(t, databases.IsDuplicateOnIndex(nil, databases.IndexInvitationToken))
	assert.False(t, databases.IsDuplicateOnIndex(errors.New("mocked-error"), databases.IndexInvitationToken))
}

func TestEnsureIndexes(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	invitationCollection := &mocks.CollectionHelper{}
	adminCollection := &mocks.CollectionHelper{}

	var invitationIndexes, adminIndexes []mongo.IndexModel

	dbHelper.On("Collection", "adminInvitations").Return(invitationCollection)
	dbHelper.On("Collection", "adminUsers").Return(adminCollection)
	invitationCollection.On("CreateIndexes", mock.Anything, mock.Anything).
		Return([]string{}, nil).
		Run(func(args mock.Arguments) {
			invitationIndexes = args.Get(1).([]mongo.IndexModel)
		})
	adminCollection.On("CreateIndexes", mock.Anything, mock.Anything).
		Return([]string{}, nil).
		Run(func(args mock.Arguments) {
			adminIndexes = args.Get(1).([]mongo.IndexModel)
		})

	err := databases.EnsureIndexes(context.Background(), dbHelper)
	assert.NoError(t, err)

	assert.Len(t, invitationIndexes, 3)
	assert.Equal(t, databases.IndexInvitationToken, *invitationIndexes[0].Options.Name)
	assert.True(t, *invitationIndexes[0].Options.Unique)
	assert.Equal(t, databases.IndexInvitationPendingEmail, *invitationIndexes[1].Options.Name)
	assert.NotNil(t, invitationIndexes[1].Options.PartialFilterExpression)
	assert.Equal(t, databases.IndexInvitationStatus, *invitationIndexes[2].Options.Name)

	assert.Len(t, adminIndexes, 1)
	assert.Equal(t, databases.IndexAdminEmail, *adminIndexes[0].Options.Name)
	assert.True(t, *adminIndexes[0].Options.Unique)
}

func TestEnsureIndexesError(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	invitationCollection := &mocks.CollectionHelper{}

	dbHelper.On("Collection", "adminInvitations").Return(invitationCollection)
	invitationCollection.On("CreateIndexes", mock.Anything, mock.Anything).
		Return(nil, errors.New("mocked-error"))

	err := databases.EnsureIndexes(context.Background(), dbHelper)
	assert.EqualError(t, err, "mocked-error")
}
