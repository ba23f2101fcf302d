package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/swifthaul/swifthaul-api/models"
)

func TestEffectiveStatusPendingBeforeExpiry(t *testing.T) {
	now := time.Now()
	inv := models.Invitation{
		Status:    models.InvitationPending,
		ExpiresAt: now.Add(time.Hour),
	}

	assert.Equal(t, models.InvitationPending, inv.EffectiveStatus(now))
	assert.True(t, inv.EffectivelyPending(now))
}

func TestEffectiveStatusPendingPastExpiry(t *testing.T) {
	now := time.Now()
	inv := models.Invitation{
		Status:    models.InvitationPending,
		ExpiresAt: now.Add(-time.Minute),
	}

	assert.Equal(t, models.InvitationExpired, inv.EffectiveStatus(now))
	assert.False(t, inv.EffectivelyPending(now))

	// reads are idempotent, the override never mutates the record
	assert.Equal(t, models.InvitationExpired, inv.EffectiveStatus(now))
	assert.Equal(t, models.InvitationPending, inv.Status)
}

func TestEffectiveStatusTerminalStatesUntouchedByClock(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)

	for _, status := range []string{
		models.InvitationAccepted,
		models.InvitationRevoked,
		models.InvitationExpired,
	} {
		inv := models.Invitation{Status: status, ExpiresAt: past}
		assert.Equal(t, status, inv.EffectiveStatus(now))
	}
}
