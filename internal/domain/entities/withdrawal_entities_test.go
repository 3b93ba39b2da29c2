package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithdrawalStatusIsValid(t *testing.T) {
	assert.True(t, WithdrawalStatusPending.IsValid())
	assert.True(t, WithdrawalStatusApproved.IsValid())
	assert.True(t, WithdrawalStatusRejected.IsValid())
	assert.True(t, WithdrawalStatusFailed.IsValid())
	assert.False(t, WithdrawalStatus("cancelled").IsValid())
}

func TestWithdrawalStatusTerminality(t *testing.T) {
	assert.False(t, WithdrawalStatusPending.IsTerminal())
	assert.True(t, WithdrawalStatusApproved.IsTerminal())
	assert.True(t, WithdrawalStatusRejected.IsTerminal())
	assert.True(t, WithdrawalStatusFailed.IsTerminal())
}

func TestWithdrawalStatusTransitions(t *testing.T) {
	assert.True(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusApproved))
	assert.True(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusRejected))
	assert.True(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusFailed))

	// The only edge out of a terminal state is the webhook reversal.
	assert.True(t, WithdrawalStatusApproved.CanTransitionTo(WithdrawalStatusFailed))
	assert.False(t, WithdrawalStatusApproved.CanTransitionTo(WithdrawalStatusRejected))
	assert.False(t, WithdrawalStatusApproved.CanTransitionTo(WithdrawalStatusPending))

	assert.False(t, WithdrawalStatusRejected.CanTransitionTo(WithdrawalStatusApproved))
	assert.False(t, WithdrawalStatusFailed.CanTransitionTo(WithdrawalStatusApproved))
	assert.False(t, WithdrawalStatusFailed.CanTransitionTo(WithdrawalStatusPending))
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, WithdrawalStatusPending.ValidateTransition(WithdrawalStatusApproved))

	err := WithdrawalStatusRejected.ValidateTransition(WithdrawalStatusApproved)
	assert.ErrorContains(t, err, "invalid status transition")

	err = WithdrawalStatusPending.ValidateTransition(WithdrawalStatus("cancelled"))
	assert.ErrorContains(t, err, "invalid withdrawal status")
}
