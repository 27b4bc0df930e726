package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	testCases := []struct {
		from, to Status
		legal    bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusFailed, false},
		{StatusPending, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.legal, CanTransition(tc.from, tc.to))
		})
	}
	assert.Equal(t, []string{"Pending"}, SourcesOf(StatusInProgress))
	assert.Equal(t, []string{"InProgress"}, SourcesOf(StatusFailed))
	assert.Equal(t, []string{"InProgress"}, SourcesOf(StatusCompleted))
	assert.Empty(t, SourcesOf(StatusPending))

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindUserNotFound, KindOf(Errorf(KindUserNotFound, "user %s", "u1")))
	assert.Equal(t, KindPersistenceFault, KindOf(fmt.Errorf("save: %w", NewError(KindPersistenceFault, "insert", errors.New("locked")))))
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("generate: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindCollaboratorFault, KindOf(errors.New("connection refused")))
}

func TestErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(KindTimeout, "content generation", context.DeadlineExceeded))
	assert.True(t, errors.Is(err, &Error{Kind: KindTimeout}))
	assert.False(t, errors.Is(err, &Error{Kind: KindCollaboratorFault}))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "Timeout: content generation: context deadline exceeded", errors.Unwrap(err).Error())
}

func TestFailedResult(t *testing.T) {
	res := Failed(KindNoSuitableItem, "no unsolved problem at or above Hard")
	assert.False(t, res.Success)
	assert.Equal(t, KindNoSuitableItem, res.Kind)
	assert.Equal(t, "NoSuitableItem: no unsolved problem at or above Hard", res.Error)
}
