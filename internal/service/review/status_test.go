package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to DocumentStatus
		want     bool
	}{
		{DocumentAIVerifying, DocumentPendingReview, true},
		{DocumentAIVerifying, DocumentAIRejected, true},
		{DocumentPendingReview, DocumentReviewing, true},
		{DocumentReviewing, DocumentPendingApprove, true},
		{DocumentReviewing, DocumentPendingReview, true},
		{DocumentReviewing, DocumentActive, false},
		{DocumentPendingApprove, DocumentActive, true},
		{DocumentPendingApprove, DocumentRejected, true},
		{DocumentActive, DocumentInactive, true},
		{DocumentInactive, DocumentActive, true},
		{DocumentActive, DocumentDeleted, false},
		{DocumentInactive, DocumentDeleted, true},
		{DocumentRejected, DocumentPendingReview, false},
		{DocumentDeleted, DocumentPendingReview, false},
		{DocumentAIRejected, DocumentPendingReview, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []DocumentStatus{DocumentAIRejected, DocumentActive, DocumentRejected, DocumentDeleted} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []DocumentStatus{DocumentAIVerifying, DocumentPendingReview, DocumentReviewing, DocumentPendingApprove, DocumentInactive} {
		assert.False(t, s.Terminal(), s)
	}
	// Terminal documents accept no workflow transitions besides the admin hold.
	for _, s := range []DocumentStatus{DocumentAIRejected, DocumentRejected, DocumentDeleted} {
		assert.Empty(t, documentTransitions[s], s)
	}

	assert.True(t, RequestPending.Active())
	assert.True(t, RequestAccepted.Active())
	for _, s := range []RequestStatus{RequestRejectedByReviewer, RequestExpired, RequestCompleted} {
		assert.True(t, s.Terminal(), s)
		assert.False(t, s.Active(), s)
	}
	assert.False(t, RequestStatus("LOST").Valid())
	assert.True(t, DocumentInactive.Valid())
	assert.False(t, DocumentStatus("ARCHIVED").Valid())
}
