package review

var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentAIVerifying:    {DocumentPendingReview, DocumentAIRejected, DocumentDeleted},
	DocumentPendingReview:  {DocumentReviewing, DocumentDeleted},
	DocumentReviewing:      {DocumentPendingApprove, DocumentPendingReview, DocumentDeleted},
	DocumentPendingApprove: {DocumentActive, DocumentRejected, DocumentDeleted},
	DocumentActive:         {DocumentInactive},
	DocumentInactive:       {DocumentActive, DocumentDeleted},
}

// CanTransition reports whether a document may move from one status to
// another. REVIEWING never reaches ACTIVE without an approval step.
func CanTransition(from, to DocumentStatus) bool {
	for _, s := range documentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the review workflow. ACTIVE is
// terminal even though an administrator may place it on hold.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case DocumentAIRejected, DocumentActive, DocumentRejected, DocumentDeleted:
		return true
	}
	return false
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentAIVerifying, DocumentAIRejected, DocumentPendingReview, DocumentReviewing,
		DocumentPendingApprove, DocumentActive, DocumentRejected, DocumentInactive, DocumentDeleted:
		return true
	}
	return false
}

// Active reports whether a request still holds its document.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestAccepted
}

// Terminal reports whether the request can never change again.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestRejectedByReviewer, RequestExpired, RequestCompleted:
		return true
	}
	return false
}

func (s RequestStatus) Valid() bool {
	return s.Active() || s.Terminal()
}

// ActiveStatuses lists the statuses that count toward the one active request
// per document rule.
var ActiveStatuses = []RequestStatus{RequestPending, RequestAccepted}
