package domain

import "time"

// Account identifies a party (requester, recipient, treasury, admin).
// The engine treats it as an opaque identifier.
type Account string

func (a Account) IsZero() bool { return a == "" }

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestFinalized RequestStatus = "FINALIZED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestFinalized || s == RequestCancelled
}

// Request is a payment-backed commission held in escrow until it is
// finalized by a recipient or cancelled by the requester after Deadline.
// Recipients is snapshotted at creation and never re-derived.
type Request struct {
	ID         uint64        `json:"id"`
	Requester  Account       `json:"requester"`
	Recipients []Account     `json:"recipients"`
	Amount     uint64        `json:"amount"`
	Deadline   time.Time     `json:"deadline"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (r Request) HasRecipient(acct Account) bool {
	for _, rec := range r.Recipients {
		if rec == acct {
			return true
		}
	}
	return false
}

// Locked reports whether the requester must still wait before cancelling.
func (r Request) Locked(now time.Time) bool {
	return now.Before(r.Deadline)
}

// Artifact is a minted, ownership-tracked token. Creators is fixed at
// mint time; Owner changes only through registry transfers.
type Artifact struct {
	ID          uint64    `json:"id"`
	Owner       Account   `json:"owner"`
	Creators    []Account `json:"creators"`
	ContentRef  string    `json:"content_ref"`
	MetadataRef string    `json:"metadata_ref"`
	MintedAt    time.Time `json:"minted_at"`
}
