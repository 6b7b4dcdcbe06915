package ledger

import (
	"time"

	"github.com/ppalomo/hashink/pkg/domain"
)

type RequestCreated struct {
	ID         uint64           `json:"id"`
	Requester  domain.Account   `json:"requester"`
	Recipients []domain.Account `json:"recipients"`
	Amount     uint64           `json:"amount"`
	Deadline   time.Time        `json:"deadline"`
}

type RequestCancelled struct {
	ID uint64 `json:"id"`
}

type RequestFinalized struct {
	ID          uint64           `json:"id"`
	Requester   domain.Account   `json:"requester"`
	Recipients  []domain.Account `json:"recipients"`
	ContentRef  string           `json:"content_ref"`
	MetadataRef string           `json:"metadata_ref"`
	ArtifactID  uint64           `json:"artifact_id"`
}
