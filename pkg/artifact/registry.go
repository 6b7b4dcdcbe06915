// Package artifact is the ownership-tracked registry of minted tokens.
// Every artifact has exactly one owner at any time and a non-empty creator
// set fixed at mint time.
package artifact

import (
	"sync"

	"github.com/ppalomo/hashink/pkg/clock"
	"github.com/ppalomo/hashink/pkg/domain"
)

type Minted struct {
	ID          uint64           `json:"id"`
	Owner       domain.Account   `json:"owner"`
	Creators    []domain.Account `json:"creators"`
	ContentRef  string           `json:"content_ref"`
	MetadataRef string           `json:"metadata_ref"`
}

type Transferred struct {
	ID   uint64         `json:"id"`
	From domain.Account `json:"from"`
	To   domain.Account `json:"to"`
}

// Registry assigns sequential ids starting at 0 and never reuses them.
// Mint is not exposed over any external surface; only the ledger, which
// owns the registry, calls it during settlement.
type Registry struct {
	mu        sync.RWMutex
	clk       clock.Clock
	artifacts []domain.Artifact
	approved  map[uint64]domain.Account
	owned     map[domain.Account]uint64
	sink      func(event any)
}

func NewRegistry(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Registry{
		clk:      clk,
		approved: make(map[uint64]domain.Account),
		owned:    make(map[domain.Account]uint64),
	}
}

// LoadRegistry rebuilds a Registry from persisted artifacts, which must
// arrive in id order. Per-artifact approvals are not persisted and reset
// on reload.
func LoadRegistry(clk clock.Clock, artifacts []domain.Artifact) (*Registry, error) {
	r := NewRegistry(clk)
	for _, a := range artifacts {
		if a.ID != uint64(len(r.artifacts)) {
			return nil, domain.ErrNoSuchArtifact
		}
		r.artifacts = append(r.artifacts, a)
		r.owned[a.Owner]++
	}
	return r, nil
}

// Subscribe registers sink for Minted and Transferred events.
func (r *Registry) Subscribe(sink func(event any)) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// Mint records a new artifact owned by owner and attributed to creators.
// It fails only on malformed input.
func (r *Registry) Mint(owner domain.Account, creators []domain.Account, contentRef, metadataRef string) (uint64, error) {
	if owner.IsZero() {
		return 0, domain.ErrNotOwner
	}
	if len(creators) == 0 {
		return 0, domain.ErrNoCreators
	}
	r.mu.Lock()
	id := uint64(len(r.artifacts))
	r.artifacts = append(r.artifacts, domain.Artifact{
		ID:          id,
		Owner:       owner,
		Creators:    append([]domain.Account(nil), creators...),
		ContentRef:  contentRef,
		MetadataRef: metadataRef,
		MintedAt:    r.clk.Now(),
	})
	r.owned[owner]++
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink(Minted{ID: id, Owner: owner, Creators: creators, ContentRef: contentRef, MetadataRef: metadataRef})
	}
	return id, nil
}

// Transfer moves id from its current owner to to. The caller must be the
// owner or the account approved for this artifact.
func (r *Registry) Transfer(from, to domain.Account, id uint64, caller domain.Account) error {
	if to.IsZero() {
		return domain.ErrNotOwnerOrApproved
	}
	r.mu.Lock()
	if id >= uint64(len(r.artifacts)) {
		r.mu.Unlock()
		return domain.ErrNoSuchArtifact
	}
	a := &r.artifacts[id]
	if a.Owner != from {
		r.mu.Unlock()
		return domain.ErrNotOwnerOrApproved
	}
	if caller != a.Owner && r.approved[id] != caller {
		r.mu.Unlock()
		return domain.ErrNotOwnerOrApproved
	}
	a.Owner = to
	delete(r.approved, id)
	r.owned[from]--
	r.owned[to]++
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink(Transferred{ID: id, From: from, To: to})
	}
	return nil
}

// Approve delegates transfer rights for one artifact to approved. Only the
// current owner may approve.
func (r *Registry) Approve(approved domain.Account, id uint64, caller domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id >= uint64(len(r.artifacts)) {
		return domain.ErrNoSuchArtifact
	}
	if r.artifacts[id].Owner != caller {
		return domain.ErrNotOwnerOrApproved
	}
	if approved.IsZero() {
		delete(r.approved, id)
	} else {
		r.approved[id] = approved
	}
	return nil
}

func (r *Registry) GetApproved(id uint64) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id >= uint64(len(r.artifacts)) {
		return "", domain.ErrNoSuchArtifact
	}
	return r.approved[id], nil
}

func (r *Registry) OwnerOf(id uint64) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id >= uint64(len(r.artifacts)) {
		return "", domain.ErrNoSuchArtifact
	}
	return r.artifacts[id].Owner, nil
}

func (r *Registry) CreatorsOf(id uint64) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id >= uint64(len(r.artifacts)) {
		return nil, domain.ErrNoSuchArtifact
	}
	return append([]domain.Account(nil), r.artifacts[id].Creators...), nil
}

func (r *Registry) ContentRefOf(id uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id >= uint64(len(r.artifacts)) {
		return "", domain.ErrNoSuchArtifact
	}
	return r.artifacts[id].ContentRef, nil
}

func (r *Registry) MetadataRefOf(id uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id >= uint64(len(r.artifacts)) {
		return "", domain.ErrNoSuchArtifact
	}
	return r.artifacts[id].MetadataRef, nil
}

// Get returns a copy of the full artifact record.
func (r *Registry) Get(id uint64) (domain.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id >= uint64(len(r.artifacts)) {
		return domain.Artifact{}, domain.ErrNoSuchArtifact
	}
	a := r.artifacts[id]
	a.Creators = append([]domain.Account(nil), a.Creators...)
	return a, nil
}

func (r *Registry) TotalSupply() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.artifacts))
}

func (r *Registry) BalanceOf(owner domain.Account) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owned[owner]
}
