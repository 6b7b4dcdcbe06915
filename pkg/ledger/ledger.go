// Package ledger manages the lifecycle of payment-backed requests:
// creation, time-locked cancellation, and finalization with atomic
// settlement through the fee controller and the artifact registry.
//
// Every operation follows checks-effects-interactions: state is committed
// before any outward transfer, so a call re-entering the ledger from
// within a payout observes the request already in its terminal state.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ppalomo/hashink/pkg/artifact"
	"github.com/ppalomo/hashink/pkg/clock"
	"github.com/ppalomo/hashink/pkg/domain"
	"github.com/ppalomo/hashink/pkg/fees"
	"github.com/ppalomo/hashink/pkg/payout"
)

// RecipientInfo is what the ledger reads from the recipient registry when
// defaulting request parameters. The registry itself is external.
type RecipientInfo struct {
	DisplayName    string
	BasePrice      uint64
	ResponseWindow time.Duration
}

type RecipientDirectory interface {
	Lookup(acct domain.Account) (RecipientInfo, bool)
}

// Options tune a Ledger. The zero value is valid: real clock, no
// directory, admin override disabled.
type Options struct {
	Clock     clock.Clock
	Directory RecipientDirectory

	// AllowAdminFinalize lets the fee administrator finalize a request it
	// is not a recipient of. Off unless explicitly enabled.
	AllowAdminFinalize bool
}

type Ledger struct {
	mu       sync.Mutex
	state    *State
	fees     *fees.Controller
	registry *artifact.Registry
	bank     payout.Transferor
	clk      clock.Clock
	dir      RecipientDirectory

	allowAdminFinalize bool

	// settling marks requests whose payouts are in flight. Terminal status
	// already rejects re-entrant calls; this is the extra guard around the
	// multi-transfer path.
	settling map[uint64]bool

	sink func(event any)
}

func New(fc *fees.Controller, reg *artifact.Registry, bank payout.Transferor, opts Options) *Ledger {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Ledger{
		state:              NewState(),
		fees:               fc,
		registry:           reg,
		bank:               bank,
		clk:                clk,
		dir:                opts.Directory,
		allowAdminFinalize: opts.AllowAdminFinalize,
		settling:           make(map[uint64]bool),
	}
}

// Load rebuilds a Ledger from previously persisted requests. Requests must
// arrive in id order; balances and the held total are reconstructed from
// the pending ones, since terminal requests carry no economic weight.
func Load(fc *fees.Controller, reg *artifact.Registry, bank payout.Transferor, opts Options, reqs []domain.Request) (*Ledger, error) {
	l := New(fc, reg, bank, opts)
	for _, r := range reqs {
		if r.ID != uint64(len(l.state.Requests)) {
			return nil, domain.ErrRequestNotFound.WithCause(errNonSequential)
		}
		if r.Status == domain.RequestPending {
			if len(r.Recipients) == 0 {
				return nil, domain.ErrNoRecipients
			}
			if err := l.state.escrow(r); err != nil {
				return nil, err
			}
			l.state.Pending++
		}
		l.state.Requests = append(l.state.Requests, r)
	}
	return l, nil
}

var errNonSequential = errors.New("persisted request ids are not sequential")

// Subscribe registers sink for RequestCreated, RequestCancelled and
// RequestFinalized events, delivered after the operation commits.
func (l *Ledger) Subscribe(sink func(event any)) {
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()
}

func (l *Ledger) emit(event any) {
	l.mu.Lock()
	sink := l.sink
	l.mu.Unlock()
	if sink != nil {
		sink(event)
	}
}

// CreateRequest escrows amount against a new pending request and returns
// its id. A zero responseWindow is defaulted from the recipient directory
// when one is wired.
func (l *Ledger) CreateRequest(ctx context.Context, requester domain.Account, recipients []domain.Account, responseWindow time.Duration, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, domain.ErrInvalidAmount
	}
	if requester.IsZero() {
		return 0, domain.ErrNotAuthorized
	}
	if len(recipients) == 0 {
		return 0, domain.ErrNoRecipients
	}
	seen := make(map[domain.Account]struct{}, len(recipients))
	for _, rec := range recipients {
		if rec.IsZero() {
			return 0, domain.ErrNoRecipients
		}
		if _, dup := seen[rec]; dup {
			return 0, domain.ErrDuplicateRecipient
		}
		seen[rec] = struct{}{}
	}
	if responseWindow <= 0 && l.dir != nil {
		if info, ok := l.dir.Lookup(recipients[0]); ok {
			responseWindow = info.ResponseWindow
		}
	}
	if responseWindow < 0 {
		responseWindow = 0
	}

	l.mu.Lock()
	now := l.clk.Now()
	req := domain.Request{
		Requester:  requester,
		Recipients: append([]domain.Account(nil), recipients...),
		Amount:     amount,
		Deadline:   now.Add(responseWindow),
		Status:     domain.RequestPending,
		CreatedAt:  now,
	}
	if err := l.state.escrow(req); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	id := l.state.appendRequest(req)
	l.mu.Unlock()

	l.emit(RequestCreated{ID: id, Requester: requester, Recipients: req.Recipients, Amount: amount, Deadline: req.Deadline})
	return id, nil
}

// CancelRequest refunds the escrow to the requester once the response
// window has elapsed. Only the requester may cancel, and only while the
// request is still pending.
func (l *Ledger) CancelRequest(ctx context.Context, id uint64, caller domain.Account) error {
	l.mu.Lock()
	req, err := l.state.request(id)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := pendingGuard(req.Status, l.settling[id]); err != nil {
		l.mu.Unlock()
		return err
	}
	if caller != req.Requester {
		l.mu.Unlock()
		return domain.ErrNotOwner
	}
	if req.Locked(l.clk.Now()) {
		l.mu.Unlock()
		return domain.ErrStillLocked
	}

	// Effects before interactions: commit the terminal transition and zero
	// the bookkeeping, then pay. A re-entrant cancel sees CANCELLED.
	snapshot := *req
	req.Status = domain.RequestCancelled
	l.state.release(snapshot)
	l.settling[id] = true
	l.mu.Unlock()

	if err := l.bank.Credit(ctx, snapshot.Requester, snapshot.Amount); err != nil {
		l.mu.Lock()
		// Re-fetch: the slice may have grown (and moved) since unlock.
		if cur, lookupErr := l.state.request(id); lookupErr == nil {
			cur.Status = domain.RequestPending
		}
		l.state.reescrow(snapshot)
		delete(l.settling, id)
		l.mu.Unlock()
		return domain.ErrTransferFailed.WithCause(err)
	}

	l.mu.Lock()
	delete(l.settling, id)
	l.mu.Unlock()

	l.emit(RequestCancelled{ID: id})
	return nil
}

// FinalizeRequest settles a pending request: the fee goes to the treasury,
// the remainder is split across the recipients (leftover units go to the
// finalizing caller), and an artifact owned by the requester and
// attributed to the recipients is minted. All of it succeeds or none of
// it does; on any failed transfer the issued credits are unwound and the
// request stays pending.
func (l *Ledger) FinalizeRequest(ctx context.Context, id uint64, caller domain.Account, contentRef, metadataRef string) (uint64, error) {
	l.mu.Lock()
	req, err := l.state.request(id)
	if err != nil {
		l.mu.Unlock()
		return 0, err
	}
	if err := pendingGuard(req.Status, l.settling[id]); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	if !req.HasRecipient(caller) && !(l.allowAdminFinalize && l.fees.IsAdmin(caller)) {
		l.mu.Unlock()
		return 0, domain.ErrNotAuthorized
	}

	// Fee configuration is read now, not at creation.
	feePercent := l.fees.FeePercent()
	treasury := l.fees.Treasury()
	split, err := domain.ComputeSplit(req.Amount, feePercent, len(req.Recipients))
	if err != nil {
		l.mu.Unlock()
		return 0, err
	}

	snapshot := *req
	req.Status = domain.RequestFinalized
	l.state.release(snapshot)
	l.settling[id] = true
	l.mu.Unlock()

	artifactID, err := l.settle(ctx, snapshot, caller, treasury, split, contentRef, metadataRef)
	if err != nil {
		l.mu.Lock()
		// Re-fetch: the slice may have grown (and moved) since unlock.
		if cur, lookupErr := l.state.request(id); lookupErr == nil {
			cur.Status = domain.RequestPending
		}
		l.state.reescrow(snapshot)
		delete(l.settling, id)
		l.mu.Unlock()
		return 0, err
	}

	l.mu.Lock()
	delete(l.settling, id)
	l.mu.Unlock()

	l.emit(RequestFinalized{
		ID:          id,
		Requester:   snapshot.Requester,
		Recipients:  snapshot.Recipients,
		ContentRef:  contentRef,
		MetadataRef: metadataRef,
		ArtifactID:  artifactID,
	})
	return artifactID, nil
}

// settle performs the outward half of a finalize: treasury fee, recipient
// shares, remainder to caller, then the mint. On failure it debits back
// whatever was already credited and reports TransferFailed.
func (l *Ledger) settle(ctx context.Context, req domain.Request, caller, treasury domain.Account, split domain.Split, contentRef, metadataRef string) (uint64, error) {
	type credit struct {
		to     domain.Account
		amount uint64
	}
	var issued []credit

	unwind := func() {
		for i := len(issued) - 1; i >= 0; i-- {
			_ = l.bank.Debit(ctx, issued[i].to, issued[i].amount)
		}
	}
	pay := func(to domain.Account, amount uint64) error {
		if amount == 0 {
			return nil
		}
		if err := l.bank.Credit(ctx, to, amount); err != nil {
			return err
		}
		issued = append(issued, credit{to: to, amount: amount})
		return nil
	}

	if err := pay(treasury, split.Fee); err != nil {
		unwind()
		return 0, domain.ErrTransferFailed.WithCause(err)
	}
	// The remainder is paid exactly once, even if the recipient slice
	// holds the caller more than once (possible in reloaded state that
	// predates the duplicate check).
	remainder := split.Remainder
	for _, rec := range req.Recipients {
		amount := split.Share
		if rec == caller && remainder > 0 {
			amount += remainder
			remainder = 0
		}
		if err := pay(rec, amount); err != nil {
			unwind()
			return 0, domain.ErrTransferFailed.WithCause(err)
		}
	}
	if remainder > 0 {
		if err := pay(caller, remainder); err != nil {
			unwind()
			return 0, domain.ErrTransferFailed.WithCause(err)
		}
	}

	artifactID, err := l.registry.Mint(req.Requester, req.Recipients, contentRef, metadataRef)
	if err != nil {
		unwind()
		return 0, err
	}
	return artifactID, nil
}

// pendingGuard rejects any operation on a request that already reached a
// terminal state or whose settlement is in flight.
func pendingGuard(status domain.RequestStatus, settling bool) error {
	switch {
	case status == domain.RequestFinalized:
		return domain.ErrAlreadyFinalized
	case status == domain.RequestCancelled:
		return domain.ErrAlreadyCancelled
	case settling:
		return domain.ErrAlreadyFinalized
	}
	return nil
}

// Balance is the total escrow held against pending requests.
func (l *Ledger) Balance() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Held
}

// TotalRequests counts every request ever created, any status.
func (l *Ledger) TotalRequests() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.state.Requests))
}

func (l *Ledger) NumberOfPendingRequests() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Pending
}

// RequesterBalance is the outstanding escrowed total for acct.
func (l *Ledger) RequesterBalance(acct domain.Account) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.RequesterBalances[acct]
}

// RecipientBalance is the outstanding owed total for acct.
func (l *Ledger) RecipientBalance(acct domain.Account) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.RecipientBalances[acct]
}

// GetRequest returns a copy of the request record.
func (l *Ledger) GetRequest(id uint64) (domain.Request, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, err := l.state.request(id)
	if err != nil {
		return domain.Request{}, err
	}
	out := *req
	out.Recipients = append([]domain.Account(nil), req.Recipients...)
	return out, nil
}

// RequestIsLocked reports whether the requester must still wait before
// cancelling id.
func (l *Ledger) RequestIsLocked(id uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, err := l.state.request(id)
	if err != nil {
		return false, err
	}
	return req.Locked(l.clk.Now()), nil
}
