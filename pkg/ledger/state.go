package ledger

import (
	"github.com/ppalomo/hashink/pkg/domain"
)

// SchemaVersion identifies the persistent layout below. The layout is
// frozen: field order and meaning never change across logic versions, so
// the engine's logic can be replaced wholesale over existing state.
const SchemaVersion = 1

// State is the engine's persistent record set: the sequential request
// table, the two running-balance mappings, and the total held balance.
// Logic never touches the fields directly outside this file; everything
// goes through the accessors, which form the stable storage contract.
type State struct {
	Version           uint32
	Requests          []domain.Request
	RequesterBalances map[domain.Account]uint64
	RecipientBalances map[domain.Account]uint64
	Held              uint64
	Pending           uint64
}

func NewState() *State {
	return &State{
		Version:           SchemaVersion,
		RequesterBalances: make(map[domain.Account]uint64),
		RecipientBalances: make(map[domain.Account]uint64),
	}
}

// appendRequest assigns the next sequential id. Ids are never reused.
func (s *State) appendRequest(req domain.Request) uint64 {
	req.ID = uint64(len(s.Requests))
	s.Requests = append(s.Requests, req)
	s.Pending++
	return req.ID
}

func (s *State) request(id uint64) (*domain.Request, error) {
	if id >= uint64(len(s.Requests)) {
		return nil, domain.ErrRequestNotFound
	}
	return &s.Requests[id], nil
}

// escrow records the bookkeeping for one created request: the held total,
// the requester's outstanding escrow, and each recipient's outstanding
// owed share. Fails without mutating on arithmetic overflow.
func (s *State) escrow(req domain.Request) error {
	held, err := domain.AddAmount(s.Held, req.Amount)
	if err != nil {
		return err
	}
	reqBal, err := domain.AddAmount(s.RequesterBalances[req.Requester], req.Amount)
	if err != nil {
		return err
	}
	shares := recipientShares(req.Amount, len(req.Recipients))
	recBals := make([]uint64, len(shares))
	for i, rec := range req.Recipients {
		recBals[i], err = domain.AddAmount(s.RecipientBalances[rec], shares[i])
		if err != nil {
			return err
		}
	}
	s.Held = held
	s.RequesterBalances[req.Requester] = reqBal
	for i, rec := range req.Recipients {
		s.RecipientBalances[rec] = recBals[i]
	}
	return nil
}

// release zeroes the bookkeeping recorded by escrow for req. The amounts
// were added by escrow, so the subtractions cannot underflow.
func (s *State) release(req domain.Request) {
	s.Held -= req.Amount
	s.RequesterBalances[req.Requester] -= req.Amount
	shares := recipientShares(req.Amount, len(req.Recipients))
	for i, rec := range req.Recipients {
		s.RecipientBalances[rec] -= shares[i]
	}
	s.Pending--
}

// reescrow reinstates the bookkeeping for req after a failed settlement.
func (s *State) reescrow(req domain.Request) {
	s.Held += req.Amount
	s.RequesterBalances[req.Requester] += req.Amount
	shares := recipientShares(req.Amount, len(req.Recipients))
	for i, rec := range req.Recipients {
		s.RecipientBalances[rec] += shares[i]
	}
	s.Pending++
}

// recipientShares splits amount across n recipients for running-balance
// bookkeeping. The split is deterministic so release can undo exactly what
// escrow recorded: everyone gets floor(amount/n), the first recipient
// absorbs the remainder.
func recipientShares(amount uint64, n int) []uint64 {
	shares := make([]uint64, n)
	each := amount / uint64(n)
	for i := range shares {
		shares[i] = each
	}
	shares[0] += amount - each*uint64(n)
	return shares
}
