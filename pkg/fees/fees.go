// Package fees holds the platform fee percentage and payout destination.
// A single Controller is shared by reference with the ledger, which reads
// the then-current configuration on every finalize (read-at-finalize, not
// read-at-create).
package fees

import (
	"sync"

	"github.com/ppalomo/hashink/pkg/domain"
)

// DefaultFeePercent matches the percentage the engine ships with.
const DefaultFeePercent = 10

type FeePercentChanged struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

type TreasuryChanged struct {
	Old domain.Account `json:"old"`
	New domain.Account `json:"new"`
}

type Controller struct {
	mu         sync.RWMutex
	admin      domain.Account
	treasury   domain.Account
	feePercent uint64
	sink       func(event any)
}

// New constructs a Controller administered by admin, paying fees to
// treasury, at DefaultFeePercent.
func New(admin, treasury domain.Account) *Controller {
	return &Controller{admin: admin, treasury: treasury, feePercent: DefaultFeePercent}
}

// Load rebuilds a Controller from a persisted configuration row.
func Load(admin, treasury domain.Account, feePercent uint64) (*Controller, error) {
	if feePercent > 100 {
		return nil, domain.ErrInvalidFee
	}
	return &Controller{admin: admin, treasury: treasury, feePercent: feePercent}, nil
}

// Subscribe registers sink for FeePercentChanged and TreasuryChanged
// events. A single subscriber is enough for the engine's wiring.
func (c *Controller) Subscribe(sink func(event any)) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *Controller) SetFeePercent(value uint64, caller domain.Account) error {
	c.mu.Lock()
	if caller != c.admin {
		c.mu.Unlock()
		return domain.ErrNotAuthorized
	}
	if value > 100 {
		c.mu.Unlock()
		return domain.ErrInvalidFee
	}
	old := c.feePercent
	c.feePercent = value
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(FeePercentChanged{Old: old, New: value})
	}
	return nil
}

func (c *Controller) SetTreasury(account domain.Account, caller domain.Account) error {
	c.mu.Lock()
	if caller != c.admin {
		c.mu.Unlock()
		return domain.ErrNotAuthorized
	}
	old := c.treasury
	c.treasury = account
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(TreasuryChanged{Old: old, New: account})
	}
	return nil
}

func (c *Controller) FeePercent() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.feePercent
}

func (c *Controller) Treasury() domain.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.treasury
}

func (c *Controller) IsAdmin(acct domain.Account) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return acct == c.admin
}
