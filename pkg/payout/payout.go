// Package payout moves settled value to party accounts. The ledger only
// talks to the Transferor interface; Bank is the in-process implementation.
package payout

import (
	"context"
	"sync"

	"github.com/ppalomo/hashink/pkg/domain"
)

// Transferor delivers value to (or claws it back from) a party account.
// A Credit may fail; the ledger treats any failure as fatal to the whole
// settlement and uses Debit to unwind credits it already issued.
type Transferor interface {
	Credit(ctx context.Context, to domain.Account, amount uint64) error
	Debit(ctx context.Context, from domain.Account, amount uint64) error
}

// Bank keeps per-account balances in memory with checked arithmetic.
type Bank struct {
	mu       sync.Mutex
	balances map[domain.Account]uint64
	onCredit func(to domain.Account, amount uint64)
}

func NewBank() *Bank {
	return &Bank{balances: make(map[domain.Account]uint64)}
}

// SetCreditHook registers fn to run after every successful credit, outside
// the bank's lock. Tests use it to model recipients that react to receiving
// funds, including ones that call back into the ledger.
func (b *Bank) SetCreditHook(fn func(to domain.Account, amount uint64)) {
	b.mu.Lock()
	b.onCredit = fn
	b.mu.Unlock()
}

func (b *Bank) Credit(_ context.Context, to domain.Account, amount uint64) error {
	b.mu.Lock()
	next, err := domain.AddAmount(b.balances[to], amount)
	if err != nil {
		b.mu.Unlock()
		return domain.ErrTransferFailed.WithCause(err)
	}
	b.balances[to] = next
	hook := b.onCredit
	b.mu.Unlock()
	if hook != nil {
		hook(to, amount)
	}
	return nil
}

func (b *Bank) Debit(_ context.Context, from domain.Account, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := domain.SubAmount(b.balances[from], amount)
	if err != nil {
		return domain.ErrTransferFailed.WithCause(err)
	}
	b.balances[from] = next
	return nil
}

func (b *Bank) BalanceOf(acct domain.Account) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[acct]
}
