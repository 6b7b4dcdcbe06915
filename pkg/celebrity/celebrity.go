// Package celebrity is the recipient registry: a CRUD directory mapping an
// account to a display name, base price and default response window. The
// ledger consults it to default request parameters but does not own it.
package celebrity

import (
	"sync"
	"time"

	"github.com/ppalomo/hashink/pkg/clock"
	"github.com/ppalomo/hashink/pkg/domain"
	"github.com/ppalomo/hashink/pkg/ledger"
)

type Celebrity struct {
	Account        domain.Account `json:"account"`
	Name           string         `json:"name"`
	Price          uint64         `json:"price"`
	ResponseWindow time.Duration  `json:"response_window"`
	CreatedAt      time.Time      `json:"created_at"`
}

type Created struct {
	Account domain.Account `json:"account"`
	Name    string         `json:"name"`
}

type Updated struct {
	Account domain.Account `json:"account"`
	Name    string         `json:"name"`
}

type Deleted struct {
	Account domain.Account `json:"account"`
}

type Directory struct {
	mu      sync.RWMutex
	clk     clock.Clock
	entries map[domain.Account]Celebrity
	sink    func(event any)
}

func NewDirectory(clk clock.Clock) *Directory {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Directory{clk: clk, entries: make(map[domain.Account]Celebrity)}
}

func (d *Directory) Subscribe(sink func(event any)) {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

func (d *Directory) emit(event any) {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink != nil {
		sink(event)
	}
}

func (d *Directory) Create(acct domain.Account, name string, price uint64, responseWindow time.Duration) error {
	d.mu.Lock()
	if _, ok := d.entries[acct]; ok {
		d.mu.Unlock()
		return domain.ErrCelebrityExists
	}
	d.entries[acct] = Celebrity{
		Account:        acct,
		Name:           name,
		Price:          price,
		ResponseWindow: responseWindow,
		CreatedAt:      d.clk.Now(),
	}
	d.mu.Unlock()
	d.emit(Created{Account: acct, Name: name})
	return nil
}

func (d *Directory) Update(acct domain.Account, name string, price uint64, responseWindow time.Duration) error {
	d.mu.Lock()
	cur, ok := d.entries[acct]
	if !ok {
		d.mu.Unlock()
		return domain.ErrCelebrityNotFound
	}
	cur.Name = name
	cur.Price = price
	cur.ResponseWindow = responseWindow
	d.entries[acct] = cur
	d.mu.Unlock()
	d.emit(Updated{Account: acct, Name: name})
	return nil
}

func (d *Directory) Delete(acct domain.Account) error {
	d.mu.Lock()
	if _, ok := d.entries[acct]; !ok {
		d.mu.Unlock()
		return domain.ErrCelebrityNotFound
	}
	delete(d.entries, acct)
	d.mu.Unlock()
	d.emit(Deleted{Account: acct})
	return nil
}

func (d *Directory) Get(acct domain.Account) (Celebrity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.entries[acct]
	if !ok {
		return Celebrity{}, domain.ErrCelebrityNotFound
	}
	return c, nil
}

func (d *Directory) List() []Celebrity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Celebrity, 0, len(d.entries))
	for _, c := range d.entries {
		out = append(out, c)
	}
	return out
}

// Lookup implements ledger.RecipientDirectory.
func (d *Directory) Lookup(acct domain.Account) (ledger.RecipientInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.entries[acct]
	if !ok {
		return ledger.RecipientInfo{}, false
	}
	return ledger.RecipientInfo{
		DisplayName:    c.Name,
		BasePrice:      c.Price,
		ResponseWindow: c.ResponseWindow,
	}, true
}
