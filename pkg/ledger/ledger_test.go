package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppalomo/hashink/pkg/artifact"
	"github.com/ppalomo/hashink/pkg/clock"
	"github.com/ppalomo/hashink/pkg/domain"
	"github.com/ppalomo/hashink/pkg/fees"
	"github.com/ppalomo/hashink/pkg/payout"
)

const (
	admin    = domain.Account("admin")
	treasury = domain.Account("treasury")
	alice    = domain.Account("alice")
	bob      = domain.Account("bob")
	carol    = domain.Account("carol")
	dave     = domain.Account("dave")
)

type fixture struct {
	clk      *clock.Manual
	fc       *fees.Controller
	registry *artifact.Registry
	bank     *payout.Bank
	ledger   *Ledger
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fc := fees.New(admin, treasury)
	registry := artifact.NewRegistry(clk)
	bank := payout.NewBank()
	opts.Clock = clk
	led := New(fc, registry, bank, opts)
	return &fixture{clk: clk, fc: fc, registry: registry, bank: bank, ledger: led}
}

func (f *fixture) checkInvariant(t *testing.T) {
	t.Helper()
	held := f.ledger.Balance()
	var pendingTotal uint64
	for id := uint64(0); id < f.ledger.TotalRequests(); id++ {
		req, err := f.ledger.GetRequest(id)
		if err != nil {
			t.Fatalf("GetRequest(%d): %v", id, err)
		}
		if req.Status == domain.RequestPending {
			pendingTotal += req.Amount
		}
	}
	if held != pendingTotal {
		t.Fatalf("held balance %d != pending escrow total %d", held, pendingTotal)
	}
	var reqTotal uint64
	for _, acct := range []domain.Account{alice, bob, carol, dave, admin, treasury} {
		reqTotal += f.ledger.RequesterBalance(acct)
	}
	if reqTotal != held {
		t.Fatalf("sum of requester balances %d != held %d", reqTotal, held)
	}
	var recTotal uint64
	for _, acct := range []domain.Account{alice, bob, carol, dave, admin, treasury} {
		recTotal += f.ledger.RecipientBalance(acct)
	}
	if recTotal != held {
		t.Fatalf("sum of recipient balances %d != held %d", recTotal, held)
	}
}

func TestCreateRequestEscrowsAmount(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, time.Hour, 100)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if id != 0 {
		t.Fatalf("first id = %d, want 0", id)
	}
	if got := f.ledger.Balance(); got != 100 {
		t.Fatalf("held balance = %d, want 100", got)
	}
	if got := f.ledger.RequesterBalance(alice); got != 100 {
		t.Fatalf("requester balance = %d, want 100", got)
	}
	if got := f.ledger.RecipientBalance(bob); got != 100 {
		t.Fatalf("recipient balance = %d, want 100", got)
	}
	if got := f.ledger.NumberOfPendingRequests(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
	req, err := f.ledger.GetRequest(id)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if req.Status != domain.RequestPending {
		t.Fatalf("status = %s, want PENDING", req.Status)
	}
	if want := f.clk.Now().Add(time.Hour); !req.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", req.Deadline, want)
	}
	f.checkInvariant(t)
}

func TestCreateRequestValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, time.Hour, 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v, want INVALID_AMOUNT", err)
	}
	if _, err := f.ledger.CreateRequest(ctx, alice, nil, time.Hour, 10); !errors.Is(err, domain.ErrNoRecipients) {
		t.Fatalf("no recipients: got %v, want NO_RECIPIENTS", err)
	}
	if _, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{""}, time.Hour, 10); !errors.Is(err, domain.ErrNoRecipients) {
		t.Fatalf("empty recipient: got %v, want NO_RECIPIENTS", err)
	}
	if _, err := f.ledger.CreateRequest(ctx, "", []domain.Account{bob}, time.Hour, 10); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("empty requester: got %v, want NOT_AUTHORIZED", err)
	}
	if got := f.ledger.TotalRequests(); got != 0 {
		t.Fatalf("total requests after rejected creates = %d, want 0", got)
	}
}

func TestCreateRequestRejectsDuplicateRecipients(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob, carol, bob}, 0, 100); !errors.Is(err, domain.ErrDuplicateRecipient) {
		t.Fatalf("duplicate recipients: got %v, want DUPLICATE_RECIPIENT", err)
	}
	if got := f.ledger.Balance(); got != 0 {
		t.Fatalf("held after rejected create = %d, want 0", got)
	}
	if got := f.ledger.TotalRequests(); got != 0 {
		t.Fatalf("total requests after rejected create = %d, want 0", got)
	}
}

func TestFinalizeWithDuplicateRecipientsConservesEscrow(t *testing.T) {
	// Reloaded state may predate the duplicate-recipient check; a finalize
	// over such a request must still credit exactly what was escrowed.
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fc := fees.New(admin, treasury)
	registry := artifact.NewRegistry(clk)
	bank := payout.NewBank()
	reqs := []domain.Request{{
		ID:         0,
		Requester:  alice,
		Recipients: []domain.Account{bob, bob},
		Amount:     101,
		Status:     domain.RequestPending,
	}}
	led, err := Load(fc, registry, bank, Options{Clock: clk}, reqs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := led.FinalizeRequest(context.Background(), 0, bob, "x", "x"); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}
	// fee = 10, rest = 91, share = 45 per slot, remainder 1 paid once:
	// bob collects 45 + 1 + 45 = 91, never 92.
	if got := bank.BalanceOf(bob); got != 91 {
		t.Fatalf("bob = %d, want 91", got)
	}
	if got := bank.BalanceOf(treasury); got != 10 {
		t.Fatalf("treasury = %d, want 10", got)
	}
	if got := led.Balance(); got != 0 {
		t.Fatalf("held after finalize = %d, want 0", got)
	}
}

func TestRequestIDsAreSequentialAndNeverReused(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	for want := uint64(0); want < 3; want++ {
		id, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 10)
		if err != nil {
			t.Fatalf("CreateRequest: %v", err)
		}
		if id != want {
			t.Fatalf("id = %d, want %d", id, want)
		}
	}
	if err := f.ledger.CancelRequest(ctx, 1, alice); err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	id, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 10)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if id != 3 {
		t.Fatalf("id after cancel = %d, want 3 (ids are never reused)", id)
	}
	if got := f.ledger.TotalRequests(); got != 4 {
		t.Fatalf("total requests = %d, want 4 (counts every request ever)", got)
	}
}

func TestCancelBeforeDeadlineIsLocked(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, time.Hour, 100)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := f.ledger.CancelRequest(ctx, id, alice); !errors.Is(err, domain.ErrStillLocked) {
		t.Fatalf("cancel before deadline: got %v, want STILL_LOCKED", err)
	}
	locked, err := f.ledger.RequestIsLocked(id)
	if err != nil || !locked {
		t.Fatalf("RequestIsLocked = %v, %v, want true", locked, err)
	}

	f.clk.Advance(time.Hour)
	locked, err = f.ledger.RequestIsLocked(id)
	if err != nil || locked {
		t.Fatalf("RequestIsLocked at deadline = %v, %v, want false", locked, err)
	}
	if err := f.ledger.CancelRequest(ctx, id, alice); err != nil {
		t.Fatalf("cancel at deadline: %v", err)
	}
	if got := f.bank.BalanceOf(alice); got != 100 {
		t.Fatalf("refund = %d, want 100", got)
	}
	if got := f.ledger.Balance(); got != 0 {
		t.Fatalf("held after cancel = %d, want 0", got)
	}
	f.checkInvariant(t)
}

func TestCancelOnlyByRequester(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)
	if err := f.ledger.CancelRequest(ctx, id, bob); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("cancel by recipient: got %v, want NOT_OWNER", err)
	}
	if err := f.ledger.CancelRequest(ctx, id, admin); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("cancel by admin: got %v, want NOT_OWNER", err)
	}
}

func TestCancelUnknownRequest(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.ledger.CancelRequest(context.Background(), 42, alice); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Fatalf("got %v, want REQUEST_NOT_FOUND", err)
	}
}

func TestFinalizeSplitsFeeAndShares(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob, carol, dave}, time.Hour, 100)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	artifactID, err := f.ledger.FinalizeRequest(ctx, id, bob, "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG")
	if err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}

	// fee = 10, rest = 90, share = 30 each, no remainder.
	if got := f.bank.BalanceOf(treasury); got != 10 {
		t.Fatalf("treasury = %d, want 10", got)
	}
	for _, rec := range []domain.Account{bob, carol, dave} {
		if got := f.bank.BalanceOf(rec); got != 30 {
			t.Fatalf("%s = %d, want 30", rec, got)
		}
	}
	if got := f.ledger.Balance(); got != 0 {
		t.Fatalf("held after finalize = %d, want 0", got)
	}

	owner, err := f.registry.OwnerOf(artifactID)
	if err != nil || owner != alice {
		t.Fatalf("artifact owner = %v, %v, want alice", owner, err)
	}
	creators, err := f.registry.CreatorsOf(artifactID)
	if err != nil || len(creators) != 3 {
		t.Fatalf("creators = %v, %v, want the three recipients", creators, err)
	}
	if got := f.registry.TotalSupply(); got != 1 {
		t.Fatalf("total supply = %d, want 1", got)
	}
	f.checkInvariant(t)
}

func TestFinalizeRemainderGoesToFinalizingCaller(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	// amount 101: fee = 10, rest = 91, share = 30 each, remainder 1.
	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob, carol, dave}, 0, 101)
	if _, err := f.ledger.FinalizeRequest(ctx, id, carol, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}
	if got := f.bank.BalanceOf(carol); got != 31 {
		t.Fatalf("finalizing recipient = %d, want 31 (share + remainder)", got)
	}
	for _, rec := range []domain.Account{bob, dave} {
		if got := f.bank.BalanceOf(rec); got != 30 {
			t.Fatalf("%s = %d, want 30", rec, got)
		}
	}
	if got := f.bank.BalanceOf(treasury); got != 10 {
		t.Fatalf("treasury = %d, want 10", got)
	}
}

func TestFinalizeOnlyByRecipient(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)
	if _, err := f.ledger.FinalizeRequest(ctx, id, alice, "x", "x"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("finalize by requester: got %v, want NOT_AUTHORIZED", err)
	}
	if _, err := f.ledger.FinalizeRequest(ctx, id, admin, "x", "x"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("finalize by admin without override: got %v, want NOT_AUTHORIZED", err)
	}
}

func TestAdminFinalizeOverride(t *testing.T) {
	f := newFixture(t, Options{AllowAdminFinalize: true})
	ctx := context.Background()

	// Two recipients and amount 101 leave a remainder for the
	// non-recipient caller.
	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob, carol}, 0, 101)
	if _, err := f.ledger.FinalizeRequest(ctx, id, admin, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"); err != nil {
		t.Fatalf("admin finalize with override: %v", err)
	}
	// fee = 10, rest = 91, share = 45 each, remainder 1 to the admin.
	if got := f.bank.BalanceOf(bob); got != 45 {
		t.Fatalf("bob = %d, want 45", got)
	}
	if got := f.bank.BalanceOf(carol); got != 45 {
		t.Fatalf("carol = %d, want 45", got)
	}
	if got := f.bank.BalanceOf(admin); got != 1 {
		t.Fatalf("admin remainder = %d, want 1", got)
	}
}

func TestFinalizeReadsFeeConfigAtFinalizeTime(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)
	if err := f.fc.SetFeePercent(20, admin); err != nil {
		t.Fatalf("SetFeePercent: %v", err)
	}
	if _, err := f.ledger.FinalizeRequest(ctx, id, bob, "x", "x"); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}
	if got := f.bank.BalanceOf(treasury); got != 20 {
		t.Fatalf("treasury = %d, want 20 (fee config read at finalize)", got)
	}
	if got := f.bank.BalanceOf(bob); got != 80 {
		t.Fatalf("bob = %d, want 80", got)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	finID, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)
	cancelID, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)

	if _, err := f.ledger.FinalizeRequest(ctx, finID, bob, "x", "x"); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}
	if err := f.ledger.CancelRequest(ctx, cancelID, alice); err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}

	if _, err := f.ledger.FinalizeRequest(ctx, finID, bob, "x", "x"); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("re-finalize: got %v, want ALREADY_FINALIZED", err)
	}
	if err := f.ledger.CancelRequest(ctx, finID, alice); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("cancel finalized: got %v, want ALREADY_FINALIZED", err)
	}
	if _, err := f.ledger.FinalizeRequest(ctx, cancelID, bob, "x", "x"); !errors.Is(err, domain.ErrAlreadyCancelled) {
		t.Fatalf("finalize cancelled: got %v, want ALREADY_CANCELLED", err)
	}
	if err := f.ledger.CancelRequest(ctx, cancelID, alice); !errors.Is(err, domain.ErrAlreadyCancelled) {
		t.Fatalf("re-cancel: got %v, want ALREADY_CANCELLED", err)
	}
	if got := f.bank.BalanceOf(bob); got != 90 {
		t.Fatalf("bob paid %d, want 90 (exactly once)", got)
	}
	if got := f.bank.BalanceOf(alice); got != 100 {
		t.Fatalf("alice refunded %d, want 100 (exactly once)", got)
	}
}

func TestReentrantFinalizeSeesTerminalState(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)

	var reentrant error
	calls := 0
	f.bank.SetCreditHook(func(to domain.Account, amount uint64) {
		if to != bob {
			return
		}
		calls++
		if calls > 1 {
			return
		}
		// A recipient reacting to its payout by finalizing again must be
		// rejected: the terminal transition committed before the payout.
		_, reentrant = f.ledger.FinalizeRequest(ctx, id, bob, "x", "x")
	})

	if _, err := f.ledger.FinalizeRequest(ctx, id, bob, "x", "x"); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}
	if !errors.Is(reentrant, domain.ErrAlreadyFinalized) {
		t.Fatalf("re-entrant finalize: got %v, want ALREADY_FINALIZED", reentrant)
	}
	if got := f.bank.BalanceOf(bob); got != 90 {
		t.Fatalf("bob = %d, want 90 (no double payout)", got)
	}
	if got := f.registry.TotalSupply(); got != 1 {
		t.Fatalf("total supply = %d, want 1 (no double mint)", got)
	}
}

func TestReentrantCancelSeesTerminalState(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)

	var reentrant error
	calls := 0
	f.bank.SetCreditHook(func(to domain.Account, amount uint64) {
		calls++
		if calls > 1 {
			return
		}
		reentrant = f.ledger.CancelRequest(ctx, id, alice)
	})

	if err := f.ledger.CancelRequest(ctx, id, alice); err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if !errors.Is(reentrant, domain.ErrAlreadyCancelled) {
		t.Fatalf("re-entrant cancel: got %v, want ALREADY_CANCELLED", reentrant)
	}
	if got := f.bank.BalanceOf(alice); got != 100 {
		t.Fatalf("alice = %d, want 100 (refunded exactly once)", got)
	}
}

// failingBank wraps a Bank and fails credits to one account, modelling a
// payout rail that rejects a destination mid-settlement.
type failingBank struct {
	*payout.Bank
	failFor domain.Account
}

var errRejected = errors.New("destination rejected")

func (b *failingBank) Credit(ctx context.Context, to domain.Account, amount uint64) error {
	if to == b.failFor {
		return errRejected
	}
	return b.Bank.Credit(ctx, to, amount)
}

func newFailingFixture(t *testing.T, failFor domain.Account) (*fixture, *failingBank) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fc := fees.New(admin, treasury)
	registry := artifact.NewRegistry(clk)
	bank := &failingBank{Bank: payout.NewBank(), failFor: failFor}
	led := New(fc, registry, bank, Options{Clock: clk})
	return &fixture{clk: clk, fc: fc, registry: registry, bank: bank.Bank, ledger: led}, bank
}

func TestFinalizeUnwindsOnFailedTransfer(t *testing.T) {
	f, _ := newFailingFixture(t, carol)
	ctx := context.Background()

	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob, carol}, 0, 100)
	_, err := f.ledger.FinalizeRequest(ctx, id, bob, "x", "x")
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("got %v, want TRANSFER_FAILED", err)
	}

	// Everything already credited is debited back and the request stays
	// pending, so the whole settlement can be retried.
	if got := f.bank.BalanceOf(treasury); got != 0 {
		t.Fatalf("treasury after rollback = %d, want 0", got)
	}
	if got := f.bank.BalanceOf(bob); got != 0 {
		t.Fatalf("bob after rollback = %d, want 0", got)
	}
	req, _ := f.ledger.GetRequest(id)
	if req.Status != domain.RequestPending {
		t.Fatalf("status after rollback = %s, want PENDING", req.Status)
	}
	if got := f.ledger.Balance(); got != 100 {
		t.Fatalf("held after rollback = %d, want 100", got)
	}
	if got := f.ledger.NumberOfPendingRequests(); got != 1 {
		t.Fatalf("pending after rollback = %d, want 1", got)
	}
	if got := f.registry.TotalSupply(); got != 0 {
		t.Fatalf("total supply after rollback = %d, want 0", got)
	}
	f.checkInvariant(t)
}

func TestCancelRestoresEscrowOnFailedRefund(t *testing.T) {
	f, bank := newFailingFixture(t, alice)
	ctx := context.Background()

	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)
	if err := f.ledger.CancelRequest(ctx, id, alice); !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("got %v, want TRANSFER_FAILED", err)
	}
	req, _ := f.ledger.GetRequest(id)
	if req.Status != domain.RequestPending {
		t.Fatalf("status after failed refund = %s, want PENDING", req.Status)
	}
	if got := f.ledger.Balance(); got != 100 {
		t.Fatalf("held after failed refund = %d, want 100", got)
	}
	f.checkInvariant(t)

	// Once the rail recovers the cancel goes through.
	bank.failFor = ""
	if err := f.ledger.CancelRequest(ctx, id, alice); err != nil {
		t.Fatalf("retry cancel: %v", err)
	}
	if got := f.bank.BalanceOf(alice); got != 100 {
		t.Fatalf("refund after retry = %d, want 100", got)
	}
}

type staticDirectory map[domain.Account]RecipientInfo

func (d staticDirectory) Lookup(acct domain.Account) (RecipientInfo, bool) {
	info, ok := d[acct]
	return info, ok
}

func TestCreateRequestDefaultsWindowFromDirectory(t *testing.T) {
	dir := staticDirectory{bob: {DisplayName: "Bob", ResponseWindow: 48 * time.Hour}}
	f := newFixture(t, Options{Directory: dir})
	ctx := context.Background()

	id, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	req, _ := f.ledger.GetRequest(id)
	if want := f.clk.Now().Add(48 * time.Hour); !req.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want directory default %v", req.Deadline, want)
	}

	// An explicit window still wins over the directory default.
	id2, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, time.Hour, 100)
	req2, _ := f.ledger.GetRequest(id2)
	if want := f.clk.Now().Add(time.Hour); !req2.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want explicit %v", req2.Deadline, want)
	}
}

func TestEventsEmittedAfterCommit(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	var events []any
	f.ledger.Subscribe(func(event any) { events = append(events, event) })

	id, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)
	if _, err := f.ledger.FinalizeRequest(ctx, id, bob, "ref-a", "ref-b"); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	created, ok := events[0].(RequestCreated)
	if !ok || created.ID != id || created.Amount != 100 {
		t.Fatalf("first event = %#v, want RequestCreated for id %d", events[0], id)
	}
	finalized, ok := events[1].(RequestFinalized)
	if !ok || finalized.ID != id || finalized.ContentRef != "ref-a" {
		t.Fatalf("second event = %#v, want RequestFinalized for id %d", events[1], id)
	}
}

func TestLoadRebuildsPendingEscrow(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	a, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 100)
	b, _ := f.ledger.CreateRequest(ctx, alice, []domain.Account{carol}, 0, 50)
	if a != 0 || b != 1 {
		t.Fatalf("created ids = %d, %d, want 0, 1", a, b)
	}
	if _, err := f.ledger.FinalizeRequest(ctx, a, bob, "x", "x"); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}

	var persisted []domain.Request
	for id := uint64(0); id < f.ledger.TotalRequests(); id++ {
		req, _ := f.ledger.GetRequest(id)
		persisted = append(persisted, req)
	}

	bank := payout.NewBank()
	reloaded, err := Load(fees.New(admin, treasury), artifact.NewRegistry(f.clk), bank, Options{Clock: f.clk}, persisted)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := reloaded.Balance(); got != 50 {
		t.Fatalf("reloaded held = %d, want 50 (only the pending request)", got)
	}
	if got := reloaded.NumberOfPendingRequests(); got != 1 {
		t.Fatalf("reloaded pending = %d, want 1", got)
	}
	if got := reloaded.TotalRequests(); got != 2 {
		t.Fatalf("reloaded total = %d, want 2", got)
	}
	if got := reloaded.RecipientBalance(carol); got != 50 {
		t.Fatalf("reloaded carol owed = %d, want 50", got)
	}

	// The next id continues the sequence.
	id, err := reloaded.CreateRequest(ctx, alice, []domain.Account{bob}, 0, 10)
	if err != nil {
		t.Fatalf("CreateRequest after load: %v", err)
	}
	if id != uint64(len(persisted)) {
		t.Fatalf("id after load = %d, want %d", id, len(persisted))
	}
}

func TestLoadRejectsNonSequentialIDs(t *testing.T) {
	reqs := []domain.Request{{ID: 1, Requester: alice, Recipients: []domain.Account{bob}, Amount: 10, Status: domain.RequestPending}}
	if _, err := Load(fees.New(admin, treasury), artifact.NewRegistry(nil), payout.NewBank(), Options{}, reqs); err == nil {
		t.Fatal("Load accepted a gap in the id sequence")
	}
}

func TestLoadRejectsPendingRequestWithoutRecipients(t *testing.T) {
	reqs := []domain.Request{{ID: 0, Requester: alice, Amount: 10, Status: domain.RequestPending}}
	if _, err := Load(fees.New(admin, treasury), artifact.NewRegistry(nil), payout.NewBank(), Options{}, reqs); !errors.Is(err, domain.ErrNoRecipients) {
		t.Fatalf("Load with empty recipients: got %v, want NO_RECIPIENTS", err)
	}
}

func TestBalanceInvariantAcrossMixedSequence(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	ids := make([]uint64, 0, 6)
	for i := 0; i < 6; i++ {
		id, err := f.ledger.CreateRequest(ctx, alice, []domain.Account{bob, carol}, 0, uint64(10*(i+1)+i))
		if err != nil {
			t.Fatalf("CreateRequest: %v", err)
		}
		ids = append(ids, id)
		f.checkInvariant(t)
	}
	if _, err := f.ledger.FinalizeRequest(ctx, ids[0], bob, "x", "x"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	f.checkInvariant(t)
	if err := f.ledger.CancelRequest(ctx, ids[1], alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.checkInvariant(t)
	if _, err := f.ledger.FinalizeRequest(ctx, ids[4], carol, "x", "x"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	f.checkInvariant(t)
}
