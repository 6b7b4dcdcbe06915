package main

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/ppalomo/hashink/pkg/artifact"
	"github.com/ppalomo/hashink/pkg/celebrity"
	"github.com/ppalomo/hashink/pkg/clock"
	"github.com/ppalomo/hashink/pkg/domain"
	"github.com/ppalomo/hashink/pkg/fees"
	"github.com/ppalomo/hashink/pkg/ledger"
	"github.com/ppalomo/hashink/pkg/payout"
	"github.com/ppalomo/hashink/pkg/receipt"
	"github.com/ppalomo/hashink/pkg/webhooks"
	"github.com/ppalomo/hashink/services/ledger/internal/store"
)

type appConfig struct {
	Admin              domain.Account
	Treasury           domain.Account
	AllowAdminFinalize bool
	WebhookURL         string
	WebhookSecret      string
}

// app wires the engine together: fee controller, artifact registry, payout
// bank, request ledger, recipient directory, and the optional Postgres
// store and webhook notifier.
type app struct {
	log      pslog.Logger
	fc       *fees.Controller
	registry *artifact.Registry
	bank     *payout.Bank
	ledger   *ledger.Ledger
	dir      *celebrity.Directory
	st       *store.Store
	notifier *webhooks.Notifier
	admin    domain.Account

	mu     sync.Mutex
	events []receipt.Entry
}

// newApp builds a fresh engine, reloading persisted state when a store is
// provided.
func newApp(ctx context.Context, log pslog.Logger, cfg appConfig, st *store.Store) (*app, error) {
	clk := clock.Real{}

	fc := fees.New(cfg.Admin, cfg.Treasury)
	registry := artifact.NewRegistry(clk)
	bank := payout.NewBank()
	dir := celebrity.NewDirectory(clk)

	var led *ledger.Ledger
	if st != nil {
		if err := st.InitSchema(ctx); err != nil {
			return nil, err
		}
		feePercent, treasury, admin, ok, err := st.GetFeeConfig(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			fc, err = fees.Load(admin, treasury, feePercent)
			if err != nil {
				return nil, err
			}
			cfg.Admin = admin
		}
		artifacts, err := st.ListArtifacts(ctx)
		if err != nil {
			return nil, err
		}
		registry, err = artifact.LoadRegistry(clk, artifacts)
		if err != nil {
			return nil, err
		}
		requests, err := st.ListRequests(ctx)
		if err != nil {
			return nil, err
		}
		led, err = ledger.Load(fc, registry, bank, ledger.Options{
			Clock:              clk,
			Directory:          dir,
			AllowAdminFinalize: cfg.AllowAdminFinalize,
		}, requests)
		if err != nil {
			return nil, err
		}
		log.Info("state reloaded", "requests", len(requests), "artifacts", len(artifacts))
	} else {
		led = ledger.New(fc, registry, bank, ledger.Options{
			Clock:              clk,
			Directory:          dir,
			AllowAdminFinalize: cfg.AllowAdminFinalize,
		})
	}

	a := &app{
		log:      log,
		fc:       fc,
		registry: registry,
		bank:     bank,
		ledger:   led,
		dir:      dir,
		st:       st,
		admin:    cfg.Admin,
	}
	if cfg.WebhookURL != "" {
		a.notifier = webhooks.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret)
	}

	led.Subscribe(a.observe)
	fc.Subscribe(a.observe)
	registry.Subscribe(a.observe)
	dir.Subscribe(a.observe)
	return a, nil
}

// observe fans each engine event out to the log, the in-memory history,
// the event table and the webhook endpoint.
func (a *app) observe(event any) {
	typ := eventType(event)
	a.log.Info("event", "type", typ, "payload", event)
	recordEvent(typ)

	a.mu.Lock()
	a.events = append(a.events, receipt.Entry{Type: typ, Payload: event, At: time.Now().UTC()})
	a.mu.Unlock()

	if a.st != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.st.AddEvent(ctx, typ, event); err != nil {
			a.log.Warn("event persistence failed", "type", typ, "error", err)
		}
		cancel()
	}
	if a.notifier != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := a.notifier.Notify(ctx, typ, event); err != nil {
				a.log.Warn("webhook delivery failed", "type", typ, "error", err)
			}
		}()
	}
}

func (a *app) eventHistory() []receipt.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]receipt.Entry(nil), a.events...)
}

func eventType(event any) string {
	switch event.(type) {
	case ledger.RequestCreated:
		return "REQUEST_CREATED"
	case ledger.RequestCancelled:
		return "REQUEST_CANCELLED"
	case ledger.RequestFinalized:
		return "REQUEST_FINALIZED"
	case fees.FeePercentChanged:
		return "FEE_PERCENT_CHANGED"
	case fees.TreasuryChanged:
		return "TREASURY_CHANGED"
	case artifact.Minted:
		return "ARTIFACT_MINTED"
	case artifact.Transferred:
		return "ARTIFACT_TRANSFERRED"
	case celebrity.Created:
		return "CELEBRITY_CREATED"
	case celebrity.Updated:
		return "CELEBRITY_UPDATED"
	case celebrity.Deleted:
		return "CELEBRITY_DELETED"
	default:
		return "UNKNOWN"
	}
}

// persistRequest mirrors the current request record into the store.
func (a *app) persistRequest(ctx context.Context, id uint64) {
	if a.st == nil {
		return
	}
	req, err := a.ledger.GetRequest(id)
	if err != nil {
		return
	}
	if err := a.st.SaveRequest(ctx, req); err != nil {
		a.log.Warn("request persistence failed", "id", id, "error", err)
	}
}

func (a *app) persistArtifact(ctx context.Context, id uint64) {
	if a.st == nil {
		return
	}
	art, err := a.registry.Get(id)
	if err != nil {
		return
	}
	if err := a.st.SaveArtifact(ctx, art); err != nil {
		a.log.Warn("artifact persistence failed", "id", id, "error", err)
	}
}

func (a *app) persistFeeConfig(ctx context.Context) {
	if a.st == nil {
		return
	}
	if err := a.st.SaveFeeConfig(ctx, a.fc.FeePercent(), a.fc.Treasury(), a.admin); err != nil {
		a.log.Warn("fee config persistence failed", "error", err)
	}
}
