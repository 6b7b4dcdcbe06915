package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppalomo/hashink/pkg/contentref"
	"github.com/ppalomo/hashink/pkg/domain"
	"github.com/ppalomo/hashink/pkg/httpx"
	"github.com/ppalomo/hashink/pkg/receipt"
)

func (a *app) router() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {

		api.Post("/requests", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Requester             string   `json:"requester"`
				Recipients            []string `json:"recipients"`
				ResponseWindowSeconds int64    `json:"response_window_seconds"`
				Amount                uint64   `json:"amount"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			recipients := make([]domain.Account, len(req.Recipients))
			for i, rec := range req.Recipients {
				recipients[i] = domain.Account(rec)
			}
			id, err := a.ledger.CreateRequest(r.Context(), domain.Account(req.Requester), recipients,
				time.Duration(req.ResponseWindowSeconds)*time.Second, req.Amount)
			if err != nil {
				recordOutcome("create", err)
				httpx.WriteDomainError(w, err)
				return
			}
			recordOutcome("create", nil)
			setHeldBalance(a.ledger.Balance())
			a.persistRequest(r.Context(), id)
			rec, _ := a.ledger.GetRequest(id)
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "id": id, "request": rec})
		})

		api.Get("/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseID(w, r)
			if !ok {
				return
			}
			req, err := a.ledger.GetRequest(id)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			locked, _ := a.ledger.RequestIsLocked(id)
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "request": req, "locked": locked})
		})

		api.Post("/requests/{id}:cancel", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseID(w, r)
			if !ok {
				return
			}
			var req struct {
				Caller string `json:"caller"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := a.ledger.CancelRequest(r.Context(), id, domain.Account(req.Caller)); err != nil {
				recordOutcome("cancel", err)
				httpx.WriteDomainError(w, err)
				return
			}
			recordOutcome("cancel", nil)
			setHeldBalance(a.ledger.Balance())
			a.persistRequest(r.Context(), id)
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "id": id, "status": domain.RequestCancelled})
		})

		api.Post("/requests/{id}:finalize", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseID(w, r)
			if !ok {
				return
			}
			var req struct {
				Caller      string `json:"caller"`
				ContentRef  string `json:"content_ref"`
				MetadataRef string `json:"metadata_ref"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := contentref.Validate(req.ContentRef); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			if err := contentref.Validate(req.MetadataRef); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			artifactID, err := a.ledger.FinalizeRequest(r.Context(), id, domain.Account(req.Caller), req.ContentRef, req.MetadataRef)
			if err != nil {
				recordOutcome("finalize", err)
				httpx.WriteDomainError(w, err)
				return
			}
			recordOutcome("finalize", nil)
			setHeldBalance(a.ledger.Balance())
			a.persistRequest(r.Context(), id)
			a.persistArtifact(r.Context(), artifactID)
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id":  httpx.NewRequestID(),
				"id":          id,
				"status":      domain.RequestFinalized,
				"artifact_id": artifactID,
			})
		})

		api.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id":      httpx.NewRequestID(),
				"balance":         a.ledger.Balance(),
				"total_requests":  a.ledger.TotalRequests(),
				"pending":         a.ledger.NumberOfPendingRequests(),
				"total_artifacts": a.registry.TotalSupply(),
			})
		})

		api.Get("/balances/{account}", func(w http.ResponseWriter, r *http.Request) {
			acct := domain.Account(chi.URLParam(r, "account"))
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id":        httpx.NewRequestID(),
				"account":           acct,
				"requester_balance": a.ledger.RequesterBalance(acct),
				"recipient_balance": a.ledger.RecipientBalance(acct),
				"bank_balance":      a.bank.BalanceOf(acct),
			})
		})

		api.Get("/fees", func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id":  httpx.NewRequestID(),
				"fee_percent": a.fc.FeePercent(),
				"treasury":    a.fc.Treasury(),
			})
		})

		api.Post("/fees/percent", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Value  uint64 `json:"value"`
				Caller string `json:"caller"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := a.fc.SetFeePercent(req.Value, domain.Account(req.Caller)); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			a.persistFeeConfig(r.Context())
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "fee_percent": req.Value})
		})

		api.Post("/fees/treasury", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Account string `json:"account"`
				Caller  string `json:"caller"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := a.fc.SetTreasury(domain.Account(req.Account), domain.Account(req.Caller)); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			a.persistFeeConfig(r.Context())
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "treasury": req.Account})
		})

		api.Get("/artifacts/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseID(w, r)
			if !ok {
				return
			}
			art, err := a.registry.Get(id)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			approved, _ := a.registry.GetApproved(id)
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "artifact": art, "approved": approved})
		})

		api.Post("/artifacts/{id}:transfer", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseID(w, r)
			if !ok {
				return
			}
			var req struct {
				From   string `json:"from"`
				To     string `json:"to"`
				Caller string `json:"caller"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := a.registry.Transfer(domain.Account(req.From), domain.Account(req.To), id, domain.Account(req.Caller)); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			if a.st != nil {
				if err := a.st.UpdateArtifactOwner(r.Context(), id, domain.Account(req.To)); err != nil {
					a.log.Warn("artifact persistence failed", "id", id, "error", err)
				}
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "id": id, "owner": req.To})
		})

		api.Post("/artifacts/{id}:approve", func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseID(w, r)
			if !ok {
				return
			}
			var req struct {
				Approved string `json:"approved"`
				Caller   string `json:"caller"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := a.registry.Approve(domain.Account(req.Approved), id, domain.Account(req.Caller)); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "id": id, "approved": req.Approved})
		})

		api.Get("/accounts/{account}/artifacts", func(w http.ResponseWriter, r *http.Request) {
			acct := domain.Account(chi.URLParam(r, "account"))
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id": httpx.NewRequestID(),
				"account":    acct,
				"owned":      a.registry.BalanceOf(acct),
			})
		})

		api.Get("/celebrities", func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "celebrities": a.dir.List()})
		})

		api.Post("/celebrities", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Account               string `json:"account"`
				Name                  string `json:"name"`
				Price                 uint64 `json:"price"`
				ResponseWindowSeconds int64  `json:"response_window_seconds"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			window := time.Duration(req.ResponseWindowSeconds) * time.Second
			if err := a.dir.Create(domain.Account(req.Account), req.Name, req.Price, window); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			if a.st != nil {
				c, _ := a.dir.Get(domain.Account(req.Account))
				if err := a.st.SaveCelebrity(r.Context(), c.Account, c.Name, c.Price, c.ResponseWindow, c.CreatedAt); err != nil {
					a.log.Warn("celebrity persistence failed", "account", req.Account, "error", err)
				}
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "account": req.Account})
		})

		api.Get("/celebrities/{account}", func(w http.ResponseWriter, r *http.Request) {
			c, err := a.dir.Get(domain.Account(chi.URLParam(r, "account")))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "celebrity": c})
		})

		api.Put("/celebrities/{account}", func(w http.ResponseWriter, r *http.Request) {
			acct := domain.Account(chi.URLParam(r, "account"))
			var req struct {
				Name                  string `json:"name"`
				Price                 uint64 `json:"price"`
				ResponseWindowSeconds int64  `json:"response_window_seconds"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			window := time.Duration(req.ResponseWindowSeconds) * time.Second
			if err := a.dir.Update(acct, req.Name, req.Price, window); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			if a.st != nil {
				c, _ := a.dir.Get(acct)
				if err := a.st.SaveCelebrity(r.Context(), c.Account, c.Name, c.Price, c.ResponseWindow, c.CreatedAt); err != nil {
					a.log.Warn("celebrity persistence failed", "account", acct, "error", err)
				}
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "account": acct})
		})

		api.Delete("/celebrities/{account}", func(w http.ResponseWriter, r *http.Request) {
			acct := domain.Account(chi.URLParam(r, "account"))
			if err := a.dir.Delete(acct); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			if a.st != nil {
				if err := a.st.DeleteCelebrity(r.Context(), acct); err != nil {
					a.log.Warn("celebrity persistence failed", "account", acct, "error", err)
				}
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "deleted": true})
		})

		api.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			history := a.eventHistory()
			hash, err := receipt.ChainHash(history)
			if err != nil {
				httpx.WriteError(w, 500, "RECEIPT_ERROR", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id":   httpx.NewRequestID(),
				"events":       history,
				"receipt_hash": hash,
			})
		})
	})

	return r
}

func parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, 400, "BAD_ID", "id must be a non-negative integer", nil)
		return 0, false
	}
	return id, true
}
