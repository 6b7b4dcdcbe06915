// Package store persists the engine's records in Postgres. The table
// layout mirrors the engine's frozen state schema: a sequential request
// table, a sequential artifact table, and a single fee-config row. Columns
// never change order or meaning across versions; new columns append.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppalomo/hashink/pkg/domain"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// pgInt converts an engine value for a BIGINT column. Values above
// MaxInt64 would wrap negative and trip the column CHECKs, so the
// write fails here instead.
func pgInt(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("store: value %d exceeds BIGINT range", v)
	}
	return int64(v), nil
}

func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id BIGINT PRIMARY KEY,
		requester TEXT NOT NULL,
		recipients TEXT[] NOT NULL,
		amount BIGINT NOT NULL CHECK (amount > 0),
		deadline TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		id BIGINT PRIMARY KEY,
		owner_account TEXT NOT NULL,
		creators TEXT[] NOT NULL,
		content_ref TEXT NOT NULL,
		metadata_ref TEXT NOT NULL,
		minted_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fee_config (
		id INT PRIMARY KEY CHECK (id = 1),
		fee_percent BIGINT NOT NULL CHECK (fee_percent BETWEEN 0 AND 100),
		treasury TEXT NOT NULL,
		admin TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS celebrities (
		account TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price BIGINT NOT NULL,
		response_window_seconds BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		payload JSONB NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_events_type ON ledger_events(type);
	`
	_, err := s.DB.Exec(ctx, schema)
	return err
}

func (s *Store) SaveRequest(ctx context.Context, r domain.Request) error {
	id, err := pgInt(r.ID)
	if err != nil {
		return err
	}
	amount, err := pgInt(r.Amount)
	if err != nil {
		return err
	}
	recipients := make([]string, len(r.Recipients))
	for i, rec := range r.Recipients {
		recipients[i] = string(rec)
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO requests(id,requester,recipients,amount,deadline,status,created_at)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status
`, id, string(r.Requester), recipients, amount, r.Deadline, string(r.Status), r.CreatedAt)
	return err
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id uint64, status domain.RequestStatus) error {
	pid, err := pgInt(id)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `UPDATE requests SET status=$1 WHERE id=$2`, string(status), pid)
	return err
}

func (s *Store) ListRequests(ctx context.Context) ([]domain.Request, error) {
	rows, err := s.DB.Query(ctx, `SELECT id,requester,recipients,amount,deadline,status,created_at FROM requests ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Request
	for rows.Next() {
		var (
			id, amount int64
			requester  string
			recipients []string
			status     string
			r          domain.Request
		)
		if err := rows.Scan(&id, &requester, &recipients, &amount, &r.Deadline, &status, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ID = uint64(id)
		r.Requester = domain.Account(requester)
		r.Amount = uint64(amount)
		r.Status = domain.RequestStatus(status)
		r.Recipients = make([]domain.Account, len(recipients))
		for i, rec := range recipients {
			r.Recipients[i] = domain.Account(rec)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SaveArtifact(ctx context.Context, a domain.Artifact) error {
	id, err := pgInt(a.ID)
	if err != nil {
		return err
	}
	creators := make([]string, len(a.Creators))
	for i, c := range a.Creators {
		creators[i] = string(c)
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO artifacts(id,owner_account,creators,content_ref,metadata_ref,minted_at)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET owner_account=EXCLUDED.owner_account
`, id, string(a.Owner), creators, a.ContentRef, a.MetadataRef, a.MintedAt)
	return err
}

func (s *Store) UpdateArtifactOwner(ctx context.Context, id uint64, owner domain.Account) error {
	pid, err := pgInt(id)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `UPDATE artifacts SET owner_account=$1 WHERE id=$2`, string(owner), pid)
	return err
}

func (s *Store) ListArtifacts(ctx context.Context) ([]domain.Artifact, error) {
	rows, err := s.DB.Query(ctx, `SELECT id,owner_account,creators,content_ref,metadata_ref,minted_at FROM artifacts ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Artifact
	for rows.Next() {
		var (
			id       int64
			owner    string
			creators []string
			a        domain.Artifact
		)
		if err := rows.Scan(&id, &owner, &creators, &a.ContentRef, &a.MetadataRef, &a.MintedAt); err != nil {
			return nil, err
		}
		a.ID = uint64(id)
		a.Owner = domain.Account(owner)
		a.Creators = make([]domain.Account, len(creators))
		for i, c := range creators {
			a.Creators[i] = domain.Account(c)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveFeeConfig(ctx context.Context, feePercent uint64, treasury, admin domain.Account) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO fee_config(id,fee_percent,treasury,admin,updated_at)
VALUES(1,$1,$2,$3,now())
ON CONFLICT (id) DO UPDATE SET fee_percent=$1, treasury=$2, admin=$3, updated_at=now()
`, int64(feePercent), string(treasury), string(admin))
	return err
}

// GetFeeConfig returns the persisted fee row, or ok=false when none exists.
func (s *Store) GetFeeConfig(ctx context.Context) (feePercent uint64, treasury, admin domain.Account, ok bool, err error) {
	var fp int64
	var t, a string
	err = s.DB.QueryRow(ctx, `SELECT fee_percent,treasury,admin FROM fee_config WHERE id=1`).Scan(&fp, &t, &a)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", "", false, nil
	}
	if err != nil {
		return 0, "", "", false, err
	}
	return uint64(fp), domain.Account(t), domain.Account(a), true, nil
}

func (s *Store) SaveCelebrity(ctx context.Context, acct domain.Account, name string, price uint64, responseWindow time.Duration, createdAt time.Time) error {
	p, err := pgInt(price)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO celebrities(account,name,price,response_window_seconds,created_at)
VALUES($1,$2,$3,$4,$5)
ON CONFLICT (account) DO UPDATE SET name=$2, price=$3, response_window_seconds=$4
`, string(acct), name, p, int64(responseWindow/time.Second), createdAt)
	return err
}

func (s *Store) DeleteCelebrity(ctx context.Context, acct domain.Account) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM celebrities WHERE account=$1`, string(acct))
	return err
}

func (s *Store) AddEvent(ctx context.Context, typ string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `INSERT INTO ledger_events(type,payload) VALUES($1,$2::jsonb)`, typ, string(b))
	return err
}

func (s *Store) ListEvents(ctx context.Context) ([]map[string]any, error) {
	rows, err := s.DB.Query(ctx, `SELECT type,payload,occurred_at FROM ledger_events ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		var typ string
		var payload []byte
		var at time.Time
		if err := rows.Scan(&typ, &payload, &at); err != nil {
			return nil, err
		}
		var obj any
		_ = json.Unmarshal(payload, &obj)
		out = append(out, map[string]any{"type": typ, "payload": obj, "at": at.Format(time.RFC3339)})
	}
	return out, rows.Err()
}
