package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/replypilot/enrich-cli/internal/db"
	"github.com/replypilot/enrich-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	name              TEXT NOT NULL,
	location          TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	facebook          TEXT NOT NULL DEFAULT '',
	instagram         TEXT NOT NULL DEFAULT '',
	tiktok            TEXT NOT NULL DEFAULT '',
	type              TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	keywords          TEXT[] NOT NULL DEFAULT '{}',
	places_id         TEXT NOT NULL DEFAULT '',
	maps_uri          TEXT NOT NULL DEFAULT '',
	identity_complete BOOLEAN NOT NULL DEFAULT false,
	contact_complete  BOOLEAN NOT NULL DEFAULT false,
	social_complete   BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_user_id ON leads(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_places_id ON leads(places_id) WHERE places_id <> '';

CREATE TABLE IF NOT EXISTS lead_sources (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	goal       TEXT NOT NULL,
	url        TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (lead_id, goal, url)
);

CREATE TABLE IF NOT EXISTS lead_enrichment_logs (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	lead_id    TEXT NOT NULL,
	goal       TEXT NOT NULL,
	step       TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	status     TEXT NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_enrichment_logs_lookup
	ON lead_enrichment_logs(user_id, lead_id, goal, created_at DESC);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Leads ---

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	lead.CreatedAt, lead.UpdatedAt = now, now
	lead.Keywords = model.NormalizeKeywords(lead.Keywords)

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT DO NOTHING`,
		lead.ID, lead.UserID, lead.Name, lead.Location, lead.Website, lead.Email, lead.Phone,
		lead.Facebook, lead.Instagram, lead.Tiktok, lead.Type, lead.Description, lead.Keywords,
		lead.PlacesID, lead.MapsURI, lead.IdentityComplete, lead.ContactComplete, lead.SocialComplete,
		lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert lead")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrDuplicatePlace, "postgres: places id %s", lead.PlacesID)
	}
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, userID, leadID string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1 AND user_id = $2`,
		leadID, userID,
	)
	l, err := scanPgLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", leadID)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, userID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

func pgLeadForUpdate(ctx context.Context, tx pgx.Tx, userID, leadID string) (*model.Lead, error) {
	return scanPgLead(tx.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		leadID, userID,
	))
}

func (s *PostgresStore) UpdateLead(ctx context.Context, userID, leadID string, apply func(*model.Lead) error) (*model.Lead, error) {
	var out *model.Lead
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		l, err := pgLeadForUpdate(ctx, tx, userID, leadID)
		if err != nil {
			return eris.Wrapf(err, "postgres: lock lead %s", leadID)
		}
		if err := apply(l); err != nil {
			return err
		}
		out, err = scanPgLead(tx.QueryRow(ctx,
			`UPDATE leads SET name = $1, location = $2, website = $3, email = $4, phone = $5,
				facebook = $6, instagram = $7, tiktok = $8, type = $9, description = $10, keywords = $11,
				identity_complete = $12, contact_complete = $13, social_complete = $14, updated_at = $15
			WHERE id = $16 AND user_id = $17
			RETURNING `+leadColumns,
			l.Name, l.Location, l.Website, l.Email, l.Phone,
			l.Facebook, l.Instagram, l.Tiktok, l.Type, l.Description, model.NormalizeKeywords(l.Keywords),
			l.IdentityComplete, l.ContactComplete, l.SocialComplete, time.Now().UTC(),
			leadID, userID,
		))
		return eris.Wrapf(err, "postgres: update lead %s", leadID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) UpdateContact(ctx context.Context, userID, leadID string, found model.ContactFacts) (*model.Lead, error) {
	var out *model.Lead
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := pgLeadForUpdate(ctx, tx, userID, leadID)
		if err != nil {
			return err
		}
		c := model.MergeContact(cur.Contact(), found)
		out, err = scanPgLead(tx.QueryRow(ctx,
			`UPDATE leads SET phone = $1, email = $2, facebook = $3, instagram = $4, tiktok = $5,
				contact_complete = $6, social_complete = $7, updated_at = $8
			WHERE id = $9 AND user_id = $10
			RETURNING `+leadColumns,
			c.Phone, c.Email, c.Facebook, c.Instagram, c.Tiktok,
			c.Complete(), c.SocialsComplete(), time.Now().UTC(),
			leadID, userID,
		))
		return err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update contact %s", leadID)
	}
	return out, nil
}

func (s *PostgresStore) UpdateIdentity(ctx context.Context, userID, leadID string, id model.IdentityFacts, website string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE leads SET type = $1, description = $2, keywords = $3, identity_complete = $4,
			website = CASE WHEN website = '' THEN $5 ELSE website END, updated_at = $6
		WHERE id = $7 AND user_id = $8
		RETURNING `+leadColumns,
		id.Type, id.Description, model.NormalizeKeywords(id.Keywords), id.Completed, website, time.Now().UTC(),
		leadID, userID,
	)
	l, err := scanPgLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update identity %s", leadID)
	}
	return l, nil
}

// DeleteLead removes a lead together with its sources and log entries.
func (s *PostgresStore) DeleteLead(ctx context.Context, userID, leadID string) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT true FROM leads WHERE id = $1 AND user_id = $2 FOR UPDATE`, leadID, userID,
		).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: delete lead %s", leadID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: lock lead %s", leadID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM lead_enrichment_logs WHERE lead_id = $1`, leadID); err != nil {
			return eris.Wrap(err, "postgres: delete logs")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM lead_sources WHERE lead_id = $1`, leadID); err != nil {
			return eris.Wrap(err, "postgres: delete sources")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM leads WHERE id = $1`, leadID); err != nil {
			return eris.Wrap(err, "postgres: delete lead")
		}
		return nil
	})
}

// --- Sources ---

func (s *PostgresStore) ListSources(ctx context.Context, leadID string) ([]model.LeadSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM lead_sources WHERE lead_id = $1 ORDER BY created_at, seq`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var out []model.LeadSource
	for rows.Next() {
		var src model.LeadSource
		if err := rows.Scan(&src.ID, &src.LeadID, &src.Goal, &src.URL, &src.Type, &src.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sources")
}

// CreateSource inserts a ledger row. The unique (lead_id, goal, url)
// constraint makes the insert the arbiter between concurrent claimants.
func (s *PostgresStore) CreateSource(ctx context.Context, src *model.LeadSource) error {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	src.CreatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO lead_sources (id, lead_id, goal, url, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (lead_id, goal, url) DO NOTHING`,
		src.ID, src.LeadID, string(src.Goal), src.URL, string(src.Type), src.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert source")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrDuplicateSource, "postgres: %s %s", src.Goal, src.URL)
	}
	return nil
}

// --- Enrichment log ---

// StartLog appends a STARTED entry whose attempt is one more than the number
// of prior entries for the same (user, lead, goal, step). A transaction-scoped
// advisory lock on that key serialises concurrent starts so no two entries
// share an attempt number.
func (s *PostgresStore) StartLog(ctx context.Context, e *model.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.Status = model.LogStarted
	e.CreatedAt, e.UpdatedAt = now, now

	key := strings.Join([]string{e.UserID, e.LeadID, string(e.Goal), string(e.Step)}, "|")
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return eris.Wrap(err, "postgres: lock attempt counter")
		}
		return tx.QueryRow(ctx,
			`INSERT INTO lead_enrichment_logs (id, user_id, lead_id, goal, step, attempt, status, message, created_at, updated_at)
			SELECT $1::text, $2::text, $3::text, $4::text, $5::text, COUNT(*)::int + 1, $6::text, $7::text, $8::timestamptz, $8::timestamptz
			FROM lead_enrichment_logs WHERE user_id = $2 AND lead_id = $3 AND goal = $4 AND step = $5
			RETURNING attempt`,
			e.ID, e.UserID, e.LeadID, string(e.Goal), string(e.Step), string(e.Status), e.Message, now,
		).Scan(&e.Attempt)
	})
	return eris.Wrapf(err, "postgres: start log %s/%s", e.Goal, e.Step)
}

// FinishLog moves a STARTED entry to a terminal status. Entries that are
// already terminal are left untouched.
func (s *PostgresStore) FinishLog(ctx context.Context, logID string, status model.LogStatus, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE lead_enrichment_logs SET status = $1, message = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		string(status), message, time.Now().UTC(), logID, string(model.LogStarted),
	)
	return eris.Wrapf(err, "postgres: finish log %s", logID)
}

func (s *PostgresStore) LatestLog(ctx context.Context, userID, leadID string, goal model.Goal) (*model.LogEntry, error) {
	var e model.LogEntry
	err := s.pool.QueryRow(ctx,
		`SELECT `+logColumns+` FROM lead_enrichment_logs
		WHERE user_id = $1 AND lead_id = $2 AND goal = $3
		ORDER BY created_at DESC, seq DESC LIMIT 1`,
		userID, leadID, string(goal),
	).Scan(&e.ID, &e.UserID, &e.LeadID, &e.Goal, &e.Step, &e.Attempt, &e.Status, &e.Message, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest log")
	}
	return &e, nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, userID, leadID string, goal model.Goal) ([]model.LogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+logColumns+` FROM lead_enrichment_logs
		WHERE user_id = $1 AND lead_id = $2 AND goal = $3
		ORDER BY created_at, seq`,
		userID, leadID, string(goal),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list logs")
	}
	defer rows.Close()

	var out []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.LeadID, &e.Goal, &e.Step, &e.Attempt, &e.Status, &e.Message, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate logs")
}

func scanPgLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	err := row.Scan(
		&l.ID, &l.UserID, &l.Name, &l.Location, &l.Website, &l.Email, &l.Phone,
		&l.Facebook, &l.Instagram, &l.Tiktok, &l.Type, &l.Description, &l.Keywords,
		&l.PlacesID, &l.MapsURI, &l.IdentityComplete, &l.ContactComplete, &l.SocialComplete,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if l.Keywords == nil {
		l.Keywords = []string{}
	}
	return &l, nil
}
