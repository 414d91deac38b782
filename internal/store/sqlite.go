package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/replypilot/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// busy_timeout is also set through the DSN so it applies to every pooled connection.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+"_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	keywords          TEXT NOT NULL DEFAULT '[]',
	places_id         TEXT NOT NULL DEFAULT '',
	maps_uri          TEXT NOT NULL DEFAULT '',
	identity_complete INTEGER NOT NULL DEFAULT 0,
	contact_complete  INTEGER NOT NULL DEFAULT 0,
	social_complete   INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_user_id ON leads(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_places_id ON leads(places_id) WHERE places_id <> '';

CREATE TABLE IF NOT EXISTS lead_sources (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	goal       TEXT NOT NULL,
	url        TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (lead_id, goal, url)
);

CREATE TABLE IF NOT EXISTS lead_enrichment_logs (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	lead_id    TEXT NOT NULL,
	goal       TEXT NOT NULL,
	step       TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	status     TEXT NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_enrichment_logs_lookup
	ON lead_enrichment_logs(user_id, lead_id, goal, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Leads ---

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	lead.CreatedAt, lead.UpdatedAt = now, now
	lead.Keywords = model.NormalizeKeywords(lead.Keywords)

	kw, err := json.Marshal(lead.Keywords)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal keywords")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		lead.ID, lead.UserID, lead.Name, lead.Location, lead.Website, lead.Email, lead.Phone,
		lead.Facebook, lead.Instagram, lead.Tiktok, lead.Type, lead.Description, string(kw),
		lead.PlacesID, lead.MapsURI, lead.IdentityComplete, lead.ContactComplete, lead.SocialComplete,
		lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert lead")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrDuplicatePlace, "sqlite: places id %s", lead.PlacesID)
	}
	return nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, userID, leadID string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ? AND user_id = ?`,
		leadID, userID,
	)
	l, err := scanSQLiteLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", leadID)
	}
	return l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, userID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

// inTx runs fn in a transaction. The DSN sets _txlock=immediate, so the
// write lock is held from BEGIN and concurrent writers queue on busy_timeout.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func sqliteLeadForUpdate(ctx context.Context, tx *sql.Tx, userID, leadID string) (*model.Lead, error) {
	return scanSQLiteLead(tx.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ? AND user_id = ?`,
		leadID, userID,
	))
}

func (s *SQLiteStore) UpdateLead(ctx context.Context, userID, leadID string, apply func(*model.Lead) error) (*model.Lead, error) {
	var out *model.Lead
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		l, err := sqliteLeadForUpdate(ctx, tx, userID, leadID)
		if err != nil {
			return eris.Wrapf(err, "sqlite: load lead %s", leadID)
		}
		if err := apply(l); err != nil {
			return err
		}
		kw, err := json.Marshal(model.NormalizeKeywords(l.Keywords))
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal keywords")
		}
		out, err = scanSQLiteLead(tx.QueryRowContext(ctx,
			`UPDATE leads SET name = ?, location = ?, website = ?, email = ?, phone = ?,
				facebook = ?, instagram = ?, tiktok = ?, type = ?, description = ?, keywords = ?,
				identity_complete = ?, contact_complete = ?, social_complete = ?, updated_at = ?
			WHERE id = ? AND user_id = ?
			RETURNING `+leadColumns,
			l.Name, l.Location, l.Website, l.Email, l.Phone,
			l.Facebook, l.Instagram, l.Tiktok, l.Type, l.Description, string(kw),
			l.IdentityComplete, l.ContactComplete, l.SocialComplete, time.Now().UTC(),
			leadID, userID,
		))
		return eris.Wrapf(err, "sqlite: update lead %s", leadID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) UpdateContact(ctx context.Context, userID, leadID string, found model.ContactFacts) (*model.Lead, error) {
	var out *model.Lead
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := sqliteLeadForUpdate(ctx, tx, userID, leadID)
		if err != nil {
			return err
		}
		c := model.MergeContact(cur.Contact(), found)
		out, err = scanSQLiteLead(tx.QueryRowContext(ctx,
			`UPDATE leads SET phone = ?, email = ?, facebook = ?, instagram = ?, tiktok = ?,
				contact_complete = ?, social_complete = ?, updated_at = ?
			WHERE id = ? AND user_id = ?
			RETURNING `+leadColumns,
			c.Phone, c.Email, c.Facebook, c.Instagram, c.Tiktok,
			c.Complete(), c.SocialsComplete(), time.Now().UTC(),
			leadID, userID,
		))
		return err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update contact %s", leadID)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateIdentity(ctx context.Context, userID, leadID string, id model.IdentityFacts, website string) (*model.Lead, error) {
	kw, err := json.Marshal(model.NormalizeKeywords(id.Keywords))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal keywords")
	}
	row := s.db.QueryRowContext(ctx,
		`UPDATE leads SET type = ?, description = ?, keywords = ?, identity_complete = ?,
			website = CASE WHEN website = '' THEN ? ELSE website END, updated_at = ?
		WHERE id = ? AND user_id = ?
		RETURNING `+leadColumns,
		id.Type, id.Description, string(kw), id.Completed, website, time.Now().UTC(),
		leadID, userID,
	)
	l, err := scanSQLiteLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update identity %s", leadID)
	}
	return l, nil
}

// DeleteLead removes a lead together with its sources and log entries.
func (s *SQLiteStore) DeleteLead(ctx context.Context, userID, leadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM leads WHERE id = ? AND user_id = ?`, leadID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: delete lead %s", leadID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: find lead %s", leadID)
	}
	for _, stmt := range []string{
		`DELETE FROM lead_enrichment_logs WHERE lead_id = ?`,
		`DELETE FROM lead_sources WHERE lead_id = ?`,
		`DELETE FROM leads WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, leadID); err != nil {
			return eris.Wrap(err, "sqlite: cascade delete")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

// --- Sources ---

func (s *SQLiteStore) ListSources(ctx context.Context, leadID string) ([]model.LeadSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM lead_sources WHERE lead_id = ? ORDER BY created_at, rowid`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LeadSource
	for rows.Next() {
		var src model.LeadSource
		var goal, typ string
		if err := rows.Scan(&src.ID, &src.LeadID, &goal, &src.URL, &typ, &src.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		src.Goal, src.Type = model.Goal(goal), model.SourceType(typ)
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sources")
}

func (s *SQLiteStore) CreateSource(ctx context.Context, src *model.LeadSource) error {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	src.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_sources (id, lead_id, goal, url, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (lead_id, goal, url) DO NOTHING`,
		src.ID, src.LeadID, string(src.Goal), src.URL, string(src.Type), src.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert source")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrDuplicateSource, "sqlite: %s %s", src.Goal, src.URL)
	}
	return nil
}

// --- Enrichment log ---

func (s *SQLiteStore) StartLog(ctx context.Context, e *model.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.Status = model.LogStarted
	e.CreatedAt, e.UpdatedAt = now, now

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO lead_enrichment_logs (id, user_id, lead_id, goal, step, attempt, status, message, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, COUNT(*) + 1, ?, ?, ?, ?
		FROM lead_enrichment_logs WHERE user_id = ? AND lead_id = ? AND goal = ? AND step = ?
		RETURNING attempt`,
		e.ID, e.UserID, e.LeadID, string(e.Goal), string(e.Step), string(e.Status), e.Message, now, now,
		e.UserID, e.LeadID, string(e.Goal), string(e.Step),
	).Scan(&e.Attempt)
	return eris.Wrapf(err, "sqlite: start log %s/%s", e.Goal, e.Step)
}

func (s *SQLiteStore) FinishLog(ctx context.Context, logID string, status model.LogStatus, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lead_enrichment_logs SET status = ?, message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), message, time.Now().UTC(), logID, string(model.LogStarted),
	)
	return eris.Wrapf(err, "sqlite: finish log %s", logID)
}

func (s *SQLiteStore) LatestLog(ctx context.Context, userID, leadID string, goal model.Goal) (*model.LogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM lead_enrichment_logs
		WHERE user_id = ? AND lead_id = ? AND goal = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		userID, leadID, string(goal),
	)
	e, err := scanSQLiteLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest log")
	}
	return e, nil
}

func (s *SQLiteStore) ListLogs(ctx context.Context, userID, leadID string, goal model.Goal) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM lead_enrichment_logs
		WHERE user_id = ? AND lead_id = ? AND goal = ?
		ORDER BY created_at, rowid`,
		userID, leadID, string(goal),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list logs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LogEntry
	for rows.Next() {
		e, err := scanSQLiteLog(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate logs")
}

// helpers

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var kw string
	err := row.Scan(
		&l.ID, &l.UserID, &l.Name, &l.Location, &l.Website, &l.Email, &l.Phone,
		&l.Facebook, &l.Instagram, &l.Tiktok, &l.Type, &l.Description, &kw,
		&l.PlacesID, &l.MapsURI, &l.IdentityComplete, &l.ContactComplete, &l.SocialComplete,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.Keywords = []string{}
	if kw != "" {
		if err := json.Unmarshal([]byte(kw), &l.Keywords); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
		}
	}
	return &l, nil
}

func scanSQLiteLog(row scannable) (*model.LogEntry, error) {
	var e model.LogEntry
	var goal, step, status string
	err := row.Scan(&e.ID, &e.UserID, &e.LeadID, &goal, &step, &e.Attempt, &status, &e.Message, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Goal, e.Step, e.Status = model.Goal(goal), model.Step(step), model.LogStatus(status)
	return &e, nil
}
