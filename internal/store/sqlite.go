package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contractor-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contractors (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id            TEXT UNIQUE,
	name                 TEXT NOT NULL,
	phone                TEXT,
	location             TEXT NOT NULL DEFAULT '',
	distance             REAL,
	rating               REAL CHECK (rating IS NULL OR (rating >= 0 AND rating <= 5)),
	reviews              INTEGER CHECK (reviews IS NULL OR reviews >= 0),
	profile_url          TEXT NOT NULL UNIQUE,
	description          TEXT,
	certifications       TEXT NOT NULL DEFAULT '[]',
	insight              TEXT,
	eval_accuracy        REAL,
	eval_actionability   REAL,
	eval_personalization REAL,
	eval_conciseness     REAL,
	eval_overall         REAL,
	eval_feedback        TEXT,
	eval_clamp_notes     TEXT,
	eval_at              DATETIME,
	insight_stale        INTEGER NOT NULL DEFAULT 0,
	fingerprint          TEXT NOT NULL DEFAULT '',
	last_fetched_at      DATETIME NOT NULL,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	zip_code         TEXT NOT NULL,
	distance         INTEGER NOT NULL DEFAULT 0,
	max_results      INTEGER NOT NULL DEFAULT 0,
	found            INTEGER NOT NULL DEFAULT 0,
	new_count        INTEGER NOT NULL DEFAULT 0,
	full_refreshed   INTEGER NOT NULL DEFAULT 0,
	metadata_updated INTEGER NOT NULL DEFAULT 0,
	unchanged        INTEGER NOT NULL DEFAULT 0,
	failed           INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'running',
	error            TEXT,
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_contractors_location ON contractors(location);
CREATE INDEX IF NOT EXISTS idx_contractors_rating ON contractors(rating DESC);
CREATE INDEX IF NOT EXISTS idx_contractors_stale ON contractors(insight_stale);
CREATE INDEX IF NOT EXISTS idx_contractors_eval_overall ON contractors(eval_overall);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const contractorColumns = `id, source_id, name, phone, location, distance, rating, reviews,
	profile_url, description, certifications, insight,
	eval_accuracy, eval_actionability, eval_personalization, eval_conciseness,
	eval_overall, eval_feedback, eval_clamp_notes, eval_at,
	insight_stale, fingerprint, last_fetched_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContractor(row rowScanner) (*model.Contractor, error) {
	var (
		c          model.Contractor
		sourceID   sql.NullString
		phone      sql.NullString
		distance   sql.NullFloat64
		rating     sql.NullFloat64
		reviews    sql.NullInt64
		desc       sql.NullString
		certsJSON  string
		insightJSON sql.NullString
		evalAcc    sql.NullFloat64
		evalAct    sql.NullFloat64
		evalPers   sql.NullFloat64
		evalConc   sql.NullFloat64
		evalOvr    sql.NullFloat64
		evalFb     sql.NullString
		clampJSON  sql.NullString
		evalAt     sql.NullTime
	)

	err := row.Scan(
		&c.ID, &sourceID, &c.Name, &phone, &c.Location, &distance, &rating, &reviews,
		&c.ProfileURL, &desc, &certsJSON, &insightJSON,
		&evalAcc, &evalAct, &evalPers, &evalConc,
		&evalOvr, &evalFb, &clampJSON, &evalAt,
		&c.InsightStale, &c.Fingerprint, &c.LastFetchedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan contractor")
	}

	if sourceID.Valid {
		c.SourceID = sourceID.String
	}
	if phone.Valid {
		c.Phone = &phone.String
	}
	if distance.Valid {
		c.Distance = &distance.Float64
	}
	if rating.Valid {
		c.Rating = &rating.Float64
	}
	if reviews.Valid {
		n := int(reviews.Int64)
		c.Reviews = &n
	}
	if desc.Valid {
		c.Description = &desc.String
	}
	if certsJSON != "" {
		if err := json.Unmarshal([]byte(certsJSON), &c.Certifications); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal certifications")
		}
	}
	if insightJSON.Valid && insightJSON.String != "" {
		var ins model.Insight
		if err := json.Unmarshal([]byte(insightJSON.String), &ins); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal insight")
		}
		c.Insight = &ins
	}
	if evalOvr.Valid {
		q := model.QualityScore{
			Accuracy:        evalAcc.Float64,
			Actionability:   evalAct.Float64,
			Personalization: evalPers.Float64,
			Conciseness:     evalConc.Float64,
			Overall:         evalOvr.Float64,
			Feedback:        evalFb.String,
		}
		if evalAt.Valid {
			q.EvaluatedAt = evalAt.Time
		}
		if clampJSON.Valid && clampJSON.String != "" {
			if err := json.Unmarshal([]byte(clampJSON.String), &q.ClampNotes); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal clamp notes")
			}
		}
		c.Quality = &q
	}
	return &c, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func certsValue(certs []string) (string, error) {
	if certs == nil {
		certs = []string{}
	}
	b, err := json.Marshal(certs)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal certifications")
	}
	return string(b), nil
}

func (s *SQLiteStore) GetContractorByURL(ctx context.Context, profileURL string) (*model.Contractor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE profile_url = ?`, profileURL)
	return scanContractor(row)
}

func (s *SQLiteStore) GetContractor(ctx context.Context, id int64) (*model.Contractor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE id = ?`, id)
	return scanContractor(row)
}

func (s *SQLiteStore) UpsertContractor(ctx context.Context, c *model.Contractor) (*model.Contractor, error) {
	certs, err := certsValue(c.Certifications)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	lastFetched := c.LastFetchedAt
	if lastFetched.IsZero() {
		lastFetched = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contractors (
			source_id, name, phone, location, distance, rating, reviews,
			profile_url, description, certifications, insight_stale, fingerprint,
			last_fetched_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_url) DO UPDATE SET
			source_id       = excluded.source_id,
			name            = excluded.name,
			phone           = excluded.phone,
			location        = excluded.location,
			distance        = excluded.distance,
			rating          = excluded.rating,
			reviews         = excluded.reviews,
			description     = excluded.description,
			certifications  = excluded.certifications,
			insight_stale   = excluded.insight_stale,
			fingerprint     = excluded.fingerprint,
			last_fetched_at = excluded.last_fetched_at,
			updated_at      = excluded.updated_at`,
		nullStr(c.SourceID), c.Name, c.Phone, c.Location, c.Distance, c.Rating, c.Reviews,
		c.ProfileURL, c.Description, certs, c.InsightStale, c.Fingerprint,
		lastFetched, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert contractor %s", c.ProfileURL)
	}
	return s.GetContractorByURL(ctx, c.ProfileURL)
}

func (s *SQLiteStore) PatchMetadata(ctx context.Context, profileURL string, patch model.MetadataPatch, fetchedAt time.Time) error {
	sets := []string{"last_fetched_at = ?", "updated_at = ?"}
	args := []any{fetchedAt.UTC(), time.Now().UTC()}

	if patch.Rating != nil {
		sets = append(sets, "rating = ?")
		args = append(args, *patch.Rating)
	}
	if patch.Reviews != nil {
		sets = append(sets, "reviews = ?")
		args = append(args, *patch.Reviews)
	}
	if patch.Distance != nil {
		sets = append(sets, "distance = ?")
		args = append(args, *patch.Distance)
	}
	args = append(args, profileURL)

	res, err := s.db.ExecContext(ctx,
		`UPDATE contractors SET `+strings.Join(sets, ", ")+` WHERE profile_url = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: patch metadata %s", profileURL)
	}
	return checkAffected(res, profileURL)
}

func (s *SQLiteStore) TouchLastFetched(ctx context.Context, profileURL string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contractors SET last_fetched_at = ? WHERE profile_url = ?`, at.UTC(), profileURL)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch %s", profileURL)
	}
	return checkAffected(res, profileURL)
}

func checkAffected(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "contractor %s", key)
	}
	return nil
}

func (s *SQLiteStore) ListContractors(ctx context.Context, filter ContractorFilter) ([]model.Contractor, int, error) {
	where := []string{"1=1"}
	var args []any

	if filter.Location != "" {
		where = append(where, "location LIKE ?")
		args = append(args, "%"+filter.Location+"%")
	}
	if filter.MinRating > 0 {
		where = append(where, "rating >= ?")
		args = append(args, filter.MinRating)
	}
	if filter.MinReviews > 0 {
		where = append(where, "reviews >= ?")
		args = append(args, filter.MinReviews)
	}
	if filter.Search != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contractors WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count contractors")
	}

	order := sortColumn(filter.SortBy)
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE `+whereSQL+
			` ORDER BY `+order+` `+dir+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list contractors")
	}
	defer rows.Close()

	var out []model.Contractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, eris.Wrap(rows.Err(), "sqlite: list contractors iterate")
}

func (s *SQLiteStore) ListLocations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT location FROM contractors WHERE location != '' ORDER BY location`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		out = append(out, loc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list locations iterate")
}

func (s *SQLiteStore) ListForInsights(ctx context.Context, filter InsightFilter) ([]model.Contractor, error) {
	where := []string{}
	var args []any

	if filter.Missing {
		where = append(where, "insight IS NULL")
	}
	if filter.Stale {
		where = append(where, "insight_stale = 1")
	}
	if filter.BelowOverall > 0 {
		where = append(where, "eval_overall IS NOT NULL AND eval_overall < ?")
		args = append(args, filter.BelowOverall)
	}
	if len(where) == 0 {
		where = append(where, "1=1")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE `+strings.Join(where, " OR ")+
			` ORDER BY id LIMIT ?`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list for insights")
	}
	defer rows.Close()

	var out []model.Contractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list for insights iterate")
}

func (s *SQLiteStore) SaveInsight(ctx context.Context, profileURL string, insight model.Insight, score *model.QualityScore) error {
	insightJSON, err := json.Marshal(insight)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal insight")
	}

	var (
		acc, act, pers, conc, ovr any
		feedback, clamps          any
		evalAt                    any
	)
	if score != nil {
		var clampJSON []byte
		if len(score.ClampNotes) > 0 {
			clampJSON, err = json.Marshal(score.ClampNotes)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal clamp notes")
			}
		}
		acc, act, pers, conc, ovr = score.Accuracy, score.Actionability, score.Personalization, score.Conciseness, score.Overall
		feedback = score.Feedback
		if clampJSON != nil {
			clamps = string(clampJSON)
		}
		evalAt = score.EvaluatedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE contractors SET
			insight = ?,
			eval_accuracy = ?, eval_actionability = ?, eval_personalization = ?,
			eval_conciseness = ?, eval_overall = ?, eval_feedback = ?,
			eval_clamp_notes = ?, eval_at = ?,
			insight_stale = 0,
			updated_at = ?
		WHERE profile_url = ?`,
		string(insightJSON), acc, act, pers, conc, ovr, feedback, clamps, evalAt,
		time.Now().UTC(), profileURL,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save insight %s", profileURL)
	}
	return checkAffected(res, profileURL)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, params model.SearchParams) (*model.Run, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (zip_code, distance, max_results, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		params.ZipCode, params.Distance, params.MaxResults, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: run id")
	}
	return &model.Run{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinalizeRun(ctx context.Context, run *model.Run) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			found = ?, new_count = ?, full_refreshed = ?, metadata_updated = ?,
			unchanged = ?, failed = ?, status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		run.Counters.Found, run.Counters.New, run.Counters.FullRefreshed,
		run.Counters.MetadataUpdated, run.Counters.Unchanged, run.Counters.Failed,
		string(run.Status), nullStr(run.Error), now,
		run.ID, string(model.RunStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize run %d", run.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrAlreadyFinalized, "run %d", run.ID)
	}
	run.CompletedAt = &now
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, zip_code, distance, max_results, found, new_count, full_refreshed,
		metadata_updated, unchanged, failed, status, error, started_at, completed_at
		FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var (
			r           model.Run
			errMsg      sql.NullString
			completedAt sql.NullTime
		)
		err := rows.Scan(
			&r.ID, &r.Params.ZipCode, &r.Params.Distance, &r.Params.MaxResults,
			&r.Counters.Found, &r.Counters.New, &r.Counters.FullRefreshed,
			&r.Counters.MetadataUpdated, &r.Counters.Unchanged, &r.Counters.Failed,
			&r.Status, &errMsg, &r.StartedAt, &completedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if errMsg.Valid {
			r.Error = errMsg.String
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context, qualityThreshold float64) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(insight),
			COALESCE(SUM(insight_stale), 0),
			COALESCE(AVG(rating), 0),
			COALESCE(AVG(eval_overall), 0),
			COALESCE(SUM(CASE WHEN eval_overall IS NOT NULL AND eval_overall < ? THEN 1 ELSE 0 END), 0)
		FROM contractors`, qualityThreshold,
	).Scan(&st.TotalContractors, &st.WithInsights, &st.StaleInsights,
		&st.AvgRating, &st.AvgQuality, &st.BelowThreshold)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return &st, nil
}
