package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-intel/internal/db"
	"github.com/sells-group/contractor-intel/internal/model"
)

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a new connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool creates a PostgresStore around an existing pool.
// Used by tests to inject pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contractors (
	id                   BIGSERIAL PRIMARY KEY,
	source_id            TEXT UNIQUE,
	name                 TEXT NOT NULL,
	phone                TEXT,
	location             TEXT NOT NULL DEFAULT '',
	distance             DOUBLE PRECISION,
	rating               DOUBLE PRECISION CHECK (rating IS NULL OR (rating >= 0 AND rating <= 5)),
	reviews              INTEGER CHECK (reviews IS NULL OR reviews >= 0),
	profile_url          TEXT NOT NULL UNIQUE,
	description          TEXT,
	certifications       JSONB NOT NULL DEFAULT '[]',
	insight              JSONB,
	eval_accuracy        DOUBLE PRECISION,
	eval_actionability   DOUBLE PRECISION,
	eval_personalization DOUBLE PRECISION,
	eval_conciseness     DOUBLE PRECISION,
	eval_overall         DOUBLE PRECISION,
	eval_feedback        TEXT,
	eval_clamp_notes     JSONB,
	eval_at              TIMESTAMPTZ,
	insight_stale        BOOLEAN NOT NULL DEFAULT FALSE,
	fingerprint          TEXT NOT NULL DEFAULT '',
	last_fetched_at      TIMESTAMPTZ NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id               BIGSERIAL PRIMARY KEY,
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
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_contractors_location ON contractors(location);
CREATE INDEX IF NOT EXISTS idx_contractors_rating ON contractors(rating DESC);
CREATE INDEX IF NOT EXISTS idx_contractors_stale ON contractors(insight_stale);
CREATE INDEX IF NOT EXISTS idx_contractors_eval_overall ON contractors(eval_overall);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgContractorColumns = `id, source_id, name, phone, location, distance, rating, reviews,
	profile_url, description, certifications::text, insight::text,
	eval_accuracy, eval_actionability, eval_personalization, eval_conciseness,
	eval_overall, eval_feedback, eval_clamp_notes::text, eval_at,
	insight_stale, fingerprint, last_fetched_at, created_at, updated_at`

func scanPgContractor(row pgx.Row) (*model.Contractor, error) {
	var (
		c           model.Contractor
		sourceID    *string
		certsJSON   string
		insightJSON *string
		evalAcc     *float64
		evalAct     *float64
		evalPers    *float64
		evalConc    *float64
		evalOvr     *float64
		evalFb      *string
		clampJSON   *string
		evalAt      *time.Time
	)

	err := row.Scan(
		&c.ID, &sourceID, &c.Name, &c.Phone, &c.Location, &c.Distance, &c.Rating, &c.Reviews,
		&c.ProfileURL, &c.Description, &certsJSON, &insightJSON,
		&evalAcc, &evalAct, &evalPers, &evalConc,
		&evalOvr, &evalFb, &clampJSON, &evalAt,
		&c.InsightStale, &c.Fingerprint, &c.LastFetchedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan contractor")
	}

	if sourceID != nil {
		c.SourceID = *sourceID
	}
	if certsJSON != "" {
		if err := json.Unmarshal([]byte(certsJSON), &c.Certifications); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal certifications")
		}
	}
	if insightJSON != nil && *insightJSON != "" {
		var ins model.Insight
		if err := json.Unmarshal([]byte(*insightJSON), &ins); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal insight")
		}
		c.Insight = &ins
	}
	if evalOvr != nil {
		q := model.QualityScore{
			Accuracy:        deref(evalAcc),
			Actionability:   deref(evalAct),
			Personalization: deref(evalPers),
			Conciseness:     deref(evalConc),
			Overall:         *evalOvr,
			Feedback:        deref(evalFb),
		}
		if evalAt != nil {
			q.EvaluatedAt = *evalAt
		}
		if clampJSON != nil && *clampJSON != "" {
			if err := json.Unmarshal([]byte(*clampJSON), &q.ClampNotes); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal clamp notes")
			}
		}
		c.Quality = &q
	}
	return &c, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (s *PostgresStore) GetContractorByURL(ctx context.Context, profileURL string) (*model.Contractor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgContractorColumns+` FROM contractors WHERE profile_url = $1`, profileURL)
	return scanPgContractor(row)
}

func (s *PostgresStore) GetContractor(ctx context.Context, id int64) (*model.Contractor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgContractorColumns+` FROM contractors WHERE id = $1`, id)
	return scanPgContractor(row)
}

func (s *PostgresStore) UpsertContractor(ctx context.Context, c *model.Contractor) (*model.Contractor, error) {
	certs, err := certsValue(c.Certifications)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	lastFetched := c.LastFetchedAt
	if lastFetched.IsZero() {
		lastFetched = now
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO contractors (
			source_id, name, phone, location, distance, rating, reviews,
			profile_url, description, certifications, insight_stale, fingerprint,
			last_fetched_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (profile_url) DO UPDATE SET
			source_id       = EXCLUDED.source_id,
			name            = EXCLUDED.name,
			phone           = EXCLUDED.phone,
			location        = EXCLUDED.location,
			distance        = EXCLUDED.distance,
			rating          = EXCLUDED.rating,
			reviews         = EXCLUDED.reviews,
			description     = EXCLUDED.description,
			certifications  = EXCLUDED.certifications,
			insight_stale   = EXCLUDED.insight_stale,
			fingerprint     = EXCLUDED.fingerprint,
			last_fetched_at = EXCLUDED.last_fetched_at,
			updated_at      = EXCLUDED.updated_at`,
		nullStr(c.SourceID), c.Name, c.Phone, c.Location, c.Distance, c.Rating, c.Reviews,
		c.ProfileURL, c.Description, certs, c.InsightStale, c.Fingerprint,
		lastFetched, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert contractor %s", c.ProfileURL)
	}
	return s.GetContractorByURL(ctx, c.ProfileURL)
}

func (s *PostgresStore) PatchMetadata(ctx context.Context, profileURL string, patch model.MetadataPatch, fetchedAt time.Time) error {
	sets := []string{"last_fetched_at = $1", "updated_at = $2"}
	args := []any{fetchedAt.UTC(), time.Now().UTC()}

	if patch.Rating != nil {
		args = append(args, *patch.Rating)
		sets = append(sets, fmt.Sprintf("rating = $%d", len(args)))
	}
	if patch.Reviews != nil {
		args = append(args, *patch.Reviews)
		sets = append(sets, fmt.Sprintf("reviews = $%d", len(args)))
	}
	if patch.Distance != nil {
		args = append(args, *patch.Distance)
		sets = append(sets, fmt.Sprintf("distance = $%d", len(args)))
	}
	args = append(args, profileURL)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE contractors SET %s WHERE profile_url = $%d`,
			strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: patch metadata %s", profileURL)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "contractor %s", profileURL)
	}
	return nil
}

func (s *PostgresStore) TouchLastFetched(ctx context.Context, profileURL string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contractors SET last_fetched_at = $1 WHERE profile_url = $2`, at.UTC(), profileURL)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch %s", profileURL)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "contractor %s", profileURL)
	}
	return nil
}

func (s *PostgresStore) ListContractors(ctx context.Context, filter ContractorFilter) ([]model.Contractor, int, error) {
	where := []string{"TRUE"}
	var args []any

	if filter.Location != "" {
		args = append(args, "%"+filter.Location+"%")
		where = append(where, fmt.Sprintf("location ILIKE $%d", len(args)))
	}
	if filter.MinRating > 0 {
		args = append(args, filter.MinRating)
		where = append(where, fmt.Sprintf("rating >= $%d", len(args)))
	}
	if filter.MinReviews > 0 {
		args = append(args, filter.MinReviews)
		where = append(where, fmt.Sprintf("reviews >= $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM contractors WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count contractors")
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
	args = append(args, limit)
	limitIdx := len(args)
	args = append(args, filter.Offset)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM contractors WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		pgContractorColumns, whereSQL, order, dir, limitIdx, limitIdx+1), args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list contractors")
	}
	defer rows.Close()

	var out []model.Contractor
	for rows.Next() {
		c, err := scanPgContractor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, eris.Wrap(rows.Err(), "postgres: list contractors iterate")
}

func (s *PostgresStore) ListLocations(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT location FROM contractors WHERE location != '' ORDER BY location`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list locations")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		out = append(out, loc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list locations iterate")
}

func (s *PostgresStore) ListForInsights(ctx context.Context, filter InsightFilter) ([]model.Contractor, error) {
	where := []string{}
	var args []any

	if filter.Missing {
		where = append(where, "insight IS NULL")
	}
	if filter.Stale {
		where = append(where, "insight_stale")
	}
	if filter.BelowOverall > 0 {
		args = append(args, filter.BelowOverall)
		where = append(where, fmt.Sprintf("(eval_overall IS NOT NULL AND eval_overall < $%d)", len(args)))
	}
	if len(where) == 0 {
		where = append(where, "TRUE")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM contractors WHERE %s ORDER BY id LIMIT $%d`,
		pgContractorColumns, strings.Join(where, " OR "), len(args)), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list for insights")
	}
	defer rows.Close()

	var out []model.Contractor
	for rows.Next() {
		c, err := scanPgContractor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list for insights iterate")
}

func (s *PostgresStore) SaveInsight(ctx context.Context, profileURL string, insight model.Insight, score *model.QualityScore) error {
	insightJSON, err := json.Marshal(insight)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal insight")
	}

	var (
		acc, act, pers, conc, ovr *float64
		feedback, clamps          *string
		evalAt                    *time.Time
	)
	if score != nil {
		acc, act = &score.Accuracy, &score.Actionability
		pers, conc = &score.Personalization, &score.Conciseness
		ovr = &score.Overall
		feedback = &score.Feedback
		if len(score.ClampNotes) > 0 {
			clampJSON, err := json.Marshal(score.ClampNotes)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal clamp notes")
			}
			clampStr := string(clampJSON)
			clamps = &clampStr
		}
		at := score.EvaluatedAt.UTC()
		evalAt = &at
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE contractors SET
			insight = $1,
			eval_accuracy = $2, eval_actionability = $3, eval_personalization = $4,
			eval_conciseness = $5, eval_overall = $6, eval_feedback = $7,
			eval_clamp_notes = $8, eval_at = $9,
			insight_stale = FALSE,
			updated_at = $10
		WHERE profile_url = $11`,
		string(insightJSON), acc, act, pers, conc, ovr, feedback, clamps, evalAt,
		time.Now().UTC(), profileURL,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save insight %s", profileURL)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "contractor %s", profileURL)
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, params model.SearchParams) (*model.Run, error) {
	now := time.Now().UTC()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO runs (zip_code, distance, max_results, status, started_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		params.ZipCode, params.Distance, params.MaxResults, string(model.RunStatusRunning), now,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) FinalizeRun(ctx context.Context, run *model.Run) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE runs SET
			found = $1, new_count = $2, full_refreshed = $3, metadata_updated = $4,
			unchanged = $5, failed = $6, status = $7, error = $8, completed_at = $9
		WHERE id = $10 AND status = $11`,
		run.Counters.Found, run.Counters.New, run.Counters.FullRefreshed,
		run.Counters.MetadataUpdated, run.Counters.Unchanged, run.Counters.Failed,
		string(run.Status), nullStr(run.Error), now,
		run.ID, string(model.RunStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize run %d", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrAlreadyFinalized, "run %d", run.ID)
	}
	run.CompletedAt = &now
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, zip_code, distance, max_results, found, new_count, full_refreshed,
		metadata_updated, unchanged, failed, status, error, started_at, completed_at
		FROM runs WHERE TRUE`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var (
			r           model.Run
			errMsg      *string
			completedAt *time.Time
		)
		err := rows.Scan(
			&r.ID, &r.Params.ZipCode, &r.Params.Distance, &r.Params.MaxResults,
			&r.Counters.Found, &r.Counters.New, &r.Counters.FullRefreshed,
			&r.Counters.MetadataUpdated, &r.Counters.Unchanged, &r.Counters.Failed,
			&r.Status, &errMsg, &r.StartedAt, &completedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		r.CompletedAt = completedAt
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) Stats(ctx context.Context, qualityThreshold float64) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(insight),
			COALESCE(SUM(CASE WHEN insight_stale THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(rating), 0),
			COALESCE(AVG(eval_overall), 0),
			COALESCE(SUM(CASE WHEN eval_overall IS NOT NULL AND eval_overall < $1 THEN 1 ELSE 0 END), 0)
		FROM contractors`, qualityThreshold,
	).Scan(&st.TotalContractors, &st.WithInsights, &st.StaleInsights,
		&st.AvgRating, &st.AvgQuality, &st.BelowThreshold)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &st, nil
}
