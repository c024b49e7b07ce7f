package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations

	"github.com/seoforge/seoforge/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// uniqueViolation is the Postgres error code for unique constraint breaches.
const uniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool. Migrations are
// embedded into the binary and applied on startup.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, applies pending migrations, and returns a
// ready-to-use store.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	return newPostgresStore(ctx, cfg.DSN(), cfg)
}

// NewPostgresStoreFromDSN is NewPostgresStore for callers that already hold a
// connection string, such as integration tests on a throwaway container.
func NewPostgresStoreFromDSN(ctx context.Context, dsn string) (*PostgresStore, error) {
	return newPostgresStore(ctx, dsn, PostgresConfig{})
}

func newPostgresStore(ctx context.Context, dsn string, cfg PostgresConfig) (*PostgresStore, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// runMigrations applies embedded migrations through a short-lived
// database/sql connection.
func runMigrations(dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := hasEmbeddedMigrations(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return sourceDriver.Close()
}

func hasEmbeddedMigrations() error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}
	return nil
}

// Pool exposes the underlying pool for health checks.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

// Runs implements Store.
func (s *PostgresStore) Runs() RunStore { return (*pgRuns)(s) }

// Keywords implements Store.
func (s *PostgresStore) Keywords() KeywordStore { return (*pgKeywords)(s) }

// Clusters implements Store.
func (s *PostgresStore) Clusters() ClusterStore { return (*pgClusters)(s) }

// Roadmap implements Store.
func (s *PostgresStore) Roadmap() RoadmapStore { return (*pgRoadmap)(s) }

// Jobs implements Store.
func (s *PostgresStore) Jobs() JobStore { return (*pgJobs)(s) }

// Embeddings implements Store.
func (s *PostgresStore) Embeddings() EmbeddingStore { return (*pgEmbeddings)(s) }

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ── runs ──────────────────────────────────────────────────────────

type pgRuns PostgresStore

const runColumns = `id, owner_id, lineage_id, seeds, market, language, settings,
	status, current_stage, completed_stages, progress, api_usage, budget_limit,
	warnings, error_log, pod_id, last_heartbeat_at, created_at, started_at, completed_at`

func (s *pgRuns) Create(ctx context.Context, run *models.Run) error {
	settings, err := json.Marshal(run.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	usage, err := json.Marshal(run.APIUsage)
	if err != nil {
		return fmt.Errorf("failed to marshal api usage: %w", err)
	}
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}
	errorLog, err := json.Marshal(run.ErrorLog)
	if err != nil {
		return fmt.Errorf("failed to marshal error log: %w", err)
	}

	stages := make([]string, len(run.CompletedStages))
	for i, st := range run.CompletedStages {
		stages[i] = string(st)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (id, owner_id, lineage_id, seeds, market, language, settings,
			status, current_stage, completed_stages, progress, api_usage, budget_limit,
			warnings, error_log, pod_id, last_heartbeat_at, created_at, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		run.ID, run.OwnerID, run.LineageID, run.Seeds, run.Market, run.Language, settings,
		string(run.Status), string(run.CurrentStage), stages, run.Progress, usage, run.BudgetLimit,
		warnings, errorLog, run.PodID, nullTime(run.LastHeartbeatAt), run.CreatedAt, run.StartedAt, run.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type runRow interface {
	Scan(dest ...any) error
}

func scanRun(row runRow) (*models.Run, error) {
	var (
		run           models.Run
		settings      []byte
		usage         []byte
		warnings      []byte
		errorLog      []byte
		status        string
		currentStage  string
		stages        []string
		lastHeartbeat *time.Time
	)
	err := row.Scan(&run.ID, &run.OwnerID, &run.LineageID, &run.Seeds, &run.Market,
		&run.Language, &settings, &status, &currentStage, &stages, &run.Progress,
		&usage, &run.BudgetLimit, &warnings, &errorLog, &run.PodID, &lastHeartbeat,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = models.RunStatus(status)
	run.CurrentStage = models.Stage(currentStage)
	for _, st := range stages {
		run.CompletedStages = append(run.CompletedStages, models.Stage(st))
	}
	if lastHeartbeat != nil {
		run.LastHeartbeatAt = *lastHeartbeat
	}
	if err := json.Unmarshal(settings, &run.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := json.Unmarshal(usage, &run.APIUsage); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api usage: %w", err)
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &run.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}
	if len(errorLog) > 0 {
		if err := json.Unmarshal(errorLog, &run.ErrorLog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error log: %w", err)
		}
	}
	return &run, nil
}

func (s *pgRuns) Get(ctx context.Context, id string) (*models.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	return scanRun(row)
}

func (s *pgRuns) List(ctx context.Context, filters models.RunFilters) ([]*models.Run, int, error) {
	where := ` WHERE TRUE`
	args := []any{}
	if filters.OwnerID != "" {
		args = append(args, filters.OwnerID)
		where += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `SELECT ` + runColumns + ` FROM runs` + where + ` ORDER BY created_at DESC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (s *pgRuns) ClaimNextPending(ctx context.Context, podID string) (*models.Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		SELECT id FROM runs
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPendingRuns
		}
		return nil, fmt.Errorf("failed to query pending run: %w", err)
	}

	now := time.Now()
	row := tx.QueryRow(ctx, `
		UPDATE runs
		SET status = 'processing', pod_id = $2, started_at = $3, last_heartbeat_at = $3
		WHERE id = $1
		RETURNING `+runColumns, id, podID, now)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to claim run: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return run, nil
}

func (s *pgRuns) CountProcessing(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM runs WHERE status = 'processing'`).Scan(&count)
	return count, err
}

func (s *pgRuns) UpdateStatus(ctx context.Context, id string, status models.RunStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read run status: %w", err)
	}
	if !models.RunStatus(current).CanTransitionTo(status) {
		return ErrInvalidTransition
	}

	if status.IsTerminal() {
		_, err = tx.Exec(ctx, `UPDATE runs SET status = $2, completed_at = now() WHERE id = $1`, id, string(status))
	} else {
		_, err = tx.Exec(ctx, `UPDATE runs SET status = $2 WHERE id = $1`, id, string(status))
	}
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *pgRuns) SetCurrentStage(ctx context.Context, id string, stage models.Stage) error {
	return s.execOnRun(ctx, id, `UPDATE runs SET current_stage = $2 WHERE id = $1`, string(stage))
}

func (s *pgRuns) AddCompletedStage(ctx context.Context, id string, stage models.Stage) error {
	return s.execOnRun(ctx, id, `
		UPDATE runs
		SET completed_stages = array_append(completed_stages, $2)
		WHERE id = $1 AND NOT ($2 = ANY(completed_stages))`, string(stage))
}

func (s *pgRuns) UpdateProgress(ctx context.Context, id string, progress float64) error {
	// GREATEST merges out-of-order snapshots as maxima.
	return s.execOnRun(ctx, id, `UPDATE runs SET progress = GREATEST(progress, $2) WHERE id = $1`, progress)
}

func (s *pgRuns) MergeUsage(ctx context.Context, id string, usage models.APIUsage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT api_usage FROM runs WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read api usage: %w", err)
	}

	var current models.APIUsage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("failed to unmarshal api usage: %w", err)
		}
	}
	current.Merge(usage)

	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to marshal api usage: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE runs SET api_usage = $2 WHERE id = $1`, id, merged); err != nil {
		return fmt.Errorf("failed to update api usage: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *pgRuns) AppendWarning(ctx context.Context, id string, warning models.RunWarning) error {
	raw, err := json.Marshal(warning)
	if err != nil {
		return fmt.Errorf("failed to marshal warning: %w", err)
	}
	return s.execOnRun(ctx, id, `UPDATE runs SET warnings = warnings || $2::jsonb WHERE id = $1`, raw)
}

func (s *pgRuns) AppendError(ctx context.Context, id string, runErr models.RunError) error {
	raw, err := json.Marshal(runErr)
	if err != nil {
		return fmt.Errorf("failed to marshal run error: %w", err)
	}
	return s.execOnRun(ctx, id, `UPDATE runs SET error_log = error_log || $2::jsonb WHERE id = $1`, raw)
}

func (s *pgRuns) Heartbeat(ctx context.Context, id string, at time.Time) error {
	return s.execOnRun(ctx, id, `
		UPDATE runs SET last_heartbeat_at = GREATEST(COALESCE(last_heartbeat_at, $2), $2)
		WHERE id = $1`, at)
}

func (s *pgRuns) FailStaleProcessing(ctx context.Context, threshold time.Duration) (int, error) {
	entry, err := json.Marshal(models.RunError{
		Kind:      "internal",
		Message:   "orphaned run recovered: heartbeat expired",
		Timestamp: time.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal orphan error: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE runs
		SET status = 'failed', completed_at = now(), error_log = error_log || $2::jsonb
		WHERE status = 'processing' AND (last_heartbeat_at IS NULL OR last_heartbeat_at < now() - $1::interval)`,
		threshold.String(), entry)
	if err != nil {
		return 0, fmt.Errorf("failed to recover orphaned runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *pgRuns) execOnRun(ctx context.Context, id, query string, args ...any) error {
	all := append([]any{id}, args...)
	tag, err := s.pool.Exec(ctx, query, all...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing run from a no-op guard clause.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check run existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// ── keywords ──────────────────────────────────────────────────────

type pgKeywords PostgresStore

func (s *pgKeywords) UpsertBatch(ctx context.Context, keywords []*models.Keyword) error {
	if len(keywords) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, k := range keywords {
		batch.Queue(`
			INSERT INTO keywords (id, run_id, phrase, tier, parent_phrase, volume, difficulty,
				intent, relevance, trend, cpc, blended_score, quick_win, cluster_id, embedding,
				top_serp_urls, source, confidence, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
			ON CONFLICT (run_id, phrase) DO UPDATE SET
				tier = EXCLUDED.tier,
				parent_phrase = EXCLUDED.parent_phrase,
				volume = EXCLUDED.volume,
				difficulty = EXCLUDED.difficulty,
				intent = EXCLUDED.intent,
				relevance = EXCLUDED.relevance,
				trend = EXCLUDED.trend,
				cpc = EXCLUDED.cpc,
				blended_score = EXCLUDED.blended_score,
				quick_win = EXCLUDED.quick_win,
				cluster_id = EXCLUDED.cluster_id,
				embedding = EXCLUDED.embedding,
				top_serp_urls = EXCLUDED.top_serp_urls,
				source = EXCLUDED.source,
				confidence = EXCLUDED.confidence,
				updated_at = EXCLUDED.updated_at`,
			k.ID, k.RunID, k.Phrase, string(k.Tier), k.ParentPhrase, k.Volume, k.Difficulty,
			string(k.Intent), k.Relevance, k.Trend, k.CPC, k.BlendedScore, k.QuickWin, k.ClusterID,
			k.Embedding, k.TopSERPURLs, k.Source, k.Confidence, k.CreatedAt, k.UpdatedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range keywords {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert keyword: %w", err)
		}
	}
	return nil
}

func (s *pgKeywords) ListByRun(ctx context.Context, runID string) ([]*models.Keyword, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, phrase, tier, parent_phrase, volume, difficulty, intent,
			relevance, trend, cpc, blended_score, quick_win, cluster_id, embedding,
			top_serp_urls, source, confidence, created_at, updated_at
		FROM keywords WHERE run_id = $1 ORDER BY phrase`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var out []*models.Keyword
	for rows.Next() {
		var (
			k      models.Keyword
			tier   string
			intent string
		)
		if err := rows.Scan(&k.ID, &k.RunID, &k.Phrase, &tier, &k.ParentPhrase, &k.Volume,
			&k.Difficulty, &intent, &k.Relevance, &k.Trend, &k.CPC, &k.BlendedScore,
			&k.QuickWin, &k.ClusterID, &k.Embedding, &k.TopSERPURLs, &k.Source,
			&k.Confidence, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		k.Tier = models.Tier(tier)
		k.Intent = models.Intent(intent)
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (s *pgKeywords) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM keywords WHERE run_id = $1`, runID).Scan(&count)
	return count, err
}

func (s *pgKeywords) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM keywords WHERE run_id = $1`, runID)
	return err
}

// ── clusters ──────────────────────────────────────────────────────

type pgClusters PostgresStore

func (s *pgClusters) InsertBatch(ctx context.Context, clusters []*models.Cluster) error {
	if len(clusters) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range clusters {
		mix, err := json.Marshal(c.IntentMix)
		if err != nil {
			return fmt.Errorf("failed to marshal intent mix: %w", err)
		}
		batch.Queue(`
			INSERT INTO clusters (id, run_id, label, size, score, intent_mix,
				representative_phrases, similarity_threshold, centroid, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			c.ID, c.RunID, c.Label, c.Size, c.Score, mix,
			c.RepresentativePhrases, c.SimilarityThreshold, c.Centroid, c.CreatedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range clusters {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert cluster: %w", err)
		}
	}
	return nil
}

func (s *pgClusters) ListByRun(ctx context.Context, runID string) ([]*models.Cluster, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, label, size, score, intent_mix, representative_phrases,
			similarity_threshold, centroid, created_at
		FROM clusters WHERE run_id = $1 ORDER BY score DESC, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	defer rows.Close()

	var out []*models.Cluster
	for rows.Next() {
		var (
			c   models.Cluster
			mix []byte
		)
		if err := rows.Scan(&c.ID, &c.RunID, &c.Label, &c.Size, &c.Score, &mix,
			&c.RepresentativePhrases, &c.SimilarityThreshold, &c.Centroid, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		if len(mix) > 0 {
			if err := json.Unmarshal(mix, &c.IntentMix); err != nil {
				return nil, fmt.Errorf("failed to unmarshal intent mix: %w", err)
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *pgClusters) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM clusters WHERE run_id = $1`, runID)
	return err
}

// ── roadmap ───────────────────────────────────────────────────────

type pgRoadmap PostgresStore

func (s *pgRoadmap) InsertBatch(ctx context.Context, items []*models.RoadmapItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
			INSERT INTO roadmap_items (id, run_id, cluster_id, post_id, stage, primary_keyword,
				secondary_keywords, cluster_label, intent, volume, difficulty, blended_score,
				quick_win, suggested_title, dri, due_date, notes, source_urls, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			item.ID, item.RunID, item.ClusterID, item.PostID, string(item.Stage), item.PrimaryKeyword,
			item.SecondaryKeywords, item.ClusterLabel, string(item.Intent), item.Volume, item.Difficulty,
			item.BlendedScore, item.QuickWin, item.SuggestedTitle, item.DRI, item.DueDate,
			item.Notes, item.SourceURLs, item.CreatedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert roadmap item: %w", err)
		}
	}
	return nil
}

func (s *pgRoadmap) ListByRun(ctx context.Context, runID string) ([]*models.RoadmapItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, cluster_id, post_id, stage, primary_keyword, secondary_keywords,
			cluster_label, intent, volume, difficulty, blended_score, quick_win,
			suggested_title, dri, due_date, notes, source_urls, created_at
		FROM roadmap_items WHERE run_id = $1 ORDER BY due_date, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roadmap items: %w", err)
	}
	defer rows.Close()

	var out []*models.RoadmapItem
	for rows.Next() {
		var (
			item   models.RoadmapItem
			stage  string
			intent string
		)
		if err := rows.Scan(&item.ID, &item.RunID, &item.ClusterID, &item.PostID, &stage,
			&item.PrimaryKeyword, &item.SecondaryKeywords, &item.ClusterLabel, &intent,
			&item.Volume, &item.Difficulty, &item.BlendedScore, &item.QuickWin,
			&item.SuggestedTitle, &item.DRI, &item.DueDate, &item.Notes,
			&item.SourceURLs, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan roadmap item: %w", err)
		}
		item.Stage = models.RoadmapStage(stage)
		item.Intent = models.Intent(intent)
		out = append(out, &item)
	}
	return out, rows.Err()
}

func (s *pgRoadmap) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM roadmap_items WHERE run_id = $1`, runID)
	return err
}

// ── jobs ──────────────────────────────────────────────────────────

type pgJobs PostgresStore

func (s *pgJobs) Create(ctx context.Context, job *models.Job) error {
	var result []byte
	if job.Result != nil {
		var err error
		result, err = json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal job result: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, run_id, stage, priority, status, dependencies, attempt,
			max_attempts, result, error, started_at, completed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		job.ID, job.RunID, string(job.Stage), job.Priority, string(job.Status),
		job.Dependencies, job.Attempt, job.MaxAttempts, result, job.Error,
		job.StartedAt, job.CompletedAt, job.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *pgJobs) Update(ctx context.Context, job *models.Job) error {
	var result []byte
	if job.Result != nil {
		var err error
		result, err = json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal job result: %w", err)
		}
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, job.ID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read job status: %w", err)
	}
	if models.JobStatus(current).IsTerminal() && models.JobStatus(current) != job.Status {
		return ErrInvalidTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs SET status = $2, attempt = $3, result = $4, error = $5,
			started_at = $6, completed_at = $7
		WHERE id = $1`,
		job.ID, string(job.Status), job.Attempt, result, job.Error, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *pgJobs) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, run_id, stage, priority, status, dependencies, attempt, max_attempts,
			result, error, started_at, completed_at, created_at
		FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

func scanJob(row runRow) (*models.Job, error) {
	var (
		job    models.Job
		stage  string
		status string
		result []byte
	)
	err := row.Scan(&job.ID, &job.RunID, &stage, &job.Priority, &status, &job.Dependencies,
		&job.Attempt, &job.MaxAttempts, &result, &job.Error, &job.StartedAt,
		&job.CompletedAt, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Stage = models.Stage(stage)
	job.Status = models.JobStatus(status)
	if len(result) > 0 {
		if err := json.Unmarshal(result, &job.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
	}
	return &job, nil
}

func (s *pgJobs) ListByRun(ctx context.Context, runID string) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, stage, priority, status, dependencies, attempt, max_attempts,
			result, error, started_at, completed_at, created_at
		FROM jobs WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ── embeddings ────────────────────────────────────────────────────

type pgEmbeddings PostgresStore

func (s *pgEmbeddings) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var vec []float32
	err := s.pool.QueryRow(ctx, `SELECT vector FROM embeddings WHERE key = $1`, key).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read embedding: %w", err)
	}
	return vec, true, nil
}

func (s *pgEmbeddings) Put(ctx context.Context, key string, vector []float32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (key, vector) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING`, key, vector)
	if err != nil {
		return fmt.Errorf("failed to write embedding: %w", err)
	}
	return nil
}
