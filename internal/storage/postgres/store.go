// Package postgres stores launches, degradations and backfill progress in Postgres.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"launchscope/internal/model"
	"launchscope/internal/registry"
	"launchscope/internal/storage"
)

//go:embed schema.sql
var schema string

const pgErrUniqueViolation = "23505"

// Store implements the storage interfaces on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.LaunchPublisher = (*Store)(nil)
	_ storage.StatsStore      = (*Store)(nil)
	_ storage.AuditSink       = (*Store)(nil)
	_ storage.CheckpointStore = (*Store)(nil)
)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const launchColumns = `
	id, chain, token, launchpad, title, url, creator, pair, tx_id, position,
	description, launched_at, image_url, decimals, total_supply::text, creator_initial::text, creator_initial_raw::text,
	tokens_for_sale::text, formatted_allocation, tokens_held::text, holding_percentage,
	movement_narrative, sent_to_burn_address, main_selling_address, stats_updated_at,
	balance_method, approximate`

// UpsertLaunch implements storage.LaunchPublisher.
func (s *Store) UpsertLaunch(ctx context.Context, rec model.LaunchRecord, overwrite bool) (bool, error) {
	conflict := `ON CONFLICT (chain, token_key) DO NOTHING`
	if overwrite {
		conflict = `ON CONFLICT (chain, token_key) DO UPDATE SET
			launchpad = EXCLUDED.launchpad,
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			creator = EXCLUDED.creator,
			pair = EXCLUDED.pair,
			tx_id = EXCLUDED.tx_id,
			position = EXCLUDED.position,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			decimals = EXCLUDED.decimals,
			total_supply = EXCLUDED.total_supply,
			creator_initial = EXCLUDED.creator_initial,
			creator_initial_raw = EXCLUDED.creator_initial_raw,
			tokens_for_sale = EXCLUDED.tokens_for_sale,
			formatted_allocation = EXCLUDED.formatted_allocation,
			tokens_held = EXCLUDED.tokens_held,
			holding_percentage = EXCLUDED.holding_percentage,
			movement_narrative = EXCLUDED.movement_narrative,
			sent_to_burn_address = EXCLUDED.sent_to_burn_address,
			main_selling_address = EXCLUDED.main_selling_address,
			stats_updated_at = EXCLUDED.stats_updated_at,
			balance_method = EXCLUDED.balance_method,
			approximate = EXCLUDED.approximate,
			updated_at = now()`
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO launches (
			id, chain, token, token_key, launchpad, title, url, creator, pair, tx_id, position,
			description, launched_at, image_url, decimals, total_supply, creator_initial, creator_initial_raw,
			tokens_for_sale, formatted_allocation, tokens_held, holding_percentage,
			movement_narrative, sent_to_burn_address, main_selling_address, stats_updated_at,
			balance_method, approximate
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
		`+conflict,
		rec.ID,
		string(rec.Chain),
		rec.Token,
		registry.Normalize(rec.Chain, rec.Token),
		rec.Launchpad,
		rec.Title,
		rec.URL,
		rec.Creator,
		rec.Pair,
		rec.TxID,
		int64(rec.Position),
		rec.Description,
		rec.LaunchedAt,
		rec.ImageURL,
		int16(rec.Decimals),
		numeric(rec.TotalSupply),
		numeric(rec.CreatorInitial),
		numeric(rec.CreatorInitialRaw),
		numeric(rec.TokensForSale),
		rec.FormattedAllocation,
		numeric(rec.Stats.TokensHeld),
		rec.Stats.HoldingPercentage,
		rec.Stats.MovementNarrative,
		rec.Stats.SentToBurnAddress,
		rec.Stats.MainSellingAddress,
		rec.Stats.UpdatedAt,
		rec.BalanceMethod,
		rec.Approximate,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, storage.ErrDuplicateKey
		}
		return false, fmt.Errorf("upsert launch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists implements storage.LaunchPublisher.
func (s *Store) Exists(ctx context.Context, chain model.Chain, token string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM launches WHERE chain = $1 AND token_key = $2)`,
		string(chain), registry.Normalize(chain, token),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check launch: %w", err)
	}
	return exists, nil
}

// GetLaunch implements storage.StatsStore.
func (s *Store) GetLaunch(ctx context.Context, id string) (model.LaunchRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+launchColumns+` FROM launches WHERE id = $1`, id)
	rec, err := scanLaunch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LaunchRecord{}, storage.ErrNotFound
		}
		return model.LaunchRecord{}, fmt.Errorf("get launch: %w", err)
	}
	return rec, nil
}

// ListLaunches implements storage.StatsStore. An empty chain lists all chains.
func (s *Store) ListLaunches(ctx context.Context, chain model.Chain) ([]model.LaunchRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+launchColumns+`
		FROM launches
		WHERE $1 = '' OR chain = $1
		ORDER BY launched_at ASC, id ASC`, string(chain))
	if err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	defer rows.Close()

	var out []model.LaunchRecord
	for rows.Next() {
		rec, err := scanLaunch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan launch: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	return out, nil
}

// UpdateStats implements storage.StatsStore.
func (s *Store) UpdateStats(ctx context.Context, id string, stats model.TokenStats) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE launches SET
			tokens_held = $2,
			holding_percentage = $3,
			movement_narrative = $4,
			sent_to_burn_address = $5,
			main_selling_address = $6,
			stats_updated_at = $7,
			updated_at = now()
		WHERE id = $1`,
		id,
		numeric(stats.TokensHeld),
		stats.HoldingPercentage,
		stats.MovementNarrative,
		stats.SentToBurnAddress,
		stats.MainSellingAddress,
		stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordDegradation implements storage.AuditSink.
func (s *Store) RecordDegradation(ctx context.Context, d model.Degradation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO degradations (chain, token, owner, tx_id, step, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(d.Chain), d.Token, d.Owner, d.TxID, d.Step, d.Detail, d.At,
	)
	if err != nil {
		return fmt.Errorf("record degradation: %w", err)
	}
	return nil
}

// LoadCheckpoint implements storage.CheckpointStore.
func (s *Store) LoadCheckpoint(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var position int64
	row := s.pool.QueryRow(ctx, `SELECT position FROM backfill_state WHERE name = $1`, name)
	if err := row.Scan(&position); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(position), true, nil
}

// SaveCheckpoint implements storage.CheckpointStore.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, position uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backfill_state (name, position, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET position = EXCLUDED.position, updated_at = now()
	`, name, int64(position))
	return err
}

func scanLaunch(row pgx.Row) (model.LaunchRecord, error) {
	var (
		rec      model.LaunchRecord
		chain    string
		position int64
		decimals int16
	)
	err := row.Scan(
		&rec.ID,
		&chain,
		&rec.Token,
		&rec.Launchpad,
		&rec.Title,
		&rec.URL,
		&rec.Creator,
		&rec.Pair,
		&rec.TxID,
		&position,
		&rec.Description,
		&rec.LaunchedAt,
		&rec.ImageURL,
		&decimals,
		&rec.TotalSupply,
		&rec.CreatorInitial,
		&rec.CreatorInitialRaw,
		&rec.TokensForSale,
		&rec.FormattedAllocation,
		&rec.Stats.TokensHeld,
		&rec.Stats.HoldingPercentage,
		&rec.Stats.MovementNarrative,
		&rec.Stats.SentToBurnAddress,
		&rec.Stats.MainSellingAddress,
		&rec.Stats.UpdatedAt,
		&rec.BalanceMethod,
		&rec.Approximate,
	)
	if err != nil {
		return model.LaunchRecord{}, err
	}
	rec.Chain = model.Chain(chain)
	rec.Position = uint64(position)
	rec.Decimals = uint8(decimals)
	rec.LaunchedAt = rec.LaunchedAt.UTC()
	rec.Stats.UpdatedAt = rec.Stats.UpdatedAt.UTC()
	return rec, nil
}

// numeric maps an empty amount to zero so NUMERIC columns accept it.
func numeric(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}
