package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps deployment records in a shared database so several
// operators see the same deployment history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and applies the embedded migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		sql, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

const selectColumns = `chain_id, name, contract, address, deterministic, initialized, run_id, tx_hash, block, updated_at`

func (s *PostgresStore) Get(ctx context.Context, chainID int64, name string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM deployments WHERE chain_id = $1 AND name = $2`,
		chainID, name,
	)

	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s on chain %d", ErrNotFound, name, chainID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get deployment record %s: %w", name, err)
	}

	return record, nil
}

func (s *PostgresStore) Put(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deployments (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (chain_id, name) DO UPDATE SET
			contract      = EXCLUDED.contract,
			address       = EXCLUDED.address,
			deterministic = EXCLUDED.deterministic,
			initialized   = EXCLUDED.initialized,
			run_id        = EXCLUDED.run_id,
			tx_hash       = EXCLUDED.tx_hash,
			block         = EXCLUDED.block,
			updated_at    = EXCLUDED.updated_at`,
		r.ChainID, r.Name, string(r.Contract), r.Address.Bytes(), r.Deterministic, r.Initialized,
		r.RunID, r.TxHash.Bytes(), int64(r.Block), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save deployment record %s: %w", r.Name, err)
	}

	return nil
}

func (s *PostgresStore) List(ctx context.Context, chainID int64) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM deployments WHERE chain_id = $1 ORDER BY name`,
		chainID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployment records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list deployment records: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r        Record
		contract string
		address  []byte
		txHash   []byte
		block    int64
	)

	if err := row.Scan(
		&r.ChainID, &r.Name, &contract, &address, &r.Deterministic, &r.Initialized,
		&r.RunID, &txHash, &block, &r.UpdatedAt,
	); err != nil {
		return Record{}, err
	}

	r.Contract = contracts.Name(contract)
	r.Address = common.BytesToAddress(address)
	r.TxHash = common.BytesToHash(txHash)
	r.Block = uint64(block)

	return r, nil
}
