package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/saaga0h/energy-twins/internal/encoder"
	"github.com/saaga0h/energy-twins/internal/index"
	"github.com/saaga0h/energy-twins/pkg/postgres"
)

// Table holds one row per exported building
const Table = "building_vectors"

// Schema creates the vector table. The embedding width matches encoder.Dims.
var Schema = fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS building_vectors (
	bldg_id      BIGINT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	climate_zone TEXT NOT NULL,
	monthly_kwh  DOUBLE PRECISION NOT NULL,
	embedding    vector(%d) NOT NULL,
	exported_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS building_vectors_fingerprint_idx ON building_vectors (fingerprint);`, encoder.Dims)

const upsertVector = `
INSERT INTO building_vectors (bldg_id, fingerprint, climate_zone, monthly_kwh, embedding, exported_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (bldg_id) DO UPDATE SET
	fingerprint = EXCLUDED.fingerprint,
	climate_zone = EXCLUDED.climate_zone,
	monthly_kwh = EXCLUDED.monthly_kwh,
	embedding = EXCLUDED.embedding,
	exported_at = EXCLUDED.exported_at`

// DefaultBatchSize is the number of rows written per transaction
const DefaultBatchSize = 5000

// Exporter writes the encoded reference vectors to Postgres so they can be
// inspected or queried with pgvector operators
type Exporter struct {
	client    postgres.Client
	batchSize int
	logger    *slog.Logger
}

// NewExporter creates an exporter; batchSize <= 0 uses DefaultBatchSize
func NewExporter(client postgres.Client, batchSize int, logger *slog.Logger) *Exporter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{client: client, batchSize: batchSize, logger: logger}
}

// Export upserts every vector of idx and removes rows from other datasets.
// An export already complete for the same fingerprint is skipped. It returns
// the number of rows written.
func (x *Exporter) Export(ctx context.Context, idx *index.Index) (int, error) {
	start := time.Now()
	fp := idx.Fingerprint()

	if _, err := x.client.Exec(ctx, Schema); err != nil {
		return 0, fmt.Errorf("failed to create vector schema: %w", err)
	}

	existing, err := x.countFingerprint(ctx, fp)
	if err != nil {
		return 0, err
	}
	if existing == idx.Size() {
		x.logger.Info("Vector export up to date", "fingerprint", fp, "rows", existing)
		return 0, nil
	}

	now := time.Now().UTC()
	written := 0
	for _, b := range batches(idx.Size(), x.batchSize) {
		err := x.client.Transaction(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, upsertVector)
			if err != nil {
				return fmt.Errorf("failed to prepare vector upsert: %w", err)
			}
			defer stmt.Close()

			for i := b.lo; i < b.hi; i++ {
				rec := idx.RecordAt(i)
				if _, err := stmt.ExecContext(ctx,
					rec.ID, fp, rec.ClimateZone, rec.MonthlyKWh(), Embedding(idx.VectorAt(i)), now,
				); err != nil {
					return fmt.Errorf("failed to upsert vector for building %d: %w", rec.ID, err)
				}
			}
			return nil
		})
		if err != nil {
			return written, err
		}
		written += b.hi - b.lo
		x.logger.Debug("Vector batch exported", "rows", written, "total", idx.Size())
	}

	res, err := x.client.Exec(ctx, `DELETE FROM building_vectors WHERE fingerprint <> $1`, fp)
	if err != nil {
		return written, fmt.Errorf("failed to remove stale vectors: %w", err)
	}
	stale, _ := res.RowsAffected()

	x.logger.Info("Vector export complete",
		"fingerprint", fp,
		"rows", written,
		"stale_removed", stale,
		"duration_ms", time.Since(start).Milliseconds())
	return written, nil
}

func (x *Exporter) countFingerprint(ctx context.Context, fp string) (int, error) {
	n, err := x.client.Count(ctx, `SELECT count(*) FROM building_vectors WHERE fingerprint = $1`, fp)
	if err != nil {
		return 0, fmt.Errorf("failed to count exported vectors: %w", err)
	}
	return int(n), nil
}

// Embedding converts an encoded vector to the pgvector column type
func Embedding(v encoder.Vector) pgvector.Vector {
	f := make([]float32, len(v))
	for i, x := range v {
		f[i] = float32(x)
	}
	return pgvector.NewVector(f)
}

type span struct {
	lo, hi int
}

// batches splits [0, n) into consecutive spans of at most size
func batches(n, size int) []span {
	var out []span
	for lo := 0; lo < n; lo += size {
		out = append(out, span{lo: lo, hi: min(lo+size, n)})
	}
	return out
}
