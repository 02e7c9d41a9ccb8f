package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"ordertx/internal/core/id"
	"ordertx/internal/domain/audit"
)

// CompressionAlgo specifies how the changes payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which changes are
// stored zstd-compressed.
const DefaultCompressThreshold = 10 * 1024

const auditTable = "audit_log"

var _ audit.Repository = (*AuditRepo)(nil)

// auditRow is the stored form of audit.Entry.
type auditRow struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            audit.Action    `db:"action"`
	Outcome           audit.Outcome   `db:"outcome"`
	ActorID           string          `db:"actor_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	Error             *string         `db:"error"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditRepo stores audit entries in audit_log. Large change sets are
// compressed with zstd.
type AuditRepo struct {
	db                *Resource
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
	columns           []string
}

// NewAuditRepo creates an audit repository. threshold <= 0 selects
// DefaultCompressThreshold.
func NewAuditRepo(db *Resource, threshold int) (*AuditRepo, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	return &AuditRepo{
		db:                db,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: threshold,
		columns:           ExtractDBColumns[auditRow](),
	}, nil
}

// Close releases the zstd decoder.
func (r *AuditRepo) Close() {
	r.decoder.Close()
}

func (r *AuditRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *AuditRepo) Create(ctx context.Context, e *audit.Entry) error {
	row := r.encode(e)

	sql, args, err := r.builder().
		Insert(auditTable).
		SetMap(StructToMap(row)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return MapError(err, "insert", auditTable, e.ID)
	}
	return nil
}

func (r *AuditRepo) ListByEntity(ctx context.Context, entityType string, entityID id.ID, limit int) ([]*audit.Entry, error) {
	q := r.builder().
		Select(r.columns...).
		From(auditTable).
		Where(squirrel.Eq{"entity_type": entityType, "entity_id": entityID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []auditRow
	if err := pgxscan.Select(ctx, r.db.Querier(ctx), &rows, sql, args...); err != nil {
		return nil, MapError(err, "list", auditTable, entityID)
	}

	out := make([]*audit.Entry, 0, len(rows))
	for i := range rows {
		e, err := r.decode(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *AuditRepo) encode(e *audit.Entry) auditRow {
	row := auditRow{
		ID:              e.ID,
		EntityType:      e.EntityType,
		EntityID:        e.EntityID,
		Action:          e.Action,
		Outcome:         e.Outcome,
		ActorID:         e.ActorID,
		Changes:         e.Changes,
		CompressionAlgo: CompressionNone,
		Error:           e.Error,
		CreatedAt:       e.CreatedAt,
	}
	if len(e.Changes) > r.compressThreshold {
		row.ChangesCompressed = r.encoder.EncodeAll(e.Changes, nil)
		row.Changes = nil
		row.CompressionAlgo = CompressionZstd
	}
	return row
}

func (r *AuditRepo) decode(row *auditRow) (*audit.Entry, error) {
	changes := row.Changes
	if row.CompressionAlgo == CompressionZstd && len(row.ChangesCompressed) > 0 {
		decompressed, err := r.decoder.DecodeAll(row.ChangesCompressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress changes of %s: %w", row.ID, err)
		}
		changes = decompressed
	}
	return &audit.Entry{
		ID:         row.ID,
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		Action:     row.Action,
		Outcome:    row.Outcome,
		ActorID:    row.ActorID,
		Changes:    changes,
		Error:      row.Error,
		CreatedAt:  row.CreatedAt,
	}, nil
}
