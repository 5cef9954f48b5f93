package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/xMathyu/hvac-scanner/internal/db"
	"github.com/xMathyu/hvac-scanner/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
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

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
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
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: utcNow}, nil
}

func utcNow() time.Time { return time.Now().UTC() }

const postgresMigration = `
CREATE TABLE IF NOT EXISTS equipment (
	id             TEXT PRIMARY KEY,
	brand          TEXT,
	equipment_type TEXT NOT NULL DEFAULT 'other',
	data           JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	equipment_id TEXT REFERENCES equipment(id) ON DELETE SET NULL,
	status       TEXT NOT NULL DEFAULT 'draft',
	error        TEXT NOT NULL DEFAULT '',
	label_scan   JSONB,
	analysis     JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	CONSTRAINT reports_completed_at_check CHECK ((status = 'completed') = (completed_at IS NOT NULL))
);

CREATE TABLE IF NOT EXISTS images (
	id           TEXT PRIMARY KEY,
	seq          BIGSERIAL,
	report_id    TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	kind         TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data         BYTEA NOT NULL,
	size         BIGINT NOT NULL,
	captured_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_equipment_created_at ON equipment(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_equipment_brand ON equipment(brand);
CREATE INDEX IF NOT EXISTS idx_equipment_type ON equipment(equipment_type);
CREATE INDEX IF NOT EXISTS idx_reports_equipment_id ON reports(equipment_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_images_report_id ON images(report_id, seq);
`

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

// --- Equipment ---

func (s *PostgresStore) CreateEquipment(ctx context.Context, rec *model.EquipmentRecord) error {
	prepareNewEquipment(rec, s.now())
	cols, err := encodeEquipment(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO equipment (id, brand, equipment_type, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, cols.brand, cols.equipmentType, cols.data, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert equipment")
}

func (s *PostgresStore) GetEquipment(ctx context.Context, id string) (*model.EquipmentRecord, error) {
	var data []byte
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT data, created_at, updated_at FROM equipment WHERE id = $1`, id,
	).Scan(&data, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: equipment %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get equipment %s", id)
	}
	return decodeEquipment(data, createdAt, updatedAt)
}

func (s *PostgresStore) UpdateEquipment(ctx context.Context, rec *model.EquipmentRecord) error {
	rec.Touch(s.now())
	cols, err := encodeEquipment(rec)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE equipment SET brand = $1, equipment_type = $2, data = $3, updated_at = $4 WHERE id = $5`,
		cols.brand, cols.equipmentType, cols.data, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update equipment %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: equipment %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteEquipment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM equipment WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete equipment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: equipment %s", id)
	}
	return nil
}

func (s *PostgresStore) ListEquipment(ctx context.Context, filter EquipmentFilter) ([]model.EquipmentRecord, error) {
	query := `SELECT data, created_at, updated_at FROM equipment WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Brand != "" {
		query += fmt.Sprintf(` AND brand = lower(trim($%d))`, argIdx)
		args = append(args, filter.Brand)
		argIdx++
	}
	if filter.EquipmentType != "" {
		query += fmt.Sprintf(` AND equipment_type = $%d`, argIdx)
		args = append(args, string(filter.EquipmentType))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list equipment")
	}
	defer rows.Close()

	out := []model.EquipmentRecord{}
	for rows.Next() {
		var data []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&data, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan equipment")
		}
		rec, err := decodeEquipment(data, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list equipment iterate")
}

// --- Reports ---

func (s *PostgresStore) CreateReport(ctx context.Context, r *model.InspectionReport) error {
	if err := prepareNewReport(r, s.now()); err != nil {
		return err
	}
	cols, err := encodeReport(r)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, equipment_id, status, error, label_scan, analysis, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, nullString(r.EquipmentID), string(r.Status), r.Error,
		nullJSON(cols.labelScan), nullJSON(cols.analysis), r.CreatedAt, r.CompletedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert report")
	}
	attachImages(r, nil)
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.InspectionReport, error) {
	r, err := scanPostgresReport(s.pool.QueryRow(ctx,
		`SELECT id, equipment_id, status, error, label_scan, analysis, created_at, completed_at FROM reports WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: report %s", id)
	}
	if err != nil {
		return nil, err
	}

	images, err := s.listImages(ctx, id, "", false)
	if err != nil {
		return nil, err
	}
	attachImages(r, images)
	return r, nil
}

func (s *PostgresStore) UpdateReport(ctx context.Context, r *model.InspectionReport) error {
	cols, err := encodeReport(r)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM reports WHERE id = $1 FOR UPDATE`, r.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: report %s", r.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: load report status %s", r.ID)
		}
		if err := checkReportUpdate(model.ReportStatus(current), r); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE reports SET equipment_id = $1, status = $2, error = $3, label_scan = $4, analysis = $5, completed_at = $6 WHERE id = $7`,
			nullString(r.EquipmentID), string(r.Status), r.Error,
			nullJSON(cols.labelScan), nullJSON(cols.analysis), r.CompletedAt, r.ID,
		)
		return eris.Wrapf(err, "postgres: update report %s", r.ID)
	})
}

func (s *PostgresStore) DeleteReport(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete report %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: report %s", id)
	}
	return nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.InspectionReport, error) {
	query := `SELECT id, equipment_id, status, error, label_scan, analysis, created_at, completed_at FROM reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.EquipmentID != "" {
		query += fmt.Sprintf(` AND equipment_id = $%d`, argIdx)
		args = append(args, filter.EquipmentID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	out := []model.InspectionReport{}
	for rows.Next() {
		r, err := scanPostgresReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list reports iterate")
	}
	rows.Close()

	for i := range out {
		images, err := s.listImages(ctx, out[i].ID, "", false)
		if err != nil {
			return nil, err
		}
		attachImages(&out[i], images)
	}
	return out, nil
}

// --- Images ---

func (s *PostgresStore) SaveImage(ctx context.Context, img *model.Image) error {
	if err := prepareNewImage(img, s.now()); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO images (id, report_id, kind, content_type, data, size, captured_at)
		 SELECT $1::text, id, $3::text, $4::text, $5::bytea, $6::bigint, $7::timestamptz FROM reports WHERE id = $2`,
		img.ID, img.ReportID, string(img.Kind), img.ContentType, img.Data, img.Size, img.CapturedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert image")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: report %s", img.ReportID)
	}
	return nil
}

func (s *PostgresStore) GetImage(ctx context.Context, id string) (*model.Image, error) {
	var img model.Image
	var kind string
	err := s.pool.QueryRow(ctx,
		`SELECT id, report_id, kind, content_type, data, size, captured_at FROM images WHERE id = $1`, id,
	).Scan(&img.ID, &img.ReportID, &kind, &img.ContentType, &img.Data, &img.Size, &img.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: image %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get image %s", id)
	}
	img.Kind = model.ImageKind(kind)
	img.CapturedAt = img.CapturedAt.UTC()
	return &img, nil
}

func (s *PostgresStore) ListImages(ctx context.Context, reportID string, kind model.ImageKind) ([]model.Image, error) {
	return s.listImages(ctx, reportID, kind, true)
}

func (s *PostgresStore) listImages(ctx context.Context, reportID string, kind model.ImageKind, withData bool) ([]model.Image, error) {
	dataCol := `NULL::bytea`
	if withData {
		dataCol = `data`
	}
	query := `SELECT id, report_id, kind, content_type, ` + dataCol + `, size, captured_at FROM images WHERE report_id = $1`
	args := []any{reportID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, string(kind))
	}
	query += ` ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list images for %s", reportID)
	}
	defer rows.Close()

	out := []model.Image{}
	for rows.Next() {
		var img model.Image
		var k string
		if err := rows.Scan(&img.ID, &img.ReportID, &k, &img.ContentType, &img.Data, &img.Size, &img.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan image")
		}
		img.Kind = model.ImageKind(k)
		img.CapturedAt = img.CapturedAt.UTC()
		out = append(out, img)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list images iterate")
}

func scanPostgresReport(row pgx.Row) (*model.InspectionReport, error) {
	var r model.InspectionReport
	var status string
	var equipmentID *string
	var labelScan, analysis []byte
	var completedAt *time.Time

	err := row.Scan(&r.ID, &equipmentID, &status, &r.Error, &labelScan, &analysis, &r.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan report")
	}

	r.Status = model.ReportStatus(status)
	if equipmentID != nil {
		r.EquipmentID = *equipmentID
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if completedAt != nil {
		t := completedAt.UTC()
		r.CompletedAt = &t
	}
	if err := decodeReportOutcomes(&r, labelScan, analysis); err != nil {
		return nil, err
	}
	return &r, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
