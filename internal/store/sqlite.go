package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS equipment (
	id             TEXT PRIMARY KEY,
	brand          TEXT,
	equipment_type TEXT NOT NULL DEFAULT 'other',
	data           TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	equipment_id TEXT,
	status       TEXT NOT NULL DEFAULT 'draft',
	error        TEXT NOT NULL DEFAULT '',
	label_scan   TEXT,
	analysis     TEXT,
	created_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS images (
	id           TEXT PRIMARY KEY,
	report_id    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data         BLOB NOT NULL,
	size         INTEGER NOT NULL,
	captured_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equipment_created_at ON equipment(created_at);
CREATE INDEX IF NOT EXISTS idx_equipment_brand ON equipment(brand);
CREATE INDEX IF NOT EXISTS idx_equipment_type ON equipment(equipment_type);
CREATE INDEX IF NOT EXISTS idx_reports_equipment_id ON reports(equipment_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_images_report_id ON images(report_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Equipment ---

func (s *SQLiteStore) CreateEquipment(ctx context.Context, rec *model.EquipmentRecord) error {
	prepareNewEquipment(rec, s.now())
	cols, err := encodeEquipment(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO equipment (id, brand, equipment_type, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, cols.brand, cols.equipmentType, string(cols.data), rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert equipment")
}

func (s *SQLiteStore) GetEquipment(ctx context.Context, id string) (*model.EquipmentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, created_at, updated_at FROM equipment WHERE id = ?`, id,
	)
	rec, err := scanEquipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: equipment %s", id)
	}
	return rec, err
}

func (s *SQLiteStore) UpdateEquipment(ctx context.Context, rec *model.EquipmentRecord) error {
	rec.Touch(s.now())
	cols, err := encodeEquipment(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE equipment SET brand = ?, equipment_type = ?, data = ?, updated_at = ? WHERE id = ?`,
		cols.brand, cols.equipmentType, string(cols.data), rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update equipment %s", rec.ID)
	}
	return checkRowsAffected(res, "equipment", rec.ID)
}

// DeleteEquipment removes the record and unlinks any reports that
// referenced it.
func (s *SQLiteStore) DeleteEquipment(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE reports SET equipment_id = NULL WHERE equipment_id = ?`, id); err != nil {
			return eris.Wrapf(err, "sqlite: unlink reports of %s", id)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM equipment WHERE id = ?`, id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete equipment %s", id)
		}
		return checkRowsAffected(res, "equipment", id)
	})
}

func (s *SQLiteStore) ListEquipment(ctx context.Context, filter EquipmentFilter) ([]model.EquipmentRecord, error) {
	query := `SELECT data, created_at, updated_at FROM equipment WHERE 1=1`
	var args []any

	if filter.Brand != "" {
		query += ` AND brand = lower(trim(?))`
		args = append(args, filter.Brand)
	}
	if filter.EquipmentType != "" {
		query += ` AND equipment_type = ?`
		args = append(args, string(filter.EquipmentType))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list equipment")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.EquipmentRecord{}
	for rows.Next() {
		rec, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list equipment iterate")
}

// --- Reports ---

func (s *SQLiteStore) CreateReport(ctx context.Context, r *model.InspectionReport) error {
	if err := prepareNewReport(r, s.now()); err != nil {
		return err
	}
	cols, err := encodeReport(r)
	if err != nil {
		return err
	}
	if r.EquipmentID != "" {
		if err := s.exists(ctx, "equipment", r.EquipmentID); err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, equipment_id, status, error, label_scan, analysis, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullString(r.EquipmentID), string(r.Status), r.Error,
		nullBytes(cols.labelScan), nullBytes(cols.analysis), r.CreatedAt, r.CompletedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert report")
	}
	attachImages(r, nil)
	return nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.InspectionReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, equipment_id, status, error, label_scan, analysis, created_at, completed_at FROM reports WHERE id = ?`, id,
	)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: report %s", id)
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

func (s *SQLiteStore) UpdateReport(ctx context.Context, r *model.InspectionReport) error {
	cols, err := encodeReport(r)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var current model.ReportStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM reports WHERE id = ?`, r.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "sqlite: report %s", r.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: load report status %s", r.ID)
		}
		if err := checkReportUpdate(current, r); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE reports SET equipment_id = ?, status = ?, error = ?, label_scan = ?, analysis = ?, completed_at = ? WHERE id = ?`,
			nullString(r.EquipmentID), string(r.Status), r.Error,
			nullBytes(cols.labelScan), nullBytes(cols.analysis), r.CompletedAt, r.ID,
		)
		return eris.Wrapf(err, "sqlite: update report %s", r.ID)
	})
}

// DeleteReport removes the report together with its images.
func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE report_id = ?`, id); err != nil {
			return eris.Wrapf(err, "sqlite: delete images of %s", id)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete report %s", id)
		}
		return checkRowsAffected(res, "report", id)
	})
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.InspectionReport, error) {
	query := `SELECT id, equipment_id, status, error, label_scan, analysis, created_at, completed_at FROM reports WHERE 1=1`
	var args []any

	if filter.EquipmentID != "" {
		query += ` AND equipment_id = ?`
		args = append(args, filter.EquipmentID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.InspectionReport{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports iterate")
	}

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

func (s *SQLiteStore) SaveImage(ctx context.Context, img *model.Image) error {
	if err := prepareNewImage(img, s.now()); err != nil {
		return err
	}

	if err := s.exists(ctx, "reports", img.ReportID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images (id, report_id, kind, content_type, data, size, captured_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.ReportID, string(img.Kind), img.ContentType, img.Data, img.Size, img.CapturedAt,
	)
	return eris.Wrap(err, "sqlite: insert image")
}

func (s *SQLiteStore) GetImage(ctx context.Context, id string) (*model.Image, error) {
	var img model.Image
	err := s.db.QueryRowContext(ctx,
		`SELECT id, report_id, kind, content_type, data, size, captured_at FROM images WHERE id = ?`, id,
	).Scan(&img.ID, &img.ReportID, &img.Kind, &img.ContentType, &img.Data, &img.Size, &img.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: image %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get image %s", id)
	}
	img.CapturedAt = img.CapturedAt.UTC()
	return &img, nil
}

func (s *SQLiteStore) ListImages(ctx context.Context, reportID string, kind model.ImageKind) ([]model.Image, error) {
	return s.listImages(ctx, reportID, kind, true)
}

// listImages returns a report's images in capture order. Blob data is only
// loaded when withData is set.
func (s *SQLiteStore) listImages(ctx context.Context, reportID string, kind model.ImageKind, withData bool) ([]model.Image, error) {
	dataCol := `NULL`
	if withData {
		dataCol = `data`
	}
	query := `SELECT id, report_id, kind, content_type, ` + dataCol + `, size, captured_at FROM images WHERE report_id = ?`
	args := []any{reportID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY captured_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list images for %s", reportID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Image{}
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(&img.ID, &img.ReportID, &img.Kind, &img.ContentType, &img.Data, &img.Size, &img.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan image")
		}
		img.CapturedAt = img.CapturedAt.UTC()
		out = append(out, img)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list images iterate")
}

// helpers

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// exists returns ErrNotFound unless table has a row with the given id.
func (s *SQLiteStore) exists(ctx context.Context, table, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", table, id)
	}
	return eris.Wrapf(err, "sqlite: check %s %s", table, id)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEquipment(row scannable) (*model.EquipmentRecord, error) {
	var data string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&data, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan equipment")
	}
	return decodeEquipment([]byte(data), createdAt, updatedAt)
}

func scanReport(row scannable) (*model.InspectionReport, error) {
	var r model.InspectionReport
	var equipmentID, labelScan, analysis sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&r.ID, &equipmentID, &r.Status, &r.Error, &labelScan, &analysis, &r.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan report")
	}

	r.EquipmentID = equipmentID.String
	r.CreatedAt = r.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		r.CompletedAt = &t
	}
	if err := decodeReportOutcomes(&r, []byte(labelScan.String), []byte(analysis.String)); err != nil {
		return nil, err
	}
	return &r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
