package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/receiptsllc/sheriffsale/internal/models"
	"github.com/receiptsllc/sheriffsale/internal/services"
)

const (
	uniqueViolation     = "23505"
	childHashConstraint = "sheriff_sale_child_file_hash_key"
)

// PostgresRepository stores sale records in PostgreSQL through the pgx
// database/sql driver.
type PostgresRepository struct {
	db *sql.DB
}

var _ services.SaleRecordRepository = (*PostgresRepository)(nil)

// Open connects to databaseURL, checks the connection and bootstraps the
// schema.
func Open(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *PostgresRepository) SaveMaster(ctx context.Context, doc *models.MasterSaleDocument) (int64, error) {
	if doc == nil {
		return 0, errors.New("nil master document")
	}
	const q = `
		INSERT INTO sheriff_sale_master
			(file_hash, file_path, file_name, pages_size, sheriff_sale_date, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		doc.FileHash, doc.FilePath, doc.FileName, doc.PageCount, dateOnly(doc.SaleDate),
		createdAt(doc.CreatedAt), createdBy(doc.CreatedBy),
	).Scan(&id)
	if err != nil {
		return 0, &services.PersistenceError{Op: "insert master", Err: err}
	}
	return id, nil
}

func (r *PostgresRepository) SaveChild(ctx context.Context, doc *models.ChildPageDocument) (int64, error) {
	if doc == nil {
		return 0, errors.New("nil child document")
	}
	const q = `
		INSERT INTO sheriff_sale_child
			(sheriff_sale_master_id, file_hash, file_path, file_name, sheriff_sale_date, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		doc.MasterID, doc.FileHash, doc.FilePath, doc.FileName, dateOnly(doc.SaleDate),
		createdAt(doc.CreatedAt), createdBy(doc.CreatedBy),
	).Scan(&id)
	if err != nil {
		if isChildHashConflict(err) {
			return 0, &services.DuplicateContentHashError{Hash: doc.FileHash}
		}
		return 0, &services.PersistenceError{Op: "insert child", Err: err}
	}
	return id, nil
}

func isChildHashConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == childHashConstraint
}

func (r *PostgresRepository) UpdateChildSaleDateByHash(ctx context.Context, hash string, saleDate time.Time) (bool, error) {
	const q = `UPDATE sheriff_sale_child SET sheriff_sale_date = $1 WHERE file_hash = $2`
	res, err := r.db.ExecContext(ctx, q, dateOnly(saleDate), hash)
	if err != nil {
		return false, &services.PersistenceError{Op: "update child sale date", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &services.PersistenceError{Op: "update child sale date", Err: err}
	}
	return n > 0, nil
}

// propertyColumns is the insert and select order for sheriff_sale_property,
// excluding id.
var propertyColumns = []string{
	"sheriff_sale_child_id", "sale", "case_number", "sale_type", "status", "tracts",
	"cost_tax_bid", "plaintiff", "attorney_for_plaintiff", "defendant", "property_address",
	"municipality", "parcel_tax_id", "comments", "zillow_link", "amount_in_dispute",
	"zestimate", "zestibuck", "events", "schools", "year_built", "lot_size",
	"square_foot_range", "square_foot", "bedrooms", "bathrooms", "home_type", "heating",
	"cooling", "parking", "exterior", "parcel_num", "construction_materials", "roof",
	"street", "city", "state", "zip", "county", "created_at", "created_by",
}

func propertyFields(p *models.PropertyRecord) []any {
	return []any{
		&p.ChildID, &p.Sale, &p.CaseNumber, &p.SaleType, &p.Status, &p.Tracts,
		&p.CostTaxBid, &p.Plaintiff, &p.AttorneyForPlaintiff, &p.Defendant, &p.PropertyAddress,
		&p.Municipality, &p.ParcelTaxID, &p.Comments, &p.ZillowLink, &p.AmountInDispute,
		&p.Zestimate, &p.Zestibuck, &p.Events, &p.Schools, &p.YearBuilt, &p.LotSize,
		&p.SquareFootRange, &p.SquareFoot, &p.Bedrooms, &p.Bathrooms, &p.HomeType, &p.Heating,
		&p.Cooling, &p.Parking, &p.Exterior, &p.ParcelNum, &p.ConstructionMaterials, &p.Roof,
		&p.Street, &p.City, &p.State, &p.Zip, &p.County, &p.CreatedAt, &p.CreatedBy,
	}
}

// SavePropertiesBatch inserts records in one transaction with a prepared
// statement; any failure rolls back the whole batch.
func (r *PostgresRepository) SavePropertiesBatch(ctx context.Context, records []models.PropertyRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &services.PersistenceError{Op: "begin property batch", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	placeholders := make([]string, len(propertyColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf("INSERT INTO sheriff_sale_property (%s) VALUES (%s)",
		strings.Join(propertyColumns, ", "), strings.Join(placeholders, ", "))

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return &services.PersistenceError{Op: "prepare property insert", Err: err}
	}
	defer stmt.Close()

	for i := range records {
		rec := records[i]
		rec.CreatedAt = createdAt(rec.CreatedAt)
		rec.CreatedBy = createdBy(rec.CreatedBy)
		args := make([]any, 0, len(propertyColumns))
		for _, f := range propertyFields(&rec) {
			args = append(args, deref(f))
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return &services.PersistenceError{Op: fmt.Sprintf("insert property %d of %d", i+1, len(records)), Err: err}
		}
	}
	if err = tx.Commit(); err != nil {
		return &services.PersistenceError{Op: "commit property batch", Err: err}
	}
	return nil
}

// GetSalesBetween returns child pages with a sale date in [start, end].
func (r *PostgresRepository) GetSalesBetween(ctx context.Context, start, end time.Time) ([]models.ChildPageDocument, error) {
	const q = `
		SELECT id, sheriff_sale_master_id, file_hash, file_path, file_name, sheriff_sale_date, created_at, created_by
		FROM sheriff_sale_child
		WHERE sheriff_sale_date BETWEEN $1 AND $2
		ORDER BY sheriff_sale_date, id
	`
	rows, err := r.db.QueryContext(ctx, q, dateOnly(start), dateOnly(end))
	if err != nil {
		return nil, &services.PersistenceError{Op: "query sales", Err: err}
	}
	defer rows.Close()

	var out []models.ChildPageDocument
	for rows.Next() {
		var c models.ChildPageDocument
		if err := rows.Scan(&c.ID, &c.MasterID, &c.FileHash, &c.FilePath, &c.FileName, &c.SaleDate, &c.CreatedAt, &c.CreatedBy); err != nil {
			return nil, &services.PersistenceError{Op: "scan sale", Err: err}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetPropertiesBySaleID(ctx context.Context, childID int64) ([]models.PropertyRecord, error) {
	q := fmt.Sprintf("SELECT id, %s FROM sheriff_sale_property WHERE sheriff_sale_child_id = $1 ORDER BY id",
		strings.Join(propertyColumns, ", "))
	rows, err := r.db.QueryContext(ctx, q, childID)
	if err != nil {
		return nil, &services.PersistenceError{Op: "query properties", Err: err}
	}
	defer rows.Close()

	var out []models.PropertyRecord
	for rows.Next() {
		var p models.PropertyRecord
		dest := append([]any{&p.ID}, propertyFields(&p)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, &services.PersistenceError{Op: "scan property", Err: err}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func deref(p any) any {
	switch v := p.(type) {
	case *int64:
		return *v
	case *string:
		return *v
	case *time.Time:
		return *v
	default:
		return v
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func createdBy(s string) string {
	if s == "" {
		return models.DefaultCreatedBy
	}
	return s
}
