package receipt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDB implements the DB interface on a single-connection SQLite database
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (and if needed creates) the database at path
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One connection serializes transactions, matching bolt's single writer
	db.SetMaxOpenConns(1)

	s := &SQLiteDB{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteDB) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL UNIQUE,
		file_path TEXT NOT NULL,
		is_valid INTEGER NOT NULL DEFAULT 0,
		invalid_reason TEXT,
		is_processed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		merchant_name TEXT,
		total_amount REAL,
		purchased_at INTEGER,
		store_address TEXT,
		phone_number TEXT,
		store_number TEXT,
		cashier_number TEXT,
		barcode_num TEXT,
		items TEXT,
		payment_details TEXT,
		additional_info TEXT,
		file_path TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_receipts_active_created ON receipts(is_active, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Update runs fn in a transaction, committing when fn returns nil
func (s *SQLiteDB) Update(fn func(tx Tx) error) error {
	return s.run(fn)
}

// View runs fn in a transaction that is always committed; fn is expected not to write
func (s *SQLiteDB) View(fn func(tx Tx) error) error {
	return s.run(fn)
}

func (s *SQLiteDB) run(fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx *sql.Tx
}

const fileColumns = "id, file_name, file_path, is_valid, invalid_reason, is_processed, created_at, updated_at"

func (t *sqliteTx) SaveFile(file *FileRecord) error {
	_, err := t.tx.Exec(`
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			file_path = excluded.file_path,
			is_valid = excluded.is_valid,
			invalid_reason = excluded.invalid_reason,
			is_processed = excluded.is_processed,
			updated_at = excluded.updated_at`,
		file.ID, file.FileName, file.FilePath, file.IsValid, nullString(file.InvalidReason),
		file.IsProcessed, file.CreatedAt.UnixNano(), file.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving file: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetFile(id string) (*FileRecord, error) {
	file, err := scanFile(t.tx.QueryRow("SELECT "+fileColumns+" FROM files WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	return file, err
}

func (t *sqliteTx) FindFileByName(name string) (*FileRecord, error) {
	file, err := scanFile(t.tx.QueryRow("SELECT "+fileColumns+" FROM files WHERE file_name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file named %s: %w", name, ErrNotFound)
	}
	return file, err
}

func scanFile(row *sql.Row) (*FileRecord, error) {
	var file FileRecord
	var reason sql.NullString
	var created, updated int64
	err := row.Scan(&file.ID, &file.FileName, &file.FilePath, &file.IsValid, &reason,
		&file.IsProcessed, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning file: %w", err)
	}
	if reason.Valid {
		file.InvalidReason = &reason.String
	}
	file.CreatedAt = fromUnixNano(created)
	file.UpdatedAt = fromUnixNano(updated)
	return &file, nil
}

const receiptColumns = "id, merchant_name, total_amount, purchased_at, store_address, phone_number, " +
	"store_number, cashier_number, barcode_num, items, payment_details, additional_info, " +
	"file_path, is_active, created_at, updated_at"

func (t *sqliteTx) SaveReceipt(receipt *Receipt) error {
	items, err := marshalNullable(receipt.Items, receipt.Items == nil)
	if err != nil {
		return fmt.Errorf("marshaling items: %w", err)
	}
	payment, err := marshalNullable(receipt.PaymentDetails, receipt.PaymentDetails == nil)
	if err != nil {
		return fmt.Errorf("marshaling payment details: %w", err)
	}
	additional, err := marshalNullable(receipt.AdditionalInfo, receipt.AdditionalInfo == nil)
	if err != nil {
		return fmt.Errorf("marshaling additional info: %w", err)
	}

	var purchasedAt sql.NullInt64
	if receipt.PurchasedAt != nil {
		purchasedAt = sql.NullInt64{Int64: receipt.PurchasedAt.UnixNano(), Valid: true}
	}
	var total sql.NullFloat64
	if receipt.TotalAmount != nil {
		total = sql.NullFloat64{Float64: *receipt.TotalAmount, Valid: true}
	}

	_, err = t.tx.Exec(`
		INSERT INTO receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			merchant_name = excluded.merchant_name,
			total_amount = excluded.total_amount,
			purchased_at = excluded.purchased_at,
			store_address = excluded.store_address,
			phone_number = excluded.phone_number,
			store_number = excluded.store_number,
			cashier_number = excluded.cashier_number,
			barcode_num = excluded.barcode_num,
			items = excluded.items,
			payment_details = excluded.payment_details,
			additional_info = excluded.additional_info,
			file_path = excluded.file_path,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		receipt.ID, nullString(receipt.MerchantName), total, purchasedAt,
		nullString(receipt.StoreAddress), nullString(receipt.PhoneNumber), nullString(receipt.StoreNumber),
		nullString(receipt.CashierNumber), nullString(receipt.BarcodeNum),
		items, payment, additional,
		receipt.FilePath, receipt.IsActive, receipt.CreatedAt.UnixNano(), receipt.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving receipt: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetReceipt(id string) (*Receipt, error) {
	receipt, err := scanReceipt(t.tx.QueryRow("SELECT "+receiptColumns+" FROM receipts WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", id, ErrNotFound)
	}
	return receipt, err
}

func (t *sqliteTx) FindReceiptByFilePath(path string) (*Receipt, error) {
	receipt, err := scanReceipt(t.tx.QueryRow("SELECT "+receiptColumns+" FROM receipts WHERE file_path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt for %s: %w", path, ErrNotFound)
	}
	return receipt, err
}

func (t *sqliteTx) ListReceipts(offset, limit int) ([]*Receipt, int, error) {
	var total int
	if err := t.tx.QueryRow("SELECT COUNT(*) FROM receipts WHERE is_active = 1").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting receipts: %w", err)
	}

	if limit <= 0 {
		limit = -1 // no limit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := t.tx.Query(
		"SELECT "+receiptColumns+" FROM receipts WHERE is_active = 1 ORDER BY created_at, id LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*Receipt, 0)
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*Receipt, error) {
	var receipt Receipt
	var merchant, address, phone, store, cashier, barcode sql.NullString
	var items, payment, additional sql.NullString
	var total sql.NullFloat64
	var purchasedAt sql.NullInt64
	var created, updated int64
	err := row.Scan(&receipt.ID, &merchant, &total, &purchasedAt, &address, &phone, &store,
		&cashier, &barcode, &items, &payment, &additional,
		&receipt.FilePath, &receipt.IsActive, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	receipt.MerchantName = stringPtr(merchant)
	receipt.StoreAddress = stringPtr(address)
	receipt.PhoneNumber = stringPtr(phone)
	receipt.StoreNumber = stringPtr(store)
	receipt.CashierNumber = stringPtr(cashier)
	receipt.BarcodeNum = stringPtr(barcode)
	if total.Valid {
		receipt.TotalAmount = &total.Float64
	}
	if purchasedAt.Valid {
		t := fromUnixNano(purchasedAt.Int64)
		receipt.PurchasedAt = &t
	}
	if err := unmarshalNullable(items, &receipt.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}
	if err := unmarshalNullable(payment, &receipt.PaymentDetails); err != nil {
		return nil, fmt.Errorf("unmarshaling payment details: %w", err)
	}
	if err := unmarshalNullable(additional, &receipt.AdditionalInfo); err != nil {
		return nil, fmt.Errorf("unmarshaling additional info: %w", err)
	}
	receipt.CreatedAt = fromUnixNano(created)
	receipt.UpdatedAt = fromUnixNano(updated)
	return &receipt, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func marshalNullable(v any, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable(s sql.NullString, v any) error {
	if !s.Valid {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
