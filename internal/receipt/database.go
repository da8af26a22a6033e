package receipt

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	filesBucketName          = "files"
	filesByNameBucketName    = "files_by_name"
	receiptsBucketName       = "receipts"
	receiptsByPathBucketName = "receipts_by_path"
)

// DB defines the interface for database operations
type DB interface {
	// Update runs fn in a read-write transaction. The transaction commits if fn
	// returns nil and rolls back otherwise. Writers are serialized.
	Update(fn func(tx Tx) error) error

	// View runs fn in a read-only transaction
	View(fn func(tx Tx) error) error

	// Close closes the database connection
	Close() error
}

// Tx is the set of record operations available inside a transaction
type Tx interface {
	// SaveFile inserts or replaces a file record
	SaveFile(file *FileRecord) error

	// GetFile retrieves a file record by ID
	GetFile(id string) (*FileRecord, error)

	// FindFileByName retrieves the file record uploaded under name
	FindFileByName(name string) (*FileRecord, error)

	// SaveReceipt inserts or replaces a receipt
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID, active or not
	GetReceipt(id string) (*Receipt, error)

	// FindReceiptByFilePath retrieves the receipt extracted from the file at path
	FindReceiptByFilePath(path string) (*Receipt, error)

	// ListReceipts returns active receipts ordered by creation time, skipping offset
	// and returning at most limit of them (all when limit <= 0), plus the total
	// number of active receipts
	ListReceipts(offset, limit int) ([]*Receipt, int, error)
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{filesBucketName, filesByNameBucketName, receiptsBucketName, receiptsByPathBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// Update runs fn in a bolt read-write transaction
func (b *BoltDB) Update(fn func(tx Tx) error) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// View runs fn in a bolt read-only transaction
func (b *BoltDB) View(fn func(tx Tx) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) SaveFile(file *FileRecord) error {
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshaling file: %w", err)
	}

	// Drop a stale name index entry if the record was renamed
	if prev := t.tx.Bucket([]byte(filesBucketName)).Get([]byte(file.ID)); prev != nil {
		var old FileRecord
		if err := json.Unmarshal(prev, &old); err == nil && old.FileName != file.FileName {
			if err := t.tx.Bucket([]byte(filesByNameBucketName)).Delete([]byte(old.FileName)); err != nil {
				return err
			}
		}
	}

	if err := t.tx.Bucket([]byte(filesBucketName)).Put([]byte(file.ID), data); err != nil {
		return err
	}
	return t.tx.Bucket([]byte(filesByNameBucketName)).Put([]byte(file.FileName), []byte(file.ID))
}

func (t *boltTx) GetFile(id string) (*FileRecord, error) {
	data := t.tx.Bucket([]byte(filesBucketName)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	var file FileRecord
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshaling file: %w", err)
	}
	return &file, nil
}

func (t *boltTx) FindFileByName(name string) (*FileRecord, error) {
	id := t.tx.Bucket([]byte(filesByNameBucketName)).Get([]byte(name))
	if id == nil {
		return nil, fmt.Errorf("file named %s: %w", name, ErrNotFound)
	}
	return t.GetFile(string(id))
}

func (t *boltTx) SaveReceipt(receipt *Receipt) error {
	byPath := t.tx.Bucket([]byte(receiptsByPathBucketName))
	if owner := byPath.Get([]byte(receipt.FilePath)); owner != nil && string(owner) != receipt.ID {
		return fmt.Errorf("file path %s already belongs to receipt %s", receipt.FilePath, owner)
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshaling receipt: %w", err)
	}
	if err := t.tx.Bucket([]byte(receiptsBucketName)).Put([]byte(receipt.ID), data); err != nil {
		return err
	}
	return byPath.Put([]byte(receipt.FilePath), []byte(receipt.ID))
}

func (t *boltTx) GetReceipt(id string) (*Receipt, error) {
	data := t.tx.Bucket([]byte(receiptsBucketName)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("receipt %s: %w", id, ErrNotFound)
	}
	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshaling receipt: %w", err)
	}
	return &receipt, nil
}

func (t *boltTx) FindReceiptByFilePath(path string) (*Receipt, error) {
	id := t.tx.Bucket([]byte(receiptsByPathBucketName)).Get([]byte(path))
	if id == nil {
		return nil, fmt.Errorf("receipt for %s: %w", path, ErrNotFound)
	}
	return t.GetReceipt(string(id))
}

func (t *boltTx) ListReceipts(offset, limit int) ([]*Receipt, int, error) {
	active := make([]*Receipt, 0)
	err := t.tx.Bucket([]byte(receiptsBucketName)).ForEach(func(k, v []byte) error {
		var receipt Receipt
		if err := json.Unmarshal(v, &receipt); err != nil {
			return fmt.Errorf("unmarshaling receipt: %w", err)
		}
		if receipt.IsActive {
			active = append(active, &receipt)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})

	return paginate(active, offset, limit), len(active), nil
}

func paginate(receipts []*Receipt, offset, limit int) []*Receipt {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(receipts) {
		return []*Receipt{}
	}
	end := len(receipts)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return receipts[offset:end]
}
