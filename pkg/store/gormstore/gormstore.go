// Package gormstore implements store.Client on a single GORM-managed
// documents table. It runs against Postgres in production and in-memory
// SQLite in tests.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type document struct {
	Collection string `gorm:"primaryKey;size:64"`
	ID         string `gorm:"primaryKey;size:128"`
	Ref        string `gorm:"size:128;index:idx_documents_ref"`
	Data       []byte `gorm:"not null"`
	Version    int64  `gorm:"not null;default:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (document) TableName() string { return "documents" }

// Options tunes per-operation behavior of the store.
type Options struct {
	// OpTimeout bounds every single read/write; zero disables the bound.
	OpTimeout time.Duration
	// TxTimeout bounds one RunTransaction body; zero disables the bound.
	TxTimeout time.Duration
	// Bus, when set, fans commit notifications out to other instances.
	Bus ChangeBus
}

// ChangeBus publishes the name of a collection touched by a commit so other
// instances can refresh their subscriptions.
type ChangeBus interface {
	Publish(ctx context.Context, collection string) error
}

// Store is the GORM-backed store.Client implementation.
type Store struct {
	db       *gorm.DB
	opts     Options
	notifier *notifier
}

// New wraps the provided GORM connection. Migrate must have been run.
func New(db *gorm.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm connection required")
	}
	s := &Store{db: db, opts: opts}
	s.notifier = newNotifier(s.snapshot)
	return s, nil
}

// Migrate creates the documents table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&document{})
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.OpTimeout)
}

func (s *Store) Get(ctx context.Context, collection, id string) (*store.Record, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return getDocument(ctx, s.db, collection, id)
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Record, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return queryDocuments(ctx, s.db, q)
}

func (s *Store) Set(ctx context.Context, collection, id, ref string, doc any) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := setDocument(ctx, s.db, collection, id, ref, doc); err != nil {
		return err
	}
	s.broadcast(collection)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, doc any) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := updateDocument(ctx, s.db, collection, id, doc, 0); err != nil {
		return err
	}
	s.broadcast(collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := deleteDocument(ctx, s.db, collection, id); err != nil {
		return err
	}
	s.broadcast(collection)
	return nil
}

// RunTransaction executes fn atomically. Writes to documents read inside the
// transaction carry the version observed at read time; a concurrent writer
// invalidating that version aborts the whole transaction with
// TRANSACTION_ABORTED so the caller can retry against fresh state.
func (s *Store) RunTransaction(ctx context.Context, fn func(txn store.Txn) error) error {
	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}

	var touched map[string]struct{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn := &txnView{db: tx, readVersions: map[string]int64{}, touched: map[string]struct{}{}}
		if err := fn(txn); err != nil {
			return err
		}
		touched = txn.touched
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return err
		}
		return mapStoreError(err, "transaction")
	}

	for collection := range touched {
		s.broadcast(collection)
	}
	return nil
}

func (s *Store) Subscribe(q store.Query, fn func(batch []store.Record, err error)) string {
	return s.notifier.subscribe(q, fn)
}

func (s *Store) Unsubscribe(token string) {
	s.notifier.unsubscribe(token)
}

// NotifyCollection triggers a local snapshot refresh for subscriptions on the
// collection. The redis bridge calls this when a peer instance commits.
func (s *Store) NotifyCollection(collection string) {
	s.notifier.collectionChanged(collection)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	s.notifier.close()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) broadcast(collection string) {
	s.notifier.collectionChanged(collection)
	if s.opts.Bus != nil {
		ctx, cancel := s.opCtx(context.Background())
		defer cancel()
		_ = s.opts.Bus.Publish(ctx, collection)
	}
}

// snapshot serves the notifier's re-queries outside any transaction.
func (s *Store) snapshot(q store.Query) ([]store.Record, error) {
	ctx, cancel := s.opCtx(context.Background())
	defer cancel()
	return queryDocuments(ctx, s.db, q)
}

// txnView implements store.Txn on an open transaction. It remembers the
// version of every document it has read so writes can be guarded.
type txnView struct {
	db           *gorm.DB
	readVersions map[string]int64
	touched      map[string]struct{}
}

func docKey(collection, id string) string { return collection + "/" + id }

func (t *txnView) Get(ctx context.Context, collection, id string) (*store.Record, error) {
	rec, err := getDocument(ctx, t.db, collection, id)
	if err != nil {
		return nil, err
	}
	t.readVersions[docKey(collection, id)] = rec.Version
	return rec, nil
}

func (t *txnView) Query(ctx context.Context, q store.Query) ([]store.Record, error) {
	recs, err := queryDocuments(ctx, t.db, q)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		t.readVersions[docKey(q.Collection, rec.ID)] = rec.Version
	}
	return recs, nil
}

func (t *txnView) Set(ctx context.Context, collection, id, ref string, doc any) error {
	if err := setDocument(ctx, t.db, collection, id, ref, doc); err != nil {
		return err
	}
	t.touched[collection] = struct{}{}
	return nil
}

func (t *txnView) Update(ctx context.Context, collection, id string, doc any) error {
	key := docKey(collection, id)
	expected := t.readVersions[key]
	if err := updateDocument(ctx, t.db, collection, id, doc, expected); err != nil {
		return err
	}
	if expected > 0 {
		// Subsequent writes to the same document in this transaction guard
		// against the version we just produced.
		t.readVersions[key] = expected + 1
	}
	t.touched[collection] = struct{}{}
	return nil
}

func (t *txnView) Delete(ctx context.Context, collection, id string) error {
	if err := deleteDocument(ctx, t.db, collection, id); err != nil {
		return err
	}
	t.touched[collection] = struct{}{}
	return nil
}

func getDocument(ctx context.Context, db *gorm.DB, collection, id string) (*store.Record, error) {
	var doc document
	err := db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s/%s not found", collection, id))
		}
		return nil, mapStoreError(err, "get")
	}
	return toRecord(doc), nil
}

func queryDocuments(ctx context.Context, db *gorm.DB, q store.Query) ([]store.Record, error) {
	scope := db.WithContext(ctx).Where("collection = ?", q.Collection)
	if q.Ref != "" {
		scope = scope.Where("ref = ?", q.Ref)
	}
	var docs []document
	if err := scope.Order("created_at ASC, id ASC").Find(&docs).Error; err != nil {
		return nil, mapStoreError(err, "query")
	}
	records := make([]store.Record, len(docs))
	for i, doc := range docs {
		records[i] = *toRecord(doc)
	}
	return records, nil
}

func setDocument(ctx context.Context, db *gorm.DB, collection, id, ref string, doc any) error {
	data, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	row := document{
		Collection: collection,
		ID:         id,
		Ref:        ref,
		Data:       data,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"ref":        ref,
			"data":       data,
			"version":    gorm.Expr("documents.version + 1"),
			"updated_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return mapStoreError(err, "set")
	}
	return nil
}

func updateDocument(ctx context.Context, db *gorm.DB, collection, id string, doc any, expectedVersion int64) error {
	data, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	scope := db.WithContext(ctx).Model(&document{}).
		Where("collection = ? AND id = ?", collection, id)
	if expectedVersion > 0 {
		scope = scope.Where("version = ?", expectedVersion)
	}
	result := scope.Updates(map[string]any{
		"data":       data,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return mapStoreError(result.Error, "update")
	}
	if result.RowsAffected == 0 {
		if expectedVersion > 0 {
			return pkgerrors.New(pkgerrors.CodeTransactionAborted,
				fmt.Sprintf("%s/%s changed since read (version %d)", collection, id, expectedVersion))
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s/%s not found", collection, id))
	}
	return nil
}

func deleteDocument(ctx context.Context, db *gorm.DB, collection, id string) error {
	result := db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&document{})
	if result.Error != nil {
		return mapStoreError(result.Error, "delete")
	}
	return nil
}

func marshalDoc(doc any) ([]byte, error) {
	switch v := doc.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encoding document")
		}
		return data, nil
	}
}

func toRecord(doc document) *store.Record {
	return &store.Record{
		ID:        doc.ID,
		Ref:       doc.Ref,
		Data:      json.RawMessage(doc.Data),
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func mapStoreError(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, op+" timed out")
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "could not serialize access") {
		return pkgerrors.Wrap(pkgerrors.CodeTransactionAborted, err, op+" conflicted")
	}
	return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, op+" failed")
}
