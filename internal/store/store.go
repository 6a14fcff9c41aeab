package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// dbDirPermissions is used when creating the directory holding the database.
const dbDirPermissions = 0o700

// SQL statements for document operations.
const (
	sqlEnsurePartition = `INSERT INTO partitions (name, key_field, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING`

	sqlUpsertDocument = `INSERT INTO documents (partition, doc_key, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(partition, doc_key) DO UPDATE SET
		 data = excluded.data,
		 updated_at = excluded.updated_at`

	sqlGetDocument = `SELECT data FROM documents WHERE partition = ? AND doc_key = ?`

	sqlListDocuments = `SELECT data FROM documents WHERE partition = ? ORDER BY doc_key`

	sqlDeleteDocument = `DELETE FROM documents WHERE partition = ? AND doc_key = ?`

	sqlListPartitions = `SELECT name FROM partitions`
)

// Store is the local persistent store. The database is opened lazily on the
// first operation; a failed open is retried on the next call rather than
// cached, so a storage directory that appears later is picked up.
type Store struct {
	path    string
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests

	mu         sync.Mutex
	db         *sql.DB
	partitions map[string]bool // partitions known to exist
}

// New returns a Store backed by the SQLite database at dbPath. Nothing is
// opened until the first operation. An empty dbPath means no storage backend
// is available; every operation then fails with ErrStoreUnavailable.
func New(dbPath string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		path:       dbPath,
		logger:     logger,
		nowFunc:    time.Now,
		partitions: make(map[string]bool),
	}
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Init opens the database, applies migrations, and creates the default
// partitions. It is idempotent: once initialized, further calls return
// immediately and never clear existing data.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// conn returns the open database, initializing it on first use.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if s.path == "" {
		return nil, &Error{Code: CodeUnavailable, Op: "open", Kind: ErrStoreUnavailable}
	}

	db, err := s.open(ctx)
	if err != nil {
		s.logger.Warn("offline database not available",
			slog.String("db_path", s.path),
			slog.String("error", err.Error()),
		)

		return nil, &Error{Code: CodeUnavailable, Op: "open", Kind: ErrStoreUnavailable, Cause: err}
	}

	s.db = db

	for _, name := range defaultPartitions {
		if err := s.ensurePartitionLocked(ctx, name); err != nil {
			return nil, &Error{Code: CodeStoreFailed, Op: "create partition", Collection: name, Cause: err}
		}
	}

	s.logger.Info("offline store initialized", slog.String("db_path", s.path))

	return s.db, nil
}

// open creates the database file and runs migrations. The database uses WAL
// mode with synchronous=FULL so an acknowledged enqueue survives a crash.
func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), dbDirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		s.path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", s.path, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database %s: %w", s.path, err)
	}

	if err := runMigrations(ctx, db, s.logger); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// ensurePartition registers a partition if it does not exist yet.
func (s *Store) ensurePartition(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensurePartitionLocked(ctx, name)
}

func (s *Store) ensurePartitionLocked(ctx context.Context, name string) error {
	if s.partitions[name] {
		return nil
	}

	if s.db == nil {
		return ErrStoreUnavailable
	}

	if _, err := s.db.ExecContext(ctx, sqlEnsurePartition, name, KeyField(name), s.nowFunc().UnixMilli()); err != nil {
		return fmt.Errorf("registering partition %s: %w", name, err)
	}

	s.partitions[name] = true

	return nil
}

// Partitions returns the names of all partitions, sorted.
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, sqlListPartitions)
	if err != nil {
		return nil, &Error{Code: CodeQueryFailed, Op: "list partitions", Cause: err}
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &Error{Code: CodeQueryFailed, Op: "list partitions", Cause: err}
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, &Error{Code: CodeQueryFailed, Op: "list partitions", Cause: err}
	}

	sort.Strings(names)

	return names, nil
}

// Put inserts or overwrites the document stored under key. The key is
// written into the document's key field (see KeyField) and the stored
// document is returned.
func (s *Store) Put(ctx context.Context, collection, key string, doc Document) (Document, error) {
	collection, key = normalizeName(collection), normalizeName(key)

	if collection == CollectionSyncStatus {
		return nil, &Error{Code: CodeStoreFailed, Op: "put", Collection: collection, Key: key, Kind: ErrReservedPartition}
	}

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ensurePartition(ctx, collection); err != nil {
		return nil, &Error{Code: CodeStoreFailed, Op: "put", Collection: collection, Key: key, Cause: err}
	}

	stored := doc.Clone()
	stored[KeyField(collection)] = key

	data, err := encodeDocument(stored)
	if err != nil {
		return nil, &Error{Code: CodeStoreFailed, Op: "put", Collection: collection, Key: key, Cause: err}
	}

	if _, err := db.ExecContext(ctx, sqlUpsertDocument, collection, key, data, s.nowFunc().UnixMilli()); err != nil {
		return nil, &Error{Code: CodeStoreFailed, Op: "put", Collection: collection, Key: key, Cause: err}
	}

	s.logger.Debug("document stored offline",
		slog.String("collection", collection),
		slog.String("key", key),
	)

	return stored, nil
}

// Get returns the document stored under key, or an error matching
// ErrNotFound when there is none.
func (s *Store) Get(ctx context.Context, collection, key string) (Document, error) {
	collection, key = normalizeName(collection), normalizeName(key)

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var data string

	err = db.QueryRowContext(ctx, sqlGetDocument, collection, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Code: CodeNotFound, Op: "get", Collection: collection, Key: key, Kind: ErrNotFound}
	}

	if err != nil {
		return nil, &Error{Code: CodeGetFailed, Op: "get", Collection: collection, Key: key, Cause: err}
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return nil, &Error{Code: CodeGetFailed, Op: "get", Collection: collection, Key: key, Cause: err}
	}

	return doc, nil
}

// GetAll returns every document in the collection ordered by key. When
// filter is non-nil it is applied in memory after retrieval.
func (s *Store) GetAll(ctx context.Context, collection string, filter func(Document) bool) ([]Document, error) {
	collection = normalizeName(collection)

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ensurePartition(ctx, collection); err != nil {
		return nil, &Error{Code: CodeQueryFailed, Op: "query", Collection: collection, Cause: err}
	}

	rows, err := db.QueryContext(ctx, sqlListDocuments, collection)
	if err != nil {
		return nil, &Error{Code: CodeQueryFailed, Op: "query", Collection: collection, Cause: err}
	}
	defer rows.Close()

	docs := []Document{}

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &Error{Code: CodeQueryFailed, Op: "query", Collection: collection, Cause: err}
		}

		doc, err := decodeDocument(data)
		if err != nil {
			return nil, &Error{Code: CodeQueryFailed, Op: "query", Collection: collection, Cause: err}
		}

		if filter == nil || filter(doc) {
			docs = append(docs, doc)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, &Error{Code: CodeQueryFailed, Op: "query", Collection: collection, Cause: err}
	}

	return docs, nil
}

// Delete removes the document stored under key. Deleting an absent document
// is not an error.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	collection, key = normalizeName(collection), normalizeName(key)

	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, sqlDeleteDocument, collection, key); err != nil {
		return &Error{Code: CodeDeleteFailed, Op: "delete", Collection: collection, Key: key, Cause: err}
	}

	return nil
}

// Close releases the database connection. The store can be initialized
// again by a later operation.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	s.partitions = make(map[string]bool)

	if err != nil {
		return fmt.Errorf("store: closing database: %w", err)
	}

	return nil
}
