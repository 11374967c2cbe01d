package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is an open graph database backed by a single SQLite file or an
// in-memory database. It implements Engine with auto-commit semantics: every
// call runs in its own transaction.
type Store struct {
	db   *sql.DB
	path string

	// writer serializes all mutations; SQLite WAL readers proceed without it.
	writer sync.Mutex

	dicts struct {
		sync.Mutex
		labels map[string]int64
		types  map[string]int64
	}

	fts5 bool

	mu     sync.Mutex
	closed bool
}

const defaultBusyTimeoutMS = 5000

// Open opens or creates the database at path. The special path ":memory:"
// opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		// Shared cache keeps the whole connection pool on one database.
		dsn = fmt.Sprintf("file:grafito-%s?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=%d", uuid.NewString(), defaultBusyTimeoutMS)
	} else {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d", path, defaultBusyTimeoutMS)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &Store{db: db, path: path}
	s.dicts.labels = map[string]int64{}
	s.dicts.types = map[string]int64{}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	// FTS5 is a compile-time option of the driver; probe instead of assuming.
	if _, err := s.db.Exec(ftsDDL); err == nil {
		s.fts5 = true
	} else if !strings.Contains(err.Error(), "fts5") && !strings.Contains(err.Error(), "no such module") {
		return fmt.Errorf("init fulltext: %w", err)
	}
	return nil
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// HasFTS5 reports whether the SQLite driver provides the FTS5 extension.
func (s *Store) HasFTS5() bool { return s.fts5 }

// Close releases the underlying database. Further calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// dbtx abstracts over *sql.DB and *sql.Tx so the session code serves both
// auto-commit and explicit-transaction paths.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// session carries one unit of work against q. Newly interned dictionary
// entries stay pending until the surrounding transaction commits.
type session struct {
	s *Store
	q dbtx

	pendingLabels map[string]int64
	pendingTypes  map[string]int64
}

func (s *Store) newSession(q dbtx) *session {
	return &session{s: s, q: q, pendingLabels: map[string]int64{}, pendingTypes: map[string]int64{}}
}

// publish moves the session's pending dictionary entries into the shared
// cache. Called only after a successful commit.
func (sess *session) publish() {
	if len(sess.pendingLabels) == 0 && len(sess.pendingTypes) == 0 {
		return
	}
	sess.s.dicts.Lock()
	for name, id := range sess.pendingLabels {
		sess.s.dicts.labels[name] = id
	}
	for name, id := range sess.pendingTypes {
		sess.s.dicts.types[name] = id
	}
	sess.s.dicts.Unlock()
}

// write runs fn in a fresh SQLite transaction under the writer mutex, with
// guaranteed rollback on error or panic.
func (s *Store) write(fn func(*session) error) (err error) {
	if s.isClosed() {
		return ErrClosed
	}
	s.writer.Lock()
	defer s.writer.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	sess := s.newSession(tx)
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("commit: %w", err)
			return
		}
		sess.publish()
	}()
	return fn(sess)
}

// read runs fn outside any explicit transaction.
func (s *Store) read(fn func(*session) error) error {
	if s.isClosed() {
		return ErrClosed
	}
	return fn(s.newSession(s.db))
}

// Tx is an explicit transaction. It implements Engine; mutations become
// visible atomically at Commit. The writer mutex is held for the lifetime of
// the transaction.
type Tx struct {
	ID   string
	s    *Store
	tx   *sql.Tx
	sess *session
	done bool
}

// Begin starts an explicit transaction, acquiring the writer.
func (s *Store) Begin() (*Tx, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	s.writer.Lock()
	tx, err := s.db.Begin()
	if err != nil {
		s.writer.Unlock()
		return nil, fmt.Errorf("begin: %w", err)
	}
	t := &Tx{ID: uuid.NewString(), s: s, tx: tx}
	t.sess = s.newSession(tx)
	return t, nil
}

// Commit makes the transaction's writes visible and releases the writer.
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	defer t.s.writer.Unlock()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.sess.publish()
	return nil
}

// Rollback discards the transaction's writes and releases the writer.
func (t *Tx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	defer t.s.writer.Unlock()
	return t.tx.Rollback()
}

// WithTx runs fn inside a transaction with guaranteed release: commit on nil
// return, rollback on error or panic.
func (s *Store) WithTx(fn func(*Tx) error) error {
	t, err := s.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			t.Rollback()
			panic(p)
		}
	}()
	if err := fn(t); err != nil {
		if rbErr := t.Rollback(); rbErr != nil && rbErr != ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return t.Commit()
}
