// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package sqlite implements the historian store on a single SQLite file.
// Channels are kept in an index table channel_defs; every channel owns one
// data table with the value timestamp as primary key.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/internal/historian"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

var logger = loggo.GetLogger("mediator.historian.sqlite")

const schemaDDL = `
CREATE TABLE IF NOT EXISTS channel_defs (
    obj        TEXT NOT NULL,
    var        TEXT NOT NULL,
    type       TEXT NOT NULL,
    table_name TEXT NOT NULL,
    PRIMARY KEY (obj, var)
);`

// channelDef is the sqlair row of the channel index table.
type channelDef struct {
	Obj       string `db:"obj"`
	Var       string `db:"var"`
	Type      string `db:"type"`
	TableName string `db:"table_name"`
}

// sample is the sqlair row of a channel data table. diffDB is the insertion
// wall-clock time minus the value timestamp, in milliseconds, which keeps
// rows small and reconstructs the insertion timestamp as time+diffDB.
type sample struct {
	Time    int64  `db:"time"`
	DiffDB  int64  `db:"diffDB"`
	Quality int64  `db:"quality"`
	Data    string `db:"data"`
}

// interval binds closed time bounds into queries.
type interval struct {
	Start int64 `db:"start"`
	End   int64 `db:"end"`
}

// rowCount carries aggregation results.
type rowCount struct {
	Count int64 `db:"count"`
}

// latest carries the max insertion timestamp, zero for none.
type latest struct {
	T int64 `db:"t"`
}

// Store is a historian.Store on one SQLite database file. It is driven by a
// single worker goroutine and is not safe for concurrent use beyond the
// statement cache.
type Store struct {
	path string

	db *sqlair.DB

	mu    sync.Mutex
	stmts map[string]*sqlair.Statement

	channels map[object.VariableRef]channelDef
	nextID   int64
}

// New builds a store for the database file at path. The path ":memory:"
// yields a private in-memory database.
func New(path string) *Store {
	return &Store{
		path:     path,
		stmts:    make(map[string]*sqlair.Statement),
		channels: make(map[object.VariableRef]channelDef),
		nextID:   1,
	}
}

// Open implements historian.Store: it opens the database, applies the
// schema and warms the channel cache.
func (s *Store) Open(ctx context.Context) error {
	dsn := s.path
	if dsn != ":memory:" {
		dsn = "file:" + dsn + "?_busy_timeout=5000&_journal_mode=WAL&_sync=NORMAL"
	}
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return errors.Annotatef(err, "opening %q", s.path)
	}
	// One connection: the worker serialises access anyway, and a single
	// connection keeps an in-memory database alive.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.ExecContext(ctx, schemaDDL); err != nil {
		_ = sqldb.Close()
		return errors.Annotatef(err, "creating channel index in %q", s.path)
	}
	s.db = sqlair.NewDB(sqldb)
	if err := s.loadChannels(ctx); err != nil {
		_ = sqldb.Close()
		return errors.Trace(err)
	}
	return nil
}

// Close implements historian.Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return errors.Trace(s.db.PlainDB().Close())
}

func (s *Store) loadChannels(ctx context.Context) error {
	stmt, err := s.prepare("SELECT &channelDef.* FROM channel_defs", channelDef{})
	if err != nil {
		return errors.Trace(err)
	}
	var defs []channelDef
	if err := s.db.Query(ctx, stmt).GetAll(&defs); err != nil && !errors.Is(err, sqlair.ErrNoRows) {
		return errors.Annotate(err, "loading channel index")
	}
	for _, def := range defs {
		ref, err := parseChannelRef(def)
		if err != nil {
			return errors.Trace(err)
		}
		s.channels[ref] = def
		if id, ok := strings.CutPrefix(def.TableName, "ch_"); ok {
			if n, err := strconv.ParseInt(id, 10, 64); err == nil && n >= s.nextID {
				s.nextID = n + 1
			}
		}
	}
	return nil
}

func parseChannelRef(def channelDef) (object.VariableRef, error) {
	obj, err := object.ParseObjectRef(def.Obj)
	if err != nil {
		return object.VariableRef{}, errors.Annotatef(err, "channel index row %q", def.TableName)
	}
	return object.VariableRef{Object: obj, Name: def.Var}, nil
}

// prepare parses a query once and caches the statement by its text.
func (s *Store) prepare(query string, typeSamples ...any) (*sqlair.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := sqlair.Prepare(query, typeSamples...)
	if err != nil {
		return nil, errors.Annotatef(err, "preparing %q", query)
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// txn runs fn inside one transaction, rolling back on error.
func (s *Store) txn(ctx context.Context, fn func(tx *sqlair.TX) error) error {
	tx, err := s.db.Begin(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Errorf("rollback failed after %v: %v", err, rbErr)
		}
		return errors.Trace(err)
	}
	return errors.Annotate(tx.Commit(), "committing transaction")
}

// ensureChannel returns the channel of v, creating the index row and the
// data table inside the caller's transaction if the variable is new.
func (s *Store) ensureChannel(ctx context.Context, tx *sqlair.TX, v object.VariableRef, dataType object.DataType) (channelDef, error) {
	if def, ok := s.channels[v]; ok {
		return def, nil
	}
	if dataType == "" {
		dataType = object.TypeJSON
	}
	def := channelDef{
		Obj:       v.Object.String(),
		Var:       v.Name,
		Type:      string(dataType),
		TableName: fmt.Sprintf("ch_%d", s.nextID),
	}
	insert, err := s.prepare(
		"INSERT INTO channel_defs (obj, var, type, table_name) VALUES ($channelDef.obj, $channelDef.var, $channelDef.type, $channelDef.table_name)",
		channelDef{})
	if err != nil {
		return channelDef{}, errors.Trace(err)
	}
	if err := tx.Query(ctx, insert, def).Run(); err != nil {
		return channelDef{}, errors.Annotatef(err, "indexing channel for %q", v)
	}
	create, err := s.prepare(fmt.Sprintf(
		"CREATE TABLE %s (time INTEGER PRIMARY KEY, diffDB INTEGER, quality INTEGER, data TEXT)",
		def.TableName))
	if err != nil {
		return channelDef{}, errors.Trace(err)
	}
	if err := tx.Query(ctx, create).Run(); err != nil {
		return channelDef{}, errors.Annotatef(err, "creating channel table for %q", v)
	}
	s.nextID++
	s.channels[v] = def
	return def, nil
}

// dropChannelCache undoes cache entries after a rolled-back transaction.
func (s *Store) dropChannelCache(refs []object.VariableRef) {
	for _, ref := range refs {
		delete(s.channels, ref)
	}
}

// Append implements historian.Store. The whole batch, including the creation
// of channels for variables seen for the first time, commits in one
// transaction. A value whose timestamp already exists in its channel fails
// only that value.
func (s *Store) Append(ctx context.Context, entries []historian.Entry, now vtq.Timestamp) ([]string, error) {
	itemErrors := make([]string, len(entries))
	var created []object.VariableRef
	err := s.txn(ctx, func(tx *sqlair.TX) error {
		for i, e := range entries {
			if _, known := s.channels[e.Variable]; !known {
				created = append(created, e.Variable)
			}
			def, err := s.ensureChannel(ctx, tx, e.Variable, e.Type)
			if err != nil {
				return errors.Trace(err)
			}
			insert, err := s.prepare(fmt.Sprintf(
				"INSERT INTO %s (time, diffDB, quality, data) VALUES ($sample.time, $sample.diffDB, $sample.quality, $sample.data)",
				def.TableName), sample{})
			if err != nil {
				return errors.Trace(err)
			}
			row := newSample(e.Value, now)
			if err := tx.Query(ctx, insert, row).Run(); err != nil {
				if isUniqueViolation(err) {
					itemErrors[i] = fmt.Sprintf("timestamp %v already stored for %q", e.Value.T, e.Variable)
					continue
				}
				return errors.Annotatef(err, "appending to %q", e.Variable)
			}
		}
		return nil
	})
	if err != nil {
		s.dropChannelCache(created)
		return nil, errors.Trace(err)
	}
	return itemErrors, nil
}

func newSample(x vtq.VTQ, now vtq.Timestamp) sample {
	return sample{
		Time:    x.T.Millis(),
		DiffDB:  now.Millis() - x.T.Millis(),
		Quality: int64(x.Q),
		Data:    string(x.V),
	}
}

func (row sample) vttq() vtq.VTTQ {
	return vtq.VTTQ{
		V:   vtq.Value(row.Data),
		T:   vtq.Timestamp(row.Time),
		TDB: vtq.Timestamp(row.Time + row.DiffDB),
		Q:   vtq.Quality(row.Quality),
	}
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports constraint violations with this prefix;
	// matching the message avoids a hard dependency on its error type in
	// every caller.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// qualityClause renders the filter as a WHERE fragment.
func qualityClause(filter params.QualityFilter) string {
	switch filter {
	case params.FilterExcludeBad:
		return fmt.Sprintf(" AND quality != %d", vtq.Bad)
	case params.FilterExcludeNonGood:
		return fmt.Sprintf(" AND quality = %d", vtq.Good)
	}
	return ""
}

// ReadRaw implements historian.Store.
func (s *Store) ReadRaw(ctx context.Context, req historian.ReadRawRequest) ([]vtq.VTTQ, error) {
	def, ok := s.channels[req.Variable]
	if !ok || req.MaxValues == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		"SELECT &sample.* FROM %s WHERE time >= $interval.start AND time <= $interval.end%s",
		def.TableName, qualityClause(req.Filter))
	switch req.Bounding {
	case params.TakeLastN:
		query += " ORDER BY time DESC"
	default:
		query += " ORDER BY time ASC"
	}
	if req.MaxValues > 0 && req.Bounding != params.CompressToN {
		query += fmt.Sprintf(" LIMIT %d", req.MaxValues)
	}
	stmt, err := s.prepare(query, sample{}, interval{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	var rows []sample
	bounds := interval{Start: req.Start.Millis(), End: req.End.Millis()}
	if err := s.db.Query(ctx, stmt, bounds).GetAll(&rows); err != nil {
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Annotatef(err, "reading %q", req.Variable)
	}
	if req.Bounding == params.TakeLastN {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	out := make([]vtq.VTTQ, len(rows))
	for i, row := range rows {
		out[i] = row.vttq()
	}
	if req.Bounding == params.CompressToN && req.MaxValues > 0 {
		out = historian.CompressToN(out, req.MaxValues)
	}
	return out, nil
}

// Count implements historian.Store.
func (s *Store) Count(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp, filter params.QualityFilter) (int64, error) {
	def, ok := s.channels[v]
	if !ok {
		return 0, nil
	}
	stmt, err := s.prepare(fmt.Sprintf(
		"SELECT COUNT(*) AS &rowCount.count FROM %s WHERE time >= $interval.start AND time <= $interval.end%s",
		def.TableName, qualityClause(filter)), rowCount{}, interval{})
	if err != nil {
		return 0, errors.Trace(err)
	}
	var n rowCount
	bounds := interval{Start: start.Millis(), End: end.Millis()}
	if err := s.db.Query(ctx, stmt, bounds).Get(&n); err != nil {
		return 0, errors.Annotatef(err, "counting %q", v)
	}
	return n.Count, nil
}

// DeleteInterval implements historian.Store.
func (s *Store) DeleteInterval(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp) (int64, error) {
	def, ok := s.channels[v]
	if !ok {
		return 0, nil
	}
	stmt, err := s.prepare(fmt.Sprintf(
		"DELETE FROM %s WHERE time >= $interval.start AND time <= $interval.end",
		def.TableName), interval{})
	if err != nil {
		return 0, errors.Trace(err)
	}
	var deleted int64
	err = s.txn(ctx, func(tx *sqlair.TX) error {
		var outcome sqlair.Outcome
		bounds := interval{Start: start.Millis(), End: end.Millis()}
		if err := tx.Query(ctx, stmt, bounds).Get(&outcome); err != nil {
			return errors.Annotatef(err, "deleting from %q", v)
		}
		n, err := outcome.Result().RowsAffected()
		if err != nil {
			return errors.Trace(err)
		}
		deleted = n
		return nil
	})
	return deleted, errors.Trace(err)
}

// LatestTimestampDB implements historian.Store.
func (s *Store) LatestTimestampDB(ctx context.Context, v object.VariableRef, start, end vtq.Timestamp) (vtq.Timestamp, error) {
	def, ok := s.channels[v]
	if !ok {
		return vtq.Empty, nil
	}
	stmt, err := s.prepare(fmt.Sprintf(
		"SELECT COALESCE(MAX(time + diffDB), 0) AS &latest.t FROM %s WHERE time >= $interval.start AND time <= $interval.end",
		def.TableName), latest{}, interval{})
	if err != nil {
		return vtq.Empty, errors.Trace(err)
	}
	var row latest
	bounds := interval{Start: start.Millis(), End: end.Millis()}
	if err := s.db.Query(ctx, stmt, bounds).Get(&row); err != nil {
		return vtq.Empty, errors.Annotatef(err, "querying %q", v)
	}
	return vtq.Timestamp(row.T), nil
}

// Modify implements historian.Store. Every mode applies in one transaction;
// precondition violations roll the whole edit back.
func (s *Store) Modify(ctx context.Context, v object.VariableRef, mode params.ModifyMode, data []vtq.VTQ, now vtq.Timestamp) error {
	var created []object.VariableRef
	err := s.txn(ctx, func(tx *sqlair.TX) error {
		if _, known := s.channels[v]; !known {
			switch mode {
			case params.ModifyUpdate, params.ModifyDelete:
				return errors.NotFoundf("no history channel for %q", v)
			}
			created = append(created, v)
		}
		def, err := s.ensureChannel(ctx, tx, v, "")
		if err != nil {
			return errors.Trace(err)
		}
		switch mode {
		case params.ModifyInsert:
			return errors.Trace(s.modifyInsert(ctx, tx, def, v, data, now))
		case params.ModifyUpdate:
			return errors.Trace(s.modifyUpdate(ctx, tx, def, v, data, now))
		case params.ModifyUpsert:
			return errors.Trace(s.modifyUpsert(ctx, tx, def, data, now))
		case params.ModifyReplaceAll:
			return errors.Trace(s.modifyReplaceAll(ctx, tx, def, data, now))
		case params.ModifyDelete:
			return errors.Trace(s.modifyDelete(ctx, tx, def, data))
		}
		return errors.NotValidf("modify mode %q", mode)
	})
	if err != nil {
		s.dropChannelCache(created)
		return errors.Trace(err)
	}
	return nil
}

func (s *Store) modifyInsert(ctx context.Context, tx *sqlair.TX, def channelDef, v object.VariableRef, data []vtq.VTQ, now vtq.Timestamp) error {
	insert, err := s.prepare(fmt.Sprintf(
		"INSERT INTO %s (time, diffDB, quality, data) VALUES ($sample.time, $sample.diffDB, $sample.quality, $sample.data)",
		def.TableName), sample{})
	if err != nil {
		return errors.Trace(err)
	}
	for _, x := range data {
		if err := tx.Query(ctx, insert, newSample(x, now)).Run(); err != nil {
			if isUniqueViolation(err) {
				return errors.AlreadyExistsf("value at %v for %q", x.T, v)
			}
			return errors.Trace(err)
		}
	}
	return nil
}

func (s *Store) modifyUpdate(ctx context.Context, tx *sqlair.TX, def channelDef, v object.VariableRef, data []vtq.VTQ, now vtq.Timestamp) error {
	update, err := s.prepare(fmt.Sprintf(
		"UPDATE %s SET diffDB = $sample.diffDB, quality = $sample.quality, data = $sample.data WHERE time = $sample.time",
		def.TableName), sample{})
	if err != nil {
		return errors.Trace(err)
	}
	for _, x := range data {
		var outcome sqlair.Outcome
		if err := tx.Query(ctx, update, newSample(x, now)).Get(&outcome); err != nil {
			return errors.Trace(err)
		}
		n, err := outcome.Result().RowsAffected()
		if err != nil {
			return errors.Trace(err)
		}
		if n == 0 {
			return errors.NotFoundf("value at %v for %q", x.T, v)
		}
	}
	return nil
}

func (s *Store) modifyUpsert(ctx context.Context, tx *sqlair.TX, def channelDef, data []vtq.VTQ, now vtq.Timestamp) error {
	upsert, err := s.prepare(fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (time, diffDB, quality, data) VALUES ($sample.time, $sample.diffDB, $sample.quality, $sample.data)",
		def.TableName), sample{})
	if err != nil {
		return errors.Trace(err)
	}
	for _, x := range data {
		if err := tx.Query(ctx, upsert, newSample(x, now)).Run(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (s *Store) modifyReplaceAll(ctx context.Context, tx *sqlair.TX, def channelDef, data []vtq.VTQ, now vtq.Timestamp) error {
	clear, err := s.prepare(fmt.Sprintf("DELETE FROM %s", def.TableName))
	if err != nil {
		return errors.Trace(err)
	}
	if err := tx.Query(ctx, clear).Run(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.modifyUpsert(ctx, tx, def, data, now))
}

func (s *Store) modifyDelete(ctx context.Context, tx *sqlair.TX, def channelDef, data []vtq.VTQ) error {
	del, err := s.prepare(fmt.Sprintf(
		"DELETE FROM %s WHERE time = $sample.time", def.TableName), sample{})
	if err != nil {
		return errors.Trace(err)
	}
	for _, x := range data {
		if err := tx.Query(ctx, del, sample{Time: x.T.Millis()}).Run(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// DeleteChannels implements historian.Store: the channels' data tables and
// index rows go away together.
func (s *Store) DeleteChannels(ctx context.Context, vars []object.VariableRef) (int64, error) {
	var existing []channelDef
	var refs []object.VariableRef
	for _, v := range vars {
		if def, ok := s.channels[v]; ok {
			existing = append(existing, def)
			refs = append(refs, v)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	err := s.txn(ctx, func(tx *sqlair.TX) error {
		remove, err := s.prepare(
			"DELETE FROM channel_defs WHERE obj = $channelDef.obj AND var = $channelDef.var",
			channelDef{})
		if err != nil {
			return errors.Trace(err)
		}
		for _, def := range existing {
			if err := tx.Query(ctx, remove, def).Run(); err != nil {
				return errors.Annotatef(err, "removing channel %q", def.TableName)
			}
			drop, err := s.prepare(fmt.Sprintf("DROP TABLE %s", def.TableName))
			if err != nil {
				return errors.Trace(err)
			}
			if err := tx.Query(ctx, drop).Run(); err != nil {
				return errors.Annotatef(err, "dropping channel %q", def.TableName)
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	for _, ref := range refs {
		delete(s.channels, ref)
	}
	return int64(len(existing)), nil
}
