package db

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/maxpert/topology/common"
	"github.com/maxpert/topology/encoding"
	"github.com/rs/zerolog/log"
)

// Key prefixes for Pebble (sorted for efficient iteration)
const (
	pebblePrefixKV   = "/kv/"   // /kv/{key}
	pebblePrefixLog  = "/log/"  // /log/{version:016x}
	pebblePrefixMeta = "/meta/" // /meta/{name}

	pebbleAppliedKey = pebblePrefixMeta + "applied"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("db: store is closed")

// logRecord is one persisted entry of the mutation log.
type logRecord struct {
	Version  uint64          `msgpack:"v"`
	Mutation common.Mutation `msgpack:"m"`
}

// Options configures Pebble
type Options struct {
	CacheSizeMB    int64 // Block cache size (default: 8MB)
	MemTableSizeMB int64 // Write buffer size (default: 4MB)

	// Sync forces an fsync on every commit. Tests leave it off.
	Sync bool

	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS
}

// DefaultOptions returns small defaults suitable for a configuration namespace.
func DefaultOptions() Options {
	return Options{
		CacheSizeMB:    8,
		MemTableSizeMB: 4,
		Sync:           true,
	}
}

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// PebbleStore persists the configuration namespace together with an ordered mutation log.
//
// Every committed mutation is first appended to the log under its version and then applied to
// the namespace; the namespace remembers the last applied version so that recovery replays
// exactly the log suffix that is missing.
type PebbleStore struct {
	db        *pebble.DB
	path      string
	writeOpts *pebble.WriteOptions
	closed    atomic.Bool
}

// Open opens (or creates) a store at path.
func Open(path string, opts Options) (*PebbleStore, error) {
	if opts.CacheSizeMB <= 0 {
		opts.CacheSizeMB = 8
	}
	if opts.MemTableSizeMB <= 0 {
		opts.MemTableSizeMB = 4
	}

	cache := pebble.NewCache(opts.CacheSizeMB << 20)
	defer cache.Unref() // DB will hold reference

	pebbleOpts := &pebble.Options{
		Cache:        cache,
		MemTableSize: uint64(opts.MemTableSizeMB << 20),
		Logger:       &pebbleLogger{},
		FS:           opts.FS,
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}

	log.Debug().Str("path", path).Bool("sync", opts.Sync).Msg("Opened configuration store")
	return &PebbleStore{db: db, path: path, writeOpts: writeOpts}, nil
}

// Close closes the Pebble DB (idempotent - safe to call multiple times)
func (s *PebbleStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *PebbleStore) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ReadSnapshot returns every pair of r in key order together with the version of the last
// mutation applied to them. Both are read from one consistent pebble snapshot.
func (s *PebbleStore) ReadSnapshot(r common.KeyRange) ([]common.KeyValue, uint64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}

	snap := s.db.NewSnapshot()
	defer snap.Close()

	version, err := readVersion(snap, []byte(pebbleAppliedKey))
	if err != nil {
		return nil, 0, err
	}

	lower, upper := dataBounds(r)
	iter, err := snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to iterate namespace: %w", err)
	}
	defer iter.Close()

	var kvs []common.KeyValue
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read %q: %w", iter.Key(), err)
		}
		kvs = append(kvs, common.KeyValue{
			Key:   cloneBytes(iter.Key()[len(pebblePrefixKV):]),
			Value: cloneBytes(value),
		})
	}

	return kvs, version, iter.Error()
}

// Get reads one namespace key.
func (s *PebbleStore) Get(key []byte) ([]byte, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}

	val, closer, err := s.db.Get(dataKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	defer closer.Close()
	return cloneBytes(val), true, nil
}

// Apply applies m to the namespace and records version as applied, atomically. Sets are
// written, clears become range deletions and every other mutation kind only advances the
// applied version.
func (s *PebbleStore) Apply(version uint64, m common.Mutation) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	switch m.Type {
	case common.SetValue:
		if err := batch.Set(dataKey(m.Param1), m.Param2, nil); err != nil {
			return fmt.Errorf("failed to stage set: %w", err)
		}
	case common.ClearRange:
		lower, upper := dataBounds(m.Range())
		if err := batch.DeleteRange(lower, upper, nil); err != nil {
			return fmt.Errorf("failed to stage clear: %w", err)
		}
	}

	if err := batch.Set([]byte(pebbleAppliedKey), encodeVersion(version), nil); err != nil {
		return fmt.Errorf("failed to stage applied version: %w", err)
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("failed to apply mutation at %d: %w", version, err)
	}
	return nil
}

// AppliedVersion returns the version of the last mutation applied to the namespace, or 0.
func (s *PebbleStore) AppliedVersion() (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return readVersion(s.db, []byte(pebbleAppliedKey))
}

// AppendLog persists m under version. Versions must be appended in increasing order.
func (s *PebbleStore) AppendLog(version uint64, m common.Mutation) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := encoding.Marshal(logRecord{Version: version, Mutation: m})
	if err != nil {
		return fmt.Errorf("failed to encode log record: %w", err)
	}
	if err := s.db.Set(logKey(version), data, s.writeOpts); err != nil {
		return fmt.Errorf("failed to append log record %d: %w", version, err)
	}
	return nil
}

// ReplayLog calls fn for every log record with a version greater than after, in version order.
// Iteration stops at the first error fn returns.
func (s *PebbleStore) ReplayLog(after uint64, fn func(version uint64, m common.Mutation) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if after == ^uint64(0) {
		return nil
	}

	prefix := []byte(pebblePrefixLog)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: logKey(after + 1),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to iterate log: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return fmt.Errorf("failed to read log record: %w", err)
		}

		var rec logRecord
		if err := encoding.Unmarshal(val, &rec); err != nil {
			return fmt.Errorf("corrupt log record %q: %w", iter.Key(), err)
		}
		if err := fn(rec.Version, rec.Mutation); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastLogVersion returns the highest logged version, or 0 when the log is empty.
func (s *PebbleStore) LastLogVersion() (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	prefix := []byte(pebblePrefixLog)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to iterate log: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return decodeLogKey(iter.Key())
}

// TruncateLog removes every log record with a version up to and including upTo.
func (s *PebbleStore) TruncateLog(upTo uint64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	end := prefixUpperBound([]byte(pebblePrefixLog))
	if upTo != ^uint64(0) {
		end = logKey(upTo + 1)
	}
	if err := s.db.DeleteRange([]byte(pebblePrefixLog), end, s.writeOpts); err != nil {
		return fmt.Errorf("failed to truncate log up to %d: %w", upTo, err)
	}
	return nil
}

// dataKey maps a namespace key into the data prefix.
func dataKey(key []byte) []byte {
	out := make([]byte, 0, len(pebblePrefixKV)+len(key))
	out = append(out, pebblePrefixKV...)
	return append(out, key...)
}

// dataBounds maps a namespace range into pebble iteration bounds. A nil End is unbounded.
func dataBounds(r common.KeyRange) ([]byte, []byte) {
	lower := dataKey(r.Begin)
	if r.End == nil {
		return lower, common.PrefixEnd([]byte(pebblePrefixKV))
	}
	return lower, dataKey(r.End)
}

func logKey(version uint64) []byte {
	return fmt.Appendf(nil, "%s%016x", pebblePrefixLog, version)
}

func decodeLogKey(key []byte) (uint64, error) {
	version, err := strconv.ParseUint(string(key[len(pebblePrefixLog):]), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed log key %q: %w", key, err)
	}
	return version, nil
}

func encodeVersion(version uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, version)
	return buf
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func readVersion(r reader, key []byte) (uint64, error) {
	val, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %q: %w", key, err)
	}
	defer closer.Close()

	if len(val) < 8 {
		return 0, fmt.Errorf("malformed version at %q", key)
	}
	return binary.BigEndian.Uint64(val), nil
}

// prefixUpperBound returns the first key after every key starting with prefix.
func prefixUpperBound(prefix []byte) []byte {
	return common.PrefixEnd(prefix)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
