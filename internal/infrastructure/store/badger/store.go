// Package badger is an embedded passage store for single-node deployments
// and the CLI. Vector search is a brute-force cosine scan.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

const (
	passagePrefix = "p/"
	keyPrefix     = "k/"
	sequenceKey   = "seq/passages"

	sequenceBandwidth = 1000
)

type record struct {
	Text        string    `msgpack:"text"`
	Book        string    `msgpack:"book"`
	Chapter     int       `msgpack:"chapter"`
	Verse       int       `msgpack:"verse"`
	Testament   string    `msgpack:"testament"`
	Source      string    `msgpack:"source"`
	Translation string    `msgpack:"translation"`
	Vector      []float32 `msgpack:"vector"`
}

func (r record) passage() domain.Passage {
	return domain.Passage{
		Text:        r.Text,
		Book:        r.Book,
		Chapter:     r.Chapter,
		Verse:       r.Verse,
		Testament:   domain.Testament(r.Testament),
		Source:      r.Source,
		Translation: r.Translation,
	}
}

// Store keeps passages under sequence-ordered keys so scans return corpus
// order. A secondary "k/<book|ch|v>" entry maps a passage key to its slot.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
}

type loggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

// Open opens (or creates) the store at path. An in-memory store ignores path.
func Open(path string, inMemory bool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &loggerAdapter{logger: logger.With("component", "badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return &Store{db: db, seq: seq, logger: logger}, nil
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("badger_sequence_release_failed", "error", err)
	}
	return s.db.Close()
}

func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

func slotKey(slot uint64) []byte {
	return fmt.Appendf(nil, "%s%016d", passagePrefix, slot)
}

func (s *Store) UpsertPassages(ctx context.Context, passages []domain.IndexedPassage) error {
	if len(passages) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, ip := range passages {
			if err := ctx.Err(); err != nil {
				return err
			}
			slot, err := s.slotFor(txn, ip.Passage.Key())
			if err != nil {
				return err
			}
			value, err := msgpack.Marshal(record{
				Text:        ip.Text,
				Book:        ip.Book,
				Chapter:     ip.Chapter,
				Verse:       ip.Verse,
				Testament:   string(ip.Testament),
				Source:      ip.Source,
				Translation: ip.Translation,
				Vector:      ip.Vector,
			})
			if err != nil {
				return fmt.Errorf("encode passage %s: %w", ip.Reference(), err)
			}
			if err := txn.Set(slotKey(slot), value); err != nil {
				return fmt.Errorf("write passage %s: %w", ip.Reference(), err)
			}
		}
		return nil
	})
}

// slotFor returns the existing slot of key or allocates the next one.
func (s *Store) slotFor(txn *badger.Txn, key string) (uint64, error) {
	indexKey := []byte(keyPrefix + key)
	item, err := txn.Get(indexKey)
	switch {
	case err == nil:
		var slot uint64
		err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt slot for %s", key)
			}
			slot = binary.BigEndian.Uint64(val)
			return nil
		})
		return slot, err
	case errors.Is(err, badger.ErrKeyNotFound):
		slot, err := s.seq.Next()
		if err != nil {
			return 0, fmt.Errorf("next slot: %w", err)
		}
		if err := txn.Set(indexKey, binary.BigEndian.AppendUint64(nil, slot)); err != nil {
			return 0, fmt.Errorf("write slot index: %w", err)
		}
		return slot, nil
	default:
		return 0, fmt.Errorf("read slot index: %w", err)
	}
}

// scan walks passages in corpus order until fn returns false.
func (s *Store) scan(ctx context.Context, withVectors bool, fn func(record) (bool, error)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(passagePrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec record
			err := iter.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode passage: %w", err)
			}
			if !withVectors {
				rec.Vector = nil
			}
			more, err := fn(rec)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
}

func (s *Store) ContainsSearch(
	ctx context.Context,
	substring string,
	filter domain.PassageFilter,
	limit int,
) ([]domain.Passage, error) {
	if substring == "" || limit <= 0 {
		return nil, nil
	}
	var out []domain.Passage
	err := s.scan(ctx, false, func(rec record) (bool, error) {
		p := rec.passage()
		if filter.Match(p) && strings.Contains(p.Text, substring) {
			out = append(out, p)
		}
		return len(out) < limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger contains search: %w", err)
	}
	return out, nil
}

func (s *Store) NearestNeighbors(
	ctx context.Context,
	vector []float32,
	filter domain.PassageFilter,
	k int,
) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return nil, nil
	}
	var hits []domain.ScoredPassage
	err := s.scan(ctx, true, func(rec record) (bool, error) {
		p := rec.passage()
		if !filter.Match(p) {
			return true, nil
		}
		if len(rec.Vector) != len(vector) {
			return false, domain.WrapError(domain.ErrMisconfigured, "badger nearest neighbors",
				fmt.Errorf("stored vector has %d dimensions, query has %d", len(rec.Vector), len(vector)))
		}
		hits = append(hits, domain.ScoredPassage{Passage: p, Distance: CosineDistance(vector, rec.Vector)})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// CosineDistance is 1 - cosine similarity; zero vectors are maximally
// distant.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
