package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/himanishpuri/melprint/pkg/models"
)

// Key layout:
//
//	t:<track>               JSON trackRecord
//	p:<token>\x00<track>    big-endian seq of the first insert of token for track
//	r:<track>\x00<token>    big-endian count of token occurrences for track
const (
	prefixTrack   = "t:"
	prefixPosting = "p:"
	prefixReverse = "r:"
	sep           = "\x00"
)

// tokens written per read-write transaction
const badgerTxnTokens = 2000

// attempts per transaction before ErrConflict is returned
const badgerConflictRetries = 32

type trackRecord struct {
	ID         string    `json:"id"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
	Seq        uint64    `json:"seq"`
}

// Badger is an on-disk LSM index in a directory.
type Badger struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewBadger(dir string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	seq, err := db.GetSequence([]byte("!seq"), 1000)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return &Badger{db: db, seq: seq}, nil
}

func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	if err := b.seq.Release(); err != nil && !errors.Is(err, badger.ErrDBClosed) {
		b.db.Close()
		return err
	}
	return b.db.Close()
}

func encodeUint(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func postingKey(tok models.Token, trackID string) []byte {
	return []byte(prefixPosting + string(tok) + sep + trackID)
}

func reverseKey(trackID string, tok models.Token) []byte {
	return []byte(prefixReverse + trackID + sep + string(tok))
}

func getUint(txn *badger.Txn, key []byte) (uint64, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt counter at %q", key)
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, true, err
}

func getTrack(txn *badger.Txn, trackID string) (*trackRecord, error) {
	item, err := txn.Get([]byte(prefixTrack + trackID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec trackRecord
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
		return nil, fmt.Errorf("decoding track %q: %w", trackID, err)
	}
	return &rec, nil
}

func putTrack(txn *badger.Txn, rec *trackRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set([]byte(prefixTrack+rec.ID), val)
}

// update runs fn in a read-write transaction, rerunning it with a fresh
// transaction when a concurrent commit wrote a key fn had read.
func (b *Badger) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 1; ; attempt++ {
		err := b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == badgerConflictRetries {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		time.Sleep(time.Duration(attempt) * time.Millisecond)
	}
}

// Insert merges fps into the index. Large inserts span several
// transactions, so a failure part way may leave a partial enrollment.
func (b *Badger) Insert(ctx context.Context, trackID string, fps []models.Fingerprint) error {
	if err := ValidateTrackID(trackID); err != nil {
		return err
	}

	// distinct tokens in first-appearance order with their multiplicity
	var order []models.Token
	counts := make(map[models.Token]uint64)
	for _, fp := range fps {
		if counts[fp.Token] == 0 {
			order = append(order, fp.Token)
		}
		counts[fp.Token]++
	}

	err := b.update(ctx, func(txn *badger.Txn) error {
		_, err := getTrack(txn, trackID)
		if !errors.Is(err, ErrTrackNotFound) {
			return err
		}
		seq, err := b.seq.Next()
		if err != nil {
			return err
		}
		return putTrack(txn, &trackRecord{ID: trackID, CreatedAt: time.Now(), Seq: seq})
	})
	if err != nil {
		return fmt.Errorf("registering track: %w", err)
	}

	for start := 0; start < len(order); start += badgerTxnTokens {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := order[start:min(start+badgerTxnTokens, len(order))]
		err := b.update(ctx, func(txn *badger.Txn) error {
			for _, tok := range chunk {
				rk := reverseKey(trackID, tok)
				prev, found, err := getUint(txn, rk)
				if err != nil {
					return err
				}
				if !found {
					seq, err := b.seq.Next()
					if err != nil {
						return err
					}
					if err := txn.Set(postingKey(tok, trackID), encodeUint(seq)); err != nil {
						return err
					}
				}
				if err := txn.Set(rk, encodeUint(prev+counts[tok])); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("writing postings: %w", err)
		}
	}

	return b.update(ctx, func(txn *badger.Txn) error {
		rec, err := getTrack(txn, trackID)
		if err != nil {
			return err
		}
		rec.TokenCount += len(fps)
		return putTrack(txn, rec)
	})
}

type posting struct {
	trackID string
	seq     uint64
}

func (b *Badger) Lookup(ctx context.Context, tokens []models.Token) (map[models.Token][]string, error) {
	out := make(map[models.Token][]string)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for _, tok := range tokens {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, done := out[tok]; done {
				continue
			}
			prefix := []byte(prefixPosting + string(tok) + sep)
			var hits []posting
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				id := string(bytes.TrimPrefix(item.Key(), prefix))
				err := item.Value(func(val []byte) error {
					if len(val) != 8 {
						return fmt.Errorf("corrupt posting for %q", id)
					}
					hits = append(hits, posting{trackID: id, seq: binary.BigEndian.Uint64(val)})
					return nil
				})
				if err != nil {
					return err
				}
			}
			if len(hits) == 0 {
				continue
			}
			sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
			ids := make([]string, len(hits))
			for i, h := range hits {
				ids[i] = h.trackID
			}
			out[tok] = ids
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) Track(_ context.Context, trackID string) (*models.Track, error) {
	var rec *trackRecord
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getTrack(txn, trackID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &models.Track{ID: rec.ID, TokenCount: rec.TokenCount, CreatedAt: rec.CreatedAt}, nil
}

func (b *Badger) Tracks(_ context.Context) ([]models.Track, error) {
	var recs []trackRecord
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixTrack)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec trackRecord
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })

	out := make([]models.Track, len(recs))
	for i, rec := range recs {
		out[i] = models.Track{ID: rec.ID, TokenCount: rec.TokenCount, CreatedAt: rec.CreatedAt}
	}
	return out, nil
}

func (b *Badger) Remove(_ context.Context, trackID string) error {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		if _, err := getTrack(txn, trackID); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixReverse + trackID + sep)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rk := it.Item().KeyCopy(nil)
			tok := models.Token(bytes.TrimPrefix(rk, prefix))
			keys = append(keys, rk, postingKey(tok, trackID))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	if err := wb.Delete([]byte(prefixTrack + trackID)); err != nil {
		return err
	}
	return wb.Flush()
}
