package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/melprint/pkg/models"
)

// Lookuper is the read side of the fingerprint index. Lookup returns, for
// every token with at least one hit, the distinct ids of tracks that ever
// had it inserted. Tokens without hits may be absent from the map.
type Lookuper interface {
	Lookup(ctx context.Context, tokens []models.Token) (map[models.Token][]string, error)
}

// TieBreak decides the winner among tracks with equal vote counts.
type TieBreak int

const (
	// TieFirstSeen prefers the track whose first vote came earliest in query order.
	TieFirstSeen TieBreak = iota
	// TieFirstToReach prefers the track that reached the winning count earliest.
	TieFirstToReach
	// TieLexical prefers the lexicographically smallest track id.
	TieLexical
)

func (t TieBreak) String() string {
	switch t {
	case TieFirstSeen:
		return "first-seen"
	case TieFirstToReach:
		return "first-to-reach"
	case TieLexical:
		return "lexical"
	default:
		return fmt.Sprintf("TieBreak(%d)", int(t))
	}
}

func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first-seen":
		return TieFirstSeen, nil
	case "first-to-reach":
		return TieFirstToReach, nil
	case "lexical":
		return TieLexical, nil
	}
	return 0, &ConfigError{Field: "tie_break", Reason: fmt.Sprintf("unknown rule %q", s)}
}

// Matcher votes query tokens against an index.
type Matcher struct {
	index     Lookuper
	tieBreak  TieBreak
	workers   int
	batchSize int
}

func NewMatcher(index Lookuper, cfg Config) *Matcher {
	return &Matcher{
		index:     index,
		tieBreak:  cfg.TieBreak,
		workers:   cfg.lookupWorkers(),
		batchSize: cfg.lookupBatchSize(),
	}
}

// Identify returns the best matching track, or nil when no token hit any
// track. Lookup failures are returned wrapped in ErrIndexUnavailable and are
// never reported as a missing match. Cancellation of ctx is returned as the
// context error.
func (m *Matcher) Identify(ctx context.Context, tokens []models.Token) (*models.MatchResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	hits, err := m.lookupAll(ctx, tokens)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrIndexUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	t := newTally()
	for _, tok := range tokens {
		for _, id := range hits[tok] {
			t.vote(id)
		}
	}
	if len(t.order) == 0 {
		return nil, nil
	}

	ranked := t.rank(m.tieBreak)
	return &models.MatchResult{
		TrackID:     ranked[0].TrackID,
		Confidence:  ranked[0].Votes,
		QueryTokens: len(tokens),
		Candidates:  ranked,
	}, nil
}

// lookupAll issues one Lookup per batch of distinct tokens, concurrently.
// Each batch writes its own shard; shards are merged after all complete.
func (m *Matcher) lookupAll(ctx context.Context, tokens []models.Token) (map[models.Token][]string, error) {
	seen := make(map[models.Token]struct{}, len(tokens))
	distinct := make([]models.Token, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; !ok {
			seen[tok] = struct{}{}
			distinct = append(distinct, tok)
		}
	}

	var batches [][]models.Token
	for start := 0; start < len(distinct); start += m.batchSize {
		batches = append(batches, distinct[start:min(start+m.batchSize, len(distinct))])
	}

	shards := make([]map[models.Token][]string, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, batch := range batches {
		g.Go(func() error {
			res, err := m.index.Lookup(gctx, batch)
			if err != nil {
				return err
			}
			shards[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := make(map[models.Token][]string, len(distinct))
	for _, shard := range shards {
		for tok, ids := range shard {
			hits[tok] = ids
		}
	}
	return hits, nil
}

type trackVotes struct {
	id       string
	votes    int
	firstSeq int
	reachSeq int
}

// tally counts votes and remembers when each track was first and last voted for.
type tally struct {
	seq   int
	byID  map[string]*trackVotes
	order []*trackVotes
}

func newTally() *tally {
	return &tally{byID: make(map[string]*trackVotes)}
}

func (t *tally) vote(id string) {
	v, ok := t.byID[id]
	if !ok {
		v = &trackVotes{id: id, firstSeq: t.seq}
		t.byID[id] = v
		t.order = append(t.order, v)
	}
	v.votes++
	v.reachSeq = t.seq
	t.seq++
}

func (t *tally) rank(rule TieBreak) []models.Candidate {
	sorted := append([]*trackVotes(nil), t.order...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.votes != b.votes {
			return a.votes > b.votes
		}
		switch rule {
		case TieFirstToReach:
			return a.reachSeq < b.reachSeq
		case TieLexical:
			return a.id < b.id
		default:
			return a.firstSeq < b.firstSeq
		}
	})
	out := make([]models.Candidate, len(sorted))
	for i, v := range sorted {
		out[i] = models.Candidate{TrackID: v.id, Votes: v.votes}
	}
	return out
}
