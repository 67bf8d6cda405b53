package magic

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/taflmagic/internal/board"
)

// Progress is reported after each square's search completes.
type Progress struct {
	Square       board.Square
	Done         int
	Total        int
	RelevantBits int
	Trials       int
	Elapsed      time.Duration
}

// Builder runs the magic search for every square of an oracle's board.
type Builder struct {
	Oracle board.Oracle

	// Workers bounds the number of squares searched in parallel.
	// Zero means GOMAXPROCS.
	Workers int

	// Seed makes builds reproducible. Zero draws a random seed.
	Seed uint64

	Policy Policy

	// Progress, if set, is called once per finished square. Calls are
	// serialized but arrive in completion order, not square order.
	Progress func(Progress)

	Logger zerolog.Logger
}

// NewBuilder returns a builder for oracle with default settings.
func NewBuilder(oracle board.Oracle) *Builder {
	return &Builder{
		Oracle: oracle,
		Logger: zerolog.Nop(),
	}
}

// Build searches every square and merges the results into a table.
// Cancelling ctx stops scheduling new squares; a search already running
// finishes first. A cancelled build returns no table.
func (b *Builder) Build(ctx context.Context) (*Table, error) {
	g := b.Oracle.Geometry()
	if err := g.Validate(); err != nil {
		return nil, err
	}

	seed := b.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	n := g.Squares()
	start := time.Now()
	b.Logger.Info().
		Str("board", g.String()).
		Int("squares", n).
		Int("workers", workers).
		Uint64("seed", seed).
		Str("policy", b.Policy.String()).
		Msg("Building magic table")

	results := make([]Result, n)
	var (
		mu   sync.Mutex
		done int
	)

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)

	for i := 0; i < n; i++ {
		sq, err := g.Square(i)
		if err != nil {
			grp.Wait()
			return nil, err
		}
		if gctx.Err() != nil {
			break
		}

		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := b.searchSquare(sq, seed)
			results[sq] = res

			mu.Lock()
			defer mu.Unlock()
			done++
			b.Logger.Debug().
				Str("square", g.Name(sq)).
				Int("bits", res.Mask.OnesCount()).
				Int("trials", res.Trials).
				Dur("elapsed", time.Since(start)).
				Msg("Square done")
			if b.Progress != nil {
				b.Progress(Progress{
					Square:       sq,
					Done:         done,
					Total:        n,
					RelevantBits: res.Mask.OnesCount(),
					Trials:       res.Trials,
					Elapsed:      time.Since(start),
				})
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := Merge(g, results, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if r, ok := b.Oracle.(restrictedOracle); ok {
		table = table.WithRestricted(r.Restricted())
	}

	b.Logger.Info().
		Int("entries", table.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Magic table complete")
	return table, nil
}

// searchSquare runs the search for one square with its own random stream,
// so results depend only on the seed and the square.
func (b *Builder) searchSquare(sq board.Square, seed uint64) Result {
	mask := b.Oracle.BlockerMask(sq)
	patterns := Patterns(mask)
	moves := make([]board.Mask, len(patterns))
	for i, occ := range patterns {
		moves[i] = b.Oracle.LegalMoves(sq, occ)
	}

	rng := rand.New(rand.NewPCG(seed, uint64(sq)))
	return Search(sq, mask, patterns, moves, rng, b.Policy)
}

// Merge concatenates per-square results, which must be in square order,
// assigning each square the running offset.
func Merge(g board.Geometry, results []Result, buildID string) (*Table, error) {
	entries := make([]Entry, len(results))
	total := 0
	for i, r := range results {
		total += len(r.Attacks)
		entries[i] = Entry{Mask: r.Mask, Magic: r.Multiplier, Shift: r.Shift}
	}

	attacks := make([]board.Mask, 0, total)
	for i, r := range results {
		entries[i].Offset = uint32(len(attacks))
		attacks = append(attacks, r.Attacks...)
	}

	return NewTable(g, entries, attacks, buildID)
}
