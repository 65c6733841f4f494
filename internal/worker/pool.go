package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs a set of workers and waits for all of them.
type Pool struct {
	workers []*Worker
}

// NewPool builds one worker per shard in shards, sharing every other
// option. An empty shards list means all shards of the store.
func NewPool(opts Options, shards []int) (*Pool, error) {
	if len(shards) == 0 && opts.Store != nil {
		for i := 0; i < opts.Store.Shards(); i++ {
			shards = append(shards, i)
		}
	}
	p := &Pool{}
	for _, s := range shards {
		o := opts
		o.Shard = s
		w, err := New(o)
		if err != nil {
			return nil, err
		}
		p.workers = append(p.workers, w)
	}
	return p, nil
}

// Shards lists the shards served by the pool.
func (p *Pool) Shards() []int {
	out := make([]int, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.Shard()
	}
	return out
}

// Run starts every worker and blocks until ctx is cancelled and all have
// returned.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}
