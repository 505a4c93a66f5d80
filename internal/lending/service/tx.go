package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "biblioteca/pkg/domain-errors"
)

// LedgerTx provides the transactional boundary for ledger mutations. Work
// sharing a key is serialized. The Postgres implementation lives with the
// lending store and also makes the copy bookkeeping and the loan write
// commit or roll back together.
type LedgerTx interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// numLedgerShards is the number of mutexes work is spread over. Keys are
// item IDs for borrows and loan IDs for returns.
const numLedgerShards = 128

// defaultLedgerTxTimeout is the maximum duration for a ledger transaction.
const defaultLedgerTxTimeout = 5 * time.Second

// ShardedTx serializes in-memory ledger work with sharded mutexes. It has
// no rollback: work registers compensating steps with onRollback instead.
type ShardedTx struct {
	shards  [numLedgerShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx() *ShardedTx {
	return &ShardedTx{timeout: defaultLedgerTxTimeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withLedgerDeadline(ctx, t.timeout)
	defer cancel()

	shard := hashKey(key) % numLedgerShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	undo := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, undo)); err != nil {
		undo.unwind(ctx)
		return err
	}
	return nil
}

// withLedgerDeadline applies timeout (or the default) unless ctx already
// carries a deadline.
func withLedgerDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultLedgerTxTimeout
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

type undoKey struct{}

// undoLog collects compensating steps for a transaction that has no
// rollback of its own.
type undoLog struct {
	steps []func(ctx context.Context)
}

// onRollback registers step to run if the surrounding ShardedTx fails.
// Inside a database transaction it is a no-op; the rollback undoes the
// writes already.
func onRollback(ctx context.Context, step func(ctx context.Context)) {
	if undo, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		undo.steps = append(undo.steps, step)
	}
}

// unwind runs the registered steps newest first. It uses a context that
// outlives cancellation so a timed-out borrow still gives its copy back.
func (l *undoLog) unwind(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(l.steps) - 1; i >= 0; i-- {
		l.steps[i](ctx)
	}
}
