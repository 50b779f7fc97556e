package dbctx

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
//
// A Context created by InTx or Begin also carries a commit queue: callbacks registered
// through AfterCommit run once that transaction commits and are dropped on rollback.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB

	commit *commitQueue
}

type commitQueue struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

// WithTx returns a copy of c bound to tx with a fresh commit queue.
func (c Context) WithTx(tx *gorm.DB) Context {
	return Context{Ctx: c.Context(), Tx: tx, commit: &commitQueue{}}
}

// Context returns the request context, defaulting to context.Background.
func (c Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// DB returns the transaction when present, else fallback, bound to the request context.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	if db == nil {
		return nil
	}
	return db.WithContext(c.Context())
}

// OwnsCommitQueue reports whether this context was produced by WithTx.
func (c Context) OwnsCommitQueue() bool { return c.commit != nil }

// AfterCommit defers fn until the owning transaction commits and reports whether fn was
// accepted. Without a transaction fn runs immediately. A transaction opened outside this
// package (Tx set, no commit queue) cannot be observed, so fn is dropped and false is
// returned; open such transactions with Begin instead.
func (c Context) AfterCommit(fn func(context.Context)) bool {
	if fn == nil {
		return true
	}
	if c.commit == nil {
		if c.Tx != nil {
			return false
		}
		fn(c.Context())
		return true
	}
	c.commit.mu.Lock()
	c.commit.fns = append(c.commit.fns, fn)
	c.commit.mu.Unlock()
	return true
}

// FlushCommitted runs the queued callbacks. Transaction runners call it after a
// successful commit.
func (c Context) FlushCommitted() {
	if c.commit == nil {
		return
	}
	c.commit.mu.Lock()
	fns := c.commit.fns
	c.commit.fns = nil
	c.commit.mu.Unlock()
	for _, fn := range fns {
		fn(c.Context())
	}
}

func (c Context) discardCommitted() {
	if c.commit == nil {
		return
	}
	c.commit.mu.Lock()
	c.commit.fns = nil
	c.commit.mu.Unlock()
}
