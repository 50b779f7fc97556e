package aggregates_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/aggsync/internal/data/aggregates"
	aggtest "github.com/yungbote/aggsync/internal/data/aggregates/testutil"
	"github.com/yungbote/aggsync/internal/data/repos"
	"github.com/yungbote/aggsync/internal/data/repos/testutil"
	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/domain/blog"
	"github.com/yungbote/aggsync/internal/domain/polls"
	"github.com/yungbote/aggsync/internal/platform/ctxutil"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []domainagg.Change
}

func (n *recordingNotifier) Publish(_ context.Context, c domainagg.Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.changes)
}

type fixture struct {
	ctx      context.Context
	tx       *gorm.DB
	dbc      dbctx.Context
	engine   *aggregates.Engine
	hooks    *aggtest.HooksRecorder
	notifier *recordingNotifier
	repos    *repos.Set
}

func newFixture(t *testing.T, opts ...aggregates.Option) *fixture {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	reg, err := aggregates.NewRegistry(append(blog.Aggregates(), polls.Aggregates()...)...)
	require.NoError(t, err)

	f := &fixture{
		ctx:      context.Background(),
		tx:       tx,
		hooks:    &aggtest.HooksRecorder{},
		notifier: &recordingNotifier{},
	}
	f.dbc = dbctx.Context{Ctx: f.ctx}
	opts = append([]aggregates.Option{
		aggregates.WithNotifier(f.notifier),
		aggregates.WithRefreshRuns(repos.NewRefreshRunRepo(tx, log)),
	}, opts...)
	f.engine, err = aggregates.NewEngine(aggregates.BaseDeps{DB: tx, Log: log, Hooks: f.hooks}, reg, opts...)
	require.NoError(t, err)
	f.repos, err = repos.NewSet(tx, log, f.engine.Interceptor())
	require.NoError(t, err)
	return f
}

func (f *fixture) mustPost(t *testing.T) *blog.Post {
	t.Helper()
	p := &blog.Post{Title: "post"}
	require.NoError(t, f.repos.Posts.Save(f.dbc, p))
	return p
}

func (f *fixture) newPoll(t *testing.T) *polls.Poll {
	t.Helper()
	p := &polls.Poll{Question: "q"}
	require.NoError(t, f.repos.Polls.Save(f.dbc, p))
	return p
}

func (f *fixture) addItem(t *testing.T, poll *polls.Poll, score int64) *polls.Item {
	t.Helper()
	it := &polls.Item{Label: "item", Score: score}
	it.SetPoll(poll)
	require.NoError(t, f.repos.PollItems.Save(f.dbc, it))
	return it
}

func (f *fixture) reloadPoll(t *testing.T, id uuid.UUID) *polls.Poll {
	t.Helper()
	return testutil.Reload[polls.Poll](t, f.ctx, f.tx, id)
}

func (f *fixture) reloadPost(t *testing.T, id uuid.UUID) *blog.Post {
	t.Helper()
	return testutil.Reload[blog.Post](t, f.ctx, f.tx, id)
}

func requireInt(t *testing.T, want int64, got *int64, msg string) {
	t.Helper()
	require.NotNil(t, got, msg)
	require.Equal(t, want, *got, msg)
}

func TestCommentCountsFollowInsertsAndDeletes(t *testing.T) {
	f := newFixture(t)
	post := f.mustPost(t)
	untouched := f.mustPost(t)

	fresh := f.reloadPost(t, post.ID)
	require.Nil(t, fresh.CommentsCount, "new post starts NULL")
	require.Nil(t, fresh.NbComments)

	c1 := &blog.Comment{Body: "first"}
	c1.SetPost(post)
	require.NoError(t, f.repos.Comments.Save(f.dbc, c1))
	got := f.reloadPost(t, post.ID)
	requireInt(t, 1, got.CommentsCount, "comments_count after first comment")
	requireInt(t, 1, got.NbComments, "nb_comments after first comment")
	requireInt(t, 0, got.ApprovedCommentsCount, "approved after unapproved comment")

	c2 := &blog.Comment{Body: "second", Approved: true}
	c2.SetPost(post)
	require.NoError(t, f.repos.Comments.Save(f.dbc, c2))
	got = f.reloadPost(t, post.ID)
	requireInt(t, 2, got.CommentsCount, "comments_count after second comment")
	requireInt(t, 1, got.ApprovedCommentsCount, "approved after approved comment")

	require.NoError(t, f.repos.Comments.Delete(f.dbc, c1))
	got = f.reloadPost(t, post.ID)
	requireInt(t, 1, got.CommentsCount, "comments_count after delete")
	requireInt(t, 1, got.NbComments, "nb_comments after delete")

	c2.Approved = false
	require.NoError(t, f.repos.Comments.Save(f.dbc, c2))
	got = f.reloadPost(t, post.ID)
	requireInt(t, 0, got.ApprovedCommentsCount, "approved after unapproving")

	other := f.reloadPost(t, untouched.ID)
	require.Nil(t, other.CommentsCount, "a post nobody commented on stays NULL")
}

func TestPollScoresAcrossUpdates(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t)
	a := f.addItem(t, poll, 12)
	f.addItem(t, poll, 7)

	got := f.reloadPoll(t, poll.ID)
	requireInt(t, 19, got.TotalScore, "total after two items")
	requireInt(t, 2, got.VotesCount, "votes after two items")
	require.NotNil(t, got.AverageScore)
	require.InDelta(t, 9.5, *got.AverageScore, 1e-9)

	a.Score = 3
	require.NoError(t, f.repos.PollItems.Save(f.dbc, a))
	got = f.reloadPoll(t, poll.ID)
	requireInt(t, 10, got.TotalScore, "total after score update")
	requireInt(t, 2, got.VotesCount, "votes unchanged by score update")
}

func TestUnrelatedColumnUpdateSkipsRecompute(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t)
	a := f.addItem(t, poll, 5)

	f.hooks.Reset()
	a.Label = "renamed"
	require.NoError(t, f.repos.PollItems.Save(f.dbc, a))
	require.Empty(t, f.hooks.Recomputes, "label does not feed any aggregate")
}

func TestReparentRecomputesBothParentsOnce(t *testing.T) {
	f := newFixture(t)
	p1 := f.newPoll(t)
	p2 := f.newPoll(t)
	a := f.addItem(t, p1, 12)
	f.addItem(t, p1, 7)
	f.addItem(t, p2, 1)

	f.hooks.Reset()
	a.SetPoll(p2)
	require.NoError(t, f.repos.PollItems.Save(f.dbc, a))

	require.Equal(t, 2, f.hooks.CountRecomputes(polls.AggregateTotalScore), "old and new parent, once each")
	requireInt(t, 7, f.reloadPoll(t, p1.ID).TotalScore, "old parent total")
	requireInt(t, 13, f.reloadPoll(t, p2.ID).TotalScore, "new parent total")
	requireInt(t, 1, f.reloadPoll(t, p1.ID).VotesCount, "old parent votes")
	requireInt(t, 2, f.reloadPoll(t, p2.ID).VotesCount, "new parent votes")
}

func TestDetachExcludesChild(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t)
	a := f.addItem(t, poll, 12)

	a.SetPoll(nil)
	require.NoError(t, f.repos.PollItems.Save(f.dbc, a))

	got := f.reloadPoll(t, poll.ID)
	require.Nil(t, got.TotalScore, "SUM over no rows is NULL")
	require.Nil(t, got.AverageScore, "AVG over no rows is NULL")
	requireInt(t, 0, got.VotesCount, "COUNT over no rows is 0")
}

func TestBulkUpdateWithAlias(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t)
	a := f.addItem(t, poll, 12)
	f.addItem(t, poll, 7)

	n, err := f.repos.PollItems.UpdateWhere(f.dbc, repos.Where("id", repos.OpEq, a.ID).As("foo"), map[string]any{"score": 4})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	requireInt(t, 11, f.reloadPoll(t, poll.ID).TotalScore, "total after aliased bulk update")
}

func TestBulkUpdateMovesChildrenBetweenParents(t *testing.T) {
	f := newFixture(t)
	from := f.newPoll(t)
	to := f.newPoll(t)
	f.addItem(t, from, 12)
	f.addItem(t, from, 7)

	f.hooks.Reset()
	n, err := f.repos.PollItems.UpdateWhere(f.dbc, repos.Where("poll_id", repos.OpEq, from.ID), map[string]any{"poll_id": to.ID})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Equal(t, 2, f.hooks.CountRecomputes(polls.AggregateTotalScore), "each distinct parent once")

	require.Nil(t, f.reloadPoll(t, from.ID).TotalScore)
	requireInt(t, 0, f.reloadPoll(t, from.ID).VotesCount, "source votes")
	requireInt(t, 19, f.reloadPoll(t, to.ID).TotalScore, "destination total")
}

func TestBulkDeleteWithAndWithoutAlias(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t)
	a := f.addItem(t, poll, 12)
	f.addItem(t, poll, 7)

	n, err := f.repos.PollItems.DeleteWhere(f.dbc, repos.Where("id", repos.OpEq, a.ID).As("gone"))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	requireInt(t, 7, f.reloadPoll(t, poll.ID).TotalScore, "after aliased delete")

	n, err = f.repos.PollItems.DeleteWhere(f.dbc, repos.Where("poll_id", repos.OpEq, poll.ID))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	got := f.reloadPoll(t, poll.ID)
	require.Nil(t, got.TotalScore)
	requireInt(t, 0, got.VotesCount, "after deleting every item")
}

func TestBulkStatementMatchingNothingLeavesParentsAlone(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t)

	n, err := f.repos.PollItems.UpdateWhere(f.dbc, repos.Where("score", repos.OpGt, 100), map[string]any{"poll_id": poll.ID})
	require.NoError(t, err)
	require.Zero(t, n)
	require.Nil(t, f.reloadPoll(t, poll.ID).VotesCount, "untouched parent stays NULL")
}

func TestUnresolvableParentIsSkipped(t *testing.T) {
	f := newFixture(t)
	missing := uuid.New()
	it := &polls.Item{Label: "orphan", Score: 3, PollID: &missing}
	require.NoError(t, f.repos.PollItems.Save(f.dbc, it))
	require.Equal(t, 1, f.hooks.CountRecomputes(polls.AggregateTotalScore, aggregates.OutcomeUnresolved))
}

func TestEngineComputeAndUpdate(t *testing.T) {
	f := newFixture(t)
	poll := testutil.SeedPoll(t, f.ctx, f.tx, "seeded")
	testutil.SeedItem(t, f.ctx, f.tx, poll, 4)
	testutil.SeedItem(t, f.ctx, f.tx, poll, 6)

	v, err := f.engine.Compute(f.dbc, polls.AggregateTotalScore, poll.ID)
	require.NoError(t, err)
	require.True(t, v.Equal(domainagg.IntValue(10)), "computed %s", v)
	require.Nil(t, f.reloadPoll(t, poll.ID).TotalScore, "compute has no side effects")

	res, err := f.engine.Update(f.dbc, polls.AggregateTotalScore, poll)
	require.NoError(t, err)
	require.True(t, res.Resolved)
	require.True(t, res.Changed)
	requireInt(t, 10, poll.TotalScore, "in-memory parent refreshed")
	requireInt(t, 10, f.reloadPoll(t, poll.ID).TotalScore, "stored value")

	res, err = f.engine.Update(f.dbc, polls.AggregateTotalScore, poll.ID)
	require.NoError(t, err)
	require.False(t, res.Changed, "second update is a no-op")

	_, err = f.engine.Update(f.dbc, "poll.nope", poll.ID)
	require.True(t, domainagg.IsCode(err, domainagg.CodeNotFound), "unknown aggregate: %v", err)

	post := testutil.SeedPost(t, f.ctx, f.tx, "wrong parent")
	_, err = f.engine.Update(f.dbc, polls.AggregateTotalScore, post)
	require.True(t, domainagg.IsCode(err, domainagg.CodeValidation), "wrong parent model: %v", err)
}

func TestDirectParentWriteIsCorrected(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t)
	f.addItem(t, poll, 8)

	stale := f.reloadPoll(t, poll.ID)
	wrong := int64(99)
	stale.TotalScore = &wrong
	require.NoError(t, f.repos.Polls.Save(f.dbc, stale))
	requireInt(t, 8, f.reloadPoll(t, poll.ID).TotalScore, "cached column restored")
}

func TestChangesPublishAfterCommitOnly(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t)

	err := dbctx.InTx(f.dbc, f.tx, func(dbc dbctx.Context) error {
		it := &polls.Item{Label: "a", Score: 2}
		it.SetPoll(poll)
		if err := f.repos.PollItems.Save(dbc, it); err != nil {
			return err
		}
		require.Zero(t, f.notifier.count(), "nothing published before commit")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, f.notifier.count(), "one event per changed aggregate")

	boom := errors.New("abort")
	err = dbctx.InTx(f.dbc, f.tx, func(dbc dbctx.Context) error {
		it := &polls.Item{Label: "b", Score: 5}
		it.SetPoll(poll)
		if err := f.repos.PollItems.Save(dbc, it); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, f.notifier.count(), "rolled back changes are not published")
	requireInt(t, 2, f.reloadPoll(t, poll.ID).TotalScore, "rollback restored the aggregate")
}

type cappedPoll struct {
	ID         uuid.UUID `gorm:"primaryKey"`
	TotalScore *int64
}

func (cappedPoll) TableName() string { return "capped_poll" }

type cappedItem struct {
	ID     uuid.UUID `gorm:"primaryKey"`
	PollID *uuid.UUID
	Score  int64
}

func (cappedItem) TableName() string { return "capped_item" }

func TestConstraintFailureRollsBackMutation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	require.NoError(t, tx.Exec(`CREATE TABLE capped_poll (id VARCHAR(36) PRIMARY KEY, total_score BIGINT CHECK (total_score IS NULL OR total_score <= 20))`).Error)
	require.NoError(t, tx.Exec(`CREATE TABLE capped_item (id VARCHAR(36) PRIMARY KEY, poll_id VARCHAR(36), score BIGINT NOT NULL)`).Error)

	reg, err := aggregates.NewRegistry(domainagg.Definition{
		ParentTable:  "capped_poll",
		TargetColumn: "total_score",
		ChildTable:   "capped_item",
		ForeignKey:   "poll_id",
		Function:     domainagg.FunctionSum,
		Expression:   "score",
	})
	require.NoError(t, err)
	hooks := &aggtest.HooksRecorder{}
	engine, err := aggregates.NewEngine(aggregates.BaseDeps{DB: tx, Log: log, Hooks: hooks}, reg)
	require.NoError(t, err)
	parents, err := repos.NewEntityRepo[cappedPoll](tx, log, engine.Interceptor())
	require.NoError(t, err)
	items, err := repos.NewEntityRepo[cappedItem](tx, log, engine.Interceptor())
	require.NoError(t, err)

	dbc := dbctx.Context{Ctx: ctx}
	p := &cappedPoll{}
	require.NoError(t, parents.Save(dbc, p))
	require.NoError(t, items.Save(dbc, &cappedItem{PollID: &p.ID, Score: 15}))

	err = items.Save(dbc, &cappedItem{PollID: &p.ID, Score: 10})
	require.Error(t, err)
	require.True(t, domainagg.IsCode(err, domainagg.CodePreconditionFailed), "got %v", err)
	require.Contains(t, err.Error(), "capped_poll.total_score")
	require.Equal(t, 1, hooks.CountRecomputes("capped_poll.total_score", aggregates.OutcomeFailed))

	var n int64
	require.NoError(t, tx.Table("capped_item").Count(&n).Error)
	require.EqualValues(t, 1, n, "the failing child insert was rolled back")
	got, err := parents.GetByID(dbc, p.ID)
	require.NoError(t, err)
	requireInt(t, 15, got.TotalScore, "parent keeps the last good value")
}

func TestRefreshAndVerify(t *testing.T) {
	f := newFixture(t, aggregates.WithRefreshBatchSize(1))
	// Rows seeded behind the repos' back leave the cache stale.
	poll := testutil.SeedPoll(t, f.ctx, f.tx, "stale")
	empty := testutil.SeedPoll(t, f.ctx, f.tx, "empty")
	testutil.SeedItem(t, f.ctx, f.tx, poll, 4)
	testutil.SeedItem(t, f.ctx, f.tx, poll, 5)

	report, err := f.engine.Verify(f.ctx, polls.AggregateTotalScore)
	require.NoError(t, err)
	require.EqualValues(t, 2, report.Checked)
	require.Len(t, report.Drift, 1)
	require.Equal(t, poll.ID.String(), report.Drift[0].ParentID)
	require.True(t, report.Drift[0].Computed.Equal(domainagg.IntValue(9)))

	votes, err := f.engine.Verify(f.ctx, polls.AggregateVotesCount)
	require.NoError(t, err)
	require.Len(t, votes.Drift, 1, "NULL on the childless poll is not drift")

	refreshed, err := f.engine.Refresh(f.ctx, polls.AggregateTotalScore)
	require.NoError(t, err)
	require.EqualValues(t, 2, refreshed.Parents)
	require.EqualValues(t, 1, refreshed.Changed)
	require.Equal(t, 2, refreshed.Batches)
	requireInt(t, 9, f.reloadPoll(t, poll.ID).TotalScore, "refreshed total")

	runs, err := f.repos.RefreshRuns.ListRecent(f.dbc, polls.AggregateTotalScore, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, refreshed.RunID, runs[0].ID)
	require.Equal(t, domainagg.RefreshStatusSucceeded, runs[0].Status)
	require.EqualValues(t, 1, runs[0].Changed)
	require.Nil(t, f.reloadPoll(t, empty.ID).TotalScore)

	report, err = f.engine.Verify(f.ctx, polls.AggregateTotalScore)
	require.NoError(t, err)
	require.True(t, report.OK())

	all, err := f.engine.RefreshAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, f.engine.Registry().Len())
	require.True(t, f.engine.Contract().WriteTxOwnership == domainagg.WriteTxJoinsCaller)
	requireInt(t, 0, f.reloadPoll(t, empty.ID).VotesCount, "refresh materializes childless parents")
}

func TestRefreshSurfacesRunnerFailures(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	testutil.SeedPoll(t, ctx, tx, "locked")

	reg, err := aggregates.NewRegistry(polls.Aggregates()...)
	require.NoError(t, err)
	hooks := &aggtest.HooksRecorder{}
	runner := &aggtest.InjectedTxRunner{FailBegin: errors.New("database is locked")}
	engine, err := aggregates.NewEngine(aggregates.BaseDeps{DB: tx, Log: testutil.Logger(t), Hooks: hooks, Runner: runner}, reg)
	require.NoError(t, err)

	_, err = engine.Refresh(ctx, polls.AggregateTotalScore)
	require.True(t, domainagg.IsCode(err, domainagg.CodeRetryable), "got %v", err)
	require.Equal(t, 1, runner.BeginCalls)
	require.Equal(t, []string{"aggregates.refresh"}, hooks.Retries)
	require.Len(t, hooks.Operations, 1)
	require.Equal(t, string(domainagg.CodeRetryable), hooks.Operations[0].Status)
}

func (n *recordingNotifier) newValues(definition string) map[string]domainagg.Value {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := map[string]domainagg.Value{}
	for _, c := range n.changes {
		if c.Definition == definition {
			out[c.ParentID] = c.New
		}
	}
	return out
}

func TestBulkScoreUpdateAcrossParents(t *testing.T) {
	f := newFixture(t)
	p1 := f.newPoll(t)
	p2 := f.newPoll(t)
	p3 := f.newPoll(t)
	f.addItem(t, p1, 12)
	f.addItem(t, p1, 7)
	f.addItem(t, p2, 1)
	f.addItem(t, p3, 50)

	f.hooks.Reset()
	f.notifier.changes = nil
	n, err := f.repos.PollItems.UpdateWhere(f.dbc, repos.Where("score", repos.OpLt, 20), map[string]any{"score": 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.Equal(t, 2, f.hooks.CountRecomputes(polls.AggregateTotalScore), "one recompute per matched parent")
	require.Equal(t, 2, f.hooks.CountRecomputes(polls.AggregateTotalScore, aggregates.OutcomeChanged))

	published := f.notifier.newValues(polls.AggregateTotalScore)
	require.Len(t, published, 2)
	require.True(t, published[p1.ID.String()].Equal(domainagg.IntValue(4)), "p1 sees post-update scores: %s", published[p1.ID.String()])
	require.True(t, published[p2.ID.String()].Equal(domainagg.IntValue(2)), "p2 sees post-update scores: %s", published[p2.ID.String()])

	requireInt(t, 4, f.reloadPoll(t, p1.ID).TotalScore, "p1 total")
	requireInt(t, 2, f.reloadPoll(t, p2.ID).TotalScore, "p2 total")
	requireInt(t, 50, f.reloadPoll(t, p3.ID).TotalScore, "unmatched parent keeps its total")
	requireInt(t, 2, f.reloadPoll(t, p1.ID).VotesCount, "score change leaves votes as they were")
}

func TestUnfilteredBulkUpdateAndAliasedDelete(t *testing.T) {
	f := newFixture(t)
	p1 := f.newPoll(t)
	p2 := f.newPoll(t)
	f.addItem(t, p1, 12)
	f.addItem(t, p1, 7)
	f.addItem(t, p2, 1)

	f.hooks.Reset()
	n, err := f.repos.PollItems.UpdateWhere(f.dbc, repos.Criteria{}, map[string]any{"score": 4})
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.Equal(t, 2, f.hooks.CountRecomputes(polls.AggregateTotalScore))
	requireInt(t, 8, f.reloadPoll(t, p1.ID).TotalScore, "p1 after unfiltered update")
	requireInt(t, 4, f.reloadPoll(t, p2.ID).TotalScore, "p2 after unfiltered update")

	n, err = f.repos.PollItems.DeleteWhere(f.dbc, repos.Criteria{}.As("pi"))
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	for _, id := range []uuid.UUID{p1.ID, p2.ID} {
		got := f.reloadPoll(t, id)
		require.Nil(t, got.TotalScore, "SUM after deleting everything")
		requireInt(t, 0, got.VotesCount, "COUNT after deleting everything")
	}
}

// callerOwnedFixture runs repos on the root database so tests can open and finish their
// own transactions.
func callerOwnedFixture(t *testing.T) (*gorm.DB, *repos.Set, *recordingNotifier) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	reg, err := aggregates.NewRegistry(polls.Aggregates()...)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	engine, err := aggregates.NewEngine(aggregates.BaseDeps{DB: db, Log: log}, reg, aggregates.WithNotifier(notifier))
	require.NoError(t, err)
	set, err := repos.NewSet(db, log, engine.Interceptor())
	require.NoError(t, err)
	return db, set, notifier
}

func TestCallerTransactionPublishesOnlyOnCommit(t *testing.T) {
	db, set, notifier := callerOwnedFixture(t)
	ctx := context.Background()

	poll := &polls.Poll{Question: "caller tx"}
	require.NoError(t, set.Polls.Save(dbctx.Context{Ctx: ctx}, poll))
	t.Cleanup(func() {
		db.Where("poll_id = ?", poll.ID).Delete(&polls.Item{})
		db.Where("id = ?", poll.ID).Delete(&polls.Poll{})
	})
	newItem := func(score int64) *polls.Item {
		it := &polls.Item{Label: "x", Score: score}
		it.SetPoll(poll)
		return it
	}

	// A bare transaction gives the engine no way to see the outcome, so nothing is sent.
	raw := db.WithContext(ctx).Begin()
	require.NoError(t, raw.Error)
	require.NoError(t, set.PollItems.Save(dbctx.Context{Ctx: ctx, Tx: raw}, newItem(3)))
	require.NoError(t, raw.Rollback().Error)
	require.Zero(t, notifier.count(), "rolled back bare transaction")
	require.Nil(t, testutil.Reload[polls.Poll](t, ctx, db, poll.ID).TotalScore)

	dbc, err := dbctx.Begin(dbctx.Context{Ctx: ctx}, db)
	require.NoError(t, err)
	require.NoError(t, set.PollItems.Save(dbc, newItem(5)))
	require.NoError(t, dbctx.Rollback(dbc))
	require.Zero(t, notifier.count(), "rolled back managed transaction")

	dbc, err = dbctx.Begin(dbctx.Context{Ctx: ctx}, db)
	require.NoError(t, err)
	require.NoError(t, set.PollItems.Save(dbc, newItem(7)))
	require.Zero(t, notifier.count(), "nothing published before commit")
	require.NoError(t, dbctx.Commit(dbc))
	require.Equal(t, 3, notifier.count(), "one event per changed aggregate")
	requireInt(t, 7, testutil.Reload[polls.Poll](t, ctx, db, poll.ID).TotalScore, "committed total")
}

func TestChangesNameTheirTrigger(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t)

	ctx := ctxutil.WithRequest(f.ctx, ctxutil.Request{RequestID: "req-42"})
	it := &polls.Item{Label: "a", Score: 3}
	it.SetPoll(poll)
	require.NoError(t, f.repos.PollItems.Save(dbctx.Context{Ctx: ctx}, it))

	_, err := f.repos.PollItems.UpdateWhere(f.dbc, repos.Where("poll_id", repos.OpEq, poll.ID), map[string]any{"score": 9})
	require.NoError(t, err)

	_, err = f.engine.Update(f.dbc, polls.AggregateTotalScore, poll.ID)
	require.NoError(t, err)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	var triggers []string
	for _, c := range f.notifier.changes {
		if c.Definition != polls.AggregateTotalScore {
			continue
		}
		triggers = append(triggers, c.Trigger)
		if c.Trigger == "row:poll_item:insert" {
			require.Equal(t, "req-42", c.RequestID)
		}
	}
	require.Equal(t, []string{"row:poll_item:insert", "bulk:poll_item:update"}, triggers, "the direct update found nothing to change")
}
