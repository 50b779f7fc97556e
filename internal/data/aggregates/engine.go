package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/aggsync/internal/data/repos"
	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/ctxutil"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
)

const (
	defaultRefreshBatch       = 500
	defaultRefreshConcurrency = 1
)

// Notifier receives aggregate changes after the owning transaction commits.
type Notifier interface {
	Publish(ctx context.Context, change domainagg.Change) error
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithRefreshRuns records every Refresh in the refresh run table.
func WithRefreshRuns(r repos.RefreshRunRepo) Option { return func(e *Engine) { e.runs = r } }

func WithRefreshBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.refreshBatch = n
		}
	}
}

// WithRefreshConcurrency bounds how many definitions RefreshAll processes at once.
func WithRefreshConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.refreshConcurrency = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// Engine is the entry point for aggregate maintenance: on-demand compute and update,
// the repo interceptor, and whole-table refresh and verification.
type Engine struct {
	deps     BaseDeps
	registry *Registry
	eval     *Evaluator
	updater  *Updater
	notifier Notifier
	runs     repos.RefreshRunRepo
	tracer   trace.Tracer

	refreshBatch       int
	refreshConcurrency int
}

func NewEngine(deps BaseDeps, registry *Registry, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, "aggregates.NewEngine", "registry is required", nil)
	}
	deps = deps.withDefaults()
	e := &Engine{
		deps:               deps,
		registry:           registry,
		eval:               NewEvaluator(deps.DB),
		tracer:             otel.Tracer("aggsync/aggregates"),
		refreshBatch:       defaultRefreshBatch,
		refreshConcurrency: defaultRefreshConcurrency,
	}
	e.updater = NewUpdater(e.eval, deps.CASGuard)
	for _, opt := range opts {
		opt(e)
	}
	e.deps.Log = deps.Log.With("component", "aggregates")
	return e, nil
}

var _ domainagg.Aggregate = (*Engine)(nil)

func (e *Engine) Contract() domainagg.Contract { return domainagg.ColumnsContract }

func (e *Engine) Registry() *Registry { return e.registry }

// Interceptor returns the repos.Observer that keeps this engine's aggregates current.
func (e *Engine) Interceptor() *Interceptor { return &Interceptor{engine: e} }

// Compute evaluates the named aggregate for parent, which is either a key or a pointer
// to the parent model. Nothing is written.
func (e *Engine) Compute(dbc dbctx.Context, name string, parent any) (domainagg.Value, error) {
	const op = "aggregates.compute"
	def, err := e.registry.Lookup(name)
	if err != nil {
		return domainagg.Null(), err
	}
	ref, err := e.resolveParent(dbc, def, parent)
	if err != nil {
		return domainagg.Null(), err
	}
	v, err := e.eval.Compute(dbc, def, ref.id)
	if err != nil {
		return domainagg.Null(), domainagg.WithDefinition(MapError(op, err), def.Name)
	}
	return v, nil
}

// Stored reads the cached column of parent. found is false when no such parent row exists.
func (e *Engine) Stored(dbc dbctx.Context, name string, parent any) (v domainagg.Value, found bool, err error) {
	const op = "aggregates.stored"
	def, err := e.registry.Lookup(name)
	if err != nil {
		return domainagg.Null(), false, err
	}
	ref, err := e.resolveParent(dbc, def, parent)
	if err != nil {
		return domainagg.Null(), false, err
	}
	v, found, err = e.eval.Stored(dbc, def, repos.Normalize(ref.id))
	if err != nil {
		return domainagg.Null(), false, domainagg.WithDefinition(MapError(op, err), def.Name)
	}
	return v, found, nil
}

// Update recomputes and stores the named aggregate for parent. When parent is a model
// pointer its field for the target column is refreshed too.
func (e *Engine) Update(dbc dbctx.Context, name string, parent any) (Result, error) {
	const op = "aggregates.update"
	def, err := e.registry.Lookup(name)
	if err != nil {
		return Result{Definition: name}, err
	}
	ref, err := e.resolveParent(dbc, def, parent)
	if err != nil {
		return Result{Definition: def.Name}, err
	}
	dbc.Ctx = ctxutil.EnsureTrigger(dbc.Context(), ctxutil.Trigger{Source: ctxutil.SourceDirect, Table: def.ParentTable})
	var res Result
	err = executeWrite(dbc, e.deps, op, func(dbc dbctx.Context) error {
		var rerr error
		res, rerr = e.recompute(dbc, def, ref.id)
		return rerr
	})
	if err != nil {
		return res, domainagg.WithDefinition(err, def.Name)
	}
	if ref.target.IsValid() && res.Resolved {
		if err := assignValue(ref.target, res.New); err != nil {
			return res, domainagg.WithDefinition(validationFailure(op, err), def.Name)
		}
	}
	return res, nil
}

// recompute is the single path through which every aggregate write happens.
func (e *Engine) recompute(dbc dbctx.Context, def domainagg.Definition, parentID any) (Result, error) {
	start := time.Now()
	trigger, _ := ctxutil.TriggerFrom(dbc.Context())
	attrs := []attribute.KeyValue{
		attribute.String("aggregate.definition", def.Name),
		attribute.String("aggregate.parent_id", fmt.Sprint(repos.Normalize(parentID))),
		attribute.String("aggregate.trigger", trigger.String()),
	}
	if reqID := ctxutil.RequestID(dbc.Context()); reqID != "" {
		attrs = append(attrs, attribute.String("request.id", reqID))
	}
	ctx, span := e.tracer.Start(dbc.Context(), "aggregates.recompute", trace.WithAttributes(attrs...))
	defer span.End()
	dbc.Ctx = ctx

	res, err := e.updater.Update(dbc, def, parentID)
	outcome := OutcomeUnchanged
	switch {
	case err != nil:
		outcome = OutcomeFailed
	case !res.Resolved:
		outcome = OutcomeUnresolved
	case res.Changed:
		outcome = OutcomeChanged
	}
	e.deps.Hooks.ObserveRecompute(def.Name, outcome, time.Since(start))
	span.SetAttributes(attribute.String("aggregate.outcome", outcome))

	if err != nil {
		mapped := domainagg.WithDefinition(MapError("aggregates.recompute", err), def.Name)
		span.RecordError(mapped)
		span.SetStatus(codes.Error, mapped.Error())
		return res, mapped
	}
	if !res.Resolved {
		e.deps.Log.Debug("parent not found, skipping", "definition", def.Name, "parent_id", res.ParentID, "trigger", trigger.String())
		return res, nil
	}
	if res.Changed {
		e.publishAfterCommit(dbc, def, res, trigger)
	}
	return res, nil
}

func (e *Engine) publishAfterCommit(dbc dbctx.Context, def domainagg.Definition, res Result, trigger ctxutil.Trigger) {
	if e.notifier == nil {
		return
	}
	change := domainagg.Change{
		Definition:   def.Name,
		ParentTable:  def.ParentTable,
		TargetColumn: def.TargetColumn,
		ParentID:     fmt.Sprint(res.ParentID),
		Old:          res.Old,
		New:          res.New,
		Trigger:      trigger.String(),
		RequestID:    ctxutil.RequestID(dbc.Context()),
		At:           time.Now().UTC(),
	}
	queued := dbc.AfterCommit(func(ctx context.Context) {
		if err := e.notifier.Publish(ctx, change); err != nil {
			e.deps.Log.Warn("aggregate change publish failed", "definition", change.Definition, "parent_id", change.ParentID, "error", err)
		}
	})
	if !queued {
		e.deps.Log.Warn("aggregate change not published: transaction has no commit queue, open it with dbctx.Begin",
			"definition", change.Definition, "parent_id", change.ParentID)
	}
}

type parentRef struct {
	id     any
	target reflect.Value
}

// resolveParent accepts a raw key or a pointer to a model of the definition's parent table.
func (e *Engine) resolveParent(dbc dbctx.Context, def domainagg.Definition, parent any) (parentRef, error) {
	const op = "aggregates.resolveParent"
	if parent == nil {
		return parentRef{}, domainagg.NewError(domainagg.CodeValidation, op, "parent is required", nil)
	}
	rv := reflect.ValueOf(parent)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		if repos.Normalize(parent) == nil {
			return parentRef{}, domainagg.NewError(domainagg.CodeValidation, op, "parent key is nil", nil)
		}
		return parentRef{id: parent}, nil
	}

	db := dbc.DB(e.deps.DB)
	if db == nil {
		return parentRef{}, dbctx.ErrNoDB
	}
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(parent); err != nil {
		return parentRef{}, domainagg.NewError(domainagg.CodeValidation, op, "parent is not a model", err)
	}
	sch := stmt.Schema
	if sch.Table != def.ParentTable {
		return parentRef{}, domainagg.NewError(domainagg.CodeValidation, op,
			fmt.Sprintf("%s is a %s, aggregate %s lives on %s", sch.Name, sch.Table, def.Name, def.ParentTable), nil)
	}
	keyField := sch.LookUpField(def.ParentKey)
	if keyField == nil {
		return parentRef{}, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("%s has no column %s", sch.Name, def.ParentKey), nil)
	}
	elem := rv.Elem()
	id, zero := keyField.ValueOf(dbc.Context(), elem)
	if zero {
		return parentRef{}, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("%s has no %s yet", sch.Name, def.ParentKey), nil)
	}
	ref := parentRef{id: id}
	if f := sch.LookUpField(def.TargetColumn); f != nil {
		ref.target = f.ReflectValueOf(dbc.Context(), elem)
	}
	return ref, nil
}

// RefreshReport summarizes a whole-table recomputation.
type RefreshReport struct {
	Definition string    `json:"definition"`
	RunID      uuid.UUID `json:"run_id,omitempty"`
	Parents    int64     `json:"parents"`
	Changed    int64     `json:"changed"`
	Batches    int       `json:"batches"`
	DurationMS int64     `json:"duration_ms"`
}

// Refresh recomputes the named aggregate for every parent row in batches, one
// transaction per batch. Unlike incremental maintenance it also materializes parents
// that never had a child.
func (e *Engine) Refresh(ctx context.Context, name string) (RefreshReport, error) {
	const op = "aggregates.refresh"
	def, err := e.registry.Lookup(name)
	if err != nil {
		return RefreshReport{Definition: name}, err
	}
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("aggregate.definition", def.Name)))
	defer span.End()

	dbc := dbctx.Context{Ctx: ctxutil.WithTrigger(ctx, ctxutil.Trigger{Source: ctxutil.SourceRefresh})}
	report := RefreshReport{Definition: def.Name}
	log := e.deps.Log.With("definition", def.Name)

	var run *domainagg.RefreshRun
	if e.runs != nil {
		if run, err = e.runs.Start(dbc, def.Name); err != nil {
			log.Warn("refresh run bookkeeping failed (continuing)", "error", err)
			run = nil
		} else {
			report.RunID = run.ID
		}
	}

	runErr := e.refreshParents(dbc, def, &report)
	report.DurationMS = time.Since(start).Milliseconds()

	if run != nil {
		details, _ := json.Marshal(map[string]any{
			"batches":     report.Batches,
			"batch_size":  e.refreshBatch,
			"duration_ms": report.DurationMS,
		})
		if err := e.runs.Finish(dbc, run, report.Parents, report.Changed, datatypes.JSON(details), runErr); err != nil {
			log.Warn("refresh run finish failed", "run_id", run.ID, "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int64("aggregate.parents", report.Parents),
		attribute.Int64("aggregate.changed", report.Changed),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.Error("refresh failed", "error", runErr, "parents", report.Parents)
		return report, domainagg.WithDefinition(runErr, def.Name)
	}
	log.Info("refresh finished", "parents", report.Parents, "changed", report.Changed, "duration_ms", report.DurationMS)
	return report, nil
}

func (e *Engine) refreshParents(dbc dbctx.Context, def domainagg.Definition, report *RefreshReport) error {
	const op = "aggregates.refresh"
	keys, err := e.eval.ParentKeys(dbc, def)
	if err != nil {
		return MapError(op, err)
	}
	for lo := 0; lo < len(keys); lo += e.refreshBatch {
		hi := lo + e.refreshBatch
		if hi > len(keys) {
			hi = len(keys)
		}
		var parents, changed int64
		err := executeWrite(dbc, e.deps, op, func(dbc dbctx.Context) error {
			parents, changed = 0, 0
			for _, id := range keys[lo:hi] {
				res, err := e.recompute(dbc, def, id)
				if err != nil {
					return err
				}
				if res.Resolved {
					parents++
				}
				if res.Changed {
					changed++
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		report.Parents += parents
		report.Changed += changed
		report.Batches++
	}
	return nil
}

// RefreshAll refreshes the named definitions, or all of them when names is empty.
func (e *Engine) RefreshAll(ctx context.Context, names ...string) ([]RefreshReport, error) {
	if len(names) == 0 {
		names = e.registry.Names()
	}
	for _, n := range names {
		if _, err := e.registry.Lookup(n); err != nil {
			return nil, err
		}
	}
	reports := make([]RefreshReport, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.refreshConcurrency)
	for i, n := range names {
		i, n := i, n
		g.Go(func() error {
			r, err := e.Refresh(gctx, n)
			reports[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

// Drift is a parent whose stored aggregate disagrees with its children.
type Drift struct {
	ParentID any             `json:"parent_id"`
	Stored   domainagg.Value `json:"stored"`
	Computed domainagg.Value `json:"computed"`
}

type VerifyReport struct {
	Definition string  `json:"definition"`
	Checked    int64   `json:"checked"`
	Drift      []Drift `json:"drift"`
}

func (r VerifyReport) OK() bool { return len(r.Drift) == 0 }

// Verify compares every stored value of the named aggregate with a fresh computation.
// A NULL on a parent without matching children counts as not yet materialized.
func (e *Engine) Verify(ctx context.Context, name string) (VerifyReport, error) {
	const op = "aggregates.verify"
	def, err := e.registry.Lookup(name)
	if err != nil {
		return VerifyReport{Definition: name}, err
	}
	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("aggregate.definition", def.Name)))
	defer span.End()

	dbc := dbctx.Context{Ctx: ctx}
	report := VerifyReport{Definition: def.Name, Drift: []Drift{}}
	keys, err := e.eval.ParentKeys(dbc, def)
	if err != nil {
		return report, domainagg.WithDefinition(MapError(op, err), def.Name)
	}
	empty := def.EmptyValue()
	for _, id := range keys {
		stored, found, err := e.eval.Stored(dbc, def, id)
		if err != nil {
			return report, domainagg.WithDefinition(MapError(op, err), def.Name)
		}
		if !found {
			continue
		}
		computed, err := e.eval.Compute(dbc, def, id)
		if err != nil {
			return report, domainagg.WithDefinition(MapError(op, err), def.Name)
		}
		report.Checked++
		if sameStored(stored, computed) || (stored.IsNull() && sameStored(computed, empty)) {
			continue
		}
		report.Drift = append(report.Drift, Drift{ParentID: repos.Normalize(id), Stored: stored, Computed: computed})
	}
	span.SetAttributes(attribute.Int("aggregate.drift", len(report.Drift)))
	if len(report.Drift) > 0 {
		e.deps.Log.Warn("aggregate drift detected", "definition", def.Name, "parents", len(report.Drift))
	}
	return report, nil
}

func validationFailure(op string, err error) error {
	return domainagg.NewError(domainagg.CodeValidation, strings.TrimSpace(op), err.Error(), err)
}
