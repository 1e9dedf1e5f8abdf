package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/clock/system"
	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/policy/conditions"
	"github.com/JakeFAU/crawl-admission/internal/progress"
	"github.com/JakeFAU/crawl-admission/internal/scanindex"
)

const tracerName = "github.com/JakeFAU/crawl-admission/internal/admission"

// ConditionFilter names the first fetch condition refusing a candidate, or ""
// when all allow. *conditions.Filter satisfies it.
type ConditionFilter interface {
	Rejecting(candidate crawler.CandidateURL, settings crawler.Settings) string
}

// Deps are the collaborators injected into an Engine. Only Store is required.
type Deps struct {
	Store     crawler.EligibilityStore
	Filter    ConditionFilter
	Index     crawler.ScanIndex
	Validator crawler.DomainValidator
	Emitter   progress.Emitter
	Clock     crawler.Clock
	Logger    *zap.Logger
	Tracer    trace.Tracer
}

// Engine is safe for concurrent use. It holds no lock across store calls.
type Engine struct {
	store     crawler.EligibilityStore
	filter    ConditionFilter
	index     crawler.ScanIndex
	validator crawler.DomainValidator
	emitter   progress.Emitter
	clock     crawler.Clock
	logger    *zap.Logger
	tracer    trace.Tracer
	settings  crawler.Settings

	// inflight maps canonical keys whose attempt has passed the local dedup
	// check to a channel closed when that attempt completes.
	inflight sync.Map
}

// New builds an Engine. Missing optional deps get permissive defaults: an
// exact scan index, no fetch conditions, every domain valid, no broadcast.
func New(deps Deps, settings crawler.Settings) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("admission: eligibility store is required")
	}
	e := &Engine{
		store:     deps.Store,
		filter:    deps.Filter,
		index:     deps.Index,
		validator: deps.Validator,
		emitter:   deps.Emitter,
		clock:     deps.Clock,
		logger:    deps.Logger,
		tracer:    deps.Tracer,
		settings:  settings,
	}
	if e.filter == nil {
		f, _ := conditions.New()
		e.filter = f
	}
	if e.index == nil {
		e.index = scanindex.NewExact()
	}
	if e.validator == nil {
		e.validator = allowAll{}
	}
	if e.emitter == nil {
		e.emitter = progress.EmitterFunc(func(progress.Event) {})
	}
	if e.clock == nil {
		e.clock = system.New()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e, nil
}

// Settings returns the read-only crawl context passed to fetch conditions.
func (e *Engine) Settings() crawler.Settings {
	return e.settings
}

// TryAdmit canonicalizes raw (relative to origin when given) and decides
// admission. It never panics or returns an error; every failure is an Outcome.
func (e *Engine) TryAdmit(ctx context.Context, raw string, origin *crawler.QueueItem) crawler.Outcome {
	a := &attempt{raw: raw, origin: origin, state: stateCanonicalize}
	return e.run(ctx, a)
}

// TryAdmitCandidate decides admission for structured input. The parts are
// normalized exactly like a raw URL; a non-nil origin replaces the
// candidate's referrer.
func (e *Engine) TryAdmitCandidate(ctx context.Context, candidate crawler.CandidateURL, origin *crawler.QueueItem) crawler.Outcome {
	if origin != nil {
		candidate.Referrer = origin
	}
	a := &attempt{raw: candidate.Raw, origin: candidate.Referrer, parts: &candidate, state: stateCanonicalize}
	if a.raw == "" {
		a.raw = candidate.Key()
	}
	return e.run(ctx, a)
}

// Go runs TryAdmit on its own goroutine. The channel yields exactly one
// outcome and is then closed.
func (e *Engine) Go(ctx context.Context, raw string, origin *crawler.QueueItem) <-chan crawler.Outcome {
	out := make(chan crawler.Outcome, 1)
	go func() {
		defer close(out)
		out <- e.TryAdmit(ctx, raw, origin)
	}()
	return out
}

// RecordFetch normalizes raw and tells the store a fetch completed at the
// given time, starting the refetch cooldown.
func (e *Engine) RecordFetch(ctx context.Context, raw string, at time.Time) (string, error) {
	key, err := crawler.NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	if at.IsZero() {
		at = e.clock.Now()
	}
	start := e.clock.Now()
	if err := e.store.MarkFetched(ctx, key, at); err != nil {
		return key, fmt.Errorf("record fetch: %w", err)
	}
	c, _ := crawler.Canonicalize(key, nil)
	e.emitter.Emit(progress.Event{
		TS:    e.clock.Now(),
		Stage: progress.StageFetchRecorded,
		Host:  c.Host,
		URL:   key,
		Dur:   nonNegative(e.clock.Now().Sub(start)),
	})
	return key, nil
}

// attempt is the mutable state of one admission call.
type attempt struct {
	raw       string
	origin    *crawler.QueueItem
	candidate crawler.CandidateURL
	state     state
	outcome   crawler.Outcome

	// parts is set for structured input.
	parts *crawler.CandidateURL
	// release is closed when this attempt gives up its in-flight claim.
	release  chan struct{}
	storeDur time.Duration
}

func (a *attempt) finish(o crawler.Outcome) state {
	a.outcome = o
	return stateDone
}

func (e *Engine) run(ctx context.Context, a *attempt) crawler.Outcome {
	ctx, span := e.tracer.Start(ctx, "admission.TryAdmit",
		trace.WithAttributes(attribute.String("admission.raw_url", a.raw)))
	defer span.End()

	for a.state != stateDone {
		a.state = e.step(ctx, a)
	}
	e.complete(a)

	o := a.outcome
	span.SetAttributes(
		attribute.String("admission.outcome", string(o.Kind)),
		attribute.String("admission.reason", string(o.Reason)),
	)
	if o.Kind == crawler.OutcomeError {
		span.SetStatus(codes.Error, string(o.Reason))
	}
	return o
}

func (e *Engine) step(ctx context.Context, a *attempt) state {
	switch a.state {
	case stateCanonicalize:
		var (
			c   crawler.CandidateURL
			err error
		)
		if p := a.parts; p != nil {
			c, err = crawler.CandidateFromParts(p.Protocol, p.Host, p.Port, p.Path, p.Depth, a.origin)
			if p.Raw != "" {
				c.Raw = p.Raw
			}
		} else {
			c, err = crawler.Canonicalize(a.raw, a.origin)
		}
		if err != nil {
			return a.finish(crawler.Failed(c, crawler.ReasonMalformedURL, err))
		}
		a.candidate = c
		return stateFilterCheck

	case stateFilterCheck:
		if name := e.filter.Rejecting(a.candidate, e.settings); name != "" {
			return a.finish(crawler.Denied(a.candidate, crawler.ReasonFetchConditionRejected, conditions.RejectionError(name)))
		}
		return stateLocalDedupCheck

	case stateLocalDedupCheck:
		key := a.candidate.Key()
		if e.index.Contains(key) {
			return a.finish(crawler.Duplicate(a.candidate))
		}
		release := make(chan struct{})
		if held, busy := e.inflight.LoadOrStore(key, release); busy {
			// Wait for the holder's verdict, then check again: a marked key is
			// a duplicate, anything else gets its own store round trip.
			select {
			case <-held.(chan struct{}):
				return stateLocalDedupCheck
			case <-ctx.Done():
				return a.finish(crawler.Failed(a.candidate, crawler.ReasonStoreUnavailable, ctx.Err()))
			}
		}
		a.release = release
		// A concurrent attempt may have marked and released between the
		// two checks above.
		if e.index.Contains(key) {
			return a.finish(crawler.Duplicate(a.candidate))
		}
		return stateEligibilityCheck

	case stateEligibilityCheck:
		if err := ctx.Err(); err != nil {
			return a.finish(crawler.Failed(a.candidate, crawler.ReasonStoreUnavailable, err))
		}
		start := e.clock.Now()
		eligible, err := e.store.IsEligibleForFetch(ctx, a.candidate.Key())
		a.storeDur += nonNegative(e.clock.Now().Sub(start))
		if err != nil {
			return a.finish(crawler.Failed(a.candidate, crawler.ReasonStoreUnavailable,
				fmt.Errorf("%w: %w", crawler.ErrStoreUnavailable, err)))
		}
		if !eligible {
			return a.finish(crawler.Denied(a.candidate, crawler.ReasonNotYetEligible, nil))
		}
		return stateDomainCheck

	case stateDomainCheck:
		if !e.validator.IsValid(a.candidate.Host) {
			return a.finish(crawler.Denied(a.candidate, crawler.ReasonDomainInvalid,
				fmt.Errorf("host %q is not allowed", a.candidate.Host)))
		}
		return stateDurableInsert

	case stateDurableInsert:
		req := crawler.InsertRequest{
			Protocol: a.candidate.Protocol,
			Host:     a.candidate.Host,
			Port:     a.candidate.Port,
			Path:     a.candidate.Path,
			Depth:    a.candidate.Depth,
			Referrer: a.candidate.ReferrerURL(),
		}
		start := e.clock.Now()
		item, err := e.store.Insert(ctx, req)
		a.storeDur += nonNegative(e.clock.Now().Sub(start))
		switch {
		case err == nil:
			item.Referrer = req.Referrer
			return a.finish(crawler.Added(item, a.candidate))
		case errors.Is(err, crawler.ErrConflict):
			return a.finish(crawler.Duplicate(a.candidate))
		default:
			return a.finish(crawler.Failed(a.candidate, crawler.ReasonInsertFailed,
				fmt.Errorf("%w: %w", crawler.ErrInsertFailed, err)))
		}
	}
	return a.finish(crawler.Failed(a.candidate, crawler.ReasonInsertFailed,
		fmt.Errorf("admission reached unknown state %s", a.state)))
}

// complete marks the scan index, releases the in-flight claim, then logs and
// broadcasts the outcome. Marking happens before release so a waiting attempt
// always sees one of the two. Canceled attempts end as errors and are never
// marked.
func (e *Engine) complete(a *attempt) {
	o := a.outcome
	key := ""
	if o.Candidate.Host != "" {
		key = o.Candidate.Key()
	}
	if key != "" && marks(o) {
		e.index.Mark(key)
	}
	if a.release != nil {
		e.inflight.Delete(key)
		close(a.release)
	}

	fields := []zap.Field{
		zap.String("outcome", string(o.Kind)),
		zap.String("url", a.raw),
	}
	if key != "" {
		fields = append(fields, zap.String("key", key))
	}
	if o.Reason != "" {
		fields = append(fields, zap.String("reason", string(o.Reason)))
	}
	if o.Kind == crawler.OutcomeError {
		e.logger.Warn("admission failed", append(fields, zap.Error(o.Err))...)
	} else {
		e.logger.Debug("admission decided", fields...)
	}

	e.emitter.Emit(progress.FromOutcome(o, e.clock.Now(), a.storeDur))
}

// marks reports whether an outcome settles the key for the rest of the run.
// Cooldown denials and errors stay unmarked so a later attempt re-checks the
// store.
func marks(o crawler.Outcome) bool {
	switch o.Kind {
	case crawler.OutcomeAdded, crawler.OutcomeDuplicate:
		return true
	case crawler.OutcomeDenied:
		return o.Reason == crawler.ReasonFetchConditionRejected || o.Reason == crawler.ReasonDomainInvalid
	default:
		return false
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

type allowAll struct{}

func (allowAll) IsValid(host string) bool { return host != "" }
