package levels

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/featureflags"
	"github.com/hrtlevels/hrtlevels/internal/metrics"
	"github.com/hrtlevels/hrtlevels/internal/pk"
	"github.com/hrtlevels/hrtlevels/internal/resilience"
	"github.com/hrtlevels/hrtlevels/internal/telemetry"
)

const tracerName = "github.com/hrtlevels/hrtlevels/internal/levels"

// Window and snapshot defaults.
const (
	DefaultStepMinutes   = 60
	MaxStepMinutes       = 7 * 24 * 60
	DefaultZoom          = 2.0
	MaxLookAheadHours    = 24 * 365
	SnapshotHorizonHours = 24.0
	SnapshotStepMinutes  = 15
	MaxSimulationDoses   = dosing.MaxImportDoses
)

// ErrSnapshotsDisabled is returned by RefreshSnapshot while the
// level_snapshots_enabled flag is off.
var ErrSnapshotsDisabled = errors.New("level snapshots are disabled")

// DoseSource lists a user's stored doses.
type DoseSource interface {
	ListAll(ctx context.Context, userID string) ([]*dosing.Dose, error)
}

// ProfileSource returns the simulation parameters of a user.
type ProfileSource interface {
	SimulationProfile(ctx context.Context, userID string) (pk.Profile, error)
}

// Flags gates routes and bounds simulation size.
type Flags interface {
	RouteEnabled(ctx context.Context, r pk.Route) bool
	MaxSimulationSamples(ctx context.Context) int
	SnapshotsEnabled(ctx context.Context) bool
}

// ServiceConfig holds configuration for the levels service.
type ServiceConfig struct {
	Doses     DoseSource
	Profiles  ProfileSource
	Snapshots SnapshotRepository
	Flags     Flags
	// Executor guards snapshot writes. Nil writes directly.
	Executor *resilience.Executor
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service computes concentration curves and level snapshots.
type Service struct {
	doses     DoseSource
	profiles  ProfileSource
	snapshots SnapshotRepository
	flags     Flags
	executor  *resilience.Executor
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService creates a new levels service.
func NewService(cfg ServiceConfig) *Service {
	flags := cfg.Flags
	if flags == nil {
		flags = defaultFlags{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		doses:     cfg.Doses,
		profiles:  cfg.Profiles,
		snapshots: cfg.Snapshots,
		flags:     flags,
		executor:  cfg.Executor,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		tracer:    telemetry.Tracer(tracerName),
		now:       now,
	}
}

type defaultFlags struct{}

func (defaultFlags) RouteEnabled(_ context.Context, r pk.Route) bool { return r != pk.Gel }
func (defaultFlags) MaxSimulationSamples(context.Context) int      { return featureflags.DefaultMaxSimulationSamples }
func (defaultFlags) SnapshotsEnabled(context.Context) bool         { return true }

// Simulate runs a stateless simulation of the doses in req.
func (s *Service) Simulate(ctx context.Context, req *models.SimulationRequest) (*models.LevelSeries, error) {
	anchor := s.now().UTC()
	if req.Now != nil {
		anchor = req.Now.Time().UTC()
	}

	profile := pk.Profile{WeightKG: req.WeightKG}
	if err := profile.Validate(); err != nil {
		return nil, validationError(err)
	}
	if len(req.Doses) > MaxSimulationDoses {
		return nil, &dosing.ValidationError{Errors: []models.FieldError{{
			Field:   "doses",
			Message: fmt.Sprintf("must contain at most %d doses", MaxSimulationDoses),
			Code:    dosing.CodeInvalid,
		}}}
	}

	events, at, err := s.statelessEvents(ctx, req.Doses, anchor)
	if err != nil {
		return nil, err
	}

	w := windowRequest{SampleHours: req.SampleHours, StepMinutes: req.StepMinutes, LookAheadHours: req.LookAheadHours}
	if req.From != nil {
		from := req.From.Time()
		w.From = &from
	}
	if req.To != nil {
		to := req.To.Time()
		w.To = &to
	}

	p, err := s.plan(ctx, events, at, anchor, w)
	if err != nil {
		return nil, err
	}

	res, err := s.run(ctx, metrics.SourceStateless, p.events, profile, p.samples)
	if err != nil {
		return nil, err
	}
	return s.series(p, res, profile, anchor), nil
}

// statelessEvents validates request doses against anchor and returns them
// with their instants. Every invalid dose is reported; the error is
// unsupported only if every failure is.
func (s *Service) statelessEvents(ctx context.Context, inputs []models.DoseInput, anchor time.Time) ([]pk.DoseEvent, []time.Time, error) {
	var (
		events      = make([]pk.DoseEvent, 0, len(inputs))
		at          = make([]time.Time, 0, len(inputs))
		fieldErrs   []models.FieldError
		unsupported = true
	)
	for i := range inputs {
		prefix := fmt.Sprintf("doses[%d].", i)
		ev, err := dosing.EventFromInput(&inputs[i], anchor, prefix)
		if err != nil {
			var validationErr *dosing.ValidationError
			if !errors.As(err, &validationErr) {
				return nil, nil, err
			}
			fieldErrs = append(fieldErrs, validationErr.Errors...)
			unsupported = unsupported && validationErr.Unsupported
			continue
		}
		if !s.flags.RouteEnabled(ctx, ev.Route()) {
			fieldErrs = append(fieldErrs, models.FieldError{
				Field:   prefix + "route",
				Message: fmt.Sprintf("the %s route is currently disabled", ev.Route()),
				Code:    dosing.CodeRouteDisabled,
			})
			continue
		}
		events = append(events, ev)
		at = append(at, inputs[i].AdministeredAt.Time())
	}
	if len(fieldErrs) > 0 {
		return nil, nil, &dosing.ValidationError{Errors: fieldErrs, Unsupported: unsupported}
	}
	return events, at, nil
}

// UserLevels simulates a user's stored doses over the queried window.
func (s *Service) UserLevels(ctx context.Context, userID string, q Query) (*models.LevelSeries, error) {
	anchor := s.now().UTC()

	profile, err := s.profiles.SimulationProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	events, at, err := s.userEvents(ctx, userID, anchor)
	if err != nil {
		return nil, err
	}

	p, err := s.plan(ctx, events, at, anchor, windowRequest{From: q.From, To: q.To, StepMinutes: q.StepMinutes})
	if err != nil {
		return nil, err
	}

	res, err := s.run(ctx, metrics.SourceUser, p.events, profile, p.samples)
	if err != nil {
		return nil, err
	}
	series := s.series(p, res, profile, anchor)

	zoom := q.Zoom
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	if len(p.samples) > 0 {
		last := p.samples[len(p.samples)-1]
		fromH, toH := pk.DisplayWindow(0, last, p.nowH, zoom)
		series.Display = &models.TimeRange{
			From: models.Timestamp(TimeAt(p.ref, fromH)),
			To:   models.Timestamp(TimeAt(p.ref, toH)),
		}
	}
	return series, nil
}

func (s *Service) userEvents(ctx context.Context, userID string, anchor time.Time) ([]pk.DoseEvent, []time.Time, error) {
	doses, err := s.doses.ListAll(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	events := make([]pk.DoseEvent, 0, len(doses))
	at := make([]time.Time, 0, len(doses))
	for _, d := range doses {
		ev, err := d.Event(anchor)
		if err != nil {
			return nil, nil, fmt.Errorf("stored dose %s: %w", d.ID, err)
		}
		events = append(events, ev)
		at = append(at, d.AdministeredAt)
	}
	return events, at, nil
}

// ComputeSnapshot computes the level of a user at now and the extremes over
// the following SnapshotHorizonHours.
func (s *Service) ComputeSnapshot(ctx context.Context, userID string, now time.Time) (*Snapshot, error) {
	now = now.UTC()

	profile, err := s.profiles.SimulationProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	events, _, err := s.userEvents(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	samples, err := pk.Grid(0, SnapshotHorizonHours, SnapshotStepMinutes/60.0)
	if err != nil {
		return nil, err
	}
	res, err := s.run(ctx, metrics.SourceSnapshot, events, profile, samples)
	if err != nil {
		return nil, err
	}

	peakH, peak, _ := res.Peak()
	troughH, trough, _ := res.Trough()
	return &Snapshot{
		ID:           newSnapshotID(),
		UserID:       userID,
		ComputedAt:   now,
		CurrentPgML:  res.ConcPGmL[0],
		PeakPgML:     peak,
		PeakAt:       TimeAt(now, peakH),
		TroughPgML:   trough,
		TroughAt:     TimeAt(now, troughH),
		HorizonHours: SnapshotHorizonHours,
		DoseCount:    len(events),
	}, nil
}

// RefreshSnapshot recomputes and stores a user's snapshot.
func (s *Service) RefreshSnapshot(ctx context.Context, userID string) (*Snapshot, error) {
	if !s.flags.SnapshotsEnabled(ctx) {
		return nil, ErrSnapshotsDisabled
	}

	snap, err := s.ComputeSnapshot(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}

	save := func(ctx context.Context) error {
		return s.snapshots.Upsert(ctx, snap)
	}
	if s.executor != nil {
		err = s.executor.Do(ctx, save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}

	s.logger.Debug().
		Str("user_id", userID).
		Float64("current_pg_ml", snap.CurrentPgML).
		Int("dose_count", snap.DoseCount).
		Msg("level snapshot refreshed")
	return snap, nil
}

// GetSnapshot retrieves the stored snapshot of a user.
func (s *Service) GetSnapshot(ctx context.Context, userID string) (*models.LevelSnapshot, error) {
	snap, err := s.snapshots.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return snap.ToAPI(), nil
}

// DeleteSnapshot removes the stored snapshot of a user.
func (s *Service) DeleteSnapshot(ctx context.Context, userID string) error {
	return s.snapshots.Delete(ctx, userID)
}

// windowRequest selects sample times. SampleHours wins over a window.
type windowRequest struct {
	From           *time.Time
	To             *time.Time
	StepMinutes    *int
	LookAheadHours *float64
	SampleHours    []float64
}

// plan is a simulation ready to run: events and samples relative to ref.
type plan struct {
	ref     time.Time
	events  []pk.DoseEvent
	samples []float64
	// nowH is the anchor in hours from ref.
	nowH float64
}

// plan picks the reference and sample times for events administered at
// the given instants, and shifts the events onto the reference. The
// reference is the requested start when one is given, otherwise the
// earliest dose or anchor.
func (s *Service) plan(ctx context.Context, events []pk.DoseEvent, at []time.Time, anchor time.Time, w windowRequest) (*plan, error) {
	limit := s.flags.MaxSimulationSamples(ctx)

	if len(w.SampleHours) > 0 {
		if len(w.SampleHours) > limit {
			return nil, limitError("sampleHours", len(w.SampleHours), limit)
		}
		ref := anchor
		switch {
		case w.From != nil:
			ref = *w.From
		case len(at) > 0:
			ref = earliest(at[0], at)
		}
		return shifted(events, at, anchor, ref, w.SampleHours), nil
	}

	opts := pk.DefaultWindowOptions()
	if w.LookAheadHours != nil {
		if *w.LookAheadHours < 0 || *w.LookAheadHours > MaxLookAheadHours {
			return nil, &dosing.ValidationError{Errors: []models.FieldError{{
				Field:   "lookAheadHours",
				Message: fmt.Sprintf("must be between 0 and %d", MaxLookAheadHours),
				Code:    dosing.CodeInvalid,
			}}}
		}
		opts.LookAheadH = *w.LookAheadHours
	}
	_, endH := pk.DefaultWindow(events, 0, opts)
	ref := earliest(anchor, at)
	if w.From != nil {
		ref = *w.From
	}
	spanH := endH - hoursBetween(anchor, ref)
	if w.To != nil {
		spanH = hoursBetween(ref, *w.To)
	}
	if spanH <= 0 {
		return nil, &dosing.ValidationError{Errors: []models.FieldError{{
			Field:   "to",
			Message: "must be after from",
			Code:    dosing.CodeInvalid,
		}}}
	}

	stepMinutes, err := pickStep(spanH, w.StepMinutes, limit)
	if err != nil {
		return nil, err
	}
	samples, err := pk.Grid(0, spanH, float64(stepMinutes)/60)
	if err != nil {
		return nil, validationError(err)
	}
	return shifted(events, at, anchor, ref, samples), nil
}

// pickStep validates an explicit step against the sample limit, or picks
// the default step widened until the window fits. A limit below two fits
// only a single sample.
func pickStep(spanH float64, explicit *int, limit int) (int, error) {
	if explicit != nil {
		step := *explicit
		if step <= 0 || step > MaxStepMinutes {
			return 0, &dosing.ValidationError{Errors: []models.FieldError{{
				Field:   "stepMinutes",
				Message: fmt.Sprintf("must be between 1 and %d", MaxStepMinutes),
				Code:    dosing.CodeInvalid,
			}}}
		}
		if n := sampleCount(spanH, step); n > limit {
			return 0, limitError("stepMinutes", n, limit)
		}
		return step, nil
	}

	step := DefaultStepMinutes
	n := sampleCount(spanH, step)
	if n <= limit {
		return step, nil
	}
	if limit < 2 {
		return 0, limitError("stepMinutes", n, limit)
	}
	return int(math.Ceil(spanH * 60 / float64(limit-1))), nil
}

func sampleCount(spanH float64, stepMinutes int) int {
	return int(math.Floor(spanH*60/float64(stepMinutes)+1e-9)) + 1
}

func limitError(field string, n, limit int) error {
	return &dosing.ValidationError{Errors: []models.FieldError{{
		Field:   field,
		Message: fmt.Sprintf("requests %d samples, the limit is %d", n, limit),
		Code:    dosing.CodeInvalid,
	}}}
}

// shifted re-times events onto ref from their instants.
func shifted(events []pk.DoseEvent, at []time.Time, anchor, ref time.Time, samples []float64) *plan {
	out := make([]pk.DoseEvent, len(events))
	for i, ev := range events {
		out[i] = ev.At(hoursBetween(ref, at[i]))
	}
	return &plan{
		ref:     ref.UTC(),
		events:  out,
		samples: samples,
		nowH:    hoursBetween(ref, anchor),
	}
}

// earliest returns the earliest of first and at.
func earliest(first time.Time, at []time.Time) time.Time {
	out := first
	for _, t := range at {
		if t.Before(out) {
			out = t
		}
	}
	return out
}

func (s *Service) run(ctx context.Context, source string, events []pk.DoseEvent, profile pk.Profile, samples []float64) (*pk.Result, error) {
	_, span := s.tracer.Start(ctx, "levels.simulate", trace.WithAttributes(
		attribute.String("levels.source", source),
		attribute.Int("levels.doses", len(events)),
		attribute.Int("levels.samples", len(samples)),
	))
	defer span.End()

	start := time.Now()
	res, err := pk.Simulate(events, profile, samples)
	s.metrics.ObserveSimulation(source, len(events), len(samples), time.Since(start), err)
	telemetry.RecordError(span, err)
	if err != nil {
		return nil, validationError(err)
	}
	return res, nil
}

func (s *Service) series(p *plan, res *pk.Result, profile pk.Profile, anchor time.Time) *models.LevelSeries {
	out := &models.LevelSeries{
		Reference:      models.Timestamp(p.ref),
		Unit:           models.ConcentrationUnit,
		Hours:          res.TimeH,
		Concentrations: res.ConcPGmL,
		Window: models.TimeRange{
			From: models.Timestamp(p.ref),
			To:   models.Timestamp(p.ref),
		},
		DoseCount: len(p.events),
	}
	if res.Len() == 0 {
		return out
	}

	out.Window.From = models.Timestamp(TimeAt(p.ref, res.TimeH[0]))
	out.Window.To = models.Timestamp(TimeAt(p.ref, res.TimeH[res.Len()-1]))

	if h, c, ok := res.Peak(); ok {
		out.Peak = &models.LevelPoint{Time: models.Timestamp(TimeAt(p.ref, h)), Hours: h, PgML: c}
	}
	if h, c, ok := res.Trough(); ok {
		out.Trough = &models.LevelPoint{Time: models.Timestamp(TimeAt(p.ref, h)), Hours: h, PgML: c}
	}

	if p.nowH >= res.TimeH[0] && p.nowH <= res.TimeH[res.Len()-1] {
		if cur, err := pk.Simulate(p.events, profile, []float64{p.nowH}); err == nil {
			out.Current = &models.LevelPoint{Time: models.Timestamp(anchor), Hours: p.nowH, PgML: cur.ConcPGmL[0]}
		}
	}
	return out
}

func validationError(err error) error {
	fieldErrs, unsupported := dosing.FieldErrors(err, "")
	return &dosing.ValidationError{Errors: fieldErrs, Unsupported: unsupported}
}

func hoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}

// TimeAt returns the instant h hours after ref. The offset is rounded to
// the microsecond so float error in h cannot move a whole-second sample
// across a second boundary.
func TimeAt(ref time.Time, h float64) time.Time {
	return ref.Add(time.Duration(math.Round(h*float64(time.Hour/time.Microsecond))) * time.Microsecond)
}

func newSnapshotID() string {
	return "snap_" + uuid.New().String()[:22]
}
