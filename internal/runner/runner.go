// Package runner drives one scheduling pass over every configured profile.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/bed-scheduler/internal/auth"
	"github.com/sweeney/bed-scheduler/internal/device"
	"github.com/sweeney/bed-scheduler/internal/logic"
	"github.com/sweeney/bed-scheduler/internal/metrics"
	"github.com/sweeney/bed-scheduler/internal/mqtt"
	"github.com/sweeney/bed-scheduler/internal/profile"
)

// DefaultWorkers is the number of profiles processed concurrently.
const DefaultWorkers = 4

// ProfileSource lists profiles and persists refreshed credentials.
type ProfileSource interface {
	ListProfiles(ctx context.Context) ([]profile.Profile, error)
	SaveCredential(ctx context.Context, ownerID string, cred profile.Credential) error
}

// SideResult is the decision taken for one side of a profile's bed.
type SideResult struct {
	Role     device.Role
	Side     device.Side
	Stage    logic.Stage
	Command  logic.Command
	Reason   string
	Status   logic.HeatingStatus
	Timezone string
}

// ProfileResult is the outcome of one profile in one run.
type ProfileResult struct {
	Owner  string
	Sides  []SideResult
	Update device.Update
	Wrote  bool
	Err    error
}

// Failed reports whether the profile could not be processed.
func (r ProfileResult) Failed() bool { return r.Err != nil }

// Report summarises a run. Results are in profile list order.
type Report struct {
	RunID    string
	Now      time.Time
	DryRun   bool
	Duration time.Duration
	Results  []ProfileResult
}

// Failures returns the number of failed profiles.
func (r Report) Failures() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// Writes returns the number of device writes issued.
func (r Report) Writes() int {
	n := 0
	for _, res := range r.Results {
		if res.Wrote {
			n++
		}
	}
	return n
}

// Options configures a Runner. Store, Resolver and Orchestrator are required.
type Options struct {
	Store        ProfileSource
	Refresher    auth.Refresher
	Resolver     *device.Resolver
	Orchestrator *device.Orchestrator
	Publisher    mqtt.Publisher
	Metrics      *metrics.Collector
	Logger       *zap.Logger
	Workers      int
}

// Runner processes every profile once per call to Run. It does not guard
// against overlapping runs; callers serialise them.
type Runner struct {
	store        ProfileSource
	refresher    auth.Refresher
	resolver     *device.Resolver
	orchestrator *device.Orchestrator
	publisher    mqtt.Publisher
	metrics      *metrics.Collector
	logger       *zap.Logger
	workers      int

	now   func() time.Time
	newID func() string
}

// New creates a Runner.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{
		store:        opts.Store,
		refresher:    opts.Refresher,
		resolver:     opts.Resolver,
		orchestrator: opts.Orchestrator,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		logger:       logger,
		workers:      workers,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Run processes all profiles. A non-nil override replaces the wall clock
// and makes the run a dry run: credentials are not refreshed, live status is
// not fetched and no device write is issued.
//
// The returned error is non-nil only if the profile list could not be read.
// Per-profile failures are reported in the Report.
func (r *Runner) Run(ctx context.Context, override *time.Time) (Report, error) {
	start := r.now()
	report := Report{RunID: r.newID(), Now: start}
	if override != nil {
		report.Now = *override
		report.DryRun = true
	}
	logger := r.logger.With(zap.String("run_id", report.RunID), zap.Bool("dry_run", report.DryRun))

	profiles, err := r.store.ListProfiles(ctx)
	if err != nil {
		report.Duration = r.now().Sub(start)
		r.metrics.RunFinished(report.Duration, true)
		logger.Error("run aborted", zap.Error(err))
		return report, fmt.Errorf("run %s: %w", report.RunID, err)
	}

	results := make([]ProfileResult, len(profiles))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, p := range profiles {
		g.Go(func() error {
			results[i] = r.runProfile(ctx, logger, report, start, p)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	report.Duration = r.now().Sub(start)
	r.metrics.RunFinished(report.Duration, false)
	logger.Info("run finished",
		zap.Int("profiles", len(results)),
		zap.Int("writes", report.Writes()),
		zap.Int("failures", report.Failures()),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

type roleSchedule struct {
	role  device.Role
	sched profile.Schedule
}

// runProfile never returns an error; failures land in the result.
func (r *Runner) runProfile(ctx context.Context, logger *zap.Logger, report Report, wall time.Time, p profile.Profile) (res ProfileResult) {
	logger = logger.With(zap.String("owner", p.OwnerID))
	res = ProfileResult{Owner: p.OwnerID}
	defer func() {
		if res.Err != nil {
			logger.Error("profile failed", zap.Error(res.Err))
		}
		r.metrics.ProfileProcessed(outcome(res.Err))
		r.publish(logger, report, res)
	}()

	if err := p.Validate(); err != nil {
		res.Err = err
		return res
	}

	cred := p.Credential
	if !report.DryRun {
		fresh, refreshed, err := auth.Ensure(ctx, r.refresher, cred, wall)
		if err != nil {
			r.metrics.Refresh(false)
			res.Err = fmt.Errorf("refresh credential: %w", err)
			return res
		}
		if refreshed {
			r.metrics.Refresh(true)
			logger.Info("credential refreshed", zap.Time("expires_at", fresh.ExpiresAt))
			if err := r.store.SaveCredential(ctx, p.OwnerID, fresh); err != nil {
				res.Err = fmt.Errorf("save credential: %w", err)
				return res
			}
		}
		cred = fresh
	}

	statuses := map[device.Side]logic.HeatingStatus{
		device.SideLeft:  logic.DefaultStatus,
		device.SideRight: logic.DefaultStatus,
	}
	if !report.DryRun {
		statuses = r.resolver.ResolveAll(ctx, cred)
	}

	sides := []roleSchedule{{role: device.RolePrimary, sched: p.Schedule}}
	if p.HasPartner() {
		sides = append(sides, roleSchedule{role: device.RolePartner, sched: *p.Partner})
	}

	commands := make(map[device.Role]logic.Command, len(sides))
	for _, s := range sides {
		side, err := r.decide(report.Now, s, statuses[s.role.Side()])
		if err != nil {
			res.Err = fmt.Errorf("%s schedule: %w", s.role, err)
			return res
		}
		logger.Info("side decision",
			zap.String("role", string(side.Role)),
			zap.String("side", string(side.Side)),
			zap.String("stage", string(side.Stage)),
			zap.Stringer("command", side.Command),
			zap.String("reason", side.Reason),
		)
		r.metrics.Decision(string(side.Role), string(side.Stage), side.Command.Kind.String())
		res.Sides = append(res.Sides, side)
		commands[s.role] = side.Command
	}

	if report.DryRun {
		res.Update = device.BuildUpdate(commands[device.RolePrimary], commands[device.RolePartner])
		logger.Info("dry run, device write suppressed",
			zap.Bool("dry_run", true),
			zap.Stringer("right", commands[device.RolePrimary]),
			zap.Stringer("left", commands[device.RolePartner]),
		)
		r.metrics.Write(metrics.WriteDryRun)
		return res
	}

	u, err := r.orchestrator.Apply(ctx, cred, commands)
	res.Update = u
	switch {
	case err != nil:
		r.metrics.Write(metrics.WriteFailed)
		res.Err = fmt.Errorf("set sides: %w", err)
	case u.Empty():
		r.metrics.Write(metrics.WriteSkipped)
	default:
		r.metrics.Write(metrics.WriteOK)
		res.Wrote = true
	}
	return res
}

func (r *Runner) decide(ref time.Time, s roleSchedule, status logic.HeatingStatus) (SideResult, error) {
	loc, err := s.sched.Location()
	if err != nil {
		return SideResult{}, err
	}
	now := ref.In(loc)
	_, d, err := logic.Evaluate(s.sched.BedTime, s.sched.WakeTime, s.sched.Levels(), status, now)
	if err != nil {
		return SideResult{}, err
	}
	return SideResult{
		Role:     s.role,
		Side:     s.role.Side(),
		Stage:    d.Stage,
		Command:  d.Command,
		Reason:   d.Reason,
		Status:   status,
		Timezone: loc.String(),
	}, nil
}

func (r *Runner) publish(logger *zap.Logger, report Report, res ProfileResult) {
	if r.publisher == nil {
		return
	}
	event := mqtt.TickEvent{
		Timestamp: report.Now,
		RunID:     report.RunID,
		Owner:     res.Owner,
		DryRun:    report.DryRun,
		Wrote:     res.Wrote,
	}
	for _, s := range res.Sides {
		event.Sides = append(event.Sides, mqtt.SideEvent{
			Role:    string(s.Role),
			Side:    string(s.Side),
			Stage:   string(s.Stage),
			Command: s.Command.String(),
			Reason:  s.Reason,
			Heating: s.Status.IsHeating,
			Level:   s.Status.Level,
		})
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	if err := r.publisher.Publish(event); err != nil {
		logger.Warn("publish tick event failed", zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.ProfileOK
	case IsValidation(err):
		return metrics.ProfileInvalid
	default:
		return metrics.ProfileFailed
	}
}

// IsValidation reports whether a profile failed on its configuration rather
// than on a collaborator.
func IsValidation(err error) bool {
	var verr *logic.ValidationError
	return errors.As(err, &verr)
}
