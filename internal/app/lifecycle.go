package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"trivia-live-service/internal/domain"
)

// LifecycleConfig tunes how matches are picked up and paced.
type LifecycleConfig struct {
	// Lead is how far ahead of StartingAt a scheduled match is picked up.
	Lead time.Duration
	// Lobby is the default time between StartingAt and the first question.
	Lobby time.Duration
	// QuestionTimeLimit applies when neither the question nor the match sets one.
	QuestionTimeLimit time.Duration
	// LeaseGrace is added to every lease on top of the wait it has to cover.
	LeaseGrace time.Duration
	// RunTimeout caps a single match run, from loading its questions to completion.
	RunTimeout time.Duration
	// MaxConcurrent limits match runs in flight; zero means unlimited. Matches over the
	// limit are not claimed and wait for a later sweep.
	MaxConcurrent int
}

// DefaultLifecycleConfig returns the production pacing.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		Lead:              90 * time.Second,
		Lobby:             5 * time.Minute,
		QuestionTimeLimit: 10 * time.Second,
		LeaseGrace:        30 * time.Second,
		RunTimeout:        15 * time.Minute,
	}
}

// SweepResult lists what one sweep did. Completed is only filled by sweeps that wait
// for their runs.
type SweepResult struct {
	Candidates int      `json:"candidates"`
	Claimed    []string `json:"claimed"`
	Completed  []string `json:"completed"`
}

// ErrLifecycleStopped is returned by sweeps started after Stop.
var ErrLifecycleStopped = errors.New("lifecycle controller stopped")

// LifecycleController drives matches from scheduled to completed.
type LifecycleController struct {
	matches   MatchRepository
	questions QuestionRepository
	clock     Clock
	notifier  Notifier
	events    EventPublisher
	cfg       LifecycleConfig
	logger    *slog.Logger
	newOwner  func() string

	// slots bounds the runs in flight across sweeps; nil means unlimited.
	slots *semaphore.Weighted

	mu       sync.Mutex
	stopped  bool
	runCtx   context.Context
	stopRuns context.CancelFunc
	runs     sync.WaitGroup
}

// LifecycleOption customizes a LifecycleController.
type LifecycleOption func(*LifecycleController)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) LifecycleOption {
	return func(c *LifecycleController) { c.clock = clock }
}

// WithNotifier registers the receiver of synchro changes.
func WithNotifier(n Notifier) LifecycleOption {
	return func(c *LifecycleController) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithEvents registers the event publisher.
func WithEvents(p EventPublisher) LifecycleOption {
	return func(c *LifecycleController) {
		if p != nil {
			c.events = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) LifecycleOption {
	return func(c *LifecycleController) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewLifecycleController(matches MatchRepository, questions QuestionRepository, cfg LifecycleConfig, opts ...LifecycleOption) *LifecycleController {
	runCtx, stopRuns := context.WithCancel(context.Background())
	c := &LifecycleController{
		matches:   matches,
		questions: questions,
		clock:     SystemClock{},
		notifier:  nopNotifier{},
		events:    nopPublisher{},
		cfg:       cfg,
		logger:    slog.Default(),
		newOwner:  uuid.NewString,
		runCtx:    runCtx,
		stopRuns:  stopRuns,
	}
	if cfg.MaxConcurrent > 0 {
		c.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunDue claims and drives every scheduled match starting within the lead window, plus
// every match whose lease expired mid-run. It returns once all claimed runs finished.
func (c *LifecycleController) RunDue(ctx context.Context) (SweepResult, error) {
	candidates, err := c.dueCandidates(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	return c.sweep(ctx, candidates, false)
}

// RunAll tries to claim every known match regardless of its start time and waits for the runs.
func (c *LifecycleController) RunAll(ctx context.Context) (SweepResult, error) {
	all, err := c.allCandidates(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	return c.sweep(ctx, all, false)
}

// StartDue claims the same matches as RunDue but returns as soon as the claims are made.
// Each claimed match keeps running in the background until it completes or Stop is called.
func (c *LifecycleController) StartDue(ctx context.Context) (SweepResult, error) {
	candidates, err := c.dueCandidates(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	return c.sweep(ctx, candidates, true)
}

// StartAll is RunAll without waiting for the runs.
func (c *LifecycleController) StartAll(ctx context.Context) (SweepResult, error) {
	all, err := c.allCandidates(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	return c.sweep(ctx, all, true)
}

// Stop cancels every background run and waits for them to return. Their leases are left
// to expire so another instance can resume the matches.
func (c *LifecycleController) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.stopRuns()
	c.mu.Unlock()
	c.runs.Wait()
}

func (c *LifecycleController) dueCandidates(ctx context.Context) ([]domain.Match, error) {
	now := c.clock.Now()
	due, err := c.matches.DueMatches(ctx, now.Add(c.cfg.Lead))
	if err != nil {
		return nil, domain.Internal("query due matches", err)
	}
	stalled, err := c.matches.StalledMatches(ctx, now)
	if err != nil {
		return nil, domain.Internal("query stalled matches", err)
	}
	return append(due, stalled...), nil
}

func (c *LifecycleController) allCandidates(ctx context.Context) ([]domain.Match, error) {
	all, err := c.matches.ListMatches(ctx)
	if err != nil {
		return nil, domain.Internal("list matches", err)
	}
	return all, nil
}

// sweep claims candidates in parallel, then drives the claimed matches. With detach the
// runs go to the background and sweep returns right after claiming.
func (c *LifecycleController) sweep(ctx context.Context, candidates []domain.Match, detach bool) (SweepResult, error) {
	result := SweepResult{Candidates: len(candidates)}
	if detach && c.isStopped() {
		return result, ErrLifecycleStopped
	}

	var (
		mu   sync.Mutex
		errs []error
		runs []*matchRun
		g    errgroup.Group
	)
	seen := make(map[string]struct{}, len(candidates))
	for _, m := range candidates {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		matchID := m.ID
		g.Go(func() error {
			run, err := c.claim(ctx, matchID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("match %s: %w", matchID, err))
			}
			if run != nil {
				result.Claimed = append(result.Claimed, matchID)
				runs = append(runs, run)
			}
			return nil
		})
	}
	_ = g.Wait()

	if detach {
		for _, run := range runs {
			c.spawn(run)
		}
		return result, errors.Join(errs...)
	}

	var drivers errgroup.Group
	for _, run := range runs {
		drivers.Go(func() error {
			defer c.release()
			err := c.execute(ctx, run)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("match %s: %w", run.match.ID, err))
				return nil
			}
			result.Completed = append(result.Completed, run.match.ID)
			return nil
		})
	}
	_ = drivers.Wait()
	return result, errors.Join(errs...)
}

// spawn drives run on the controller's own context.
func (c *LifecycleController) spawn(run *matchRun) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.release()
		run.log.Warn("controller stopped before the run started, lease left to expire")
		return
	}
	c.runs.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.runs.Done()
		defer c.release()
		_ = c.execute(c.runCtx, run)
	}()
}

func (c *LifecycleController) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *LifecycleController) acquire() bool {
	return c.slots == nil || c.slots.TryAcquire(1)
}

func (c *LifecycleController) release() {
	if c.slots != nil {
		c.slots.Release(1)
	}
}

// claim takes the lease of matchID. It returns nil when the match is held by someone
// else or no run slot is free. A returned run holds a slot until it finishes.
func (c *LifecycleController) claim(ctx context.Context, matchID string) (*matchRun, error) {
	log := c.logger.With("match_id", matchID)
	if !c.acquire() {
		log.Debug("run limit reached, match left for a later sweep")
		return nil, nil
	}
	owner := c.newOwner()
	now := c.clock.Now()

	claim, err := c.matches.ClaimMatch(ctx, matchID, owner, now, now.Add(c.cfg.LeaseGrace))
	if err != nil {
		c.release()
		log.Error("claim match failed", "error", err)
		return nil, domain.Internal("claim match", err)
	}
	if !claim.Claimed {
		c.release()
		log.Debug("match already claimed")
		return nil, nil
	}
	log.Info("match claimed", "status", claim.Match.Status, "question_number", claim.Match.Synchro.CurrentQuestionNumber)
	return &matchRun{c: c, match: claim.Match, owner: owner, log: log}, nil
}

// execute loads the questions of a claimed match and drives it to completion.
func (c *LifecycleController) execute(ctx context.Context, run *matchRun) error {
	if c.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RunTimeout)
		defer cancel()
	}

	questions, err := c.loadQuestions(ctx, run.match)
	if err != nil {
		run.log.Error("load match questions failed", "error", err)
		return err
	}
	run.questions = questions

	if err := run.drive(ctx); err != nil {
		run.log.Error("match run aborted", "error", err, "status", run.match.Status, "question_number", run.match.Synchro.CurrentQuestionNumber)
		return err
	}
	run.log.Info("match completed", "questions", len(questions))
	return nil
}

// loadQuestions fetches the match's questions in parallel, keeping match order.
func (c *LifecycleController) loadQuestions(ctx context.Context, m domain.Match) ([]domain.Question, error) {
	questions := make([]domain.Question, len(m.QuestionKeys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range m.QuestionKeys {
		g.Go(func() error {
			q, err := c.questions.GetQuestion(gctx, key)
			if err != nil {
				return fmt.Errorf("load question %s: %w", key, err)
			}
			questions[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return questions, nil
}

// matchRun is one owner's pass over a single match. It is strictly sequential.
type matchRun struct {
	c         *LifecycleController
	match     domain.Match
	owner     string
	questions []domain.Question
	log       *slog.Logger
}

func (r *matchRun) drive(ctx context.Context) error {
	c := r.c
	m := r.match

	if m.Status == domain.MatchScheduled || m.Status == domain.MatchReady {
		lobby := m.LobbyDuration
		if lobby <= 0 {
			lobby = c.cfg.Lobby
		}
		start := m.StartingAt.Add(lobby)
		if wait := start.Sub(c.clock.Now()); wait > 0 {
			if err := r.save(ctx, domain.MatchReady, domain.SynchroData{}, true, wait); err != nil {
				return err
			}
			r.log.Info("waiting for lobby to close", "starts_at", start)
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
		if len(r.questions) == 0 {
			return r.complete(ctx, domain.SynchroData{IsStarted: true})
		}
		if err := r.save(ctx, domain.MatchPlaying, domain.SynchroData{
			IsStarted:             true,
			CurrentQuestionNumber: 1,
		}, true, r.timeLimit(0)); err != nil {
			return err
		}
	}

	number := r.match.Synchro.CurrentQuestionNumber
	if number < 1 {
		number = 1
	}
	revealed := r.match.Synchro.IsResult
	total := len(r.questions)
	if number > total {
		return r.complete(ctx, r.match.Synchro)
	}

	for n := number; n <= total; n++ {
		if !revealed {
			if err := c.clock.Sleep(ctx, r.timeLimit(n-1)); err != nil {
				return err
			}
			if err := r.save(ctx, domain.MatchPlaying, domain.SynchroData{
				IsStarted:             true,
				CurrentQuestionNumber: n,
				IsResult:              true,
			}, true, r.resultTimeLimit()); err != nil {
				return err
			}
		}
		revealed = false

		if err := c.clock.Sleep(ctx, r.resultTimeLimit()); err != nil {
			return err
		}

		if n == total {
			return r.complete(ctx, domain.SynchroData{
				IsStarted:             true,
				CurrentQuestionNumber: n,
				IsResult:              true,
			})
		}
		if err := r.save(ctx, domain.MatchPlaying, domain.SynchroData{
			IsStarted:             true,
			CurrentQuestionNumber: n + 1,
		}, true, r.timeLimit(n)); err != nil {
			return err
		}
	}
	return nil
}

func (r *matchRun) complete(ctx context.Context, last domain.SynchroData) error {
	last.MatchOver = true
	return r.save(ctx, domain.MatchCompleted, last, false, 0)
}

// save persists a transition and renews the lease to cover the next wait.
func (r *matchRun) save(ctx context.Context, status domain.MatchStatus, synchro domain.SynchroData, locked bool, nextWait time.Duration) error {
	c := r.c
	now := c.clock.Now()
	progress := domain.MatchProgress{
		Status:   status,
		Synchro:  synchro,
		IsLocked: locked,
	}
	if locked {
		progress.LeaseUntil = now.Add(nextWait + c.cfg.LeaseGrace)
	}
	if err := c.matches.SaveProgress(ctx, r.match.ID, r.owner, progress); err != nil {
		if errors.Is(err, domain.ErrLeaseLost) {
			return err
		}
		return domain.Internal("save match progress", err)
	}

	r.match.Status = status
	r.match.Synchro = synchro
	r.match.IsLocked = locked
	r.match.LeaseUntil = progress.LeaseUntil
	if !locked {
		r.match.LeaseOwner = ""
	}
	c.notifier.MatchUpdated(r.match)
	if err := c.events.Publish(ctx, newEvent(EventMatchStatus, r.match.ID, now, matchStatusPayload{
		Status:  status,
		Synchro: synchro,
	})); err != nil {
		r.log.Warn("publish match event failed", "error", err)
	}
	r.log.Debug("match progress saved", "status", status, "question_number", synchro.CurrentQuestionNumber, "is_result", synchro.IsResult)
	return nil
}

func (r *matchRun) timeLimit(idx int) time.Duration {
	if idx >= 0 && idx < len(r.questions) && r.questions[idx].TimeLimit > 0 {
		return r.questions[idx].TimeLimit
	}
	if r.match.QuestionTimeLimit > 0 {
		return r.match.QuestionTimeLimit
	}
	return r.c.cfg.QuestionTimeLimit
}

func (r *matchRun) resultTimeLimit() time.Duration {
	return r.match.ResultTimeLimit
}

type matchStatusPayload struct {
	Status  domain.MatchStatus `json:"status"`
	Synchro domain.SynchroData `json:"synchroData"`
}
