// Package campaign 编排一次 campaign 运行: 登录、快照、决策、执行,连续失败后走脚本兜底
package campaign

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skolmuirgheasa/resquared-automation/agent"
	"github.com/skolmuirgheasa/resquared-automation/config"
	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/locator"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
	"github.com/skolmuirgheasa/resquared-automation/pkg/metrics"
	"github.com/skolmuirgheasa/resquared-automation/pkg/urlutil"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
	"golang.org/x/sync/errgroup"
)

// ErrRunFailed 运行结束但没有完成目标,返回的 CampaignRun 带完整步骤日志
var ErrRunFailed = errors.New("campaign run failed")

const (
	closeTimeout = 10 * time.Second
	// LoginNote 登录阶段步骤的备注
	LoginNote = "login"
	// SubstitutedNote 决策输出无法识别时替换成默认动作的备注
	SubstitutedNote = "malformed action replaced"
)

// SessionFactory 为每次运行创建独占的浏览器会话
type SessionFactory interface {
	NewSession(ctx context.Context) (executor.Session, error)
}

// Store 运行记录的持久化
type Store interface {
	SaveRun(run *models.CampaignRun) error
}

// Options Runner 的可选依赖,nil 字段使用默认配置
type Options struct {
	Campaign *config.CampaignConfig
	Executor *config.ExecutorConfig
	Snapshot *config.SnapshotConfig
	Search   *config.SearchConfig
	Store    Store
	Metrics  *metrics.Metrics
}

// Runner 执行 campaign。不同运行可以并发,每次运行独占一个会话。
type Runner struct {
	sessions SessionFactory
	decider  agent.Decider
	store    Store
	metrics  *metrics.Metrics

	campaign *config.CampaignConfig
	timeouts executor.Timeouts
	search   executor.SearchProfile
	snapOpts snapshot.Options
	shotDir  string

	mu     sync.Mutex
	active map[string]executor.Session
}

func NewRunner(sessions SessionFactory, decider agent.Decider, opts Options) *Runner {
	if opts.Campaign == nil {
		opts.Campaign = config.DefaultCampaign()
	}
	if opts.Executor == nil {
		opts.Executor = config.DefaultExecutor()
	}
	if opts.Snapshot == nil {
		opts.Snapshot = config.DefaultSnapshot()
	}
	return &Runner{
		sessions: sessions,
		decider:  decider,
		store:    opts.Store,
		metrics:  opts.Metrics,
		campaign: opts.Campaign,
		timeouts: executor.TimeoutsFromConfig(opts.Executor),
		search:   executor.SearchProfileFromConfig(opts.Search),
		snapOpts: snapshot.Options{
			IncludeHighlighting: opts.Snapshot.IncludeHighlighting,
			MaxDepth:            opts.Snapshot.MaxDepth,
			CollectMetrics:      opts.Snapshot.CollectMetrics,
		},
		shotDir: opts.Executor.ScreenshotDir,
		active:  map[string]executor.Session{},
	}
}

// run 一次运行的可变状态,只在运行所在的 goroutine 中使用
type run struct {
	record  *models.CampaignRun
	req     models.CampaignRequest
	session executor.Session
	exec    *executor.Executor
	tracker *snapshot.Tracker
}

// Run 执行一次 campaign。请求不完整时在任何浏览器操作之前返回 models.ErrInvalidRequest;
// 运行失败返回 ErrRunFailed 以及带步骤日志的记录。
func (r *Runner) Run(ctx context.Context, req models.CampaignRequest) (*models.CampaignRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rec := &models.CampaignRun{
		ID:        uuid.NewString(),
		Request:   req.Redacted(),
		Status:    models.RunRunning,
		Steps:     []models.AutomationStep{},
		StartedAt: time.Now(),
	}
	ctx = logger.WithRunID(ctx, rec.ID)
	logger.Info(ctx, "[Run] starting campaign on %s", req.TargetURL)
	r.metrics.RunStarted()
	r.persist(ctx, rec)

	rn := &run{record: rec, req: req}
	err := r.execute(ctx, rn)
	return rec, r.finish(ctx, rn, err)
}

func (r *Runner) execute(ctx context.Context, rn *run) error {
	sess, err := r.sessions.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("open browser session: %w", err)
	}
	rn.session = sess
	r.track(rn.record.ID, sess)
	defer func() {
		r.untrack(rn.record.ID)
		// 运行被取消时仍要关闭远程会话
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Warn(ctx, "[Run] failed to close session: %v", err)
		}
	}()

	target := urlutil.EnsureURLProtocol(rn.req.TargetURL)
	navCtx, cancel := context.WithTimeout(ctx, config.Ms(r.campaign.NavigationTimeoutMs))
	err = sess.Navigate(navCtx, target)
	cancel()
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", target, err)
	}

	page := sess.Page()
	rn.exec = executor.NewExecutor(page,
		executor.WithTimeouts(r.timeouts),
		executor.WithSearchProfile(r.search),
		executor.WithMetrics(r.metrics),
		executor.WithScreenshotDir(r.shotDir),
	)
	rn.tracker = snapshot.NewTracker(page, r.snapOpts)

	if err := r.login(ctx, rn); err != nil {
		return err
	}
	return r.loop(ctx, rn)
}

// loop 快照 → 决策 → 解析 → 执行,直到完成、步数用尽或连续失败触发兜底
func (r *Runner) loop(ctx context.Context, rn *run) error {
	failures := 0
	for cycle := 1; cycle <= r.campaign.MaxSteps; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rn.session.ShowStatus(ctx, fmt.Sprintf("Step %d: reading page", cycle))

		snap, err := r.capture(ctx, rn.tracker)
		if err != nil {
			if ctx.Err() != nil || executor.Classify(err) == models.FailureUpstreamUnavailable {
				return fmt.Errorf("snapshot: %w", err)
			}
			logger.Warn(ctx, "[Run] snapshot failed, counting as a failed cycle: %v", err)
			failures++
			if failures >= r.campaign.MaxConsecutiveFailures {
				return r.fallback(ctx, rn)
			}
			continue
		}

		var html string
		if err := rn.exec.Page().Evaluate(ctx, agent.PageHTMLScript, &html); err != nil {
			logger.Warn(ctx, "[Run] failed to read page html: %v", err)
		}

		rn.session.ShowStatus(ctx, fmt.Sprintf("Step %d: deciding", cycle))
		decision, err := r.decider.Decide(ctx, agent.DecisionInput{
			Snapshot: snap,
			Prompt:   rn.req.Prompt,
			Steps:    rn.record.Steps,
			PageURL:  rn.session.URL(ctx),
			PageHTML: html,
		})
		if err != nil && !errors.Is(err, agent.ErrUnparseableDecision) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error(ctx, "[Run] decision failed: %v", err)
			r.appendStep(ctx, rn, models.AutomationStep{
				Outcome:   models.Failure(models.FailureUpstreamUnavailable, err.Error()),
				StartedAt: time.Now(),
			})
		} else {
			if err != nil {
				logger.Warn(ctx, "[Run] %v", err)
			}
			if decision.Done {
				rn.record.Summary = decision.Summary
				logger.Info(ctx, "[Run] ✓ goal reached after %d steps: %s", len(rn.record.Steps), decision.Summary)
				return nil
			}
			rn.session.ShowStatus(ctx, fmt.Sprintf("Step %d: %s %s", cycle, decision.Action.Kind, decision.Action.Locator))
			r.act(ctx, rn, snap, decision.Action)
		}

		last := rn.record.Steps[len(rn.record.Steps)-1].Outcome
		switch {
		case last.Kind == models.FailureCancelled:
			return context.Canceled
		case last.OK():
			failures = 0
		default:
			failures++
			logger.Warn(ctx, "[Run] %d consecutive failures", failures)
			if failures >= r.campaign.MaxConsecutiveFailures {
				return r.fallback(ctx, rn)
			}
		}
	}
	return fmt.Errorf("step limit of %d reached without completing the goal", r.campaign.MaxSteps)
}

// act 规整并执行一个动作,结果追加到步骤日志
func (r *Runner) act(ctx context.Context, rn *run, snap *snapshot.Snapshot, raw models.RawAction) {
	start := time.Now()
	step := models.AutomationStep{StartedAt: start}

	action, err := models.NormalizeAction(raw)
	var target executor.Target
	if err != nil {
		logger.Warn(ctx, "[Run] %v: kind=%q locator=%q, substituting default action", err, raw.Kind, raw.Locator)
		action = rn.exec.DefaultAction()
		target = executor.Target{Class: locator.ClassGeneral, Locators: []locator.Locator{rn.exec.SearchProfile().Header}}
		step.Note = SubstitutedNote
	} else {
		res := &locator.Resolver{Snapshot: snap, SearchPlaceholder: rn.exec.SearchProfile().SearchPlaceholder}
		target.Class = res.Classify(action.Locator)
		locs, rerr := res.Resolve(action.Locator)
		if rerr != nil {
			step.Action = action
			step.Outcome = executor.ToOutcome(rerr)
			step.Duration = time.Since(start)
			logger.Warn(ctx, "[Run] cannot resolve %q: %v", action.Locator, rerr)
			r.appendStep(ctx, rn, step)
			return
		}
		target.Locators = locs
	}

	step.Action = action
	step.Outcome = rn.exec.Execute(ctx, action, target)
	step.Duration = time.Since(start)
	r.appendStep(ctx, rn, step)
	// 动作可能已修改 DOM,旧快照的 handle 全部作废
	rn.tracker.Invalidate()
}

// capture 页面还没有 body 时按配置稍后重试
func (r *Runner) capture(ctx context.Context, tracker *snapshot.Tracker) (*snapshot.Snapshot, error) {
	for attempt := 0; ; attempt++ {
		snap, err := tracker.Capture(ctx)
		if err != nil {
			return nil, err
		}
		if !snap.Degenerate() || attempt >= r.campaign.DegenerateRetries {
			r.metrics.ObserveSnapshot(len(snap.Nodes))
			return snap, nil
		}
		logger.Info(ctx, "[Run] page not ready, retrying snapshot (%d/%d)", attempt+1, r.campaign.DegenerateRetries)
		if err := sleep(ctx, config.Ms(r.campaign.DegenerateRetryDelayMs)); err != nil {
			return nil, err
		}
	}
}

// fallback 连续失败后只执行一次的脚本化流程
func (r *Runner) fallback(ctx context.Context, rn *run) error {
	rn.record.UsedFallback = true
	query := searchQuery(rn.req.Prompt)
	rn.session.ShowStatus(ctx, fmt.Sprintf("Fallback: searching %q", query))

	steps, err := rn.exec.RunFallback(ctx, query)
	for _, s := range steps {
		r.appendStep(ctx, rn, s)
	}
	if err != nil {
		r.metrics.Fallback("failed")
		return fmt.Errorf("scripted fallback: %w", err)
	}
	r.metrics.Fallback("succeeded")
	rn.record.Summary = fmt.Sprintf("completed by scripted search for %q", query)
	return nil
}

func (r *Runner) appendStep(ctx context.Context, rn *run, step models.AutomationStep) {
	step.Sequence = len(rn.record.Steps) + 1
	step.Action = step.Action.Masked(rn.req.Password)
	rn.record.Steps = append(rn.record.Steps, step)
	logger.Info(ctx, "[Run] step %d: %s %q -> %s", step.Sequence, step.Action.Kind, step.Action.Locator, step.Outcome)
	r.persist(ctx, rn.record)
}

func (r *Runner) finish(ctx context.Context, rn *run, err error) error {
	rec := rn.record
	now := time.Now()
	rec.FinishedAt = &now

	switch {
	case err == nil:
		rec.Status = models.RunSucceeded
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		rec.Status = models.RunCancelled
		rec.Error = "run cancelled"
	default:
		rec.Status = models.RunFailed
		rec.Error = err.Error()
	}
	r.metrics.RunFinished(string(rec.Status))
	r.persist(ctx, rec)

	if err == nil {
		logger.Info(ctx, "[Run] ✓ campaign succeeded in %v with %d steps", now.Sub(rec.StartedAt), len(rec.Steps))
		return nil
	}
	logger.Error(ctx, "[Run] campaign %s after %d steps: %v", rec.Status, len(rec.Steps), err)
	if rec.Status == models.RunCancelled {
		return fmt.Errorf("%w: %w", ErrRunFailed, context.Canceled)
	}
	return fmt.Errorf("%w: %w", ErrRunFailed, err)
}

func (r *Runner) persist(ctx context.Context, rec *models.CampaignRun) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveRun(rec); err != nil {
		logger.Warn(ctx, "[Run] failed to persist run %s: %v", rec.ID, err)
	}
}

func (r *Runner) track(id string, s executor.Session) {
	r.mu.Lock()
	r.active[id] = s
	r.mu.Unlock()
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// Active 正在持有会话的运行数
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Shutdown 并行关闭所有进行中的会话,尽力而为
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := make(map[string]executor.Session, len(r.active))
	for id, s := range r.active {
		sessions[id] = s
	}
	r.mu.Unlock()

	if len(sessions) == 0 {
		return nil
	}
	logger.Info(ctx, "[Shutdown] closing %d in-flight browser sessions", len(sessions))

	g, gctx := errgroup.WithContext(ctx)
	for id, s := range sessions {
		g.Go(func() error {
			if err := s.Close(gctx); err != nil {
				return fmt.Errorf("close session of run %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

var quotedTerm = regexp.MustCompile(`["“”]([^"“”]+)["“”]`)

// searchQuery 兜底搜索词: 提示词中第一个引号内的词,没有时用整个提示词
func searchQuery(prompt string) string {
	if m := quotedTerm.FindStringSubmatch(prompt); m != nil {
		if q := strings.TrimSpace(m[1]); q != "" {
			return q
		}
	}
	return strings.TrimSpace(prompt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
