package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"lms_quiz_backend/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAutoSaveInterval = 30 * time.Second
	DefaultTickInterval     = time.Second
	defaultCallTimeout      = 15 * time.Second
	maxConcurrentSaves      = 4
)

type State int

const (
	NotStarted State = iota
	Active
	Submitting
	Submitted
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	}
	return "unknown"
}

const (
	Forward  = 1
	Backward = -1
)

// Remote 测验服务接口，由 quizclient.Client 实现
type Remote interface {
	StartAttempt(ctx context.Context, quizID string) (*model.StartAttemptResponse, error)
	SaveAnswer(ctx context.Context, quizID, questionID, answer string) error
	SubmitAttempt(ctx context.Context, quizID, attemptID string) (*model.AttemptView, error)
}

type Hooks struct {
	OnTick func(remaining int)
	// OnTimeout 倒计时归零并完成提交（无论成功与否）后调用
	OnTimeout     func(Outcome)
	OnLostAnswers func(attemptID string, questionIDs []string)
	OnSaveError   func(questionID string, err error)
}

type Options struct {
	Scheduler        Scheduler
	AutoSaveInterval time.Duration
	TickInterval     time.Duration
	CallTimeout      time.Duration
	Logger           *zap.Logger
	Hooks            Hooks
	Now              func() time.Time
}

// Outcome 提交结果。Attempt 为 nil 表示服务端未返回作答详情
type Outcome struct {
	AttemptID   string
	Reason      string
	Attempt     *model.AttemptView
	LostAnswers []string
	Err         error
	Duplicate   bool
}

// ClosedByServer 作答已在服务端关闭（例如被超时清理），成绩可按 AttemptID 查询
func (o Outcome) ClosedByServer() bool {
	return o.Attempt == nil && errors.Is(o.Err, ErrNotActive)
}

type StartResult struct {
	Quiz          model.StudentQuiz
	Attempt       model.AttemptView
	TimeRemaining *int
	Resumed       bool
	Restored      int
}

// Controller 一次作答会话：开始、记录答案、自动保存、倒计时与提交
type Controller struct {
	remote Remote
	sched  Scheduler
	log    *zap.Logger
	hooks  Hooks
	now    func() time.Time

	autoSaveEvery time.Duration
	tickEvery     time.Duration
	callTimeout   time.Duration

	mu         sync.Mutex
	state      State
	closed     bool
	quizID     string
	quiz       model.StudentQuiz
	attempt    model.AttemptView
	store      *AnswerStore
	current    int
	remaining  *int
	stopTick   func()
	stopSave   func()
	outcome    *Outcome
	bgCtx      context.Context
	bgCancel   context.CancelFunc
	pendingOps sync.WaitGroup
}

func New(remote Remote, opts Options) *Controller {
	c := &Controller{
		remote:        remote,
		sched:         opts.Scheduler,
		log:           opts.Logger,
		hooks:         opts.Hooks,
		now:           opts.Now,
		autoSaveEvery: opts.AutoSaveInterval,
		tickEvery:     opts.TickInterval,
		callTimeout:   opts.CallTimeout,
	}
	if c.sched == nil {
		c.sched = TickerScheduler{}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.autoSaveEvery <= 0 {
		c.autoSaveEvery = DefaultAutoSaveInterval
	}
	if c.tickEvery <= 0 {
		c.tickEvery = DefaultTickInterval
	}
	if c.callTimeout <= 0 {
		c.callTimeout = defaultCallTimeout
	}
	return c
}

// Start 开始或恢复作答。恢复时用服务端已保存的答案填充本地答案
func (c *Controller) Start(ctx context.Context, quizID string) (*StartResult, error) {
	c.mu.Lock()
	if c.state != NotStarted || c.closed {
		c.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	c.mu.Unlock()

	resp, err := c.remote.StartAttempt(ctx, quizID)
	if err != nil {
		err = classify("start attempt", err)
		c.log.Warn("开始作答失败", zap.String("quizId", quizID), zap.Error(err))
		return nil, err
	}

	store := NewAnswerStore(resp.Quiz.QuestionIDs())
	restored := 0
	resumed := resp.Attempt.Answers != nil
	if resumed {
		restored = store.Hydrate(resp.Attempt.Answers, c.now())
	}

	remaining := resp.TimeRemaining
	if remaining == nil {
		remaining = resp.Attempt.TimeRemainingSeconds
	}
	if remaining != nil {
		left := *remaining
		if left < 0 {
			left = 0
		}
		remaining = &left
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != NotStarted || c.closed {
		return nil, ErrAlreadyStarted
	}
	c.quizID = quizID
	c.quiz = resp.Quiz
	c.attempt = resp.Attempt
	c.store = store
	c.current = 0
	c.remaining = remaining
	c.state = Active
	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())
	c.startTimersLocked()

	c.log.Info("测验会话已开始",
		zap.String("quizId", quizID),
		zap.String("attemptId", resp.Attempt.ID),
		zap.Int("attemptNumber", resp.Attempt.AttemptNumber),
		zap.Bool("resumed", resumed),
		zap.Int("restoredAnswers", restored),
	)

	return &StartResult{
		Quiz:          resp.Quiz,
		Attempt:       resp.Attempt,
		TimeRemaining: copyInt(remaining),
		Resumed:       resumed,
		Restored:      restored,
	}, nil
}

// RecordAnswer 只写本地，不访问服务端
func (c *Controller) RecordAnswer(questionID, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked() {
		return ErrNotActive
	}
	return c.store.Set(questionID, value)
}

// Advance 前后移动一题，不回绕；离开的题目若有改动则后台保存
func (c *Controller) Advance(direction int) (int, error) {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return 0, ErrNotActive
	}
	step := Forward
	if direction < 0 {
		step = Backward
	}
	next := c.current + step
	if next < 0 {
		next = 0
	}
	if last := len(c.quiz.Questions) - 1; next > last {
		next = last
	}
	if next < 0 {
		next = 0
	}
	var leaving *AnswerEntry
	if next != c.current && c.current < len(c.quiz.Questions) {
		id := c.quiz.Questions[c.current].ID
		if c.store.IsDirty(id) {
			if e, ok := c.store.Entry(id); ok {
				leaving = &e
			}
		}
	}
	c.current = next
	quizID := c.quizID
	bg := c.bgCtx
	if leaving != nil {
		c.pendingOps.Add(1)
	}
	c.mu.Unlock()

	if leaving != nil {
		go func(e AnswerEntry) {
			defer c.pendingOps.Done()
			ctx, cancel := context.WithTimeout(bg, c.callTimeout)
			defer cancel()
			if err := c.saveEntry(ctx, quizID, e); err != nil {
				c.reportSaveError(e.QuestionID, err)
			}
		}(*leaving)
	}
	return next, nil
}

// SaveCurrentAnswer 同步保存当前题，失败返回给调用方
func (c *Controller) SaveCurrentAnswer(ctx context.Context) error {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return ErrNotActive
	}
	if c.current >= len(c.quiz.Questions) {
		c.mu.Unlock()
		return nil
	}
	entry, ok := c.store.Entry(c.quiz.Questions[c.current].ID)
	quizID := c.quizID
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return c.saveEntry(ctx, quizID, entry)
}

// Submit 用户提交，必须已确认。已提交或提交中再次调用直接返回，不访问服务端
func (c *Controller) Submit(ctx context.Context, confirmed bool) (*Outcome, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == Active && !confirmed {
		return nil, ErrConfirmationRequired
	}
	return c.finalize(ctx, model.EndReasonManual)
}

// onTimeout 倒计时归零时提交，不需要确认；失败也视为已结束
func (c *Controller) onTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	defer cancel()

	out, err := c.finalize(ctx, model.EndReasonTimeout)
	if err != nil || out == nil || out.Duplicate {
		return
	}
	if c.hooks.OnTimeout != nil {
		c.hooks.OnTimeout(*out)
	}
}

func (c *Controller) finalize(ctx context.Context, reason string) (*Outcome, error) {
	c.mu.Lock()
	switch {
	case c.state == Submitted:
		out := *c.outcome
		out.Duplicate = true
		c.mu.Unlock()
		return &out, nil
	case c.state == Submitting:
		out := &Outcome{AttemptID: c.attempt.ID, Reason: reason, Duplicate: true}
		c.mu.Unlock()
		return out, nil
	case c.state != Active || c.closed:
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	c.state = Submitting
	c.stopTimersLocked()
	quizID, attemptID := c.quizID, c.attempt.ID
	dirty := c.store.Dirty()
	c.mu.Unlock()

	// 先尽力保存未保存的答案，失败的记为丢失
	var lost []string
	if len(dirty) > 0 {
		lost = c.flush(ctx, quizID, dirty)
	}

	view, err := c.remote.SubmitAttempt(ctx, quizID, attemptID)
	err = classify("submit attempt", err)

	c.mu.Lock()
	if err != nil && reason == model.EndReasonManual && !errors.Is(err, ErrNotActive) {
		c.state = Active
		c.startTimersLocked()
		c.mu.Unlock()
		c.log.Warn("提交作答失败",
			zap.String("attemptId", attemptID),
			zap.Error(err),
		)
		return nil, err
	}

	out := &Outcome{
		AttemptID:   attemptID,
		Reason:      reason,
		Attempt:     view,
		LostAnswers: lost,
		Err:         err,
	}
	c.state = Submitted
	c.outcome = out
	if c.bgCancel != nil {
		c.bgCancel()
	}
	c.mu.Unlock()

	fields := []zap.Field{
		zap.String("attemptId", attemptID),
		zap.String("reason", reason),
	}
	if view != nil {
		fields = append(fields, zap.Float64("score", view.Score), zap.Float64("maxScore", view.MaxScore))
	}
	if err != nil {
		c.log.Warn("作答已在本地结束，服务端未确认", append(fields, zap.Error(err))...)
	} else {
		c.log.Info("作答已提交", fields...)
	}
	c.reportLost(attemptID, lost)
	return out, nil
}

// Close 离开作答：停止倒计时与自动保存，不提交，作答可恢复
func (c *Controller) Close() []string {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimersLocked()
	if c.bgCancel != nil {
		c.bgCancel()
	}
	var lost []string
	attemptID := c.attempt.ID
	if c.state == Active {
		lost = entryIDs(c.store.Dirty())
	}
	c.mu.Unlock()

	c.reportLost(attemptID, lost)
	return lost
}

// Wait 等待后台保存结束
func (c *Controller) Wait() {
	c.pendingOps.Wait()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Remaining() *int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyInt(c.remaining)
}

// Current 当前题目下标及题目
func (c *Controller) Current() (int, model.StudentQuestion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current >= len(c.quiz.Questions) {
		return c.current, model.StudentQuestion{}, false
	}
	return c.current, c.quiz.Questions[c.current], true
}

func (c *Controller) Quiz() model.StudentQuiz {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quiz
}

func (c *Controller) AttemptID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.ID
}

func (c *Controller) QuizID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quizID
}

func (c *Controller) Answers() *AnswerStore {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

func (c *Controller) Outcome() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return nil
	}
	out := *c.outcome
	return &out
}

func (c *Controller) tick() {
	c.mu.Lock()
	if !c.activeLocked() || c.remaining == nil {
		c.mu.Unlock()
		return
	}
	if *c.remaining > 0 {
		*c.remaining--
	}
	left := *c.remaining
	c.mu.Unlock()

	if c.hooks.OnTick != nil {
		c.hooks.OnTick(left)
	}
	if left == 0 {
		c.onTimeout()
	}
}

// autoSave 后台保存，失败只记录日志
func (c *Controller) autoSave() {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return
	}
	dirty := c.store.Dirty()
	quizID := c.quizID
	bg := c.bgCtx
	c.pendingOps.Add(1)
	c.mu.Unlock()
	defer c.pendingOps.Done()

	if len(dirty) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(bg, c.callTimeout)
	defer cancel()
	if failed := c.flush(ctx, quizID, dirty); len(failed) > 0 {
		c.log.Debug("自动保存未全部完成", zap.Strings("questionIds", failed))
	}
}

// flush 并发保存多题，返回保存失败的题目
func (c *Controller) flush(ctx context.Context, quizID string, entries []AnswerEntry) []string {
	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSaves)
	for _, e := range entries {
		g.Go(func() error {
			if err := c.saveEntry(gctx, quizID, e); err != nil {
				c.reportSaveError(e.QuestionID, err)
				mu.Lock()
				failed = append(failed, e.QuestionID)
				mu.Unlock()
			}
			// 单题失败不影响其它题
			return nil
		})
	}
	_ = g.Wait()
	return orderLike(entries, failed)
}

func (c *Controller) saveEntry(ctx context.Context, quizID string, e AnswerEntry) error {
	if err := c.remote.SaveAnswer(ctx, quizID, e.QuestionID, e.Value); err != nil {
		return classify("save answer", err)
	}
	c.store.MarkSaved(e, c.now())
	return nil
}

func (c *Controller) reportSaveError(questionID string, err error) {
	c.log.Warn("保存答案失败",
		zap.String("questionId", questionID),
		zap.Error(err),
	)
	if c.hooks.OnSaveError != nil {
		c.hooks.OnSaveError(questionID, err)
	}
}

func (c *Controller) reportLost(attemptID string, lost []string) {
	if len(lost) == 0 {
		return
	}
	c.log.Warn("答案未能保存到服务端",
		zap.String("attemptId", attemptID),
		zap.Strings("questionIds", lost),
	)
	if c.hooks.OnLostAnswers != nil {
		c.hooks.OnLostAnswers(attemptID, lost)
	}
}

func (c *Controller) activeLocked() bool {
	return c.state == Active && !c.closed
}

func (c *Controller) startTimersLocked() {
	if c.remaining != nil && c.stopTick == nil {
		c.stopTick = c.sched.Every(c.tickEvery, c.tick)
	}
	if c.stopSave == nil {
		c.stopSave = c.sched.Every(c.autoSaveEvery, c.autoSave)
	}
}

func (c *Controller) stopTimersLocked() {
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
	if c.stopSave != nil {
		c.stopSave()
		c.stopSave = nil
	}
}

func orderLike(entries []AnswerEntry, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, e := range entries {
		if _, ok := set[e.QuestionID]; ok {
			out = append(out, e.QuestionID)
		}
	}
	return out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
