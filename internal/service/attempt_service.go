package service

import (
	"context"
	"errors"
	"lms_quiz_backend/internal/config"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/util"
	"lms_quiz_backend/pkg/events"
	"lms_quiz_backend/pkg/logger"
	"lms_quiz_backend/pkg/monitoring"
	"lms_quiz_backend/pkg/tracing"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 并发开始作答时 attempt_number 冲突的重试次数
const startRetries = 3

// AttemptSubmittedEvent 作答提交后发布到消息队列
type AttemptSubmittedEvent struct {
	AttemptID     string    `json:"attemptId"`
	QuizID        string    `json:"quizId"`
	CourseID      uint      `json:"courseId"`
	UserID        uint      `json:"userId"`
	AttemptNumber int       `json:"attemptNumber"`
	EndReason     string    `json:"endReason"`
	Score         float64   `json:"score"`
	MaxScore      float64   `json:"maxScore"`
	Percentage    float64   `json:"percentage"`
	Grade         string    `json:"grade"`
	IsPassed      bool      `json:"isPassed"`
	PendingCount  int       `json:"pendingCount"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

type AttemptService struct {
	Quizzes     QuizLoader
	CourseRepo  CourseStore
	AttemptRepo AttemptStore
	Publisher   events.Publisher

	mu         sync.RWMutex
	gradeScale []config.GradeBand

	now func() time.Time
}

func NewAttemptService(quizzes QuizLoader, courseRepo CourseStore, attemptRepo AttemptStore, publisher events.Publisher, scale []config.GradeBand) *AttemptService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if len(scale) == 0 {
		scale = config.DefaultGradeScale()
	}
	return &AttemptService{
		Quizzes:     quizzes,
		CourseRepo:  courseRepo,
		AttemptRepo: attemptRepo,
		Publisher:   publisher,
		gradeScale:  scale,
		now:         time.Now,
	}
}

// SetGradeScale 配置热更新时调用，只影响之后的评分
func (s *AttemptService) SetGradeScale(scale []config.GradeBand) {
	if len(scale) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gradeScale = scale
}

func (s *AttemptService) GradeScale() []config.GradeBand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gradeScale
}

// StartAttempt 开始新作答，或恢复进行中的作答
func (s *AttemptService) StartAttempt(ctx context.Context, userID uint, quizID string) (resp *model.StartAttemptResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.StartAttempt",
		attribute.String("quiz.id", quizID),
		attribute.Int64("user.id", int64(userID)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	quiz, err := s.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !quiz.IsAvailableAt(now) {
		monitoring.AttemptsRejected.WithLabelValues(model.ReasonQuizUnavailable).Inc()
		return nil, util.ErrQuizUnavailable
	}

	for i := 0; i < startRetries; i++ {
		resp, err = s.startOnce(ctx, quiz, userID)
		if !errors.Is(err, util.ErrAttemptNumberConflict) {
			return resp, err
		}
		logger.Log.Warn("作答序号冲突，重试",
			zap.String("quizId", quizID),
			zap.Uint("userId", userID),
		)
	}
	return nil, err
}

func (s *AttemptService) startOnce(ctx context.Context, quiz *model.Quiz, userID uint) (*model.StartAttemptResponse, error) {
	existing, err := s.AttemptRepo.FindInProgress(userID, quiz.ID)
	switch {
	case err == nil:
		if !s.isExpired(quiz, existing) {
			return s.resume(quiz, existing)
		}
		// 超时未提交的作答先按超时处理，再判断是否还能开始新的
		if _, err := s.finalize(ctx, quiz, existing, model.EndReasonTimeout); err != nil {
			return nil, err
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	used, err := s.AttemptRepo.CountByUserQuiz(userID, quiz.ID)
	if err != nil {
		return nil, err
	}
	if limit := quiz.AttemptCap(); limit > 0 && used >= limit {
		monitoring.AttemptsRejected.WithLabelValues(model.ReasonAttemptLimitExceeded).Inc()
		return nil, util.ErrAttemptLimitExceeded
	}

	attempt := &model.QuizAttempt{
		QuizID:        quiz.ID,
		UserID:        userID,
		AttemptNumber: used + 1,
		Status:        model.AttemptInProgress,
		StartedAt:     s.now(),
	}
	if err := s.AttemptRepo.Create(attempt); err != nil {
		return nil, err
	}

	monitoring.AttemptsStarted.WithLabelValues("new").Inc()
	logger.Log.Info("开始作答",
		zap.String("attemptId", attempt.ID),
		zap.String("quizId", quiz.ID),
		zap.Uint("userId", userID),
		zap.Int("attemptNumber", attempt.AttemptNumber),
	)

	view := s.attemptView(quiz, attempt, used+1)
	return &model.StartAttemptResponse{
		Attempt:       view,
		Quiz:          StudentQuizFor(quiz, attempt.ID),
		TimeRemaining: view.TimeRemainingSeconds,
	}, nil
}

func (s *AttemptService) resume(quiz *model.Quiz, attempt *model.QuizAttempt) (*model.StartAttemptResponse, error) {
	answers, err := s.AttemptRepo.ListAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}

	view := s.attemptView(quiz, attempt, attempt.AttemptNumber)
	view.Resumed = true
	view.Answers = make(map[string]string, len(answers))
	for _, a := range answers {
		view.Answers[a.QuestionID] = a.Answer
	}

	monitoring.AttemptsStarted.WithLabelValues("resumed").Inc()
	return &model.StartAttemptResponse{
		Attempt:       view,
		Quiz:          StudentQuizFor(quiz, attempt.ID),
		TimeRemaining: view.TimeRemainingSeconds,
	}, nil
}

// SaveAnswer 保存单题答案，同一题以最后一次为准
func (s *AttemptService) SaveAnswer(ctx context.Context, userID uint, quizID string, req model.SaveAnswerRequest) (resp *model.SaveAnswerResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.SaveAnswer",
		attribute.String("quiz.id", quizID),
		attribute.String("question.id", req.QuestionID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	quiz, err := s.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.HasQuestion(req.QuestionID) {
		return nil, util.ErrUnknownQuestion
	}

	attempt, err := s.AttemptRepo.FindInProgress(userID, quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotActive
		}
		return nil, err
	}
	if s.isExpired(quiz, attempt) {
		if _, err := s.finalize(ctx, quiz, attempt, model.EndReasonTimeout); err != nil {
			logger.Log.Error("关闭超时作答失败", zap.String("attemptId", attempt.ID), zap.Error(err))
		}
		return nil, util.ErrAttemptNotActive
	}

	now := s.now()
	answer := &model.QuizAttemptAnswer{
		AttemptID:   attempt.ID,
		QuestionID:  req.QuestionID,
		Answer:      req.Answer,
		LastSavedAt: now,
	}
	if err := s.AttemptRepo.SaveAnswer(answer); err != nil {
		return nil, err
	}

	monitoring.AnswersSaved.Inc()
	return &model.SaveAnswerResponse{
		AttemptID:  attempt.ID,
		QuestionID: req.QuestionID,
		SavedAt:    now,
	}, nil
}

// SubmitAttempt 提交作答。重复提交返回已评分的作答并标记 AlreadySubmitted。
func (s *AttemptService) SubmitAttempt(ctx context.Context, userID uint, quizID, attemptID string) (resp *model.SubmitAttemptResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.SubmitAttempt",
		attribute.String("quiz.id", quizID),
		attribute.String("attempt.id", attemptID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	attempt, err := s.findAttempt(quizID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrPermissionDenied
	}

	quiz, err := s.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	finalized := false
	if !attempt.IsSubmitted() {
		reason := model.EndReasonManual
		if s.isExpired(quiz, attempt) {
			reason = model.EndReasonTimeout
		}
		if finalized, err = s.finalize(ctx, quiz, attempt, reason); err != nil {
			return nil, err
		}
		if !finalized {
			// 被其他请求（或超时清理）抢先提交，重新读取最终状态
			if attempt, err = s.AttemptRepo.FindByID(attemptID); err != nil {
				return nil, err
			}
		}
	}

	used, err := s.AttemptRepo.CountByUserQuiz(userID, quizID)
	if err != nil {
		return nil, err
	}
	view := s.attemptView(quiz, attempt, used)
	view.AlreadySubmitted = !finalized
	return &model.SubmitAttemptResponse{Attempt: view}, nil
}

// finalize 条件更新状态并评分，返回 false 表示已被其他请求提交
func (s *AttemptService) finalize(ctx context.Context, quiz *model.Quiz, attempt *model.QuizAttempt, reason string) (bool, error) {
	scale := s.GradeScale()
	at := s.now()
	ok, err := s.AttemptRepo.Finalize(attempt.ID, reason, at, func(answers []model.QuizAttemptAnswer) (model.AttemptScore, []model.QuizAttemptAnswer) {
		return GradeAnswers(quiz, answers, scale)
	})
	if err != nil || !ok {
		return false, err
	}

	updated, err := s.AttemptRepo.FindByID(attempt.ID)
	if err != nil {
		return true, err
	}
	*attempt = *updated

	monitoring.AttemptsFinalized.WithLabelValues(reason).Inc()
	logger.Log.Info("作答已提交",
		zap.String("attemptId", attempt.ID),
		zap.String("quizId", quiz.ID),
		zap.String("reason", reason),
		zap.Float64("percentage", attempt.Percentage),
		zap.Int("pending", attempt.PendingCount),
	)

	event := AttemptSubmittedEvent{
		AttemptID:     attempt.ID,
		QuizID:        quiz.ID,
		CourseID:      quiz.CourseID,
		UserID:        attempt.UserID,
		AttemptNumber: attempt.AttemptNumber,
		EndReason:     reason,
		Score:         attempt.Score,
		MaxScore:      attempt.MaxScore,
		Percentage:    attempt.Percentage,
		Grade:         attempt.Grade,
		IsPassed:      attempt.IsPassed,
		PendingCount:  attempt.PendingCount,
		SubmittedAt:   at,
	}
	if err := s.Publisher.Publish(ctx, events.AttemptSubmitted, event); err != nil {
		logger.Log.Warn("发布作答事件失败", zap.String("attemptId", attempt.ID), zap.Error(err))
	}
	return true, nil
}

// GetResults 本人或教师/管理员可查看；未开放即时结果时学生只能看到状态
func (s *AttemptService) GetResults(ctx context.Context, userID uint, role model.UserRole, quizID, attemptID string) (resp *model.ResultsResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.GetResults", attribute.String("attempt.id", attemptID))
	defer func() { tracing.EndSpan(span, err) }()

	attempt, err := s.findAttempt(quizID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID && !role.IsStaff() {
		return nil, util.ErrPermissionDenied
	}

	quiz, err := s.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsSubmitted() && s.isExpired(quiz, attempt) {
		if _, err := s.finalize(ctx, quiz, attempt, model.EndReasonTimeout); err != nil {
			return nil, err
		}
	}

	resp = &model.ResultsResponse{
		Quiz: model.QuizSummary{
			ID:                  quiz.ID,
			Title:               quiz.Title,
			PassingScorePercent: quiz.PassingScorePercent,
			ShowCorrectAnswers:  quiz.ShowCorrectAnswers,
			AllowRetake:         quiz.AllowRetake,
			MaxAttempts:         quiz.MaxAttempts,
		},
		Course: model.CourseSummary{ID: quiz.CourseID},
	}
	if course, err := s.CourseRepo.FindByID(quiz.CourseID); err == nil {
		resp.Course.Code = course.Code
		resp.Course.Title = course.Title
	} else {
		logger.Log.Warn("测验所属课程不存在", zap.String("quizId", quiz.ID), zap.Uint("courseId", quiz.CourseID), zap.Error(err))
	}

	result := model.GradedResult{
		AttemptID:     attempt.ID,
		AttemptNumber: attempt.AttemptNumber,
		Status:        attempt.Status,
		EndReason:     attempt.EndReason,
		SubmittedAt:   attempt.SubmittedAt,
	}
	if !attempt.IsSubmitted() || (!quiz.ShowResultsImmediately && !role.IsStaff()) {
		resp.Results = result
		return resp, nil
	}

	answers, err := s.AttemptRepo.ListAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}
	used, err := s.AttemptRepo.CountByUserQuiz(attempt.UserID, quiz.ID)
	if err != nil {
		return nil, err
	}

	result.Released = true
	result.Score = attempt.Score
	result.MaxScore = attempt.MaxScore
	result.Percentage = attempt.Percentage
	result.Grade = attempt.Grade
	result.IsPassed = attempt.IsPassed
	result.CanRetake = CanRetake(quiz, used)
	result.Questions = questionResults(quiz, attempt.ID, answers)

	resp.Results = result
	return resp, nil
}

func questionResults(quiz *model.Quiz, attemptID string, answers []model.QuizAttemptAnswer) []model.QuestionResult {
	byQuestion := make(map[string]model.QuizAttemptAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	questions := orderedQuestions(quiz, attemptID)
	out := make([]model.QuestionResult, 0, len(questions))
	for _, q := range questions {
		qr := model.QuestionResult{
			QuestionID:   q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Options:      studentOptions(q),
			Points:       q.Points,
		}
		if a, ok := byQuestion[q.ID]; ok {
			qr.Answer = a.Answer
			qr.Answered = strings.TrimSpace(a.Answer) != ""
			qr.IsCorrect = a.IsCorrect
			qr.PointsEarned = a.PointsEarned
		}
		if !qr.Answered {
			qr.IsCorrect = boolPtr(false)
			qr.PointsEarned = 0
		}
		if quiz.ShowCorrectAnswers {
			qr.CorrectAnswer = CorrectAnswerText(q)
			if q.Explanation != "" {
				explanation := q.Explanation
				qr.Explanation = &explanation
			}
		}
		out = append(out, qr)
	}
	return out
}

// GetOverview 学生进入测验前查看剩余次数和进行中的作答
func (s *AttemptService) GetOverview(ctx context.Context, userID uint, quizID string) (*model.QuizOverview, error) {
	quiz, err := s.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	// 未发布的测验对学生不可见
	if !quiz.IsPublished {
		return nil, util.ErrQuizNotFound
	}

	used, err := s.AttemptRepo.CountByUserQuiz(userID, quizID)
	if err != nil {
		return nil, err
	}

	overview := &model.QuizOverview{
		Quiz:         StudentQuizFor(quiz, ""),
		AttemptsUsed: used,
		AttemptCap:   quiz.AttemptCap(),
		Available:    quiz.IsAvailableAt(s.now()),
	}
	// 题目内容在开始作答后才下发
	overview.Quiz.Questions = nil

	if attempt, err := s.AttemptRepo.FindInProgress(userID, quizID); err == nil && !s.isExpired(quiz, attempt) {
		overview.InProgressAttempt = attempt.ID
	}
	if attempt, err := s.AttemptRepo.FindLatestSubmitted(userID, quizID); err == nil {
		overview.LastSubmittedID = attempt.ID
	}
	return overview, nil
}

// ListAttempts 教师查看某测验的所有作答
func (s *AttemptService) ListAttempts(ctx context.Context, userID uint, role model.UserRole, quizID string, page, limit int) ([]model.AttemptListRow, int64, error) {
	quiz, err := s.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, 0, err
	}
	if quiz.CreatorID != userID && role != model.Admin {
		return nil, 0, util.ErrPermissionDenied
	}
	return s.AttemptRepo.ListByQuiz(quizID, page, limit)
}

// SweepExpired 将超时仍未提交的作答按超时提交，返回处理数量
func (s *AttemptService) SweepExpired(ctx context.Context) (int, error) {
	attempts, err := s.AttemptRepo.ListTimedInProgress()
	if err != nil {
		return 0, err
	}

	quizzes := make(map[string]*model.Quiz)
	swept := 0
	for i := range attempts {
		attempt := &attempts[i]
		quiz, ok := quizzes[attempt.QuizID]
		if !ok {
			if quiz, err = s.Quizzes.GetQuiz(ctx, attempt.QuizID); err != nil {
				logger.Log.Warn("无法加载测验，跳过超时清理",
					zap.String("attemptId", attempt.ID), zap.Error(err))
				continue
			}
			quizzes[attempt.QuizID] = quiz
		}
		if !s.isExpired(quiz, attempt) {
			continue
		}

		finalized, err := s.finalize(ctx, quiz, attempt, model.EndReasonTimeout)
		if err != nil {
			logger.Log.Error("关闭超时作答失败", zap.String("attemptId", attempt.ID), zap.Error(err))
			continue
		}
		if finalized {
			swept++
		}
	}
	return swept, nil
}

func (s *AttemptService) findAttempt(quizID, attemptID string) (*model.QuizAttempt, error) {
	attempt, err := s.AttemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.QuizID != quizID {
		return nil, util.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptService) isExpired(quiz *model.Quiz, attempt *model.QuizAttempt) bool {
	limit := quiz.TimeLimit()
	return limit > 0 && s.now().Sub(attempt.StartedAt) >= limit
}

// remainingSeconds 按开始时间计算剩余秒数，不限时返回 nil
func (s *AttemptService) remainingSeconds(quiz *model.Quiz, attempt *model.QuizAttempt) *int {
	limit := quiz.TimeLimit()
	if limit == 0 {
		return nil
	}
	remaining := limit - s.now().Sub(attempt.StartedAt)
	if remaining < 0 || attempt.IsSubmitted() {
		remaining = 0
	}
	secs := int(remaining / time.Second)
	return &secs
}

func (s *AttemptService) attemptView(quiz *model.Quiz, attempt *model.QuizAttempt, attemptsUsed int) model.AttemptView {
	view := model.AttemptView{
		ID:                   attempt.ID,
		QuizID:               attempt.QuizID,
		UserID:               attempt.UserID,
		AttemptNumber:        attempt.AttemptNumber,
		Status:               attempt.Status,
		StartedAt:            attempt.StartedAt,
		SubmittedAt:          attempt.SubmittedAt,
		EndReason:            attempt.EndReason,
		TimeRemainingSeconds: s.remainingSeconds(quiz, attempt),
	}
	if attempt.IsSubmitted() {
		view.Score = attempt.Score
		view.MaxScore = attempt.MaxScore
		view.Percentage = attempt.Percentage
		view.Grade = attempt.Grade
		view.IsPassed = attempt.IsPassed
		view.PendingCount = attempt.PendingCount
		view.CanRetake = CanRetake(quiz, attemptsUsed)
	}
	return view
}
