package service

import (
	"context"
	"errors"
	"fmt"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/repository"
	"lms_quiz_backend/internal/util"
	"lms_quiz_backend/pkg/logger"
	"lms_quiz_backend/pkg/tracing"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateCourseRequest struct {
	Code        string `json:"code" binding:"required,max=50"`
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description"`
}

type QuizOptionReq struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

type QuizQuestionReq struct {
	QuestionText    string          `json:"questionText" binding:"required"`
	QuestionType    string          `json:"questionType" binding:"required"`
	Points          float64         `json:"points"`
	Explanation     string          `json:"explanation"`
	AcceptedAnswers []string        `json:"acceptedAnswers"`
	Options         []QuizOptionReq `json:"options"`
}

type CreateQuizRequest struct {
	CourseID               uint              `json:"courseId" binding:"required"`
	Title                  string            `json:"title" binding:"required,max=255"`
	Description            string            `json:"description"`
	TimeLimitSeconds       *int              `json:"timeLimitSeconds"`
	MaxAttempts            int               `json:"maxAttempts"`
	PassingScorePercent    *float64          `json:"passingScorePercent"`
	AllowRetake            bool              `json:"allowRetake"`
	RandomizeQuestions     bool              `json:"randomizeQuestions"`
	ShowCorrectAnswers     bool              `json:"showCorrectAnswers"`
	ShowResultsImmediately *bool             `json:"showResultsImmediately"`
	IsPublished            bool              `json:"isPublished"`
	AvailableFrom          *time.Time        `json:"availableFrom"`
	AvailableTo            *time.Time        `json:"availableTo"`
	Questions              []QuizQuestionReq `json:"questions" binding:"required,min=1,dive"`
}

// UpdateQuizRequest 只更新非空字段
type UpdateQuizRequest struct {
	Title                  *string    `json:"title"`
	Description            *string    `json:"description"`
	TimeLimitSeconds       *int       `json:"timeLimitSeconds"`
	ClearTimeLimit         bool       `json:"clearTimeLimit"`
	MaxAttempts            *int       `json:"maxAttempts"`
	PassingScorePercent    *float64   `json:"passingScorePercent"`
	AllowRetake            *bool      `json:"allowRetake"`
	RandomizeQuestions     *bool      `json:"randomizeQuestions"`
	ShowCorrectAnswers     *bool      `json:"showCorrectAnswers"`
	ShowResultsImmediately *bool      `json:"showResultsImmediately"`
	IsActive               *bool      `json:"isActive"`
	IsPublished            *bool      `json:"isPublished"`
	AvailableFrom          *time.Time `json:"availableFrom"`
	AvailableTo            *time.Time `json:"availableTo"`
}

type QuizService struct {
	QuizRepo   QuizStore
	CourseRepo CourseStore
	Cache      *repository.QuizCache
}

func NewQuizService(quizRepo QuizStore, courseRepo CourseStore, cache *repository.QuizCache) *QuizService {
	return &QuizService{
		QuizRepo:   quizRepo,
		CourseRepo: courseRepo,
		Cache:      cache,
	}
}

// GetQuiz 先查缓存，未命中时从数据库加载并回填
func (s *QuizService) GetQuiz(ctx context.Context, id string) (*model.Quiz, error) {
	if quiz, ok := s.Cache.Get(ctx, id); ok {
		return quiz, nil
	}

	quiz, err := s.QuizRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}
	s.Cache.Set(ctx, quiz)
	return quiz, nil
}

func (s *QuizService) GetCourse(id uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCourseNotFound
	}
	return course, err
}

func (s *QuizService) CreateCourse(teacherID uint, req CreateCourseRequest) (*model.Course, error) {
	code := strings.TrimSpace(req.Code)
	if _, err := s.CourseRepo.FindByCode(code); err == nil {
		return nil, util.ErrCourseCodeTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	course := &model.Course{
		Code:        code,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		TeacherID:   teacherID,
		IsActive:    true,
	}
	if err := s.CourseRepo.Create(course); err != nil {
		return nil, err
	}
	return course, nil
}

// ListCourses 教师名下的课程
func (s *QuizService) ListCourses(teacherID uint) ([]model.Course, error) {
	return s.CourseRepo.ListByTeacher(teacherID)
}

// ListCourseQuizzes 仅课程教师和管理员可查看课程下的测验
func (s *QuizService) ListCourseQuizzes(userID uint, role model.UserRole, courseID uint) ([]model.Quiz, error) {
	course, err := s.GetCourse(courseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != userID && role != model.Admin {
		return nil, util.ErrPermissionDenied
	}
	return s.QuizRepo.ListByCourse(courseID)
}

func (s *QuizService) CreateQuiz(ctx context.Context, creatorID uint, role model.UserRole, req CreateQuizRequest) (quiz *model.Quiz, err error) {
	_, span := tracing.StartSpan(ctx, "QuizService.CreateQuiz", attribute.Int("quiz.questions", len(req.Questions)))
	defer func() { tracing.EndSpan(span, err) }()

	course, err := s.GetCourse(req.CourseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != creatorID && role != model.Admin {
		return nil, util.ErrPermissionDenied
	}
	if err := validateQuizRequest(req); err != nil {
		return nil, err
	}

	quiz = &model.Quiz{
		CourseID:               req.CourseID,
		CreatorID:              creatorID,
		Title:                  strings.TrimSpace(req.Title),
		Description:            req.Description,
		TimeLimitSeconds:       req.TimeLimitSeconds,
		MaxAttempts:            req.MaxAttempts,
		PassingScorePercent:    60,
		AllowRetake:            req.AllowRetake,
		RandomizeQuestions:     req.RandomizeQuestions,
		ShowCorrectAnswers:     req.ShowCorrectAnswers,
		ShowResultsImmediately: true,
		IsActive:               true,
		IsPublished:            req.IsPublished,
		AvailableFrom:          req.AvailableFrom,
		AvailableTo:            req.AvailableTo,
	}
	if req.PassingScorePercent != nil {
		quiz.PassingScorePercent = *req.PassingScorePercent
	}
	if req.ShowResultsImmediately != nil {
		quiz.ShowResultsImmediately = *req.ShowResultsImmediately
	}

	// 预先生成 id，外键在写入前即可确定
	quiz.ID = model.NewID()
	for i, qr := range req.Questions {
		question := model.QuizQuestion{
			QuizID:          quiz.ID,
			QuestionText:    qr.QuestionText,
			QuestionType:    qr.QuestionType,
			Points:          qr.Points,
			Explanation:     qr.Explanation,
			AcceptedAnswers: strings.Join(qr.AcceptedAnswers, "|"),
			Order:           i + 1,
		}
		question.ID = model.NewID()
		if question.Points <= 0 {
			question.Points = 1
		}
		for j, opt := range qr.Options {
			option := model.QuizOption{
				QuestionID: question.ID,
				Text:       opt.Text,
				IsCorrect:  opt.IsCorrect,
				Order:      j + 1,
			}
			option.ID = model.NewID()
			question.Options = append(question.Options, option)
		}
		quiz.Questions = append(quiz.Questions, question)
	}

	if err := s.QuizRepo.Create(quiz); err != nil {
		return nil, err
	}

	logger.Log.Info("测验创建成功",
		zap.String("quizId", quiz.ID),
		zap.Uint("courseId", quiz.CourseID),
		zap.Int("questions", len(quiz.Questions)),
	)
	return quiz, nil
}

func validateQuizRequest(req CreateQuizRequest) error {
	if req.TimeLimitSeconds != nil && *req.TimeLimitSeconds <= 0 {
		return fmt.Errorf("%w: timeLimitSeconds must be positive", util.ErrInvalidQuiz)
	}
	if req.PassingScorePercent != nil && (*req.PassingScorePercent < 0 || *req.PassingScorePercent > 100) {
		return fmt.Errorf("%w: passingScorePercent must be within 0-100", util.ErrInvalidQuiz)
	}
	if req.AvailableFrom != nil && req.AvailableTo != nil && req.AvailableTo.Before(*req.AvailableFrom) {
		return fmt.Errorf("%w: availableTo is before availableFrom", util.ErrInvalidQuiz)
	}

	for i, q := range req.Questions {
		if !model.IsValidQuestionType(q.QuestionType) {
			return fmt.Errorf("%w: question %d has unknown type %q", util.ErrInvalidQuiz, i+1, q.QuestionType)
		}
		if model.IsChoiceType(q.QuestionType) {
			if len(q.Options) < 2 {
				return fmt.Errorf("%w: question %d needs at least two options", util.ErrInvalidQuiz, i+1)
			}
			correct := 0
			for _, o := range q.Options {
				if o.IsCorrect {
					correct++
				}
			}
			if correct == 0 {
				return fmt.Errorf("%w: question %d has no correct option", util.ErrInvalidQuiz, i+1)
			}
		}
		if q.QuestionType == model.QuestionFillBlank && len(q.AcceptedAnswers) == 0 {
			return fmt.Errorf("%w: question %d needs accepted answers", util.ErrInvalidQuiz, i+1)
		}
	}
	return nil
}

func (s *QuizService) UpdateQuiz(ctx context.Context, userID uint, role model.UserRole, quizID string, req UpdateQuizRequest) (*model.Quiz, error) {
	quiz, err := s.QuizRepo.FindByID(quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}
	if quiz.CreatorID != userID && role != model.Admin {
		return nil, util.ErrPermissionDenied
	}

	if req.Title != nil {
		quiz.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		quiz.Description = *req.Description
	}
	if req.ClearTimeLimit {
		quiz.TimeLimitSeconds = nil
	} else if req.TimeLimitSeconds != nil {
		if *req.TimeLimitSeconds <= 0 {
			return nil, fmt.Errorf("%w: timeLimitSeconds must be positive", util.ErrInvalidQuiz)
		}
		quiz.TimeLimitSeconds = req.TimeLimitSeconds
	}
	if req.MaxAttempts != nil {
		quiz.MaxAttempts = *req.MaxAttempts
	}
	if req.PassingScorePercent != nil {
		if *req.PassingScorePercent < 0 || *req.PassingScorePercent > 100 {
			return nil, fmt.Errorf("%w: passingScorePercent must be within 0-100", util.ErrInvalidQuiz)
		}
		quiz.PassingScorePercent = *req.PassingScorePercent
	}
	if req.AllowRetake != nil {
		quiz.AllowRetake = *req.AllowRetake
	}
	if req.RandomizeQuestions != nil {
		quiz.RandomizeQuestions = *req.RandomizeQuestions
	}
	if req.ShowCorrectAnswers != nil {
		quiz.ShowCorrectAnswers = *req.ShowCorrectAnswers
	}
	if req.ShowResultsImmediately != nil {
		quiz.ShowResultsImmediately = *req.ShowResultsImmediately
	}
	if req.IsActive != nil {
		quiz.IsActive = *req.IsActive
	}
	if req.IsPublished != nil {
		quiz.IsPublished = *req.IsPublished
	}
	if req.AvailableFrom != nil {
		quiz.AvailableFrom = req.AvailableFrom
	}
	if req.AvailableTo != nil {
		quiz.AvailableTo = req.AvailableTo
	}

	if err := s.QuizRepo.UpdateSettings(quiz); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, quiz.ID)
	return quiz, nil
}
