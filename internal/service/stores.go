package service

import (
	"context"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/repository"
	"time"
)

// 以下接口由 internal/repository 实现，测试中使用内存实现替换

type UserStore interface {
	Create(user *model.User) error
	FindByID(id uint) (*model.User, error)
	FindByEmail(email string) (*model.User, error)
	UpdateLastLogin(userID uint, at time.Time) error
}

type CourseStore interface {
	Create(course *model.Course) error
	FindByID(id uint) (*model.Course, error)
	FindByCode(code string) (*model.Course, error)
	ListByTeacher(teacherID uint) ([]model.Course, error)
}

type QuizStore interface {
	Create(quiz *model.Quiz) error
	FindByID(id string) (*model.Quiz, error)
	UpdateSettings(quiz *model.Quiz) error
	ListByCourse(courseID uint) ([]model.Quiz, error)
}

type AttemptStore interface {
	Create(attempt *model.QuizAttempt) error
	FindByID(id string) (*model.QuizAttempt, error)
	FindInProgress(userID uint, quizID string) (*model.QuizAttempt, error)
	FindLatestSubmitted(userID uint, quizID string) (*model.QuizAttempt, error)
	CountByUserQuiz(userID uint, quizID string) (int, error)
	ListAnswers(attemptID string) ([]model.QuizAttemptAnswer, error)
	SaveAnswer(answer *model.QuizAttemptAnswer) error
	Finalize(attemptID, reason string, at time.Time, grade repository.GradeFunc) (bool, error)
	ListTimedInProgress() ([]model.QuizAttempt, error)
	ListByQuiz(quizID string, page, limit int) ([]model.AttemptListRow, int64, error)
}

// QuizLoader 由 QuizService 实现（带缓存）
type QuizLoader interface {
	GetQuiz(ctx context.Context, id string) (*model.Quiz, error)
}
