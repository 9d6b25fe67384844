package repository

import (
	"lms_quiz_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

// "order" 是保留字，交给方言自行加引号
var byOrder = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Name: "order"}},
	{Column: clause.Column{Name: "created_at"}},
}}

// Create 题目和选项随测验一起写入
func (r *QuizRepository) Create(quiz *model.Quiz) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Create(quiz).Error
	})
}

// FindByID 加载测验及按顺序排列的题目与选项
func (r *QuizRepository) FindByID(id string) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Clauses(byOrder)
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Clauses(byOrder)
		}).
		First(&quiz, "id = ?", id).Error
	return &quiz, err
}

// UpdateSettings 只更新测验设置，不触碰题目
func (r *QuizRepository) UpdateSettings(quiz *model.Quiz) error {
	return r.DB.Model(quiz).
		Select(
			"title", "description", "time_limit_seconds", "max_attempts",
			"passing_score_percent", "allow_retake", "randomize_questions",
			"show_correct_answers", "show_results_immediately",
			"is_active", "is_published", "available_from", "available_to",
		).
		Updates(quiz).Error
}

func (r *QuizRepository) ListByCourse(courseID uint) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	err := r.DB.Where("course_id = ?", courseID).Order("created_at desc").Find(&quizzes).Error
	return quizzes, err
}
