package repository

import (
	"errors"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/util"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GradeFunc 在提交事务内根据已保存的答案计算成绩，返回带评分结果的答案行
type GradeFunc func(answers []model.QuizAttemptAnswer) (model.AttemptScore, []model.QuizAttemptAnswer)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// Create 同一用户同一测验的 attempt_number 唯一，冲突时返回 ErrAttemptNumberConflict
func (r *AttemptRepository) Create(attempt *model.QuizAttempt) error {
	err := r.DB.Create(attempt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return util.ErrAttemptNumberConflict
	}
	return err
}

func (r *AttemptRepository) FindByID(id string) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.First(&attempt, "id = ?", id).Error
	return &attempt, err
}

func (r *AttemptRepository) FindInProgress(userID uint, quizID string) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.
		Where("user_id = ? AND quiz_id = ? AND status = ?", userID, quizID, model.AttemptInProgress).
		Order("attempt_number desc").
		First(&attempt).Error
	return &attempt, err
}

func (r *AttemptRepository) FindLatestSubmitted(userID uint, quizID string) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.
		Where("user_id = ? AND quiz_id = ? AND status = ?", userID, quizID, model.AttemptSubmitted).
		Order("attempt_number desc").
		First(&attempt).Error
	return &attempt, err
}

func (r *AttemptRepository) CountByUserQuiz(userID uint, quizID string) (int, error) {
	var count int64
	err := r.DB.Model(&model.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Count(&count).Error
	return int(count), err
}

func (r *AttemptRepository) ListAnswers(attemptID string) ([]model.QuizAttemptAnswer, error) {
	var answers []model.QuizAttemptAnswer
	err := r.DB.Where("attempt_id = ?", attemptID).Find(&answers).Error
	return answers, err
}

// SaveAnswer 锁定作答行后按 (attempt, question) 覆盖写入；已提交的作答返回 ErrAttemptNotActive
func (r *AttemptRepository) SaveAnswer(answer *model.QuizAttemptAnswer) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var attempt model.QuizAttempt
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&attempt, "id = ?", answer.AttemptID).Error; err != nil {
			return err
		}
		if attempt.Status != model.AttemptInProgress {
			return util.ErrAttemptNotActive
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"answer", "last_saved_at", "updated_at"}),
		}).Create(answer).Error
	})
}

// Finalize 仅当状态仍为 in_progress 时提交并评分。
// 返回 false 表示已被其他请求提交，此时不做任何修改。
func (r *AttemptRepository) Finalize(attemptID, reason string, at time.Time, grade GradeFunc) (bool, error) {
	finalized := false
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.QuizAttempt{}).
			Where("id = ? AND status = ?", attemptID, model.AttemptInProgress).
			Updates(map[string]interface{}{
				"status":       model.AttemptSubmitted,
				"submitted_at": at,
				"end_reason":   reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var answers []model.QuizAttemptAnswer
		if err := tx.Where("attempt_id = ?", attemptID).Find(&answers).Error; err != nil {
			return err
		}

		score, graded := grade(answers)
		for _, a := range graded {
			if err := tx.Model(&model.QuizAttemptAnswer{}).
				Where("id = ?", a.ID).
				Updates(map[string]interface{}{
					"is_correct":    a.IsCorrect,
					"points_earned": a.PointsEarned,
				}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&model.QuizAttempt{}).
			Where("id = ?", attemptID).
			Updates(map[string]interface{}{
				"score":         score.Score,
				"max_score":     score.MaxScore,
				"percentage":    score.Percentage,
				"grade":         score.Grade,
				"is_passed":     score.IsPassed,
				"pending_count": score.PendingCount,
			}).Error; err != nil {
			return err
		}

		finalized = true
		return nil
	})
	return finalized, err
}

// ListTimedInProgress 返回所有限时测验中仍在进行的作答，由调用方判断是否超时
func (r *AttemptRepository) ListTimedInProgress() ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.Table("quiz_attempts a").
		Select("a.*").
		Joins("JOIN quizzes q ON q.id = a.quiz_id").
		Where("a.status = ? AND q.time_limit_seconds > 0", model.AttemptInProgress).
		Scan(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListByQuiz(quizID string, page, limit int) ([]model.AttemptListRow, int64, error) {
	var total int64
	query := r.DB.Table("quiz_attempts a").
		Joins("JOIN users u ON a.user_id = u.id").
		Where("a.quiz_id = ?", quizID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []model.AttemptListRow
	offset := (page - 1) * limit
	err := query.Select("a.*, u.name as user_name, u.email as user_email").
		Order("a.started_at desc").
		Offset(offset).Limit(limit).
		Scan(&rows).Error
	return rows, total, err
}
