package model

import "time"

const (
	AttemptInProgress = "in_progress"
	AttemptSubmitted  = "submitted"
)

const (
	EndReasonManual  = "manual"
	EndReasonTimeout = "timeout"
)

// swagger:model QuizAttempt
type QuizAttempt struct {
	UUIDBase
	QuizID        string     `gorm:"type:varchar(36);uniqueIndex:idx_attempt_user_quiz_number,priority:2" json:"quizId"`
	UserID        uint       `gorm:"uniqueIndex:idx_attempt_user_quiz_number,priority:1" json:"userId"`
	AttemptNumber int        `gorm:"uniqueIndex:idx_attempt_user_quiz_number,priority:3" json:"attemptNumber"`
	Status        string     `gorm:"size:20;default:'in_progress';index" json:"status"`
	StartedAt     time.Time  `json:"startedAt"`
	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`
	EndReason     string     `gorm:"size:20" json:"endReason,omitempty"`
	AttemptScore
}

// AttemptScore 提交时写入的成绩汇总
type AttemptScore struct {
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"maxScore"`
	Percentage   float64 `json:"percentage"`
	Grade        string  `gorm:"size:5" json:"grade"`
	IsPassed     bool    `json:"isPassed"`
	PendingCount int     `json:"pendingCount"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

func (a *QuizAttempt) IsSubmitted() bool {
	return a.Status == AttemptSubmitted
}

// QuizAttemptAnswer 每题一行，同一题重复保存时覆盖（以最后一次为准）
type QuizAttemptAnswer struct {
	UUIDBase
	AttemptID    string    `gorm:"type:varchar(36);uniqueIndex:idx_answer_attempt_question,priority:1" json:"attemptId"`
	QuestionID   string    `gorm:"type:varchar(36);uniqueIndex:idx_answer_attempt_question,priority:2" json:"questionId"`
	Answer       string    `gorm:"type:text" json:"answer"`
	LastSavedAt  time.Time `json:"lastSavedAt"`
	IsCorrect    *bool     `json:"isCorrect"` // nil 表示待人工评分
	PointsEarned float64   `json:"pointsEarned"`
}

func (QuizAttemptAnswer) TableName() string {
	return "quiz_attempt_answers"
}
