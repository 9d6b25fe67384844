package model

import (
	"strings"
	"time"
)

const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionTrueFalse      = "true_false"
	QuestionShortAnswer    = "short_answer"
	QuestionEssay          = "essay"
	QuestionFillBlank      = "fill_blank"
)

// IsChoiceType 选择类题目必须在评分时得出对错
func IsChoiceType(questionType string) bool {
	return questionType == QuestionMultipleChoice || questionType == QuestionTrueFalse
}

func IsValidQuestionType(questionType string) bool {
	switch questionType {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer, QuestionEssay, QuestionFillBlank:
		return true
	}
	return false
}

// Quiz 设置字段的零值都有含义，不能加 gorm default 标签。
// TimeLimitSeconds 为 nil 表示不限时；MaxAttempts <= 0 表示不限次数。
//
// swagger:model Quiz
type Quiz struct {
	UUIDBase
	CourseID               uint       `gorm:"index" json:"courseId"`
	CreatorID              uint       `gorm:"index" json:"creatorId"`
	Title                  string     `gorm:"size:255;not null" json:"title"`
	Description            string     `gorm:"type:text" json:"description"`
	TimeLimitSeconds       *int       `json:"timeLimitSeconds,omitempty"`
	MaxAttempts            int        `json:"maxAttempts"`
	PassingScorePercent    float64    `json:"passingScorePercent"`
	AllowRetake            bool       `json:"allowRetake"`
	RandomizeQuestions     bool       `json:"randomizeQuestions"`
	ShowCorrectAnswers     bool       `json:"showCorrectAnswers"`
	ShowResultsImmediately bool       `json:"showResultsImmediately"`
	IsActive               bool       `json:"isActive"`
	IsPublished            bool       `json:"isPublished"`
	AvailableFrom          *time.Time `json:"availableFrom,omitempty"`
	AvailableTo            *time.Time `json:"availableTo,omitempty"`

	Questions []QuizQuestion `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// TimeLimit 不限时返回 0
func (q *Quiz) TimeLimit() time.Duration {
	if q.TimeLimitSeconds == nil || *q.TimeLimitSeconds <= 0 {
		return 0
	}
	return time.Duration(*q.TimeLimitSeconds) * time.Second
}

// AttemptCap 不允许重做时固定为 1；0 表示不限
func (q *Quiz) AttemptCap() int {
	if !q.AllowRetake {
		return 1
	}
	if q.MaxAttempts <= 0 {
		return 0
	}
	return q.MaxAttempts
}

// IsAvailableAt 检查启用、发布状态及开放时间窗口
func (q *Quiz) IsAvailableAt(now time.Time) bool {
	if !q.IsActive || !q.IsPublished {
		return false
	}
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableTo != nil && now.After(*q.AvailableTo) {
		return false
	}
	return true
}

func (q *Quiz) HasQuestion(questionID string) bool {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return true
		}
	}
	return false
}

// swagger:model QuizQuestion
type QuizQuestion struct {
	UUIDBase
	QuizID       string  `gorm:"index;type:varchar(36)" json:"quizId"`
	QuestionText string  `gorm:"type:text;not null" json:"questionText"`
	QuestionType string  `gorm:"size:50;not null" json:"questionType"`
	Points       float64 `json:"points"`
	Explanation  string  `gorm:"type:text" json:"explanation"`
	// 填空/简答的参考答案，多个用 | 分隔；简答为空时需人工评分
	AcceptedAnswers string `gorm:"type:text" json:"acceptedAnswers"`
	Order           int    `json:"order"`

	Options []QuizOption `gorm:"foreignKey:QuestionID" json:"options,omitempty"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

func (q *QuizQuestion) AcceptedAnswerList() []string {
	if strings.TrimSpace(q.AcceptedAnswers) == "" {
		return nil
	}
	parts := strings.Split(q.AcceptedAnswers, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// swagger:model QuizOption
type QuizOption struct {
	UUIDBase
	QuestionID string `gorm:"index;type:varchar(36)" json:"questionId"`
	Text       string `gorm:"type:text;not null" json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
	Order      int    `json:"order"`
}

func (QuizOption) TableName() string {
	return "quiz_options"
}
