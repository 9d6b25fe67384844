package model

import "time"

// 以下为测验接口的请求/响应结构，服务端与 quiztaker 客户端共用

// 响应中的 reason 字段，客户端据此区分错误类型
const (
	ReasonQuizUnavailable      = "quiz_unavailable"
	ReasonAttemptLimitExceeded = "attempt_limit_exceeded"
	ReasonAttemptNotActive     = "attempt_not_active"
	ReasonUnknownQuestion      = "unknown_question"
	ReasonNotFound             = "not_found"
	ReasonValidation           = "validation"
	ReasonTokenInvalid         = "token_invalid"
)

// StudentOption 不包含正确性标记
type StudentOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type StudentQuestion struct {
	ID           string          `json:"id"`
	QuestionText string          `json:"questionText"`
	QuestionType string          `json:"questionType"`
	Options      []StudentOption `json:"options,omitempty"`
	Points       float64         `json:"points"`
	Order        int             `json:"order"`
}

type StudentQuiz struct {
	ID                     string            `json:"id"`
	CourseID               uint              `json:"courseId"`
	Title                  string            `json:"title"`
	Description            string            `json:"description"`
	TimeLimitSeconds       *int              `json:"timeLimitSeconds"`
	MaxAttempts            int               `json:"maxAttempts"`
	PassingScorePercent    float64           `json:"passingScorePercent"`
	AllowRetake            bool              `json:"allowRetake"`
	RandomizeQuestions     bool              `json:"randomizeQuestions"`
	ShowCorrectAnswers     bool              `json:"showCorrectAnswers"`
	ShowResultsImmediately bool              `json:"showResultsImmediately"`
	Questions              []StudentQuestion `json:"questions"`
}

func (q *StudentQuiz) QuestionIDs() []string {
	ids := make([]string, len(q.Questions))
	for i, question := range q.Questions {
		ids[i] = question.ID
	}
	return ids
}

// AttemptView Answers 为 nil 表示新建的作答；恢复作答时为已保存答案（可能为空 map）
type AttemptView struct {
	ID                   string            `json:"id"`
	QuizID               string            `json:"quizId"`
	UserID               uint              `json:"userId"`
	AttemptNumber        int               `json:"attemptNumber"`
	Status               string            `json:"status"`
	StartedAt            time.Time         `json:"startedAt"`
	SubmittedAt          *time.Time        `json:"submittedAt,omitempty"`
	EndReason            string            `json:"endReason,omitempty"`
	TimeRemainingSeconds *int              `json:"timeRemainingSeconds"`
	Answers              map[string]string `json:"answers"`
	Resumed              bool              `json:"resumed"`

	Score            float64 `json:"score"`
	MaxScore         float64 `json:"maxScore"`
	Percentage       float64 `json:"percentage"`
	Grade            string  `json:"grade,omitempty"`
	IsPassed         bool    `json:"isPassed"`
	PendingCount     int     `json:"pendingCount"`
	CanRetake        bool    `json:"canRetake"`
	AlreadySubmitted bool    `json:"alreadySubmitted,omitempty"`
}

type StartAttemptResponse struct {
	Attempt       AttemptView `json:"attempt"`
	Quiz          StudentQuiz `json:"quiz"`
	TimeRemaining *int        `json:"timeRemaining"`
}

type SaveAnswerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Answer     string `json:"answer"`
}

type SaveAnswerResponse struct {
	AttemptID  string    `json:"attemptId"`
	QuestionID string    `json:"questionId"`
	SavedAt    time.Time `json:"savedAt"`
}

type SubmitAttemptRequest struct {
	AttemptID string `json:"attemptId" binding:"required"`
}

type SubmitAttemptResponse struct {
	Attempt AttemptView `json:"attempt"`
}

// QuestionResult IsCorrect 为 nil 表示待人工评分，不能视为错误
type QuestionResult struct {
	QuestionID    string          `json:"questionId"`
	QuestionText  string          `json:"questionText"`
	QuestionType  string          `json:"questionType"`
	Options       []StudentOption `json:"options,omitempty"`
	Answer        string          `json:"answer"`
	Answered      bool            `json:"answered"`
	IsCorrect     *bool           `json:"isCorrect"`
	PointsEarned  float64         `json:"pointsEarned"`
	Points        float64         `json:"points"`
	CorrectAnswer *string         `json:"correctAnswer,omitempty"`
	Explanation   *string         `json:"explanation,omitempty"`
}

type GradedResult struct {
	AttemptID     string           `json:"attemptId"`
	AttemptNumber int              `json:"attemptNumber"`
	Status        string           `json:"status"`
	Released      bool             `json:"released"`
	EndReason     string           `json:"endReason,omitempty"`
	SubmittedAt   *time.Time       `json:"submittedAt,omitempty"`
	Score         float64          `json:"score"`
	MaxScore      float64          `json:"maxScore"`
	Percentage    float64          `json:"percentage"`
	Grade         string           `json:"grade"`
	IsPassed      bool             `json:"isPassed"`
	CanRetake     bool             `json:"canRetake"`
	Questions     []QuestionResult `json:"questions,omitempty"`
}

type QuizSummary struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	PassingScorePercent float64 `json:"passingScorePercent"`
	ShowCorrectAnswers  bool    `json:"showCorrectAnswers"`
	AllowRetake         bool    `json:"allowRetake"`
	MaxAttempts         int     `json:"maxAttempts"`
}

type CourseSummary struct {
	ID    uint   `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

type ResultsResponse struct {
	Results GradedResult  `json:"results"`
	Quiz    QuizSummary   `json:"quiz"`
	Course  CourseSummary `json:"course"`
}

// QuizOverview 学生进入测验前的概览
type QuizOverview struct {
	Quiz              StudentQuiz `json:"quiz"`
	AttemptsUsed      int         `json:"attemptsUsed"`
	AttemptCap        int         `json:"attemptCap"` // 0 表示不限
	InProgressAttempt string      `json:"inProgressAttemptId,omitempty"`
	Available         bool        `json:"available"`
	LastSubmittedID   string      `json:"lastSubmittedAttemptId,omitempty"`
}

// AttemptListRow 教师查看作答记录
type AttemptListRow struct {
	QuizAttempt
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}
