package service

import (
	"lms_quiz_backend/internal/config"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/util"
	"sort"
	"strings"
)

// GradeAnswers 对一次作答自动评分。未作答的题目计为错误、0 分；
// 无参考答案的简答题和论述题计为待人工评分（IsCorrect 为 nil）。
func GradeAnswers(quiz *model.Quiz, answers []model.QuizAttemptAnswer, scale []config.GradeBand) (model.AttemptScore, []model.QuizAttemptAnswer) {
	byQuestion := make(map[string]int, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = i
	}

	var score model.AttemptScore
	graded := make([]model.QuizAttemptAnswer, 0, len(answers))
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		score.MaxScore += q.Points

		idx, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		a := answers[idx]
		a.IsCorrect, a.PointsEarned = GradeQuestion(q, a.Answer)
		if a.IsCorrect == nil {
			score.PendingCount++
		}
		score.Score += a.PointsEarned
		graded = append(graded, a)
	}

	score.Score = util.Round2(score.Score)
	if score.MaxScore > 0 {
		score.Percentage = util.Round2(score.Score / score.MaxScore * 100)
	}
	score.IsPassed = score.Percentage >= quiz.PassingScorePercent
	score.Grade = LetterGrade(score.Percentage, scale)
	return score, graded
}

// GradeQuestion 返回单题的对错及得分
func GradeQuestion(q *model.QuizQuestion, answer string) (*bool, float64) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return boolPtr(false), 0
	}

	var correct bool
	switch q.QuestionType {
	case model.QuestionMultipleChoice, model.QuestionTrueFalse:
		opt := matchOption(q, answer)
		correct = opt != nil && opt.IsCorrect
	case model.QuestionFillBlank:
		correct = matchAccepted(q.AcceptedAnswerList(), answer)
	case model.QuestionShortAnswer:
		accepted := q.AcceptedAnswerList()
		if len(accepted) == 0 {
			return nil, 0
		}
		correct = matchAccepted(accepted, answer)
	case model.QuestionEssay:
		return nil, 0
	}

	if correct {
		return boolPtr(true), q.Points
	}
	return boolPtr(false), 0
}

// 选项既可以按 id 提交，也可以按文本提交（不区分大小写）
func matchOption(q *model.QuizQuestion, answer string) *model.QuizOption {
	for i := range q.Options {
		if q.Options[i].ID == answer {
			return &q.Options[i]
		}
	}
	for i := range q.Options {
		if strings.EqualFold(strings.TrimSpace(q.Options[i].Text), answer) {
			return &q.Options[i]
		}
	}
	return nil
}

func matchAccepted(accepted []string, answer string) bool {
	for _, a := range accepted {
		if strings.EqualFold(a, answer) {
			return true
		}
	}
	return false
}

// LetterGrade 按分数线从高到低匹配，低于所有分数线时返回最低等级
func LetterGrade(percentage float64, scale []config.GradeBand) string {
	if len(scale) == 0 {
		scale = config.DefaultGradeScale()
	}
	bands := make([]config.GradeBand, len(scale))
	copy(bands, scale)
	sort.SliceStable(bands, func(i, j int) bool {
		return bands[i].MinPercent > bands[j].MinPercent
	})

	for _, b := range bands {
		if percentage >= b.MinPercent {
			return b.Letter
		}
	}
	return bands[len(bands)-1].Letter
}

// CanRetake 已用次数包含当前这次
func CanRetake(quiz *model.Quiz, attemptsUsed int) bool {
	if !quiz.AllowRetake {
		return false
	}
	return quiz.MaxAttempts <= 0 || attemptsUsed < quiz.MaxAttempts
}

// CorrectAnswerText 用于结果页展示参考答案，论述题没有参考答案
func CorrectAnswerText(q *model.QuizQuestion) *string {
	var parts []string
	switch {
	case model.IsChoiceType(q.QuestionType):
		for _, o := range q.Options {
			if o.IsCorrect {
				parts = append(parts, o.Text)
			}
		}
	default:
		parts = q.AcceptedAnswerList()
	}
	if len(parts) == 0 {
		return nil
	}
	text := strings.Join(parts, " / ")
	return &text
}

func boolPtr(b bool) *bool {
	return &b
}
