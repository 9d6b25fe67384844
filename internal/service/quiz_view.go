package service

import (
	"hash/fnv"
	"lms_quiz_backend/internal/model"
	"math/rand"
)

// StudentQuizFor 生成不含正确性信息的测验内容。
// 开启随机顺序时以作答 id 作为种子，恢复作答时顺序不变。
func StudentQuizFor(quiz *model.Quiz, attemptID string) model.StudentQuiz {
	view := model.StudentQuiz{
		ID:                     quiz.ID,
		CourseID:               quiz.CourseID,
		Title:                  quiz.Title,
		Description:            quiz.Description,
		TimeLimitSeconds:       quiz.TimeLimitSeconds,
		MaxAttempts:            quiz.MaxAttempts,
		PassingScorePercent:    quiz.PassingScorePercent,
		AllowRetake:            quiz.AllowRetake,
		RandomizeQuestions:     quiz.RandomizeQuestions,
		ShowCorrectAnswers:     quiz.ShowCorrectAnswers,
		ShowResultsImmediately: quiz.ShowResultsImmediately,
		Questions:              make([]model.StudentQuestion, 0, len(quiz.Questions)),
	}

	for _, q := range orderedQuestions(quiz, attemptID) {
		view.Questions = append(view.Questions, model.StudentQuestion{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Options:      studentOptions(q),
			Points:       q.Points,
			Order:        q.Order,
		})
	}
	return view
}

func studentOptions(q *model.QuizQuestion) []model.StudentOption {
	if len(q.Options) == 0 {
		return nil
	}
	opts := make([]model.StudentOption, len(q.Options))
	for i, o := range q.Options {
		opts[i] = model.StudentOption{ID: o.ID, Text: o.Text}
	}
	return opts
}

// orderedQuestions 返回该次作答看到的题目顺序
func orderedQuestions(quiz *model.Quiz, attemptID string) []*model.QuizQuestion {
	out := make([]*model.QuizQuestion, len(quiz.Questions))
	for i := range quiz.Questions {
		out[i] = &quiz.Questions[i]
	}
	if !quiz.RandomizeQuestions || attemptID == "" {
		return out
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(attemptID))
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
