package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const studentID uint = 42

func TestStartAttempt_NewAttempt(t *testing.T) {
	f := newFixture(nil)

	resp, err := f.svc.StartAttempt(context.Background(), studentID, "quiz-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Attempt.AttemptNumber)
	assert.Equal(t, model.AttemptInProgress, resp.Attempt.Status)
	assert.False(t, resp.Attempt.Resumed)
	assert.Nil(t, resp.Attempt.Answers)
	require.NotNil(t, resp.TimeRemaining)
	assert.Equal(t, 600, *resp.TimeRemaining)
	assert.Len(t, resp.Quiz.Questions, 4)
}

func TestStartAttempt_QuizPayloadHasNoAnswerKey(t *testing.T) {
	f := newFixture(nil)

	resp, err := f.svc.StartAttempt(context.Background(), studentID, "quiz-1")
	require.NoError(t, err)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "isCorrect")
	assert.NotContains(t, string(raw), "acceptedAnswers")
	assert.NotContains(t, string(raw), "goroutine")
	assert.NotContains(t, string(raw), "explanation")
}

func TestStartAttempt_ResumeKeepsAttemptAndAnswers(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	first, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: "q1", Answer: "o1"})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	second, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.Equal(t, first.Attempt.AttemptNumber, second.Attempt.AttemptNumber)
	assert.True(t, second.Attempt.Resumed)
	assert.Equal(t, map[string]string{"q1": "o1"}, second.Attempt.Answers)
	require.NotNil(t, second.TimeRemaining)
	assert.Equal(t, 480, *second.TimeRemaining)
}

func TestStartAttempt_ResumeWithoutAnswersIsEmptyMap(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	_, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	resumed, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	assert.NotNil(t, resumed.Attempt.Answers)
	assert.Empty(t, resumed.Attempt.Answers)
}

func TestStartAttempt_UntimedQuizHasNoRemaining(t *testing.T) {
	f := newFixture(func(q *model.Quiz) { q.TimeLimitSeconds = nil })

	resp, err := f.svc.StartAttempt(context.Background(), studentID, "quiz-1")
	require.NoError(t, err)
	assert.Nil(t, resp.TimeRemaining)
	assert.Nil(t, resp.Attempt.TimeRemainingSeconds)
}

func TestStartAttempt_CapWhenRetakeDisabled(t *testing.T) {
	f := newFixture(func(q *model.Quiz) { q.MaxAttempts = 3 })
	ctx := context.Background()

	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)

	_, err = f.svc.StartAttempt(ctx, studentID, "quiz-1")
	assert.ErrorIs(t, err, util.ErrAttemptLimitExceeded)
}

func TestStartAttempt_RetakeUpToMaxAttempts(t *testing.T) {
	f := newFixture(func(q *model.Quiz) {
		q.AllowRetake = true
		q.MaxAttempts = 2
	})
	ctx := context.Background()

	for n := 1; n <= 2; n++ {
		resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
		require.NoError(t, err)
		assert.Equal(t, n, resp.Attempt.AttemptNumber)
		_, err = f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
		require.NoError(t, err)
	}

	_, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	assert.ErrorIs(t, err, util.ErrAttemptLimitExceeded)
}

func TestStartAttempt_UnlimitedWhenMaxAttemptsNotPositive(t *testing.T) {
	f := newFixture(func(q *model.Quiz) {
		q.AllowRetake = true
		q.MaxAttempts = 0
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
		require.NoError(t, err)
		sub, err := f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
		require.NoError(t, err)
		assert.True(t, sub.Attempt.CanRetake)
	}
}

func TestStartAttempt_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(q *model.Quiz)
	}{
		{"inactive", func(q *model.Quiz) { q.IsActive = false }},
		{"unpublished", func(q *model.Quiz) { q.IsPublished = false }},
		{"not yet open", func(q *model.Quiz) {
			from := newFakeClock().Now().Add(time.Hour)
			q.AvailableFrom = &from
		}},
		{"closed", func(q *model.Quiz) {
			to := newFakeClock().Now().Add(-time.Hour)
			q.AvailableTo = &to
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.mutate)
			_, err := f.svc.StartAttempt(context.Background(), studentID, "quiz-1")
			assert.ErrorIs(t, err, util.ErrQuizUnavailable)
		})
	}
}

func TestStartAttempt_UnknownQuiz(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.StartAttempt(context.Background(), studentID, "missing")
	assert.ErrorIs(t, err, util.ErrQuizNotFound)
}

func TestStartAttempt_ExpiredAttemptIsClosedAsTimeout(t *testing.T) {
	f := newFixture(func(q *model.Quiz) {
		q.AllowRetake = true
		q.MaxAttempts = 2
	})
	ctx := context.Background()

	first, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)

	second, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Attempt.ID, second.Attempt.ID)
	assert.Equal(t, 2, second.Attempt.AttemptNumber)

	old, err := f.attempts.FindByID(first.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptSubmitted, old.Status)
	assert.Equal(t, model.EndReasonTimeout, old.EndReason)
}

func TestStartAttempt_RandomOrderStableAcrossResume(t *testing.T) {
	f := newFixture(func(q *model.Quiz) {
		q.RandomizeQuestions = true
		for i := 5; i <= 12; i++ {
			id := "extra" + string(rune('a'+i))
			q.Questions = append(q.Questions, question(id, model.QuestionEssay, 1, i))
		}
	})
	ctx := context.Background()

	first, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	again, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	authored := make([]string, 0, len(f.quiz.Questions))
	for _, q := range f.quiz.Questions {
		authored = append(authored, q.ID)
	}
	assert.Equal(t, first.Quiz.QuestionIDs(), again.Quiz.QuestionIDs())
	assert.ElementsMatch(t, authored, first.Quiz.QuestionIDs())
}

func TestStartAttempt_ConcurrentStartsYieldOneAttempt(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
			if err == nil {
				ids[i] = resp.Attempt.ID
			}
		}(i)
	}
	wg.Wait()

	count, err := f.attempts.CountByUserQuiz(studentID, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestSaveAnswer_UnknownQuestion(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	_, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	_, err = f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: "other-quiz-q", Answer: "x"})
	assert.ErrorIs(t, err, util.ErrUnknownQuestion)
}

func TestSaveAnswer_LastWriteWins(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	_, err = f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: "q1", Answer: "o2"})
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: "q1", Answer: "o1"})
	require.NoError(t, err)

	answers, err := f.attempts.ListAnswers(resp.Attempt.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "o1", answers[0].Answer)
}

func TestSaveAnswer_RejectedAfterSubmit(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)

	_, err = f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: "q1", Answer: "o1"})
	assert.ErrorIs(t, err, util.ErrAttemptNotActive)
}

func TestSaveAnswer_RejectedAfterTimeLimit(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: "q1", Answer: "o1"})
	assert.ErrorIs(t, err, util.ErrAttemptNotActive)

	attempt, err := f.attempts.FindByID(resp.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EndReasonTimeout, attempt.EndReason)
}

func TestSubmitAttempt_GradesAndPublishes(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	for qid, ans := range map[string]string{"q1": "o1", "q2": "true", "q4": "essay text"} {
		_, err := f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: qid, Answer: ans})
		require.NoError(t, err)
	}

	sub, err := f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptSubmitted, sub.Attempt.Status)
	assert.Equal(t, model.EndReasonManual, sub.Attempt.EndReason)
	assert.False(t, sub.Attempt.AlreadySubmitted)
	assert.Equal(t, 3.0, sub.Attempt.Score)
	assert.Equal(t, 5.0, sub.Attempt.MaxScore)
	assert.Equal(t, 1, sub.Attempt.PendingCount)
	assert.False(t, sub.Attempt.CanRetake)
	assert.Equal(t, 1, f.publisher.count())
}

func TestSubmitAttempt_HalfRightBelowPassMark(t *testing.T) {
	f := newFixture(func(q *model.Quiz) {
		q.MaxAttempts = 1
		q.AllowRetake = false
		q.PassingScorePercent = 70
		q.Questions = []model.QuizQuestion{
			question("q1", model.QuestionMultipleChoice, 5, 1,
				choice("o1", "Channel", true),
				choice("o2", "Mutex", false),
			),
			question("q2", model.QuestionMultipleChoice, 5, 2,
				choice("o3", "是", false),
				choice("o4", "否", true),
			),
		}
	})
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: "q1", Answer: "o1"})
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: "q2", Answer: "o3"})
	require.NoError(t, err)

	sub, err := f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)

	assert.Equal(t, 5.0, sub.Attempt.Score)
	assert.Equal(t, 10.0, sub.Attempt.MaxScore)
	assert.Equal(t, 50.0, sub.Attempt.Percentage)
	assert.False(t, sub.Attempt.IsPassed)
	assert.False(t, sub.Attempt.CanRetake)
	assert.Zero(t, sub.Attempt.PendingCount)

	res, err := f.svc.GetResults(ctx, studentID, model.Student, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Results.Percentage)
	assert.False(t, res.Results.IsPassed)
	assert.False(t, res.Results.CanRetake)

	_, err = f.svc.StartAttempt(ctx, studentID, "quiz-1")
	assert.ErrorIs(t, err, util.ErrAttemptLimitExceeded)
}

func TestSubmitAttempt_SecondCallIsNoop(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	first, err := f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)

	assert.True(t, second.Attempt.AlreadySubmitted)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.Equal(t, first.Attempt.SubmittedAt, second.Attempt.SubmittedAt)
	assert.Equal(t, 1, f.publisher.count())
}

func TestSubmitAttempt_ConcurrentCallsFinalizeOnce(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.publisher.count())
}

func TestSubmitAttempt_OtherUserDenied(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	_, err = f.svc.SubmitAttempt(ctx, studentID+1, "quiz-1", resp.Attempt.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestSubmitAttempt_WrongQuizIsNotFound(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	_, err = f.svc.SubmitAttempt(ctx, studentID, "quiz-2", resp.Attempt.ID)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestSubmitAttempt_LateSubmitRecordedAsTimeout(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	sub, err := f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EndReasonTimeout, sub.Attempt.EndReason)
	require.NotNil(t, sub.Attempt.TimeRemainingSeconds)
	assert.Equal(t, 0, *sub.Attempt.TimeRemainingSeconds)
}

func TestGetResults_ReleasedWithCorrectAnswers(t *testing.T) {
	f := newFixture(func(q *model.Quiz) { q.ShowCorrectAnswers = true })
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	_, err = f.svc.SaveAnswer(ctx, studentID, "quiz-1", model.SaveAnswerRequest{QuestionID: "q4", Answer: "essay"})
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)

	res, err := f.svc.GetResults(ctx, studentID, model.Student, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)

	assert.True(t, res.Results.Released)
	assert.Equal(t, "CS101", res.Course.Code)
	assert.Equal(t, "Go basics", res.Quiz.Title)
	require.Len(t, res.Results.Questions, 4)

	byID := map[string]model.QuestionResult{}
	for _, q := range res.Results.Questions {
		byID[q.QuestionID] = q
	}
	assert.Nil(t, byID["q4"].IsCorrect)
	require.NotNil(t, byID["q1"].IsCorrect)
	assert.False(t, *byID["q1"].IsCorrect)
	assert.False(t, byID["q1"].Answered)
	require.NotNil(t, byID["q1"].CorrectAnswer)
	assert.Equal(t, "Channel", *byID["q1"].CorrectAnswer)
	require.NotNil(t, byID["q4"].Explanation)
}

func TestGetResults_HidesAnswerKeyByDefault(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)

	res, err := f.svc.GetResults(ctx, studentID, model.Student, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)
	for _, q := range res.Results.Questions {
		assert.Nil(t, q.CorrectAnswer)
		assert.Nil(t, q.Explanation)
	}
}

func TestGetResults_WithheldFromStudentUntilReleased(t *testing.T) {
	f := newFixture(func(q *model.Quiz) { q.ShowResultsImmediately = false })
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, studentID, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)

	res, err := f.svc.GetResults(ctx, studentID, model.Student, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)
	assert.False(t, res.Results.Released)
	assert.Equal(t, model.AttemptSubmitted, res.Results.Status)
	assert.Empty(t, res.Results.Questions)

	staff, err := f.svc.GetResults(ctx, 7, model.Teacher, "quiz-1", resp.Attempt.ID)
	require.NoError(t, err)
	assert.True(t, staff.Results.Released)
}

func TestGetResults_OtherStudentDenied(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	_, err = f.svc.GetResults(ctx, studentID+1, model.Student, "quiz-1", resp.Attempt.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	_, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	_, err = f.svc.StartAttempt(ctx, studentID+1, "quiz-1")
	require.NoError(t, err)

	swept, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	f.clock.Advance(10 * time.Minute)
	swept, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)
	assert.Equal(t, 2, f.publisher.count())

	swept, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestGetOverview(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	resp, err := f.svc.StartAttempt(ctx, studentID, "quiz-1")
	require.NoError(t, err)

	overview, err := f.svc.GetOverview(ctx, studentID, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, overview.AttemptsUsed)
	assert.Equal(t, 1, overview.AttemptCap)
	assert.Equal(t, resp.Attempt.ID, overview.InProgressAttempt)
	assert.True(t, overview.Available)
	assert.Empty(t, overview.Quiz.Questions)
}

func TestSetGradeScale(t *testing.T) {
	f := newFixture(nil)
	f.svc.SetGradeScale(nil)
	assert.Len(t, f.svc.GradeScale(), 8)
}
