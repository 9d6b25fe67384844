package service

import (
	"context"
	"testing"

	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuizService() (*QuizService, *fakeQuizStore, *fakeCourseStore) {
	quizzes := &fakeQuizStore{quizzes: make(map[string]*model.Quiz)}
	courses := newFakeCourseStore(&model.Course{BaseModel: model.BaseModel{ID: 1}, Code: "CS101", Title: "Intro", TeacherID: 7})
	return NewQuizService(quizzes, courses, nil), quizzes, courses
}

func validQuizRequest() CreateQuizRequest {
	return CreateQuizRequest{
		CourseID: 1,
		Title:    "Week 1",
		Questions: []QuizQuestionReq{
			{
				QuestionText: "Which primitive passes values between goroutines?",
				QuestionType: model.QuestionMultipleChoice,
				Points:       2,
				Options: []QuizOptionReq{
					{Text: "Channel", IsCorrect: true},
					{Text: "Mutex"},
				},
			},
			{
				QuestionText:    "The keyword that starts a goroutine is ___",
				QuestionType:    model.QuestionFillBlank,
				AcceptedAnswers: []string{"go"},
			},
		},
	}
}

func TestCreateQuiz(t *testing.T) {
	svc, store, _ := newQuizService()

	quiz, err := svc.CreateQuiz(context.Background(), 7, model.Teacher, validQuizRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, quiz.ID)
	assert.Equal(t, 60.0, quiz.PassingScorePercent)
	assert.True(t, quiz.ShowResultsImmediately)
	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, quiz.ID, quiz.Questions[0].QuizID)
	assert.Equal(t, 1.0, quiz.Questions[1].Points)
	assert.Equal(t, quiz.Questions[0].ID, quiz.Questions[0].Options[0].QuestionID)
	assert.Equal(t, 2, quiz.Questions[1].Order)

	loaded, err := svc.GetQuiz(context.Background(), quiz.ID)
	require.NoError(t, err)
	assert.Same(t, store.quizzes[quiz.ID], loaded)
}

func TestCreateQuiz_OnlyCourseOwner(t *testing.T) {
	svc, _, _ := newQuizService()

	_, err := svc.CreateQuiz(context.Background(), 8, model.Teacher, validQuizRequest())
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = svc.CreateQuiz(context.Background(), 99, model.Admin, validQuizRequest())
	assert.NoError(t, err)
}

func TestCreateQuiz_Validation(t *testing.T) {
	svc, _, _ := newQuizService()

	tests := []struct {
		name   string
		mutate func(r *CreateQuizRequest)
	}{
		{"unknown type", func(r *CreateQuizRequest) { r.Questions[0].QuestionType = "matching" }},
		{"no correct option", func(r *CreateQuizRequest) { r.Questions[0].Options[0].IsCorrect = false }},
		{"single option", func(r *CreateQuizRequest) { r.Questions[0].Options = r.Questions[0].Options[:1] }},
		{"fill blank without key", func(r *CreateQuizRequest) { r.Questions[1].AcceptedAnswers = nil }},
		{"negative time limit", func(r *CreateQuizRequest) { r.TimeLimitSeconds = intPtr(-5) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validQuizRequest()
			tt.mutate(&req)
			_, err := svc.CreateQuiz(context.Background(), 7, model.Teacher, req)
			assert.ErrorIs(t, err, util.ErrInvalidQuiz)
		})
	}
}

func TestCreateQuiz_UnknownCourse(t *testing.T) {
	svc, _, _ := newQuizService()
	req := validQuizRequest()
	req.CourseID = 404

	_, err := svc.CreateQuiz(context.Background(), 7, model.Teacher, req)
	assert.ErrorIs(t, err, util.ErrCourseNotFound)
}

func TestUpdateQuiz(t *testing.T) {
	svc, store, _ := newQuizService()
	ctx := context.Background()
	quiz, err := svc.CreateQuiz(ctx, 7, model.Teacher, validQuizRequest())
	require.NoError(t, err)

	published := true
	updated, err := svc.UpdateQuiz(ctx, 7, model.Teacher, quiz.ID, UpdateQuizRequest{
		IsPublished:      &published,
		TimeLimitSeconds: intPtr(900),
	})
	require.NoError(t, err)
	assert.True(t, updated.IsPublished)
	assert.Equal(t, 900, *updated.TimeLimitSeconds)
	assert.Equal(t, 1, store.updates)

	updated, err = svc.UpdateQuiz(ctx, 7, model.Teacher, quiz.ID, UpdateQuizRequest{ClearTimeLimit: true})
	require.NoError(t, err)
	assert.Nil(t, updated.TimeLimitSeconds)

	_, err = svc.UpdateQuiz(ctx, 8, model.Teacher, quiz.ID, UpdateQuizRequest{IsPublished: &published})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = svc.UpdateQuiz(ctx, 7, model.Teacher, "missing", UpdateQuizRequest{})
	assert.ErrorIs(t, err, util.ErrQuizNotFound)
}

func TestCreateCourse_DuplicateCode(t *testing.T) {
	svc, _, _ := newQuizService()

	_, err := svc.CreateCourse(7, CreateCourseRequest{Code: "CS101", Title: "Again"})
	assert.ErrorIs(t, err, util.ErrCourseCodeTaken)

	course, err := svc.CreateCourse(7, CreateCourseRequest{Code: " CS102 ", Title: "Next"})
	require.NoError(t, err)
	assert.Equal(t, "CS102", course.Code)
	assert.Equal(t, uint(7), course.TeacherID)
}

func TestListCourses(t *testing.T) {
	svc, _, courses := newQuizService()
	_, err := svc.CreateCourse(7, CreateCourseRequest{Code: "CS102", Title: "Next"})
	require.NoError(t, err)
	require.NoError(t, courses.Create(&model.Course{Code: "PY101", Title: "Python", TeacherID: 8}))

	list, err := svc.ListCourses(7)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "CS101", list[0].Code)
	assert.Equal(t, "CS102", list[1].Code)
}

func TestListCourseQuizzes(t *testing.T) {
	svc, _, _ := newQuizService()
	ctx := context.Background()
	created, err := svc.CreateQuiz(ctx, 7, model.Teacher, validQuizRequest())
	require.NoError(t, err)

	quizzes, err := svc.ListCourseQuizzes(7, model.Teacher, 1)
	require.NoError(t, err)
	require.Len(t, quizzes, 1)
	assert.Equal(t, created.ID, quizzes[0].ID)

	_, err = svc.ListCourseQuizzes(8, model.Teacher, 1)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	quizzes, err = svc.ListCourseQuizzes(99, model.Admin, 1)
	require.NoError(t, err)
	assert.Len(t, quizzes, 1)

	_, err = svc.ListCourseQuizzes(7, model.Teacher, 5)
	assert.ErrorIs(t, err, util.ErrCourseNotFound)
}
