package service

import (
	"context"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/repository"
	"lms_quiz_backend/internal/util"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeQuizLoader struct {
	quizzes map[string]*model.Quiz
}

func (l *fakeQuizLoader) GetQuiz(_ context.Context, id string) (*model.Quiz, error) {
	q, ok := l.quizzes[id]
	if !ok {
		return nil, util.ErrQuizNotFound
	}
	return q, nil
}

type fakeCourseStore struct {
	mu      sync.Mutex
	courses map[uint]*model.Course
}

func newFakeCourseStore(courses ...*model.Course) *fakeCourseStore {
	s := &fakeCourseStore{courses: make(map[uint]*model.Course)}
	for _, c := range courses {
		s.courses[c.ID] = c
	}
	return s
}

func (s *fakeCourseStore) Create(course *model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	course.ID = uint(len(s.courses) + 1)
	s.courses[course.ID] = course
	return nil
}

func (s *fakeCourseStore) FindByID(id uint) (*model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (s *fakeCourseStore) FindByCode(code string) (*model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.courses {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeCourseStore) ListByTeacher(teacherID uint) ([]model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Course
	for _, c := range s.courses {
		if c.TeacherID == teacherID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeQuizStore struct {
	mu      sync.Mutex
	quizzes map[string]*model.Quiz
	updates int
}

func (s *fakeQuizStore) Create(quiz *model.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quiz.ID == "" {
		quiz.ID = model.NewID()
	}
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *fakeQuizStore) FindByID(id string) (*model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return q, nil
}

func (s *fakeQuizStore) UpdateSettings(quiz *model.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *fakeQuizStore) ListByCourse(courseID uint) ([]model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Quiz
	for _, q := range s.quizzes {
		if q.CourseID == courseID {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// fakeAttemptStore 模拟数据库的条件更新和唯一索引
type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]*model.QuizAttempt
	answers  map[string]map[string]*model.QuizAttemptAnswer
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts: make(map[string]*model.QuizAttempt),
		answers:  make(map[string]map[string]*model.QuizAttemptAnswer),
	}
}

func (s *fakeAttemptStore) Create(attempt *model.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.UserID == attempt.UserID && a.QuizID == attempt.QuizID && a.AttemptNumber == attempt.AttemptNumber {
			return util.ErrAttemptNumberConflict
		}
	}
	if attempt.ID == "" {
		attempt.ID = model.NewID()
	}
	cp := *attempt
	s.attempts[attempt.ID] = &cp
	return nil
}

func (s *fakeAttemptStore) FindByID(id string) (*model.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) find(userID uint, quizID, status string) (*model.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.QuizAttempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.Status == status {
			if best == nil || a.AttemptNumber > best.AttemptNumber {
				best = a
			}
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *fakeAttemptStore) FindInProgress(userID uint, quizID string) (*model.QuizAttempt, error) {
	return s.find(userID, quizID, model.AttemptInProgress)
}

func (s *fakeAttemptStore) FindLatestSubmitted(userID uint, quizID string) (*model.QuizAttempt, error) {
	return s.find(userID, quizID, model.AttemptSubmitted)
}

func (s *fakeAttemptStore) CountByUserQuiz(userID uint, quizID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (s *fakeAttemptStore) ListAnswers(attemptID string) ([]model.QuizAttemptAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QuizAttemptAnswer
	for _, a := range s.answers[attemptID] {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *fakeAttemptStore) SaveAnswer(answer *model.QuizAttemptAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[answer.AttemptID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if attempt.Status != model.AttemptInProgress {
		return util.ErrAttemptNotActive
	}
	if s.answers[answer.AttemptID] == nil {
		s.answers[answer.AttemptID] = make(map[string]*model.QuizAttemptAnswer)
	}
	if existing, ok := s.answers[answer.AttemptID][answer.QuestionID]; ok {
		existing.Answer = answer.Answer
		existing.LastSavedAt = answer.LastSavedAt
		return nil
	}
	cp := *answer
	cp.ID = model.NewID()
	s.answers[answer.AttemptID][answer.QuestionID] = &cp
	return nil
}

func (s *fakeAttemptStore) Finalize(attemptID, reason string, at time.Time, grade repository.GradeFunc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok || attempt.Status != model.AttemptInProgress {
		return false, nil
	}
	attempt.Status = model.AttemptSubmitted
	attempt.SubmittedAt = &at
	attempt.EndReason = reason

	var answers []model.QuizAttemptAnswer
	for _, a := range s.answers[attemptID] {
		answers = append(answers, *a)
	}
	score, graded := grade(answers)
	for _, g := range graded {
		stored := s.answers[attemptID][g.QuestionID]
		stored.IsCorrect = g.IsCorrect
		stored.PointsEarned = g.PointsEarned
	}
	attempt.AttemptScore = score
	return true, nil
}

func (s *fakeAttemptStore) ListTimedInProgress() ([]model.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QuizAttempt
	for _, a := range s.attempts {
		if a.Status == model.AttemptInProgress {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeAttemptStore) ListByQuiz(quizID string, page, limit int) ([]model.AttemptListRow, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AttemptListRow
	for _, a := range s.attempts {
		if a.QuizID == quizID {
			out = append(out, model.AttemptListRow{QuizAttempt: *a})
		}
	}
	return out, int64(len(out)), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []AttemptSubmittedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := payload.(AttemptSubmittedEvent); ok {
		p.events = append(p.events, e)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func intPtr(v int) *int { return &v }

func choice(id, text string, correct bool) model.QuizOption {
	o := model.QuizOption{Text: text, IsCorrect: correct}
	o.ID = id
	return o
}

func question(id, qtype string, points float64, order int, opts ...model.QuizOption) model.QuizQuestion {
	q := model.QuizQuestion{QuestionText: "Question " + id, QuestionType: qtype, Points: points, Order: order, Options: opts}
	q.ID = id
	return q
}

// sampleQuiz 满分 5 分：选择 2 分，判断、填空、论述各 1 分
func sampleQuiz() *model.Quiz {
	quiz := &model.Quiz{
		CourseID:               1,
		CreatorID:              7,
		Title:                  "Go basics",
		TimeLimitSeconds:       intPtr(600),
		MaxAttempts:            1,
		PassingScorePercent:    60,
		ShowResultsImmediately: true,
		IsActive:               true,
		IsPublished:            true,
	}
	quiz.ID = "quiz-1"

	fill := question("q3", model.QuestionFillBlank, 1, 3)
	fill.AcceptedAnswers = "goroutine|goroutines"
	essay := question("q4", model.QuestionEssay, 1, 4)
	essay.Explanation = "Any reasonable discussion."

	quiz.Questions = []model.QuizQuestion{
		question("q1", model.QuestionMultipleChoice, 2, 1,
			choice("o1", "Channel", true),
			choice("o2", "Mutex", false),
		),
		question("q2", model.QuestionTrueFalse, 1, 2,
			choice("t", "True", true),
			choice("f", "False", false),
		),
		fill,
		essay,
	}
	return quiz
}

type serviceFixture struct {
	svc       *AttemptService
	clock     *fakeClock
	attempts  *fakeAttemptStore
	publisher *recordingPublisher
	quiz      *model.Quiz
}

func newFixture(mutate func(q *model.Quiz)) *serviceFixture {
	quiz := sampleQuiz()
	if mutate != nil {
		mutate(quiz)
	}
	clock := newFakeClock()
	attempts := newFakeAttemptStore()
	publisher := &recordingPublisher{}
	courses := newFakeCourseStore(&model.Course{BaseModel: model.BaseModel{ID: 1}, Code: "CS101", Title: "Intro"})

	svc := NewAttemptService(&fakeQuizLoader{quizzes: map[string]*model.Quiz{quiz.ID: quiz}}, courses, attempts, publisher, nil)
	svc.now = clock.Now
	return &serviceFixture{svc: svc, clock: clock, attempts: attempts, publisher: publisher, quiz: quiz}
}
