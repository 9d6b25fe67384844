package results

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"lms_quiz_backend/internal/model"

	"github.com/fatih/color"
)

type Status int

const (
	Incorrect Status = iota
	Correct
	// Pending 待人工评分，既不算对也不算错
	Pending
)

func (s Status) String() string {
	switch s {
	case Correct:
		return "correct"
	case Pending:
		return "pending grading"
	}
	return "incorrect"
}

type QuestionView struct {
	Number        int
	Text          string
	Type          string
	Answer        string
	Answered      bool
	Status        Status
	PointsEarned  float64
	Points        float64
	CorrectAnswer string
	Explanation   string
}

type View struct {
	QuizTitle   string
	CourseTitle string
	AttemptID   string
	Attempt     int
	Released    bool
	EndReason   string

	Score      float64
	MaxScore   float64
	Percentage float64
	Grade      string
	IsPassed   bool
	CanRetake  bool

	CorrectCount   int
	IncorrectCount int
	PendingCount   int

	ShowCorrectAnswers bool
	Questions          []QuestionView
}

// Build 由服务端返回的成绩生成展示数据，不修改输入
func Build(res *model.ResultsResponse) View {
	r := res.Results
	v := View{
		QuizTitle:          res.Quiz.Title,
		CourseTitle:        res.Course.Title,
		AttemptID:          r.AttemptID,
		Attempt:            r.AttemptNumber,
		Released:           r.Released,
		EndReason:          r.EndReason,
		Score:              r.Score,
		MaxScore:           r.MaxScore,
		Percentage:         r.Percentage,
		Grade:              r.Grade,
		IsPassed:           r.IsPassed,
		CanRetake:          r.CanRetake,
		ShowCorrectAnswers: res.Quiz.ShowCorrectAnswers,
	}
	if !r.Released {
		return v
	}

	for i, q := range r.Questions {
		qv := QuestionView{
			Number:       i + 1,
			Text:         q.QuestionText,
			Type:         q.QuestionType,
			Answer:       answerText(q),
			Answered:     q.Answered,
			PointsEarned: q.PointsEarned,
			Points:       q.Points,
		}
		switch {
		case q.IsCorrect == nil:
			qv.Status = Pending
			v.PendingCount++
		case *q.IsCorrect:
			qv.Status = Correct
			v.CorrectCount++
		default:
			qv.Status = Incorrect
			v.IncorrectCount++
		}
		if v.ShowCorrectAnswers {
			if q.CorrectAnswer != nil {
				qv.CorrectAnswer = *q.CorrectAnswer
			}
			if q.Explanation != nil {
				qv.Explanation = *q.Explanation
			}
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

// answerText 选择题显示选项文字
func answerText(q model.QuestionResult) string {
	for _, opt := range q.Options {
		if opt.ID == q.Answer {
			return opt.Text
		}
	}
	return q.Answer
}

func Render(w io.Writer, v View) error {
	var b strings.Builder

	title := v.QuizTitle
	if v.CourseTitle != "" {
		title = v.CourseTitle + " / " + v.QuizTitle
	}
	fmt.Fprintf(&b, "%s (attempt #%d)\n", color.New(color.Bold).Sprint(title), v.Attempt)

	if !v.Released {
		b.WriteString(color.YellowString("Results have not been released yet.") + "\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	if v.EndReason == model.EndReasonTimeout {
		b.WriteString(color.YellowString("Time ran out; the attempt was submitted automatically.") + "\n")
	}

	for _, q := range v.Questions {
		fmt.Fprintf(&b, "\n%d. %s\n", q.Number, q.Text)
		answer := q.Answer
		if !q.Answered {
			answer = color.HiBlackString("(no answer)")
		}
		fmt.Fprintf(&b, "   Your answer: %s\n", answer)
		fmt.Fprintf(&b, "   %s  %s/%s pts\n", statusLabel(q.Status), formatNum(q.PointsEarned), formatNum(q.Points))
		if q.CorrectAnswer != "" && q.Status != Correct {
			fmt.Fprintf(&b, "   Correct answer: %s\n", q.CorrectAnswer)
		}
		if q.Explanation != "" {
			fmt.Fprintf(&b, "   Explanation: %s\n", q.Explanation)
		}
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Score: %s/%s (%s%%)", formatNum(v.Score), formatNum(v.MaxScore), formatNum(v.Percentage))
	if v.Grade != "" {
		fmt.Fprintf(&b, "  Grade: %s", v.Grade)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Correct: %d  Incorrect: %d  Pending: %d\n", v.CorrectCount, v.IncorrectCount, v.PendingCount)

	if v.IsPassed {
		b.WriteString(color.GreenString("PASSED") + "\n")
	} else {
		b.WriteString(color.RedString("NOT PASSED") + "\n")
	}
	if v.PendingCount > 0 {
		b.WriteString(color.YellowString("Some answers are awaiting teacher grading; the score may change.") + "\n")
	}
	if v.CanRetake {
		b.WriteString("Retake available.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func statusLabel(s Status) string {
	switch s {
	case Correct:
		return color.GreenString("[correct]")
	case Pending:
		return color.YellowString("[pending grading]")
	}
	return color.RedString("[incorrect]")
}

func formatNum(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}
