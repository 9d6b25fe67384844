package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lms_quiz_backend/internal/config"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/quizclient"
	"lms_quiz_backend/internal/results"
	"lms_quiz_backend/internal/session"
	"lms_quiz_backend/pkg/logger"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configDir := flag.String("config", "configs", "配置文件目录（读取其中的 config.yaml）")
	baseURL := flag.String("base-url", "", "接口地址，默认取配置 client.base_url")
	email := flag.String("email", os.Getenv("LMS_EMAIL"), "登录邮箱")
	quizID := flag.String("quiz", "", "测验 ID")
	logFile := flag.String("log-file", "logs/quiztaker.log", "日志文件")
	debug := flag.Bool("debug", false, "输出调试日志")
	flag.Parse()

	if *quizID == "" {
		fmt.Fprintln(os.Stderr, "usage: quiztaker --quiz <id> [--email you@example.com]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *baseURL != "" {
		cfg.Client.BaseURL = *baseURL
	}

	zl := logger.NewFileLogger(*logFile, *debug)
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := quizclient.New(cfg.Client.BaseURL, cfg.Client.RequestTimeout)
	client.OnUnauthorized(func() {
		color.Red("Your login has expired. Please sign in again.")
		zl.Warn("登录凭证已失效并清除")
		stop()
	})

	in := newLineReader(os.Stdin)

	if err := login(ctx, client, in, *email); err != nil {
		color.Red("Login failed: %v", err)
		os.Exit(1)
	}

	t := &taker{
		client: client,
		in:     in,
		log:    zl,
		cfg:    cfg.Client,
	}
	os.Exit(t.run(ctx, *quizID))
}

func login(ctx context.Context, client *quizclient.Client, in *lineReader, email string) error {
	if token := os.Getenv("LMS_TOKEN"); token != "" {
		client.SetToken(token)
		return nil
	}
	if email == "" {
		fmt.Print("Email: ")
		line, ok := in.next(ctx)
		if !ok {
			return errors.New("no email given")
		}
		email = line
	}
	password := os.Getenv("LMS_PASSWORD")
	if password == "" {
		fmt.Print("Password: ")
		line, ok := in.next(ctx)
		if !ok {
			return errors.New("no password given")
		}
		password = line
	}
	res, err := client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if res.User != nil {
		color.Green("Signed in as %s", res.User.Name)
	}
	return nil
}

// lineReader 后台读取标准输入，使主循环可同时等待超时事件
type lineReader struct {
	lines chan string
}

func newLineReader(f *os.File) *lineReader {
	r := &lineReader{lines: make(chan string)}
	go func() {
		defer close(r.lines)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			r.lines <- strings.TrimSpace(sc.Text())
		}
	}()
	return r
}

func (r *lineReader) next(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-r.lines:
		return line, ok
	}
}

type taker struct {
	client *quizclient.Client
	in     *lineReader
	log    *zap.Logger
	cfg    config.ClientConfig
}

func (t *taker) run(ctx context.Context, quizID string) int {
	if overview, err := t.client.GetQuiz(ctx, quizID); err == nil {
		capText := "unlimited"
		if overview.AttemptCap > 0 {
			capText = fmt.Sprintf("%d", overview.AttemptCap)
		}
		fmt.Printf("%s  (attempts used: %d / %s)\n", color.New(color.Bold).Sprint(overview.Quiz.Title), overview.AttemptsUsed, capText)
	}

	timedOut := make(chan session.Outcome, 1)
	ctrl := session.New(t.client, session.Options{
		AutoSaveInterval: t.cfg.AutoSaveInterval,
		CallTimeout:      t.cfg.RequestTimeout,
		Logger:           t.log,
		Hooks: session.Hooks{
			OnTick: func(left int) {
				if left == 60 || left == 10 {
					color.Yellow("\n%d seconds left", left)
				}
			},
			OnTimeout: func(o session.Outcome) { timedOut <- o },
			OnLostAnswers: func(_ string, ids []string) {
				color.Yellow("%d answer(s) were not saved: %s", len(ids), strings.Join(ids, ", "))
			},
		},
	})

	start, err := ctrl.Start(ctx, quizID)
	switch {
	case errors.Is(err, session.ErrAttemptLimitExceeded):
		color.Red("You have used all attempts for this quiz.")
		return 1
	case errors.Is(err, session.ErrQuizUnavailable):
		color.Red("This quiz is not available right now.")
		return 1
	case err != nil:
		color.Red("Could not start the quiz: %v", err)
		return 1
	}

	if start.Resumed {
		color.Cyan("Resuming attempt #%d (%d saved answer(s) restored).", start.Attempt.AttemptNumber, start.Restored)
	} else {
		color.Cyan("Attempt #%d started.", start.Attempt.AttemptNumber)
	}
	if start.TimeRemaining != nil {
		fmt.Printf("Time limit: %s\n", formatSeconds(*start.TimeRemaining))
	}
	printHelp()

	for {
		t.showCurrent(ctrl)
		fmt.Print("> ")

		var line string
		select {
		case o := <-timedOut:
			color.Yellow("\nTime is up. Your attempt has been submitted.")
			return t.finish(ctx, ctrl, o)
		case <-ctx.Done():
			ctrl.Close()
			fmt.Println("\nLeaving the quiz. Your attempt stays open and can be resumed.")
			return 0
		case l, ok := <-t.in.lines:
			if !ok {
				ctrl.Close()
				return 0
			}
			line = l
		}

		cmd, text := parseInput(line)
		switch cmd {
		case cmdNone:
			continue
		case cmdHelp:
			printHelp()
		case cmdNext:
			_, _ = ctrl.Advance(session.Forward)
		case cmdPrev:
			_, _ = ctrl.Advance(session.Backward)
		case cmdSave:
			if err := ctrl.SaveCurrentAnswer(ctx); err != nil {
				color.Red("Save failed: %v", err)
				if session.IsRetriable(err) {
					fmt.Println("Type 'save' to try again.")
				}
			} else {
				color.Green("Saved.")
			}
		case cmdSubmit:
			if !t.confirmSubmit(ctx, ctrl) {
				continue
			}
			out, err := ctrl.Submit(ctx, true)
			if err != nil {
				color.Red("Submit failed: %v", err)
				if session.IsRetriable(err) {
					fmt.Println("Your answers are kept. Type 'submit' to try again.")
				}
				continue
			}
			return t.finish(ctx, ctrl, *out)
		case cmdQuit:
			ctrl.Close()
			fmt.Println("Your attempt stays open and can be resumed.")
			return 0
		default:
			t.answer(ctrl, text)
		}
	}
}

type command int

const (
	cmdAnswer command = iota
	cmdNone
	cmdHelp
	cmdNext
	cmdPrev
	cmdSave
	cmdSubmit
	cmdQuit
)

// parseInput 以 = 开头的输入一律作为答案，可用于回答与命令同名的内容
func parseInput(line string) (command, string) {
	if strings.HasPrefix(line, "=") {
		return cmdAnswer, strings.TrimSpace(line[1:])
	}
	switch strings.ToLower(line) {
	case "":
		return cmdNone, ""
	case "help", "?":
		return cmdHelp, ""
	case "n", "next":
		return cmdNext, ""
	case "p", "prev":
		return cmdPrev, ""
	case "s", "save":
		return cmdSave, ""
	case "submit":
		return cmdSubmit, ""
	case "q", "quit":
		return cmdQuit, ""
	}
	return cmdAnswer, line
}

func (t *taker) showCurrent(ctrl *session.Controller) {
	idx, q, ok := ctrl.Current()
	if !ok {
		return
	}
	quiz := ctrl.Quiz()
	fmt.Printf("\n[%d/%d] %s (%g pts)\n", idx+1, len(quiz.Questions), q.QuestionText, q.Points)
	for i, opt := range q.Options {
		fmt.Printf("  %d) %s\n", i+1, opt.Text)
	}
	if v, ok := ctrl.Answers().Get(q.ID); ok && v != "" {
		fmt.Printf("  current answer: %s\n", displayAnswer(q.Options, v))
	}
	if left := ctrl.Remaining(); left != nil {
		fmt.Printf("  time left: %s\n", formatSeconds(*left))
	}
}

func (t *taker) answer(ctrl *session.Controller, line string) {
	_, q, ok := ctrl.Current()
	if !ok {
		return
	}
	value := line
	if len(q.Options) > 0 {
		var n int
		if _, err := fmt.Sscanf(line, "%d", &n); err != nil || n < 1 || n > len(q.Options) {
			color.Red("Pick an option between 1 and %d.", len(q.Options))
			return
		}
		value = q.Options[n-1].ID
	}
	if err := ctrl.RecordAnswer(q.ID, value); err != nil {
		color.Red("Answer not recorded: %v", err)
	}
}

func (t *taker) confirmSubmit(ctx context.Context, ctrl *session.Controller) bool {
	answered := ctrl.Answers().AnsweredCount()
	total := len(ctrl.Quiz().Questions)
	if answered == 0 {
		color.Yellow("You have not answered any question.")
	}
	fmt.Printf("Submit now? %d of %d answered. This cannot be undone. [y/N] ", answered, total)
	line, ok := t.in.next(ctx)
	return ok && (strings.EqualFold(line, "y") || strings.EqualFold(line, "yes"))
}

func (t *taker) finish(ctx context.Context, ctrl *session.Controller, out session.Outcome) int {
	switch {
	case out.ClosedByServer():
		color.Yellow("This attempt had already been closed by the server.")
	case out.Attempt == nil:
		// 超时提交未确认，服务端会按超时关闭
		color.Yellow("The server did not confirm the submission; it will be closed automatically.")
		return 0
	}
	res, err := t.client.GetResults(ctx, ctrl.QuizID(), out.AttemptID)
	if err != nil {
		color.Red("Could not load results: %v", err)
		return 1
	}
	if err := results.Render(os.Stdout, results.Build(res)); err != nil {
		return 1
	}
	return 0
}

func displayAnswer(opts []model.StudentOption, v string) string {
	for _, o := range opts {
		if o.ID == v {
			return o.Text
		}
	}
	return v
}

func formatSeconds(s int) string {
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func printHelp() {
	fmt.Println("Type an answer (or an option number) and press Enter.")
	fmt.Println("Commands: next, prev, save, submit, quit, help")
	fmt.Println("Start with = to answer a word that is also a command, e.g. =next")
}
