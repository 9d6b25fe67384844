package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/quizclient"
)

var (
	// 以下两个错误发生时不进入作答，也不提供重试
	ErrAttemptLimitExceeded = errors.New("no attempts remaining for this quiz")
	ErrQuizUnavailable      = errors.New("quiz is not available")

	ErrNotActive            = errors.New("session is not active")
	ErrAlreadyStarted       = errors.New("session already started")
	ErrUnknownQuestion      = errors.New("question does not belong to this quiz")
	ErrConfirmationRequired = errors.New("submission requires confirmation")
)

// TransientError 保存或提交失败，作答仍保留，可重试
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Retriable 会话被主动关闭（context 取消）时不再重试
func (e *TransientError) Retriable() bool {
	return !errors.Is(e.Err, context.Canceled)
}

// IsRetriable 供调用方判断是否展示重试
func IsRetriable(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.Retriable()
}

// classify 把远端错误映射为会话错误
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *quizclient.APIError
	if !errors.As(err, &apiErr) {
		return &TransientError{Op: op, Err: err}
	}
	switch apiErr.Reason {
	case model.ReasonAttemptLimitExceeded:
		return fmt.Errorf("%w: %s", ErrAttemptLimitExceeded, apiErr.Message)
	case model.ReasonQuizUnavailable:
		return fmt.Errorf("%w: %s", ErrQuizUnavailable, apiErr.Message)
	case model.ReasonAttemptNotActive:
		return fmt.Errorf("%w: %s", ErrNotActive, apiErr.Message)
	case model.ReasonUnknownQuestion:
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, apiErr.Message)
	}
	if apiErr.Status >= http.StatusInternalServerError ||
		apiErr.Status == http.StatusRequestTimeout ||
		apiErr.Status == http.StatusTooManyRequests {
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
