package util

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailRegistered   = errors.New("email already registered")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrPermissionDenied  = errors.New("permission denied")

	ErrCourseNotFound  = errors.New("course not found")
	ErrCourseCodeTaken = errors.New("course code already exists")
	ErrQuizNotFound    = errors.New("quiz not found")
	ErrInvalidQuiz     = errors.New("invalid quiz definition")
	ErrAttemptNotFound = errors.New("attempt not found")

	ErrQuizUnavailable       = errors.New("quiz is not available")
	ErrAttemptLimitExceeded  = errors.New("attempt limit exceeded")
	ErrAttemptNotActive      = errors.New("attempt is not in progress")
	ErrUnknownQuestion       = errors.New("question does not belong to this quiz")
	ErrAttemptNumberConflict = errors.New("attempt number already taken")
)
