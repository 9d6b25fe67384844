package controller

import (
	"errors"
	"fmt"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/util"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// respondError 将业务错误映射为统一响应，未知错误记录日志后返回 500
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrQuizUnavailable):
		util.Fail(ctx, http.StatusForbidden, model.ReasonQuizUnavailable, "quiz is not available")
	case errors.Is(err, util.ErrAttemptLimitExceeded):
		util.Fail(ctx, http.StatusConflict, model.ReasonAttemptLimitExceeded, "no attempts remaining for this quiz")
	case errors.Is(err, util.ErrAttemptNotActive):
		util.Fail(ctx, http.StatusConflict, model.ReasonAttemptNotActive, "attempt is no longer in progress")
	case errors.Is(err, util.ErrUnknownQuestion):
		util.Fail(ctx, http.StatusBadRequest, model.ReasonUnknownQuestion, "question does not belong to this quiz")
	case errors.Is(err, util.ErrQuizNotFound),
		errors.Is(err, util.ErrAttemptNotFound),
		errors.Is(err, util.ErrCourseNotFound),
		errors.Is(err, util.ErrUserNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrEmailRegistered), errors.Is(err, util.ErrCourseCodeTaken):
		util.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, util.ErrInvalidCredential):
		util.Error(ctx, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, util.ErrInvalidQuiz):
		util.ValidationFailed(ctx, []string{err.Error()})
	default:
		util.LogInternalError(ctx, err)
	}
}

// bindError 参数绑定失败时逐字段列出原因
func bindError(ctx *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		util.ValidationFailed(ctx, []string{err.Error()})
		return
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if field != "" {
			field = strings.ToLower(field[:1]) + field[1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", field, fe.Tag()))
		}
	}
	util.ValidationFailed(ctx, msgs)
}
