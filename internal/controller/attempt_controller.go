package controller

import (
	"context"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AttemptService 由 service.AttemptService 实现
type AttemptService interface {
	StartAttempt(ctx context.Context, userID uint, quizID string) (*model.StartAttemptResponse, error)
	SaveAnswer(ctx context.Context, userID uint, quizID string, req model.SaveAnswerRequest) (*model.SaveAnswerResponse, error)
	SubmitAttempt(ctx context.Context, userID uint, quizID, attemptID string) (*model.SubmitAttemptResponse, error)
	GetResults(ctx context.Context, userID uint, role model.UserRole, quizID, attemptID string) (*model.ResultsResponse, error)
	GetOverview(ctx context.Context, userID uint, quizID string) (*model.QuizOverview, error)
	ListAttempts(ctx context.Context, userID uint, role model.UserRole, quizID string, page, limit int) ([]model.AttemptListRow, int64, error)
}

type AttemptController struct {
	Service AttemptService
}

func NewAttemptController(svc AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

// @Summary 测验概览
// @Description 返回测验设置及当前用户的作答次数、进行中的作答
// @Tags 测验作答
// @Produce json
// @Security ApiKeyAuth
// @Param quizId path string true "测验ID"
// @Success 200 {object} util.Response{data=model.QuizOverview}
// @Failure 404 {object} util.Response
// @Router /quizzes/{quizId} [get]
func (c *AttemptController) GetQuiz(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	overview, err := c.Service.GetOverview(ctx.Request.Context(), user.UserID, ctx.Param("quizId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, overview)
}

// @Summary 开始或恢复作答
// @Description 存在进行中的作答时返回该作答及已保存的答案（resumed=true）
// @Tags 测验作答
// @Produce json
// @Security ApiKeyAuth
// @Param quizId path string true "测验ID"
// @Success 200 {object} util.Response{data=model.StartAttemptResponse}
// @Failure 403 {object} util.Response "reason=quiz_unavailable"
// @Failure 409 {object} util.Response "reason=attempt_limit_exceeded"
// @Router /quizzes/{quizId}/attempt [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	resp, err := c.Service.StartAttempt(ctx.Request.Context(), user.UserID, ctx.Param("quizId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, resp)
}

// @Summary 保存单题答案
// @Tags 测验作答
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param quizId path string true "测验ID"
// @Param body body model.SaveAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=model.SaveAnswerResponse}
// @Failure 400 {object} util.Response "reason=unknown_question"
// @Failure 409 {object} util.Response "reason=attempt_not_active"
// @Router /quizzes/{quizId}/answer [post]
func (c *AttemptController) SaveAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req model.SaveAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	resp, err := c.Service.SaveAnswer(ctx.Request.Context(), user.UserID, ctx.Param("quizId"), req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, resp)
}

// @Summary 提交作答
// @Description 重复提交不会重新评分，返回 alreadySubmitted=true
// @Tags 测验作答
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param quizId path string true "测验ID"
// @Param body body model.SubmitAttemptRequest true "作答ID"
// @Success 200 {object} util.Response{data=model.SubmitAttemptResponse}
// @Router /quizzes/{quizId}/submit [post]
func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req model.SubmitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	resp, err := c.Service.SubmitAttempt(ctx.Request.Context(), user.UserID, ctx.Param("quizId"), req.AttemptID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, resp)
}

// @Summary 作答结果
// @Tags 测验作答
// @Produce json
// @Security ApiKeyAuth
// @Param quizId path string true "测验ID"
// @Param attemptId query string true "作答ID"
// @Success 200 {object} util.Response{data=model.ResultsResponse}
// @Router /quizzes/{quizId}/results [get]
func (c *AttemptController) GetResults(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attemptID := ctx.Query("attemptId")
	if attemptID == "" {
		util.ValidationFailed(ctx, []string{"attemptId is required"})
		return
	}

	resp, err := c.Service.GetResults(ctx.Request.Context(), user.UserID, user.Role, ctx.Param("quizId"), attemptID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, resp)
}

// @Summary 测验作答列表（教师）
// @Tags 测验管理
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "测验ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /teacher/quizzes/{id}/attempts [get]
func (c *AttemptController) ListAttempts(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := pagination(ctx)
	rows, total, err := c.Service.ListAttempts(ctx.Request.Context(), user.UserID, user.Role, ctx.Param("id"), page, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: rows, Total: total, Page: page, Limit: limit})
}
