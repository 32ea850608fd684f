/*
 * @module api/controllers/issue_controller
 * @description 质量问题控制器，提供问题列表查询与状态流转
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow open -> approved/rejected -> resolved，状态变更触发评分重算
 * @rules 状态变更只重算评分，不重新执行检测
 * @dependencies surveyqc-service/service, github.com/go-chi/render
 * @refs dev_docs/model.md
 */

package controllers

import (
	"errors"
	"net/http"
	"surveyqc-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// IssueController 质量问题控制器
type IssueController struct {
	service *service.DetectionService
}

// NewIssueController 创建质量问题控制器实例
func NewIssueController() *IssueController {
	return &IssueController{
		service: service.GlobalDetectionService,
	}
}

// UpdateIssueStatusRequest 问题状态变更请求结构
type UpdateIssueStatusRequest struct {
	Status string `json:"status" validate:"required" example:"approved"` // open, approved, rejected, resolved
}

// ListIssues 获取问题列表
// @Summary 获取质量问题列表
// @Description 分页获取质量问题列表，支持按运行、数据集、状态、级别、类别、检查筛选
// @Tags 质量问题
// @Produce json
// @Param run_id query string false "运行ID"
// @Param dataset_ref query string false "数据集引用"
// @Param status query string false "问题状态" Enums(open,approved,rejected,resolved)
// @Param severity query string false "严重级别" Enums(low,medium,high,critical)
// @Param category query string false "检测类别"
// @Param check_id query string false "检查标识"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Success 200 {object} PaginatedResponse{data=[]models.Issue}
// @Failure 500 {object} APIResponse
// @Router /issues [get]
func (c *IssueController) ListIssues(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	filter := service.IssueFilter{
		RunID:      r.URL.Query().Get("run_id"),
		DatasetRef: r.URL.Query().Get("dataset_ref"),
		Status:     r.URL.Query().Get("status"),
		Severity:   r.URL.Query().Get("severity"),
		Category:   r.URL.Query().Get("category"),
		CheckID:    r.URL.Query().Get("check_id"),
	}

	issues, total, err := c.service.ListIssues(filter, page, size)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("获取问题列表失败", err))
		return
	}

	render.JSON(w, r, PagedResponse("获取问题列表成功", issues, total, page, size))
}

// UpdateIssueStatus 变更问题状态
// @Summary 变更问题状态
// @Description 将问题标记为approved/rejected/resolved，rejected的问题不再计入评分
// @Tags 质量问题
// @Accept json
// @Produce json
// @Param id path string true "问题ID"
// @Param request body UpdateIssueStatusRequest true "状态变更请求"
// @Success 200 {object} APIResponse{data=models.Issue}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /issues/{id}/status [put]
func (c *IssueController) UpdateIssueStatus(w http.ResponseWriter, r *http.Request) {
	issueID := chi.URLParam(r, "id")

	var req UpdateIssueStatusRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	issue, err := c.service.SetIssueStatus(issueID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			render.JSON(w, r, BadRequestResponse("非法的问题状态", err))
		case errors.Is(err, service.ErrIssueNotFound):
			render.JSON(w, r, NotFoundResponse("问题不存在", err))
		default:
			render.JSON(w, r, InternalErrorResponse("变更问题状态失败", err))
		}
		return
	}

	render.JSON(w, r, SuccessResponse("变更问题状态成功", issue))
}
