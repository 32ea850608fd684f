/*
 * @module api/controllers/scorecard_controller
 * @description 质量评分控制器，提供运行评分卡查询
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow 评分是问题列表的幂等投影，问题状态变更后自动重算
 * @rules rejected状态的问题不计入评分
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

// ScorecardController 质量评分控制器
type ScorecardController struct {
	service *service.DetectionService
}

// NewScorecardController 创建质量评分控制器实例
func NewScorecardController() *ScorecardController {
	return &ScorecardController{
		service: service.GlobalDetectionService,
	}
}

// GetScorecard 获取运行评分卡
// @Summary 获取运行评分卡
// @Description 根据运行ID计算数据集评分、分位数和逐记录评分
// @Tags 质量评分
// @Produce json
// @Param run_id path string true "运行ID"
// @Success 200 {object} APIResponse{data=scoring.Scorecard}
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /scorecards/{run_id} [get]
func (c *ScorecardController) GetScorecard(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	scorecard, err := c.service.GetScorecard(runID)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			render.JSON(w, r, NotFoundResponse("检测运行不存在", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("获取评分卡失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取评分卡成功", scorecard))
}
