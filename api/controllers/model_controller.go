/*
 * @module api/controllers/model_controller
 * @description 模型版本控制器，提供模型族与版本查询、反馈适应触发
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow 反馈样本累积 -> 触发适应 -> 发布新模型版本
 * @rules 模型适应永远发布新版本，历史版本不可变
 * @dependencies surveyqc-service/service, github.com/go-chi/render
 * @refs dev_docs/model.md
 */

package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"surveyqc-service/service"
	"surveyqc-service/service/mldetect"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ModelController 模型版本控制器
type ModelController struct {
	registry  *mldetect.Registry
	detection *service.DetectionService
}

// NewModelController 创建模型版本控制器实例
func NewModelController() *ModelController {
	return &ModelController{
		registry:  service.GlobalModelRegistry,
		detection: service.GlobalDetectionService,
	}
}

// AdaptModelRequest 模型适应请求结构
type AdaptModelRequest struct {
	Author string `json:"author" validate:"required" example:"analyst01"`
}

// ListFamilies 获取模型族列表
// @Summary 获取模型族列表
// @Description 列出全部已注册的模型族
// @Tags 模型版本
// @Produce json
// @Success 200 {object} APIResponse{data=[]string}
// @Router /models [get]
func (c *ModelController) ListFamilies(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SuccessResponse("获取模型族列表成功", c.registry.Families()))
}

// ListVersions 获取模型版本列表
// @Summary 获取模型版本列表
// @Description 按版本号顺序获取指定模型族的全部版本
// @Tags 模型版本
// @Produce json
// @Param family path string true "模型族" Enums(bot_classifier,anomaly,pattern,nlp)
// @Success 200 {object} APIResponse{data=[]models.ModelVersion}
// @Failure 404 {object} APIResponse
// @Router /models/{family}/versions [get]
func (c *ModelController) ListVersions(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")

	versions := c.registry.Versions(family)
	if len(versions) == 0 {
		render.JSON(w, r, NotFoundResponse("模型族不存在", mldetect.ErrModelNotFound))
		return
	}

	render.JSON(w, r, SuccessResponse("获取模型版本列表成功", versions))
}

// GetVersion 获取模型版本详情
// @Summary 获取模型版本详情
// @Description 根据模型族和版本号获取模型版本，含训练产物与指标
// @Tags 模型版本
// @Produce json
// @Param family path string true "模型族"
// @Param version path int true "版本号"
// @Success 200 {object} APIResponse{data=models.ModelVersion}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /models/{family}/versions/{version} [get]
func (c *ModelController) GetVersion(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	versionNumber, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		render.JSON(w, r, BadRequestResponse("版本号格式错误", err))
		return
	}

	version, err := c.registry.Get(family, versionNumber)
	if err != nil {
		render.JSON(w, r, NotFoundResponse("模型版本不存在", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取模型版本成功", version))
}

// GetActiveVersion 获取当前激活模型版本
// @Summary 获取当前激活模型版本
// @Description 获取指定模型族当前激活的版本
// @Tags 模型版本
// @Produce json
// @Param family path string true "模型族"
// @Success 200 {object} APIResponse{data=models.ModelVersion}
// @Failure 404 {object} APIResponse
// @Router /models/{family}/active [get]
func (c *ModelController) GetActiveVersion(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")

	version, err := c.registry.Active(family)
	if err != nil {
		render.JSON(w, r, NotFoundResponse("模型族不存在", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取激活模型版本成功", version))
}

// AdaptFromFeedback 基于反馈适应模型
// @Summary 基于反馈适应模型
// @Description 用已复核的检测问题作为反馈样本，逐模型族训练并发布新版本
// @Tags 模型版本
// @Accept json
// @Produce json
// @Param request body AdaptModelRequest true "模型适应请求"
// @Success 200 {object} APIResponse{data=[]models.ModelVersion}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /models/adapt [post]
func (c *ModelController) AdaptFromFeedback(w http.ResponseWriter, r *http.Request) {
	var req AdaptModelRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	if req.Author == "" {
		req.Author = "api"
	}

	versions, err := c.detection.AdaptFromFeedback(req.Author)
	if err != nil {
		if errors.Is(err, mldetect.ErrInsufficientFeedback) {
			render.JSON(w, r, BadRequestResponse("反馈样本不足", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("模型适应失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("模型适应成功", versions))
}
