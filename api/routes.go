/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference dev_docs/requirements.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs dev_docs/model.md
 */

package api

import (
	"surveyqc-service/api/controllers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// SSE事件订阅
	eventController := controllers.NewEventController()
	r.Get("/sse/{user_name}", eventController.HandleSSE)

	// 数据集登记与检测运行
	r.Route("/detection", func(r chi.Router) {
		detectionController := controllers.NewDetectionController()

		r.Post("/datasets", detectionController.IngestDataset)
		r.Get("/datasets", detectionController.ListDatasets)

		r.Post("/runs", detectionController.RunDetection)
		r.Get("/runs", detectionController.ListRuns)
		r.Get("/runs/{id}", detectionController.GetRun)
		r.Get("/runs/{id}/summary", detectionController.GetRunSummary)
	})

	// 质量问题管理
	r.Route("/issues", func(r chi.Router) {
		issueController := controllers.NewIssueController()

		r.Get("/", issueController.ListIssues)
		r.Put("/{id}/status", issueController.UpdateIssueStatus)
	})

	// 质量检查与规则版本管理
	r.Route("/quality-checks", func(r chi.Router) {
		qualityCheckController := controllers.NewQualityCheckController()

		r.Get("/", qualityCheckController.ListChecks)
		r.Get("/catalog", qualityCheckController.Catalog)
		r.Get("/{id}/active", qualityCheckController.GetActiveVersion)
		r.Get("/{id}/versions", qualityCheckController.ListVersions)
		r.Post("/{id}/versions", qualityCheckController.ProposeVersion)
		r.Post("/{id}/activate", qualityCheckController.ActivateVersion)
		r.Post("/{id}/rollback", qualityCheckController.RollbackVersion)
		r.Get("/{id}/audit", qualityCheckController.ListAuditEvents)
		r.Put("/{id}/enabled", qualityCheckController.SetEnabled)
	})

	// 模型版本管理
	r.Route("/models", func(r chi.Router) {
		modelController := controllers.NewModelController()

		r.Get("/", modelController.ListFamilies)
		r.Post("/adapt", modelController.AdaptFromFeedback)
		r.Get("/{family}/versions", modelController.ListVersions)
		r.Get("/{family}/versions/{version}", modelController.GetVersion)
		r.Get("/{family}/active", modelController.GetActiveVersion)
	})

	// 质量评分卡
	r.Route("/scorecards", func(r chi.Router) {
		scorecardController := controllers.NewScorecardController()

		r.Get("/{run_id}", scorecardController.GetScorecard)
	})
}
