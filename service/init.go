/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移播种与全局服务装配
 * @architecture 分层架构 - 服务层
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 应用启动时执行初始化流程
 * @rules 确保所有依赖服务正常启动后才提供API服务
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs service/database/migrate.go
 */

package service

import (
	"context"
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"surveyqc-service/service/database"
	"surveyqc-service/service/dataset"
	"surveyqc-service/service/distributed_lock"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/event"
	"surveyqc-service/service/mldetect"
	"surveyqc-service/service/scheduler"
	"surveyqc-service/service/scoring"
	"surveyqc-service/service/versioning"

	// 注册全部内置检测项
	_ "surveyqc-service/service/detectors"
)

var (
	DB                       *gorm.DB
	GlobalDatasetStore       *dataset.Store
	GlobalEventService       *event.Service
	GlobalVersionService     *versioning.Service
	GlobalModelRegistry      *mldetect.Registry
	GlobalScoringService     *scoring.Service
	GlobalDetectionService   *DetectionService
	GlobalDetectionScheduler *scheduler.DetectionScheduler
	GlobalDistributedLock    *distributed_lock.RedisLock
)

func init() {
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "things2024")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Asia/Shanghai",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移与播种
func runMigrations() {
	log.Println("开始运行数据库迁移...")

	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")

	if err := database.SeedCheckDefinitions(DB, engine.Default); err != nil {
		log.Fatalf("检查定义播种失败: %v", err)
	}
	log.Println("检查定义播种完成")
}

// initServices 初始化服务
func initServices() {
	GlobalDatasetStore = dataset.NewStore()

	// 事件服务与可选的外部事件汇
	var sinks []event.Sink
	if kafkaSink := event.NewKafkaSinkFromEnv(); kafkaSink != nil {
		sinks = append(sinks, kafkaSink)
		log.Println("Kafka事件汇已启用")
	}
	if mqttSink, err := event.NewMQTTSinkFromEnv(); err != nil {
		log.Printf("MQTT事件汇初始化失败: %v", err)
	} else if mqttSink != nil {
		sinks = append(sinks, mqttSink)
		log.Println("MQTT事件汇已启用")
	}
	GlobalEventService = event.NewService(DB, sinks...)

	GlobalVersionService = versioning.NewService(DB)

	var err error
	GlobalModelRegistry, err = mldetect.NewRegistry(DB)
	if err != nil {
		log.Fatalf("模型注册表初始化失败: %v", err)
	}
	if err := database.SeedModelVersions(GlobalModelRegistry); err != nil {
		log.Fatalf("模型版本播种失败: %v", err)
	}

	GlobalScoringService = scoring.NewService(DB, scoring.DefaultWeights())
	GlobalDetectionService = NewDetectionService(DB, GlobalDatasetStore, engine.Default,
		GlobalVersionService, GlobalModelRegistry, GlobalScoringService, GlobalEventService)

	// 分布式锁是可选依赖，Redis不可用时退化为单实例调度
	var lock distributed_lock.DistributedLock
	if redisLock, err := distributed_lock.NewRedisLock(); err != nil {
		log.Printf("Redis分布式锁不可用，调度器单实例运行: %v", err)
	} else {
		GlobalDistributedLock = redisLock
		lock = redisLock
	}

	GlobalDetectionScheduler = scheduler.NewDetectionScheduler(GlobalDatasetStore, lock,
		func(ctx context.Context, datasetRef, triggeredBy string) error {
			_, err := GlobalDetectionService.RunDetection(ctx, datasetRef, triggeredBy, nil)
			return err
		},
		func(author string) error {
			_, err := GlobalDetectionService.AdaptFromFeedback(author)
			return err
		})

	if err := GlobalDetectionScheduler.Start(); err != nil {
		log.Printf("启动检测调度器失败: %v", err)
	}
	log.Println("服务初始化完成")
}
