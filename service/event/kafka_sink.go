/*
 * @module service/event/kafka_sink
 * @description Kafka生命周期事件汇，向下游数据管道推送检测事件
 * @architecture 适配器模式 - 封装第三方Kafka客户端
 * @documentReference ai_docs/survey_quality_req.md
 * @rules 事件外发失败只记录日志，不影响检测流程
 * @dependencies github.com/segmentio/kafka-go, encoding/json
 * @refs service/event/event_service.go
 */

package event

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"surveyqc-service/service/models"
)

// KafkaSink Kafka事件汇
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSinkFromEnv 从环境变量创建Kafka事件汇
// KAFKA_BROKERS 未配置时返回 nil，事件服务跳过该汇
func NewKafkaSinkFromEnv() *KafkaSink {
	brokers := getEnvWithDefault("KAFKA_BROKERS", "")
	if brokers == "" {
		return nil
	}
	topic := getEnvWithDefault("KAFKA_EVENT_TOPIC", "surveyqc.lifecycle")

	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 100 * time.Millisecond,
		},
	}
}

// Publish 发送生命周期事件，事件类型作为消息key保证同类有序
func (s *KafkaSink) Publish(ctx context.Context, event *models.LifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: payload,
		Time:  event.Timestamp,
	})
}

// Close 关闭生产者
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
