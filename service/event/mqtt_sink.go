/*
 * @module service/event/mqtt_sink
 * @description MQTT生命周期事件汇，向物联采集端/看板推送检测事件
 * @architecture 适配器模式 - 封装第三方MQTT客户端
 * @documentReference ai_docs/survey_quality_req.md
 * @rules 事件外发失败只记录日志，不影响检测流程
 * @dependencies github.com/eclipse/paho.mqtt.golang, encoding/json
 * @refs service/event/event_service.go
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"surveyqc-service/service/models"
)

// MQTTSink MQTT事件汇
type MQTTSink struct {
	client      mqtt.Client
	topicPrefix string
}

// NewMQTTSinkFromEnv 从环境变量创建MQTT事件汇
// MQTT_BROKER 未配置或连接失败时返回 nil，事件服务跳过该汇
func NewMQTTSinkFromEnv() (*MQTTSink, error) {
	broker := getEnvWithDefault("MQTT_BROKER", "")
	if broker == "" {
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(getEnvWithDefault("MQTT_CLIENT_ID", "surveyqc-service"))
	if username := getEnvWithDefault("MQTT_USERNAME", ""); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(getEnvWithDefault("MQTT_PASSWORD", ""))
	}
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT连接失败: %w", token.Error())
	}

	return &MQTTSink{
		client:      client,
		topicPrefix: getEnvWithDefault("MQTT_EVENT_TOPIC_PREFIX", "surveyqc/lifecycle"),
	}, nil
}

// Publish 发送生命周期事件，主题按事件类型分层
func (s *MQTTSink) Publish(_ context.Context, event *models.LifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s", s.topicPrefix, event.Type)
	token := s.client.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

// Close 断开MQTT连接
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
