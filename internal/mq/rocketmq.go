package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	rocketmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/apache/rocketmq-clients/golang/v5/credentials"
	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/logger"
	"go.uber.org/zap"
)

func init() {
	// 此时配置尚未加载，applyLogLevel 稍后更新日志级别
	os.Setenv("mq.consoleAppender.enabled", "true")
	if os.Getenv("rocketmq.client.logLevel") == "" {
		os.Setenv("rocketmq.client.logLevel", "WARN")
	}
	rocketmq.ResetLogger()
}

// applyLogLevel 使 SDK 日志级别与配置一致
func applyLogLevel(level string) {
	if level == "" || os.Getenv("rocketmq.client.logLevel") == level {
		return
	}
	os.Setenv("rocketmq.client.logLevel", level)
	rocketmq.ResetLogger()
}

var (
	globalMQClient     *RocketMQClient
	globalMQClientInit sync.Once
)

// RocketMQClient 生产者封装
// 禁用的客户端直接返回错误丢弃消息，不会阻塞调用方
type RocketMQClient struct {
	producer rocketmq.Producer
	topic    string
	enabled  bool
}

// GetGlobalMQClient 获取全局生产者，首次使用时创建
func GetGlobalMQClient() *RocketMQClient {
	globalMQClientInit.Do(func() {
		client, err := NewRocketMQClient(config.GetConfig().RocketMQ)
		if err != nil {
			logger.Logger.Warn("init rocketmq client failed", zap.Error(err))
			client = &RocketMQClient{enabled: false}
		}
		globalMQClient = client
	})
	return globalMQClient
}

// NewRocketMQClient 启动生产者。任何失败都返回禁用的客户端而不是错误，
// 服务在没有通知的情况下继续运行
func NewRocketMQClient(cfg config.RocketMQConfig) (*RocketMQClient, error) {
	applyLogLevel(cfg.LogLevel)

	topic := DefaultNotifyTopic
	if len(cfg.Topics) > 0 && cfg.Topics[0] != "" {
		topic = cfg.Topics[0]
	}

	if !cfg.Enabled {
		logger.Logger.Info("rocketmq disabled, notifications will not be published")
		return &RocketMQClient{topic: topic, enabled: false}, nil
	}

	endpoint := fmt.Sprintf("%s:%d", cfg.Endpoint, cfg.Port)

	// 即使未开启 ACL，SDK 也不接受 nil 凭证
	producerConfig := &rocketmq.Config{
		Endpoint: endpoint,
		Credentials: &credentials.SessionCredentials{
			AccessKey:    cfg.AccessKey,
			AccessSecret: cfg.AccessSecret,
		},
	}

	var opts []rocketmq.ProducerOption
	for _, t := range cfg.Topics {
		opts = append(opts, rocketmq.WithTopics(t))
	}

	var producer rocketmq.Producer
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic creating rocketmq producer: %v", r)
			}
		}()
		producer, err = rocketmq.NewProducer(producerConfig, opts...)
	}()
	if err != nil {
		logger.Logger.Warn("create rocketmq producer failed, notifications disabled",
			zap.String("endpoint", endpoint),
			zap.String("producer_group", cfg.ProducerGroup),
			zap.Error(err))
		return &RocketMQClient{topic: topic, enabled: false}, nil
	}

	startErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic starting rocketmq producer: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- producer.Start()
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return fmt.Errorf("start rocketmq producer timed out: %w", ctx.Err())
		}
	}()

	if startErr != nil {
		var hint string
		msg := startErr.Error()
		if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "create grpc conn failed") {
			hint = "check that the broker is running and endpoint/port are correct"
		} else if strings.Contains(msg, "topic route") {
			hint = "check that the configured topics exist"
		}
		logger.Logger.Warn("start rocketmq producer failed, notifications disabled",
			zap.String("endpoint", endpoint),
			zap.Strings("topics", cfg.Topics),
			zap.String("hint", hint),
			zap.Error(startErr))
		_ = producer.GracefulStop()
		return &RocketMQClient{topic: topic, enabled: false}, nil
	}

	logger.Logger.Info("rocketmq producer started",
		zap.String("endpoint", endpoint),
		zap.String("producer_group", cfg.ProducerGroup),
		zap.Strings("topics", cfg.Topics))

	return &RocketMQClient{
		producer: producer,
		topic:    topic,
		enabled:  true,
	}, nil
}

// SendMessage 将 body 序列化为 JSON 发送到 topic
func (c *RocketMQClient) SendMessage(ctx context.Context, topic, tag string, body interface{}) error {
	if !c.enabled {
		return fmt.Errorf("rocketmq disabled")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	message := &rocketmq.Message{
		Topic: topic,
		Body:  data,
	}
	if tag != "" {
		message.SetTag(tag)
	}
	message.SetKeys(keysOf(body)...)

	if _, err := c.producer.Send(ctx, message); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// PublishRequisitionEvent 发送事件到通知 topic，tag 为事件名
func (c *RocketMQClient) PublishRequisitionEvent(ctx context.Context, event RequisitionEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	return c.SendMessage(ctx, c.topic, event.Event, event)
}

func keysOf(body interface{}) []string {
	if e, ok := body.(RequisitionEvent); ok && e.RequisitionID != "" {
		return []string{e.RequisitionID}
	}
	return nil
}

// Close 关闭生产者，最多等待 5 秒
func (c *RocketMQClient) Close() error {
	if !c.enabled || c.producer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.producer.GracefulStop()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("stop rocketmq producer: %w", err)
		}
	case <-ctx.Done():
		logger.Logger.Warn("stop rocketmq producer timed out", zap.Error(ctx.Err()))
		return nil
	}

	logger.Logger.Info("rocketmq producer stopped")
	return nil
}

// IsEnabled 是否真正发送消息
func (c *RocketMQClient) IsEnabled() bool {
	return c.enabled
}
