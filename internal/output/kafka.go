package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

// Kafka主题键
const (
	TopicReports       = "reports"
	TopicDiscrepancies = "discrepancies"
)

// KafkaOutput Kafka输出器
type KafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string // 消息类型到topic的映射
	producer sarama.SyncProducer
}

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaOutput, error) {
	logger.Infof("初始化Kafka输出器，brokers: %v", brokers)
	logger.Infof("Kafka topics配置: %v", topics)

	// 配置Kafka生产者
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	// 创建同步生产者
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.NewKafkaError(err, "创建Kafka生产者失败")
	}

	logger.Info("Kafka生产者已创建")
	return NewKafkaOutputWithProducer(producer, topics, logger), nil
}

// NewKafkaOutputWithProducer 使用已有生产者创建输出器
func NewKafkaOutputWithProducer(producer sarama.SyncProducer, topics map[string]string, logger *logrus.Logger) *KafkaOutput {
	if topics == nil {
		topics = map[string]string{}
	}
	return &KafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}
}

// Name 输出器名称
func (k *KafkaOutput) Name() string {
	return "kafka"
}

// WriteReport 发送汇总消息，并逐条发送差异
func (k *KafkaOutput) WriteReport(report *models.DiscrepancyReport) error {
	if report == nil {
		return nil
	}

	topic, exists := k.topics[TopicReports]
	if !exists || topic == "" {
		topic = "contract_audit_reports"
	}
	summary, err := k.newMessage(topic, report.RunID, report.ToKafkaMessage())
	if err != nil {
		return err
	}
	if err := k.send(summary); err != nil {
		return err
	}

	// 未配置差异主题时只发送汇总
	itemTopic := k.topics[TopicDiscrepancies]
	items := report.Flatten()
	if itemTopic == "" || len(items) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(items))
	for i := range items {
		key := items[i].CodeID
		if key == "" {
			key = items[i].Hash
		}
		msg, err := k.newMessage(itemTopic, key, items[i].ToKafkaMessage(report.RunID))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := k.producer.SendMessages(msgs); err != nil {
		return errors.NewKafkaError(err, "批量发送差异消息失败").
			WithContext("topic", itemTopic)
	}

	k.logger.Infof("成功发送 %d 条差异消息到Kafka topic '%s'", len(msgs), itemTopic)
	return nil
}

func (k *KafkaOutput) newMessage(topic, key string, data interface{}) (*sarama.ProducerMessage, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("序列化数据失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(jsonData),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	return msg, nil
}

// send 发送单条消息
func (k *KafkaOutput) send(msg *sarama.ProducerMessage) error {
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return errors.NewKafkaError(err, "发送消息到Kafka失败").
			WithContext("topic", msg.Topic)
	}

	k.logger.Debugf("成功发送数据到Kafka topic '%s' (partition: %d, offset: %d)",
		msg.Topic, partition, offset)
	return nil
}

// Close 关闭Kafka连接
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
