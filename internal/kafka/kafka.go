package kafka

import (
	"log/slog"
	"strings"

	kgo "github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
)

// MustNewReader creates a consumer group reader for the configured topic.
// Offsets are committed manually.
func MustNewReader() *kgo.Reader {
	brokers := viper.GetStringSlice("kafka.brokers")
	if len(brokers) == 0 {
		if csv := viper.GetString("kafka.brokers"); csv != "" {
			brokers = strings.Split(csv, ",")
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	topic := viper.GetString("kafka.topic")
	if topic == "" {
		panic("kafka.topic is not set in config")
	}

	groupID := viper.GetString("kafka.group_id")
	if groupID == "" {
		groupID = "dispatcher"
	}

	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})

	slog.Info("Kafka reader created", "brokers", brokers, "topic", topic, "group_id", groupID)

	return r
}
