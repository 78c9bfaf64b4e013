package kafka

import (
	"time"
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string

	// Producer settings
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack

	// Consumer settings
	MinBytes      int
	MaxBytes      int
	MaxWait       time.Duration
	CommitTimeout time.Duration

	// SASL settings
	SASLEnabled   bool
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "tracking-default-group",
		ClientID:      "tracking-client",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1, // All replicas

		MinBytes:      1,
		MaxBytes:      10e6, // 10MB
		MaxWait:       500 * time.Millisecond,
		CommitTimeout: 5 * time.Second,

		SASLEnabled: false,
	}
}

// Topics contains all tracking Kafka topic names
var Topics = struct {
	// Domain event topics
	FileEvents       string
	EscalationEvents string

	// Inbound signal topics
	WorkItemEvents string
}{
	FileEvents:       "tracking.files.events",
	EscalationEvents: "tracking.escalations.events",

	WorkItemEvents: "tracking.workitems.events",
}

// TopicConfig holds configuration for a Kafka topic
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopicConfigs returns default configurations for tracking topics
func DefaultTopicConfigs() []TopicConfig {
	return []TopicConfig{
		{Name: Topics.FileEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: 7 * 24 * 60 * 60 * 1000},        // 7 days
		{Name: Topics.EscalationEvents, Partitions: 3, ReplicationFactor: 3, RetentionMs: 30 * 24 * 60 * 60 * 1000}, // 30 days for audit
		{Name: Topics.WorkItemEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: 7 * 24 * 60 * 60 * 1000},
	}
}
