package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// This file defines the Go structs that map to the pipeline.yaml file shared
// by the three catalog services. The `yaml:"..."` tags bind the YAML keys to
// the struct fields.

// PipelineConfig is the root of the configuration structure.
type PipelineConfig struct {
	ProjectID string          `yaml:"project_id"`
	Storage   StorageSpec     `yaml:"storage"`
	Messaging MessagingSpec   `yaml:"messaging"`
	Catalog   CatalogSpec     `yaml:"catalog"`
	Dedupe    DedupeSpec      `yaml:"dedupe,omitempty"`
	Batching  BatchingSpec    `yaml:"batching"`
	Uploads   UploadIssueSpec `yaml:"uploads"`
}

// StorageSpec names the bucket shared by the pipeline. The uploaded/ and
// parsed/ prefixes are part of the pipeline's contract and not configurable;
// only the report prefix is.
type StorageSpec struct {
	Bucket        string `yaml:"bucket"`
	ReportsPrefix string `yaml:"reports_prefix,omitempty"`
}

// MessagingSpec names the Pub/Sub resources used by the pipeline.
type MessagingSpec struct {
	StorageEventSubscription string `yaml:"storage_event_subscription"`
	WorkTopic                string `yaml:"work_topic"`
	WorkSubscription         string `yaml:"work_subscription"`
	NotificationTopic        string `yaml:"notification_topic"`
}

// CatalogSpec names the Firestore collections for persisted records.
type CatalogSpec struct {
	ProductCollection string `yaml:"product_collection,omitempty"`
	StockCollection   string `yaml:"stock_collection,omitempty"`
}

// DedupeSpec configures the optional Redis row registry. An empty address
// disables deduplication.
type DedupeSpec struct {
	RedisAddr string   `yaml:"redis_addr,omitempty"`
	KeyTTL    Duration `yaml:"key_ttl,omitempty"`
}

// BatchingSpec configures how the batch worker groups queued records.
type BatchingSpec struct {
	BatchSize    int      `yaml:"batch_size,omitempty"`
	FlushTimeout Duration `yaml:"flush_timeout,omitempty"`
}

// UploadIssueSpec configures the upload credential API.
type UploadIssueSpec struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// Defaults applied where the YAML leaves fields unset.
const (
	DefaultReportsPrefix     = "reports"
	DefaultProductCollection = "products"
	DefaultStockCollection   = "stocks"
	DefaultBatchSize         = 5
	DefaultFlushTimeout      = 1 * time.Minute
	DefaultListenAddr        = ":8080"
)

// LoadPipelineConfig reads a YAML configuration file from the given path,
// unmarshals it into PipelineConfig, applies defaults and validates it.
func LoadPipelineConfig(configPath string) (*PipelineConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	var config PipelineConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML from '%s': %w", configPath, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *PipelineConfig) applyDefaults() {
	if c.Storage.ReportsPrefix == "" {
		c.Storage.ReportsPrefix = DefaultReportsPrefix
	}
	if c.Catalog.ProductCollection == "" {
		c.Catalog.ProductCollection = DefaultProductCollection
	}
	if c.Catalog.StockCollection == "" {
		c.Catalog.StockCollection = DefaultStockCollection
	}
	if c.Batching.BatchSize <= 0 {
		c.Batching.BatchSize = DefaultBatchSize
	}
	if c.Batching.FlushTimeout <= 0 {
		c.Batching.FlushTimeout = Duration(DefaultFlushTimeout)
	}
	if c.Uploads.ListenAddr == "" {
		c.Uploads.ListenAddr = DefaultListenAddr
	}
}

// Validate checks that the resources every service depends on are named.
func (c *PipelineConfig) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("validation error: project_id is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("validation error: storage.bucket is required")
	}
	if c.Messaging.WorkTopic == "" {
		return fmt.Errorf("validation error: messaging.work_topic is required")
	}
	if c.Messaging.WorkSubscription == "" {
		return fmt.Errorf("validation error: messaging.work_subscription is required")
	}
	if c.Messaging.StorageEventSubscription == "" {
		return fmt.Errorf("validation error: messaging.storage_event_subscription is required")
	}
	if c.Messaging.NotificationTopic == "" {
		return fmt.Errorf("validation error: messaging.notification_topic is required")
	}
	return nil
}

// Duration wraps time.Duration to implement yaml.Unmarshaler, so "1m" and
// "24h" parse directly.
type Duration time.Duration

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
