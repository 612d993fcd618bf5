package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type CassandraConfig struct {
	Hosts          []string      `yaml:"hosts" env:"CASSANDRA_HOSTS" env-default:"127.0.0.1" env-description:"Cassandra contact points"`
	Keyspace       string        `yaml:"keyspace" env:"CASSANDRA_KEYSPACE" env-default:"tracestore" env-description:"Keyspace holding the span tables"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" env:"CASSANDRA_CONNECT_TIMEOUT" env-default:"10s"`
}

type StorageConfig struct {
	// StrictTraceID disables the 64-bit shadow rows written for 128-bit
	// trace ids.
	StrictTraceID       bool          `yaml:"strictTraceId" env:"STORAGE_STRICT_TRACE_ID" env-default:"false"`
	DedupTTL            time.Duration `yaml:"dedupTtl" env:"STORAGE_DEDUP_TTL" env-default:"1h"`
	BucketWindow        time.Duration `yaml:"bucketWindow" env:"STORAGE_BUCKET_WINDOW" env-default:"24h"`
	LongestValueToIndex int           `yaml:"longestValueToIndex" env:"STORAGE_LONGEST_VALUE_TO_INDEX" env-default:"256"`
}

type Config struct {
	ListenAddress string          `yaml:"listenAddress" env:"LISTEN_ADDRESS" env-default:":4317"`
	Cassandra     CassandraConfig `yaml:"cassandra"`
	Storage       StorageConfig   `yaml:"storage"`
}

// Load reads the yaml config at path when it exists, then applies environment
// overrides. A missing file falls back to environment and defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error reading config from environment: %w", err)
	}
	return &cfg, nil
}
