// Package config loads the YAML configuration shared by the profile
// processes and applies PROFILE_* environment overrides on top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverS3       = "s3"
)

// Bridge drivers.
const (
	BridgeKafka = "kafka"
	BridgeNone  = "none"
)

// Update modes for the profile store.
const (
	UpdateNoop   = "noop"
	UpdateUpsert = "upsert"
)

// Config struct for YAML configuration
type Config struct {
	GRPCPort  int     `yaml:"GRPC_PORT"`
	HTTPPort  int     `yaml:"HTTP_PORT"`
	JWTSecret string  `yaml:"JWT_SECRET"`
	Storage   Storage `yaml:"STORAGE"`
	Bridge    Bridge  `yaml:"BRIDGE"`
	Store     Store   `yaml:"STORE"`
	Agent     Agent   `yaml:"AGENT"`
}

// Storage selects and configures the durable key-value backend.
type Storage struct {
	Driver         string   `yaml:"DRIVER"`
	Key            string   `yaml:"KEY"`
	SQLitePath     string   `yaml:"SQLITE_PATH"`
	Postgres       Postgres `yaml:"POSTGRES"`
	Redis          Redis    `yaml:"REDIS"`
	S3             S3       `yaml:"S3"`
	ConnectRetries uint64   `yaml:"CONNECT_RETRIES"`
}

type Postgres struct {
	Host     string `yaml:"HOST"`
	Port     int    `yaml:"PORT"`
	User     string `yaml:"USER"`
	Password string `yaml:"PASSWORD"`
	DBName   string `yaml:"NAME"`
	SSLMode  string `yaml:"SSLMODE"`
}

type Redis struct {
	URL          string        `yaml:"URL"`
	KeyPrefix    string        `yaml:"KEY_PREFIX"`
	PoolSize     int           `yaml:"POOL_SIZE"`
	DialTimeout  time.Duration `yaml:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"WRITE_TIMEOUT"`
}

type S3 struct {
	Bucket          string `yaml:"BUCKET"`
	Region          string `yaml:"REGION"`
	Endpoint        string `yaml:"ENDPOINT"`
	Prefix          string `yaml:"PREFIX"`
	PathStyle       bool   `yaml:"PATH_STYLE"`
	AccessKeyID     string `yaml:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"SECRET_ACCESS_KEY"`
}

// Bridge configures the autofill bridge.
type Bridge struct {
	Driver       string        `yaml:"DRIVER"`
	KafkaBrokers []string      `yaml:"KAFKA_BROKERS"`
	Topic        string        `yaml:"TOPIC"`
	Device       string        `yaml:"DEVICE"`
	QueueSize    int           `yaml:"QUEUE_SIZE"`
	Timeout      time.Duration `yaml:"TIMEOUT"`
}

// Store tunes the profile store behavior.
type Store struct {
	UpdateMode  string `yaml:"UPDATE_MODE"`
	StrictReads bool   `yaml:"STRICT_READS"`
}

// Agent configures the autofill agent that mirrors bridge snapshots.
type Agent struct {
	HTTPPort  int     `yaml:"HTTP_PORT"`
	GroupID   string  `yaml:"GROUP_ID"`
	MirrorKey string  `yaml:"MIRROR_KEY"`
	Storage   Storage `yaml:"STORAGE"`
}

// DefaultPath is used when neither an explicit path nor PROFILE_CONFIG is set.
var DefaultPath = filepath.Join("internal", "profile", "config", "config.yaml")

// Load reads the YAML file at path (or PROFILE_CONFIG, or DefaultPath),
// applies environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PROFILE_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(file)
}

// Parse decodes YAML bytes and finishes the config like Load does.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	ints := map[string]*int{
		"PROFILE_HTTP_PORT":  &c.HTTPPort,
		"PROFILE_GRPC_PORT":  &c.GRPCPort,
		"PROFILE_DB_PORT":    &c.Storage.Postgres.Port,
		"PROFILE_AGENT_PORT": &c.Agent.HTTPPort,
	}
	for name, dst := range ints {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}

	strs := map[string]*string{
		"PROFILE_JWT_SECRET":     &c.JWTSecret,
		"PROFILE_STORAGE_DRIVER": &c.Storage.Driver,
		"PROFILE_STORAGE_KEY":    &c.Storage.Key,
		"PROFILE_SQLITE_PATH":    &c.Storage.SQLitePath,
		"PROFILE_DB_HOST":        &c.Storage.Postgres.Host,
		"PROFILE_DB_USER":        &c.Storage.Postgres.User,
		"PROFILE_DB_PASSWORD":    &c.Storage.Postgres.Password,
		"PROFILE_DB_NAME":        &c.Storage.Postgres.DBName,
		"PROFILE_REDIS_URL":      &c.Storage.Redis.URL,
		"PROFILE_S3_BUCKET":      &c.Storage.S3.Bucket,
		"PROFILE_S3_REGION":      &c.Storage.S3.Region,
		"PROFILE_S3_ENDPOINT":    &c.Storage.S3.Endpoint,
		"PROFILE_BRIDGE_DRIVER":  &c.Bridge.Driver,
		"PROFILE_BRIDGE_TOPIC":   &c.Bridge.Topic,
		"PROFILE_DEVICE":         &c.Bridge.Device,
		"PROFILE_UPDATE_MODE":    &c.Store.UpdateMode,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("PROFILE_KAFKA_BROKERS"); ok {
		c.Bridge.KafkaBrokers = splitList(v)
	}
	if v, ok := os.LookupEnv("PROFILE_STRICT_READS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PROFILE_STRICT_READS: %w", err)
		}
		c.Store.StrictReads = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.GRPCPort == 0 {
		c.GRPCPort = 50051
	}
	c.Storage.applyDefaults()
	c.Agent.Storage.applyDefaults()
	if c.Bridge.Driver == "" {
		c.Bridge.Driver = BridgeNone
	}
	if c.Bridge.Topic == "" {
		c.Bridge.Topic = "autofill.snapshots"
	}
	if c.Bridge.Device == "" {
		c.Bridge.Device = "default"
	}
	if c.Bridge.QueueSize <= 0 {
		c.Bridge.QueueSize = 100
	}
	if c.Bridge.Timeout <= 0 {
		c.Bridge.Timeout = 5 * time.Second
	}
	if c.Store.UpdateMode == "" {
		c.Store.UpdateMode = UpdateNoop
	}
	if c.Agent.HTTPPort == 0 {
		c.Agent.HTTPPort = 8082
	}
	if c.Agent.GroupID == "" {
		c.Agent.GroupID = "autofill-agent"
	}
	if c.Agent.MirrorKey == "" {
		c.Agent.MirrorKey = "autofill:snapshot"
	}
}

func (s *Storage) applyDefaults() {
	if s.Driver == "" {
		s.Driver = DriverSQLite
	}
	if s.SQLitePath == "" {
		s.SQLitePath = "profiles.db"
	}
	if s.Postgres.Port == 0 {
		s.Postgres.Port = 5432
	}
	if s.Postgres.SSLMode == "" {
		s.Postgres.SSLMode = "disable"
	}
	if s.ConnectRetries == 0 {
		s.ConnectRetries = 5
	}
}

// Validate reports unsupported drivers and missing settings.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	switch c.Bridge.Driver {
	case BridgeNone:
	case BridgeKafka:
		if len(c.Bridge.KafkaBrokers) == 0 {
			return fmt.Errorf("bridge: kafka driver needs KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("bridge: unknown driver %q", c.Bridge.Driver)
	}
	switch c.Store.UpdateMode {
	case UpdateNoop, UpdateUpsert:
	default:
		return fmt.Errorf("store: unknown update mode %q", c.Store.UpdateMode)
	}
	return nil
}

// Validate checks the driver specific settings.
func (s *Storage) Validate() error {
	switch s.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if s.Postgres.Host == "" || s.Postgres.DBName == "" {
			return fmt.Errorf("postgres driver needs HOST and NAME")
		}
	case DriverRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("redis driver needs URL")
		}
	case DriverS3:
		if s.S3.Bucket == "" {
			return fmt.Errorf("s3 driver needs BUCKET")
		}
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
