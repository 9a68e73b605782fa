// Package config loads robopoint settings from an ini file and the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

// Backends the service can use as its message stream.
const (
	BackendKinesis  = "kinesis"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Checkpoint storage drivers.
const (
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

// Credentials is an AWS access key pair. Empty keys defer to the default
// credential chain.
type Credentials struct {
	Key    string `ini:"key" env:"KEY"`
	Secret string `ini:"secret" env:"SECRET"`
}

// Kinesis configures the Kinesis backend.
type Kinesis struct {
	Region       string `ini:"region" env:"REGION"`
	Endpoint     string `ini:"endpoint" env:"ENDPOINT"`
	IteratorType string `ini:"iterator_type" env:"ITERATOR_TYPE"`
	RecordLimit  int64  `ini:"record_limit" env:"RECORD_LIMIT"`

	ConsumerKey    string `ini:"consumer_key" env:"CONSUMER_KEY"`
	ConsumerSecret string `ini:"consumer_secret" env:"CONSUMER_SECRET"`
	ProducerKey    string `ini:"producer_key" env:"PRODUCER_KEY"`
	ProducerSecret string `ini:"producer_secret" env:"PRODUCER_SECRET"`
}

// Consumer returns the credentials used to read the stream.
func (k Kinesis) Consumer() Credentials {
	return Credentials{Key: k.ConsumerKey, Secret: k.ConsumerSecret}
}

// Producer returns the credentials used to write the stream.
func (k Kinesis) Producer() Credentials {
	return Credentials{Key: k.ProducerKey, Secret: k.ProducerSecret}
}

// DynamoDB configures the DynamoDB client shared by the dynamodb backend and
// the dynamodb checkpoint driver.
type DynamoDB struct {
	Region       string `ini:"region" env:"REGION"`
	Endpoint     string `ini:"endpoint" env:"ENDPOINT"`
	IteratorType string `ini:"iterator_type" env:"ITERATOR_TYPE"`
}

// Checkpoint configures where consumer progress is kept.
type Checkpoint struct {
	Driver        string `ini:"driver" env:"DRIVER"`
	File          string `ini:"file" env:"FILE"`
	Document      string `ini:"document" env:"DOCUMENT"`
	RedisAddr     string `ini:"redis_addr" env:"REDIS_ADDR"`
	RedisKey      string `ini:"redis_key" env:"REDIS_KEY"`
	PostgresDSN   string `ini:"postgres_dsn" env:"POSTGRES_DSN"`
	PostgresTable string `ini:"postgres_table" env:"POSTGRES_TABLE"`
	DynamoDBTable string `ini:"dynamodb_table" env:"DYNAMODB_TABLE"`
}

// HTTP configures the HTTP server.
type HTTP struct {
	Addr            string        `ini:"addr" env:"ADDR"`
	ShutdownTimeout time.Duration `ini:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Read configures the catch-up loop.
type Read struct {
	Timeout       time.Duration `ini:"timeout" env:"TIMEOUT"`
	MaxPolls      int           `ini:"max_polls" env:"MAX_POLLS"`
	MaxEmptyPolls int           `ini:"max_empty_polls" env:"MAX_EMPTY_POLLS"`
	MaxBatches    int           `ini:"max_batches" env:"MAX_BATCHES"`
	StartShard    int           `ini:"start_shard" env:"START_SHARD"`
	MemoryShards  int           `ini:"memory_shards" env:"MEMORY_SHARDS"`
}

// Log configures logging.
type Log struct {
	Level  string `ini:"level" env:"LEVEL"`
	Format string `ini:"format" env:"FORMAT"`
}

// Config is the complete service configuration.
type Config struct {
	StreamName           string `ini:"stream_name" env:"STREAM_NAME"`
	Backend              string `ini:"backend" env:"BACKEND"`
	MessageSchemaDir     string `ini:"message_schema_dir" env:"MESSAGE_SCHEMA_DIR"`
	MessageSchemaVersion string `ini:"message_schema_version" env:"MESSAGE_SCHEMA_VERSION"`

	Kinesis    Kinesis    `ini:"kinesis" envPrefix:"KINESIS_"`
	DynamoDB   DynamoDB   `ini:"dynamodb" envPrefix:"DYNAMODB_"`
	Checkpoint Checkpoint `ini:"checkpoint" envPrefix:"CHECKPOINT_"`
	HTTP       HTTP       `ini:"http" envPrefix:"HTTP_"`
	Read       Read       `ini:"read" envPrefix:"READ_"`
	Log        Log        `ini:"log" envPrefix:"LOG_"`
}

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ROBOPOINT_"

// Default returns the configuration used for values no source sets.
func Default() Config {
	return Config{
		Backend:              BackendKinesis,
		MessageSchemaVersion: "v_0_1",
		Kinesis: Kinesis{
			IteratorType: "TRIM_HORIZON",
		},
		DynamoDB: DynamoDB{
			IteratorType: "TRIM_HORIZON",
		},
		Checkpoint: Checkpoint{
			Driver:        DriverFile,
			File:          "robopoint-recovery.json",
			Document:      "robopoint",
			RedisKey:      "robopoint:checkpoints",
			PostgresTable: "robopoint_checkpoints",
		},
		HTTP: HTTP{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Read: Read{
			Timeout:       30 * time.Second,
			MaxPolls:      100,
			MaxEmptyPolls: 1,
			MaxBatches:    10,
			MemoryShards:  2,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load starts from Default, applies the ini file at path if path is not empty,
// then applies ROBOPOINT_ environment variables, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		file, err := ini.Load(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "load config file %s", path)
		}
		if err := file.MapTo(&cfg); err != nil {
			return Config{}, errors.Wrapf(err, "map config file %s", path)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	if c.StreamName == "" {
		return errors.New("stream_name is required")
	}

	switch c.Backend {
	case BackendKinesis:
		if c.Kinesis.Region == "" {
			return errors.New("kinesis region is required for the kinesis backend")
		}
	case BackendDynamoDB:
		if c.DynamoDB.Region == "" {
			return errors.New("dynamodb region is required for the dynamodb backend")
		}
	case BackendMemory:
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	switch c.Checkpoint.Driver {
	case DriverFile:
		if c.Checkpoint.File == "" {
			return errors.New("checkpoint file is required for the file driver")
		}
	case DriverRedis:
		if c.Checkpoint.RedisAddr == "" {
			return errors.New("checkpoint redis_addr is required for the redis driver")
		}
	case DriverPostgres:
		if c.Checkpoint.PostgresDSN == "" {
			return errors.New("checkpoint postgres_dsn is required for the postgres driver")
		}
	case DriverDynamoDB:
		if c.Checkpoint.DynamoDBTable == "" || c.DynamoDB.Region == "" {
			return errors.New("checkpoint dynamodb_table and dynamodb region are required for the dynamodb driver")
		}
	default:
		return errors.Errorf("unknown checkpoint driver %q", c.Checkpoint.Driver)
	}

	if c.Read.MaxPolls < 0 {
		return errors.New("read max_polls must not be negative")
	}
	return nil
}
