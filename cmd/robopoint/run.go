package main

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams"
	awskinesis "github.com/aws/aws-sdk-go/service/kinesis"
	robopoint "github.com/bdna/robopoint"
	"github.com/bdna/robopoint/checkpoint"
	"github.com/bdna/robopoint/config"
	"github.com/bdna/robopoint/dynamostreams"
	"github.com/bdna/robopoint/kinesis"
	"github.com/bdna/robopoint/memory"
	"github.com/bdna/robopoint/message"
	"github.com/bdna/robopoint/server"
	"github.com/pkg/errors"
)

// backend is the stream the service reads from and the one it writes to. They
// differ only when the kinesis consumer and producer use separate keys.
type backend struct {
	source   robopoint.ShardSource
	producer robopoint.Producer
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	logger = logger.WithFields(log.Fields{"stream": cfg.StreamName, "backend": cfg.Backend})

	b, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}

	storage, closeStorage, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()
	logger.WithField("checkpoint", storage.Location()).Info("checkpoint storage ready")

	factory, err := message.NewFactory(cfg.MessageSchemaDir, cfg.MessageSchemaVersion)
	if err != nil {
		return err
	}

	consumer := robopoint.NewShardConsumer(b.source,
		robopoint.WithShardLogger(logger),
		robopoint.WithMaxBatches(cfg.Read.MaxBatches),
		robopoint.WithDefaultMaxEmptyPolls(cfg.Read.MaxEmptyPolls),
	)
	reader, err := robopoint.NewReader(cfg.StreamName, consumer,
		robopoint.WithCheckpoint(checkpoint.New(storage, checkpoint.WithLogger(logger))),
		robopoint.WithLogger(logger),
		robopoint.WithStartShard(cfg.Read.StartShard),
		robopoint.WithMaxEmptyPolls(cfg.Read.MaxEmptyPolls),
		robopoint.WithMaxPolls(cfg.Read.MaxPolls),
	)
	if err != nil {
		return err
	}

	srv := server.New(cfg.StreamName, reader, b.producer, factory,
		server.WithLogger(logger),
		server.WithReadTimeout(cfg.Read.Timeout),
	)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: srv.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("listening")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve http")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Log, w io.Writer) (log.Interface, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}

	var handler log.Handler
	switch cfg.Format {
	case "json":
		handler = json.New(w)
	case "text":
		handler = text.New(w)
	default:
		return nil, errors.Errorf("unknown log format %q", cfg.Format)
	}
	return &log.Logger{Handler: handler, Level: level}, nil
}

func awsSession(region, endpoint string, creds config.Credentials) (*session.Session, error) {
	c := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		c = c.WithEndpoint(endpoint)
	}
	if creds.Key != "" {
		c = c.WithCredentials(credentials.NewStaticCredentials(creds.Key, creds.Secret, ""))
	}
	return session.NewSession(c)
}

func newBackend(cfg config.Config, logger log.Interface) (*backend, error) {
	switch cfg.Backend {
	case config.BackendKinesis:
		newStream := func(creds config.Credentials) (*kinesis.Stream, error) {
			sess, err := awsSession(cfg.Kinesis.Region, cfg.Kinesis.Endpoint, creds)
			if err != nil {
				return nil, err
			}
			return kinesis.New(
				kinesis.WithClient(awskinesis.New(sess)),
				kinesis.WithLogger(logger),
				kinesis.WithShardIteratorType(cfg.Kinesis.IteratorType),
				kinesis.WithRecordLimit(cfg.Kinesis.RecordLimit),
			)
		}
		source, err := newStream(cfg.Kinesis.Consumer())
		if err != nil {
			return nil, errors.Wrap(err, "kinesis consumer")
		}
		producer, err := newStream(cfg.Kinesis.Producer())
		if err != nil {
			return nil, errors.Wrap(err, "kinesis producer")
		}
		return &backend{source: source, producer: producer}, nil

	case config.BackendDynamoDB:
		sess, err := awsSession(cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint, config.Credentials{})
		if err != nil {
			return nil, err
		}
		s, err := dynamostreams.New(
			dynamostreams.WithClient(dynamodbstreams.New(sess)),
			dynamostreams.WithDynamoDBClient(dynamodb.New(sess)),
			dynamostreams.WithLogger(logger),
			dynamostreams.WithShardIteratorType(cfg.DynamoDB.IteratorType),
		)
		if err != nil {
			return nil, err
		}
		return &backend{source: s, producer: s}, nil

	case config.BackendMemory:
		s := memory.New(cfg.Read.MemoryShards)
		s.Create(cfg.StreamName)
		return &backend{source: s, producer: s}, nil
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

func newStorage(ctx context.Context, cfg config.Config) (checkpoint.Storage, func(), error) {
	noop := func() {}
	c := cfg.Checkpoint

	switch c.Driver {
	case config.DriverFile:
		return checkpoint.NewFileStorage(c.File), noop, nil

	case config.DriverRedis:
		s, err := checkpoint.NewRedisStorage(c.RedisAddr, c.RedisKey)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case config.DriverPostgres:
		s, err := checkpoint.OpenPostgresStorage(ctx, c.PostgresDSN, c.PostgresTable, c.Document)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case config.DriverDynamoDB:
		sess, err := awsSession(cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint, config.Credentials{})
		if err != nil {
			return nil, nil, err
		}
		return checkpoint.NewDynamoStorage(dynamodb.New(sess), c.DynamoDBTable, c.Document), noop, nil
	}
	return nil, nil, errors.Errorf("unknown checkpoint driver %q", c.Driver)
}
