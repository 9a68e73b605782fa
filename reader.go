package robopoint

import (
	"context"

	"github.com/apex/log"
	"github.com/bdna/robopoint/internal"
	"github.com/pkg/errors"
)

// Reader drives a StreamConsumer on behalf of HTTP requests. It holds no
// per-request state; every read owns its own accumulator.
type Reader struct {
	stream        string
	consumer      StreamConsumer
	checkpoint    Checkpoint
	logger        Logger
	startShard    int
	maxEmptyPolls int
	maxPolls      int
}

// Result is the outcome of a successful read. Lag is the value reported by the
// last poll; zero means the reader had caught up with the stream at that instant.
// Skipped holds the invalid records the read stepped over; they are user
// errors and never discard the valid records read alongside them.
type Result struct {
	Records []Message
	Lag     int64
	Polls   int
	Skipped []error
}

// NewReader returns a Reader for the named stream. If no options are passed the
// Reader keeps no checkpoints, logs nothing and polls without bound in
// ReadUntilCaughtUp.
func NewReader(stream string, consumer StreamConsumer, opts ...Option) (*Reader, error) {
	if stream == "" {
		return nil, errors.New("stream name is required")
	}
	if consumer == nil {
		return nil, errors.New("stream consumer is required")
	}

	r := &Reader{
		stream:   stream,
		consumer: consumer,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.checkpoint == nil {
		r.checkpoint = noopCheckpoint{}
	}
	if r.logger == nil {
		r.logger = internal.DiscardLogger()
	}

	return r, nil
}

// ReadOnce polls the stream a single time and reports the resulting lag so the
// caller can retry on its own schedule.
func (r *Reader) ReadOnce(ctx context.Context, consumer string, filter Filter) (*Result, error) {
	return r.read(ctx, consumer, filter, 1)
}

// ReadUntilCaughtUp polls until the stream reports zero lag. When WithMaxPolls
// is set and reached first, or the context ends after the first poll, the
// records read so far are returned together with the last non-zero lag.
func (r *Reader) ReadUntilCaughtUp(ctx context.Context, consumer string, filter Filter) (*Result, error) {
	return r.read(ctx, consumer, filter, r.maxPolls)
}

func (r *Reader) read(ctx context.Context, consumer string, filter Filter, maxPolls int) (*Result, error) {
	scope := Scope{
		Stream:     r.stream,
		Consumer:   consumer,
		FilterKind: filter.Kind(),
	}
	logger := r.logger.WithFields(log.Fields{
		"stream":   scope.Stream,
		"consumer": scope.Consumer,
		"filter":   scope.FilterKind,
	})

	req := &ConsumeRequest{
		Scope:         scope,
		Filter:        filter,
		Checkpoint:    r.checkpoint,
		StartShard:    r.startShard,
		MaxEmptyPolls: r.maxEmptyPolls,
	}

	var (
		res   = &Result{}
		class = ClassNone
		errs  []error
	)
	for {
		if err := ctx.Err(); err != nil {
			if res.Polls > 0 {
				return interrupted(logger, res, err), nil
			}
			errs = append(errs, errors.Wrap(err, "read interrupted"))
			return nil, fail(logger, ClassCritical, errs)
		}

		out, err := r.consumer.Consume(ctx, req)
		res.Polls++
		if err != nil {
			if ctx.Err() != nil && res.Polls > 1 {
				res.Polls--
				return interrupted(logger, res, err), nil
			}
			errs = append(errs, err)
			return nil, fail(logger, class.Worse(Classify(err)), errs)
		}
		if out == nil {
			out = &ConsumeResult{}
		}

		for _, err := range out.Errors {
			errs = append(errs, err)
			c := Classify(err)
			class = class.Worse(c)
			if c == ClassCritical {
				return nil, fail(logger, class, errs)
			}
			res.Skipped = append(res.Skipped, err)
			logger.WithError(err).Warn("skipped invalid record")
		}

		res.Records = append(res.Records, out.Records...)
		res.Lag = out.Lag

		if res.Lag == 0 {
			break
		}
		if maxPolls > 0 && res.Polls >= maxPolls {
			if maxPolls > 1 {
				logger.WithFields(log.Fields{"lag": res.Lag, "polls": res.Polls}).Warn("gave up before catching up")
			}
			break
		}
		logger.WithField("lag", res.Lag).Debug("behind stream tip")
	}

	return res, nil
}

// interrupted ends a read whose context finished after at least one poll. The
// records of the completed polls are already checkpointed and are returned with
// the last lag.
func interrupted(logger Logger, res *Result, cause error) *Result {
	if res.Lag == 0 {
		res.Lag = 1
	}
	logger.WithError(cause).WithFields(log.Fields{"lag": res.Lag, "polls": res.Polls}).Warn("read interrupted")
	return res
}

func fail(logger Logger, class Class, errs []error) error {
	err := &ReadError{Class: class, Errs: errs}
	if class == ClassCritical {
		logger.WithError(err).Error("read failed")
	} else {
		logger.WithError(err).Warn("read rejected")
	}
	return err
}
