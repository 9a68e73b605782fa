// Package server exposes the robopoint message API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/apex/log"
	robopoint "github.com/bdna/robopoint"
	"github.com/bdna/robopoint/internal"
)

const landingText = "robocloud - the space where robots chatter"

// Reader reads messages for a consumer.
type Reader interface {
	ReadOnce(ctx context.Context, consumer string, filter robopoint.Filter) (*robopoint.Result, error)
	ReadUntilCaughtUp(ctx context.Context, consumer string, filter robopoint.Filter) (*robopoint.Result, error)
}

// Factory builds validated messages from raw payloads.
type Factory interface {
	NewBatch(raws []json.RawMessage) ([]robopoint.Message, error)
}

// Server handles the message API.
type Server struct {
	stream      string
	reader      Reader
	producer    robopoint.Producer
	factory     Factory
	logger      log.Interface
	readTimeout time.Duration
}

// Option is used to override default values when creating a new Server
type Option func(*Server)

// WithLogger overrides the default logger
func WithLogger(logger log.Interface) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithReadTimeout bounds how long a GET request may keep polling the stream
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// New returns a Server writing to and reading from the named stream.
func New(stream string, reader Reader, producer robopoint.Producer, factory Factory, opts ...Option) *Server {
	s := &Server{
		stream:   stream,
		reader:   reader,
		producer: producer,
		factory:  factory,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = internal.DiscardLogger()
	}
	return s
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("POST /api/v1/messages", s.push)
	mux.HandleFunc("GET /api/v1/messages/{roboId}/purpose/{purpose}", s.byPurpose)
	mux.HandleFunc("GET /api/v1/messages/{roboId}/origin", s.byOrigin)
	mux.HandleFunc("GET /api/v1/messages/{roboId}/query", s.byQuery)
	return mux
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(landingText))
}
