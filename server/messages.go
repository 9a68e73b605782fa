package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/apex/log"
	robopoint "github.com/bdna/robopoint"
	"github.com/pkg/errors"
)

type pushedMessage struct {
	ID   string    `json:"id"`
	Time time.Time `json:"messageTime"`
}

type pushResponse struct {
	Messages []pushedMessage `json:"messages"`
}

type readResponse struct {
	Messages []robopoint.Message `json:"messages"`
	Lag      int64               `json:"lag"`
	Skipped  []string            `json:"skipped,omitempty"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// push validates the whole batch before anything is written, so a batch with
// one invalid entry writes nothing.
func (s *Server) push(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path})

	var raws []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raws); err != nil {
		s.respondError(w, logger, &robopoint.InvalidMessageDataError{Reason: "request body must be a JSON list of messages", Err: err})
		return
	}

	msgs, err := s.factory.NewBatch(raws)
	if err != nil {
		s.respondError(w, logger, err)
		return
	}

	if err := s.producer.Put(r.Context(), s.stream, msgs); err != nil {
		s.respondError(w, logger, errors.Wrap(err, "put messages"))
		return
	}

	resp := pushResponse{Messages: make([]pushedMessage, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, pushedMessage{ID: m.ID, Time: m.Time})
	}
	logger.WithField("messages", len(msgs)).Info("messages accepted")
	respond(w, http.StatusOK, resp)
}

func (s *Server) byPurpose(w http.ResponseWriter, r *http.Request) {
	s.read(w, r, robopoint.ByPurpose(r.PathValue("purpose")))
}

func (s *Server) byOrigin(w http.ResponseWriter, r *http.Request) {
	s.read(w, r, robopoint.ByOrigin(r.PathValue("roboId")))
}

// byQuery selects messages with a JMESPath expression passed as ?q=. Each
// expression keeps its own checkpoints.
func (s *Server) byQuery(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path})

	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, logger, &robopoint.InvalidMessageDataError{Reason: "query parameter q is required"})
		return
	}
	filter, err := robopoint.Where(q)
	if err != nil {
		s.respondError(w, logger, err)
		return
	}
	s.read(w, r, filter)
}

// read serves both read modes: ?mode=once polls a single time and leaves
// retrying to the client, the default polls until caught up.
func (s *Server) read(w http.ResponseWriter, r *http.Request, filter robopoint.Filter) {
	consumer := r.PathValue("roboId")
	logger := s.logger.WithFields(log.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"consumer": consumer,
		"filter":   filter.Kind(),
	})

	ctx := r.Context()
	if s.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.readTimeout)
		defer cancel()
	}

	var (
		res *robopoint.Result
		err error
	)
	switch mode := r.URL.Query().Get("mode"); mode {
	case "once":
		res, err = s.reader.ReadOnce(ctx, consumer, filter)
	case "", "catchup":
		res, err = s.reader.ReadUntilCaughtUp(ctx, consumer, filter)
	default:
		s.respondError(w, logger, &robopoint.InvalidMessageDataError{Reason: "unknown read mode " + mode})
		return
	}
	if err != nil {
		s.respondError(w, logger, err)
		return
	}

	resp := readResponse{Messages: res.Records, Lag: res.Lag}
	if resp.Messages == nil {
		resp.Messages = []robopoint.Message{}
	}
	for _, err := range res.Skipped {
		resp.Skipped = append(resp.Skipped, err.Error())
	}
	respond(w, http.StatusOK, resp)
}

// respondError describes user errors to the client. Everything else is logged
// in full and reported as an opaque system error.
func (s *Server) respondError(w http.ResponseWriter, logger log.Interface, err error) {
	if robopoint.Classify(err) == robopoint.ClassUser {
		logger.WithError(err).Warn("rejected request")
		respond(w, http.StatusBadRequest, errorResponse{Error: errorBody{Type: "user_error", Message: err.Error()}})
		return
	}

	logger.WithError(err).Error("system error")
	respond(w, http.StatusInternalServerError, errorResponse{Error: errorBody{Type: "system_error", Message: "system error"}})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
