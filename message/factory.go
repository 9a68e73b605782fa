// Package message turns raw payloads into validated robopoint messages.
package message

import (
	"embed"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"time"

	robopoint "github.com/bdna/robopoint"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultVersion is the message schema version used when none is configured.
const DefaultVersion = "v_0_1"

//go:embed schema/*.json
var builtin embed.FS

type payload struct {
	Version string          `json:"version"`
	RoboID  string          `json:"roboId"`
	Purpose string          `json:"purpose"`
	Data    json.RawMessage `json:"data"`
}

// Factory validates payloads against one schema version and assigns ids and
// timestamps to the messages it creates.
type Factory struct {
	version string
	schema  *jsonschema.Resolved
	now     func() time.Time
	newID   func() string
}

// NewFactory loads the schema for version from dir, falling back to the
// schemas built into the binary when dir is empty. A schema that cannot be
// loaded is a configuration error, not a data error.
func NewFactory(dir, version string) (*Factory, error) {
	if version == "" {
		version = DefaultVersion
	}

	b, err := loadSchema(dir, version)
	if err != nil {
		return nil, err
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(b, &schema); err != nil {
		return nil, errors.Wrapf(err, "parse message schema %s", version)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve message schema %s", version)
	}

	return &Factory{
		version: version,
		schema:  resolved,
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

func loadSchema(dir, version string) ([]byte, error) {
	name := version + ".json"
	if dir == "" {
		b, err := builtin.ReadFile("schema/" + name)
		if err != nil {
			return nil, errors.Errorf("no built-in message schema for version %q", version)
		}
		return b, nil
	}

	b, err := ioutil.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, errors.Wrapf(err, "read message schema %s", version)
	}
	return b, nil
}

// Version returns the schema version messages are validated against.
func (f *Factory) Version() string { return f.version }

// New validates a single raw payload and returns the message built from it.
func (f *Factory) New(raw json.RawMessage) (robopoint.Message, error) {
	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return robopoint.Message{}, &robopoint.InvalidMessageDataError{Reason: "payload is not valid JSON", Err: err}
	}
	if err := f.schema.Validate(instance); err != nil {
		return robopoint.Message{}, &robopoint.InvalidMessageDataError{Reason: err.Error()}
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return robopoint.Message{}, &robopoint.InvalidMessageDataError{Reason: "payload does not match message layout", Err: err}
	}
	if p.Version != "" && p.Version != f.version {
		return robopoint.Message{}, &robopoint.InvalidMessageDataError{
			Reason: "unsupported message version " + p.Version + ", expected " + f.version,
		}
	}

	return robopoint.Message{
		ID:      f.newID(),
		Version: f.version,
		RoboID:  p.RoboID,
		Purpose: p.Purpose,
		Time:    f.now().UTC(),
		Data:    p.Data,
	}, nil
}

// NewBatch validates every payload before building any message. The first
// invalid payload rejects the whole batch, identified by its 1-based entry.
func (f *Factory) NewBatch(raws []json.RawMessage) ([]robopoint.Message, error) {
	if len(raws) == 0 {
		return nil, &robopoint.InvalidMessageDataError{Reason: "no messages in batch"}
	}

	msgs := make([]robopoint.Message, 0, len(raws))
	for i, raw := range raws {
		m, err := f.New(raw)
		if err != nil {
			if invalid, ok := err.(*robopoint.InvalidMessageDataError); ok {
				invalid.Entry = i + 1
			}
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
