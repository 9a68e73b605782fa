package robopoint

import (
	"encoding/json"
	"reflect"

	"github.com/jmespath/go-jmespath"
	"github.com/pkg/errors"
)

// Filter is a stateless predicate over messages. Kind is stable for a given
// configuration and becomes part of the checkpoint key.
type Filter interface {
	Match(Message) bool
	Kind() string
}

type byPurpose struct {
	purpose string
}

// ByPurpose matches messages whose purpose equals the given one.
func ByPurpose(purpose string) Filter {
	return byPurpose{purpose: purpose}
}

func (f byPurpose) Match(m Message) bool { return m.Purpose == f.purpose }
func (f byPurpose) Kind() string         { return "by-purpose:" + f.purpose }

type byOrigin struct {
	roboID string
}

// ByOrigin matches messages sent by the given robo id.
func ByOrigin(roboID string) Filter {
	return byOrigin{roboID: roboID}
}

func (f byOrigin) Match(m Message) bool { return m.RoboID == f.roboID }
func (f byOrigin) Kind() string         { return "by-origin" }

type where struct {
	expr  string
	query *jmespath.JMESPath
}

// Where matches messages for which the JMESPath expression evaluates to a
// truthy value. The expression is evaluated against the JSON form of the
// message, e.g. `purpose == 'alerts' && data.level > `2“.
func Where(expr string) (Filter, error) {
	q, err := jmespath.Compile(expr)
	if err != nil {
		return nil, &InvalidMessageDataError{Reason: "invalid filter expression", Err: err}
	}
	return where{expr: expr, query: q}, nil
}

func (f where) Kind() string { return "by-query:" + f.expr }

func (f where) Match(m Message) bool {
	doc, err := toDocument(m)
	if err != nil {
		return false
	}
	v, err := f.query.Search(doc)
	if err != nil {
		return false
	}
	return truthy(v)
}

func toDocument(m Message) (interface{}, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message")
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "unmarshal message")
	}
	return doc, nil
}

// truthy follows JMESPath's notion of false values.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	}
	return true
}
