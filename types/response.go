package types

import (
	"bytes"
	"encoding/json"
	"github.com/pkg/errors"
	"math"
	"sort"
	"strconv"
)

var (
	ErrNoAttribute     = errors.New("no such attribute")
	ErrNotObject       = errors.New("response is not a JSON object")
	ErrNotArray        = errors.New("response is not a JSON array")
	ErrUnexpectedType  = errors.New("unexpected attribute type")
	ErrInvalidResponse = errors.New("response must be a JSON object or array")
)

// Response is a read-only view over a JSON object or array returned by the
// wallet daemon. Key access (Get, Has, Index) and attribute access (Attr and
// the typed getters) observe the same underlying value. Every accessor hands
// out copies, so callers can never mutate the response.
type Response struct {
	value interface{}
}

// NewResponse wraps a decoded JSON value. Only objects and arrays are accepted.
func NewResponse(v interface{}) (*Response, error) {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
	default:
		return nil, errors.Wrapf(ErrInvalidResponse, "got %T", v)
	}
	return &Response{value: deepCopy(v)}, nil
}

// DecodeResponse parses a response body. An empty body yields an empty object.
func DecodeResponse(data []byte) (*Response, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &Response{value: map[string]interface{}{}}, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var v interface{}
	if err := decoder.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if decoder.More() {
		return nil, errors.New("decode response: trailing data after JSON value")
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return &Response{value: v}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidResponse, "got %T", v)
	}
}

func (r Response) IsObject() bool {
	_, ok := r.value.(map[string]interface{})
	return ok
}

func (r Response) IsArray() bool {
	_, ok := r.value.([]interface{})
	return ok
}

// Len returns the number of keys of an object or elements of an array.
func (r Response) Len() int {
	switch v := r.value.(type) {
	case map[string]interface{}:
		return len(v)
	case []interface{}:
		return len(v)
	}
	return 0
}

// Keys returns the sorted keys of an object response.
func (r Response) Keys() []string {
	obj, ok := r.value.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r Response) Get(key string) (interface{}, bool) {
	obj, ok := r.value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

func (r Response) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

func (r Response) Index(i int) (interface{}, bool) {
	arr, ok := r.value.([]interface{})
	if !ok || i < 0 || i >= len(arr) {
		return nil, false
	}
	return deepCopy(arr[i]), true
}

// Attr returns the value stored under name. A key holding JSON null yields
// (nil, nil); a missing key yields ErrNoAttribute.
func (r Response) Attr(name string) (interface{}, error) {
	if !r.IsObject() {
		return nil, errors.Wrapf(ErrNotObject, "attribute %q", name)
	}
	v, ok := r.Get(name)
	if !ok {
		return nil, errors.Wrapf(ErrNoAttribute, "%q", name)
	}
	return v, nil
}

func (r Response) GetString(name string) (string, error) {
	v, err := r.Attr(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", unexpectedType(name, "string", v)
	}
	return s, nil
}

func (r Response) GetBool(name string) (bool, error) {
	v, err := r.Attr(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, unexpectedType(name, "bool", v)
	}
	return b, nil
}

func (r Response) GetInt(name string) (int64, error) {
	v, err := r.Attr(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, unexpectedType(name, "integer", v)
		}
		return i, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, unexpectedType(name, "integer", v)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return 0, unexpectedType(name, "integer", v)
}

func (r Response) GetFloat(name string) (float64, error) {
	v, err := r.Attr(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, unexpectedType(name, "number", v)
		}
		return f, nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, unexpectedType(name, "number", v)
}

// GetObject returns a nested object or array as its own Response.
func (r Response) GetObject(name string) (*Response, error) {
	v, err := r.Attr(name)
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return &Response{value: v}, nil
	}
	return nil, unexpectedType(name, "object", v)
}

func (r Response) GetList(name string) ([]interface{}, error) {
	v, err := r.Attr(name)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]interface{})
	if !ok {
		return nil, unexpectedType(name, "array", v)
	}
	return l, nil
}

// Dict returns a deep copy of the wrapped value.
func (r Response) Dict() interface{} {
	return deepCopy(r.value)
}

// Decode unmarshals the response into v, typically one of the *Response
// structs of this package.
func (r Response) Decode(v interface{}) error {
	data, err := json.Marshal(r.value)
	if err != nil {
		return errors.Wrap(err, "encode response")
	}
	return errors.Wrap(json.Unmarshal(data, v), "decode response")
}

func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value)
}

func (r Response) String() string {
	data, err := json.Marshal(r.value)
	if err != nil {
		return "<invalid response>"
	}
	return string(data)
}

func unexpectedType(name, want string, got interface{}) error {
	return errors.Wrapf(ErrUnexpectedType, "%q: want %s, got %T", name, want, got)
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		c := make(map[string]interface{}, len(t))
		for k, e := range t {
			c[k] = deepCopy(e)
		}
		return c
	case []interface{}:
		c := make([]interface{}, len(t))
		for i, e := range t {
			c[i] = deepCopy(e)
		}
		return c
	}
	return v
}
