package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame is a decoded wire message: a type code plus an ordered set of
// key-value fields. Field order is preserved on encode so responses read
// deterministically in logs and tests.
type Frame struct {
	Type   Type
	Fields []Field
}

// Field is one k=v pair of a frame.
type Field struct {
	Key   string
	Value string
}

// reservedChars are forbidden in frame values: the format has no escaping,
// so a value containing any of these would corrupt the frame (spec.md §9,
// "Protocol fragility").
const reservedChars = ";=\n"

// NewFrame builds a frame from ordered key-value pairs, rejecting values
// that would corrupt the unescaped wire format.
func NewFrame(t Type, kv ...string) (*Frame, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("protocol: odd number of key/value arguments")
	}
	f := &Frame{Type: t, Fields: make([]Field, 0, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		if err := validateValue(kv[i+1]); err != nil {
			return nil, fmt.Errorf("protocol: field %q: %w", kv[i], err)
		}
		f.Fields = append(f.Fields, Field{Key: kv[i], Value: kv[i+1]})
	}
	return f, nil
}

// MustFrame panics on an invalid value; reserved for call sites whose
// values are server-generated or have already been sanitized of reserved
// characters.
func MustFrame(t Type, kv ...string) *Frame {
	f, err := NewFrame(t, kv...)
	if err != nil {
		panic(err)
	}
	return f
}

func validateValue(v string) error {
	if strings.ContainsAny(v, reservedChars) {
		return fmt.Errorf("value contains a reserved character (';', '=' or newline)")
	}
	return nil
}

// Get returns the first field with the given key, and whether it was
// present.
func (f *Frame) Get(key string) (string, bool) {
	for _, fld := range f.Fields {
		if fld.Key == key {
			return fld.Value, true
		}
	}
	return "", false
}

// GetInt64 parses the named field as a base-10 integer.
func (f *Frame) GetInt64(key string) (int64, bool) {
	v, ok := f.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Require returns the field value or an error naming the missing field.
func (f *Frame) Require(key string) (string, error) {
	v, ok := f.Get(key)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required field %q", key)
	}
	return v, nil
}

// Encode serializes the frame as "<type>:<k1>=<v1>;<k2>=<v2>;...", with no
// trailing newline.
func (f *Frame) Encode() (string, error) {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(f.Type)))
	b.WriteByte(':')
	for i, fld := range f.Fields {
		if err := validateValue(fld.Value); err != nil {
			return "", fmt.Errorf("protocol: field %q: %w", fld.Key, err)
		}
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(fld.Key)
		b.WriteByte('=')
		b.WriteString(fld.Value)
	}
	return b.String(), nil
}

// Decode parses one line of the wire format. Malformed input produces an
// error; the caller (Dispatcher) answers with an ERROR frame and keeps the
// connection open, per spec.md §6/§7.
func Decode(line string) (*Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return nil, fmt.Errorf("protocol: missing ':' separator")
	}
	typeStr, rest := line[:idx], line[idx+1:]
	n, err := strconv.Atoi(typeStr)
	if err != nil {
		return nil, fmt.Errorf("protocol: invalid type %q: %w", typeStr, err)
	}

	f := &Frame{Type: Type(n)}
	if rest == "" {
		return f, nil
	}
	for _, pair := range strings.Split(rest, ";") {
		if pair == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			return nil, fmt.Errorf("protocol: malformed field %q", pair)
		}
		f.Fields = append(f.Fields, Field{Key: pair[:eq], Value: pair[eq+1:]})
	}
	return f, nil
}
