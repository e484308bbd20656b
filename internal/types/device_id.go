package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeviceID identifies a sensor. rtl_433 emits ids either as strings or as
// integers depending on the decoder; both compare by their text form, and the
// original JSON kind is kept so the id can be passed through unchanged.
type DeviceID struct {
	text    string
	numeric bool
}

// NewDeviceID returns a string-kind id.
func NewDeviceID(s string) DeviceID {
	return DeviceID{text: s}
}

// NewNumericDeviceID returns an integer-kind id.
func NewNumericDeviceID(n int64) DeviceID {
	return DeviceID{text: strconv.FormatInt(n, 10), numeric: true}
}

func (d DeviceID) String() string { return d.text }

// IsZero reports whether the id is empty.
func (d DeviceID) IsZero() bool { return d.text == "" }

// Numeric reports whether the id arrived as a JSON/YAML integer.
func (d DeviceID) Numeric() bool { return d.numeric }

func (d DeviceID) MarshalJSON() ([]byte, error) {
	if d.numeric {
		return []byte(d.text), nil
	}
	return json.Marshal(d.text)
}

// UnmarshalJSON accepts a JSON string or integer. null leaves the id empty.
func (d *DeviceID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = DeviceID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = NewDeviceID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("device id must be a string or integer, got %s", data)
	}
	*d = NewNumericDeviceID(n)
	return nil
}

// UnmarshalYAML accepts a scalar string or integer.
func (d *DeviceID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("device id must be a scalar (line %d)", node.Line)
	}
	switch node.Tag {
	case "!!null":
		*d = DeviceID{}
	case "!!int":
		n, err := strconv.ParseInt(strings.ReplaceAll(node.Value, "_", ""), 0, 64)
		if err != nil {
			return fmt.Errorf("device id %q (line %d): %w", node.Value, node.Line, err)
		}
		*d = NewNumericDeviceID(n)
	default:
		*d = NewDeviceID(node.Value)
	}
	return nil
}
