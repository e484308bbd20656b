// Package reading turns raw rtl_433 JSON lines into normalized Readings.
package reading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lacrosse-relay/internal/types"
)

// TimeLayout is the rtl_433 local timestamp format.
const TimeLayout = "2006-01-02 15:04:05"

// Raw field names.
const (
	FieldTime        = "time"
	FieldID          = "id"
	FieldBattery     = "battery"
	FieldNewBattery  = "newbattery"
	FieldModel       = "model"
	FieldTemperature = "temperature_C"
	FieldHumidity    = "humidity"
)

// requiredFields is checked in order; the first missing one is reported.
var requiredFields = []string{FieldTime, FieldID, FieldBattery, FieldNewBattery, FieldModel}

// Resolver looks up a location name for a device id.
type Resolver interface {
	Resolve(id types.DeviceID) (string, bool)
}

// Normalize parses one raw line and builds a Reading. An unknown device id is
// not an error: the Reading is returned with an empty Location.
func Normalize(line []byte, dir Resolver) (types.Reading, error) {
	fields, err := parseObject(line)
	if err != nil {
		return types.Reading{}, err
	}

	for _, name := range requiredFields {
		if !present(fields, name) {
			return types.Reading{}, &ValidationError{Kind: KindMissingField, Field: name}
		}
	}

	date, err := parseTime(fields[FieldTime])
	if err != nil {
		return types.Reading{}, &ValidationError{Kind: KindBadTimestamp, Field: FieldTime, Err: err}
	}

	var id types.DeviceID
	if err := json.Unmarshal(fields[FieldID], &id); err != nil {
		return types.Reading{}, &ValidationError{Kind: KindMalformedJSON, Field: FieldID, Err: err}
	}

	var model string
	if err := json.Unmarshal(fields[FieldModel], &model); err != nil {
		return types.Reading{}, &ValidationError{Kind: KindMalformedJSON, Field: FieldModel, Err: err}
	}

	temperature, err := optionalFloat(fields, FieldTemperature)
	if err != nil {
		return types.Reading{}, err
	}
	humidity, err := optionalFloat(fields, FieldHumidity)
	if err != nil {
		return types.Reading{}, err
	}

	r := types.Reading{
		Date:        date,
		SensorID:    id,
		SensorModel: model,
		BatteryOK:   ClassifyBattery(fields[FieldBattery]),
		BatteryNew:  ClassifyBattery(fields[FieldNewBattery]),
		Temperature: temperature,
		Humidity:    humidity,
	}
	if dir != nil {
		if name, ok := dir.Resolve(id); ok {
			r.Location = name
		}
	}
	return r, nil
}

// ClassifyBattery maps a raw battery flag to a TriState: the string "OK",
// JSON true or the number 1 are true, any other value is false, and an absent
// or null value is unknown.
func ClassifyBattery(raw json.RawMessage) types.TriState {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return types.Unknown
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s == "OK" {
			return types.True
		}
		return types.False
	case 't':
		return types.TriStateOf(bytes.Equal(raw, []byte("true")))
	case 'f':
		return types.False
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return types.TriStateOf(n == 1)
	}
	return types.False
}

func parseObject(line []byte) (map[string]json.RawMessage, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, &ValidationError{Kind: KindMalformedJSON, Err: errors.New("empty line")}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, &ValidationError{Kind: KindMalformedJSON, Err: err}
	}
	if len(fields) == 0 {
		return nil, &ValidationError{Kind: KindMalformedJSON, Err: errors.New("no fields in record")}
	}
	return fields, nil
}

func present(fields map[string]json.RawMessage, name string) bool {
	raw, ok := fields[name]
	if !ok {
		return false
	}
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// parseTime reads the clock value as UTC without any zone conversion.
func parseTime(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("time must be a string: %w", err)
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	// time.Parse accepts a fractional second after the seconds field even when
	// the layout has none.
	if t.Format(TimeLayout) != s {
		return time.Time{}, fmt.Errorf("time %q does not match layout %q", s, TimeLayout)
	}
	return t, nil
}

func optionalFloat(fields map[string]json.RawMessage, name string) (*float64, error) {
	if !present(fields, name) {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(fields[name], &v); err != nil {
		return nil, &ValidationError{Kind: KindMalformedJSON, Field: name, Err: err}
	}
	return &v, nil
}
