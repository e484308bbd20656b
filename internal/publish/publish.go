// Package publish delivers normalized readings to the configured sink.
// Delivery is best effort: callers log failures and move on.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"lacrosse-relay/internal/types"
)

// Publisher sends one reading to a sink.
type Publisher interface {
	Publish(ctx context.Context, r types.Reading) error
	Close() error
}

// PublishError reports a reading the sink did not take: either the sink
// answered with a non-success status or the transport failed (Err set).
type PublishError struct {
	Sink       string
	StatusCode int
	Detail     string
	Err        error
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s publish rejected: status %d: %s", e.Sink, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s publish failed: %s", e.Sink, e.Detail)
}

func (e *PublishError) Unwrap() error { return e.Err }

func transportError(sink string, err error) *PublishError {
	return &PublishError{Sink: sink, Detail: err.Error(), Err: err}
}

type envelope struct {
	DeviceType string  `json:"deviceType"`
	Data       payload `json:"data"`
}

type payload struct {
	Date        string         `json:"date"`
	Location    string         `json:"location"`
	SensorID    types.DeviceID `json:"sensorId"`
	SensorModel string         `json:"sensorModel"`
	BatteryNew  types.TriState `json:"batteryNew"`
	BatteryOK   types.TriState `json:"batteryOk"`
	Temperature *float64       `json:"temperature,omitempty"`
	Humidity    *float64       `json:"humidity,omitempty"`
}

// Encode renders the ingestion envelope for r.
func Encode(r types.Reading) ([]byte, error) {
	data, err := json.Marshal(envelope{
		DeviceType: types.DeviceType,
		Data: payload{
			Date:        r.FormattedDate(),
			Location:    r.Location,
			SensorID:    r.SensorID,
			SensorModel: r.SensorModel,
			BatteryNew:  r.BatteryNew,
			BatteryOK:   r.BatteryOK,
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal reading: %w", err)
	}
	return data, nil
}
