package types

import "time"

// DateLayout renders a Reading date as ISO-8601 with an explicit UTC offset,
// e.g. 2018-08-14T17:10:20+00:00.
const DateLayout = "2006-01-02T15:04:05-07:00"

// DeviceType is the device type announced to the ingestion API.
const DeviceType = "LACROSSE_TECHNOLOGY_TX"

// Reading is one normalized sensor observation ready for publishing.
type Reading struct {
	Date        time.Time
	Location    string // empty when the device id is unknown
	SensorID    DeviceID
	SensorModel string
	BatteryOK   TriState
	BatteryNew  TriState
	Temperature *float64
	Humidity    *float64
}

// HasLocation reports whether the reading was resolved to a location.
func (r Reading) HasLocation() bool {
	return r.Location != ""
}

// FormattedDate returns Date in DateLayout, always in UTC.
func (r Reading) FormattedDate() string {
	return r.Date.UTC().Format(DateLayout)
}
