package sensorapi

import "time"

// Bin is one monitored waste receptacle as reported by the backend.
type Bin struct {
	ID          string `json:"id"`
	FillLevel   Number `json:"fillLevel"`
	Temperature Number `json:"temperature"`
}

// DetailedBin is the on-demand superset of Bin for a single id.
type DetailedBin struct {
	Bin
	Latitude    *Number    `json:"latitude,omitempty"`
	Longitude   *Number    `json:"longitude,omitempty"`
	Location    string     `json:"location,omitempty"`
	Status      string     `json:"status,omitempty"`
	Battery     *Number    `json:"battery,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// Weather records arrive oldest first; the last one is the latest.
type Weather struct {
	AirTemp       Number `json:"airTemp"`
	Precipitation Number `json:"precipitation"`
}

// Pedestrian is a timestamped visitor-count sample. LastEdit is kept as the
// raw string; the dashboard formats it and tolerates unparsable values.
type Pedestrian struct {
	NumVisitors Number `json:"numVisitors"`
	LastEdit    string `json:"lastEdit"`
}

// Alarm is one entry of the alarms feed.
type Alarm struct {
	BinID     string    `json:"binId"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
