package domain

import (
	"fmt"
	"time"
)

// BlobRef identifies one staged object.
type BlobRef struct {
	Name    string
	Size    int64
	Updated time.Time
}

// NaturalKey uniquely identifies a real-world observation.
type NaturalKey struct {
	Location       string
	LocaltimeEpoch int64
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("%s|%d", k.Location, k.LocaltimeEpoch)
}

// Location is the provider's location block.
type Location struct {
	Name           string  `json:"name" bigquery:"name"`
	Region         string  `json:"region" bigquery:"region"`
	Country        string  `json:"country" bigquery:"country"`
	Lat            float64 `json:"lat" bigquery:"lat"`
	Lon            float64 `json:"lon" bigquery:"lon"`
	TzID           string  `json:"tz_id" bigquery:"tz_id"`
	LocaltimeEpoch int64   `json:"localtime_epoch" bigquery:"localtime_epoch"`
	Localtime      string  `json:"localtime" bigquery:"localtime"` // zone-less "2006-01-02 15:04"
}

// Condition is the provider's textual weather condition.
type Condition struct {
	Text string `json:"text" bigquery:"text"`
	Icon string `json:"icon" bigquery:"icon"`
	Code int64  `json:"code" bigquery:"code"`
}

// Current is the provider's current-conditions block.
type Current struct {
	LastUpdatedEpoch int64     `json:"last_updated_epoch" bigquery:"last_updated_epoch"`
	LastUpdated      string    `json:"last_updated" bigquery:"last_updated"`
	TempC            float64   `json:"temp_c" bigquery:"temp_c"`
	TempF            float64   `json:"temp_f" bigquery:"temp_f"`
	IsDay            int64     `json:"is_day" bigquery:"is_day"`
	Condition        Condition `json:"condition" bigquery:"condition"`
	WindMph          float64   `json:"wind_mph" bigquery:"wind_mph"`
	WindKph          float64   `json:"wind_kph" bigquery:"wind_kph"`
	WindDegree       int64     `json:"wind_degree" bigquery:"wind_degree"`
	WindDir          string    `json:"wind_dir" bigquery:"wind_dir"`
	PressureMb       float64   `json:"pressure_mb" bigquery:"pressure_mb"`
	PressureIn       float64   `json:"pressure_in" bigquery:"pressure_in"`
	PrecipMm         float64   `json:"precip_mm" bigquery:"precip_mm"`
	PrecipIn         float64   `json:"precip_in" bigquery:"precip_in"`
	Humidity         int64     `json:"humidity" bigquery:"humidity"`
	Cloud            int64     `json:"cloud" bigquery:"cloud"`
	FeelslikeC       float64   `json:"feelslike_c" bigquery:"feelslike_c"`
	FeelslikeF       float64   `json:"feelslike_f" bigquery:"feelslike_f"`
	WindchillC       float64   `json:"windchill_c" bigquery:"windchill_c"`
	WindchillF       float64   `json:"windchill_f" bigquery:"windchill_f"`
	HeatindexC       float64   `json:"heatindex_c" bigquery:"heatindex_c"`
	HeatindexF       float64   `json:"heatindex_f" bigquery:"heatindex_f"`
	DewpointC        float64   `json:"dewpoint_c" bigquery:"dewpoint_c"`
	DewpointF        float64   `json:"dewpoint_f" bigquery:"dewpoint_f"`
	VisKm            float64   `json:"vis_km" bigquery:"vis_km"`
	VisMiles         float64   `json:"vis_miles" bigquery:"vis_miles"`
	UV               float64   `json:"uv" bigquery:"uv"`
	GustMph          float64   `json:"gust_mph" bigquery:"gust_mph"`
	GustKph          float64   `json:"gust_kph" bigquery:"gust_kph"`
}

// Observation is one decoded provider payload.
type Observation struct {
	Location Location `json:"location"`
	Current  Current  `json:"current"`
}

// RawRecord is a staged payload together with its decoded form.
type RawRecord struct {
	Entity      string
	Blob        BlobRef
	Key         NaturalKey
	Payload     []byte
	Observation Observation
}

// WeatherRow is the durable warehouse row for one observation.
type WeatherRow struct {
	RowID      string    `json:"row_id" bigquery:"row_id"`
	Location   Location  `json:"location" bigquery:"location"`
	Current    Current   `json:"current" bigquery:"current"`
	SourceBlob string    `json:"source_blob" bigquery:"source_blob"`
	IngestedAt time.Time `json:"ingested_at" bigquery:"ingested_at"`
}

// NewWeatherRow materializes a record with a generated row identifier.
func NewWeatherRow(rec RawRecord, rowID string, ingestedAt time.Time) WeatherRow {
	return WeatherRow{
		RowID:      rowID,
		Location:   rec.Observation.Location,
		Current:    rec.Observation.Current,
		SourceBlob: rec.Blob.Name,
		IngestedAt: ingestedAt.UTC(),
	}
}

// Key returns the row's natural key.
func (r WeatherRow) Key() NaturalKey {
	return NaturalKey{Location: r.Location.Name, LocaltimeEpoch: r.Location.LocaltimeEpoch}
}
