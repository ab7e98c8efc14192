// Package domain models staged weather observations and the collaborators
// the ingest stages run against.
//
// # Data Source
//
// Observations come from the weatherapi.com "current" endpoint, one JSON
// document per city per fetch:
//
//	{"location": {"name": "London", "localtime_epoch": 1700000000, ...},
//	 "current":  {"temp_c": 11.0, "condition": {"text": "Overcast"}, ...}}
//
// The fetch stage compacts each document onto a single line and stages it
// at "<prefix>/<city>/<UTC timestamp>.json". Single-line JSON doubles as a
// newline-delimited JSON file for warehouse load jobs.
//
// # Natural Key
//
// A real-world observation is identified by (location.name,
// location.localtime_epoch). Two fetches that land inside the provider's
// update interval produce the same key and are duplicates of each other.
// A payload missing either field is malformed and is never written or
// marked; it stays staged for manual review.
//
// # Markers
//
// Every staged blob carries a [MarkerState]. Only two transitions exist:
//
//	unprocessed -> processed   (row written)
//	unprocessed -> duplicate   (key already present)
//
// Both targets are terminal. How a state is stored is up to the [Marker]
// implementation.
//
// # Row Identity
//
// Each [WeatherRow] gets a random row_id at commit time. The row_id is not
// part of the natural key; reconciliation keeps the earliest row per key
// ordered by ingested_at then row_id.
package domain
