package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// payloadJSON mirrors Observation but keeps the epoch nullable so an absent
// field can be told apart from a zero value.
type payloadJSON struct {
	Location *struct {
		Location
		LocaltimeEpoch *int64 `json:"localtime_epoch"`
	} `json:"location"`
	Current Current `json:"current"`
}

// ParseRecord strictly decodes a staged payload and derives its natural key.
// It returns a *MalformedRecordError when the payload is not a JSON object or
// when a natural key field is missing.
func ParseRecord(entity string, ref BlobRef, payload []byte) (RawRecord, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return RawRecord{}, &MalformedRecordError{Blob: ref.Name, Reason: "payload is not a JSON object"}
	}

	var p payloadJSON
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return RawRecord{}, &MalformedRecordError{Blob: ref.Name, Reason: "invalid JSON", Err: err}
	}
	if p.Location == nil {
		return RawRecord{}, &MalformedRecordError{Blob: ref.Name, Reason: "missing location"}
	}
	if strings.TrimSpace(p.Location.Name) == "" {
		return RawRecord{}, &MalformedRecordError{Blob: ref.Name, Reason: "missing location.name"}
	}
	if p.Location.LocaltimeEpoch == nil {
		return RawRecord{}, &MalformedRecordError{Blob: ref.Name, Reason: "missing location.localtime_epoch"}
	}

	loc := p.Location.Location
	loc.LocaltimeEpoch = *p.Location.LocaltimeEpoch

	return RawRecord{
		Entity:  entity,
		Blob:    ref,
		Key:     NaturalKey{Location: loc.Name, LocaltimeEpoch: loc.LocaltimeEpoch},
		Payload: payload,
		Observation: Observation{
			Location: loc,
			Current:  p.Current,
		},
	}, nil
}
