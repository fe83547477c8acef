package storage

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// notAvailable is the on-wire sentinel used by both backends for videos
// that the source platform reports as permanently inaccessible.
const notAvailable = "not available"

// Status is the download/upload state of a video record.
//
// On the wire it is a tri-state value for compatibility with existing
// catalogs: false (Pending), true (Done), or the string "not available"
// (Unavailable). Both the JSON and BSON codecs accept all three forms.
type Status int

const (
	// StatusPending means the step has not completed yet.
	StatusPending Status = iota
	// StatusDone means the step completed successfully.
	StatusDone
	// StatusUnavailable means the source reported the video as
	// permanently inaccessible. Terminal for both fields at once.
	StatusUnavailable
)

// String returns a human-readable form of the status.
func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusUnavailable:
		return notAvailable
	default:
		return "pending"
	}
}

// MarshalJSON encodes the status in its wire form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.wire())
}

// UnmarshalJSON decodes a bool or the "not available" sentinel.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return s.fromWire(v)
}

// MarshalBSONValue encodes the status in its wire form.
func (s Status) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(s.wire())
}

// UnmarshalBSONValue decodes a bool or the "not available" sentinel.
func (s *Status) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Boolean:
		var b bool
		if err := bson.UnmarshalValue(t, data, &b); err != nil {
			return err
		}
		return s.fromWire(b)
	case bsontype.String:
		var str string
		if err := bson.UnmarshalValue(t, data, &str); err != nil {
			return err
		}
		return s.fromWire(str)
	default:
		return fmt.Errorf("storage: cannot decode status from BSON type %s", t)
	}
}

func (s Status) wire() any {
	switch s {
	case StatusDone:
		return true
	case StatusUnavailable:
		return notAvailable
	default:
		return false
	}
}

func (s *Status) fromWire(v any) error {
	switch val := v.(type) {
	case bool:
		if val {
			*s = StatusDone
		} else {
			*s = StatusPending
		}
	case string:
		if val != notAvailable {
			return fmt.Errorf("storage: unknown status string %q", val)
		}
		*s = StatusUnavailable
	default:
		return fmt.Errorf("storage: unknown status value %v (%T)", v, v)
	}
	return nil
}

// VideoRecord is one row per source video. Records are created by the
// catalog synchronizer, advanced by the reconciliation engine, and never
// deleted; a fully processed record remains as an audit trail.
type VideoRecord struct {
	// ID is the stable platform identifier parsed from the watch URL.
	// It is the primary key in both backends.
	ID string `bson:"_id"`
	// URL is the canonical watch URL on the source platform.
	URL string `bson:"url"`
	// Title is the raw human-readable title from the source.
	Title string `bson:"title"`
	// UploadDate is the source-reported publish date, YYYYMMDD.
	UploadDate string `bson:"upload_date"`
	// ChannelName and ChannelURL record provenance.
	ChannelName string `bson:"channel_name"`
	ChannelURL  string `bson:"channel_url"`
	// Downloaded tracks the local download state.
	Downloaded Status `bson:"downloaded"`
	// Uploaded tracks the archive upload state.
	Uploaded Status `bson:"uploaded"`
	// Extra holds arbitrary additional key-value pairs preserved verbatim
	// and forwarded into archive metadata.
	Extra map[string]any `bson:",inline"`
}

// knownKeys are the fixed top-level keys of a record's wire form.
// Everything else round-trips through Extra.
var knownKeys = map[string]bool{
	"_id": true, "url": true, "title": true, "upload_date": true,
	"channel_name": true, "channel_url": true,
	"downloaded": true, "uploaded": true,
}

// MarshalJSON flattens the fixed fields and the Extra map into a single
// JSON object, matching the blob-backend document shape.
func (r VideoRecord) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Extra)+8)
	for k, v := range r.Extra {
		if !knownKeys[k] {
			m[k] = v
		}
	}
	m["_id"] = r.ID
	m["url"] = r.URL
	m["title"] = r.Title
	m["upload_date"] = r.UploadDate
	m["channel_name"] = r.ChannelName
	m["channel_url"] = r.ChannelURL
	m["downloaded"] = r.Downloaded.wire()
	m["uploaded"] = r.Uploaded.wire()
	return json.Marshal(m)
}

// UnmarshalJSON splits a flat JSON object into the fixed fields and Extra.
func (r *VideoRecord) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	str := func(key string, dst *string) error {
		raw, ok := m[key]
		if !ok {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}
	if err := str("_id", &r.ID); err != nil {
		return err
	}
	if err := str("url", &r.URL); err != nil {
		return err
	}
	if err := str("title", &r.Title); err != nil {
		return err
	}
	if err := str("upload_date", &r.UploadDate); err != nil {
		return err
	}
	if err := str("channel_name", &r.ChannelName); err != nil {
		return err
	}
	if err := str("channel_url", &r.ChannelURL); err != nil {
		return err
	}
	if raw, ok := m["downloaded"]; ok {
		if err := r.Downloaded.UnmarshalJSON(raw); err != nil {
			return err
		}
	}
	if raw, ok := m["uploaded"]; ok {
		if err := r.Uploaded.UnmarshalJSON(raw); err != nil {
			return err
		}
	}

	r.Extra = nil
	for k, raw := range m {
		if knownKeys[k] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[k] = v
	}
	return nil
}

// Unavailable reports whether the record is in the terminal
// source-unavailable state.
func (r VideoRecord) Unavailable() bool {
	return r.Downloaded == StatusUnavailable && r.Uploaded == StatusUnavailable
}

// Terminal reports whether no further transitions can occur.
func (r VideoRecord) Terminal() bool {
	return r.Unavailable() || (r.Downloaded == StatusDone && r.Uploaded == StatusDone)
}

// Validate checks the record's structural invariants.
func (r VideoRecord) Validate() error {
	if r.ID == "" {
		return &StorageError{Op: "validate", Entity: "video", Err: ErrInvalidInput}
	}
	if r.Uploaded == StatusDone && r.Downloaded == StatusPending {
		return &StorageError{Op: "validate", Entity: "video", ID: r.ID,
			Err: fmt.Errorf("%w: uploaded before downloaded", ErrInvalidInput)}
	}
	return nil
}

// Fields is a partial update applied by Upsert. Keys use the wire names
// ("downloaded", "uploaded", "title", ...); values for the status fields
// may be Status constants or wire values.
type Fields map[string]any

// apply mutates the record in place with the given partial fields.
// Unknown keys land in Extra.
func (r *VideoRecord) apply(fields Fields) error {
	for k, v := range fields {
		switch k {
		case "_id":
			// Primary keys never change.
			continue
		case "url":
			r.URL = fmt.Sprint(v)
		case "title":
			r.Title = fmt.Sprint(v)
		case "upload_date":
			r.UploadDate = fmt.Sprint(v)
		case "channel_name":
			r.ChannelName = fmt.Sprint(v)
		case "channel_url":
			r.ChannelURL = fmt.Sprint(v)
		case "downloaded", "uploaded":
			var s Status
			switch val := v.(type) {
			case Status:
				s = val
			default:
				if err := s.fromWire(v); err != nil {
					return err
				}
			}
			if k == "downloaded" {
				r.Downloaded = s
			} else {
				r.Uploaded = s
			}
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[k] = v
		}
	}
	return nil
}
