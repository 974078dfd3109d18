// Package crm provides the client for the external CRM's REST API and the
// deal snapshot type shared with the scoring core. The CRM owns deals,
// users, and activities; this system only reads snapshots and requests
// mutations.
package crm

import (
	"strconv"
	"strings"
	"time"
)

// Snapshot is a deal's field map as delivered by the CRM, either in a
// webhook payload or from a deal fetch. Custom fields are keyed by opaque
// hash strings; reference fields may be objects carrying an `id`.
type Snapshot map[string]any

// ID returns the deal id, or 0 when absent.
func (s Snapshot) ID() int {
	return s.intField("id")
}

// OwnerID returns the owning user's id. Webhook payloads carry user_id as
// a bare number; list endpoints expand it into an object.
func (s Snapshot) OwnerID() int {
	return s.intField("user_id")
}

// OwnerName returns the owning user's display name when the CRM expanded
// the owner reference, or "" otherwise.
func (s Snapshot) OwnerName() string {
	if m, ok := s["user_id"].(map[string]any); ok {
		if name, ok := m["name"].(string); ok {
			return name
		}
	}
	return ""
}

// StageID returns the deal's current pipeline stage id.
func (s Snapshot) StageID() int {
	return s.intField("stage_id")
}

// Status returns the deal status: open, won, or lost.
func (s Snapshot) Status() string {
	if v, ok := s["status"].(string); ok {
		return v
	}
	return ""
}

// Title returns the deal title.
func (s Snapshot) Title() string {
	if v, ok := s["title"].(string); ok {
		return v
	}
	return ""
}

// Value returns the deal's monetary value.
func (s Snapshot) Value() float64 {
	switch v := s["value"].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

// Currency returns the deal's currency code.
func (s Snapshot) Currency() string {
	if v, ok := s["currency"].(string); ok {
		return v
	}
	return ""
}

// Rotten reports the CRM's staleness flag for the deal. The CRM sets
// either a boolean or a rotten_time timestamp.
func (s Snapshot) Rotten() bool {
	if v, ok := s["rotten"].(bool); ok {
		return v
	}
	if v, ok := s["rotten_time"].(string); ok && strings.TrimSpace(v) != "" {
		return true
	}
	return false
}

// AddTime returns the deal creation time.
func (s Snapshot) AddTime() (time.Time, bool) {
	return s.timeField("add_time")
}

// WonTime returns the time the deal was won.
func (s Snapshot) WonTime() (time.Time, bool) {
	return s.timeField("won_time")
}

// UpdateTime returns the deal's last update time.
func (s Snapshot) UpdateTime() (time.Time, bool) {
	return s.timeField("update_time")
}

// StageChangeTime returns the time of the deal's last stage change.
func (s Snapshot) StageChangeTime() (time.Time, bool) {
	return s.timeField("stage_change_time")
}

// Field returns the raw value of a (possibly custom) field.
func (s Snapshot) Field(key string) any {
	return s[key]
}

// FieldID resolves a field to its integer identifier: a bare number, a
// numeric string, or a reference object's id. Returns false when the
// field is absent or not id-shaped.
func (s Snapshot) FieldID(key string) (int, bool) {
	v := s[key]
	if m, ok := v.(map[string]any); ok {
		v = m["id"]
	}
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// FieldSet reports whether a field holds a non-null, non-empty value.
func (s Snapshot) FieldSet(key string) bool {
	switch v := s[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		return true
	}
}

func (s Snapshot) intField(key string) int {
	switch v := s[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case map[string]any:
		// expanded reference object
		if id, ok := v["id"].(float64); ok {
			return int(id)
		}
	}
	return 0
}

// crmTimeLayouts covers the timestamp formats the CRM emits.
var crmTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (s Snapshot) timeField(key string) (time.Time, bool) {
	raw, ok := s[key].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	return ParseTime(raw)
}

// ParseTime parses a CRM timestamp string, assuming UTC for naive values.
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(strings.Replace(raw, "Z", "+00:00", 1))
	for _, layout := range crmTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// User is the CRM user display info consumed by alerts and reports.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PipelineStage is a CRM stage record (name lookup for reports).
type PipelineStage struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Activity is a CRM activity (task, call, meeting) attached to a deal.
type Activity struct {
	ID        int    `json:"id"`
	Subject   string `json:"subject"`
	Type      string `json:"type"`
	Done      bool   `json:"done"`
	DueDate   string `json:"due_date"`
	AddTime   string `json:"add_time"`
	OwnerName string `json:"owner_name"`
	DealID    *int   `json:"deal_id"`
	DealTitle string `json:"deal_title"`
}
