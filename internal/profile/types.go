package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// UserProfile is the resident's preparedness record. Field names follow the
// JSON shape the web client stores and posts.
type UserProfile struct {
	Zipcode              string `json:"zipcode,omitempty"`
	Neighborhood         string `json:"neighborhood,omitempty"`
	HousingType          string `json:"housingType,omitempty"`
	Elderly              bool   `json:"elderly"`
	Children             bool   `json:"children"`
	Pets                 bool   `json:"pets"`
	Medical              bool   `json:"medical"`
	EvacuationCapability string `json:"evacuationCapability,omitempty"`
	Language             string `json:"language,omitempty"`
	CreatedAt            Millis `json:"createdAt"`
	UpdatedAt            Millis `json:"updatedAt"`
}

// Household lists the household needs flagged on the profile.
func (p UserProfile) Household() []string {
	var out []string
	if p.Elderly {
		out = append(out, "elderly")
	}
	if p.Children {
		out = append(out, "children")
	}
	if p.Pets {
		out = append(out, "pets")
	}
	if p.Medical {
		out = append(out, "medical needs")
	}
	return out
}

// Millis is a timestamp encoded as Unix milliseconds. It also decodes
// RFC 3339 strings.
type Millis struct {
	time.Time
}

func MillisOf(t time.Time) Millis { return Millis{t} }

func (m Millis) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%d", m.UnixMilli())), nil
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		m.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			m.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		m.Time = t
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	m.Time = time.UnixMilli(ms)
	return nil
}
