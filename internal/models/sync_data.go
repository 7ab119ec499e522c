package models

import (
	"bytes"
	"encoding/json"
)

// ItemID is the merge key for shopping items. Legacy clients generated
// numeric ids (Date.now counters) before switching to UUID strings, so
// both forms must decode; numeric ids round-trip back as numbers.
type ItemID string

func (id *ItemID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ItemID(n.String())
	return nil
}

func (id ItemID) MarshalJSON() ([]byte, error) {
	if isJSONNumber(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// isJSONNumber reports whether s is emittable as a bare JSON number.
// Digit strings with a leading zero ("01") are not: raw 01 is invalid
// JSON, so those ids stay quoted.
func isJSONNumber(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) == 1 || s[0] != '0'
}

// Item is one entry of the shopping list or the master list. Master
// list entries historically carried a "name" field instead of "text";
// both are preserved on the wire.
type Item struct {
	ID        ItemID `json:"id"`
	Text      string `json:"text,omitempty"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category,omitempty"`
	Completed bool   `json:"completed"`
	Quantity  int    `json:"quantity,omitempty"`
}

// Favorite is a quick-add shortcut; merged case-insensitively by text.
type Favorite struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

// SyncData is the full dataset synchronized between devices. Category
// styles are opaque to the sync engine and stored as raw JSON.
//
// BacoMode is a pointer so a candidate payload that omits the flag can
// be told apart from one that explicitly sets it false: only an
// explicit value overrides the server's.
type SyncData struct {
	Items      []Item                     `json:"items"`
	Categories map[string]json.RawMessage `json:"categories"`
	MasterList []Item                     `json:"masterList"`
	Favorites  []Favorite                 `json:"favorites"`
	BacoMode   *bool                      `json:"bacoMode,omitempty"`
	UpdatedAt  int64                      `json:"updatedAt,omitempty"`
}

// HasItems reports whether the dataset contains any shopping items.
// An account whose state has no items is treated as empty on push.
func (d *SyncData) HasItems() bool {
	return d != nil && len(d.Items) > 0
}

// BacoEnabled resolves the tri-state flag to a concrete bool.
func (d *SyncData) BacoEnabled() bool {
	return d != nil && d.BacoMode != nil && *d.BacoMode
}

// Normalize replaces nil collections with empty ones so the dataset
// always serializes as [] / {} rather than null.
func (d *SyncData) Normalize() {
	if d.Items == nil {
		d.Items = []Item{}
	}
	if d.Categories == nil {
		d.Categories = map[string]json.RawMessage{}
	}
	if d.MasterList == nil {
		d.MasterList = []Item{}
	}
	if d.Favorites == nil {
		d.Favorites = []Favorite{}
	}
}

// BoolPtr is a convenience for building candidate payloads.
func BoolPtr(v bool) *bool {
	return &v
}
