// Package merge implements the deterministic reconciliation of two
// candidate datasets. The rules are asymmetric on purpose: the client
// wins value conflicts because it holds the user's most recent visible
// edit, but neither side ever deletes what the other knows. Idle
// devices must not cause silent data loss.
package merge

import (
	"encoding/json"
	"strings"

	"github.com/casilisto/sync/internal/models"
)

// Items combines two item lists keyed by id. Every id present on either
// side appears exactly once. Server items keep their positions; client
// items that exist on both sides replace the server's field values in
// place; client-only items are appended in input order.
func Items(server, client []models.Item) []models.Item {
	index := make(map[models.ItemID]int, len(server)+len(client))
	out := make([]models.Item, 0, len(server)+len(client))

	for _, item := range server {
		index[item.ID] = len(out)
		out = append(out, item)
	}
	for _, item := range client {
		if at, ok := index[item.ID]; ok {
			out[at] = item
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

// Categories is a shallow key union; the client's style wins when both
// sides define the same category name.
func Categories(server, client map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(server)+len(client))
	for name, style := range server {
		out[name] = style
	}
	for name, style := range client {
		out[name] = style
	}
	return out
}

// Favorites unions two favorite lists keyed by case-insensitive text.
// Client entries overwrite server entries with the same key.
func Favorites(server, client []models.Favorite) []models.Favorite {
	index := make(map[string]int, len(server)+len(client))
	out := make([]models.Favorite, 0, len(server)+len(client))

	for _, fav := range server {
		key := strings.ToLower(fav.Text)
		index[key] = len(out)
		out = append(out, fav)
	}
	for _, fav := range client {
		key := strings.ToLower(fav.Text)
		if at, ok := index[key]; ok {
			out[at] = fav
			continue
		}
		index[key] = len(out)
		out = append(out, fav)
	}
	return out
}

// Data merges a client candidate into the server's dataset. Scalar
// flags take the client's value only when the candidate payload carried
// the field explicitly; otherwise the server's value is retained. The
// result's UpdatedAt is left zero for the caller to assign.
func Data(server, client *models.SyncData) *models.SyncData {
	if server == nil {
		server = &models.SyncData{}
	}
	if client == nil {
		client = &models.SyncData{}
	}

	merged := &models.SyncData{
		Items:      Items(server.Items, client.Items),
		Categories: Categories(server.Categories, client.Categories),
		MasterList: Items(server.MasterList, client.MasterList),
		Favorites:  Favorites(server.Favorites, client.Favorites),
		BacoMode:   server.BacoMode,
	}
	if client.BacoMode != nil {
		merged.BacoMode = client.BacoMode
	}
	merged.Normalize()
	return merged
}
