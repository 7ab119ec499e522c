package merge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casilisto/sync/internal/models"
)

func item(id, text string) models.Item {
	return models.Item{ID: models.ItemID(id), Text: text}
}

func TestItems(t *testing.T) {
	t.Run("union contains every id exactly once", func(t *testing.T) {
		server := []models.Item{item("a", "Milk"), item("b", "Bread")}
		client := []models.Item{item("b", "Bread"), item("c", "Eggs")}

		merged := Items(server, client)

		require.Len(t, merged, 3)
		seen := map[models.ItemID]int{}
		for _, it := range merged {
			seen[it.ID]++
		}
		for _, id := range []models.ItemID{"a", "b", "c"} {
			assert.Equal(t, 1, seen[id], "id %s", id)
		}
	})

	t.Run("client fields win on conflicting id", func(t *testing.T) {
		server := []models.Item{item("x", "Milk")}
		client := []models.Item{{ID: "x", Text: "Milk (2%)", Completed: true, Quantity: 2}}

		merged := Items(server, client)

		require.Len(t, merged, 1)
		assert.Equal(t, "Milk (2%)", merged[0].Text)
		assert.True(t, merged[0].Completed)
		assert.Equal(t, 2, merged[0].Quantity)
	})

	t.Run("server order preserved, client-only items appended", func(t *testing.T) {
		server := []models.Item{item("1", "One"), item("2", "Two")}
		client := []models.Item{item("4", "Four"), item("2", "Dos"), item("3", "Three")}

		merged := Items(server, client)

		require.Len(t, merged, 4)
		assert.Equal(t, models.ItemID("1"), merged[0].ID)
		assert.Equal(t, models.ItemID("2"), merged[1].ID)
		assert.Equal(t, "Dos", merged[1].Text)
		assert.Equal(t, models.ItemID("4"), merged[2].ID)
		assert.Equal(t, models.ItemID("3"), merged[3].ID)
	})

	t.Run("empty client is non-destructive", func(t *testing.T) {
		server := []models.Item{item("a", "Milk"), item("b", "Eggs")}

		merged := Items(server, nil)

		assert.Equal(t, server, merged)
	})

	t.Run("deterministic across repeated calls", func(t *testing.T) {
		server := []models.Item{item("a", "A"), item("b", "B")}
		client := []models.Item{item("c", "C"), item("a", "A2")}

		first := Items(server, client)
		second := Items(server, client)

		assert.Equal(t, first, second)
	})
}

func TestCategories(t *testing.T) {
	style := func(s string) json.RawMessage { return json.RawMessage(s) }

	server := map[string]json.RawMessage{
		"Bebidas":  style(`{"color":"purple"}`),
		"Despensa": style(`{"color":"orange"}`),
	}
	client := map[string]json.RawMessage{
		"Bebidas":  style(`{"color":"blue"}`),
		"Mascotas": style(`{"color":"amber"}`),
	}

	merged := Categories(server, client)

	require.Len(t, merged, 3)
	assert.JSONEq(t, `{"color":"blue"}`, string(merged["Bebidas"]))
	assert.JSONEq(t, `{"color":"orange"}`, string(merged["Despensa"]))
	assert.JSONEq(t, `{"color":"amber"}`, string(merged["Mascotas"]))
}

func TestFavorites(t *testing.T) {
	t.Run("keyed case-insensitively, client wins", func(t *testing.T) {
		server := []models.Favorite{{Text: "Leche", Category: "Lácteos y Huevos"}}
		client := []models.Favorite{
			{Text: "leche", Category: "Despensa"},
			{Text: "Pan", Category: "Panadería y Dulces"},
		}

		merged := Favorites(server, client)

		require.Len(t, merged, 2)
		assert.Equal(t, "leche", merged[0].Text)
		assert.Equal(t, "Despensa", merged[0].Category)
		assert.Equal(t, "Pan", merged[1].Text)
	})

	t.Run("disjoint favorites union", func(t *testing.T) {
		server := []models.Favorite{{Text: "Huevos"}}
		client := []models.Favorite{{Text: "Queso"}}

		merged := Favorites(server, client)

		require.Len(t, merged, 2)
	})
}

func TestData(t *testing.T) {
	t.Run("reconciles divergent devices", func(t *testing.T) {
		server := &models.SyncData{
			Items: []models.Item{item("a", "Milk")},
		}
		client := &models.SyncData{
			Items: []models.Item{item("a", "Milk (2%)"), item("b", "Eggs")},
		}

		merged := Data(server, client)

		require.Len(t, merged.Items, 2)
		assert.Equal(t, "Milk (2%)", merged.Items[0].Text)
		assert.Equal(t, "Eggs", merged.Items[1].Text)
	})

	t.Run("bacoMode retained when candidate omits it", func(t *testing.T) {
		server := &models.SyncData{BacoMode: models.BoolPtr(true)}
		client := &models.SyncData{}

		merged := Data(server, client)

		assert.True(t, merged.BacoEnabled())
	})

	t.Run("bacoMode overridden by explicit false", func(t *testing.T) {
		server := &models.SyncData{BacoMode: models.BoolPtr(true)}
		client := &models.SyncData{BacoMode: models.BoolPtr(false)}

		merged := Data(server, client)

		require.NotNil(t, merged.BacoMode)
		assert.False(t, *merged.BacoMode)
	})

	t.Run("nil inputs produce an empty normalized dataset", func(t *testing.T) {
		merged := Data(nil, nil)

		assert.NotNil(t, merged.Items)
		assert.NotNil(t, merged.Categories)
		assert.NotNil(t, merged.MasterList)
		assert.NotNil(t, merged.Favorites)
	})
}
