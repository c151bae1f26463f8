package testutil

import (
	"testing"
	"time"

	"github.com/stationops/firecheck/cache"
	"github.com/stationops/firecheck/config"
	dbadapter "github.com/stationops/firecheck/db"
	"github.com/stationops/firecheck/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: ":memory:",
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// Fixture is a seeded apparatus with two compartments, three equipment
// units and two consumable stocks, all on the manifest.
type Fixture struct {
	Station     *model.Station
	Apparatus   *model.Apparatus
	CompFront   *model.Compartment
	CompRear    *model.Compartment
	Equipment   []*model.EquipmentItem   // 2 in front, 1 in rear
	Consumables []*model.ConsumableStock // 1 in front, 1 in rear
}

// TotalItems is the manifest size of the fixture.
func (f *Fixture) TotalItems() int {
	return len(f.Equipment) + len(f.Consumables)
}

// SeedApparatus inserts the standard fixture used by catalog and check tests.
func SeedApparatus(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()

	station := &model.Station{Name: "Station 4", Code: "ST4"}
	require.NoError(t, db.Create(station).Error)

	app := &model.Apparatus{
		StationID: station.ID,
		Code:      "E-1",
		Name:      "Engine 1",
		Kind:      "engine",
		Active:    true,
	}
	require.NoError(t, db.Create(app).Error)

	front := &model.Compartment{ApparatusID: app.ID, Code: "D1", Name: "Driver side front", SortOrder: 1}
	rear := &model.Compartment{ApparatusID: app.ID, Code: "REAR", Name: "Rear step", SortOrder: 2}
	require.NoError(t, db.Create(front).Error)
	require.NoError(t, db.Create(rear).Error)

	equip := []*model.EquipmentItem{
		{CompartmentID: front.ID, Name: "SCBA Pack 1", SerialNumber: "SCBA-0001", Category: "SCBA", Active: true},
		{CompartmentID: front.ID, Name: "Halligan bar", SerialNumber: "HB-0114", Category: "hand tool", Active: true},
		{CompartmentID: rear.ID, Name: "Attack line 1.75in", SerialNumber: "HOSE-2201", Category: "hose", Active: true},
	}
	for _, e := range equip {
		require.NoError(t, db.Create(e).Error)
	}

	exp := time.Now().Add(90 * 24 * time.Hour)
	cons := []*model.ConsumableStock{
		{CompartmentID: front.ID, Name: "Trauma dressings", Unit: "box", QuantityOnHand: 4, MinQuantity: 2, ExpiresAt: &exp},
		{CompartmentID: rear.ID, Name: "Class A foam", Unit: "liter", QuantityOnHand: 20, MinQuantity: 10},
	}
	for _, c := range cons {
		require.NoError(t, db.Create(c).Error)
	}

	for _, e := range equip {
		id := e.ID
		require.NoError(t, db.Create(&model.ManifestEntry{
			CompartmentID:   e.CompartmentID,
			EquipmentItemID: &id,
			ExpectedQty:     1,
			Required:        true,
		}).Error)
	}
	for _, c := range cons {
		id := c.ID
		require.NoError(t, db.Create(&model.ManifestEntry{
			CompartmentID:     c.CompartmentID,
			ConsumableStockID: &id,
			ExpectedQty:       c.MinQuantity,
			Required:          true,
		}).Error)
	}

	return &Fixture{
		Station:     station,
		Apparatus:   app,
		CompFront:   front,
		CompRear:    rear,
		Equipment:   equip,
		Consumables: cons,
	}
}
