package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/stationops/firecheck/model"
	"gorm.io/gorm"
)

// ErrApparatusNotFound is returned when the apparatus does not exist.
var ErrApparatusNotFound = errors.New("catalog: apparatus not found")

// CheckableKind distinguishes the two target kinds on a manifest.
type CheckableKind string

const (
	KindEquipment  CheckableKind = "equipment"
	KindConsumable CheckableKind = "consumable"
)

// CheckableItem is one expected item in a compartment, joined from the
// manifest against the equipment/consumable master rows.
type CheckableItem struct {
	Kind              CheckableKind `json:"kind"`
	EquipmentItemID   *int64        `json:"equipment_item_id,omitempty"`
	ConsumableStockID *int64        `json:"consumable_stock_id,omitempty"`
	ManifestEntryID   int64         `json:"manifest_entry_id"`
	Name              string        `json:"name"`
	SerialNumber      string        `json:"serial_number,omitempty"`
	Unit              string        `json:"unit,omitempty"`
	ExpectedQty       int           `json:"expected_qty"`
	Required          bool          `json:"required"`
}

// CompartmentDetail is one compartment with its expected items.
type CompartmentDetail struct {
	ID    int64           `json:"id"`
	Code  string          `json:"code"`
	Name  string          `json:"name"`
	Items []CheckableItem `json:"items"`
}

// ApparatusDetails is the full checkable catalog for one apparatus.
type ApparatusDetails struct {
	Apparatus    model.Apparatus     `json:"apparatus"`
	Compartments []CompartmentDetail `json:"compartments"`
	TotalItems   int                 `json:"total_items"`
}

// Reader provides read-only access to the checkable catalog.
type Reader struct {
	db *gorm.DB
}

// NewReader creates a new catalog Reader.
func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db}
}

// ApparatusDetails returns the compartments of an apparatus and the items
// expected in each, joined against the manifest.
func (r *Reader) ApparatusDetails(ctx context.Context, apparatusID int64) (*ApparatusDetails, error) {
	var app model.Apparatus
	if err := r.db.WithContext(ctx).First(&app, apparatusID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApparatusNotFound
		}
		return nil, fmt.Errorf("load apparatus: %w", err)
	}

	var comps []model.Compartment
	if err := r.db.WithContext(ctx).
		Where("apparatus_id = ?", apparatusID).
		Order("sort_order, id").
		Find(&comps).Error; err != nil {
		return nil, fmt.Errorf("load compartments: %w", err)
	}

	details := &ApparatusDetails{Apparatus: app, Compartments: make([]CompartmentDetail, 0, len(comps))}
	for _, comp := range comps {
		items, err := r.compartmentItems(ctx, comp.ID)
		if err != nil {
			return nil, err
		}
		details.Compartments = append(details.Compartments, CompartmentDetail{
			ID:    comp.ID,
			Code:  comp.Code,
			Name:  comp.Name,
			Items: items,
		})
		details.TotalItems += len(items)
	}
	return details, nil
}

func (r *Reader) compartmentItems(ctx context.Context, compartmentID int64) ([]CheckableItem, error) {
	var entries []model.ManifestEntry
	if err := r.db.WithContext(ctx).
		Where("compartment_id = ?", compartmentID).
		Order("id").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	items := make([]CheckableItem, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.EquipmentItemID != nil:
			var eq model.EquipmentItem
			if err := r.db.WithContext(ctx).First(&eq, *e.EquipmentItemID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue // stale manifest row; skip rather than fail the whole catalog
				}
				return nil, fmt.Errorf("load equipment %d: %w", *e.EquipmentItemID, err)
			}
			if !eq.Active {
				continue
			}
			items = append(items, CheckableItem{
				Kind:            KindEquipment,
				EquipmentItemID: e.EquipmentItemID,
				ManifestEntryID: e.ID,
				Name:            eq.Name,
				SerialNumber:    eq.SerialNumber,
				ExpectedQty:     e.ExpectedQty,
				Required:        e.Required,
			})
		case e.ConsumableStockID != nil:
			var cs model.ConsumableStock
			if err := r.db.WithContext(ctx).First(&cs, *e.ConsumableStockID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return nil, fmt.Errorf("load consumable %d: %w", *e.ConsumableStockID, err)
			}
			items = append(items, CheckableItem{
				Kind:              KindConsumable,
				ConsumableStockID: e.ConsumableStockID,
				ManifestEntryID:   e.ID,
				Name:              cs.Name,
				Unit:              cs.Unit,
				ExpectedQty:       e.ExpectedQty,
				Required:          e.Required,
			})
		}
	}
	return items, nil
}
