package check

// TargetKind tags the two verification target variants.
type TargetKind int

const (
	TargetEquipment TargetKind = iota + 1
	TargetConsumable
)

// Target identifies what a verification applies to: an equipment unit or a
// consumable stock, never both. Construct via EquipmentTarget or
// ConsumableTarget; the zero value is invalid.
type Target struct {
	kind TargetKind
	id   int64
}

// EquipmentTarget builds a target for a serialized equipment unit.
func EquipmentTarget(equipmentItemID int64) Target {
	return Target{kind: TargetEquipment, id: equipmentItemID}
}

// ConsumableTarget builds a target for a consumable stock.
func ConsumableTarget(consumableStockID int64) Target {
	return Target{kind: TargetConsumable, id: consumableStockID}
}

// Valid reports whether the target was built through a constructor with a
// positive id.
func (t Target) Valid() bool {
	return (t.kind == TargetEquipment || t.kind == TargetConsumable) && t.id > 0
}

// Kind returns the target variant.
func (t Target) Kind() TargetKind { return t.kind }

// EquipmentItemID returns the equipment id and true for equipment targets.
func (t Target) EquipmentItemID() (int64, bool) {
	if t.kind == TargetEquipment {
		return t.id, true
	}
	return 0, false
}

// ConsumableStockID returns the stock id and true for consumable targets.
func (t Target) ConsumableStockID() (int64, bool) {
	if t.kind == TargetConsumable {
		return t.id, true
	}
	return 0, false
}
