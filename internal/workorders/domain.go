package workorders

import "time"

// BOMComponent is one component of a bill of materials with its
// per-unit requirement.
type BOMComponent struct {
	ItemID      int64  `json:"itemId"`
	ItemName    string `json:"itemName"`
	RequiredQty int64  `json:"requiredQty"`
}

// BOM is a bill of materials for one finished item.
type BOM struct {
	ID         int64
	Name       string
	Components []BOMComponent
	CreatedAt  time.Time
}

// Line is one finished item on a work order. SoldQuantity tracks how
// many units downstream sales already consumed; the ordered quantity
// can never drop below it.
type Line struct {
	BOMID        int64  `json:"bomId"`
	BOMName      string `json:"bomName"`
	Quantity     int64  `json:"quantity"`
	SoldQuantity int64  `json:"soldQuantity"`
}

// WorkOrder is a numbered manufacturing order built from BOM lines.
type WorkOrder struct {
	ID        int64
	Number    string
	Lines     []Line
	Notes     string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// componentNeeds nets the per-component requirement across every line
// of a work order. Components shared by multiple lines accumulate.
func componentNeeds(lines []Line, boms map[int64]BOM) map[int64]int64 {
	needs := map[int64]int64{}
	for _, line := range lines {
		bom := boms[line.BOMID]
		for _, c := range bom.Components {
			needs[c.ItemID] += c.RequiredQty * line.Quantity
		}
	}
	return needs
}
