package orders

// Line is one menu item as captured at order time. It is a snapshot: later
// menu edits never flow back into a placed order.
type Line struct {
	ItemID string  `json:"id"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Qty    int     `json:"qty"`
}

// Order matches the persisted document shape field for field. TotalAmount is
// frozen at creation; only Status ever changes afterwards.
type Order struct {
	ID            string  `json:"id,omitempty"`
	Table         string  `json:"table"`
	CustomerName  string  `json:"customerName"`
	CustomerPhone string  `json:"customerPhone"`
	Items         []Line  `json:"items"`
	TotalAmount   float64 `json:"totalAmount"`
	Status        Status  `json:"status"`
	CreatedAt     string  `json:"createdAt"` // ISO-8601, sorts lexicographically
}

// NewOrder is the checkout input; totals and status are assigned server-side.
type NewOrder struct {
	Table         string `json:"table"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	Items         []Line `json:"items"`
}

func Total(items []Line) float64 {
	var sum float64
	for _, l := range items {
		sum += l.Price * float64(l.Qty)
	}
	return sum
}
