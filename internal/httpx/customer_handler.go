package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dineflow/tableorder/internal/cart"
	"github.com/dineflow/tableorder/internal/menu"
	"github.com/dineflow/tableorder/internal/orders"
)

// CartStore is what the customer handler needs from the session cart.
// *cart.SessionStore satisfies it; tests swap in a map.
type CartStore interface {
	Get(ctx context.Context, session string) ([]orders.Line, error)
	Put(ctx context.Context, session string, lines []orders.Line) error
	Clear(ctx context.Context, session string) error
}

// Notifier pokes the live feed after a local mutation, so subscribers on this
// instance do not have to wait for the event bus round trip.
type Notifier interface {
	Notify()
}

type CustomerHandler struct {
	Menu   *menu.Service
	Engine *orders.Engine
	Carts  CartStore
	Feed   Notifier
}

func (h *CustomerHandler) Register(r chi.Router) {
	r.Get("/api/menu", h.listMenu)
	r.Get("/api/cart", h.getCart)
	r.Post("/api/cart/items", h.addCartItem)
	r.Delete("/api/cart/items/{id}", h.removeCartItem)
	r.Post("/api/orders", h.checkout)
	r.Get("/api/orders/{id}/status", h.orderStatus)
}

func (h *CustomerHandler) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	items, err := h.Menu.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []menu.Item{} // zero items renders an empty list, not an error
	}
	writeJSON(w, http.StatusOK, items)
}

type cartView struct {
	Items []orders.Line `json:"items"`
	Total float64       `json:"total"`
}

func sessionID(r *http.Request) string {
	return r.Header.Get("X-Session-ID")
}

func (h *CustomerHandler) getCart(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	if session == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	lines, err := h.Carts.Get(ctx, session)
	if err != nil {
		writeError(w, err)
		return
	}
	if lines == nil {
		lines = []orders.Line{}
	}
	writeJSON(w, http.StatusOK, cartView{Items: lines, Total: cart.Total(lines)})
}

type addCartItemReq struct {
	ItemID string `json:"id"`
	Qty    int    `json:"qty"`
}

func (h *CustomerHandler) addCartItem(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	if session == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session"})
		return
	}
	var req addCartItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Qty < 1 {
		req.Qty = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	item, err := h.Menu.Get(ctx, req.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !item.InStock() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "item is sold out"})
		return
	}

	lines, err := h.Carts.Get(ctx, session)
	if err != nil {
		writeError(w, err)
		return
	}
	// snapshot name and price now; later menu edits must not touch this cart
	lines = cart.Add(lines, orders.Line{
		ItemID: item.ID,
		Name:   item.Name,
		Price:  item.Price,
		Qty:    req.Qty,
	})
	if err := h.Carts.Put(ctx, session, lines); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartView{Items: lines, Total: cart.Total(lines)})
}

func (h *CustomerHandler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	if session == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	lines, err := h.Carts.Get(ctx, session)
	if err != nil {
		writeError(w, err)
		return
	}
	lines = cart.Remove(lines, chi.URLParam(r, "id"))
	if err := h.Carts.Put(ctx, session, lines); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartView{Items: lines, Total: cart.Total(lines)})
}

type checkoutReq struct {
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
}

func (h *CustomerHandler) checkout(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	if session == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session"})
		return
	}
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	lines, err := h.Carts.Get(ctx, session)
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := h.Engine.Create(ctx, orders.NewOrder{
		Table:         r.URL.Query().Get("table"),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Items:         lines,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// The cart survives a failed checkout so the customer can retry; only a
	// placed order clears it.
	if err := h.Carts.Clear(ctx, session); err != nil {
		writeError(w, err)
		return
	}
	if h.Feed != nil {
		h.Feed.Notify()
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *CustomerHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	status, err := h.Engine.Status(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
