package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dineflow/tableorder/internal/auth"
	"github.com/dineflow/tableorder/internal/menu"
	"github.com/dineflow/tableorder/internal/orders"
)

// FeedSource is the subscription side of the live feed hub.
type FeedSource interface {
	Subscribe(ctx context.Context) (<-chan []orders.Order, func(), error)
}

// BoardHandler serves the staff and admin boards: the live order stream, the
// lifecycle transitions and the menu/stock administration.
type BoardHandler struct {
	Engine          *orders.Engine
	Menu            *menu.Service
	Feed            FeedSource
	Notify          Notifier
	Auth            *auth.Service
	CustomerBaseURL string
}

func (h *BoardHandler) Register(r chi.Router) {
	r.Post("/api/login", h.login)

	// staff and admin both work the order board
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.Require(auth.RoleStaff))
		r.Get("/api/orders", h.listOrders)
		r.Get("/api/orders/feed", h.streamOrders)
		r.Get("/api/stats", h.stats)
		r.Post("/api/orders/{id}/accept", h.accept)
		r.Post("/api/orders/{id}/complete", h.complete)
		r.Post("/api/orders/{id}/reject", h.reject)
	})

	// menu and QR management is admin only
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.Require(auth.RoleAdmin))
		r.Post("/api/menu", h.saveMenuItem)
		r.Patch("/api/menu/{id}/stock", h.setStock)
		r.Get("/api/tables/{table}/qr", h.tableQR)
	})
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *BoardHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	token, role, err := h.Auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": string(role)})
}

func (h *BoardHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	all, err := h.Engine.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if all == nil {
		all = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, all)
}

// streamOrders is the SSE endpoint behind both boards. Each delivery carries
// the full current order set.
func (h *BoardHandler) streamOrders(w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel, err := h.Feed.Subscribe(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case set := <-ch:
			b, err := json.Marshal(set)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "event: orders\ndata: %s\n\n", b)
			fl.Flush()
		}
	}
}

func (h *BoardHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	s, err := h.Engine.TodayStats(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *BoardHandler) accept(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(ctx context.Context, id string) (orders.Order, error) {
		return h.Engine.Accept(ctx, id)
	})
}

func (h *BoardHandler) complete(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(ctx context.Context, id string) (orders.Order, error) {
		return h.Engine.Complete(ctx, id)
	})
}

type rejectReq struct {
	OutOfStockItemIDs []string `json:"outOfStockItemIds"`
}

func (h *BoardHandler) reject(w http.ResponseWriter, r *http.Request) {
	var req rejectReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body = reject without stock marks
	}
	h.applyTransition(w, r, func(ctx context.Context, id string) (orders.Order, error) {
		return h.Engine.Reject(ctx, id, req.OutOfStockItemIDs)
	})
}

func (h *BoardHandler) applyTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	o, err := fn(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Notify != nil {
		h.Notify.Notify()
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *BoardHandler) saveMenuItem(w http.ResponseWriter, r *http.Request) {
	var it menu.Item
	if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	saved, err := h.Menu.Save(ctx, it)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type setStockReq struct {
	Available bool `json:"available"`
}

func (h *BoardHandler) setStock(w http.ResponseWriter, r *http.Request) {
	var req setStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.Menu.SetAvailable(ctx, chi.URLParam(r, "id"), req.Available); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": req.Available})
}

// tableQR returns the customer URL for a table. Rendering the actual QR image
// stays with the admin frontend.
func (h *BoardHandler) tableQR(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if table == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing table"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"table": table,
		"url":   fmt.Sprintf("%s?table=%s", h.CustomerBaseURL, url.QueryEscape(table)),
	})
}
