package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/auth"
	"github.com/ariefcatur/storefront-orders/internal/logging"
	"github.com/ariefcatur/storefront-orders/internal/orders"
	"github.com/ariefcatur/storefront-orders/internal/refgen"
)

// OrderCache is the redis side of the order endpoints. Every error is
// treated as a miss; the store stays authoritative.
type OrderCache interface {
	ReserveOrder(ctx context.Context, key string) (existingID string, reserved bool, err error)
	ReleaseOrder(ctx context.Context, key string) error
	RememberOrder(ctx context.Context, key, orderID string) error
	GetOrder(ctx context.Context, idOrRef string) ([]byte, bool, error)
	PutOrder(ctx context.Context, idOrRef string, body []byte) error
	EvictOrder(ctx context.Context, idsOrRefs ...string) error
}

type OrdersHandler struct {
	Orders   *orders.Service
	Cache    OrderCache
	Verifier *auth.Verifier
}

type CreateOrderResp struct {
	orders.Order
	Idempotent bool `json:"idempotent"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/ref/{ref}", h.getOrderByRef)
	r.Get("/orders/{id}", h.getOrder)

	r.Group(func(r chi.Router) {
		r.Use(h.Verifier.RequireAdmin)
		r.Get("/orders", h.listOrders)
		r.Put("/orders/{id}", h.updateOrder)
		r.Post("/orders/{id}/mark-paid", h.markPaid)
		r.Delete("/orders/{id}", h.deleteOrder)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	log := logging.FromContext(ctx)

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	reserved := false
	if idemKey != "" && h.Cache != nil {
		id, ok, err := h.Cache.ReserveOrder(ctx, idemKey)
		switch {
		case err != nil:
			log.Warn("idempotency reserve failed", zap.Error(err))
		case ok:
			reserved = true
		case id == "":
			writeError(w, r, apperr.Conflict("httpx.createOrder", apperr.CodeIdempotencyInFlight,
				"an order for this Idempotency-Key is still being created"))
			return
		default:
			o, err := h.Orders.Get(ctx, id)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, CreateOrderResp{Order: o, Idempotent: true})
			return
		}
	}

	o, err := h.Orders.Create(ctx, req)
	if err != nil {
		if reserved {
			if err := h.Cache.ReleaseOrder(ctx, idemKey); err != nil {
				log.Warn("idempotency release failed", zap.Error(err))
			}
		}
		writeError(w, r, err)
		return
	}
	if reserved {
		if err := h.Cache.RememberOrder(ctx, idemKey, o.ID); err != nil {
			log.Warn("idempotency store failed", zap.Error(err), zap.String("order_id", o.ID))
		}
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{Order: o})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "id"))
	if refgen.Valid(strings.ToUpper(key)) {
		key = strings.ToUpper(key)
	}
	h.serveOrder(w, r, key, h.Orders.Lookup)
}

func (h *OrdersHandler) getOrderByRef(w http.ResponseWriter, r *http.Request) {
	h.serveOrder(w, r, strings.ToUpper(chi.URLParam(r, "ref")), h.Orders.GetByRef)
}

// serveOrder answers from the snapshot cache and falls back to load.
func (h *OrdersHandler) serveOrder(w http.ResponseWriter, r *http.Request, key string,
	load func(context.Context, string) (orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil && key != "" {
		if b, ok, err := h.Cache.GetOrder(ctx, key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(b)
			return
		}
	}

	o, err := load(ctx, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.PutOrder(ctx, key, b); err != nil {
			logging.FromContext(ctx).Warn("order snapshot store failed", zap.Error(err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f := orders.ListFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := orders.ParseStatus(s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.Status = st
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err == nil {
			f.Limit = n
		}
	}
	out, err := h.Orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.UpdateOrderInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Status != nil {
		st, err := orders.ParseStatus(string(*req.Status))
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.Status = &st
	}
	res, err := h.Orders.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.evict(r.Context(), res.Order)
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) markPaid(w http.ResponseWriter, r *http.Request) {
	res, err := h.Orders.MarkPaid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.evict(r.Context(), res.Order)
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.evict(r.Context(), o)
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) evict(ctx context.Context, o orders.Order) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.EvictOrder(ctx, o.ID, o.Ref); err != nil {
		logging.FromContext(ctx).Warn("order snapshot evict failed", zap.Error(err), zap.String("order_id", o.ID))
	}
}
