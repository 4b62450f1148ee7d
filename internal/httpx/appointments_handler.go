package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/storefront-orders/internal/appointments"
	"github.com/ariefcatur/storefront-orders/internal/auth"
)

type AppointmentsHandler struct {
	Appointments *appointments.Service
	Verifier     *auth.Verifier
}

func (h *AppointmentsHandler) Register(r chi.Router) {
	r.Post("/appointments", h.book)
	r.Get("/appointments/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(h.Verifier.RequireAdmin)
		r.Get("/appointments", h.list)
		r.Put("/appointments/{id}/status", h.updateStatus)
	})
}

func (h *AppointmentsHandler) book(w http.ResponseWriter, r *http.Request) {
	var req appointments.CreateInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.Appointments.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AppointmentsHandler) get(w http.ResponseWriter, r *http.Request) {
	a, err := h.Appointments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AppointmentsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.Appointments.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []appointments.Appointment{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AppointmentsHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status appointments.Status `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.Appointments.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
