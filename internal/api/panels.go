package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/panel"
)

type createPanelRequest struct {
	Location string `json:"location"`
	Open     bool   `json:"open"`
}

type locationRequest struct {
	Path string `json:"path"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type queryRequest struct {
	Query string `json:"query"`
}

// messageResponse reports whether a message started an exchange. With
// ?wait=true the response is written after the exchange finished.
type messageResponse struct {
	Accepted bool              `json:"accepted"`
	Session  panel.SessionView `json:"session"`
	Error    string            `json:"error,omitempty"`
}

func (h *Handler) panel(w http.ResponseWriter, r *http.Request) (*panel.Panel, bool) {
	p, err := h.panels.Get(chi.URLParam(r, "panelID"))
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return p, true
}

// CreatePanel registers a panel, optionally opening it right away.
func (h *Handler) CreatePanel(w http.ResponseWriter, r *http.Request) {
	var req createPanelRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	p := h.panels.Create(req.Location)
	state := p.State()
	if req.Open {
		state = p.Open(r.Context())
	}
	JSON(w, http.StatusCreated, state)
}

func (h *Handler) GetPanel(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.panel(w, r); ok {
		JSON(w, http.StatusOK, p.State())
	}
}

func (h *Handler) DeletePanel(w http.ResponseWriter, r *http.Request) {
	if err := h.panels.Remove(chi.URLParam(r, "panelID")); err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) OpenPanel(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.panel(w, r); ok {
		JSON(w, http.StatusOK, p.Open(r.Context()))
	}
}

func (h *Handler) ClosePanel(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.panel(w, r); ok {
		p.Close()
		JSON(w, http.StatusOK, p.State())
	}
}

func (h *Handler) SetLocation(w http.ResponseWriter, r *http.Request) {
	p, ok := h.panel(w, r)
	if !ok {
		return
	}
	var req locationRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.SetLocation(req.Path)
	JSON(w, http.StatusOK, p.State())
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.panel(w, r); ok {
		JSON(w, http.StatusOK, p.History())
	}
}

func (h *Handler) NewConversation(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.panel(w, r); ok {
		JSON(w, http.StatusOK, p.Controller().StartNewConversation())
	}
}

func (h *Handler) LoadConversation(w http.ResponseWriter, r *http.Request) {
	p, ok := h.panel(w, r)
	if !ok {
		return
	}
	view, err := p.Controller().LoadConversation(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		Error(w, http.StatusInternalServerError, panel.NoticeLoadFailed)
		return
	}
	JSON(w, http.StatusOK, view)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.panel(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respondExchange(w, r, p, p.Controller().SendMessage(r.Context(), req.Text))
}

func (h *Handler) ExternalQuery(w http.ResponseWriter, r *http.Request) {
	p, ok := h.panel(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respondExchange(w, r, p, p.Controller().StartFromExternalQuery(r.Context(), req.Query))
}

func (h *Handler) respondExchange(w http.ResponseWriter, r *http.Request, p *panel.Panel, ex *panel.Exchange) {
	if ex == nil {
		JSON(w, http.StatusOK, messageResponse{Accepted: false, Session: p.Controller().Active()})
		return
	}
	if r.URL.Query().Get("wait") != "true" {
		JSON(w, http.StatusAccepted, messageResponse{Accepted: true, Session: p.Controller().Active()})
		return
	}

	resp := messageResponse{Accepted: true}
	if _, err := ex.Wait(r.Context()); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		resp.Error = err.Error()
	}
	resp.Session = p.Controller().Active()
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) QuickAction(w http.ResponseWriter, r *http.Request) {
	p, ok := h.panel(w, r)
	if !ok {
		return
	}
	var qa chat.QuickAction
	if err := decode(w, r, &qa); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	JSON(w, http.StatusOK, p.HandleQuickAction(qa))
}
