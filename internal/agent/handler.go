package agent

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/plotbound/plotbound/presence-go/internal/aggregator"
	"github.com/plotbound/plotbound/presence-go/internal/engagement"
	"github.com/plotbound/plotbound/presence-go/internal/presence"
	"github.com/plotbound/plotbound/presence-go/internal/reporter"
)

// Handler is the agent's local control surface. The surrounding UI posts
// navigation, interaction and pane events here, and reads the derived
// occupancy aggregates back.
type Handler struct {
	reporter *reporter.Reporter
	agg      *aggregator.Aggregator
}

func NewHandler(r *reporter.Reporter, agg *aggregator.Aggregator) *Handler {
	return &Handler{reporter: r, agg: agg}
}

func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods("GET")

	r.HandleFunc("/context", h.GetContext).Methods("GET")
	r.HandleFunc("/context/navigate", h.Navigate).Methods("POST")
	r.HandleFunc("/context/document", h.SetDocument).Methods("POST")
	r.HandleFunc("/context/activity", h.SetActivity).Methods("POST")
	r.HandleFunc("/context/panes", h.PushPane).Methods("POST")
	r.HandleFunc("/context/panes/{documentId}", h.PopPane).Methods("DELETE")
	r.HandleFunc("/context/modal", h.OpenModal).Methods("POST")
	r.HandleFunc("/context/modal", h.CloseModal).Methods("DELETE")

	r.HandleFunc("/signals", h.Signal).Methods("POST")
	r.HandleFunc("/visibility", h.Visibility).Methods("POST")

	r.HandleFunc("/activity/site", h.SiteActivity).Methods("GET")
	r.HandleFunc("/activity/workspaces/{workspaceId}", h.WorkspaceActivity).Methods("GET")
	r.HandleFunc("/activity/documents/{documentId}", h.DocumentActivity).Methods("GET")
	return r
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

type navigateRequest struct {
	PageType        presence.PageType `json:"pageType"`
	ScopeHint       string            `json:"scopeHint"`
	ModalDocumentID string            `json:"modalDocumentId"`
	Form            struct {
		WorkspaceID string `json:"workspaceId"`
		DocumentID  string `json:"documentId"`
		ParentID    string `json:"parentId"`
	} `json:"form"`
}

func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.PageType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pageType is required"})
		return
	}

	h.reporter.Navigate(reporter.Page{
		Type:            req.PageType,
		ScopeHint:       req.ScopeHint,
		ModalDocumentID: req.ModalDocumentID,
		Form: reporter.FormValues{
			WorkspaceID: req.Form.WorkspaceID,
			DocumentID:  req.Form.DocumentID,
			ParentID:    req.Form.ParentID,
		},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetContext(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.reporter.Current())
}

type documentRequest struct {
	DocumentID string `json:"documentId"`
}

func (h *Handler) SetDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	h.reporter.SetDocumentID(req.DocumentID)
	w.WriteHeader(http.StatusNoContent)
}

type activityRequest struct {
	ActivityType presence.ActivityType `json:"activityType"`
}

func (h *Handler) SetActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActivityType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "activityType is required"})
		return
	}
	h.reporter.SetActivityType(req.ActivityType)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PushPane(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId is required"})
		return
	}
	h.reporter.PushOpenPane(req.DocumentID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PopPane(w http.ResponseWriter, r *http.Request) {
	h.reporter.PopOpenPane(mux.Vars(r)["documentId"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) OpenModal(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId is required"})
		return
	}
	h.reporter.OpenModal(req.DocumentID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CloseModal(w http.ResponseWriter, _ *http.Request) {
	h.reporter.CloseModal()
	w.WriteHeader(http.StatusNoContent)
}

type signalRequest struct {
	Kind engagement.Kind `json:"kind"`
}

func (h *Handler) Signal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	switch req.Kind {
	case engagement.PointerMove, engagement.KeyPress, engagement.Scroll, engagement.Click:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown signal kind"})
		return
	}
	h.reporter.Signal(req.Kind)
	w.WriteHeader(http.StatusNoContent)
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

func (h *Handler) Visibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	h.reporter.SetVisible(req.Visible)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SiteActivity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.agg.SiteActivity())
}

func (h *Handler) WorkspaceActivity(w http.ResponseWriter, r *http.Request) {
	agg, ok := h.agg.WorkspaceActivity(mux.Vars(r)["workspaceId"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workspace not tracked"})
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (h *Handler) DocumentActivity(w http.ResponseWriter, r *http.Request) {
	state, ok := h.agg.DocumentEditing(mux.Vars(r)["documentId"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active editor"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
