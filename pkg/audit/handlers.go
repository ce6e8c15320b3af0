package audit

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/fieldaudit/pkg/contextkeys"
	"github.com/platinummonkey/fieldaudit/pkg/httputil"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

// HandlersConfig configures the audit HTTP API
type HandlersConfig struct {
	// DefaultRetentionDays is used by POST /cleanup when the body names no horizon
	DefaultRetentionDays int

	Logger *observability.Logger
}

// Handlers provides HTTP handlers for the audit log API
type Handlers struct {
	service          *Service
	recorder         *Recorder
	defaultRetention int
	logger           *observability.Logger
}

// NewHandlers creates new audit handlers. recorder may be nil, in which
// case exports and cleanups are not themselves audited.
func NewHandlers(service *Service, recorder *Recorder, cfg HandlersConfig) *Handlers {
	if cfg.DefaultRetentionDays == 0 {
		cfg.DefaultRetentionDays = DefaultRetentionDays
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	return &Handlers{
		service:          service,
		recorder:         recorder,
		defaultRetention: cfg.DefaultRetentionDays,
		logger:           cfg.Logger,
	}
}

// RegisterRoutes registers audit log routes on router, typically a
// subrouter for the API prefix
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/logs", h.listLogs).Methods("GET")
	router.HandleFunc("/stats", h.getStats).Methods("GET")
	router.HandleFunc("/entity/{entity}/{entityId}", h.getEntityHistory).Methods("GET")
	router.HandleFunc("/user/{userId}", h.getUserLogs).Methods("GET")
	router.HandleFunc("/recent", h.getRecent).Methods("GET")
	router.HandleFunc("/cleanup", h.cleanup).Methods("POST")
	router.HandleFunc("/actions", h.listActions).Methods("GET")
	router.HandleFunc("/entities", h.listEntities).Methods("GET")
	router.HandleFunc("/severities", h.listSeverities).Methods("GET")
	router.HandleFunc("/export", h.exportLogs).Methods("GET")
}

// listLogs handles GET /logs
func (h *Handlers) listLogs(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Query(r.Context(), parseFilter(r))
	if err != nil {
		h.storageFailure(w, r, err, "failed to fetch audit logs")
		return
	}
	writeQueryResult(w, result)
}

// getStats handles GET /stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), StatsFilter{
		ActorID: httputil.QueryString(r, "userId"),
		From:    httputil.QueryInt64Ptr(r, "startDate"),
		To:      httputil.QueryInt64Ptr(r, "endDate"),
	})
	if err != nil {
		h.storageFailure(w, r, err, "failed to fetch audit statistics")
		return
	}
	httputil.WriteSuccess(w, httputil.Envelope{"stats": stats})
}

// getEntityHistory handles GET /entity/{entity}/{entityId}
func (h *Handlers) getEntityHistory(w http.ResponseWriter, r *http.Request) {
	entity := parseEntityFilter(httputil.PathString(r, "entity"))
	entityID := httputil.PathString(r, "entityId")

	history, err := h.service.HistoryFor(r.Context(), entity, entityID, httputil.QueryInt(r, "limit", DefaultHistoryLimit))
	if err != nil {
		h.storageFailure(w, r, err, "failed to fetch entity history")
		return
	}
	httputil.WriteSuccess(w, httputil.Envelope{"history": history})
}

// getUserLogs handles GET /user/{userId}
func (h *Handlers) getUserLogs(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ForActor(r.Context(),
		httputil.PathString(r, "userId"),
		httputil.QueryInt(r, "page", 1),
		httputil.QueryInt(r, "limit", DefaultPageLimit),
	)
	if err != nil {
		h.storageFailure(w, r, err, "failed to fetch user audit logs")
		return
	}
	writeQueryResult(w, result)
}

// getRecent handles GET /recent
func (h *Handlers) getRecent(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Recent(r.Context(), httputil.QueryInt(r, "limit", DefaultPageLimit))
	if err != nil {
		h.storageFailure(w, r, err, "failed to fetch recent audit logs")
		return
	}
	writeQueryResult(w, result)
}

type cleanupRequest struct {
	DaysToKeep *int `json:"daysToKeep"`
}

// cleanup handles POST /cleanup
func (h *Handlers) cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := httputil.ParseOptionalJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	days := h.defaultRetention
	if req.DaysToKeep != nil {
		days = *req.DaysToKeep
	}

	deleted, err := h.service.PurgeOlderThan(r.Context(), days)
	if errors.Is(err, ErrRetentionTooShort) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err != nil {
		h.storageFailure(w, r, err, "failed to clean up audit logs")
		return
	}

	message := fmt.Sprintf("Deleted %d audit logs older than %d days", deleted, days)
	h.recorder.Record(r.Context(), Entry{
		Action:      ActionDelete,
		EntityType:  EntityAuditLogs,
		Description: message,
		Severity:    SeverityWarning,
	})

	httputil.WriteSuccess(w, httputil.Envelope{
		"message": message,
		"deleted": deleted,
	})
}

// listActions handles GET /actions
func (h *Handlers) listActions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, httputil.Envelope{"actions": AllActions()})
}

// listEntities handles GET /entities
func (h *Handlers) listEntities(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, httputil.Envelope{"entities": AllEntityTypes()})
}

// listSeverities handles GET /severities
func (h *Handlers) listSeverities(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, httputil.Envelope{"severities": AllSeverities()})
}

// exportLogs handles GET /export
func (h *Handlers) exportLogs(w http.ResponseWriter, r *http.Request) {
	format, err := ParseExportFormat(httputil.QueryString(r, "format"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	records, err := h.service.Export(r.Context(), parseFilter(r))
	if err != nil {
		h.storageFailure(w, r, err, "failed to export audit logs")
		return
	}

	data, err := Encode(records, format)
	if err != nil {
		h.logFor(r).WithError(err).Error("failed to encode audit export")
		httputil.WriteInternalError(w, "failed to export audit logs")
		return
	}

	h.recorder.LogExport(r.Context(), EntityAuditLogs, "", string(format))

	httputil.WriteAttachment(w, format.ContentType(), format.Filename(), data)
}

func writeQueryResult(w http.ResponseWriter, result *QueryResult) {
	httputil.WriteSuccess(w, httputil.Envelope{
		"logs":       result.Records,
		"pagination": result.Pagination,
	})
}

// storageFailure logs the detail and answers with a generic message
func (h *Handlers) storageFailure(w http.ResponseWriter, r *http.Request, err error, message string) {
	h.logFor(r).WithError(err).Error(message)
	httputil.WriteInternalError(w, message)
}

func (h *Handlers) logFor(r *http.Request) *observability.Logger {
	logger := h.logger.WithField("path", r.URL.Path)
	if requestID := contextkeys.GetRequestID(r.Context()); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	return logger
}

// parseFilter reads list filters from the query string. Malformed numbers
// are ignored and unknown enum values are kept verbatim, so they match
// nothing.
func parseFilter(r *http.Request) Filter {
	return Filter{
		ActorID:    httputil.QueryString(r, "userId"),
		Action:     parseActionFilter(httputil.QueryString(r, "action")),
		EntityType: parseEntityFilter(httputil.QueryString(r, "entity")),
		EntityID:   httputil.QueryString(r, "entityId"),
		Severity:   parseSeverityFilter(httputil.QueryString(r, "severity")),
		From:       httputil.QueryInt64Ptr(r, "startDate"),
		To:         httputil.QueryInt64Ptr(r, "endDate"),
		Search:     httputil.QueryString(r, "search"),
		Page:       httputil.QueryInt(r, "page", 1),
		Limit:      httputil.QueryInt(r, "limit", DefaultPageLimit),
	}
}

func parseActionFilter(s string) Action {
	if a, err := ParseAction(s); err == nil {
		return a
	}
	return Action(s)
}

func parseEntityFilter(s string) EntityType {
	if e, err := ParseEntityType(s); err == nil {
		return e
	}
	return EntityType(s)
}

func parseSeverityFilter(s string) Severity {
	if sev, err := ParseSeverity(s); err == nil {
		return sev
	}
	return Severity(s)
}
