package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/analytics"
	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/internal/health"
	"github.com/Wuchinator/deal-pipeline/internal/notification"
	"github.com/Wuchinator/deal-pipeline/internal/report"
)

type ReportGenerator interface {
	Generate(ctx context.Context) (*report.Report, error)
	Latest(ctx context.Context) (*report.Report, error)
}

type NotificationSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type AnalyticsReader interface {
	GetDealAnalytics(ctx context.Context, id uuid.UUID) (*analytics.DealAnalytics, error)
	GetTopDeals(ctx context.Context, filter analytics.TopDealsFilter) ([]*analytics.DealStats, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, dealID uuid.UUID) (*deal.Analytics, error)
}

type NotificationInbox interface {
	List(ctx context.Context, filter notification.ListFilter) ([]*notification.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

type DealStore interface {
	Get(ctx context.Context, id uuid.UUID) (*deal.Deal, error)
	Create(ctx context.Context, row *deal.Row) error
	InsertClaim(ctx context.Context, claim *deal.Claim) error
}

// HealthReporter checks the API's dependencies. A nil reporter makes /health a liveness check.
type HealthReporter interface {
	Run(ctx context.Context) health.Report
}

type Handler struct {
	reports    ReportGenerator
	sweeper    NotificationSweeper
	analytics  AnalyticsReader
	reconciler Reconciler
	inbox      NotificationInbox
	deals      DealStore
	health     HealthReporter
	logger     *zap.Logger
	now        func() time.Time
}

func NewHandler(
	reports ReportGenerator,
	sweeper NotificationSweeper,
	analyticsReader AnalyticsReader,
	reconciler Reconciler,
	inbox NotificationInbox,
	deals DealStore,
	checks HealthReporter,
	logger *zap.Logger) *Handler {
	return &Handler{
		reports:    reports,
		sweeper:    sweeper,
		analytics:  analyticsReader,
		reconciler: reconciler,
		inbox:      inbox,
		deals:      deals,
		health:     checks,
		logger:     logger,
		now:        time.Now,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type reportResponse struct {
	Success bool           `json:"success"`
	Report  *report.Report `json:"report"`
}

type cleanupResponse struct {
	Success      bool  `json:"success"`
	DeletedCount int64 `json:"deletedCount"`
}

type claimResponse struct {
	Success bool        `json:"success"`
	Claim   *deal.Claim `json:"claim"`
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

type reconcileResponse struct {
	Success   bool            `json:"success"`
	Analytics *deal.Analytics `json:"analytics"`
}

type createDealRequest struct {
	ItemID       string     `json:"itemId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Terms        string     `json:"terms"`
	StartDate    *time.Time `json:"startDate"`
	EndDate      *time.Time `json:"endDate"`
	MaxClaims    *int       `json:"maxClaims"`
	PerUserLimit *int       `json:"perUserLimit"`
}

func (h *Handler) GenerateWeeklyReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Generate(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Success: true, Report: rep})
}

func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Latest(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Success: true, Report: rep})
}

func (h *Handler) CleanupNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Success: true, DeletedCount: n})
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	filter := notification.ListFilter{}
	q := r.URL.Query()
	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unread must be a boolean")
			return
		}
		filter.UnreadOnly = unread
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	items, err := h.inbox.List(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []*notification.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.inbox.MarkRead(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) DealAnalytics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.analytics.GetDealAnalytics(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) TopDeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := analytics.TopDealsFilter{}
	for key, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, key+" must be an RFC3339 timestamp")
			return
		}
		*dst = t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = limit
	}

	stats, err := h.analytics.GetTopDeals(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	if stats == nil {
		stats = []*analytics.DealStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": stats})
}

func (h *Handler) ClaimDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	caller, ok := IdentityFrom(r.Context())
	if !ok || strings.TrimSpace(caller.UserID) == "" {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	claim := deal.NewClaim(id, caller.UserID, h.now())
	if err := h.deals.InsertClaim(r.Context(), claim); err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Info("Claim recorded",
		zap.String("deal_id", id.String()),
		zap.String("claim_id", claim.ID.String()),
		zap.String("user_id", caller.UserID),
	)
	writeJSON(w, http.StatusCreated, claimResponse{Success: true, Claim: claim})
}

func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.deals.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) ReconcileDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.reconciler.Reconcile(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Success: true, Analytics: a})
}

func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.MaxClaims != nil && *req.MaxClaims < 0 {
		writeError(w, http.StatusBadRequest, "maxClaims must be non-negative")
		return
	}

	now := h.now()
	row := &deal.Row{
		ID:           uuid.New(),
		ItemID:       req.ItemID,
		Title:        req.Title,
		Description:  req.Description,
		Terms:        req.Terms,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		MaxClaims:    req.MaxClaims,
		PerUserLimit: req.PerUserLimit,
		IsActive:     true,
		CreatedAt:    now,
		LastUpdated:  now,
	}
	if err := h.deals.Create(r.Context(), row); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row.Deal())
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: health.StatusOK})
		return
	}
	res := h.health.Run(r.Context())
	if !res.Healthy {
		h.logger.Warn("Health check failed", zap.Error(res.Err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Dependencies: res.Dependencies})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: health.StatusOK, Dependencies: res.Dependencies})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, deal.ErrDealNotFound),
		errors.Is(err, notification.ErrNotificationNotFound),
		errors.Is(err, report.ErrReportNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, analytics.ErrInvalidRange),
		errors.Is(err, deal.ErrInvalidUserID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
