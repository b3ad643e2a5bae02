package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"urbanpark/internal/billing"
	"urbanpark/internal/cache"
	"urbanpark/internal/models"
	"urbanpark/internal/store"

	"github.com/google/uuid"
)

// Cache is the slice of the cache layer the handlers use. *cache.Cache
// satisfies it; tests substitute an in-memory fake.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)
	Invalidate(ctx context.Context, keys ...string)
}

type Handler struct {
	store store.Store
	cache Cache
	clock billing.Clock

	listingTTL      time.Duration
	adminListingTTL time.Duration
	dashboardTTL    time.Duration
	jobHistoryLimit int
}

type Options struct {
	Clock           billing.Clock
	ListingTTL      time.Duration
	AdminListingTTL time.Duration
	DashboardTTL    time.Duration
	JobHistoryLimit int
}

func NewHandler(st store.Store, c Cache, options Options) *Handler {
	listingTTL := options.ListingTTL
	if listingTTL <= 0 {
		listingTTL = 2 * time.Minute
	}
	adminTTL := options.AdminListingTTL
	if adminTTL <= 0 {
		adminTTL = 5 * time.Minute
	}
	dashboardTTL := options.DashboardTTL
	if dashboardTTL <= 0 {
		dashboardTTL = 2 * time.Minute
	}
	jobHistoryLimit := options.JobHistoryLimit
	if jobHistoryLimit <= 0 {
		jobHistoryLimit = 20
	}
	return &Handler{
		store:           st,
		cache:           c,
		clock:           options.Clock,
		listingTTL:      listingTTL,
		adminListingTTL: adminTTL,
		dashboardTTL:    dashboardTTL,
		jobHistoryLimit: jobHistoryLimit,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/lots", h.handleLots)
	mux.HandleFunc("/api/lots/", h.handleLotByID)
	mux.HandleFunc("/api/spots/", h.handleSpotByID)
	mux.HandleFunc("/api/bookings", h.handleBookings)
	mux.HandleFunc("/api/bookings/", h.handleBookingActions)
	mux.HandleFunc("/api/dashboard", h.handleDashboard)
	mux.HandleFunc("/api/jobs", h.handleJobs)
	mux.HandleFunc("/api/jobs/", h.handleJobByID)
	mux.HandleFunc("/api/admin/lots", h.handleAdminLots)
	mux.HandleFunc("/api/admin/stats", h.handleAdminStats)
	mux.HandleFunc("/api/admin/charts", h.handleAdminCharts)
	mux.HandleFunc("/api/admin/users", h.handleAdminUsers)
	mux.HandleFunc("/api/admin/jobs", h.handleAdminJobs)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	PinCode  string `json:"pin_code"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "invalid_request", "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "invalid_request", "password must be at least 8 characters")
		return
	}
	if req.FullName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "full_name is required")
		return
	}

	user, err := h.store.Register(r.Context(), store.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    strings.TrimSpace(req.Phone),
		Address:  strings.TrimSpace(req.Address),
		PinCode:  strings.TrimSpace(req.PinCode),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string      `json:"session_id"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := h.store.Login(r.Context(), store.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt,
		User:      result.User,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.store.DeleteSession(r.Context(), sessionID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if info, ok := authFromContext(r.Context()); ok {
		h.cache.Invalidate(r.Context(), cache.KeyDashboardStats(info.User.UserID))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleLots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listLots(w, r)
	case http.MethodPost:
		h.createLot(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	if query := strings.TrimSpace(r.URL.Query().Get("q")); query != "" {
		lots, err := h.store.SearchLots(r.Context(), query)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, lots)
		return
	}

	if payload, ok := h.cache.Get(r.Context(), cache.KeyLotListing); ok {
		writeJSONBytes(w, http.StatusOK, payload)
		return
	}
	listings, err := h.store.ListLots(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.writeAndCache(w, r, cache.KeyLotListing, h.listingTTL, listings)
}

type lotRequest struct {
	Name       *string  `json:"name"`
	HourlyRate *float64 `json:"hourly_rate"`
	Address    *string  `json:"address"`
	PinCode    *string  `json:"pin_code"`
	SpotCount  *int     `json:"spot_count"`
}

func (h *Handler) createLot(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	var req lotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if req.HourlyRate == nil || *req.HourlyRate <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "hourly_rate must be positive")
		return
	}
	if req.SpotCount == nil || *req.SpotCount <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "spot_count must be positive")
		return
	}

	input := store.CreateLotInput{
		Name:       strings.TrimSpace(*req.Name),
		HourlyRate: *req.HourlyRate,
		SpotCount:  *req.SpotCount,
	}
	if req.Address != nil {
		input.Address = strings.TrimSpace(*req.Address)
	}
	if req.PinCode != nil {
		input.PinCode = strings.TrimSpace(*req.PinCode)
	}

	lot, err := h.store.CreateLot(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.invalidateListings(r)
	writeJSON(w, http.StatusCreated, lot)
}

func (h *Handler) handleLotByID(w http.ResponseWriter, r *http.Request) {
	lotID := strings.TrimPrefix(r.URL.Path, "/api/lots/")
	lotID = strings.Trim(lotID, "/")
	if lotID == "" || !isValidUUID(lotID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "lot id must be a UUID")
		return
	}

	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		h.updateLot(w, r, lotID)
	case http.MethodDelete:
		h.deleteLot(w, r, lotID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) updateLot(w http.ResponseWriter, r *http.Request, lotID string) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	var req lotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.HourlyRate != nil && *req.HourlyRate <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "hourly_rate must be positive")
		return
	}
	if req.SpotCount != nil && *req.SpotCount < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "spot_count must not be negative")
		return
	}

	lot, err := h.store.UpdateLot(r.Context(), store.UpdateLotInput{
		LotID:      lotID,
		Name:       req.Name,
		HourlyRate: req.HourlyRate,
		Address:    req.Address,
		PinCode:    req.PinCode,
		SpotCount:  req.SpotCount,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.invalidateListings(r)
	writeJSON(w, http.StatusOK, lot)
}

func (h *Handler) deleteLot(w http.ResponseWriter, r *http.Request, lotID string) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	if err := h.store.DeleteLot(r.Context(), lotID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.invalidateListings(r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSpotByID(w http.ResponseWriter, r *http.Request) {
	spotID := strings.TrimPrefix(r.URL.Path, "/api/spots/")
	spotID = strings.Trim(spotID, "/")
	if spotID == "" || !isValidUUID(spotID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "spot id must be a UUID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		detail, err := h.store.GetSpotDetail(r.Context(), spotID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case http.MethodDelete:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		if err := h.store.DeleteSpot(r.Context(), spotID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		h.invalidateListings(r)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type bookRequest struct {
	LotID         string `json:"lot_id"`
	SpotID        string `json:"spot_id"`
	VehicleNumber string `json:"vehicle_number"`
}

func (h *Handler) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		reservations, err := h.store.ListUserReservations(r.Context(), user.UserID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, reservations)
	case http.MethodPost:
		h.createBooking(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.LotID = strings.TrimSpace(req.LotID)
	req.SpotID = strings.TrimSpace(req.SpotID)
	req.VehicleNumber = strings.ToUpper(strings.TrimSpace(req.VehicleNumber))

	if req.VehicleNumber == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "vehicle_number is required")
		return
	}
	if (req.LotID == "") == (req.SpotID == "") {
		writeError(w, http.StatusBadRequest, "invalid_request", "exactly one of lot_id or spot_id is required")
		return
	}

	var reservation models.Reservation
	var err error
	if req.SpotID != "" {
		if !isValidUUID(req.SpotID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "spot_id must be a UUID")
			return
		}
		reservation, err = h.store.BookSpot(r.Context(), store.BookSpotInput{
			UserID:        user.UserID,
			SpotID:        req.SpotID,
			VehicleNumber: req.VehicleNumber,
			StartTs:       h.clock.Now(),
		})
	} else {
		if !isValidUUID(req.LotID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "lot_id must be a UUID")
			return
		}
		reservation, err = h.store.Book(r.Context(), store.BookInput{
			UserID:        user.UserID,
			LotID:         req.LotID,
			VehicleNumber: req.VehicleNumber,
			StartTs:       h.clock.Now(),
		})
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.invalidateListings(r)
	h.cache.Invalidate(r.Context(), cache.KeyDashboardStats(user.UserID))
	writeJSON(w, http.StatusCreated, reservation)
}

func (h *Handler) handleBookingActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/bookings/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "release" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	reservationID := parts[0]
	if !isValidUUID(reservationID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "reservation id must be a UUID")
		return
	}

	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	result, err := h.store.Release(r.Context(), store.ReleaseInput{
		ReservationID: reservationID,
		UserID:        user.UserID,
		EndTs:         h.clock.Now(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.invalidateListings(r)
	h.cache.Invalidate(r.Context(), cache.KeyDashboardStats(user.UserID))
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	key := cache.KeyDashboardStats(user.UserID)
	if payload, ok := h.cache.Get(r.Context(), key); ok {
		writeJSONBytes(w, http.StatusOK, payload)
		return
	}
	stats, err := h.store.GetDashboardStats(r.Context(), user.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.writeAndCache(w, r, key, h.dashboardTTL, stats)
}

type enqueueJobRequest struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobs, err := h.store.ListUserJobs(r.Context(), user.UserID, h.jobHistoryLimit)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	case http.MethodPost:
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req enqueueJobRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.JobID = strings.TrimSpace(req.JobID)
		if req.JobID == "" || !isValidUUID(req.JobID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "job_id must be a UUID")
			return
		}
		kind := models.JobKind(strings.TrimSpace(req.Kind))
		if kind == "" {
			kind = models.JobCSVExport
		}
		if kind != models.JobCSVExport {
			writeError(w, http.StatusBadRequest, "invalid_request", "kind must be csv_export")
			return
		}

		job, _, err := h.store.EnqueueJob(r.Context(), store.EnqueueJobInput{
			JobID:     req.JobID,
			UserID:    user.UserID,
			Kind:      kind,
			CreatedAt: h.clock.Now(),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if jobID == "" || !isValidUUID(jobID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "job id must be a UUID")
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID, user.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleAdminLots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	if payload, ok := h.cache.Get(r.Context(), cache.KeyAdminLotListing); ok {
		writeJSONBytes(w, http.StatusOK, payload)
		return
	}
	listings, err := h.store.ListLots(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.writeAndCache(w, r, cache.KeyAdminLotListing, h.adminListingTTL, listings)
}

func (h *Handler) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	stats, err := h.store.GetAdminStats(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleAdminCharts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	chart, err := h.store.GetLotCharts(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type adminJobRequest struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
}

// handleAdminJobs lets an operator trigger the scheduled broadcasts on
// demand, with the same idempotent queueing as user exports.
func (h *Handler) handleAdminJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	var req adminJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.JobID = strings.TrimSpace(req.JobID)
	if req.JobID == "" || !isValidUUID(req.JobID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "job_id must be a UUID")
		return
	}
	kind := models.JobKind(strings.TrimSpace(req.Kind))
	if kind != models.JobDailyReminder && kind != models.JobMonthlyReport {
		writeError(w, http.StatusBadRequest, "invalid_request", "kind must be daily_reminder or monthly_report")
		return
	}

	job, _, err := h.store.EnqueueJob(r.Context(), store.EnqueueJobInput{
		JobID:     req.JobID,
		UserID:    user.UserID,
		Kind:      kind,
		Broadcast: true,
		CreatedAt: h.clock.Now(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) invalidateListings(r *http.Request) {
	h.cache.Invalidate(r.Context(), cache.KeyLotListing, cache.KeyAdminLotListing)
}

func (h *Handler) writeAndCache(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	h.cache.Set(r.Context(), key, body, ttl)
	writeJSONBytes(w, http.StatusOK, body)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrLotNotFound):
		return http.StatusNotFound, "lot_not_found", "parking lot not found"
	case errors.Is(err, store.ErrSpotNotFound):
		return http.StatusNotFound, "spot_not_found", "parking spot not found"
	case errors.Is(err, store.ErrReservationNotFound):
		return http.StatusNotFound, "reservation_not_found", "reservation not found"
	case errors.Is(err, store.ErrJobNotFound):
		return http.StatusNotFound, "job_not_found", "job not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrAlreadyActiveBooking):
		return http.StatusConflict, "active_booking_exists", "user already has an active booking"
	case errors.Is(err, store.ErrNoAvailableSpot):
		return http.StatusConflict, "no_available_spot", "no available spot in this lot"
	case errors.Is(err, store.ErrSpotNotAvailable):
		return http.StatusConflict, "spot_not_available", "parking spot is not available"
	case errors.Is(err, store.ErrSpotOccupied):
		return http.StatusConflict, "spot_occupied", "parking spot is occupied"
	case errors.Is(err, store.ErrReservationNotActive):
		return http.StatusConflict, "reservation_not_active", "reservation is not active"
	case errors.Is(err, store.ErrLotHasOccupiedSpots):
		return http.StatusConflict, "lot_has_occupied_spots", "parking lot has occupied spots"
	case errors.Is(err, store.ErrInsufficientAvailableSpots):
		return http.StatusConflict, "insufficient_available_spots", "not enough available spots to remove"
	case errors.Is(err, store.ErrDuplicateName):
		return http.StatusConflict, "duplicate_name", "parking lot name already exists"
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email", "email already registered"
	case errors.Is(err, store.ErrDuplicateJob):
		return http.StatusConflict, "duplicate_job", "job id already queued"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONBytes(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
