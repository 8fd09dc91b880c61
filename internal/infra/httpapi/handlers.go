package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"push_notification_server/internal/app"
	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/subscription"
)

// pushSubscription is the browser's PushSubscription.toJSON() shape.
type pushSubscription struct {
	Endpoint       string            `json:"endpoint"`
	ExpirationTime *int64            `json:"expirationTime,omitempty"`
	Keys           subscription.Keys `json:"keys"`
}

type subscribeRequest struct {
	Subscription *pushSubscription         `json:"subscription"`
	Preferences  *subscription.Preferences `json:"preferences"`
}

type endpointRequest struct {
	Endpoint string `json:"endpoint"`
}

type updatePreferencesRequest struct {
	Endpoint    string                    `json:"endpoint"`
	Preferences *subscription.Preferences `json:"preferences"`
}

type scheduleFollowUpRequest struct {
	AttackID             string    `json:"attackId"`
	FollowUpTime         time.Time `json:"followUpTime"`
	SubscriptionEndpoint string    `json:"subscriptionEndpoint"`
}

type scheduleActiveCheckInRequest struct {
	AttackID             string    `json:"attackId"`
	CheckInTime          time.Time `json:"checkInTime"`
	SubscriptionEndpoint string    `json:"subscriptionEndpoint"`
}

type cancelActiveCheckInRequest struct {
	AttackID             string `json:"attackId"`
	SubscriptionEndpoint string `json:"subscriptionEndpoint"`
}

type sendTestRequest struct {
	Subscription *pushSubscription `json:"subscription"`
}

// subscriptionView omits the key material.
type subscriptionView struct {
	Endpoint    string                   `json:"endpoint"`
	Preferences subscription.Preferences `json:"preferences"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
}

func viewOf(s *subscription.Subscription) subscriptionView {
	return subscriptionView{Endpoint: s.Endpoint, Preferences: s.Preferences, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		"status":    "ok",
		"message":   serviceName + " is running",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		"name":   serviceName,
		"status": "running",
		"endpoints": envelope{
			"health":        "/health",
			"subscriptions": "/api/subscriptions",
			"notifications": "/api/notifications",
			"metrics":       "/metrics",
		},
	})
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	// Preferences decode over the defaults, so fields the client leaves out
	// keep their default values. An explicit null also means defaults.
	defaults := subscription.DefaultPreferences()
	req := subscribeRequest{Preferences: &defaults}
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, status, "Invalid request body", err.Error())
		return
	}
	if req.Subscription == nil || strings.TrimSpace(req.Subscription.Endpoint) == "" {
		writeError(w, http.StatusBadRequest, "Invalid subscription data", "")
		return
	}
	if !h.checkEndpoint(w, req.Subscription.Endpoint) {
		return
	}

	sub, err := h.svc.Subscribe(r.Context(), req.Subscription.Endpoint, req.Subscription.Keys, req.Preferences)
	if err != nil {
		h.serviceError(w, err, "Failed to create subscription")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"success":      true,
		"message":      "Subscription created successfully",
		"subscription": viewOf(sub),
	})
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, status, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		writeError(w, http.StatusBadRequest, "Endpoint is required", "")
		return
	}
	if !h.checkEndpoint(w, req.Endpoint) {
		return
	}

	removed, err := h.svc.Unsubscribe(r.Context(), req.Endpoint)
	if err != nil {
		h.serviceError(w, err, "Failed to remove subscription")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Subscription not found", "")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Subscription removed successfully"})
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req updatePreferencesRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, status, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" || req.Preferences == nil {
		writeError(w, http.StatusBadRequest, "Endpoint and preferences are required", "")
		return
	}
	if !h.checkEndpoint(w, req.Endpoint) {
		return
	}

	sub, err := h.svc.UpdatePreferences(r.Context(), req.Endpoint, *req.Preferences)
	if err != nil {
		h.serviceError(w, err, "Failed to update preferences")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success":      true,
		"message":      "Preferences updated successfully",
		"subscription": viewOf(sub),
	})
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.admin.ListSubscriptions(r.Context())
	if err != nil {
		h.serviceError(w, err, "Failed to get subscriptions")
		return
	}
	views := make([]subscriptionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, viewOf(s))
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "count": len(views), "subscriptions": views})
}

func (h *Handler) ScheduleFollowUp(w http.ResponseWriter, r *http.Request) {
	var req scheduleFollowUpRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, status, "Invalid request body", err.Error())
		return
	}
	if req.AttackID == "" || req.FollowUpTime.IsZero() || req.SubscriptionEndpoint == "" {
		writeError(w, http.StatusBadRequest, "attackId, followUpTime, and subscriptionEndpoint are required", "")
		return
	}
	if !h.checkEndpoint(w, req.SubscriptionEndpoint) {
		return
	}

	item, err := h.svc.ScheduleFollowUp(r.Context(), req.AttackID, req.FollowUpTime, req.SubscriptionEndpoint)
	if err != nil {
		h.serviceError(w, err, "Failed to schedule follow-up")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"success":  true,
		"message":  "Follow-up notification scheduled successfully",
		"followup": item,
	})
}

func (h *Handler) ScheduleActiveCheckIn(w http.ResponseWriter, r *http.Request) {
	var req scheduleActiveCheckInRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, status, "Invalid request body", err.Error())
		return
	}
	if req.AttackID == "" || req.CheckInTime.IsZero() || req.SubscriptionEndpoint == "" {
		writeError(w, http.StatusBadRequest, "attackId, checkInTime, and subscriptionEndpoint are required", "")
		return
	}
	if !h.checkEndpoint(w, req.SubscriptionEndpoint) {
		return
	}

	item, err := h.svc.ScheduleActiveCheckIn(r.Context(), req.AttackID, req.CheckInTime, req.SubscriptionEndpoint)
	if err != nil {
		h.serviceError(w, err, "Failed to schedule active attack check-in")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"success": true,
		"message": "Active attack check-in scheduled successfully",
		"checkin": item,
	})
}

func (h *Handler) CancelActiveCheckIn(w http.ResponseWriter, r *http.Request) {
	var req cancelActiveCheckInRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, status, "Invalid request body", err.Error())
		return
	}
	if req.AttackID == "" || req.SubscriptionEndpoint == "" {
		writeError(w, http.StatusBadRequest, "attackId and subscriptionEndpoint are required", "")
		return
	}
	if !h.checkEndpoint(w, req.SubscriptionEndpoint) {
		return
	}

	canceled, err := h.svc.CancelActiveCheckIn(r.Context(), req.AttackID)
	if err != nil {
		h.serviceError(w, err, "Failed to cancel active attack check-in")
		return
	}
	if !canceled {
		writeJSON(w, http.StatusNotFound, envelope{"success": false, "message": "No active check-in found for this attack"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Active attack check-in canceled successfully"})
}

func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	var req sendTestRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, status, "Invalid request body", err.Error())
		return
	}
	if req.Subscription == nil || strings.TrimSpace(req.Subscription.Endpoint) == "" {
		writeError(w, http.StatusBadRequest, "Invalid subscription data", "")
		return
	}
	if !h.checkEndpoint(w, req.Subscription.Endpoint) {
		return
	}

	if err := h.svc.SendTest(r.Context(), req.Subscription.Endpoint, req.Subscription.Keys); err != nil {
		if errors.Is(err, app.ErrDeliveryFailed) {
			writeJSON(w, http.StatusBadGateway, envelope{"error": "Failed to send test notification", "details": err.Error()})
			return
		}
		h.serviceError(w, err, "Failed to send test notification")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Test notification sent successfully"})
}

func (h *Handler) checkEndpoint(w http.ResponseWriter, endpoint string) bool {
	if err := validateEndpoint(endpoint, h.cfg.Production); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid endpoint", err.Error())
		return false
	}
	return true
}

// serviceError maps application errors to status codes. Internal details
// are only exposed outside production.
func (h *Handler) serviceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, subscription.ErrNotFound):
		writeError(w, http.StatusNotFound, "Subscription not found", "")
	case errors.Is(err, notification.ErrDuplicateItem):
		writeError(w, http.StatusConflict, "Notification already scheduled", "")
	default:
		h.logger.WithError(err).Error(msg)
		detail := err.Error()
		if h.cfg.Production {
			detail = ""
		}
		writeError(w, http.StatusInternalServerError, msg, detail)
	}
}

// requireAdmin checks X-API-Key. Without a configured key the admin routes
// are closed in production and open elsewhere.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AdminAPIKey == "" {
			if h.cfg.Production {
				writeError(w, http.StatusServiceUnavailable, "Service unavailable", "Admin authentication not configured")
				return
			}
			h.logger.Warn("ADMIN_API_KEY not set, serving admin route without authentication")
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.cfg.AdminAPIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
