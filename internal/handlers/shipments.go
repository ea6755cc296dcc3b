// Package handlers implements the HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shipment-tracking/internal/catalog"
	"shipment-tracking/internal/database"
	"shipment-tracking/internal/parser"
	"shipment-tracking/internal/reconcile"
	"shipment-tracking/internal/status"
	"shipment-tracking/internal/workers"
)

// userHeader identifies the requesting user. The API sits behind a
// gateway that authenticates and injects it.
const userHeader = "X-User-ID"

const maxImageBytes = 8 << 20

// ImageExtractor parses shipment details out of an uploaded screenshot.
type ImageExtractor interface {
	ExtractImage(ctx context.Context, mimeType string, data []byte) (*parser.Result, error)
	Available() bool
}

// ShipmentHandler serves the shipment endpoints.
type ShipmentHandler struct {
	db     *database.DB
	engine *reconcile.Engine
	sync   *workers.SyncWorker
	images ImageExtractor
	rules  status.AgeRules
}

// NewShipmentHandler wires the handler. sync and images may be nil when
// the corresponding integration is not configured.
func NewShipmentHandler(db *database.DB, engine *reconcile.Engine,
	sync *workers.SyncWorker, images ImageExtractor, rules status.AgeRules) *ShipmentHandler {
	return &ShipmentHandler{db: db, engine: engine, sync: sync, images: images, rules: rules}
}

// RequireUser rejects requests without the user header.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(userHeader)) == "" {
			writeError(w, http.StatusUnauthorized, "missing "+userHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// shipmentView augments a stored shipment with its display label.
type shipmentView struct {
	*database.Shipment
	StatusLabel string `json:"status_label"`
}

func view(sh *database.Shipment) shipmentView {
	return shipmentView{Shipment: sh, StatusLabel: status.Label(status.Code(sh.Status))}
}

// List returns the user's shipments; ?include_archived=true includes
// archived ones.
func (h *ShipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	shipments, err := h.db.Shipments.ListByUser(r.Context(), userID(r), includeArchived)
	if err != nil {
		log.Printf("ERROR: Failed to list shipments: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list shipments")
		return
	}

	views := make([]shipmentView, 0, len(shipments))
	for _, sh := range shipments {
		views = append(views, view(sh))
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": views, "count": len(views)})
}

func (h *ShipmentHandler) load(w http.ResponseWriter, r *http.Request) (*database.Shipment, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return nil, false
	}
	sh, err := h.db.Shipments.GetByID(r.Context(), userID(r), id)
	if err != nil {
		log.Printf("ERROR: Failed to load shipment %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load shipment")
		return nil, false
	}
	if sh == nil {
		writeError(w, http.StatusNotFound, "shipment not found")
		return nil, false
	}
	return sh, true
}

// Get returns one shipment.
func (h *ShipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if sh, ok := h.load(w, r); ok {
		writeJSON(w, http.StatusOK, view(sh))
	}
}

// Sync runs the mailbox sync for the requesting user and returns the run
// stats.
func (h *ShipmentHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "email sync is not configured")
		return
	}
	stats, err := h.sync.SyncUser(r.Context(), userID(r))
	if err != nil {
		log.Printf("ERROR: Sync failed for user %s: %v", userID(r), err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("sync failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ImportImage creates or updates a shipment from an uploaded screenshot
// of an order or tracking page.
func (h *ShipmentHandler) ImportImage(w http.ResponseWriter, r *http.Request) {
	if h.images == nil || !h.images.Available() {
		writeError(w, http.StatusServiceUnavailable, "image import is not configured")
		return
	}
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(data) > maxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		writeError(w, http.StatusUnsupportedMediaType, "file is not an image")
		return
	}

	res, err := h.images.ExtractImage(r.Context(), mimeType, data)
	if err != nil {
		log.Printf("ERROR: Image extraction failed: %v", err)
		writeError(w, http.StatusBadGateway, "could not read shipment details from image")
		return
	}

	now := time.Now().UTC()
	parser.Normalize(res, "", now, now, h.rules)
	sh, created, err := h.engine.Reconcile(r.Context(), userID(r), res, reconcile.MessageMeta{
		MessageID: fmt.Sprintf("img-%d", now.UnixNano()),
		Date:      now,
	})
	if err == reconcile.ErrNoIdentity {
		writeError(w, http.StatusUnprocessableEntity, "no shipment details found in image")
		return
	}
	if err != nil {
		log.Printf("ERROR: Failed to store imported shipment: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to store shipment")
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, view(sh))
}

// UpdateFields applies manual edits to a shipment's descriptive fields.
// Only the fields present in the body change; omitted fields are left
// alone. Status edits go through UpdateStatus instead.
func (h *ShipmentHandler) UpdateFields(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.load(w, r)
	if !ok {
		return
	}
	var body struct {
		ProductName      *string `json:"product_name"`
		Merchant         *string `json:"merchant"`
		Carrier          *string `json:"carrier"`
		ExpectedDelivery *string `json:"expected_delivery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ProductName == nil && body.Merchant == nil && body.Carrier == nil && body.ExpectedDelivery == nil {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if body.ProductName != nil {
		sh.ProductName = strings.TrimSpace(*body.ProductName)
	}
	if body.Merchant != nil {
		sh.Merchant = catalog.CanonicalMerchant(*body.Merchant)
	}
	if body.Carrier != nil {
		sh.Carrier = catalog.CanonicalCarrier(*body.Carrier)
		sh.TrackingURL = catalog.TrackingURL(sh.Carrier, sh.TrackingNumber)
	}
	if body.ExpectedDelivery != nil {
		sh.ExpectedDelivery = strings.TrimSpace(*body.ExpectedDelivery)
	}

	if err := h.db.Shipments.Update(r.Context(), sh); err != nil {
		log.Printf("ERROR: Failed to update shipment %d: %v", sh.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to update shipment")
		return
	}
	writeJSON(w, http.StatusOK, view(sh))
}

// MarkDelivered sets a shipment to DELIVERED as a user override.
func (h *ShipmentHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.db.Shipments.SetStatus(r.Context(), sh.UserID, sh.ID, string(status.Delivered), true); err != nil {
		log.Printf("ERROR: Failed to mark shipment %d delivered: %v", sh.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to update shipment")
		return
	}
	sh.Status = string(status.Delivered)
	sh.StatusOverride = true
	writeJSON(w, http.StatusOK, view(sh))
}

// UpdateStatus sets an arbitrary status as a user override.
func (h *ShipmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.load(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	code, valid := status.FromText(body.Status)
	if !valid {
		writeError(w, http.StatusBadRequest, "unknown status "+body.Status)
		return
	}
	if err := h.db.Shipments.SetStatus(r.Context(), sh.UserID, sh.ID, string(code), true); err != nil {
		log.Printf("ERROR: Failed to set status on shipment %d: %v", sh.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to update shipment")
		return
	}
	sh.Status = string(code)
	sh.StatusOverride = true
	writeJSON(w, http.StatusOK, view(sh))
}

func (h *ShipmentHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	sh, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.db.Shipments.SetArchived(r.Context(), sh.UserID, sh.ID, archived); err != nil {
		log.Printf("ERROR: Failed to archive shipment %d: %v", sh.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to update shipment")
		return
	}
	sh.Archived = archived
	writeJSON(w, http.StatusOK, view(sh))
}

// Archive hides a shipment from the default list.
func (h *ShipmentHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// Unarchive restores an archived shipment.
func (h *ShipmentHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

// Delete removes a shipment permanently.
func (h *ShipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.db.Shipments.Delete(r.Context(), sh.UserID, sh.ID); err != nil {
		log.Printf("ERROR: Failed to delete shipment %d: %v", sh.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to delete shipment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
