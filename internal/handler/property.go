package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"propscan-api/internal/model"
	"propscan-api/internal/service"
	"propscan-api/pkg/apierror"
	"propscan-api/pkg/response"
	"propscan-api/pkg/serial"
)

const (
	defaultLabelSize = 256
	maxLabelSize     = 1024
)

// PropertyHandler handles property-related HTTP requests.
type PropertyHandler struct {
	properties *service.PropertyService
}

// NewPropertyHandler creates a new property handler.
func NewPropertyHandler(properties *service.PropertyService) *PropertyHandler {
	return &PropertyHandler{properties: properties}
}

// List handles GET /api/v1/properties
func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	items, total, err := h.properties.List(r.Context(), page, limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, items, page, limit, total)
}

// Get handles GET /api/v1/properties/{serial}
func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.properties.GetBySerial(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, p)
}

// Create handles POST /api/v1/properties
func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var form model.PropertyForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	p, err := h.properties.Create(r.Context(), form)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, p)
}

// Update handles PATCH /api/v1/properties/{id}
func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd model.PropertyUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	p, err := h.properties.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, p)
}

// Delete handles DELETE /api/v1/properties/{id}
func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.properties.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// NextSerial handles GET /api/v1/properties/next-serial
func (h *PropertyHandler) NextSerial(w http.ResponseWriter, r *http.Request) {
	sn, err := h.properties.NextSerial(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]string{"serialNumber": sn})
}

// QRCode handles GET /api/v1/properties/{serial}/qrcode
//
// It renders a PNG label encoding the serial number. ?size sets the edge
// length in pixels.
func (h *PropertyHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	sn, ok := serial.Normalize(chi.URLParam(r, "serial"))
	if !ok {
		response.Error(w, apierror.ValidationError("Invalid serial number",
			apierror.FieldError{Field: "serial", Message: "must match PROP-YYYY-NNNNNN"}))
		return
	}

	size := defaultLabelSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > maxLabelSize {
			response.Error(w, apierror.BadRequest("size must be between 64 and 1024"))
			return
		}
		size = n
	}

	png, err := qrcode.Encode(sn, qrcode.Medium, size)
	if err != nil {
		response.Error(w, apierror.Unknown("failed to render label"))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	response.Blob(w, "image/png", png)
}
