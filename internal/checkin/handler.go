package checkin

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/location"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/metrics"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/middleware"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/models"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/pkg/response"
)

// TimestampLayout is the wall-clock format printed in notifications.
const TimestampLayout = "15:04:05 02/01/2006"

// Destination labels returned to the form. Chat ids never leave the server.
const (
	DestinationMember = "member"
	DestinationGuest  = "guest"
)

var phonePattern = regexp.MustCompile(`^[0-9+\-\s()]+$`)

var registerOnce sync.Once

// registerValidators adds the "phone" tag to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
				return phonePattern.MatchString(fl.Field().String())
			})
		}
	})
}

// Dispatcher delivers a check-in and reports whether it was acknowledged.
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.CheckInEvent) bool
}

// AddressLookup turns coordinates into a display address.
// Lookup never fails and degrades to formatted coordinates; Resolve reports whether a place was named.
type AddressLookup interface {
	Lookup(ctx context.Context, lat, lng float64) string
	Resolve(ctx context.Context, lat, lng float64) (string, bool)
}

// LocationRequest is a position the form already knows.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"required,min=-180,max=180"`
	Address   string   `json:"address"`
}

// DeviceReport is what the browser observed when it asked for the position.
type DeviceReport struct {
	DeviceID string         `json:"device_id" binding:"max=128"`
	Status   string         `json:"status" binding:"omitempty,oneof=granted denied unavailable unsupported"`
	Fixes    []location.Fix `json:"fixes" binding:"max=20"`
}

// CheckInRequest is the body for POST /checkins.
type CheckInRequest struct {
	FullName     string           `json:"full_name" binding:"required,min=2,max=200"`
	PhoneNumber  string           `json:"phone_number" binding:"required,min=10,max=32,phone"`
	Industry     string           `json:"industry" binding:"required,min=2,max=200"`
	AttendeeType string           `json:"attendee_type" binding:"required,max=64"`
	InvitedBy    string           `json:"invited_by" binding:"max=200"`
	Timestamp    string           `json:"timestamp" binding:"max=64"`
	Location     *LocationRequest `json:"location"`
	Device       *DeviceReport    `json:"device"`
}

// CheckInResponse is returned for both delivered and undelivered check-ins.
type CheckInResponse struct {
	CheckInID     string           `json:"checkin_id"`
	Delivered     bool             `json:"delivered"`
	Destination   string           `json:"destination"`
	Location      *models.Location `json:"location,omitempty"`
	LocationError string           `json:"location_error,omitempty"`
}

// ReverseRequest is the query for GET /geocode/reverse.
type ReverseRequest struct {
	Latitude  *float64 `form:"latitude" binding:"required,min=-90,max=90"`
	Longitude *float64 `form:"longitude" binding:"required,min=-180,max=180"`
}

// Handler handles check-in HTTP endpoints.
type Handler struct {
	dispatcher Dispatcher
	lookup     AddressLookup
	positions  location.PositionCache
	metrics    *metrics.Metrics
	zone       *time.Location
	now        func() time.Time
	logger     *zap.Logger
}

// NewHandler creates a check-in handler. positions and m may be nil; a nil zone means UTC+7.
func NewHandler(dispatcher Dispatcher, lookup AddressLookup, positions location.PositionCache, m *metrics.Metrics, zone *time.Location, logger *zap.Logger) *Handler {
	registerValidators()
	if logger == nil {
		logger = zap.NewNop()
	}
	if zone == nil {
		zone = time.FixedZone("ICT", 7*60*60)
	}
	return &Handler{
		dispatcher: dispatcher,
		lookup:     lookup,
		positions:  positions,
		metrics:    m,
		zone:       zone,
		now:        time.Now,
		logger:     logger,
	}
}

// Create handles POST /checkins. It resolves location, then dispatches exactly once.
func (h *Handler) Create(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	id := uuid.NewString()
	log := h.logger.With(zap.String("checkin_id", id), zap.String("request_id", middleware.GetRequestID(c)))

	attendee, known := models.ParseAttendeeType(req.AttendeeType)
	if !known {
		log.Warn("unrecognized attendee type, routing to guests", zap.String("attendee_type", attendee.String()))
	}

	loc, locErr := h.locate(ctx, req, log)

	event := models.CheckInEvent{
		FullName:     strings.TrimSpace(req.FullName),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		Industry:     strings.TrimSpace(req.Industry),
		AttendeeType: attendee,
		InvitedBy:    req.InvitedBy,
		Location:     loc,
		Timestamp:    strings.TrimSpace(req.Timestamp),
	}
	if event.Timestamp == "" {
		event.Timestamp = h.now().In(h.zone).Format(TimestampLayout)
	}

	resp := CheckInResponse{
		CheckInID:     id,
		Destination:   DestinationGuest,
		Location:      loc,
		LocationError: locErr,
	}
	if attendee.IsMember() {
		resp.Destination = DestinationMember
	}

	resp.Delivered = h.dispatcher.Dispatch(ctx, event)
	if !resp.Delivered {
		log.Warn("check-in not delivered", zap.String("destination", resp.Destination))
		response.BadGateway(c, "notification delivery failed", resp)
		return
	}
	log.Info("check-in delivered", zap.String("destination", resp.Destination), zap.Bool("has_location", loc != nil))
	response.Created(c, resp)
}

// Reverse handles GET /geocode/reverse.
func (h *Handler) Reverse(c *gin.Context) {
	var req ReverseRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid coordinates: "+err.Error())
		return
	}
	response.OK(c, gin.H{"address": h.lookup.Lookup(c.Request.Context(), *req.Latitude, *req.Longitude)})
}

// locate returns the event location and, when the device could not supply one, the failure code.
// An explicit location wins over the device report; a request with neither has no location.
func (h *Handler) locate(ctx context.Context, req CheckInRequest, log *zap.Logger) (*models.Location, string) {
	if req.Location != nil {
		loc := &models.Location{
			Latitude:  *req.Location.Latitude,
			Longitude: *req.Location.Longitude,
			Address:   strings.TrimSpace(req.Location.Address),
		}
		h.fillAddress(ctx, loc)
		return loc, ""
	}
	if req.Device == nil {
		return nil, ""
	}

	var geo location.Geolocator = location.NewReportedGeolocator(req.Device.Status, req.Device.Fixes)
	if h.positions != nil && req.Device.DeviceID != "" {
		geo = location.NewCachedGeolocator(geo, h.positions, req.Device.DeviceID, log)
	}
	pos, err := location.NewResolver(geo, log).Resolve(ctx)
	if err != nil {
		code := location.CodeOf(err)
		h.metrics.ObserveLocationFailure(string(code))
		log.Info("continuing without location", zap.String("code", string(code)))
		return nil, string(code)
	}

	loc := &models.Location{Latitude: pos.Latitude, Longitude: pos.Longitude}
	h.fillAddress(ctx, loc)
	return loc, ""
}

// fillAddress sets the address only when the lookup named the place.
func (h *Handler) fillAddress(ctx context.Context, loc *models.Location) {
	if loc.Address != "" || h.lookup == nil {
		return
	}
	if addr, ok := h.lookup.Resolve(ctx, loc.Latitude, loc.Longitude); ok {
		loc.Address = addr
	}
}
