package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/tripavail/internal/domain"
	redisrepo "github.com/kirinyoku/tripavail/internal/repository/redis"
	"github.com/kirinyoku/tripavail/internal/service"
	"github.com/kirinyoku/tripavail/internal/service/admin"
	"github.com/kirinyoku/tripavail/internal/service/payments"
	"github.com/kirinyoku/tripavail/internal/service/reservation"
)

// NewRouter builds the HTTP surface. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	inv := r.Group("/inventory/:id")
	{
		inv.GET("/availability", handleGetAvailability(svcs))
		inv.POST("/holds", handleCreateHold(svcs, idem, logger))
		inv.POST("/stays", handleCreateStay(svcs))
	}

	holds := r.Group("/holds/:id")
	{
		holds.GET("", handleGetHold(svcs))
		holds.POST("/payment", handleBeginPayment(svcs))
		holds.POST("/confirm", handleConfirmHold(svcs))
		holds.POST("/cancel", handleCancelHold(svcs))
		holds.POST("/refund", handleRefundHold(svcs))
	}

	r.POST("/webhooks/payments", handlePaymentWebhook(svcs))
	r.POST("/internal/sweeps/expired-holds", handleSweepExpired(svcs))

	// TODO: put /admin and /internal behind operator auth once the identity service exposes it
	adm := r.Group("/admin")
	{
		adm.POST("/tours", handleCreateTour(svcs))
		adm.POST("/packages", handleCreatePackage(svcs))
		adm.PATCH("/inventory/:id/price", handleUpdatePrice(svcs))
	}

	return r
}

// @Summary  Get availability
// @Description  Tour seats left, or for packages whether a stay is free when check_in and check_out are given.
// @Param    id         path   int     true   "Inventory unit ID"
// @Param    check_in   query  string  false  "YYYY-MM-DD"
// @Param    check_out  query  string  false  "YYYY-MM-DD"
// @Success  200  {object}  domain.Availability
// @Success  200  {object}  StayAvailabilityResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /inventory/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		unitID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		checkIn, checkOut := c.Query("check_in"), c.Query("check_out")
		if checkIn != "" || checkOut != "" {
			stay, err := parseStay(checkIn, checkOut)
			if err != nil {
				badRequest(c, "invalid check_in/check_out (YYYY-MM-DD)")
				return
			}

			free, err := svcs.Inventory.StayAvailable(c.Request.Context(), unitID, stay)
			if err != nil {
				respondErr(c, err)
				return
			}

			c.JSON(http.StatusOK, StayAvailabilityResponse{
				UnitID:    unitID,
				CheckIn:   checkIn,
				CheckOut:  checkOut,
				Available: free,
			})
			return
		}

		a, err := svcs.Inventory.Snapshot(c.Request.Context(), unitID)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, a, "public, max-age=5")
	}
}

// @Summary  Create seat hold (idempotent)
// @Param    id   path    int                true  "Inventory unit ID"
// @Param    req  body    CreateHoldRequest  true  "payload"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  HoldResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "capacity exceeded / idem in progress"
// @Failure  422  {object}  ErrorResponse  "idempotency key reused with a different request"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Router   /inventory/{id}/holds [post]
func handleCreateHold(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		unitID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		holderID, err := uuid.Parse(req.HolderID)
		if err != nil {
			badRequest(c, "invalid holder_id")
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey, fingerprint string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemHold(unitID, holderID.String(), idemKey)
			fingerprint = redisrepo.Fingerprint(holderID.String(), strconv.Itoa(req.Units))

			if replayIdempotent(c, idem, idemStorageKey, idemKey, fingerprint) {
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, errors.Join(domain.ErrTransientStore, err))
				return
			}
			if !locked {
				if replayIdempotent(c, idem, idemStorageKey, idemKey, fingerprint) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		h, err := svcs.Reservation.RequestHold(c.Request.Context(), reservation.RequestHoldInput{
			UnitID:       unitID,
			HolderID:     holderID,
			Units:        req.Units,
			RateLimitKey: "ip:" + c.ClientIP(),
		})
		if err != nil {
			if idemStorageKey != "" {
				if rerr := idem.Release(c.Request.Context(), idemStorageKey); rerr != nil {
					logger.Warn("idempotency release failed",
						slog.String("request_id", c.GetString(requestIDKey)),
						slog.String("error", rerr.Error()),
					)
				}
			}
			respondErr(c, err)
			return
		}

		resp := newHoldResponse(h, svcs.Reservation.Now())

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			if serr := idem.SaveResult(c.Request.Context(), idemStorageKey, fingerprint, string(b)); serr != nil {
				logger.Warn("idempotency save failed",
					slog.String("request_id", c.GetString(requestIDKey)),
					slog.String("hold_id", h.ID.String()),
					slog.String("error", serr.Error()),
				)
			}
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// replayIdempotent writes the stored response for key and reports whether
// the request was answered. A stored result from a different request body is
// answered with 422.
func replayIdempotent(c *gin.Context, idem *redisrepo.IdempotencyStore, key, idemKey, fingerprint string) bool {
	storedFP, payload, ok, _ := idem.GetResult(c.Request.Context(), key)
	if !ok {
		return false
	}

	if storedFP != fingerprint {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "idempotency key reused with a different request"})
		return true
	}

	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
	return true
}

// @Summary  Create package stay hold
// @Param    id   path    int                true  "Inventory unit ID"
// @Param    req  body    CreateStayRequest  true  "payload"
// @Success  201  {object}  HoldResponse
// @Failure  400  {object}  ErrorResponse  "too many guests / stay too short or long"
// @Failure  409  {object}  ErrorResponse  "dates taken"
// @Router   /inventory/{id}/stays [post]
func handleCreateStay(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		unitID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req CreateStayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		holderID, err := uuid.Parse(req.HolderID)
		if err != nil {
			badRequest(c, "invalid holder_id")
			return
		}

		stay, err := parseStay(req.CheckIn, req.CheckOut)
		if err != nil {
			badRequest(c, "invalid check_in/check_out (YYYY-MM-DD)")
			return
		}

		h, err := svcs.Reservation.RequestStay(c.Request.Context(), reservation.RequestStayInput{
			UnitID:       unitID,
			HolderID:     holderID,
			Guests:       req.Guests,
			Stay:         stay,
			RateLimitKey: "ip:" + c.ClientIP(),
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, newHoldResponse(h, svcs.Reservation.Now()))
	}
}

// @Summary  Get hold with countdown
// @Param    id  path  string  true  "Hold ID (uuid)"
// @Success  200  {object}  HoldResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /holds/{id} [get]
func handleGetHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		h, err := svcs.Reservation.GetHold(c.Request.Context(), holdID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, newHoldResponse(h, svcs.Reservation.Now()))
	}
}

// @Summary  Begin payment
// @Description  Re-validates the hold and attaches the payment intent. An expired hold returns 410 and the client must start over.
// @Param    id   path  string               true  "Hold ID (uuid)"
// @Param    req  body  BeginPaymentRequest  true  "payload"
// @Success  200  {object}  HoldResponse
// @Failure  410  {object}  ErrorResponse
// @Router   /holds/{id}/payment [post]
func handleBeginPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req BeginPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		h, err := svcs.Reservation.BeginPayment(c.Request.Context(), holdID, req.PaymentIntentID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, newHoldResponse(h, svcs.Reservation.Now()))
	}
}

// @Summary  Confirm hold after payment (browser return)
// @Param    id   path  string              true  "Hold ID (uuid)"
// @Param    req  body  ConfirmHoldRequest  true  "payload"
// @Success  200  {object}  reservation.Confirmation
// @Failure  409  {object}  ErrorResponse  "intent belongs to another hold"
// @Failure  410  {object}  ErrorResponse
// @Router   /holds/{id}/confirm [post]
func handleConfirmHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req ConfirmHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Reservation.ConfirmOnPaymentSuccess(c.Request.Context(), reservation.ConfirmInput{
			PaymentIntentID: req.PaymentIntentID,
			HoldID:          holdID,
			PaymentMethod:   req.PaymentMethod,
			Metadata:        req.Metadata,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Cancel hold
// @Param    id   path  string             true   "Hold ID (uuid)"
// @Param    req  body  CancelHoldRequest  false  "payload"
// @Success  200  {object}  domain.Hold
// @Failure  409  {object}  ErrorResponse
// @Router   /holds/{id}/cancel [post]
func handleCancelHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req CancelHoldRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}

		h, err := svcs.Reservation.Cancel(c.Request.Context(), holdID, req.Reason)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, h)
	}
}

// @Summary  Refund confirmed hold
// @Param    id  path  string  true  "Hold ID (uuid)"
// @Success  200  {object}  domain.Hold
// @Failure  400  {object}  ErrorResponse  "hold not confirmed"
// @Router   /holds/{id}/refund [post]
func handleRefundHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		h, err := svcs.Reservation.Refund(c.Request.Context(), holdID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, h)
	}
}

// @Summary  Payment provider webhook
// @Description  Always 200 once the event is recorded, including duplicates and business rejections. 503 asks the provider to retry.
// @Param    req  body  PaymentWebhookRequest  true  "provider event"
// @Success  200  {object}  payments.Result
// @Failure  503  {object}  ErrorResponse
// @Router   /webhooks/payments [post]
func handlePaymentWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ev, err := req.toEvent()
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Payments.HandleEvent(c.Request.Context(), ev)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

func (r PaymentWebhookRequest) toEvent() (payments.Event, error) {
	obj := r.Data.Object

	ev := payments.Event{
		ID:              r.ID,
		Type:            r.Type,
		PaymentIntentID: obj.ID,
		PaymentMethod:   obj.PaymentMethod,
		BookingType:     obj.Metadata["booking_type"],
	}

	if raw := obj.Metadata["hold_id"]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return payments.Event{}, errors.New("invalid metadata.hold_id")
		}
		ev.HoldID = id
	}

	if len(obj.Metadata) > 0 {
		b, err := json.Marshal(obj.Metadata)
		if err != nil {
			return payments.Event{}, err
		}
		ev.Metadata = b
	}

	if obj.LastError != nil {
		ev.FailureMessage = obj.LastError.Message
	}

	return ev, nil
}

// @Summary  Expire lapsed pending holds
// @Description  Scheduler entry point. 503 only when every inventory kind failed.
// @Success  200  {object}  domain.SweepResult
// @Failure  503  {object}  domain.SweepResult
// @Router   /internal/sweeps/expired-holds [post]
func handleSweepExpired(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := svcs.Sweeper.ExpirePendingHolds(c.Request.Context())

		status := http.StatusOK
		if !res.Success {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, res)
	}
}

// @Summary  Create tour departure
// @Param    req  body  CreateTourRequest  true  "payload"
// @Success  201  {object}  CreateUnitResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /admin/tours [post]
func handleCreateTour(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTourRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ownerID, err := uuid.Parse(req.OwnerID)
		if err != nil {
			badRequest(c, "invalid owner_id")
			return
		}

		id, err := svcs.Admin.CreateTour(c.Request.Context(), admin.CreateTourInput{
			OwnerID:      ownerID,
			Title:        req.Title,
			Seats:        req.Seats,
			PricePerSeat: req.PricePerSeat,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, CreateUnitResponse{UnitID: id})
	}
}

// @Summary  Create stay package
// @Param    req  body  CreatePackageRequest  true  "payload"
// @Success  201  {object}  CreateUnitResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /admin/packages [post]
func handleCreatePackage(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePackageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ownerID, err := uuid.Parse(req.OwnerID)
		if err != nil {
			badRequest(c, "invalid owner_id")
			return
		}

		id, err := svcs.Admin.CreatePackage(c.Request.Context(), admin.CreatePackageInput{
			OwnerID:       ownerID,
			Title:         req.Title,
			MaxGuests:     req.MaxGuests,
			MinNights:     req.MinNights,
			MaxNights:     req.MaxNights,
			PricePerNight: req.PricePerNight,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, CreateUnitResponse{UnitID: id})
	}
}

// @Summary  Update unit price
// @Description  Affects new holds only. Existing holds keep the price they were created with.
// @Param    id   path  int                 true  "Inventory unit ID"
// @Param    req  body  UpdatePriceRequest  true  "payload"
// @Success  204
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/inventory/{id}/price [patch]
func handleUpdatePrice(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		unitID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req UpdatePriceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		if err := svcs.Admin.UpdatePrice(c.Request.Context(), unitID, req.PriceCents); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WithReadiness registers GET /readyz, which pings every non-nil pinger.
func WithReadiness(r *gin.Engine, pingers ...Pinger) {
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		for _, p := range pingers {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "not ready"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondErr maps domain errors to status codes. The message shown to the
// client is the typed error's own text, never the wrapped op chain.
func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	_ = c.Error(err)

	var (
		capErr  *domain.CapacityExceededError
		invalid *domain.InvalidRequestError
		limited *domain.RateLimitedError
	)

	switch {
	case errors.As(err, &capErr):
		available := capErr.Available
		c.JSON(http.StatusConflict, ErrorResponse{Error: capErr.Error(), Available: &available})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: invalid.Error(), Reason: string(invalid.Reason)})
	case errors.As(err, &limited):
		secs := int(math.Ceil(limited.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests, try again shortly"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrMismatch):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "payment does not belong to this hold"})
	case errors.Is(err, domain.ErrExpired):
		c.JSON(http.StatusGone, ErrorResponse{Error: "your hold has expired, please start again", Restart: true})
	case errors.Is(err, domain.ErrAlreadyFinalized):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "hold is already finalized"})
	case errors.Is(err, domain.ErrTransientStore):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service temporarily unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
