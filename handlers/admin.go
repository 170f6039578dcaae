package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	bookingRepo "travelpay/database/repository/booking"
	"travelpay/middleware"
	"travelpay/models"
	"travelpay/services/payment"
	"travelpay/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReconcileEnqueuer schedules a background recheck.
type ReconcileEnqueuer interface {
	EnqueueReconcile(ctx context.Context, ref, requestedBy string) (string, error)
}

// AdminHandler encapsulates the operator actions on a booking's payment.
type AdminHandler struct {
	Bookings   bookingRepo.BookingRepository
	Reconciler Reconciler
	Queue      ReconcileEnqueuer
	Logger     *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(bookings bookingRepo.BookingRepository, reconciler Reconciler, queue ReconcileEnqueuer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		Bookings:   bookings,
		Reconciler: reconciler,
		Queue:      queue,
		Logger:     logger,
	}
}

type manualDecisionRequest struct {
	TrackingID string `json:"tracking_id"`
	Note       string `json:"note"`
}

// GetPaymentHandler returns the booking with its payment attempts.
func (ah *AdminHandler) GetPaymentHandler(c *gin.Context) {
	booking, err := ah.Bookings.FindByRef(c.Request.Context(), c.Param("ref"))
	if errors.Is(err, bookingRepo.ErrNotFound) {
		utils.JSONError(c, http.StatusNotFound, "Booking not found", c.Param("ref"))
		return
	}
	if err != nil {
		getLogger(c, ah.Logger).Error("Failed to load booking", zap.String("ref", c.Param("ref")), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Failed to load booking", err.Error())
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ConfirmPaymentHandler records a manually verified payment (WhatsApp).
func (ah *AdminHandler) ConfirmPaymentHandler(c *gin.Context) {
	ah.manualDecision(c, models.PaymentCompleted)
}

// RejectPaymentHandler records a manually verified failure (WhatsApp).
func (ah *AdminHandler) RejectPaymentHandler(c *gin.Context) {
	ah.manualDecision(c, models.PaymentFailed)
}

// CancelBookingHandler cancels a booking that is still awaiting payment.
func (ah *AdminHandler) CancelBookingHandler(c *gin.Context) {
	ref := c.Param("ref")
	admin := c.GetString(middleware.AdminSubjectKey)

	result, err := ah.Reconciler.Cancel(c.Request.Context(), ref, admin)
	if err != nil {
		respondPaymentError(c, err)
		return
	}
	getLogger(c, ah.Logger).Info("Booking cancelled by admin", zap.String("ref", ref), zap.String("admin", admin), zap.Bool("changed", result.Changed))
	c.JSON(http.StatusOK, reconcileResponse(result))
}

// ReconcileHandler queues a provider recheck and returns the task id.
func (ah *AdminHandler) ReconcileHandler(c *gin.Context) {
	ref := c.Param("ref")
	admin := c.GetString(middleware.AdminSubjectKey)

	taskID, err := ah.Queue.EnqueueReconcile(c.Request.Context(), ref, admin)
	if err != nil {
		utils.JSONError(c, http.StatusServiceUnavailable, "Could not queue reconcile", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"booking_ref": ref, "task_id": taskID})
}

func (ah *AdminHandler) manualDecision(c *gin.Context, status models.PaymentStatus) {
	ref := c.Param("ref")
	admin := c.GetString(middleware.AdminSubjectKey)

	var req manualDecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
	}

	booking, err := ah.Bookings.FindByRef(c.Request.Context(), ref)
	if errors.Is(err, bookingRepo.ErrNotFound) {
		respondPaymentError(c, payment.ErrBookingNotFound)
		return
	}
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "Failed to load booking", err.Error())
		return
	}
	if booking.Gateway == "" {
		respondPaymentError(c, payment.ErrNoAttempt)
		return
	}

	result, err := ah.Reconciler.ApplyPushNotification(c.Request.Context(), payment.PushNotification{
		Gateway:    booking.Gateway,
		BookingRef: ref,
		TrackingID: strings.TrimSpace(req.TrackingID),
		Status:     status,
		VerifiedBy: admin,
	})
	if err != nil {
		respondPaymentError(c, err)
		return
	}
	getLogger(c, ah.Logger).Info("Manual payment decision recorded",
		zap.String("ref", ref),
		zap.String("admin", admin),
		zap.String("decision", string(status)),
		zap.String("note", req.Note))
	c.JSON(http.StatusOK, reconcileResponse(result))
}

func reconcileResponse(r *payment.ReconcileResult) gin.H {
	return gin.H{
		"booking_ref": r.Booking.Ref,
		"status":      r.Booking.Status,
		"previous":    r.Previous,
		"changed":     r.Changed,
	}
}
