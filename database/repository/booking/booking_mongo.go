package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"travelpay/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoBookingRepo implements BookingRepository using MongoDB.
type MongoBookingRepo struct {
	coll *mongo.Collection
}

// NewMongoBookingRepo creates a booking repository on the "bookings" collection.
func NewMongoBookingRepo(db *mongo.Database, logger *zap.Logger) BookingRepository {
	repo := &MongoBookingRepo{coll: db.Collection("bookings")}
	if err := repo.ensureIndexes(); err != nil {
		logger.Warn("booking indexes not created", zap.Error(err))
	}
	return repo
}

// newContext creates a context with the given timeout.
func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// Create inserts a new booking document.
func (r *MongoBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if booking.Status == "" {
		booking.Status = models.BookingPending
	}

	if _, err := r.coll.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateRef
		}
		return fmt.Errorf("error creating booking %s: %w", booking.Ref, err)
	}
	return nil
}

// FindByRef retrieves a booking by its reference.
func (r *MongoBookingRepo) FindByRef(ctx context.Context, ref string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking models.Booking
	if err := r.coll.FindOne(ctx, bson.M{"ref": ref}).Decode(&booking); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching booking %s: %w", ref, err)
	}
	return &booking, nil
}

// UpdateStatus moves a pending booking to status if its version is unchanged.
func (r *MongoBookingRepo) UpdateStatus(ctx context.Context, ref string, expectedVersion int, status models.BookingStatus, gatewayOrderID string) (*models.Booking, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("refusing to write non-terminal status %q for booking %s", status, ref)
	}

	now := time.Now().UTC()
	set := bson.M{"status": status, "updated_at": now}
	if gatewayOrderID != "" {
		set["gateway_order_id"] = gatewayOrderID
	}
	if status == models.BookingPaid {
		set["paid_at"] = now
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	return r.conditionalUpdate(ctx, ref, expectedVersion, update)
}

// RecordAttempt stores a successful submission on a pending booking.
func (r *MongoBookingRepo) RecordAttempt(ctx context.Context, ref string, expectedVersion int, attempt models.PaymentAttempt) (*models.Booking, error) {
	update := bson.M{
		"$set": bson.M{
			"gateway":          attempt.Gateway,
			"gateway_order_id": attempt.GatewayOrderID,
			"updated_at":       time.Now().UTC(),
		},
		"$push": bson.M{"attempts": attempt},
		"$inc":  bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, ref, expectedVersion, update)
}

func (r *MongoBookingRepo) conditionalUpdate(ctx context.Context, ref string, expectedVersion int, update bson.M) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"ref":     ref,
		"version": expectedVersion,
		"status":  models.BookingPending,
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Booking
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error updating booking %s: %w", ref, err)
	}

	// Nothing matched: tell a missing booking apart from a lost race.
	current, findErr := r.FindByRef(ctx, ref)
	if findErr != nil {
		return nil, findErr
	}
	if current.Status != models.BookingPending {
		return nil, ErrNotPending
	}
	return nil, ErrVersionConflict
}
