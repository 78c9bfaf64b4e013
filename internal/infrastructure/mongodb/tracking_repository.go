package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fileflow-platform/tracking-service/internal/domain"
	"github.com/fileflow-platform/tracking-service/pkg/cloudevents"
	"github.com/fileflow-platform/tracking-service/pkg/kafka"
	"github.com/fileflow-platform/tracking-service/pkg/logging"
	"github.com/fileflow-platform/tracking-service/pkg/metrics"
	"github.com/fileflow-platform/tracking-service/pkg/outbox"
	outboxMongo "github.com/fileflow-platform/tracking-service/pkg/outbox/mongodb"
)

const (
	trackingCollection = "file_tracking"
	pipelineCollection = "pipeline_events"
)

// TrackingRepository persists FileTracking aggregates. One save transaction
// carries the aggregate upsert, the pipeline event log appends and the
// outbox entries the publisher later relays to Kafka.
type TrackingRepository struct {
	collection   *mongo.Collection
	pipeline     *mongo.Collection
	db           *mongo.Database
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
	logger       *logging.Logger
	metrics      *metrics.Metrics
	nowFn        func() time.Time
}

// NewTrackingRepository creates a new TrackingRepository
func NewTrackingRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory, logger *logging.Logger, m *metrics.Metrics) *TrackingRepository {
	repo := &TrackingRepository{
		collection:   db.Collection(trackingCollection),
		pipeline:     db.Collection(pipelineCollection),
		db:           db,
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
		eventFactory: eventFactory,
		logger:       logger,
		metrics:      m,
		nowFn:        time.Now,
	}
	repo.ensureIndexes(context.Background())
	_ = repo.outboxRepo.EnsureIndexes(context.Background())

	return repo
}

func (r *TrackingRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "fileId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "currentStage", Value: 1}}},
		{Keys: bson.D{{Key: "currentStatus", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)

	pipelineIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "fileId", Value: 1}, {Key: "eventTime", Value: -1}}},
		{Keys: bson.D{{Key: "eventType", Value: 1}}},
		{Keys: bson.D{{Key: "eventTime", Value: -1}}},
	}
	r.pipeline.Indexes().CreateMany(ctx, pipelineIndexes)
}

// Save upserts the aggregate and, in the same transaction, appends pipeline
// events and outbox entries for every pending domain event, then clears them
func (r *TrackingRepository) Save(ctx context.Context, tracking *domain.FileTracking) error {
	tracking.UpdatedAt = r.nowFn()

	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	start := time.Now()
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		opts := options.Update().SetUpsert(true)
		filter := bson.M{"fileId": tracking.FileID}
		update := bson.M{"$set": tracking}

		if _, err := r.collection.UpdateOne(sessCtx, filter, update, opts); err != nil {
			return nil, fmt.Errorf("failed to save file tracking: %w", err)
		}

		domainEvents := tracking.GetDomainEvents()
		if len(domainEvents) > 0 {
			if err := r.appendPipelineEvents(sessCtx, domainEvents); err != nil {
				return nil, err
			}
			if err := r.saveOutboxEvents(sessCtx, tracking.FileID, domainEvents); err != nil {
				return nil, err
			}
		}

		tracking.ClearDomainEvents()

		return nil, nil
	})

	r.metrics.RecordMongoDBOperation(trackingCollection, "save", err == nil, time.Since(start))
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// appendPipelineEvents writes the analytics log records for this save
func (r *TrackingRepository) appendPipelineEvents(ctx context.Context, events []domain.DomainEvent) error {
	records := make([]interface{}, 0, len(events))
	for _, event := range events {
		if record := domain.PipelineEventFrom(event); record != nil {
			records = append(records, record)
		}
	}
	if len(records) == 0 {
		return nil
	}

	if _, err := r.pipeline.InsertMany(ctx, records); err != nil {
		return fmt.Errorf("failed to append pipeline events: %w", err)
	}
	return nil
}

// saveOutboxEvents stores one CloudEvent per domain event for asynchronous
// publication to the file events topic
func (r *TrackingRepository) saveOutboxEvents(ctx context.Context, fileID string, events []domain.DomainEvent) error {
	outboxEvents := make([]*outbox.OutboxEvent, 0, len(events))

	for _, event := range events {
		cloudEvent := r.eventFactory.CreateEvent(ctx, event.EventType(), "file/"+fileID, event)
		cloudEvent.FileID = fileID

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(
			fileID,
			"FileTracking",
			kafka.Topics.FileEvents,
			cloudEvent,
		)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}

		outboxEvents = append(outboxEvents, outboxEvent)
	}

	if len(outboxEvents) == 0 {
		return nil
	}
	if err := r.outboxRepo.SaveAll(ctx, outboxEvents); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

// FindByID retrieves tracking for a file with legacy-safe decoding
func (r *TrackingRepository) FindByID(ctx context.Context, fileID string) (*domain.FileTracking, error) {
	raw, err := r.collection.FindOne(ctx, bson.M{"fileId": fileID}).Raw()
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}

	return r.decode(ctx, raw), nil
}

// FindInProgress retrieves files that have not been delivered
func (r *TrackingRepository) FindInProgress(ctx context.Context, pagination domain.Pagination) ([]*domain.FileTracking, error) {
	filter := bson.M{"currentStatus": bson.M{"$ne": domain.FileStatusDelivered}}
	return r.find(ctx, filter, pagination)
}

// FindByStage retrieves files currently in a stage
func (r *TrackingRepository) FindByStage(ctx context.Context, stage domain.Stage, pagination domain.Pagination) ([]*domain.FileTracking, error) {
	return r.find(ctx, bson.M{"currentStage": stage}, pagination)
}

// FindUpdatedSince retrieves files whose tracking changed after the given
// instant
func (r *TrackingRepository) FindUpdatedSince(ctx context.Context, since time.Time) ([]*domain.FileTracking, error) {
	filter := bson.M{"updatedAt": bson.M{"$gt": since}}
	return r.find(ctx, filter, domain.Pagination{})
}

// Count returns the number of files in a stage
func (r *TrackingRepository) Count(ctx context.Context, stage domain.Stage) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"currentStage": stage})
}

func (r *TrackingRepository) find(ctx context.Context, filter bson.M, pagination domain.Pagination) ([]*domain.FileTracking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if pagination.PageSize > 0 {
		opts = opts.SetSkip(pagination.Skip()).SetLimit(pagination.Limit())
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	results := make([]*domain.FileTracking, 0)
	for cursor.Next(ctx) {
		results = append(results, r.decode(ctx, cursor.Current))
	}
	return results, cursor.Err()
}

// decode runs the legacy-safe decoder and records degradations
func (r *TrackingRepository) decode(ctx context.Context, raw bson.Raw) *domain.FileTracking {
	result := decodeTracking(raw, r.nowFn())
	if result.degraded {
		r.metrics.RecordDegradedRead(result.reason)
		r.logger.DegradedRead(ctx, result.tracking.FileID, result.reason)
	}
	return result.tracking
}

// GetOutboxRepository exposes the outbox store for the background publisher
func (r *TrackingRepository) GetOutboxRepository() outbox.Repository {
	return r.outboxRepo
}
