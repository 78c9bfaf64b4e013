package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fileflow-platform/tracking-service/internal/domain"
	"github.com/fileflow-platform/tracking-service/pkg/metrics"
)

// PipelineEventRepository reads the append-only analytics event log
type PipelineEventRepository struct {
	collection *mongo.Collection
	metrics    *metrics.Metrics
}

// NewPipelineEventRepository creates a new PipelineEventRepository
func NewPipelineEventRepository(db *mongo.Database, m *metrics.Metrics) *PipelineEventRepository {
	return &PipelineEventRepository{
		collection: db.Collection(pipelineCollection),
		metrics:    m,
	}
}

// LatestEventPerFile reduces the log to each file's most recent event. An
// empty stage filters nothing.
func (r *PipelineEventRepository) LatestEventPerFile(ctx context.Context, stage domain.Stage) ([]domain.PipelineEntry, error) {
	// Auto-progression writes completion and transition records with the
	// same eventTime; inserted _ids are monotonic within a save, so they
	// break the tie deterministically
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "eventTime", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$fileId"},
			{Key: "eventType", Value: bson.D{{Key: "$first", Value: "$eventType"}}},
			{Key: "stage", Value: bson.D{{Key: "$first", Value: "$stage"}}},
			{Key: "employeeCode", Value: bson.D{{Key: "$first", Value: "$employeeCode"}}},
			{Key: "employeeName", Value: bson.D{{Key: "$first", Value: "$employeeName"}}},
			{Key: "eventTime", Value: bson.D{{Key: "$first", Value: "$eventTime"}}},
		}}},
	}

	// Filter after the reduction: a file counts for a stage only when its
	// latest event happened there
	if stage != "" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{{Key: "stage", Value: stage}}}})
	}

	start := time.Now()
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	r.metrics.RecordMongoDBOperation(pipelineCollection, "aggregate", err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []domain.PipelineEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// EventsForFile returns one file's full event history, oldest first
func (r *PipelineEventRepository) EventsForFile(ctx context.Context, fileID string) ([]domain.PipelineEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "eventTime", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"fileId": fileID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []domain.PipelineEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
