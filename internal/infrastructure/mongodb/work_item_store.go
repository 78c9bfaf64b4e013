package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fileflow-platform/tracking-service/internal/domain"
)

const workItemCollection = "work_items"

// Work item statuses as reported by the external task system
const (
	WorkItemStatusOpen       = "OPEN"
	WorkItemStatusInProgress = "IN_PROGRESS"
	WorkItemStatusDone       = "DONE"
	WorkItemStatusCancelled  = "CANCELLED"
)

// WorkItemDocument mirrors one external work item locally
type WorkItemDocument struct {
	WorkItemID   string    `bson:"workItemId"`
	FileID       string    `bson:"fileId"`
	Stage        string    `bson:"stage"`
	EmployeeCode string    `bson:"employeeCode,omitempty"`
	Status       string    `bson:"status"`
	AssignedAt   time.Time `bson:"assignedAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// WorkItemStore serves outstanding-work lookups from a local mirror of the
// external task system, kept current by the work-item signal consumer
type WorkItemStore struct {
	collection *mongo.Collection
}

// NewWorkItemStore creates a new WorkItemStore
func NewWorkItemStore(db *mongo.Database) *WorkItemStore {
	store := &WorkItemStore{collection: db.Collection(workItemCollection)}
	store.ensureIndexes(context.Background())
	return store
}

func (s *WorkItemStore) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "workItemId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "fileId", Value: 1}, {Key: "stage", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "assignedAt", Value: 1}}},
	}
	s.collection.Indexes().CreateMany(ctx, indexes)
}

// OutstandingCount returns how many work items remain open for a file's stage
func (s *WorkItemStore) OutstandingCount(ctx context.Context, fileID string, stage domain.Stage) (int, error) {
	filter := bson.M{
		"fileId": fileID,
		"stage":  string(stage),
		"status": bson.M{"$in": []string{WorkItemStatusOpen, WorkItemStatusInProgress}},
	}

	count, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// OpenAssignments returns all work items still open in the external system
func (s *WorkItemStore) OpenAssignments(ctx context.Context) ([]domain.WorkItemRef, error) {
	filter := bson.M{"status": bson.M{"$in": []string{WorkItemStatusOpen, WorkItemStatusInProgress}}}
	opts := options.Find().SetSort(bson.D{{Key: "assignedAt", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []WorkItemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	refs := make([]domain.WorkItemRef, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, domain.WorkItemRef{
			WorkItemID:   doc.WorkItemID,
			FileID:       doc.FileID,
			Stage:        domain.Stage(doc.Stage),
			EmployeeCode: doc.EmployeeCode,
			AssignedAt:   doc.AssignedAt,
		})
	}
	return refs, nil
}

// Upsert records the latest known state of one work item
func (s *WorkItemStore) Upsert(ctx context.Context, doc WorkItemDocument) error {
	doc.UpdatedAt = time.Now()
	if doc.AssignedAt.IsZero() {
		doc.AssignedAt = doc.UpdatedAt
	}

	filter := bson.M{"workItemId": doc.WorkItemID}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	_, err := s.collection.UpdateOne(ctx, filter, update, opts)
	return err
}
