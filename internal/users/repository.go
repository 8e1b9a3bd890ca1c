package users

import (
	"context"
	"time"

	"github.com/benzdriver/thinkforward-ai-sub003/internal/models"
	"github.com/benzdriver/thinkforward-ai-sub003/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository defines the persistence operations the sync needs
type Repository interface {
	// FindByClerkIDOrEmail returns the first user matching either key, or nil
	// when none matches.
	FindByClerkIDOrEmail(ctx context.Context, clerkID, email string) (*models.User, error)
	// Save inserts the user when it has no ID yet and replaces it otherwise.
	Save(ctx context.Context, u *models.User) error
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository creates a new repository for the given collection
func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) FindByClerkIDOrEmail(ctx context.Context, clerkID, email string) (*models.User, error) {
	filter := bson.M{"$or": []bson.M{
		{"clerkId": clerkID},
		{"email": email},
	}}
	// fetch up to two so a split match (clerkId on one document, email on
	// another) can be detected and logged rather than silently collapsed
	cur, err := r.col.Find(ctx, filter, options.Find().SetLimit(2))
	if err != nil {
		return nil, err
	}
	var matches []models.User
	if err := cur.All(ctx, &matches); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		logger.Warnf("user lookup conflict: clerkId=%s and email=%s resolve to different users (%s, %s); using first",
			clerkID, email, matches[0].ID, matches[1].ID)
	}
	return &matches[0], nil
}

func (r *MongoRepository) Save(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
		_, err := r.col.InsertOne(ctx, u)
		return err
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	return err
}
