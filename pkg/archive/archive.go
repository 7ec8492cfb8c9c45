// Package archive persists published content and activity to MongoDB
// for offline analysis. The engine runs fine without it; a nil *Store
// is a valid no-op.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/molthive/hivebot/pkg/agent"
	"github.com/molthive/hivebot/pkg/types"
)

const (
	CollectionPosts      = "posts"
	CollectionActivities = "activities"
)

// Store writes engine output to MongoDB. It implements agent.Recorder.
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	log      *logrus.Entry
}

// Connect opens a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	dbName := databaseName(uri)
	return &Store{
		client:   client,
		database: client.Database(dbName),
		log:      logrus.WithField("component", "archive"),
	}, nil
}

// databaseName pulls the database out of the URI path, defaulting to
// "hivebot".
func databaseName(uri string) string {
	trimmed := uri
	if i := strings.Index(trimmed, "?"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		if name := trimmed[i+1:]; name != "" && !strings.Contains(name, "@") && !strings.Contains(name, ":") {
			return name
		}
	}
	return "hivebot"
}

type postDoc struct {
	Agent      string    `bson:"agent"`
	PostID     string    `bson:"post_id"`
	Hive       string    `bson:"hive"`
	Title      string    `bson:"title"`
	Content    string    `bson:"content"`
	ArchivedAt time.Time `bson:"archived_at"`
}

type activityDoc struct {
	Agent      string    `bson:"agent"`
	Kind       string    `bson:"kind"`
	Target     string    `bson:"target,omitempty"`
	Detail     string    `bson:"detail,omitempty"`
	Score      float64   `bson:"score,omitempty"`
	Success    bool      `bson:"success"`
	At         time.Time `bson:"at"`
	ArchivedAt time.Time `bson:"archived_at"`
}

// RecordPost implements agent.Recorder.
func (s *Store) RecordPost(ctx context.Context, agentName string, post *types.Post) error {
	if s == nil {
		return nil
	}
	_, err := s.database.Collection(CollectionPosts).InsertOne(ctx, postDoc{
		Agent:      agentName,
		PostID:     post.ID,
		Hive:       post.Hive,
		Title:      post.Title,
		Content:    post.Content,
		ArchivedAt: time.Now(),
	})
	return err
}

// RecordActivity implements agent.Recorder.
func (s *Store) RecordActivity(ctx context.Context, agentName string, act agent.Activity) error {
	if s == nil {
		return nil
	}
	_, err := s.database.Collection(CollectionActivities).InsertOne(ctx, activityDoc{
		Agent:      agentName,
		Kind:       act.Kind,
		Target:     act.Target,
		Detail:     act.Detail,
		Score:      act.Score,
		Success:    act.Success,
		At:         act.At,
		ArchivedAt: time.Now(),
	})
	return err
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
