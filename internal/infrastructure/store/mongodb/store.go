// Package mongodb provides the MongoDB durable-tier backend. The
// instance collection lives in one document; concurrent writers are
// detected by polling its revision stamp.
package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dnsguard/companion-service/internal/domain/models"
)

const (
	// ConfigCollection is the collection holding the single document.
	ConfigCollection = "config"

	// instancesDocID is the fixed _id of the instances document.
	instancesDocID = "instances"

	// defaultPollInterval is how often the watcher checks for external writes.
	defaultPollInterval = 5 * time.Second
)

// configDocument is the persisted shape: the collection plus a
// revision stamp used for external-write detection.
type configDocument struct {
	ID        string                     `bson:"_id"`
	Revision  string                     `bson:"revision"`
	UpdatedAt time.Time                  `bson:"updatedAt"`
	Data      *models.InstanceCollection `bson:"data"`
}

// StoreConfig holds MongoDB connection configuration.
type StoreConfig struct {
	URI          string
	DatabaseName string
	PollInterval time.Duration
}

// Store implements store.Store on MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     zerolog.Logger

	mu           sync.Mutex
	lastRevision string
	watchers     []func()

	pollInterval time.Duration
	stopPoll     chan struct{}
	pollOnce     sync.Once
}

// NewStore connects to MongoDB, verifies the connection and starts the
// external-write watcher.
func NewStore(ctx context.Context, cfg *StoreConfig, logger zerolog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if cfg.DatabaseName == "" {
		return nil, fmt.Errorf("database name is required")
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}

	s := &Store{
		client:       client,
		collection:   client.Database(cfg.DatabaseName).Collection(ConfigCollection),
		logger:       logger.With().Str("component", "store.mongodb").Logger(),
		pollInterval: pollInterval,
		stopPoll:     make(chan struct{}),
	}

	return s, nil
}

// Load reads the instances document. A missing document degrades to
// the empty default collection.
func (s *Store) Load(ctx context.Context) (*models.InstanceCollection, error) {
	var doc configDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": instancesDocID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return models.NewInstanceCollection(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instances document: %w", err)
	}

	s.mu.Lock()
	s.lastRevision = doc.Revision
	s.mu.Unlock()

	if doc.Data == nil {
		return models.NewInstanceCollection(), nil
	}
	return doc.Data, nil
}

// Save replaces the instances document with a fresh revision stamp.
// The watcher treats the new revision as our own write and stays quiet.
func (s *Store) Save(ctx context.Context, collection *models.InstanceCollection) error {
	revision := uuid.NewString()
	doc := configDocument{
		ID:        instancesDocID,
		Revision:  revision,
		UpdatedAt: time.Now().UTC(),
		Data:      collection,
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": instancesDocID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save instances document: %w", err)
	}

	s.mu.Lock()
	s.lastRevision = revision
	s.mu.Unlock()

	return nil
}

// Watch registers an external-write callback and lazily starts the
// revision poller.
func (s *Store) Watch(fn func()) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()

	s.pollOnce.Do(func() {
		go s.poll()
	})
}

// poll compares the stored revision against the last one we observed
// and notifies watchers on mismatch.
func (s *Store) poll() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			s.checkRevision()
		}
	}
}

func (s *Store) checkRevision() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var doc struct {
		Revision string `bson:"revision"`
	}
	err := s.collection.FindOne(ctx, bson.M{"_id": instancesDocID},
		options.FindOne().SetProjection(bson.M{"revision": 1})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("revision poll failed")
		return
	}

	s.mu.Lock()
	changed := s.lastRevision != "" && doc.Revision != s.lastRevision
	s.lastRevision = doc.Revision
	watchers := make([]func(), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	if !changed {
		return
	}

	s.logger.Debug().Msg("external write detected, notifying watchers")
	for _, fn := range watchers {
		fn()
	}
}

// Ping verifies the MongoDB connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// Close stops the watcher and disconnects.
func (s *Store) Close(ctx context.Context) error {
	close(s.stopPoll)
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
