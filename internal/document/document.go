// Package document owns the connection to the document backend and
// performs upsert-by-key batch writes. See spec.md §4.5. There is no
// document-database driver anywhere in the example pack this module was
// grounded on; go.mongodb.org/mongo-driver is used as the closest
// ecosystem-standard choice, wired the way the relational client wires
// pgx: one long-lived pooled client, deadline-scoped contexts per call.
package document

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/migrate"
	"github.com/schemaforge/schemaforge/internal/pipelineerr"
	"github.com/schemaforge/schemaforge/internal/record"
)

// linkUsername and linkIngestedAt are the fields that uniquely identify a
// record across backends, per spec.md §4.7.
const (
	linkUsername   = "username"
	linkIngestedAt = "sys_ingested_at"
)

// Config names the document backend to connect to.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

func (c Config) uri() string {
	if c.User == "" {
		return fmt.Sprintf("mongodb://%s:%d", c.Host, c.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d", c.User, c.Password, c.Host, c.Port)
}

// Client wraps a mongo.Client scoped to a single database.
type Client struct {
	client   *mongo.Client
	database string
	log      *zap.SugaredLogger
	mu       sync.Mutex
	indexed  map[string]string // collection -> key field the unique index was built on
}

// New connects to the document backend.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	mc, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.uri()))
	if err != nil {
		return nil, fmt.Errorf("connect document backend: %w", err)
	}
	if err := mc.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("ping document backend: %w", err)
	}
	return &Client{client: mc, database: cfg.Database, log: log, indexed: make(map[string]string)}, nil
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Ping reports whether the document backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.client.Ping(pingCtx, nil)
}

func (c *Client) collection(name string) *mongo.Collection {
	return c.client.Database(c.database).Collection(name)
}

// EnsureIndexes creates a unique index on keyField for collection if one
// hasn't already been created by this process. Idempotent creation against
// the server itself (CreateOne on an existing equivalent index is a no-op)
// means a restart is safe even without the in-memory cache.
func (c *Client) EnsureIndexes(ctx context.Context, collection, keyField string) error {
	if keyField == "" {
		return nil
	}
	c.mu.Lock()
	if c.indexed[collection] == keyField {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	model := mongo.IndexModel{
		Keys:    bson.D{{Key: keyField, Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.collection(collection).Indexes().CreateOne(indexCtx, model); err != nil {
		return fmt.Errorf("ensure unique index on %s.%s: %w", collection, keyField, err)
	}
	c.mu.Lock()
	c.indexed[collection] = keyField
	c.mu.Unlock()
	return nil
}

// InsertBatch upserts docs into collection, matching on keyField and
// replacing the whole document on match. When keyField is empty, every
// document is plainly inserted and duplicates are possible by design.
func (c *Client) InsertBatch(ctx context.Context, collection string, docs []record.Record, keyField string) error {
	if len(docs) == 0 {
		return nil
	}
	batchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if keyField == "" {
		return c.insertMany(batchCtx, collection, docs)
	}
	return c.replaceUpsertMany(batchCtx, collection, docs, keyField)
}

func (c *Client) insertMany(ctx context.Context, collection string, docs []record.Record) error {
	models := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		models = append(models, bson.M(d))
	}
	if _, err := c.collection(collection).InsertMany(ctx, models); err != nil {
		return pipelineerr.NewTransientBackendError("document", err)
	}
	return nil
}

func (c *Client) replaceUpsertMany(ctx context.Context, collection string, docs []record.Record, keyField string) error {
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		key, ok := d[keyField]
		if !ok {
			continue
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{keyField: key}).
			SetReplacement(bson.M(d)).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}
	if _, err := c.collection(collection).BulkWrite(ctx, models); err != nil {
		return pipelineerr.NewTransientBackendError("document", err)
	}
	return nil
}

// SetFields performs a $set of fields on the document matching both
// link.Username and link.SysIngestedAt, used by the migrator when moving a
// column's values into the document backend. Matching on username alone
// would collide whenever two records share a username.
func (c *Client) SetFields(ctx context.Context, collection string, link migrate.LinkKey, fields map[string]interface{}) error {
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.collection(collection).UpdateOne(updateCtx,
		bson.M{linkUsername: link.Username, linkIngestedAt: link.SysIngestedAt},
		bson.M{"$set": fields},
		options.Update().SetUpsert(true))
	if err != nil {
		return pipelineerr.NewTransientBackendError("document", err)
	}
	return nil
}

// FindFieldValues returns field's value for every document containing it,
// keyed by its full username+sys_ingested_at link — used by the migrator
// when moving a field from document storage into a new SQL column.
// Documents missing either link field are skipped.
func (c *Client) FindFieldValues(ctx context.Context, collection, field string) (map[migrate.LinkKey]interface{}, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cur, err := c.collection(collection).Find(queryCtx,
		bson.M{field: bson.M{"$exists": true}},
		options.Find().SetProjection(bson.M{field: 1, linkUsername: 1, linkIngestedAt: 1}))
	if err != nil {
		return nil, pipelineerr.NewTransientBackendError("document", err)
	}
	defer cur.Close(queryCtx)

	out := make(map[migrate.LinkKey]interface{})
	for cur.Next(queryCtx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			c.log.Warnw("skipping undecodable document during migration scan", "collection", collection, "error", err)
			continue
		}
		username, hasUser := doc[linkUsername]
		ingestedAt, hasIngested := doc[linkIngestedAt]
		if !hasUser || !hasIngested {
			c.log.Warnw("skipping document with incomplete link during migration scan", "collection", collection, "field", field)
			continue
		}
		link := migrate.LinkKey{Username: username, SysIngestedAt: ingestedAt}
		out[link] = doc[field]
	}
	return out, cur.Err()
}
