// Package db connects to MongoDB and holds the application's repositories.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.uber.org/zap"
)

// DefaultDatabase is used when the connection string names no database.
const DefaultDatabase = "moard"

// DatabaseName returns the database named in a MongoDB connection string.
func DatabaseName(uri string) (string, error) {
	if uri == "" {
		return "", errors.New("mongo uri is empty")
	}
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("parse mongo uri: %w", err)
	}
	if cs.Database == "" {
		return DefaultDatabase, nil
	}
	return cs.Database, nil
}

// Connect creates a client for uri and returns it with its database handle.
//
// The driver connects lazily. Connectivity problems are logged, by a
// background ping and by the heartbeat monitor, and never end the process;
// the driver keeps retrying server selection on its own.
func Connect(ctx context.Context, uri string, logger *zap.Logger) (*mongo.Client, *mongo.Database, error) {
	name, err := DatabaseName(uri)
	if err != nil {
		return nil, nil, err
	}

	log := logger.With(zap.String("database", name))
	monitor := &event.ServerMonitor{
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			log.Error("mongo heartbeat failed",
				zap.String("connection_id", e.ConnectionID),
				zap.Error(e.Failure))
		},
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerMonitor(monitor).
		SetServerSelectionTimeout(10 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Ping(pctx, nil); err != nil {
			log.Error("mongo connection error", zap.Error(err))
			return
		}
		log.Info("mongo connected")
	}()

	return client, client.Database(name), nil
}

// Ping checks connectivity with a short deadline.
func Ping(ctx context.Context, client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx, nil)
}
