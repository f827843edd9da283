// Package mongotest starts a throwaway MongoDB container for integration tests.
//
// Requires Docker available to the test runner. Only imported from tests
// built with the "integration" tag.
package mongotest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Start runs a mongo container and returns a connection string for it.
// The container is purged when the test finishes. MOARD_MONGO_TEST_TAG
// overrides the image tag.
func Start(t *testing.T) string {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	tag := os.Getenv("MOARD_MONGO_TEST_TAG")
	if tag == "" {
		tag = "7"
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        tag,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start mongo: %v", err)
	}
	_ = resource.Expire(300)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	uri := fmt.Sprintf("mongodb://localhost:%s", resource.GetPort("27017/tcp"))
	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		return client.Ping(ctx, nil)
	})
	if err != nil {
		t.Fatalf("mongo did not become ready: %v", err)
	}
	return uri
}

// Database connects to uri and returns a database handle named name.
func Database(t *testing.T, uri, name string) *mongo.Database {
	t.Helper()
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client.Database(name)
}
