package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"moard/internal/db"
)

const minPasswordLength = 8

func createUser(c *cli.Context) error {
	username := c.String("username")
	password := c.String("password")
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	client, database, err := db.Connect(ctx, c.String("mongo-uri"), zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	users := db.NewUsers(database)
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	hash, err := db.HashPassword(password)
	if err != nil {
		return err
	}
	u, err := users.Create(ctx, username, hash)
	if errors.Is(err, db.ErrDuplicate) {
		return fmt.Errorf("user %q already exists", username)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "created user %s (%s)\n", u.Username, u.ID.Hex())
	return nil
}

func hashPassword(c *cli.Context) error {
	password := c.Args().First()
	if password == "" {
		return errors.New("usage: moard hash-password PASSWORD")
	}
	hash, err := db.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, hash)
	return nil
}
