package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "moard",
		Usage:   "Moard message board server",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Before: func(*cli.Context) error {
			// Flags bound to environment variables read .env values too.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default)",
				Action: serve,
			},
			{
				Name:  "create-user",
				Usage: "Create a user that can log in",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Login name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Password (at least 8 characters)",
						EnvVars:  []string{"MOARD_NEW_USER_PASSWORD"},
						Required: true,
					},
					&cli.StringFlag{
						Name:     "mongo-uri",
						Usage:    "MongoDB connection string",
						EnvVars:  []string{"MONGO_URI"},
						Required: true,
					},
				},
				Action: createUser,
			},
			{
				Name:      "hash-password",
				Usage:     "Print the bcrypt hash of a password",
				ArgsUsage: "PASSWORD",
				Action:    hashPassword,
			},
		},
	}
}
