package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/dealdesk/fieldcrypt/cmd/app/commands"
	"github.com/dealdesk/fieldcrypt/internal/app"
	"github.com/dealdesk/fieldcrypt/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

// loadContainer loads and validates configuration before building the container.
func loadContainer() (*app.Container, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.NewContainer(cfg), nil
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate a new master key, optionally encrypted with a KMS key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "kms-key-uri",
					Value: "",
					Usage: "KMS key URI (e.g., base64key://, gcpkms://projects/.../cryptoKeys/..., hashivault://mykey)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCreateMasterKey(
					ctx,
					container.KMSService(),
					container.Logger(),
					commands.Stdout(),
					cmd.String("kms-key-uri"),
				)
			},
		},
		{
			Name:  "rotate-key",
			Usage: "Create a new primary encryption key; older keys stay available for decryption",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := loadContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				// The backend registers its cache invalidation hook on the key manager.
				if _, err := container.EncryptionBackend(); err != nil {
					return err
				}
				keyManager, err := container.KeyManager()
				if err != nil {
					return err
				}

				// The worker registers its re-encryption hook on the key manager.
				var reencryption commands.ReencryptionWaiter
				if container.Config().ReencryptOnRotate {
					worker, err := container.ReencryptWorker()
					if err != nil {
						return err
					}
					reencryption = worker
				}

				return commands.RunRotateKey(
					ctx,
					keyManager,
					reencryption,
					container.Logger(),
					commands.Stdout(),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "list-keys",
			Usage: "List encryption key versions",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := loadContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				keyManager, err := container.KeyManager()
				if err != nil {
					return err
				}

				return commands.RunListKeys(ctx, keyManager, commands.Stdout(), cmd.String("format"))
			},
		},
	}
}
