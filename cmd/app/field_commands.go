package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/dealdesk/fieldcrypt/cmd/app/commands"
	reencryptDomain "github.com/dealdesk/fieldcrypt/internal/reencrypt/domain"
)

func getFieldCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "encrypt",
			Usage: "Encrypt a value with the current key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "value",
					Required: true,
					Usage:    "Plaintext value",
				},
				&cli.BoolFlag{
					Name:  "with-hash",
					Value: false,
					Usage: "Also print the search hash of the value",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := loadContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				backend, err := container.EncryptionBackend()
				if err != nil {
					return err
				}

				return commands.RunEncrypt(
					ctx,
					backend,
					commands.Stdout(),
					cmd.String("value"),
					cmd.Bool("with-hash"),
				)
			},
		},
		{
			Name:  "decrypt",
			Usage: "Decrypt a value produced by encrypt",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "ciphertext",
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "Encrypted value",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := loadContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				backend, err := container.EncryptionBackend()
				if err != nil {
					return err
				}

				return commands.RunDecrypt(ctx, backend, commands.Stdout(), cmd.String("ciphertext"))
			},
		},
		{
			Name:  "search-hash",
			Usage: "Compute the search hash of a value",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "value",
					Required: true,
					Usage:    "Plaintext value",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := loadContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				backend, err := container.EncryptionBackend()
				if err != nil {
					return err
				}

				return commands.RunSearchHash(ctx, backend, commands.Stdout(), cmd.String("value"))
			},
		},
		{
			Name:  "reencrypt",
			Usage: "Re-encrypt a column under the current key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "table",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Table name",
				},
				&cli.StringFlag{
					Name:  "id-column",
					Value: "id",
					Usage: "Primary key column",
				},
				&cli.StringFlag{
					Name:     "value-column",
					Required: true,
					Usage:    "Encrypted column",
				},
				&cli.StringFlag{
					Name:  "hash-column",
					Value: "",
					Usage: "Search hash column to refresh alongside the value",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				target := reencryptDomain.ColumnTarget{
					Table:       cmd.String("table"),
					IDColumn:    cmd.String("id-column"),
					ValueColumn: cmd.String("value-column"),
					HashColumn:  cmd.String("hash-column"),
				}
				if err := target.Validate(); err != nil {
					return err
				}

				container, err := loadContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				source, err := container.ColumnSource(target)
				if err != nil {
					return err
				}
				worker, err := container.ReencryptWorker()
				if err != nil {
					return err
				}

				return commands.RunReencrypt(
					ctx,
					worker,
					source,
					container.Logger(),
					commands.Stdout(),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "list-jobs",
			Usage: "List recent re-encryption jobs",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   20,
					Usage:   "Maximum number of jobs to show",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := loadContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				jobs, err := container.JobRepository()
				if err != nil {
					return err
				}

				return commands.RunListJobs(
					ctx,
					jobs,
					commands.Stdout(),
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
	}
}
