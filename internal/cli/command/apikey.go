package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keymesh-go/internal/cli/output"
	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/core/service"
)

// APIKeyCommand returns the apikey subcommand group.
func APIKeyCommand() *cli.Command {
	return &cli.Command{
		Name:    "apikey",
		Aliases: []string{"key"},
		Usage:   "Manage API keys",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List API keys",
				Action: clientAction(true, apikeyList),
			},
			{
				Name:      "get",
				Usage:     "Show API key details",
				ArgsUsage: "KEY_ID",
				Action:    clientAction(true, apikeyGet),
			},
			{
				Name:  "create",
				Usage: "Create a new API key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "key name",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "expires-in",
						Aliases: []string{"e"},
						Usage:   "days until expiry: 30, 60 or 90 (default never)",
					},
					&cli.StringFlag{
						Name:    "permission",
						Aliases: []string{"p"},
						Usage:   "READ_ONLY, READ_WRITE or FULL_ACCESS (default from config)",
					},
				},
				Action: clientAction(true, apikeyCreate),
			},
			{
				Name:      "revoke",
				Usage:     "Revoke one or more API keys",
				ArgsUsage: "KEY_ID [KEY_ID...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "skip confirmation",
					},
				},
				Action: clientAction(true, apikeyRevoke),
			},
		},
	}
}

func apikeyList(c *cli.Context, e *env, cl *Client) error {
	if _, err := requireSession(cl); err != nil {
		return err
	}
	keys, err := cl.Keys.List(c.Context)
	if err != nil {
		return fmt.Errorf("list API keys: %w", err)
	}

	views := make(keyList, 0, len(keys))
	for _, k := range keys {
		views = append(views, newKeyView(k, cl.Keys.Status(k)))
	}
	if err := e.print(views); err != nil {
		return err
	}
	e.printf("\nTotal: %d keys\n", len(views))
	return nil
}

func apikeyGet(c *cli.Context, e *env, cl *Client) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("key ID required")
	}
	if _, err := requireSession(cl); err != nil {
		return err
	}

	key, err := cl.Keys.Get(c.Context, id)
	if err != nil {
		return fmt.Errorf("get API key: %w", err)
	}
	return e.print(newKeyView(*key, cl.Keys.Status(*key)))
}

func apikeyCreate(c *cli.Context, e *env, cl *Client) error {
	if _, err := requireSession(cl); err != nil {
		return err
	}

	in := service.CreateAPIKeyInput{
		Name:       c.String("name"),
		Permission: domain.Permission(strings.ToUpper(c.String("permission"))),
	}
	if c.IsSet("expires-in") {
		days := c.Int("expires-in")
		in.ExpiresInDays = &days
	}

	key, err := cl.Keys.Create(c.Context, in)
	if err != nil {
		return fmt.Errorf("create API key: %w", err)
	}

	if err := e.print(newKeyView(*key, cl.Keys.Status(*key))); err != nil {
		return err
	}
	e.notef("\nSave this key now. It cannot be retrieved later.\n")
	return nil
}

func apikeyRevoke(c *cli.Context, e *env, cl *Client) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return errors.New("key ID required")
	}
	if _, err := requireSession(cl); err != nil {
		return err
	}

	if !c.Bool("force") {
		question := fmt.Sprintf("Revoke API key %s?", ids[0])
		if len(ids) > 1 {
			question = fmt.Sprintf("Revoke %d API keys?", len(ids))
		}
		ok, err := e.confirm(question)
		if err != nil {
			return err
		}
		if !ok {
			e.notef("Cancelled.\n")
			return nil
		}
	}

	if len(ids) == 1 {
		if err := cl.Keys.Revoke(c.Context, ids[0]); err != nil {
			return fmt.Errorf("revoke API key: %w", err)
		}
		e.printf("API key %s revoked.\n", output.Truncate(ids[0], 12))
		return nil
	}

	err := cl.Keys.RevokeMany(c.Context, ids)
	failed := make(map[string]bool)
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, ke := range joined.Unwrap() {
			var re *service.RevokeError
			if errors.As(ke, &re) {
				failed[re.KeyID] = true
				e.notef("%s: %v\n", re.KeyID, re.Err)
			}
		}
	}
	for _, id := range ids {
		if !failed[id] {
			e.printf("API key %s revoked.\n", output.Truncate(id, 12))
		}
	}
	if err != nil {
		return fmt.Errorf("%d of %d API keys could not be revoked", len(failed), len(ids))
	}
	return nil
}
