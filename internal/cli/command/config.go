package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keymesh-go/internal/cli/config"
	"github.com/yndnr/keymesh-go/internal/cli/output"
	"github.com/yndnr/keymesh-go/internal/infra/buildinfo"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect and write the CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration",
				Action: configValidate,
			},
			{
				Name:  "init",
				Usage: "Write the effective configuration to the config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "overwrite an existing file",
					},
				},
				Action: configInit,
			},
		},
	}
}

// configPath returns the file the command reads and writes.
func configPath(flags *GlobalFlags) string {
	if flags.ConfigPath != "" {
		return flags.ConfigPath
	}
	return config.DefaultConfigPath()
}

func configShow(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	data, err := config.Encode(e.cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.errOut, "# %s\n", configPath(e.flags))
	if e.cfg.Store.Passphrase != "" {
		fmt.Fprintf(e.errOut, "# store passphrase: set\n")
	}
	_, err = e.out.Write(data)
	return err
}

func configValidate(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	path := configPath(flags)

	if _, err := config.Load(flags.ConfigPath, flags.overrides()); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(c.App.Writer, "%s: configuration is valid\n", path)
	return nil
}

func configInit(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	path := configPath(flags)

	if !c.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	cfg, err := config.LoadOptional(path, flags.overrides())
	if err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			format, err := output.ParseFormat(c.String("output"))
			if err != nil {
				return err
			}
			return output.NewFormatter(format, false).Format(c.App.Writer, buildinfo.Get())
		},
	}
}
