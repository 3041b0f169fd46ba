package command

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keymesh-go/internal/cli/config"
	"github.com/yndnr/keymesh-go/internal/cli/output"
	"github.com/yndnr/keymesh-go/internal/infra/buildinfo"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    buildinfo.Product,
		Usage:   "Sign in to a KeyMesh identity service and manage API keys",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			LoginCommand(),
			RegisterCommand(),
			LogoutCommand(),
			WhoamiCommand(),
			StatusCommand(),
			APIKeyCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "identity service base URL (e.g. https://id.example.com/api)",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "config file (default ~/.keymesh/config.yaml)",
			EnvVars: []string{"KEYMESH_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "log debug output to stderr",
		},
		&cli.StringFlag{
			Name:    "metrics-file",
			Usage:   "write client metrics in Prometheus text format to `FILE` on exit",
			EnvVars: []string{"KEYMESH_METRICS_FILE"},
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server      string
	ConfigPath  string
	Output      string
	Wide        bool
	Verbose     bool
	MetricsFile string
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Server:      c.String("server"),
		ConfigPath:  c.String("config"),
		Output:      c.String("output"),
		Wide:        c.Bool("wide"),
		Verbose:     c.Bool("verbose"),
		MetricsFile: c.String("metrics-file"),
	}
}

// overrides maps the global flags that were set onto config keys.
func (f *GlobalFlags) overrides() map[string]any {
	m := make(map[string]any)
	if f.Server != "" {
		m["server"] = f.Server
	}
	if f.Output != "" {
		m["output"] = f.Output
	}
	if f.Verbose {
		m["log.level"] = "debug"
	}
	return m
}

// env is the per-invocation state shared by command actions.
type env struct {
	cfg    *config.CLIConfig
	flags  *GlobalFlags
	log    logger.Logger
	format output.Format

	out    io.Writer
	errOut io.Writer
	in     *bufio.Reader
	tty    *os.File // set when stdin is an interactive terminal
}

// setup loads the configuration and builds the logger for one command.
func setup(c *cli.Context) (*env, error) {
	flags := ParseGlobalFlags(c)

	cfg, err := config.Load(flags.ConfigPath, flags.overrides())
	if err != nil {
		return nil, err
	}
	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	lc := cfg.LoggerConfig()
	lc.Output = c.App.ErrWriter

	e := &env{
		cfg:    cfg,
		flags:  flags,
		log:    logger.New(lc),
		format: format,
		out:    c.App.Writer,
		errOut: c.App.ErrWriter,
		in:     bufio.NewReader(c.App.Reader),
	}
	if f, ok := c.App.Reader.(*os.File); ok && isTerminal(f) {
		e.tty = f
	}
	return e, nil
}

// print renders data in the configured output format.
func (e *env) print(data any) error {
	return output.NewFormatter(e.format, e.flags.Wide).Format(e.out, data)
}

// printf writes a human-readable line. It is suppressed for json and yaml
// output so that stdout stays machine-readable.
func (e *env) printf(format string, args ...any) {
	if e.format != output.FormatTable {
		return
	}
	fmt.Fprintf(e.out, format, args...)
}

// notef writes a note to stderr.
func (e *env) notef(format string, args ...any) {
	fmt.Fprintf(e.errOut, format, args...)
}
