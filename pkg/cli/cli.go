// Package cli provides the command-line interface for portal-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/asimalsarhani/portal-runner/pkg/config"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "driver",
		Aliases: []string{"d"},
		Usage:   "Browser driver to use (playwright, mock)",
		Value:   config.DriverPlaywright,
		EnvVars: []string{"PORTAL_DRIVER"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"PORTAL_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// envFileVar names the dotenv file loaded before flags are parsed.
const envFileVar = "PORTAL_ENV_FILE"

func newApp() *cli.App {
	return &cli.App{
		Name:    "portal-runner",
		Usage:   "Resilient browser login automation with evidence and notification",
		Version: Version,
		Description: `portal-runner logs into a web portal with a real browser, verifies the
login, runs post-login actions and emails the result with screenshots.

Configuration is read from flags, the environment and a .env file
(or the file named by $PORTAL_ENV_FILE).

Examples:
  portal-runner run --url https://portal.example.com/login
  portal-runner run --portal portal.yaml --max-retries 5
  portal-runner validate portal.yaml
  portal-runner install`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			validateCommand,
			installCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	// Flag defaults read the environment, so the dotenv file goes first
	if err := config.LoadDotEnv(os.Getenv(envFileVar)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
