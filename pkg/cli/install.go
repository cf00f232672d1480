package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/asimalsarhani/portal-runner/pkg/config"
	"github.com/asimalsarhani/portal-runner/pkg/driver/playwright"
)

var installCommand = &cli.Command{
	Name:  "install",
	Usage: "Download the Playwright driver and Chromium",
	Description: `Installs the browser used by the playwright driver into
<home>/drivers/playwright. Home is $PORTAL_RUNNER_HOME, the parent of the
binary's bin/ directory, or the user cache directory.`,
	Action: func(c *cli.Context) error {
		dir := config.GetDriversDir("playwright")
		fmt.Printf("  %s⏳%s Installing Chromium into %s\n", color(colorCyan), color(colorReset), dir)
		if err := playwright.Install(dir, c.Bool("verbose")); err != nil {
			return err
		}
		fmt.Printf("  %s✓%s Installed\n", color(colorGreen), color(colorReset))
		return nil
	},
}
