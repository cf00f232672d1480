package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/asimalsarhani/portal-runner/pkg/flow"
	"github.com/asimalsarhani/portal-runner/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check portal definition files without running them",
	ArgsUsage: "[portal-file-or-folder]...",
	Description: `Parses each portal file and reports problems that would make a run fail,
such as missing targets or success and error markers sharing a locator.
Without arguments the built-in portal is checked.

Examples:
  portal-runner validate portal.yaml
  portal-runner validate portals/ --require-url`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "require-url",
			Usage: "Fail portals that do not carry their own url",
		},
	},
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	v := validator.New(c.Bool("require-url"))

	if c.NArg() == 0 {
		errs, warnings := v.ValidatePortal(flow.DefaultPortal())
		printValidation("built-in portal", len(errs) == 0, errs, warnings)
		if len(errs) > 0 {
			return cli.Exit("", 1)
		}
		return nil
	}

	failed := false
	for _, path := range c.Args().Slice() {
		result := v.Validate(path)
		var errs []string
		for _, err := range result.Errors {
			errs = append(errs, err.Error())
		}
		printValidation(path, result.IsValid(), errs, result.Warnings)
		for _, p := range result.Portals {
			fmt.Printf("    %s%s%s (%d post-login actions)\n", color(colorGray), p.Name, color(colorReset), len(p.PostActions))
		}
		failed = failed || !result.IsValid()
	}
	if failed {
		return cli.Exit("", 1)
	}
	return nil
}

func printValidation(label string, ok bool, errs, warnings []string) {
	if ok {
		fmt.Printf("  %s✓%s %s\n", color(colorGreen), color(colorReset), label)
	} else {
		fmt.Printf("  %s✗%s %s\n", color(colorRed), color(colorReset), label)
	}
	for _, e := range errs {
		fmt.Printf("    %s╰─%s %s\n", color(colorRed), color(colorReset), e)
	}
	for _, w := range warnings {
		fmt.Printf("    %s⚠%s %s\n", color(colorYellow), color(colorReset), w)
	}
}
