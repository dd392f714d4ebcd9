package rules

import (
	"fmt"
	"strings"

	"github.com/dtnitsch/linkmeta/internal/common"
	"github.com/dtnitsch/linkmeta/pkg/locator"
	"github.com/dtnitsch/linkmeta/pkg/matcher"
	"github.com/dtnitsch/linkmeta/pkg/selectors"
	"github.com/urfave/cli/v2"
)

func ListAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	out := common.Stdout
	fmt.Fprintf(out, "%-3s %-20s %-8s %-10s %-12s %s\n", "#", "Name", "Enabled", "Tag", "Extractor", "Pattern")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for i, rule := range env.Config.Rules {
		kind := "script"
		if rule.Script.IsEmpty() {
			kind = "fields"
			if len(rule.Fields) == 0 {
				kind = "baseMeta"
			}
		}
		fmt.Fprintf(out, "%-3d %-20s %-8t %-10s %-12s %s\n", i+1, rule.Name, rule.Enabled, rule.TagName, kind, rule.URLPattern)
	}
	fmt.Fprintf(out, "\nTotal: %d rules\n", len(env.Config.Rules))
	return nil
}

// CheckAction reports pattern and field problems. It fails when any rule
// has one.
func CheckAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	var problems []string
	for _, p := range matcher.New().Validate(env.Config.Rules) {
		problems = append(problems, p.String())
	}
	eval := selectors.New(env.Logger)
	for _, rule := range env.Config.Rules {
		if err := eval.Validate(rule); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", rule.Name, err))
		}
	}

	out := common.Stdout
	if len(problems) == 0 {
		fmt.Fprintf(out, "%d rules OK\n", len(env.Config.Rules))
		return nil
	}
	for _, p := range problems {
		fmt.Fprintln(out, p)
	}
	return cli.Exit(fmt.Sprintf("%d problems found", len(problems)), 1)
}

// MatchAction prints the rule that would handle a URL.
func MatchAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a URL is required")
	}
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	rawURL := locator.SanitizeURL(c.Args().First())
	if _, err := locator.ValidateURL(rawURL); err != nil {
		return err
	}
	rule, ok := matcher.New().Match(rawURL, env.Config.Rules)
	if !ok {
		return cli.Exit("no matching rule for "+rawURL, 1)
	}
	fmt.Fprintf(common.Stdout, "%s -> %s (tag %s)\n", rawURL, rule.Name, rule.TagName)
	return nil
}
