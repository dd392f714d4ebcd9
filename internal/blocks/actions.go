package blocks

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dtnitsch/linkmeta/internal/common"
	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/db"
	"github.com/dtnitsch/linkmeta/pkg/locator"
	"github.com/urfave/cli/v2"
)

// AddAction creates a block. Text that is a single URL becomes a link.
func AddAction(c *cli.Context) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("block text is required")
	}
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()
	database, err := env.OpenDB()
	if err != nil {
		return err
	}

	content := models.TextContent(text)
	if u := locator.SanitizeURL(text); !strings.ContainsAny(u, " \t") {
		if _, err := locator.ValidateURL(u); err == nil {
			content = []models.InlineContent{{T: models.ContentLink, V: u, URL: u}}
		}
	}

	id, err := database.CreateBlock(c.Context, content)
	if err != nil {
		return err
	}
	fmt.Fprintln(common.Stdout, id)
	return nil
}

func ShowAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a block ID is required")
	}
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()
	database, err := env.OpenDB()
	if err != nil {
		return err
	}

	id := c.Args().First()
	block, err := database.GetBlock(c.Context, id)
	if errors.Is(err, db.ErrBlockNotFound) {
		return cli.Exit("block not found: "+id, 1)
	}
	if err != nil {
		return err
	}
	extractions, err := database.ListExtractions(c.Context, id, c.Int("history"))
	if err != nil {
		return err
	}

	return common.PrintJSON(common.Stdout, struct {
		*models.Block
		Extractions []db.Extraction `json:"extractions,omitempty"`
	}{block, extractions})
}

func ListAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()
	database, err := env.OpenDB()
	if err != nil {
		return err
	}

	blocks, err := database.ListBlocks(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		fmt.Fprintln(common.Stdout, "No blocks found")
		return nil
	}

	out := common.Stdout
	fmt.Fprintf(out, "%-36s %s\n", "ID", "Content")
	fmt.Fprintln(out, strings.Repeat("-", 100))
	for _, b := range blocks {
		fmt.Fprintf(out, "%-36s %s\n", b.ID, truncate(b.Text(), 60))
	}
	fmt.Fprintf(out, "\nTotal: %d blocks in %s\n", len(blocks), database.Path())
	return nil
}

// SchemaAction prints the properties a tag currently declares.
func SchemaAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a tag name is required")
	}
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()
	database, err := env.OpenDB()
	if err != nil {
		return err
	}

	name := c.Args().First()
	tag, err := database.FindTag(c.Context, name)
	if errors.Is(err, db.ErrBlockNotFound) {
		return cli.Exit("no schema for tag "+name, 1)
	}
	if err != nil {
		return err
	}
	return common.PrintJSON(common.Stdout, tag)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
