package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dtnitsch/linkmeta/internal/common"
	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/assets"
	"github.com/dtnitsch/linkmeta/pkg/browser"
	"github.com/dtnitsch/linkmeta/pkg/caching"
	"github.com/dtnitsch/linkmeta/pkg/db"
	"github.com/dtnitsch/linkmeta/pkg/fetcher"
	"github.com/dtnitsch/linkmeta/pkg/host"
	"github.com/dtnitsch/linkmeta/pkg/locator"
	"github.com/dtnitsch/linkmeta/pkg/pipeline"
	"github.com/dtnitsch/linkmeta/pkg/storage"
	"github.com/urfave/cli/v2"
)

// output is what extract prints on stdout.
type output struct {
	BlockID     string            `json:"blockId,omitempty"`
	URL         string            `json:"url,omitempty"`
	Rule        string            `json:"rule,omitempty"`
	Status      pipeline.Status   `json:"status"`
	Message     string            `json:"message"`
	Title       string            `json:"title,omitempty"`
	Metadata    []models.Property `json:"metadata,omitempty"`
	Assets      []assetOutput     `json:"assets,omitempty"`
	SchemaAdded []string          `json:"schemaChanges,omitempty"`
}

type assetOutput struct {
	Property  string `json:"property"`
	Status    string `json:"status"`
	Ref       string `json:"ref,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	Error     string `json:"error,omitempty"`
}

func ExtractAction(c *cli.Context) error {
	blockIDs := c.StringSlice("block")
	rawURL := c.String("url")
	if len(blockIDs) == 0 && rawURL == "" && c.NArg() > 0 {
		rawURL = c.Args().First()
	}
	if len(blockIDs) == 0 && rawURL == "" {
		return fmt.Errorf("either --block or --url is required")
	}
	if len(blockIDs) > 0 && rawURL != "" {
		return fmt.Errorf("--block and --url are mutually exclusive")
	}
	if len(blockIDs) > 1 && c.Bool("interactive") {
		return fmt.Errorf("--interactive extracts one block at a time")
	}

	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()
	logger := env.Logger
	cfg := env.Config
	dryRun := c.Bool("dry-run")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pcfg := pipeline.Config{
		Rules:         cfg.Rules,
		Notifier:      notifier(c.Bool("quiet")),
		UserAgent:     cfg.UserAgent,
		TitleFormat:   cfg.TitleFormat,
		ScriptTimeout: cfg.ScriptTimeout,
		Location:      loc,
		Logger:        logger,
		MaxAssetBytes: cfg.MaxAssetBytes,
	}

	fopts := fetcher.Options{UserAgent: cfg.UserAgent, Timeout: cfg.FetchTimeout, Logger: logger}
	if cfg.CacheDir != "" && !c.Bool("no-cache") {
		cache, err := caching.NewCache(cfg.CacheDir, cfg.CacheTTL)
		if err != nil {
			return err
		}
		if n, err := cache.Prune(); err != nil {
			logger.Warn("failed to prune page cache", "error", err)
		} else if n > 0 {
			logger.Debug("pruned page cache", "removed", n)
		}
		fopts.Cache = cache
	}
	pcfg.Source = fetcher.NewFetcher(fopts)

	var database *db.DB
	if len(blockIDs) > 0 || !dryRun {
		if database, err = env.OpenDB(); err != nil {
			return err
		}
		pcfg.Store = database
		pcfg.OnOutcome = recorder(database, logger)
	}
	var store *storage.Storage
	if !dryRun {
		if store, err = storage.New(cfg.AssetsDir); err != nil {
			return err
		}
		pcfg.Assets = store
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	// Extracting a bare URL for real stores the result on a new link block.
	if rawURL != "" && !dryRun {
		rawURL = locator.SanitizeURL(rawURL)
		if _, err := locator.ValidateURL(rawURL); err != nil {
			return err
		}
		blockID, err := database.CreateBlock(ctx, []models.InlineContent{{T: models.ContentLink, V: rawURL, URL: rawURL}})
		if err != nil {
			return err
		}
		logger.Info("created block", "block", blockID, "url", rawURL)
		blockIDs, rawURL = []string{blockID}, ""
	}

	var reqs []pipeline.Request
	if rawURL != "" {
		reqs = append(reqs, pipeline.Request{URL: rawURL, RuleName: c.String("rule"), DryRun: dryRun})
	}
	for _, id := range blockIDs {
		reqs = append(reqs, pipeline.Request{BlockID: id, RuleName: c.String("rule"), DryRun: dryRun})
	}

	if c.Bool("interactive") {
		session, err := browser.Open(ctx, browser.Options{
			ControlURL:  c.String("browser-url"),
			Bin:         c.String("browser-bin"),
			WaitForUser: waitForEnter(os.Stdin, os.Stderr),
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		defer session.Close()
		reqs[0].Source = session
	}

	p := pipeline.New(pcfg)
	fields := c.String("fields")

	if len(reqs) == 1 {
		out := p.Run(ctx, reqs[0])
		if err := common.PrintJSON(common.Stdout, render(reqs[0], out, fields, store)); err != nil {
			return err
		}
		if out.Status == pipeline.StatusFailed {
			return cli.Exit("", 1)
		}
		return nil
	}

	results, runErr := runAll(ctx, logger, p, reqs, c.Int("workers"))
	rendered := make([]output, len(results))
	for i, r := range results {
		rendered[i] = render(r.Request, r.Outcome, fields, store)
	}
	if err := common.PrintJSON(common.Stdout, rendered); err != nil {
		return err
	}
	if runErr != nil {
		return cli.Exit(runErr.Error(), 1)
	}
	return nil
}

// notifier prints terminal notifications on stderr.
func notifier(quiet bool) host.Notifier {
	return host.NotifierFunc(func(level models.NotifyLevel, msg string) {
		if quiet && level != models.NotifyError {
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] %s\n", level, msg)
	})
}

// waitForEnter blocks until the user presses Enter. End of input abandons
// the capture.
func waitForEnter(in io.Reader, prompt io.Writer) func(ctx context.Context) error {
	reader := bufio.NewReader(in)
	return func(ctx context.Context) error {
		fmt.Fprintln(prompt, "Navigate to the page in the browser window, then press Enter to extract (Ctrl-D to cancel).")
		done := make(chan error, 1)
		go func() {
			_, err := reader.ReadString('\n')
			done <- err
		}()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func recorder(database *db.DB, logger *slog.Logger) func(ctx context.Context, req pipeline.Request, out *pipeline.Outcome) {
	return func(ctx context.Context, req pipeline.Request, out *pipeline.Outcome) {
		if req.DryRun {
			return
		}
		e := db.Extraction{
			BlockID: req.BlockID,
			URL:     req.URL,
			Status:  string(out.Status),
			Message: out.Message,
		}
		if out.Result != nil {
			e.URL = out.Result.URL
			e.RuleName = out.Result.Rule.Name
			e.PropertyCount = len(out.Result.Metadata)
		}
		if err := database.RecordExtraction(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("failed to record extraction", "block", req.BlockID, "error", err)
		}
	}
}

func render(req pipeline.Request, out *pipeline.Outcome, fields string, store *storage.Storage) output {
	o := output{BlockID: req.BlockID, URL: req.URL, Status: out.Status, Message: out.Message}
	if out.Result != nil {
		o.URL = out.Result.URL
		o.Rule = out.Result.Rule.Name
		o.Metadata = common.FilterProperties(out.Result.Metadata, fields)
	}
	for _, r := range out.Resolutions {
		a := assetOutput{Property: r.Property.Name, Status: r.Status.String()}
		if r.Err != nil {
			a.Error = r.Err.Error()
		}
		if ref, ok := r.Property.StringValue(); ok && r.Status == assets.Resolved {
			a.Ref = ref
			if store != nil && store.Owns(ref) {
				if stats, err := store.GetFileStats(ref); err == nil {
					a.SizeBytes = stats.SizeBytes
				}
			}
		}
		o.Assets = append(o.Assets, a)
	}
	if out.Applied != nil {
		o.Title = out.Applied.Title
		for _, ch := range out.Applied.SchemaChanges {
			desc := fmt.Sprintf("%s %s", ch.Kind, ch.Property.Name)
			if len(ch.Added) > 0 {
				desc += " (" + strings.Join(ch.Added, ", ") + ")"
			}
			o.SchemaAdded = append(o.SchemaAdded, desc)
		}
	}
	return o
}
