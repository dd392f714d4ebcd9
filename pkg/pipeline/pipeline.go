// Package pipeline runs one extraction end to end:
//
//	locate -> match -> fetch -> extract -> normalize -> resolve assets -> apply
//
// Stages run strictly in sequence. Invalid URL, missing rule, failed fetch
// and failed extraction abort before anything is written; asset and schema
// problems degrade. Every attempt ends in exactly one notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/applier"
	"github.com/dtnitsch/linkmeta/pkg/assets"
	"github.com/dtnitsch/linkmeta/pkg/fetcher"
	"github.com/dtnitsch/linkmeta/pkg/host"
	"github.com/dtnitsch/linkmeta/pkg/locator"
	"github.com/dtnitsch/linkmeta/pkg/matcher"
	"github.com/dtnitsch/linkmeta/pkg/normalizer"
	"github.com/dtnitsch/linkmeta/pkg/parser"
	"github.com/dtnitsch/linkmeta/pkg/sandbox"
	"github.com/dtnitsch/linkmeta/pkg/schema"
	"github.com/dtnitsch/linkmeta/pkg/selectors"
)

// Extractor turns a parsed document into raw properties for a rule.
type Extractor interface {
	Run(ctx context.Context, rule models.Rule, doc *fetcher.Document, baseMeta []models.Property) ([]models.Property, error)
}

// Config holds everything a pipeline needs. It is built once at startup.
type Config struct {
	Rules []models.Rule
	// Store is required unless every request is a dry run.
	Store host.BlockStore
	// Assets may be nil; image properties then keep their original value.
	Assets   host.AssetStore
	Notifier host.Notifier
	// Source fetches documents; a static Fetcher when nil.
	Source fetcher.Source

	Scripts     Extractor
	Declarative Extractor

	UserAgent     string
	TitleFormat   string
	ScriptTimeout time.Duration
	Location      *time.Location
	Logger        *slog.Logger
	// MaxAssetBytes caps a downloaded image; assets.DefaultMaxBytes when zero.
	MaxAssetBytes int64

	// OnOutcome, when set, observes every finished attempt.
	OnOutcome func(ctx context.Context, req Request, out *Outcome)
}

// Request names what to extract. At least one of BlockID and URL is set;
// when URL is empty it is located in the block's content.
type Request struct {
	BlockID  string
	URL      string
	RuleName string
	// DryRun extracts and normalizes but writes nothing and uploads no assets.
	DryRun bool
	// Source overrides the configured Source for this request, e.g. an
	// interactive browser session.
	Source fetcher.Source
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusClosed    Status = "closed"
)

// Outcome is the terminal state of one attempt.
type Outcome struct {
	Status      Status
	Result      *models.ExtractionResult
	Applied     *applier.Result
	Resolutions []assets.Resolution
	Err         error
	Message     string
}

type Pipeline struct {
	rules       []models.Rule
	store       host.BlockStore
	notifier    host.Notifier
	source      fetcher.Source
	scripts     Extractor
	declarative Extractor
	matcher     *matcher.Matcher
	normalizer  *normalizer.Normalizer
	resolver    *assets.Resolver
	applier     *applier.Applier
	logger      *slog.Logger
	onOutcome   func(ctx context.Context, req Request, out *Outcome)
}

func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		rules:       cfg.Rules,
		store:       cfg.Store,
		notifier:    cfg.Notifier,
		source:      cfg.Source,
		scripts:     cfg.Scripts,
		declarative: cfg.Declarative,
		matcher:     matcher.New(),
		normalizer:  normalizer.New(cfg.Location, logger),
		logger:      logger,
		onOutcome:   cfg.OnOutcome,
	}
	if p.notifier == nil {
		p.notifier = host.LogNotifier{Logger: logger}
	}
	if p.source == nil {
		p.source = fetcher.NewFetcher(fetcher.Options{UserAgent: cfg.UserAgent, Logger: logger})
	}
	if p.scripts == nil {
		p.scripts = sandbox.New(sandbox.Options{Timeout: cfg.ScriptTimeout, Logger: logger})
	}
	if p.declarative == nil {
		p.declarative = selectors.New(logger)
	}
	if cfg.Assets != nil {
		p.resolver = assets.New(cfg.Assets, assets.Options{UserAgent: cfg.UserAgent, Logger: logger, MaxBytes: cfg.MaxAssetBytes})
	}
	if cfg.Store != nil {
		p.applier = applier.New(cfg.Store, schema.NewReconciler(cfg.Store, logger), cfg.TitleFormat, logger)
	}
	return p
}

// Run executes one extraction attempt. It never returns an error: the
// outcome carries the failure and has already been notified.
func (p *Pipeline) Run(ctx context.Context, req Request) *Outcome {
	out := p.run(ctx, req)
	p.finish(ctx, req, out)
	return out
}

func (p *Pipeline) run(ctx context.Context, req Request) *Outcome {
	rawURL, err := p.locate(ctx, req)
	if err != nil {
		return failed(err)
	}

	rule, err := p.rule(req, rawURL)
	if err != nil {
		return failed(err)
	}
	p.logger.Debug("rule matched", "url", rawURL, "rule", rule.Name)

	source := p.source
	if req.Source != nil {
		source = req.Source
	}
	doc, err := source.Document(ctx, rawURL)
	if err != nil {
		if errors.Is(err, models.ErrSessionClosed) {
			return &Outcome{Status: StatusClosed, Err: err, Message: "failure: closed"}
		}
		return failed(err)
	}

	// An interactive session may have navigated away from the requested page.
	if doc.URL != "" && doc.URL != rawURL {
		p.logger.Debug("document URL differs from request", "requested", rawURL, "current", doc.URL)
		if _, err := locator.ValidateURL(doc.URL); err != nil {
			return failed(err)
		}
		if req.RuleName == "" {
			if rule, err = p.rule(req, doc.URL); err != nil {
				return failed(err)
			}
		}
		rawURL = doc.URL
	}

	baseMeta := parser.BaseMeta(doc.Doc, rawURL)
	extractor := p.scripts
	if rule.Script.IsEmpty() && len(rule.Fields) > 0 {
		extractor = p.declarative
	}
	raw, err := extractor.Run(ctx, rule, doc, baseMeta)
	if err != nil {
		if !errors.Is(err, models.ErrScriptExecution) {
			err = &models.ScriptError{Rule: rule.Name, Err: err}
		}
		return failed(err)
	}

	metadata := p.normalizer.Normalize(raw)
	out := &Outcome{Status: StatusSucceeded, Result: &models.ExtractionResult{URL: rawURL, Rule: rule}}

	if req.DryRun {
		out.Result.Metadata = metadata
		out.Message = fmt.Sprintf("Extracted %d properties from %s with rule %q (dry run)", len(metadata), rawURL, rule.Name)
		return out
	}

	if p.resolver != nil {
		metadata, out.Resolutions = p.resolver.Resolve(ctx, metadata, rule.DownloadCover)
	}
	out.Result.Metadata = metadata

	if req.BlockID == "" {
		out.Message = fmt.Sprintf("Extracted %d properties from %s with rule %q", len(metadata), rawURL, rule.Name)
		return out
	}
	if p.applier == nil {
		return failed(errors.New("no block store configured"))
	}

	applied, err := p.applier.Apply(ctx, req.BlockID, rule, metadata)
	if err != nil {
		return failed(err)
	}
	out.Applied = applied
	out.Message = fmt.Sprintf("Applied %d %s properties to block %s", len(metadata), rule.TagName, req.BlockID)
	if applied.Title != "" {
		out.Message += ": " + applied.Title
	}
	return out
}

func (p *Pipeline) locate(ctx context.Context, req Request) (string, error) {
	rawURL := req.URL
	if rawURL == "" && req.BlockID != "" {
		if p.store == nil {
			return "", errors.New("no block store configured")
		}
		block, err := p.store.GetBlock(ctx, req.BlockID)
		if err != nil {
			return "", fmt.Errorf("failed to read block %s: %w", req.BlockID, err)
		}
		rawURL = locator.FindURL(block.Content)
	}
	if _, err := locator.ValidateURL(rawURL); err != nil {
		return "", err
	}
	return rawURL, nil
}

func (p *Pipeline) rule(req Request, rawURL string) (models.Rule, error) {
	if req.RuleName != "" {
		rule, ok := matcher.Find(req.RuleName, p.rules)
		if !ok {
			return models.Rule{}, fmt.Errorf("%w: no rule named %q", models.ErrNoMatchingRule, req.RuleName)
		}
		return rule, nil
	}
	rule, ok := p.matcher.Match(rawURL, p.rules)
	if !ok {
		return models.Rule{}, fmt.Errorf("%w for %s", models.ErrNoMatchingRule, rawURL)
	}
	return rule, nil
}

func failed(err error) *Outcome {
	return &Outcome{Status: StatusFailed, Err: err, Message: fmt.Sprintf("Failed to extract metadata: %v", err)}
}

func (p *Pipeline) finish(ctx context.Context, req Request, out *Outcome) {
	level := models.NotifySuccess
	switch out.Status {
	case StatusFailed:
		level = models.NotifyError
		p.logger.Error("extraction failed", "block", req.BlockID, "url", req.URL, "error", out.Err)
	case StatusClosed:
		level = models.NotifyWarn
		p.logger.Info("extraction abandoned", "block", req.BlockID, "url", req.URL)
	default:
		p.logger.Info("extraction succeeded", "block", req.BlockID, "url", out.Result.URL, "rule", out.Result.Rule.Name, "properties", len(out.Result.Metadata))
	}
	p.notifier.Notify(level, out.Message)

	if p.onOutcome != nil {
		p.onOutcome(ctx, req, out)
	}
}
