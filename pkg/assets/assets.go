// Package assets turns image-valued properties into references owned by an
// asset store. Resolution never fails an extraction: on any error the
// original value is kept.
package assets

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/host"
)

const (
	defaultMimeType = "image/png"
	// DefaultMaxBytes caps a downloaded image when Options.MaxBytes is unset.
	DefaultMaxBytes int64 = 20 << 20
)

var dataURI = regexp.MustCompile(`(?s)^data:([^;,]+);base64,(.+)$`)

// Status tells what happened to a property.
type Status int

const (
	// Skipped properties are not image references and were not looked at.
	Skipped Status = iota
	Resolved
	Fallback
)

func (s Status) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Fallback:
		return "fallback"
	default:
		return "skipped"
	}
}

// Resolution is the outcome for one property. Err is set only for Fallback
// and always matches models.ErrAssetResolution.
type Resolution struct {
	Property models.Property
	Status   Status
	Err      error
}

type Options struct {
	UserAgent string
	Client    *http.Client
	Logger    *slog.Logger
	// MaxBytes bounds a downloaded image; larger bodies fall back.
	MaxBytes int64
}

type Resolver struct {
	store     host.AssetStore
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	maxBytes  int64
}

func New(store host.AssetStore, opts Options) *Resolver {
	r := &Resolver{store: store, client: opts.Client, userAgent: opts.UserAgent, logger: opts.Logger, maxBytes: opts.MaxBytes}
	if r.maxBytes <= 0 {
		r.maxBytes = DefaultMaxBytes
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	if r.userAgent == "" {
		r.userAgent = models.DefaultUserAgent
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve returns props with image references replaced by stored asset
// references. When download is false props are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, props []models.Property, download bool) ([]models.Property, []Resolution) {
	out := make([]models.Property, len(props))
	copy(out, props)
	if !download {
		return out, nil
	}

	var results []Resolution
	for i, p := range out {
		res := r.ResolveProperty(ctx, p)
		if res.Status == Skipped {
			continue
		}
		if res.Status == Fallback {
			r.logger.Warn("keeping original image reference", "property", p.Name, "error", res.Err)
		}
		out[i] = res.Property
		results = append(results, res)
	}
	return out, results
}

// Applies reports whether p is an image reference the resolver handles.
func Applies(p models.Property) bool {
	if p.SubType() != models.SubTypeImage {
		return false
	}
	s, ok := p.StringValue()
	return ok && (strings.HasPrefix(s, "http") || strings.HasPrefix(s, "data:"))
}

// ResolveProperty resolves a single property.
func (r *Resolver) ResolveProperty(ctx context.Context, p models.Property) Resolution {
	if !Applies(p) {
		return Resolution{Property: p, Status: Skipped}
	}
	value, _ := p.StringValue()

	var ref string
	var err error
	if strings.HasPrefix(value, "data:") {
		ref, err = r.fromDataURI(ctx, value)
	} else {
		ref, err = r.fromRemote(ctx, value)
	}
	if err != nil {
		return Resolution{Property: p, Status: Fallback, Err: fmt.Errorf("%w: %s: %w", models.ErrAssetResolution, p.Name, err)}
	}

	p.Value = ref
	return Resolution{Property: p, Status: Resolved}
}

func (r *Resolver) fromDataURI(ctx context.Context, value string) (string, error) {
	m := dataURI.FindStringSubmatch(value)
	if m == nil {
		return "", fmt.Errorf("malformed data URI")
	}
	data, err := decodeBase64(m[2])
	if err != nil {
		return "", fmt.Errorf("failed to decode data URI: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("data URI has no payload")
	}
	ref, err := r.store.UploadAssetFromBytes(ctx, m[1], data)
	if err != nil {
		return "", fmt.Errorf("failed to upload decoded image: %w", err)
	}
	return ref, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// fromRemote tries upload-by-reference, then downloads the bytes itself.
func (r *Resolver) fromRemote(ctx context.Context, url string) (string, error) {
	ref, err := r.store.UploadAssetFromURL(ctx, url)
	if err == nil && ref != "" {
		return ref, nil
	}
	r.logger.Debug("upload by reference failed, downloading", "url", url, "error", err)

	data, mimeType, err := r.download(ctx, url)
	if err != nil {
		return "", err
	}
	ref, err = r.store.UploadAssetFromBytes(ctx, mimeType, data)
	if err != nil {
		return "", fmt.Errorf("failed to upload downloaded image: %w", err)
	}
	return ref, nil
}

func (r *Resolver) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("failed to download image: status code %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, "", fmt.Errorf("image body exceeds %d bytes", r.maxBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return data, mimeType, nil
}
