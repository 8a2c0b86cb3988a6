package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
)

// DefaultMinConfidence drops detections the engine is unsure about.
const DefaultMinConfidence = 0.35

const defaultBuildTimeout = time.Minute

// Detection is one text region reported by an OCR engine.
type Detection struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// LineReader reads text regions off an image using a fixed language set.
type LineReader interface {
	ReadText(ctx context.Context, image []byte) ([]Detection, error)
}

// ReaderFactory builds a LineReader for a language set. Building one may be
// expensive, so Provider caches readers per language set.
type ReaderFactory func(ctx context.Context, languages []string) (LineReader, error)

// Provider extracts KTP fields from images. It keeps one reader per
// normalised language set; the default set is built up front.
type Provider struct {
	factory       ReaderFactory
	defaults      []string
	defaultKey    string
	minConfidence float64
	buildTimeout  time.Duration
	logger        *slog.Logger

	mu      sync.RWMutex
	readers map[string]LineReader
	group   singleflight.Group
}

// NewProvider builds the default reader for languages and returns the
// Provider. A non-positive minConfidence selects DefaultMinConfidence.
func NewProvider(ctx context.Context, languages []string, minConfidence float64, factory ReaderFactory) (*Provider, error) {
	defaults := NormalizeLanguages(languages)
	if len(defaults) == 0 {
		return nil, errors.New("ocr: at least one language is required")
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	p := &Provider{
		factory:       factory,
		defaults:      defaults,
		defaultKey:    languageKey(defaults),
		minConfidence: minConfidence,
		buildTimeout:  defaultBuildTimeout,
		readers:       make(map[string]LineReader),
		logger:        slog.Default().With("component", "ocr-provider"),
	}
	reader, err := factory(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("ocr: building reader for %s: %w", p.defaultKey, err)
	}
	p.readers[p.defaultKey] = reader
	return p, nil
}

// Extract reads the image with the reader for locale (the defaults when
// locale is empty), drops low-confidence and blank detections, and parses
// the remaining lines.
func (p *Provider) Extract(ctx context.Context, image []byte, locale string) (ekyc.KtpOcrResult, error) {
	reader, err := p.reader(ctx, locale)
	if err != nil {
		return ekyc.KtpOcrResult{}, err
	}
	detections, err := reader.ReadText(ctx, image)
	if err != nil {
		return ekyc.KtpOcrResult{}, fmt.Errorf("ocr: reading text: %w", err)
	}

	lines := make([]string, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < p.minConfidence || strings.TrimSpace(d.Text) == "" {
			continue
		}
		lines = append(lines, Denoise(d.Text))
	}
	return ParseKtpFields(lines), nil
}

func (p *Provider) reader(ctx context.Context, locale string) (LineReader, error) {
	if locale == "" {
		return p.cached(p.defaultKey), nil
	}
	languages := NormalizeLanguages(append([]string{locale}, p.defaults...))
	key := languageKey(languages)
	if r := p.cached(key); r != nil {
		return r, nil
	}

	// The build is shared by every caller waiting on key, so it must not die
	// with whichever request happened to start it.
	ch := p.group.DoChan(key, func() (any, error) {
		if r := p.cached(key); r != nil {
			return r, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.buildTimeout)
		defer cancel()
		p.logger.Info("building ocr reader", "languages", key)
		r, err := p.factory(buildCtx, languages)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.readers[key] = r
		p.mu.Unlock()
		return r, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ocr: waiting for reader %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("ocr: building reader for %s: %w", key, res.Err)
		}
		return res.Val.(LineReader), nil
	}
}

func (p *Provider) cached(key string) LineReader {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.readers[key]
}

// NormalizeLanguages lower-cases languages, drops empties and duplicates and
// keeps first-seen order.
func NormalizeLanguages(languages []string) []string {
	seen := make(map[string]struct{}, len(languages))
	out := make([]string, 0, len(languages))
	for _, l := range languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func languageKey(languages []string) string {
	return strings.Join(languages, ",")
}
