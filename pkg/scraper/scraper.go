package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/koa/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const maxPDFBytes = 50 << 20

type ScraperConfig struct {
	OutputDir  string
	Scheme     string
	RateLimit  float64 // requests per second
	MaxWorkers int
	Timeout    time.Duration
	FetchPDFs  bool
	OnProgress func(subdomain string)
	Logger     *zap.Logger
}

// Scraper fetches one landing page per subdomain, plus the PDFs it links to,
// and writes each as a corpus file.
type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 10
	}
	if config.Scheme == "" {
		config.Scheme = "https"
	}
	if config.OutputDir == "" {
		config.OutputDir = "ScrapedData"
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

// ScrapeAll scrapes every subdomain with a bounded worker pool. Failures are
// logged and skipped; the number of files written is returned.
func (s *Scraper) ScrapeAll(ctx context.Context, subdomains []string) (int, error) {
	if err := os.MkdirAll(s.config.OutputDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxWorkers)

	for _, subdomain := range subdomains {
		subdomain := subdomain
		g.Go(func() error {
			defer func() {
				if s.config.OnProgress != nil {
					s.config.OnProgress(subdomain)
				}
			}()

			doc, err := s.ScrapeDomain(ctx, subdomain)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("failed to scrape domain", zap.String("subdomain", subdomain), zap.Error(err))
				return nil
			}

			if _, err := WriteDocument(s.config.OutputDir, doc); err != nil {
				s.logger.Error("failed to write document", zap.String("subdomain", subdomain), zap.Error(err))
				return nil
			}
			written.Add(1)
			return nil
		})
	}

	err := g.Wait()
	return int(written.Load()), err
}

// ScrapeDomain fetches the landing page of subdomain and appends the text of linked PDFs.
func (s *Scraper) ScrapeDomain(ctx context.Context, subdomain string) (models.SourceDocument, error) {
	pageURL := fmt.Sprintf("%s://%s", s.config.Scheme, subdomain)
	s.logger.Info("scraping", zap.String("url", pageURL))

	body, err := s.fetch(ctx, pageURL, 0)
	if err != nil {
		return models.SourceDocument{}, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	var b strings.Builder
	b.WriteString(extractMainContent(doc))

	if s.config.FetchPDFs {
		for _, pdfURL := range pdfLinks(doc, pageURL) {
			text, err := s.fetchPDFText(ctx, pdfURL)
			if err != nil {
				s.logger.Warn("skipping PDF", zap.String("url", pdfURL), zap.Error(err))
				continue
			}
			if text == "" {
				continue
			}
			fmt.Fprintf(&b, "\n\n--- Text from PDF (%s) ---\n%s", pdfURL, text)
			s.logger.Debug("extracted PDF text", zap.String("url", pdfURL), zap.Int("chars", len(text)))
		}
	}

	return models.SourceDocument{
		Name: SafeName(subdomain),
		URL:  pageURL,
		Body: b.String(),
	}, nil
}

func (s *Scraper) fetch(ctx context.Context, target string, limit int64) (io.ReadCloser, error) {
	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "koa-scraper/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, target)
	}

	if limit > 0 {
		return struct {
			io.Reader
			io.Closer
		}{io.LimitReader(resp.Body, limit), resp.Body}, nil
	}
	return resp.Body, nil
}

func (s *Scraper) fetchPDFText(ctx context.Context, pdfURL string) (string, error) {
	body, err := s.fetch(ctx, pdfURL, maxPDFBytes)
	if err != nil {
		return "", err
	}
	defer body.Close()

	content, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to download PDF: %w", err)
	}

	text, err := extractPDF(content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// pdfLinks returns the distinct absolute URLs of links ending in .pdf, in document order.
func pdfLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}

		absolute := base.ResolveReference(ref)
		if !strings.HasSuffix(strings.ToLower(absolute.Path), ".pdf") {
			return
		}
		if abs := absolute.String(); !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})

	return links
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

// SafeName turns a subdomain into a corpus file stem.
func SafeName(subdomain string) string {
	return strings.NewReplacer("/", "_", `\`, "_", ":", "_").Replace(subdomain)
}

// WriteDocument stores doc as "{name}.txt" laid out as "url\n\nbody".
func WriteDocument(dir string, doc models.SourceDocument) (string, error) {
	path := filepath.Join(dir, doc.Name+".txt")
	content := doc.URL + "\n\n" + doc.Body + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}
