package proxylist

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/proxypool"
	"github.com/MrSnakeDoc/sleuth/internal/utils"
)

const (
	// DefaultProxyNovaURL is the public list page scraped when the pool is empty.
	DefaultProxyNovaURL = "https://www.proxynova.com/proxy-server-list/"
	// DefaultMaxResults caps how many candidates one scrape returns.
	DefaultMaxResults = 10

	defaultScrapeTimeout = 10 * time.Second
)

var (
	// the list page writes IPs through obfuscated document.write(...) calls
	writeCallRe = regexp.MustCompile(`document\.write\(([^)]*)\)`)
	ipNoiseRe   = regexp.MustCompile(`[\s+'"]`)
)

// ProxyNova scrapes the proxynova.com free proxy list.
type ProxyNova struct {
	URL        string
	MaxResults int
	UserAgent  string

	client *http.Client
	log    logger.Logger
}

// NewProxyNova creates a scraper for listURL (DefaultProxyNovaURL when empty).
func NewProxyNova(listURL string, maxResults int, userAgent string, log logger.Logger) *ProxyNova {
	if listURL == "" {
		listURL = DefaultProxyNovaURL
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ProxyNova{
		URL:        listURL,
		MaxResults: maxResults,
		UserAgent:  userAgent,
		client: &http.Client{
			Timeout: defaultScrapeTimeout,
		},
		log: log,
	}
}

// Name returns the source name used in logs.
func (s *ProxyNova) Name() string {
	return "proxynova"
}

// Fetch downloads the list page and returns up to MaxResults http endpoints.
func (s *ProxyNova) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	ua := s.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0"
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.URL, err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, s.URL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy list: %w", err)
	}

	proxies := ParseProxyNova(doc, s.MaxResults)
	s.log.Info("proxy list scraped",
		logger.String("source", s.Name()),
		logger.Int("count", len(proxies)))
	return proxies, nil
}

// ParseProxyNova extracts http://ip:port endpoints from the list table rows.
func ParseProxyNova(doc *goquery.Document, maxResults int) []string {
	var proxies []string

	doc.Find("tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return true
		}

		ip := decodeIP(cells.Eq(0))
		port := strings.TrimSpace(cells.Eq(1).Text())
		if ip == "" || !validPort(port) {
			return true
		}

		proxies = append(proxies, "http://"+net.JoinHostPort(ip, port))
		return maxResults <= 0 || len(proxies) < maxResults
	})

	return proxies
}

// decodeIP reads the IP out of a document.write script, falling back to the
// cell text for plain rows.
func decodeIP(cell *goquery.Selection) string {
	raw := cell.Find("script").Text()
	if m := writeCallRe.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	} else {
		raw = cell.Text()
	}

	cleaned := ipNoiseRe.ReplaceAllString(raw, "")
	cleaned = strings.TrimSuffix(cleaned, ".")

	ip := net.ParseIP(cleaned)
	if ip == nil || ip.To4() == nil {
		return ""
	}
	return cleaned
}

func validPort(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0 && n <= 65535
}

var _ proxypool.Source = (*ProxyNova)(nil)
