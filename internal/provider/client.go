// Package provider talks to the external calendar provider and turns its
// responses into classified fragments.
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appLog "shabbatcal/internal/log"
	"shabbatcal/internal/model"
)

// Format selects the provider response encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatICS  Format = "ics"
)

const (
	defaultBaseURL         = "https://www.hebcal.com"
	defaultTimeout         = 15 * time.Second
	defaultRatePerSecond   = 1.0
	defaultCandleMinutes   = 18
	defaultHavdalahMinutes = 50
	currentWindowDays      = 7
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL         string
	Format          Format
	Timeout         time.Duration
	RatePerSecond   float64
	CandleMinutes   int
	HavdalahMinutes int
	Language        string

	// CacheDir enables the ETag / Last-Modified body cache when set.
	CacheDir string
}

// Query asks for the cycle containing Date at Coord.
type Query struct {
	Date     time.Time
	Coord    model.Coord
	Location *time.Location
}

// RangeQuery asks for everything between Start and End (inclusive dates).
type RangeQuery struct {
	Start    time.Time
	End      time.Time
	Coord    model.Coord
	Location *time.Location
}

// Client issues single, unretried requests to the provider.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
}

// cacheEntry holds HTTP cache metadata for one request URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewClient creates a provider client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = defaultRatePerSecond
	}
	if opts.CandleMinutes <= 0 {
		opts.CandleMinutes = defaultCandleMinutes
	}
	if opts.HavdalahMinutes <= 0 {
		opts.HavdalahMinutes = defaultHavdalahMinutes
	}
	return &Client{
		opts:    opts,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 2),
	}
}

// Current fetches the cycle containing q.Date.
func (c *Client) Current(ctx context.Context, q Query) (model.Payload, error) {
	loc := locationOrLocal(q.Location)
	if c.opts.Format == FormatICS {
		d := model.DayOf(q.Date.In(loc))
		return c.Range(ctx, RangeQuery{Start: d, End: d.AddDate(0, 0, currentWindowDays), Coord: q.Coord, Location: loc})
	}

	d := q.Date.In(loc)
	v := c.geoParams(q.Coord, loc)
	v.Set("cfg", "json")
	v.Set("gy", strconv.Itoa(d.Year()))
	v.Set("gm", strconv.Itoa(int(d.Month())))
	v.Set("gd", strconv.Itoa(d.Day()))

	body, err := c.get(ctx, c.opts.BaseURL+"/shabbat?"+v.Encode())
	if err != nil {
		return model.Payload{}, err
	}
	return DecodeJSON(body, loc)
}

// Range fetches holidays, fasts and boundary times between q.Start and q.End.
func (c *Client) Range(ctx context.Context, q RangeQuery) (model.Payload, error) {
	if q.End.Before(q.Start) {
		return model.Payload{}, fmt.Errorf("%w: range end before start", ErrFetchFailed)
	}
	loc := locationOrLocal(q.Location)

	v := c.geoParams(q.Coord, loc)
	v.Set("v", "1")
	v.Set("maj", "on")
	v.Set("min", "on")
	v.Set("nx", "on")
	v.Set("mf", "on")
	v.Set("ss", "on")
	v.Set("s", "on")
	v.Set("c", "on")
	v.Set("start", model.DateKey(q.Start.In(loc)))
	v.Set("end", model.DateKey(q.End.In(loc)))

	if c.opts.Format == FormatICS {
		v.Set("cfg", "ics")
		body, err := c.get(ctx, c.opts.BaseURL+"/hebcal?"+v.Encode())
		if err != nil {
			return model.Payload{}, err
		}
		start := model.DayOf(q.Start.In(loc))
		end := model.DayOf(q.End.In(loc)).AddDate(0, 0, 1)
		return DecodeICS(body, loc, start, end)
	}

	v.Set("cfg", "json")
	body, err := c.get(ctx, c.opts.BaseURL+"/hebcal?"+v.Encode())
	if err != nil {
		return model.Payload{}, err
	}
	return DecodeJSON(body, loc)
}

func (c *Client) geoParams(coord model.Coord, loc *time.Location) url.Values {
	v := url.Values{}
	v.Set("latitude", strconv.FormatFloat(coord.Lat, 'f', 4, 64))
	v.Set("longitude", strconv.FormatFloat(coord.Lon, 'f', 4, 64))
	v.Set("tzid", loc.String())
	v.Set("b", strconv.Itoa(c.opts.CandleMinutes))
	v.Set("m", strconv.Itoa(c.opts.HavdalahMinutes))
	if c.opts.Language != "" {
		v.Set("lg", c.opts.Language)
	}
	return v
}

// get performs one GET, honoring ETag / Last-Modified when a cache
// directory is configured. It never retries.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if c.opts.CacheDir != "" {
		cachePath = c.cachePathForURL(rawURL)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Error("provider cache dir unavailable", err, "dir", cachePath)
			cachePath = ""
		} else {
			meta, _ = loadCacheMeta(cachePath)
			cachedBody, _ = os.ReadFile(filepath.Join(cachePath, "body"))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("provider fetch start", "url", redactURL(rawURL))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, readErr)
		}
		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          rawURL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				// Log but still return the freshly fetched body.
				appLog.Error("provider cache save failed", err, "url", redactURL(rawURL))
			}
		}
		appLog.Info("provider fetch success", "url", redactURL(rawURL), "bytes", len(body))
		return body, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, fmt.Errorf("%w: 304 Not Modified without cached body", ErrFetchFailed)
		}
		appLog.Info("provider fetch not modified; using cache", "url", redactURL(rawURL))
		return cachedBody, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, resp.Status)
	}
}

func (c *Client) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(c.opts.CacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps scheme, host and path but drops the query, which carries
// the user's coordinates.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "provider://...(redacted)"
	}
	if parsed.RawQuery == "" {
		return parsed.Scheme + "://" + parsed.Host + parsed.Path
	}
	return parsed.Scheme + "://" + parsed.Host + parsed.Path + "?...(redacted)"
}

func locationOrLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// IsDecodeError reports whether err came from payload decoding rather than
// transport.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecodeFailed)
}
