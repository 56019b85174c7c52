// Package docsource provides the document sources the indexer reads from:
// SharePoint through Microsoft Graph, a canned demo set and a local folder.
package docsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gamma-omg/rag-spo/domain"
	"github.com/gamma-omg/rag-spo/readers"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	DefaultGraphURL  = "https://graph.microsoft.com/v1.0"
	DefaultLoginURL  = "https://login.microsoftonline.com"
	DefaultRateLimit = 8
	DefaultBurst     = 10

	graphScope = "https://graph.microsoft.com/.default"
)

type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// SiteID is used when a call does not name a site.
	SiteID string

	GraphURL string
	LoginURL string

	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Graph reads documents from the default document library of a SharePoint
// site.
type Graph struct {
	cfg      GraphConfig
	client   *http.Client
	download *http.Client
	limiter  *rate.Limiter
	readers  *readers.Registry
	log      *slog.Logger
}

func NewGraph(cfg GraphConfig, reg *readers.Registry, log *slog.Logger) (*Graph, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: tenant_id, client_id and client_secret are required", domain.ErrInvalidConfiguration)
	}

	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(cfg.LoginURL, "/"), cfg.TenantID),
		Scopes:       []string{graphScope},
	}

	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &Graph{
		cfg:      cfg,
		client:   cc.Client(ctx),
		download: base,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		readers:  reg,
		log:      log,
	}, nil
}

type driveItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	WebURL      string    `json:"webUrl"`
	Size        int64     `json:"size"`
	DownloadURL string    `json:"@microsoft.graph.downloadUrl"`
	Modified    string    `json:"lastModifiedDateTime"`
	File        *struct{} `json:"file"`
	CreatedBy   struct {
		User struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"createdBy"`
}

func (i driveItem) document() domain.Document {
	author := i.CreatedBy.User.DisplayName
	if author == "" {
		author = "Unknown"
	}

	return domain.Document{
		ID:           i.ID,
		Name:         i.Name,
		WebURL:       i.WebURL,
		DownloadURL:  i.DownloadURL,
		ModifiedDate: i.Modified,
		Author:       author,
		Size:         i.Size,
	}
}

func (g *Graph) ListDocuments(ctx context.Context, siteID string) ([]domain.Document, error) {
	site, err := g.site(siteID)
	if err != nil {
		return nil, err
	}

	var drive struct {
		ID string `json:"id"`
	}
	if err := g.get(ctx, g.url("/sites/%s/drive", site), &drive); err != nil {
		return nil, fmt.Errorf("failed to get drive of site %s: %w", site, err)
	}
	g.log.Info("found drive", slog.String("site_id", site), slog.String("drive_id", drive.ID))

	docs := []domain.Document{}
	next := g.url("/drives/%s/root/children", drive.ID)
	for next != "" {
		var page struct {
			Value    []driveItem `json:"value"`
			NextLink string      `json:"@odata.nextLink"`
		}
		if err := g.get(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("failed to list documents of drive %s: %w", drive.ID, err)
		}

		for _, item := range page.Value {
			if item.File == nil {
				continue
			}
			docs = append(docs, domain.Document{
				ID:          item.ID,
				Name:        item.Name,
				WebURL:      item.WebURL,
				Size:        item.Size,
				DownloadURL: item.DownloadURL,
			})
		}
		next = page.NextLink
	}

	g.log.Info("listed documents", slog.String("site_id", site), slog.Int("count", len(docs)))
	return docs, nil
}

func (g *Graph) GetMetadata(ctx context.Context, siteID, documentID string) (domain.Document, error) {
	site, err := g.site(siteID)
	if err != nil {
		return domain.Document{}, err
	}

	var item driveItem
	if err := g.get(ctx, g.url("/sites/%s/drive/items/%s", site, documentID), &item); err != nil {
		return domain.Document{}, fmt.Errorf("failed to get metadata for document %s: %w", documentID, err)
	}

	return item.document(), nil
}

func (g *Graph) GetContent(ctx context.Context, siteID, documentID string) (string, error) {
	body, _, name, err := g.open(ctx, siteID, documentID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to download document %s: %w", domain.ErrUpstreamUnavailable, documentID, err)
	}
	g.log.Info("downloaded document", slog.String("document_id", documentID), slog.Int("bytes", len(data)))

	text, err := g.readers.ReadBytes(name, data)
	if errors.Is(err, readers.ErrUnsupported) {
		return string(data), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", name, err)
	}

	return text, nil
}

// Download streams the raw file of a document on the default site.
func (g *Graph) Download(ctx context.Context, documentID string) (io.ReadCloser, string, string, error) {
	return g.open(ctx, "", documentID)
}

func (g *Graph) open(ctx context.Context, siteID, documentID string) (io.ReadCloser, string, string, error) {
	meta, err := g.GetMetadata(ctx, siteID, documentID)
	if err != nil {
		return nil, "", "", err
	}

	if meta.DownloadURL == "" {
		return nil, "", "", fmt.Errorf("%w: no download url available for document %s", domain.ErrNotFound, documentID)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.DownloadURL, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.download.Do(req)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: failed to download document %s: %w", domain.ErrUpstreamUnavailable, documentID, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", "", fmt.Errorf("%w: failed to download document %s: %s", domain.ErrUpstreamUnavailable, documentID, resp.Status)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(meta.Name))
	}
	if ct == "" {
		ct = "application/octet-stream"
	}

	return resp.Body, ct, meta.Name, nil
}

// Sites lists the sites visible to the application credentials.
func (g *Graph) Sites(ctx context.Context) ([]domain.Site, error) {
	var resp struct {
		Value []struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
			WebURL      string `json:"webUrl"`
		} `json:"value"`
	}
	if err := g.get(ctx, g.cfg.GraphURL+"/sites?search=*", &resp); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	sites := make([]domain.Site, 0, len(resp.Value))
	for _, s := range resp.Value {
		sites = append(sites, domain.Site{ID: s.ID, DisplayName: s.DisplayName, WebURL: s.WebURL})
	}

	return sites, nil
}

func (g *Graph) site(siteID string) (string, error) {
	if siteID != "" {
		return siteID, nil
	}
	if g.cfg.SiteID == "" {
		return "", fmt.Errorf("%w: sharepoint site id is not set", domain.ErrInvalidConfiguration)
	}
	return g.cfg.SiteID, nil
}

// url builds a Graph URL with every id escaped as a single path segment.
// Site ids contain commas that Graph expects unescaped.
func (g *Graph) url(format string, ids ...string) string {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, strings.ReplaceAll(url.PathEscape(id), "%2C", ","))
	}

	return g.cfg.GraphURL + fmt.Sprintf(format, args...)
}

func (g *Graph) get(ctx context.Context, reqURL string, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		g.log.Error("graph request failed",
			slog.String("url", reqURL),
			slog.Int("status", resp.StatusCode),
			slog.String("response", string(body)))

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", domain.ErrAuthenticationFailed, resp.Status)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, resp.Status)
		}
		return fmt.Errorf("%w: %s", domain.ErrUpstreamUnavailable, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
