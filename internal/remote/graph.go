package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"gallery-index/internal/apperr"
	"gallery-index/internal/logging"
)

const (
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	defaultGraphScope   = "https://graph.microsoft.com/.default"
	defaultGraphTimeout = 30 * time.Second

	// maxContentBytes caps a single download.
	maxContentBytes = 256 << 20
)

// GraphConfig identifies the SharePoint drive folder holding the galleries
// and the application credentials used to read it.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	SiteID       string
	DriveID      string
	RootFolderID string
	Timeout      time.Duration

	// TokenURL overrides the Azure AD token endpoint derived from TenantID.
	TokenURL string
}

// Graph is a Store backed by Microsoft Graph.
type Graph struct {
	config     GraphConfig
	baseURL    string
	httpClient *http.Client
}

// GraphOption configures a Graph adapter.
type GraphOption func(*Graph)

// WithBaseURL overrides the Graph API root. Used by tests.
func WithBaseURL(u string) GraphOption {
	return func(g *Graph) {
		g.baseURL = u
	}
}

// WithHTTPClient replaces the authenticated client. The caller is then
// responsible for attaching credentials.
func WithHTTPClient(c *http.Client) GraphOption {
	return func(g *Graph) {
		g.httpClient = c
	}
}

// NewGraph creates a Graph adapter. Unless WithHTTPClient is given, requests
// carry a bearer token obtained with the client-credentials flow; tokens are
// cached and refreshed by the oauth2 transport.
func NewGraph(config GraphConfig, opts ...GraphOption) *Graph {
	if config.Timeout <= 0 {
		config.Timeout = defaultGraphTimeout
	}

	g := &Graph{
		config:  config,
		baseURL: defaultGraphBaseURL,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.httpClient == nil {
		tokenURL := config.TokenURL
		if tokenURL == "" {
			tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(config.TenantID))
		}
		cc := clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{defaultGraphScope},
		}
		base := &http.Client{Timeout: config.Timeout}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		g.httpClient = cc.Client(ctx)
		g.httpClient.Timeout = config.Timeout
	}

	return g
}

type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	WebURL               string    `json:"webUrl"`
	DownloadURL          string    `json:"@microsoft.graph.downloadUrl"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	Image *struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"image"`
	Photo *struct {
		CameraMake          string  `json:"cameraMake"`
		CameraModel         string  `json:"cameraModel"`
		FNumber             float64 `json:"fNumber"`
		FocalLength         float64 `json:"focalLength"`
		ExposureNumerator   float64 `json:"exposureNumerator"`
		ExposureDenominator float64 `json:"exposureDenominator"`
		ISO                 int     `json:"iso"`
		Orientation         int     `json:"orientation"`
	} `json:"photo"`
}

type driveItemPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

func (d *driveItem) toItem() Item {
	item := Item{
		ID:           d.ID,
		Name:         d.Name,
		Size:         d.Size,
		LastModified: d.LastModifiedDateTime,
		WebURL:       d.WebURL,
		DownloadURL:  d.DownloadURL,
		IsFolder:     d.Folder != nil,
	}
	if d.File != nil {
		item.MimeType = d.File.MimeType
	}
	if d.Image != nil && d.Image.Width > 0 && d.Image.Height > 0 {
		w, h := d.Image.Width, d.Image.Height
		item.Width, item.Height = &w, &h
	}
	if d.Photo != nil {
		item.Photo = &Photo{
			CameraMake:          d.Photo.CameraMake,
			CameraModel:         d.Photo.CameraModel,
			FNumber:             d.Photo.FNumber,
			FocalLength:         d.Photo.FocalLength,
			ExposureNumerator:   d.Photo.ExposureNumerator,
			ExposureDenominator: d.Photo.ExposureDenominator,
			ISO:                 d.Photo.ISO,
			Orientation:         d.Photo.Orientation,
		}
	}
	return item
}

func (g *Graph) itemURL(id, suffix string) string {
	return fmt.Sprintf("%s/sites/%s/drives/%s/items/%s%s",
		g.baseURL, url.PathEscape(g.config.SiteID), url.PathEscape(g.config.DriveID), url.PathEscape(id), suffix)
}

// ListCollections lists the folders under the configured root folder.
func (g *Graph) ListCollections(ctx context.Context) (collections []Collection, err error) {
	start := time.Now()
	defer func() { recordRequest(opListCollections, start, err) }()

	q := url.Values{}
	q.Set("$filter", "folder ne null")
	q.Set("$orderby", "name asc")

	items, err := g.listChildren(ctx, opListCollections, g.itemURL(g.config.RootFolderID, "/children")+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	collections = make([]Collection, 0, len(items))
	for i := range items {
		d := &items[i]
		if d.Folder == nil {
			continue
		}
		collections = append(collections, Collection{
			ID:           d.ID,
			Name:         d.Name,
			ChildCount:   d.Folder.ChildCount,
			LastModified: d.LastModifiedDateTime,
			WebURL:       d.WebURL,
		})
	}
	return collections, nil
}

// ListItems lists every child of a collection, following pagination links.
func (g *Graph) ListItems(ctx context.Context, collectionID string) (items []Item, err error) {
	start := time.Now()
	defer func() { recordRequest(opListItems, start, err) }()

	children, err := g.listChildren(ctx, opListItems, g.itemURL(collectionID, "/children"))
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("gallery", collectionID)
		}
		return nil, err
	}

	items = make([]Item, 0, len(children))
	for i := range children {
		items = append(items, children[i].toItem())
	}
	return items, nil
}

// FirstItem returns the first file of a collection by name.
func (g *Graph) FirstItem(ctx context.Context, collectionID string) (item *Item, err error) {
	start := time.Now()
	defer func() { recordRequest(opFirstItem, start, err) }()

	q := url.Values{}
	q.Set("$top", "1")
	q.Set("$filter", "file ne null")
	q.Set("$orderby", "name asc")

	var page driveItemPage
	if err := g.getJSON(ctx, opFirstItem, g.itemURL(collectionID, "/children")+"?"+q.Encode(), &page); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("gallery", collectionID)
		}
		return nil, err
	}
	for i := range page.Value {
		if page.Value[i].File != nil {
			it := page.Value[i].toItem()
			return &it, nil
		}
	}
	return nil, nil
}

// GetItem fetches one drive item.
func (g *Graph) GetItem(ctx context.Context, id string) (item *Item, err error) {
	start := time.Now()
	defer func() { recordRequest(opGetItem, start, err) }()

	var d driveItem
	if err := g.getJSON(ctx, opGetItem, g.itemURL(id, ""), &d); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("item", id)
		}
		return nil, err
	}
	it := d.toItem()
	return &it, nil
}

// GetBytes downloads an item's content. Graph answers with a redirect to a
// pre-authenticated download URL, which the HTTP client follows.
func (g *Graph) GetBytes(ctx context.Context, id string) (data []byte, err error) {
	start := time.Now()
	defer func() { recordRequest(opGetBytes, start, err) }()

	resp, err := g.do(ctx, opGetBytes, g.itemURL(id, "/content"))
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("image", id)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return nil, unavailable(opGetBytes, fmt.Errorf("read content: %w", err))
	}
	return data, nil
}

// listChildren walks @odata.nextLink until the listing is complete.
func (g *Graph) listChildren(ctx context.Context, op, firstURL string) ([]driveItem, error) {
	var all []driveItem
	next := firstURL
	for pages := 0; next != ""; pages++ {
		var page driveItemPage
		if err := g.getJSON(ctx, op, next, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Value...)
		next = page.NextLink
		if pages > 0 {
			logging.Debug("Graph %s: fetched page %d (%d items so far)", op, pages+1, len(all))
		}
	}
	return all, nil
}

func (g *Graph) getJSON(ctx context.Context, op, u string, out any) error {
	resp, err := g.do(ctx, op, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return unavailable(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// do performs a GET and classifies the response. The caller closes the body
// of a successful response.
func (g *Graph) do(ctx context.Context, op, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, unavailable(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(op, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, apperr.NotFound("item", u)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		logging.Warn("Graph %s failed: status %d: %s", op, resp.StatusCode, string(body))
		return nil, &apperr.RemoteUnavailableError{Op: op, StatusCode: resp.StatusCode}
	}
}

var _ Store = (*Graph)(nil)
