package spclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/recon"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
)

// listViewFields are the projected fields needed to reconcile items. Anything
// beyond these is dead weight on a 5000-row page.
var listViewFields = []string{
	"ID",
	"FileLeafRef",
	"FileRef",
	"FSObjType",
	"File_x0020_Size",
	"Created",
	"Modified",
	"owshiddenversion",
}

// PagedListFetcher streams every item of a document library through the
// listing endpoint, following the opaque continuation token the service
// returns until the final page.
type PagedListFetcher struct {
	exec    *ThrottleExecutor
	siteURL string
	logger  *logging.Logger
}

// NewPagedListFetcher creates a fetcher for one site.
func NewPagedListFetcher(exec *ThrottleExecutor, siteURL string, logger *logging.Logger) *PagedListFetcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &PagedListFetcher{
		exec:    exec,
		siteURL: strings.TrimRight(siteURL, "/"),
		logger:  logger.WithComponent("list_fetcher"),
	}
}

type listPage struct {
	Rows     []Row  `json:"Row"`
	NextHref string `json:"NextHref"`
}

// EnumerateItems walks every item in the named library, invoking fn per item
// in page order. It returns the number of items yielded. Rows missing the
// identity fields are skipped with a warning. A transport failure or a
// callback error aborts the walk wrapped in an EnumerationError carrying the
// partial count.
func (f *PagedListFetcher) EnumerateItems(ctx context.Context, library string, pageSize int, fn func(recon.RemoteItem) error) (int, error) {
	endpoint := fmt.Sprintf("%s/_api/web/lists/GetByTitle('%s')/RenderListDataAsStream",
		f.siteURL, url.PathEscape(strings.ReplaceAll(library, "'", "''")))
	body := renderListBody(pageSize)

	yielded := 0
	token := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return yielded, &EnumerationError{Yielded: yielded, Err: err}
		}

		requestURL := endpoint
		if token != "" {
			// NextHref arrives as an opaque query string beginning with "?".
			requestURL += token
		}

		resp, err := f.exec.Do(ctx, func() (*http.Request, error) {
			req, err := http.NewRequest(http.MethodPost, requestURL, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json;odata=nometadata")
			req.Header.Set("Content-Type", "application/json;odata=nometadata")
			return req, nil
		})
		if err != nil {
			return yielded, &EnumerationError{Yielded: yielded, Err: err}
		}

		data, err := readBody(resp)
		if err != nil {
			return yielded, &EnumerationError{Yielded: yielded, Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			return yielded, &EnumerationError{
				Yielded: yielded,
				Err:     &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint},
			}
		}

		var pg listPage
		if err := json.Unmarshal(data, &pg); err != nil {
			return yielded, &EnumerationError{Yielded: yielded, Err: fmt.Errorf("decoding listing page: %w", err)}
		}

		for _, row := range pg.Rows {
			item, ok := itemFromRow(row)
			if !ok {
				f.logger.Warn("Skipping malformed listing row", "library", library, "page", page)
				continue
			}
			if err := fn(item); err != nil {
				return yielded, &EnumerationError{Yielded: yielded, Err: err}
			}
			yielded++
		}

		f.logger.SharePoint("Fetched listing page",
			"library", library,
			"page", page,
			"rows", len(pg.Rows),
			"total", yielded)

		// The final page announces itself either by dropping the continuation
		// token or by coming up short of the requested size.
		if pg.NextHref == "" || len(pg.Rows) < pageSize {
			return yielded, nil
		}
		token = pg.NextHref
	}
}

// CollectItems enumerates the library into a slice.
func (f *PagedListFetcher) CollectItems(ctx context.Context, library string, pageSize int) ([]recon.RemoteItem, error) {
	var items []recon.RemoteItem
	_, err := f.EnumerateItems(ctx, library, pageSize, func(item recon.RemoteItem) error {
		items = append(items, item)
		return nil
	})
	if err != nil {
		return items, err
	}
	return items, nil
}

func renderListBody(pageSize int) []byte {
	var fields strings.Builder
	for _, f := range listViewFields {
		fmt.Fprintf(&fields, `<FieldRef Name="%s"/>`, f)
	}
	viewXml := fmt.Sprintf(
		`<View Scope="RecursiveAll"><ViewFields>%s</ViewFields><RowLimit Paged="TRUE">%d</RowLimit></View>`,
		fields.String(), pageSize)

	payload := map[string]any{
		"parameters": map[string]any{
			"RenderOptions": 2, // ListData only
			"ViewXml":       viewXml,
		},
	}
	body, _ := json.Marshal(payload)
	return body
}

// itemFromRow converts a listing row into a domain item. Rows without the
// identity fields (id and server-relative path) are unusable for matching.
func itemFromRow(row Row) (recon.RemoteItem, bool) {
	id, ok := row.Int("ID")
	if !ok {
		return recon.RemoteItem{}, false
	}
	path := row.String("FileRef")
	if path == "" {
		return recon.RemoteItem{}, false
	}

	itemType := recon.ItemTypeFile
	if row.String("FSObjType") == "1" {
		itemType = recon.ItemTypeFolder
	}

	versions, _ := row.Int("owshiddenversion")

	return recon.RemoteItem{
		ID:           id,
		Name:         row.String("FileLeafRef"),
		Path:         path,
		Size:         row.Int64("File_x0020_Size"),
		VersionCount: versions,
		Created:      row.Time("Created"),
		Modified:     row.Time("Modified"),
		Type:         itemType,
	}, true
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
