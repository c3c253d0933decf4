// Package extract reads registry listing, detail, and pagination markup with
// goquery and turns it into crawler records.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/registry-crawler/internal/crawler"
)

// Default selectors for the reference registry layout.
const (
	DefaultTableSelector      = "table"
	DefaultPaginationSelector = ".pagination li"
	DefaultPanelSelector      = ".panel-body"
	DefaultImageSelector      = ".panel-body .row .col-md-2 .thumbnail"
)

// detailColumn is the zero-based index of the cell holding the detail link.
const detailColumn = crawler.FieldCount

// Selectors locate the structural elements the extractor depends on.
type Selectors struct {
	Table      string
	Pagination string
	Panel      string
	Image      string
}

// Extractor implements crawler.Extractor. It is stateless and safe for
// concurrent use.
type Extractor struct {
	sel Selectors
}

// New builds an Extractor; empty selectors fall back to the defaults.
func New(sel Selectors) *Extractor {
	if sel.Table == "" {
		sel.Table = DefaultTableSelector
	}
	if sel.Pagination == "" {
		sel.Pagination = DefaultPaginationSelector
	}
	if sel.Panel == "" {
		sel.Panel = DefaultPanelSelector
	}
	if sel.Image == "" {
		sel.Image = DefaultImageSelector
	}
	return &Extractor{sel: sel}
}

// Listing extracts one record per data row of the first table. Rows without
// any td cell are header rows and are skipped. Short rows yield empty fields.
// The detail URL is the 10th cell's link href exactly as written.
func (e *Extractor) Listing(body []byte) ([]crawler.RowRecord, crawler.Structure) {
	doc, err := parse(body)
	if err != nil {
		return nil, crawler.StructureMalformed
	}
	table := doc.Find(e.sel.Table).First()
	if table.Length() == 0 {
		return nil, crawler.StructureMalformed
	}

	var records []crawler.RowRecord
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		var rec crawler.RowRecord
		for i := 0; i < crawler.FieldCount; i++ {
			rec.Fields[i] = strings.TrimSpace(cells.Eq(i).Text())
		}
		if href, ok := cells.Eq(detailColumn).Find("a").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			rec.DetailURL = href
		}
		records = append(records, rec)
	})
	if len(records) == 0 {
		return nil, crawler.StructureAbsent
	}
	return records, crawler.StructureFound
}

// DetailImage returns the src of the profile image exactly as written. A
// missing profile panel is reported as malformed; a panel without an image
// is simply absent.
func (e *Extractor) DetailImage(body []byte) (string, crawler.Structure) {
	doc, err := parse(body)
	if err != nil {
		return "", crawler.StructureMalformed
	}
	if doc.Find(e.sel.Panel).Length() == 0 {
		return "", crawler.StructureMalformed
	}
	src, ok := doc.Find(e.sel.Image).First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", crawler.StructureAbsent
	}
	return src, crawler.StructureFound
}

// PageCount reads the page count from the pagination control: the link in
// the second-to-last item carries the last page number in its page query
// parameter. Any failure yields 1.
func (e *Extractor) PageCount(body []byte) (int, crawler.Structure) {
	doc, err := parse(body)
	if err != nil {
		return 1, crawler.StructureMalformed
	}
	items := doc.Find(e.sel.Pagination)
	if items.Length() < 2 {
		return 1, crawler.StructureAbsent
	}
	href, ok := items.Eq(items.Length() - 2).Find("a").First().Attr("href")
	if !ok {
		return 1, crawler.StructureMalformed
	}
	n, ok := pageParam(href)
	if !ok {
		return 1, crawler.StructureMalformed
	}
	return n, crawler.StructureFound
}

func pageParam(href string) (int, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
