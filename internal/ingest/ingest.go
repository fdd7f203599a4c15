// Package ingest reads tabular candidate batches (XLSX or CSV) and maps
// heterogeneous spreadsheet columns into CandidateSite values. Column headers
// are matched against known synonyms; anything unmapped is preserved as
// opaque metadata rather than discarded.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// Batch is the result of reading one input file. Rows that could not be
// parsed structurally land in Invalid; everything else becomes a site, with
// field-level validation (coordinates present, in range) left to the
// pipeline's validation phase.
type Batch struct {
	Sites   []model.CandidateSite
	Invalid []model.InvalidRow
}

// canonical column → accepted header spellings, compared lowercased with
// spaces and underscores stripped.
var headerSynonyms = map[string][]string{
	"id":      {"id", "siteid", "apn", "parcel", "parcelid", "parcelnumber", "key"},
	"address": {"address", "siteaddress", "streetaddress", "propertyaddress", "location"},
	"lat":     {"lat", "latitude", "y"},
	"lng":     {"lng", "lon", "long", "longitude", "x"},
	"acreage": {"acreage", "acres", "lotsize", "lotacres", "parcelacres", "sizeacres"},
	"price":   {"price", "listprice", "listingprice", "asking", "askingprice"},
	"county":  {"county", "jurisdiction", "countyname"},
}

var titleCaser = cases.Title(language.AmericanEnglish)

// ReadBatch reads an input batch file, dispatching on extension.
func ReadBatch(path string) (*Batch, error) {
	var header []string
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		header, rows, err = readXLSX(path)
	case ".csv":
		header, rows, err = readCSV(path)
	default:
		return nil, eris.Errorf("ingest: unsupported batch format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	return mapRows(header, rows)
}

func mapRows(header []string, rows [][]string) (*Batch, error) {
	if len(header) == 0 {
		return nil, eris.New("ingest: batch has no header row")
	}

	// Resolve each header cell to a canonical column or keep it as metadata.
	colFor := make(map[int]string, len(header))  // column index → canonical name
	metaFor := make(map[int]string, len(header)) // column index → original header
	seen := make(map[string]bool)
	for i, h := range header {
		canon := canonicalColumn(h)
		if canon != "" && !seen[canon] {
			colFor[i] = canon
			seen[canon] = true
			continue
		}
		if strings.TrimSpace(h) != "" {
			metaFor[i] = strings.TrimSpace(h)
		}
	}

	if !seen["address"] && !seen["id"] {
		return nil, eris.New("ingest: batch has neither an address nor an id column")
	}

	batch := &Batch{}
	ids := make(map[string]bool)

	for rowNum, row := range rows {
		if blankRow(row) {
			continue
		}

		site := model.CandidateSite{Metadata: map[string]string{}}
		for i, cell := range row {
			val := strings.TrimSpace(cell)
			if val == "" {
				continue
			}
			switch colFor[i] {
			case "id":
				site.ID = val
			case "address":
				site.Address = val
			case "lat":
				site.Latitude = parseFloat(val)
			case "lng":
				site.Longitude = parseFloat(val)
			case "acreage":
				site.Acreage = parseFloat(val)
			case "price":
				site.Price = parseFloat(val)
			case "county":
				site.County = NormalizeCounty(val)
			default:
				if name, ok := metaFor[i]; ok {
					site.Metadata[name] = val
				}
			}
		}
		if len(site.Metadata) == 0 {
			site.Metadata = nil
		}

		if site.ID == "" {
			site.ID = deriveID(site.Address, rowNum)
		}

		if ids[site.ID] {
			batch.Invalid = append(batch.Invalid, model.InvalidRow{
				RowNumber: rowNum + 2, // 1-based, after header
				SiteID:    site.ID,
				Address:   site.Address,
				Reason:    "duplicate site id",
			})
			continue
		}
		ids[site.ID] = true

		batch.Sites = append(batch.Sites, site)
	}

	return batch, nil
}

func canonicalColumn(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
	for canon, syns := range headerSynonyms {
		for _, s := range syns {
			if h == s {
				return canon
			}
		}
	}
	return ""
}

// NormalizeCounty title-cases a county name and strips a trailing "County"
// suffix so config market-tier lookups are spelling-insensitive.
func NormalizeCounty(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, " county")
	return titleCaser.String(strings.TrimSpace(n))
}

func parseFloat(s string) *float64 {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// deriveID produces a stable key for rows without an explicit identifier.
// The same input file always yields the same ids.
func deriveID(address string, rowNum int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", strings.ToLower(address), rowNum)))
	return "site-" + hex.EncodeToString(sum[:])[:12]
}
