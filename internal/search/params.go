package search

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"gallery-index/internal/apperr"
	"gallery-index/internal/database"
)

// Orientation filters images by aspect.
type Orientation string

const (
	OrientationAny       Orientation = "any"
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
	OrientationSquare    Orientation = "square"
)

// matches reports whether img has the orientation. Images with unknown
// dimensions match only OrientationAny.
func (o Orientation) matches(img *database.Image) bool {
	if o == OrientationAny {
		return true
	}
	if img.Width == nil || img.Height == nil {
		return false
	}
	w, h := *img.Width, *img.Height
	switch o {
	case OrientationLandscape:
		return w > h
	case OrientationPortrait:
		return h > w
	case OrientationSquare:
		return w == h
	default:
		return false
	}
}

// Params are the inputs of a search. Years and Months accept repeated values
// and comma-separated lists; months may be zero-padded.
type Params struct {
	Query           string
	StartDate       string
	EndDate         string
	Years           []string
	Months          []string
	Orientation     string
	CollectionsOnly bool
	Page            int
	PageSize        int
}

// CacheParams returns every parameter, defaults filled in, for building a
// cache key. Equivalent requests yield equal maps.
func (p Params) CacheParams() (map[string]string, error) {
	f, err := p.normalize()
	if err != nil {
		return nil, err
	}

	years := slices.Sorted(maps.Keys(f.years))
	var months []string
	for _, m := range slices.Sorted(maps.Keys(f.months)) {
		months = append(months, strconv.Itoa(m))
	}

	return map[string]string{
		"q":               f.query,
		"startDate":       f.startDate,
		"endDate":         f.endDate,
		"year":            strings.Join(years, ","),
		"month":           strings.Join(months, ","),
		"orientation":     string(f.orientation),
		"collectionsOnly": strconv.FormatBool(f.collectionsOnly),
		"page":            strconv.Itoa(f.page),
		"limit":           strconv.Itoa(f.pageSize),
	}, nil
}

// filters is the validated form of Params.
type filters struct {
	query           string
	startDate       string
	endDate         string
	years           map[string]bool
	months          map[int]bool
	orientation     Orientation
	collectionsOnly bool
	page            int
	pageSize        int
}

func (p Params) normalize() (*filters, error) {
	f := &filters{
		query:           strings.TrimSpace(p.Query),
		collectionsOnly: p.CollectionsOnly,
		page:            p.Page,
		pageSize:        p.PageSize,
	}

	switch {
	case f.page == 0:
		f.page = 1
	case f.page < 0:
		return nil, apperr.Invalid("page", "must be a positive integer")
	}
	switch {
	case f.pageSize == 0:
		f.pageSize = DefaultPageSize
	case f.pageSize < 0:
		return nil, apperr.Invalid("limit", "must be a positive integer")
	case f.pageSize > MaxPageSize:
		f.pageSize = MaxPageSize
	}

	var err error
	if f.startDate, err = parseDate("startDate", p.StartDate); err != nil {
		return nil, err
	}
	if f.endDate, err = parseDate("endDate", p.EndDate); err != nil {
		return nil, err
	}

	for _, y := range splitValues(p.Years) {
		if len(y) != 4 || !isDigits(y) {
			return nil, apperr.Invalid("year", "must be a 4-digit year")
		}
		if f.years == nil {
			f.years = map[string]bool{}
		}
		f.years[y] = true
	}

	for _, m := range splitValues(p.Months) {
		n, err := strconv.Atoi(m)
		if err != nil || !isDigits(m) || n < 1 || n > 12 || len(m) > 2 {
			return nil, apperr.Invalid("month", "must be between 1 and 12")
		}
		if f.months == nil {
			f.months = map[int]bool{}
		}
		f.months[n] = true
	}

	switch o := Orientation(strings.ToLower(strings.TrimSpace(p.Orientation))); o {
	case "", OrientationAny:
		f.orientation = OrientationAny
	case OrientationLandscape, OrientationPortrait, OrientationSquare:
		f.orientation = o
	default:
		return nil, apperr.Invalid("orientation", "must be landscape, portrait, square or any")
	}

	return f, nil
}

// matchesDates applies the date range and year/month buckets to a gallery.
// A gallery without a capture date fails every active date filter.
func (f *filters) matchesDates(g *database.Gallery) bool {
	active := f.startDate != "" || f.endDate != "" || len(f.years) > 0 || len(f.months) > 0
	if !active {
		return true
	}
	if g.CaptureDate == nil || len(*g.CaptureDate) != len(time.DateOnly) {
		return false
	}

	date := *g.CaptureDate
	if f.startDate != "" && date < f.startDate {
		return false
	}
	if f.endDate != "" && date > f.endDate {
		return false
	}
	if len(f.years) > 0 && !f.years[date[:4]] {
		return false
	}
	if len(f.months) > 0 {
		m, err := strconv.Atoi(date[5:7])
		if err != nil || !f.months[m] {
			return false
		}
	}
	return true
}

func parseDate(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return "", apperr.Invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return t.Format(time.DateOnly), nil
}

// splitValues flattens repeated and comma-separated values.
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
