package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingURL(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("http://mis.molwa.gov.bd/freedom-fighter-list")
	require.NoError(t, err)
	cat := Category{ID: "3", Filters: Filters{
		"district_id": "",
		"name":        "",
		"page":        "99",
		"division_id": "7",
	}}

	raw := cat.ListingURL(base, "division_id", 2)
	got, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/freedom-fighter-list", got.Path)

	q := got.Query()
	assert.Equal(t, "3", q.Get("division_id"), "category wins over filters")
	assert.Equal(t, "2", q.Get("page"), "page wins over filters")
	assert.True(t, q.Has("district_id"), "empty filters are still sent")
	assert.Equal(t, "", q.Get("name"))
	assert.Equal(t, "http://mis.molwa.gov.bd/freedom-fighter-list", base.String(), "base is not mutated")
}

func TestRowRecordColumns(t *testing.T) {
	t.Parallel()

	r := RowRecord{DetailURL: "d", ImageURL: "i"}
	r.Fields[0] = "a"
	r.Fields[8] = "z"
	cols := r.Columns()
	require.Len(t, cols, FieldCount+2)
	assert.Equal(t, "a", cols[0])
	assert.Equal(t, "z", cols[8])
	assert.Equal(t, "d", cols[9])
	assert.Equal(t, "i", cols[10])
}

func TestStructureString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "found", StructureFound.String())
	assert.Equal(t, "absent", StructureAbsent.String())
	assert.Equal(t, "malformed", StructureMalformed.String())
	assert.Equal(t, "unknown", Structure(42).String())
}

func TestRunSummaryRecords(t *testing.T) {
	t.Parallel()

	s := RunSummary{Categories: []Summary{{RecordsWritten: 3}, {RecordsWritten: 4, RecordsFailed: 2}}}
	assert.Equal(t, 7, s.Records())
}
