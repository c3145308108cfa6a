package geonames

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlacesLineEndings(t *testing.T) {
	data := []byte(rowParis + "\r\n\r\n" + rowBerlin + "\r\n\n")

	recs, stats, err := ParsePlaces(data, ParseStrict)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ParseStats{Rows: 2}, stats)
	assert.Equal(t, "2023-11-02", recs[1].ModifiedAt.Format(dateLayout))
}

func TestParsePlacesEmptyInput(t *testing.T) {
	recs, stats, err := ParsePlaces(nil, ParseStrict)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Zero(t, stats.Rows)
}

func TestParsePlacesLists(t *testing.T) {
	fields := strings.Split(rowParis, "\t")
	fields[colAlternateNames] = ",Lutece,,Parigi,"
	fields[colCC2] = "FR,MC"

	recs, _, err := ParsePlaces([]byte(strings.Join(fields, "\t")), ParseStrict)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"Lutece", "Parigi"}, recs[0].AlternateNames)
	assert.Equal(t, []string{"FR", "MC"}, recs[0].CC2)
}

func TestParsePlacesMalformed(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(f []string) []string
		field string
	}{
		{"missing id", func(f []string) []string { f[colID] = ""; return f }, "geonameid"},
		{"non numeric id", func(f []string) []string { f[colID] = "x1"; return f }, "geonameid"},
		{"bad longitude", func(f []string) []string { f[colLongitude] = "east"; return f }, "longitude"},
		{"bad population", func(f []string) []string { f[colPopulation] = "1e6"; return f }, "population"},
		{"bad dem", func(f []string) []string { f[colDEM] = "-"; return f }, "dem"},
		{"bad date", func(f []string) []string { f[colModified] = "2024/01/15"; return f }, "modification date"},
		{"extra column", func(f []string) []string { return append(f, "surplus") }, ""},
		{"short row", func(f []string) []string { return f[:5] }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := strings.Join(tt.edit(strings.Split(rowParis, "\t")), "\t")
			data := placeData(rowBerlin, line, rowOslo)

			recs, stats, err := ParsePlaces(data, ParseTolerant)
			require.NoError(t, err)
			assert.Len(t, recs, 3)
			assert.Equal(t, ParseStats{Rows: 3, Malformed: 1}, stats)

			recs, _, err = ParsePlaces(data, ParseStrict)
			require.Error(t, err)
			assert.Nil(t, recs)
			var re *RowError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, 2, re.Line)
			assert.Equal(t, tt.field, re.Field)
		})
	}
}

func TestParsePlacesTolerantZeroValues(t *testing.T) {
	fields := strings.Split(rowParis, "\t")
	fields[colLatitude] = "n/a"
	fields[colPopulation] = "lots"

	recs, stats, err := ParsePlaces([]byte(strings.Join(fields, "\t")), ParseTolerant)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, stats.Malformed)
	assert.Zero(t, recs[0].Latitude)
	assert.Zero(t, recs[0].Population)
	assert.InDelta(t, 2.3488, recs[0].Longitude, 1e-9)
	assert.Equal(t, "Europe/Paris", recs[0].Timezone)
}

func TestParseDeletions(t *testing.T) {
	data := []byte("1\tA\tmerged\r\nbad\tB\tc\n3\tC\n")

	recs, stats, err := ParseDeletions(data, ParseTolerant)
	require.NoError(t, err)
	assert.Equal(t, []DeletionRecord{
		{ID: 1, Name: "A", Comment: "merged"},
		{ID: 0, Name: "B", Comment: "c"},
		{ID: 3, Name: "C"},
	}, recs)
	assert.Equal(t, ParseStats{Rows: 3, Malformed: 2}, stats)

	_, _, err = ParseDeletions(data, ParseStrict)
	var re *RowError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Line)
	assert.Equal(t, "line 2: field geonameid: strconv.ParseInt: parsing \"bad\": invalid syntax", re.Error())
}

func TestParseScannerLimit(t *testing.T) {
	huge := strings.Repeat("x", 5*1024*1024)
	_, _, err := ParseDeletions([]byte("1\t"+huge+"\tc\n"), ParseTolerant)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan rows")
}
