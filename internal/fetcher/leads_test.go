package fetcher

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadLeadsCSV(t *testing.T) {
	in := "Name, Phone Number ,State\n" +
		"Ann,(801) 555-0001,UT\n" +
		",,\n" +
		"Bob,385.555.0002,\n" +
		"Cy\n"

	leads, err := ReadLeadsCSV(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, leads, 3)

	assert.Equal(t, "(801) 555-0001", leads[0].PhoneNumber)
	assert.Equal(t, map[string]any{"Name": "Ann", "State": "UT"}, leads[0].Fields)
	assert.Equal(t, "385.555.0002", leads[1].PhoneNumber)
	assert.Equal(t, "", leads[2].PhoneNumber, "short rows pad with empty values")
	assert.Equal(t, "Cy", leads[2].Fields["Name"])
}

func TestReadLeadsCSV_HeaderVariants(t *testing.T) {
	for _, h := range []string{"phone", "PHONE_NUMBER", "phone-number", "Telephone", "\ufeffphone"} {
		leads, err := ReadLeadsCSV(context.Background(), strings.NewReader(h+"\n8015550001\n"))
		require.NoError(t, err, h)
		require.Len(t, leads, 1, h)
		assert.Equal(t, "8015550001", leads[0].PhoneNumber, h)
	}
}

func TestReadLeadsCSV_NoPhoneColumn(t *testing.T) {
	_, err := ReadLeadsCSV(context.Background(), strings.NewReader("name,email\nAnn,a@x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no phone column")
}

func TestReadLeadsCSV_Empty(t *testing.T) {
	leads, err := ReadLeadsCSV(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestReadLeadsXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"first_name", "phone"},
		{"Ann", "8015550001"},
		{"Bob", "555-0002"},
	})

	leads, err := ReadLeadsXLSX(path)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "8015550001", leads[0].PhoneNumber)
	assert.Equal(t, "Ann", leads[0].Fields["first_name"])
	assert.Equal(t, "555-0002", leads[1].PhoneNumber)
}

func TestReadLeadsJSON(t *testing.T) {
	in := `[{"phone_number":"8015550001","id":7},{"phone_number":"bad","name":"x"}]`

	leads, err := ReadLeadsJSON(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "8015550001", leads[0].PhoneNumber)
	assert.NotContains(t, leads[0].Fields, "phone_number")
	assert.Contains(t, leads[0].Fields, "id")
	assert.Equal(t, "bad", leads[1].PhoneNumber)
}

func TestReadLeadsJSON_NotArray(t *testing.T) {
	_, err := ReadLeadsJSON(context.Background(), strings.NewReader(`{"phone_number":"1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestReadLeads_ByExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "leads.csv")
	jsonPath := filepath.Join(dir, "leads.json")
	writeTestFile(t, csvPath, "phone\n8015550001\n")
	writeTestFile(t, jsonPath, `[{"phone_number":"8015550002"}]`)
	xlsxPath := createTestXLSX(t, [][]string{{"phone"}, {"8015550003"}})

	for path, want := range map[string]string{
		csvPath:  "8015550001",
		jsonPath: "8015550002",
		xlsxPath: "8015550003",
	} {
		leads, err := ReadLeads(context.Background(), path)
		require.NoError(t, err, path)
		require.Len(t, leads, 1, path)
		assert.Equal(t, want, leads[0].PhoneNumber, path)
	}

	_, err := ReadLeads(context.Background(), filepath.Join(dir, "leads.parquet"))
	assert.Error(t, err)
}

func TestReadLeadsJSON_Empty(t *testing.T) {
	leads, err := ReadLeadsJSON(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, leads)

	leads, err = ReadLeadsJSON(context.Background(), strings.NewReader("[]"))
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestReadLeadsJSON_BadElement(t *testing.T) {
	_, err := ReadLeadsJSON(context.Background(), strings.NewReader(`[{"phone_number":"1"}, 7]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json element 1")
}
