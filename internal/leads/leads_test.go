package leads

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLeads(t *testing.T) {
	csv := strings.Join([]string{
		"Email,Name,Company,Title,Industry",
		"l@example.com,Jordan Lee,Example Inc,CTO,Health",
		"m@example.com,Morgan Ray,Other Co,VP Eng,Fintech",
	}, "\n")

	parsed, err := ParseLeads(strings.NewReader(csv), 0)
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	assert.Equal(t, "l@example.com", parsed[0].Email)
	assert.Equal(t, "Jordan Lee", parsed[0].Name)
	assert.Equal(t, "Example Inc", parsed[0].Company)
	assert.Equal(t, "CTO", parsed[0].Title)
	assert.Equal(t, map[string]string{"Industry": "Health"}, parsed[0].Fields)
}

func TestParseLeadsHeaderCaseInsensitive(t *testing.T) {
	csv := "EMAIL,name\nl@example.com,Jordan"

	parsed, err := ParseLeads(strings.NewReader(csv), 0)
	require.NoError(t, err)
	assert.Equal(t, "Jordan", parsed[0].Name)
}

func TestParseLeadsSkipsBadRows(t *testing.T) {
	csv := strings.Join([]string{
		"Email,Name",
		",Empty Email",
		"ok@example.com,Fine",
	}, "\n")

	parsed, err := ParseLeads(strings.NewReader(csv), 0)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "ok@example.com", parsed[0].Email)
}

func TestParseLeadsMaxRows(t *testing.T) {
	csv := strings.Join([]string{
		"Email",
		"a@example.com",
		"b@example.com",
		"c@example.com",
	}, "\n")

	parsed, err := ParseLeads(strings.NewReader(csv), 2)
	require.NoError(t, err)
	assert.Len(t, parsed, 2)
}

func TestParseLeadsErrors(t *testing.T) {
	_, err := ParseLeads(strings.NewReader("Name\nJordan"), 0)
	assert.ErrorContains(t, err, "Email column")

	_, err = ParseLeads(strings.NewReader("Email,Name\n"), 0)
	assert.ErrorContains(t, err, "at least one data row")
}
