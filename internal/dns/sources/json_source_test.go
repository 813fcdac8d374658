package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

func writeJSONFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewJSONSource_LoadsRecordsWithDefaults(t *testing.T) {
	path := writeJSONFixture(t, `{
		"example.com": [
			{"rdata": "9.9.9.9"},
			{"rdata": "abcd::1234", "rtype": "AAAA"}
		]
	}`)

	src, err := NewJSONSource(path)
	require.NoError(t, err)

	q, err := domain.NewQuestion(1, "example.com.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)
	got, err := src.Get(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{9, 9, 9, 9}, got[0].Data)

	qAAAA, err := domain.NewQuestion(2, "example.com.", domain.RRTypeAAAA, domain.RRClassIN)
	require.NoError(t, err)
	gotAAAA, err := src.Get(context.Background(), qAAAA)
	require.NoError(t, err)
	require.Len(t, gotAAAA, 1)
}

func TestNewJSONSource_UnknownRTypeErrors(t *testing.T) {
	path := writeJSONFixture(t, `{"example.com": [{"rdata": "x", "rtype": "BOGUS"}]}`)
	_, err := NewJSONSource(path)
	assert.Error(t, err)
}

func TestNewJSONSource_MissingFileErrors(t *testing.T) {
	_, err := NewJSONSource(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
