package rules

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompileExclusions_FirstMatchWins(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"rules":[
		{"pattern":"sample","target":"name","item_type":"file","mode":"contains"},
		{"pattern":"keep","target":"name","item_type":"any","mode":"exact"}
	]}`)

	f, err := CompileExclusions(raw, discardLogger())
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())

	assert.True(t, f.ShouldExclude("Sample.mkv", "/a/Sample.mkv", false))
	assert.True(t, f.ShouldExclude("keep", "/a/keep", true))
	assert.False(t, f.ShouldExclude("movie.mkv", "/a/movie.mkv", false))
}

func TestExclusionRule_Modes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rule     string
		itemName string
		isFolder bool
		want     bool
	}{
		{"contains", `{"pattern":"tmp","mode":"contains"}`, "a.tmp.bak", false, true},
		{"starts_with", `{"pattern":"._","mode":"starts_with"}`, "._meta", false, true},
		{"ends_with", `{"pattern":".nfo","mode":"ends_with"}`, "movie.nfo", false, true},
		{"exact miss", `{"pattern":"movie","mode":"exact"}`, "movie.nfo", false, false},
		{"regex", `{"pattern":"^S\\d+E\\d+","mode":"regex"}`, "S01E02.mkv", false, true},
		{"extension with dot", `{"pattern":".torrent","target":"extension","mode":"exact"}`, "a.torrent", false, true},
		{"extension folder has none", `{"pattern":"torrent","target":"extension","mode":"exact"}`, "a.torrent.d", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := CompileExclusions([]byte(`{"rules":[`+tt.rule+`]}`), discardLogger())
			require.NoError(t, err)
			require.Equal(t, 1, f.Len())

			got := f.ShouldExclude(tt.itemName, "/share/"+tt.itemName, tt.isFolder)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExclusionRule_ExtensionFolderRule(t *testing.T) {
	t.Parallel()

	// The extension rule above matched the folder only through the "a.torrent.d"
	// name check; a folder-typed rule never matches files and vice versa.
	raw := []byte(`{"rules":[{"pattern":"Extras","item_type":"folder","mode":"exact"}]}`)

	f, err := CompileExclusions(raw, discardLogger())
	require.NoError(t, err)

	assert.True(t, f.ShouldExclude("Extras", "/s/Extras", true))
	assert.False(t, f.ShouldExclude("Extras", "/s/Extras", false))
}

func TestExclusionRule_CaseSensitivity(t *testing.T) {
	t.Parallel()

	insensitive, err := CompileExclusions(
		[]byte(`{"rules":[{"pattern":"SAMPLE","mode":"contains"}]}`), discardLogger())
	require.NoError(t, err)
	assert.True(t, insensitive.ShouldExclude("sample.mkv", "/s/sample.mkv", false))

	sensitive, err := CompileExclusions(
		[]byte(`{"rules":[{"pattern":"SAMPLE","mode":"contains","case_sensitive":true}]}`), discardLogger())
	require.NoError(t, err)
	assert.False(t, sensitive.ShouldExclude("sample.mkv", "/s/sample.mkv", false))
}

func TestCompileExclusions_DropsInvalidEntries(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"rules":[
		{"pattern":"ok","mode":"contains"},
		{"pattern":"[","mode":"regex"},
		{"pattern":"x","mode":"no_such_mode"},
		{"pattern":"","mode":"contains"},
		{"pattern":"y","target":"no_such_target","mode":"contains"}
	]}`)

	f, err := CompileExclusions(raw, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
}

func TestNilFilterExcludesNothing(t *testing.T) {
	t.Parallel()

	var f *ItemFilter
	assert.False(t, f.ShouldExclude("anything", "/anything", false))
	assert.Equal(t, 0, f.Len())
}

func TestCompileRenames_Apply(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"rules":[
		{"match_regex":"\\[.*?\\]","replace_string":"","target_scope":"name"},
		{"match_regex":"^/old","replace_string":"/new","target_scope":"path","case_sensitive":true}
	]}`)

	renames, err := CompileRenames(raw, discardLogger())
	require.NoError(t, err)
	require.Len(t, renames, 2)

	got, ok := renames[0].Apply("[group] ep01.mkv", "/s/[group] ep01.mkv")
	require.True(t, ok)
	assert.Equal(t, " ep01.mkv", got)

	_, ok = renames[0].Apply("ep01.mkv", "/s/ep01.mkv")
	assert.False(t, ok, "unchanged value reports no rename")

	got, ok = renames[1].Apply("ep01.mkv", "/old/ep01.mkv")
	require.True(t, ok)
	assert.Equal(t, "/new/ep01.mkv", got)
	assert.Equal(t, TargetPath, renames[1].Scope())
}

func TestApplyRenames_FirstChangeWins(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"rules":[
		{"match_regex":"\\.chs\\.","replace_string":"."},
		{"match_regex":"ep","replace_string":"E"}
	]}`)

	renames, err := CompileRenames(raw, discardLogger())
	require.NoError(t, err)

	// First rule changes the name; the second is not consulted.
	assert.Equal(t, "ep01.mkv", ApplyRenames(renames, "ep01.chs.mkv", "/s/ep01.chs.mkv"))
	// First rule is a no-op here, the second applies.
	assert.Equal(t, "E01.mkv", ApplyRenames(renames, "ep01.mkv", "/s/ep01.mkv"))
	// No rule applies.
	assert.Equal(t, "other.mkv", ApplyRenames(renames, "other.mkv", "/s/other.mkv"))
}

func TestCompileRenames_DropsInvalidEntries(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"rules":[
		{"match_regex":"(","replace_string":"x"},
		{"match_regex":"","replace_string":"x"},
		{"match_regex":"ok","replace_string":"fine"}
	]}`)

	renames, err := CompileRenames(raw, discardLogger())
	require.NoError(t, err)
	assert.Len(t, renames, 1)
}

func TestDecodeRules_BadJSON(t *testing.T) {
	t.Parallel()

	_, err := CompileExclusions([]byte(`{"rules":`), discardLogger())
	require.Error(t, err)

	_, err = CompileRenames([]byte(`not json`), discardLogger())
	require.Error(t, err)
}
