package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func jsonObject(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if _, ok := m["history"]; !ok {
		return errors.New("missing history")
	}
	return nil
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "player_summaries")
	s := NewFileStore(dir, jsonObject)

	require.Equal(t, Miss, s.Get(1).Status)

	etag, err := s.Put(1, map[string]any{"history": []any{}})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "player_1.json"))

	e := s.Get(1)
	require.Equal(t, Hit, e.Status)
	require.Equal(t, etag, e.ETag)
	require.Equal(t, ComputeETag(e.Data), e.ETag)
}

func TestFileStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, jsonObject)

	require.NoError(t, os.WriteFile(s.Path(5), []byte("{not json"), 0o644))
	e := s.Get(5)
	require.Equal(t, Corrupt, e.Status)
	require.Error(t, e.Err)
	require.Nil(t, e.Data)

	require.NoError(t, os.WriteFile(s.Path(6), []byte(`{"fixtures": []}`), 0o644))
	require.Equal(t, Corrupt, s.Get(6).Status)

	// overwriting repairs the entry
	_, err := s.Put(5, map[string]any{"history": []any{}})
	require.NoError(t, err)
	require.Equal(t, Hit, s.Get(5).Status)
}

func TestFileStoreWithoutVerifier(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, nil)
	require.NoError(t, os.WriteFile(s.Path(9), []byte("anything"), 0o644))
	require.Equal(t, Hit, s.Get(9).Status)
}

func TestComputeETag(t *testing.T) {
	a := ComputeETag([]byte("abc"))
	require.Equal(t, a, ComputeETag([]byte("abc")))
	require.NotEqual(t, a, ComputeETag([]byte("abd")))
	require.Regexp(t, `^W/"[0-9a-f]{16}"$`, a)
	require.Equal(t, "miss", Miss.String())
	require.Equal(t, "corrupt", Corrupt.String())
}

func TestFileStorePutRejectsUnverifiable(t *testing.T) {
	s := NewFileStore(t.TempDir(), jsonObject)

	_, err := s.Put(3, map[string]any{"fixtures": []any{}})
	require.ErrorContains(t, err, "missing history")
	require.Equal(t, Corrupt, s.Get(3).Status)
}
