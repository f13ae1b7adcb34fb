package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListAndGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/timetables":
			_, _ = w.Write([]byte(`{"timetables":[{"id":"img_0","title":"1年1組"},{"id":"excel_1","title":"Untitled"}]}`))
		case "/timetable/img_0":
			_, _ = w.Write([]byte(`{"title":"1年1組","schedule":{"Monday":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		}
	}))
	defer srv.Close()

	out, err := execute(t, "--server", srv.URL, "list")
	require.NoError(t, err)
	assert.Equal(t, "img_0\t1年1組\nexcel_1\tUntitled\n", out)

	out, err = execute(t, "--server", srv.URL, "get", "img_0")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "1年1組"`)
	assert.NotContains(t, out, `"id"`)

	_, err = execute(t, "--server", srv.URL, "get", "img_9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestUploadSendsFileGradeAndToken(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token.json")
	require.NoError(t, saveToken(tokenFile, "tok-123"))
	file := filepath.Join(dir, "week.png")
	require.NoError(t, os.WriteFile(file, []byte("png-bytes"), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.Equal(t, "/upload", r.URL.Path) {
			return
		}
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		f, fh, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "week.png", fh.Filename)
		assert.Equal(t, "png-bytes", string(data))
		assert.Equal(t, "小学1年", r.FormValue("grade"))
		assert.Empty(t, r.FormValue("level"))
		_, _ = w.Write([]byte(`{"id":"img_0","data":{"title":"t","schedule":{}}}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--server", srv.URL, "--token-file", tokenFile, "upload", file, "--grade", "小学1年")
	require.NoError(t, err)

	var got struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "img_0", got.ID)
}

func TestTokenSavesResponse(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "nested", "token.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok-abc","expires_at":"2030-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "--server", srv.URL, "--token-file", tokenFile, "token", "--password", "wrong")
	require.Error(t, err)

	out, err := execute(t, "--server", srv.URL, "--token-file", tokenFile, "token", "--password", "hunter2")
	require.NoError(t, err)
	assert.Contains(t, out, "token saved")

	tok, err := readToken(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok)
}

func TestTaxonomyCheck(t *testing.T) {
	out, err := execute(t, "taxonomy", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "小学1年\t8 subjects\t国語, 算数")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
elementary:
  "1":
    国語:
      aliases: [こく]
      color: "#FDE2E4"
    算数:
      aliases: [こく]
      color: "#E1F7FD"
`), 0o600))
	_, err = execute(t, "taxonomy", "check", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous alias")
}

func TestHashPassword(t *testing.T) {
	out, err := execute(t, "hash-password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "$2a$")
}

func TestWebsocketURL(t *testing.T) {
	u, err := websocketURL("https://timetables.example.com/api", "/ws")
	require.NoError(t, err)
	assert.Equal(t, "wss://timetables.example.com/ws", u)
}

func TestReadTokenMissing(t *testing.T) {
	tok, err := readToken(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Empty(t, tok)
}
