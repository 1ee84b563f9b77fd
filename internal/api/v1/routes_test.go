package v1_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/pcf-tools/org-mgmt-server/internal/api/v1"
	"github.com/pcf-tools/org-mgmt-server/internal/cache"
)

// seededStore builds a store holding one populated context:
//
//	PCF_NPE/repo1 with spaces s1 (loaded) and s2 (load failed)
//	PCF_NPE/empty with no config loaded
func seededStore() *cache.Store {
	repo1 := cache.NewOrgEntry()
	repo1.Org = map[string]any{
		"org":      "Repo1",
		"metadata": map[string]any{"director": "Dana Smith"},
	}
	repo1.Space = map[string]any{"spaces": []any{"s2", "s1"}}
	repo1.Spaces["s1"] = &cache.SpaceEntry{
		Config:   map[string]any{"quota": "small"},
		Security: []any{map[string]any{"protocol": "tcp"}},
	}
	repo1.Spaces["s2"] = &cache.SpaceEntry{}

	snapshot := cache.NewSnapshot()
	snapshot.Contexts["PCF_NPE"] = cache.ContextEntry{
		"repo1": repo1,
		"empty": cache.NewOrgEntry(),
	}
	snapshot.Contexts["PCF_PRD"] = cache.ContextEntry{}

	store := cache.NewStore()
	store.Replace(snapshot)
	return store
}

func get(t *testing.T, handler http.Handler, path string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &decoded), "body: %s", body)
	}
	return rec.Code, decoded
}

func TestRouter_Index(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), func() {})

	code, body := get(t, handler, "/")

	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "/contexts")
	assert.Contains(t, body, "/contexts/{context}/orgs/{org}/spaces/{space}")
	assert.Contains(t, body, "/refresh")
}

func TestRouter_Index_RefreshNotAdvertisedWhenUnwired(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/")

	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "/reader_status")
	assert.NotContains(t, body, "/refresh")
}

func TestRouter_ListContexts(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/contexts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var contexts []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contexts))
	assert.Equal(t, []string{"PCF_NPE", "PCF_PRD"}, contexts)
}

func TestRouter_ListOrgs(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	for _, path := range []string{"/contexts/PCF_NPE", "/contexts/PCF_NPE/orgs"} {
		code, body := get(t, handler, path)

		require.Equal(t, http.StatusOK, code, path)
		assert.Equal(t, "PCF_NPE", body["context"])
		assert.Equal(t, []any{"empty", "repo1"}, body["orgs"])
	}
}

func TestRouter_GetOrg(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/contexts/PCF_NPE/orgs/repo1")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PCF_NPE", body["context"])
	assert.Equal(t, "repo1", body["org"])
	orgConfig, ok := body["org_config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Repo1", orgConfig["org"])
	space, ok := body["space"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, space, "spaces")
}

func TestRouter_GetOrg_CaseInsensitive(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/contexts/PCF_NPE/orgs/REPO1")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "repo1", body["org"])
}

func TestRouter_GetOrg_AbsentDataIsNull(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/contexts/PCF_NPE/orgs/empty")

	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["org_config"])
	assert.Nil(t, body["space"])
}

func TestRouter_GetDirector(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	tests := []struct {
		org  string
		want string
	}{
		{org: "repo1", want: "Dana Smith"},
		{org: "empty", want: "Unknown"},
	}

	for _, tt := range tests {
		code, body := get(t, handler, "/contexts/PCF_NPE/orgs/"+tt.org+"/director")

		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, tt.want, body["director"], tt.org)
	}
}

func TestRouter_ListSpaces_Sorted(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/contexts/PCF_NPE/orgs/repo1/spaces")

	require.Equal(t, http.StatusOK, code)
	// Declared order in spaces.yml is s2, s1; the listing is sorted.
	assert.Equal(t, []any{"s1", "s2"}, body["spaces"])
}

func TestRouter_GetSpace(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/contexts/PCF_NPE/orgs/repo1/spaces/s1")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "s1", body["space"])
	config, ok := body["space_config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "small", config["quota"])
	security, ok := body["security_group"].([]any)
	require.True(t, ok)
	require.Len(t, security, 1)
}

func TestRouter_GetSpace_FailedLoadIsNull(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/contexts/PCF_NPE/orgs/repo1/spaces/s2")

	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["space_config"])
	assert.Nil(t, body["security_group"])
}

func TestRouter_OrgsMetadata(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/contexts/PCF_NPE/orgs_metadata")

	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "repo1")
	require.Contains(t, body, "empty")
	meta, ok := body["repo1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Dana Smith", meta["director"])
	assert.Nil(t, body["empty"])
}

func TestRouter_OrgsMetadata_SingleOrg(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/contexts/PCF_NPE/orgs_metadata/repo1")

	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body, 1)
	require.Contains(t, body, "repo1")
}

func TestRouter_NotFound(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	tests := []struct {
		name string
		path string
	}{
		{name: "unknown context", path: "/contexts/NOPE"},
		{name: "unknown context orgs", path: "/contexts/NOPE/orgs"},
		{name: "unknown org", path: "/contexts/PCF_NPE/orgs/nope"},
		{name: "unknown org director", path: "/contexts/PCF_NPE/orgs/nope/director"},
		{name: "unknown space", path: "/contexts/PCF_NPE/orgs/repo1/spaces/nope"},
		{name: "unknown metadata org", path: "/contexts/PCF_NPE/orgs_metadata/nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, body := get(t, handler, tt.path)

			require.Equal(t, http.StatusNotFound, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRouter_TriggerRefresh(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	triggered := 0
	done := make(chan struct{}, 2)
	refresh := func() {
		mu.Lock()
		triggered++
		mu.Unlock()
		done <- struct{}{}
	}

	handler := v1.Router(seededStore(), refresh)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/refresh", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, method)
		assert.Contains(t, rec.Body.String(), "Cache refresh in progress")
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("refresh trigger never fired")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, triggered)
}

func TestRouter_TriggerRefresh_NotWired(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/refresh")

	require.Equal(t, http.StatusNotImplemented, code)
	assert.NotEmpty(t, body["error"])
}

func TestRouter_ReaderStatus(t *testing.T) {
	t.Parallel()

	handler := v1.Router(seededStore(), nil)

	code, body := get(t, handler, "/reader_status")

	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["cache_timestamp"])
}
