package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpa-strategie/aia-backend/pkg/retry"
)

const missionPageJSON = `{
  "object": "page",
  "id": "page-1",
  "properties": {
    "Name": {"type": "title", "title": [{"plain_text": "PMO "}, {"plain_text": "Rollout"}]},
    "Client": {"type": "rich_text", "rich_text": [{"plain_text": "Axa"}]},
    "Duration": {"type": "number", "number": 6},
    "Sector": {"type": "select", "select": {"name": "Insurance"}},
    "Tags": {"type": "multi_select", "multi_select": [{"name": "PMO"}, {"name": "Governance"}]},
    "Period": {"type": "date", "date": {"start": "2021-01-01", "end": "2021-07-01"}},
    "Remote": {"type": "checkbox", "checkbox": true},
    "Site": {"type": "url", "url": "https://axa.example"},
    "Stage": {"type": "status", "status": {"name": "Done"}},
    "Empty": {"type": "rich_text", "rich_text": []}
  }
}`

func newNotionServer(t *testing.T, blocksCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/databases/db-missions/query", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-06-28", r.Header.Get("Notion-Version"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["start_cursor"] == nil {
			_, _ = w.Write([]byte(`{"results": [` + missionPageJSON + `], "has_more": true, "next_cursor": "c2"}`))
			return
		}
		assert.Equal(t, "c2", body["start_cursor"])
		_, _ = w.Write([]byte(`{"results": [{"object": "page", "id": "page-2", "properties": {}}], "has_more": false}`))
	})

	mux.HandleFunc("/v1/blocks/page-1/children", func(w http.ResponseWriter, r *http.Request) {
		blocksCalls.Add(1)
		_, _ = w.Write([]byte(`{"results": [
			{"object": "block", "id": "b-1", "type": "paragraph", "paragraph": {"rich_text": [{"plain_text": "Set up a portfolio office."}]}},
			{"object": "block", "id": "b-2", "type": "divider", "divider": {}},
			{"object": "block", "id": "b-3", "type": "bulleted_list_item", "bulleted_list_item": {"rich_text": [{"plain_text": "Weekly steering"}]}}
		], "has_more": false}`))
	})

	mux.HandleFunc("/v1/blocks/page-2/children", func(w http.ResponseWriter, r *http.Request) {
		blocksCalls.Add(1)
		_, _ = w.Write([]byte(`{"results": [], "has_more": false}`))
	})

	mux.HandleFunc("/v1/databases/db-gone/query", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"object":"error","status":404,"code":"object_not_found","message":"Could not find database"}`))
	})

	return httptest.NewServer(mux)
}

func newTestSource(baseURL string) *NotionSource {
	return NewNotionSource(NotionConfig{
		Token:   "secret",
		BaseURL: baseURL + "/v1",
		Databases: map[string]string{
			CollectionMissions:  "db-missions",
			CollectionFAQs:      "db-gone",
			CollectionExpertise: "",
		},
	})
}

func TestNotionSource_QueryCollection(t *testing.T) {
	var blocksCalls atomic.Int32
	srv := newNotionServer(t, &blocksCalls)
	defer srv.Close()

	records, err := newTestSource(srv.URL).QueryCollection(context.Background(), CollectionMissions)
	require.NoError(t, err)

	// page-2 has neither title nor content and is dropped.
	require.Len(t, records, 1)
	assert.Equal(t, int32(2), blocksCalls.Load())

	rec := records[0]
	assert.Equal(t, "page-1", rec.ID)
	assert.Equal(t, "PMO Rollout", rec.Title)

	expected := strings.Join([]string{
		"Client: Axa",
		"Duration: 6",
		"Period: 2021-01-01 to 2021-07-01",
		"Remote: Yes",
		"Sector: Insurance",
		"Site: https://axa.example",
		"Stage: Done",
		"Tags: PMO, Governance",
		"",
		"Set up a portfolio office.",
		"Weekly steering",
	}, "\n")
	assert.Equal(t, expected, rec.Body)
}

func TestNotionSource_NotFoundIsNotRetried(t *testing.T) {
	var blocksCalls atomic.Int32
	var hits atomic.Int32
	srv := newNotionServer(t, &blocksCalls)
	defer srv.Close()

	counting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		srv.Config.Handler.ServeHTTP(w, r)
	}))
	defer counting.Close()

	_, err := newTestSource(counting.URL).QueryCollection(context.Background(), CollectionFAQs)
	require.ErrorIs(t, err, ErrCollectionNotFound)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNotionSource_UnknownAndUnconfiguredCollections(t *testing.T) {
	src := newTestSource("http://127.0.0.1:0")

	_, err := src.QueryCollection(context.Background(), "psychometrics")
	require.ErrorIs(t, err, ErrCollectionNotFound)

	records, err := src.QueryCollection(context.Background(), CollectionExpertise)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNotionSource_ServerErrorIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/v1/databases/") {
			_, _ = w.Write([]byte(`{"results": [], "has_more": false}`))
			return
		}
		t.Errorf("unexpected path %s", r.URL.Path)
	}))
	defer srv.Close()

	records, err := newTestSource(srv.URL).QueryCollection(context.Background(), CollectionMissions)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClassifyNotionError(t *testing.T) {
	assert.NoError(t, classifyNotionError(nil))

	err := classifyNotionError(&notionapi.Error{Status: http.StatusNotFound, Code: "object_not_found"})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.True(t, retry.IsPermanent(err))

	err = classifyNotionError(&notionapi.Error{Status: http.StatusServiceUnavailable, Code: "service_unavailable"})
	assert.False(t, retry.IsPermanent(err))

	err = classifyNotionError(&notionapi.Error{Status: http.StatusBadRequest, Code: "validation_error"})
	assert.True(t, retry.IsPermanent(err))
	assert.NotErrorIs(t, err, ErrCollectionNotFound)

	err = classifyNotionError(errors.New("connection reset"))
	assert.False(t, retry.IsPermanent(err))
}

func TestParseOrigin(t *testing.T) {
	u, err := parseOrigin("https://api.notion.com/v1/")
	require.NoError(t, err)
	assert.Equal(t, notionOrigin, u.String())

	u, err = parseOrigin("http://127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", u.String())

	_, err = parseOrigin("not a url")
	assert.Error(t, err)
}
