package docsource

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gamma-omg/rag-spo/domain"
	"github.com/gamma-omg/rag-spo/readers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type graphFixture struct {
	srv        *httptest.Server
	tokenCalls int
	tokenFail  bool
	auths      []string
}

func newGraphFixture(t *testing.T, routes map[string]http.HandlerFunc) (*Graph, *graphFixture) {
	f := &graphFixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tenant/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		if f.tokenFail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		writeJSON(w, map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
	})
	for pattern, h := range routes {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			f.auths = append(f.auths, r.Header.Get("Authorization"))
			h(w, r)
		})
	}

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	g, err := NewGraph(GraphConfig{
		TenantID:          "tenant",
		ClientID:          "client",
		ClientSecret:      "secret",
		SiteID:            "default-site",
		GraphURL:          f.srv.URL + "/v1.0",
		LoginURL:          f.srv.URL,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}, readers.Default(), testLogger())
	require.NoError(t, err)

	return g, f
}

func Test_NewGraph_RequiresCredentials(t *testing.T) {
	_, err := NewGraph(GraphConfig{TenantID: "t"}, readers.Default(), testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func Test_Graph_ListDocuments(t *testing.T) {
	var g *Graph
	var f *graphFixture
	g, f = newGraphFixture(t, map[string]http.HandlerFunc{
		"GET /v1.0/sites/site-1/drive": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"id": "drive-1"})
		},
		"GET /v1.0/drives/drive-1/root/children": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") == "2" {
				writeJSON(w, map[string]any{"value": []any{
					map[string]any{"id": "3", "name": "c.txt", "file": map[string]any{}, "size": 3},
				}})
				return
			}
			writeJSON(w, map[string]any{
				"value": []any{
					map[string]any{"id": "1", "name": "a.docx", "webUrl": "https://sp/a.docx", "size": 10,
						"@microsoft.graph.downloadUrl": "https://dl/a", "file": map[string]any{"mimeType": "x"}},
					map[string]any{"id": "2", "name": "Folder", "folder": map[string]any{"childCount": 1}},
				},
				"@odata.nextLink": f.srv.URL + "/v1.0/drives/drive-1/root/children?page=2",
			})
		},
	})

	docs, err := g.ListDocuments(context.Background(), "site-1")
	require.NoError(t, err)

	assert.Equal(t, []domain.Document{
		{ID: "1", Name: "a.docx", WebURL: "https://sp/a.docx", Size: 10, DownloadURL: "https://dl/a"},
		{ID: "3", Name: "c.txt", Size: 3},
	}, docs)
	assert.Equal(t, 1, f.tokenCalls)
	for _, a := range f.auths {
		assert.Equal(t, "Bearer tok", a)
	}
}

func Test_Graph_DefaultSite(t *testing.T) {
	g, _ := newGraphFixture(t, map[string]http.HandlerFunc{
		"GET /v1.0/sites/default-site/drive/items/42": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{
				"id":                   "42",
				"name":                 "plan.docx",
				"webUrl":               "https://sp/plan.docx",
				"lastModifiedDateTime": "2025-01-15T09:30:00Z",
				"size":                 99,
			})
		},
	})

	doc, err := g.GetMetadata(context.Background(), "", "42")
	require.NoError(t, err)

	assert.Equal(t, domain.Document{
		ID:           "42",
		Name:         "plan.docx",
		WebURL:       "https://sp/plan.docx",
		ModifiedDate: "2025-01-15T09:30:00Z",
		Author:       "Unknown",
		Size:         99,
	}, doc)
}

func Test_Graph_EscapesDocumentID(t *testing.T) {
	var paths []string
	var ids []string
	g, _ := newGraphFixture(t, map[string]http.HandlerFunc{
		"GET /v1.0/sites/{site}/drive/items/{id}": func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.EscapedPath())
			ids = append(ids, r.PathValue("id"))
			writeJSON(w, map[string]any{"id": r.PathValue("id"), "name": "x.txt"})
		},
	})

	_, err := g.GetMetadata(context.Background(), "host.sharepoint.com,abc,def", "a/b?c=1#d")
	require.NoError(t, err)

	assert.Equal(t, []string{"/v1.0/sites/host.sharepoint.com,abc,def/drive/items/a%2Fb%3Fc=1%23d"}, paths)
	assert.Equal(t, []string{"a/b?c=1#d"}, ids)
}

func Test_Graph_GetContent(t *testing.T) {
	var f *graphFixture
	var g *Graph
	g, f = newGraphFixture(t, map[string]http.HandlerFunc{
		"GET /v1.0/sites/default-site/drive/items/7": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{
				"id":                           "7",
				"name":                         "notes.txt",
				"@microsoft.graph.downloadUrl": f.srv.URL + "/files/7",
				"createdBy":                    map[string]any{"user": map[string]any{"displayName": "Park"}},
			})
		},
		"GET /files/7": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("meeting notes"))
		},
	})

	text, err := g.GetContent(context.Background(), "", "7")
	require.NoError(t, err)
	assert.Equal(t, "meeting notes", text)

	body, ct, name, err := g.Download(context.Background(), "7")
	require.NoError(t, err)
	defer body.Close()
	data, _ := io.ReadAll(body)
	assert.Equal(t, "meeting notes", string(data))
	assert.Equal(t, "notes.txt", name)
	assert.NotEmpty(t, ct)
}

func Test_Graph_GetContent_NoDownloadURL(t *testing.T) {
	g, _ := newGraphFixture(t, map[string]http.HandlerFunc{
		"GET /v1.0/sites/default-site/drive/items/7": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"id": "7", "name": "notes.txt"})
		},
	})

	_, err := g.GetContent(context.Background(), "", "7")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func Test_Graph_Errors(t *testing.T) {
	g, _ := newGraphFixture(t, map[string]http.HandlerFunc{
		"GET /v1.0/sites/forbidden/drive": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
		"GET /v1.0/sites/broken/drive": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})

	_, err := g.ListDocuments(context.Background(), "forbidden")
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)

	_, err = g.ListDocuments(context.Background(), "broken")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func Test_Graph_TokenFailure(t *testing.T) {
	g, f := newGraphFixture(t, map[string]http.HandlerFunc{})
	f.tokenFail = true

	_, err := g.ListDocuments(context.Background(), "site")
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func Test_Graph_Sites(t *testing.T) {
	g, _ := newGraphFixture(t, map[string]http.HandlerFunc{
		"GET /v1.0/sites": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "*", r.URL.Query().Get("search"))
			writeJSON(w, map[string]any{"value": []any{
				map[string]any{"id": "host,1,2", "displayName": "Team", "webUrl": "https://sp/sites/team"},
			}})
		},
	})

	sites, err := g.Sites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Site{{ID: "host,1,2", DisplayName: "Team", WebURL: "https://sp/sites/team"}}, sites)
}
