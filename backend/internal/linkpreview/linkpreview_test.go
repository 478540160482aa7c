package linkpreview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstURL(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"no links here", ""},
		{"see https://example.com/post.", "https://example.com/post"},
		{"(http://a.test/x?y=1) and https://b.test", "http://a.test/x?y=1"},
		{"ftp://files.test is ignored", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FirstURL(tt.text), tt.text)
	}
}

func TestFetch_OpenGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head>
			<title>Fallback title</title>
			<meta property="og:title" content="Launch day">
			<meta property="og:description" content="We shipped it">
			<meta property="og:image" content="/img/cover.png">
			<meta property="og:site_name" content="Example Blog">
		</head><body></body></html>`))
	}))
	defer server.Close()

	preview, err := NewFetcher(server.Client()).Fetch(context.Background(), server.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, "Launch day", preview.Title)
	assert.Equal(t, "We shipped it", preview.Description)
	assert.Equal(t, server.URL+"/img/cover.png", preview.ImageURL)
	assert.Equal(t, "Example Blog", preview.SiteName)
	assert.Equal(t, server.URL+"/post", preview.URL)
}

func TestFetch_FallsBackToTitleAndDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title> Plain page </title>
			<meta name="description" content="Just a page"></head></html>`))
	}))
	defer server.Close()

	preview, err := NewFetcher(server.Client()).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Plain page", preview.Title)
	assert.Equal(t, "Just a page", preview.Description)
	assert.Equal(t, "127.0.0.1", preview.SiteName)
}

func TestPreview_IgnoresFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewFetcher(server.Client())
	assert.Nil(t, f.Preview(context.Background(), "look "+server.URL+"/missing"))
	assert.Nil(t, f.Preview(context.Background(), "no link"))
}

func TestFetch_RejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer server.Close()

	_, err := NewFetcher(server.Client()).Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}
