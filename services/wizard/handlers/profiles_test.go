// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// Tests for the profile catalog endpoints

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasdock/kasdock/pkg/stack"
	"github.com/kasdock/kasdock/services/wizard/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

// =============================================================================
// Profile Listing Tests
// =============================================================================

func TestListProfiles_ReturnsCatalog(t *testing.T) {
	catalog := stack.DefaultCatalog()
	router := gin.New()
	router.GET("/v1/profiles", HandleListProfiles(catalog))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/profiles", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Profiles []stack.Profile `json:"profiles"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Len(t, response.Profiles, catalog.Len())

	ids := make([]string, 0, len(response.Profiles))
	for _, p := range response.Profiles {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, "core")
	assert.Contains(t, ids, "kaspa-user-applications")
}

func TestGetProfile_Known(t *testing.T) {
	router := gin.New()
	router.GET("/v1/profiles/:id", HandleGetProfile(stack.DefaultCatalog()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/profiles/core", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var profile stack.Profile
	err := json.Unmarshal(w.Body.Bytes(), &profile)
	require.NoError(t, err)
	assert.Equal(t, "core", profile.ID)
	require.NotEmpty(t, profile.Services)
	assert.Equal(t, "kaspad", profile.Services[0].Name)
}

func TestGetProfile_Unknown(t *testing.T) {
	router := gin.New()
	router.GET("/v1/profiles/:id", HandleGetProfile(stack.DefaultCatalog()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/profiles/ghost", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetProfile_MalformedID(t *testing.T) {
	router := gin.New()
	router.GET("/v1/profiles/:id", HandleGetProfile(stack.DefaultCatalog()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/profiles/Not%20A%20Profile", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Graph Tests
// =============================================================================

func TestGetGraph_NodesAndEdges(t *testing.T) {
	catalog := stack.DefaultCatalog()
	router := gin.New()
	router.GET("/v1/profiles/graph", HandleGetGraph(catalog))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/profiles/graph", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var graph datatypes.GraphResponse
	err := json.Unmarshal(w.Body.Bytes(), &graph)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, catalog.Len())

	hasEdge := func(from, to, kind string) bool {
		for _, e := range graph.Edges {
			if e.From == from && e.To == to && e.Kind == kind {
				return true
			}
		}
		return false
	}

	assert.True(t, hasEdge("kaspa-user-applications", "indexer-services", "dependency"),
		"expected dependency edge from kaspa-user-applications to indexer-services")
	assert.True(t, hasEdge("archive-node", "core", "conflict"),
		"expected conflict edge from archive-node to core")
	assert.True(t, hasEdge("mining", "core", "prerequisite"),
		"expected prerequisite edge from mining to core")
	assert.True(t, hasEdge("mining", "archive-node", "prerequisite"),
		"expected prerequisite edge from mining to archive-node")
}
