// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// Tests for the config template endpoints

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
)

func TestListTemplates_ReturnsRegistry(t *testing.T) {
	sync := &stack.MockConfigSynchronizer{}
	router := gin.New()
	router.GET("/v1/config/templates", HandleListTemplates(sync))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/config/templates", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Templates []stack.ConfigTemplate `json:"templates"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Templates)
	for _, tmpl := range resp.Templates {
		assert.NotEmpty(t, tmpl.ID)
		assert.NotEmpty(t, tmpl.Name)
	}
}

func TestPreviewTemplate_ReturnsChanges(t *testing.T) {
	sync := &stack.MockConfigSynchronizer{
		ApplyTemplateFunc: func(id string, current *stack.EnvConfig, overrides map[string]string) (*stack.TemplateResult, error) {
			return &stack.TemplateResult{
				TemplateID: id,
				Changes: []stack.ConfigChange{
					{Key: "KASPA_NETWORK", Type: stack.ChangeModified, OldValue: "mainnet", NewValue: "testnet-10"},
				},
				RequiresConfirmation: true,
				Preview:              "-KASPA_NETWORK=mainnet\n+KASPA_NETWORK=testnet-10\n",
			}, nil
		},
	}
	router := gin.New()
	router.POST("/v1/config/preview", HandlePreviewTemplate(sync))

	w := postJSON(t, router, "/v1/config/preview", gin.H{
		"template":  "testnet",
		"overrides": gin.H{"KASPAD_LOG_LEVEL": "debug"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"testnet"}, sync.ApplyCalls)

	var result stack.TemplateResult
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "testnet", result.TemplateID)
	assert.True(t, result.RequiresConfirmation)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "KASPA_NETWORK", result.Changes[0].Key)
	assert.Contains(t, result.Preview, "+KASPA_NETWORK=testnet-10")
}

func TestPreviewTemplate_UnknownTemplate(t *testing.T) {
	sync := &stack.MockConfigSynchronizer{
		ApplyTemplateFunc: func(id string, current *stack.EnvConfig, overrides map[string]string) (*stack.TemplateResult, error) {
			return nil, stack.ErrUnknownTemplate
		},
	}
	router := gin.New()
	router.POST("/v1/config/preview", HandlePreviewTemplate(sync))

	w := postJSON(t, router, "/v1/config/preview", gin.H{"template": "ghost"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreviewTemplate_MissingTemplate(t *testing.T) {
	router := gin.New()
	router.POST("/v1/config/preview", HandlePreviewTemplate(&stack.MockConfigSynchronizer{}))

	w := postJSON(t, router, "/v1/config/preview", gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
