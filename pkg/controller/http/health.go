package http

import (
	"net/http"

	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/domain/types"
)

// handleHealth handles health check requests
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &model.HealthStatus{
		Status:  "healthy",
		Service: types.Service,
		Version: types.Version,
	})
}
