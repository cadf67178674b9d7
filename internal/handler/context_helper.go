package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusshare/analytics-api/internal/middleware"
	"github.com/campusshare/analytics-api/internal/models"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.AccessClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

// decodeStrict binds a JSON body and rejects keys the target does not declare.
func decodeStrict(c *gin.Context, dest interface{}) error {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return appErrors.Clone(appErrors.ErrValidation, "Validation failed: request body is required")
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "Validation failed: "+err.Error())
	}
	return nil
}
