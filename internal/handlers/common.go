package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/internal/service"
	"github.com/wso2/consent-core-service/internal/utils"
)

// respondServiceError maps the business-level error onto an HTTP response.
// Anything that is not a ConsentManagementError is reported as internal.
func respondServiceError(c *gin.Context, err error) {
	var cmErr *service.ConsentManagementError
	if !errors.As(err, &cmErr) {
		utils.SendInternalServerError(c, "Unexpected error", err.Error())
		return
	}

	switch cmErr.Code {
	case models.ErrCodeBadRequest:
		utils.SendBadRequestError(c, cmErr.Message, "")
	case models.ErrCodeNotFound:
		utils.SendNotFoundError(c, cmErr.Message)
	case models.ErrCodeConflict:
		utils.SendConflictError(c, cmErr.Message)
	default:
		details := ""
		if cmErr.Err != nil {
			details = cmErr.Err.Error()
		}
		utils.SendInternalServerError(c, cmErr.Message, details)
	}
}
