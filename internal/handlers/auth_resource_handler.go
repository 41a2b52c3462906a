package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/internal/service"
	"github.com/wso2/consent-core-service/internal/utils"
)

// AuthResourceHandler handles authorization-resource HTTP requests
type AuthResourceHandler struct {
	consentService *service.ConsentService
}

// NewAuthResourceHandler creates a new authorization resource handler instance
func NewAuthResourceHandler(consentService *service.ConsentService) *AuthResourceHandler {
	return &AuthResourceHandler{consentService: consentService}
}

// CreateAuthResource handles POST /consents/:consentId/authorizations
func (h *AuthResourceHandler) CreateAuthResource(c *gin.Context) {
	var auth models.AuthorizationResource
	if err := c.ShouldBindJSON(&auth); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}
	auth.ConsentID = c.Param("consentId")

	created, err := h.consentService.CreateConsentAuthorization(c.Request.Context(), &auth)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendCreatedResponse(c, created)
}

// GetAuthResource handles GET /consents/:consentId/authorizations/:authId
func (h *AuthResourceHandler) GetAuthResource(c *gin.Context) {
	auth, err := h.consentService.GetAuthorizationResource(c.Request.Context(), c.Param("authId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if auth.ConsentID != c.Param("consentId") {
		utils.SendNotFoundError(c, "authorization does not belong to the given consent")
		return
	}
	utils.SendOKResponse(c, auth)
}

// UpdateAuthResource handles PUT /consents/:consentId/authorizations/:authId
func (h *AuthResourceHandler) UpdateAuthResource(c *gin.Context) {
	var request struct {
		AuthStatus string `json:"authStatus"`
		UserID     string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}
	if request.AuthStatus == "" && request.UserID == "" {
		utils.SendBadRequestError(c, "Nothing to update", "authStatus or userId must be supplied")
		return
	}

	var auth *models.AuthorizationResource
	var err error
	if request.AuthStatus != "" {
		auth, err = h.consentService.UpdateAuthorizationStatus(c.Request.Context(), c.Param("authId"), request.AuthStatus)
		if err != nil {
			respondServiceError(c, err)
			return
		}
	}
	if request.UserID != "" {
		auth, err = h.consentService.UpdateAuthorizationUser(c.Request.Context(), c.Param("authId"), request.UserID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
	}
	utils.SendOKResponse(c, auth)
}

// BindUserAccounts handles POST /consents/:consentId/authorizations/:authId/accounts
func (h *AuthResourceHandler) BindUserAccounts(c *gin.Context) {
	var request struct {
		UserID                    string              `json:"userId" binding:"required"`
		AccountIDsWithPermissions map[string][]string `json:"accountIdsWithPermissions" binding:"required"`
		NewAuthStatus             string              `json:"newAuthStatus"`
		NewConsentStatus          string              `json:"newConsentStatus"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	detailed, err := h.consentService.BindUserAccountsToConsent(c.Request.Context(),
		c.Param("consentId"), c.Param("authId"), request.UserID,
		request.AccountIDsWithPermissions, request.NewAuthStatus, request.NewConsentStatus)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, detailed)
}

// Reauthorize handles POST /consents/:consentId/authorizations/:authId/reauthorize
func (h *AuthResourceHandler) Reauthorize(c *gin.Context) {
	var request models.ReauthorizeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	var detailed *models.DetailedConsentResource
	var err error
	if c.Query("withNewAuthResource") == "true" {
		detailed, err = h.consentService.ReauthorizeWithNewAuthResource(c.Request.Context(),
			c.Param("consentId"), c.Param("authId"), &request)
	} else {
		detailed, err = h.consentService.ReauthorizeExistingAuthResource(c.Request.Context(),
			c.Param("consentId"), c.Param("authId"), &request)
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, detailed)
}
