package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wso2/consent-core-service/internal/models"
	"github.com/wso2/consent-core-service/internal/service"
	"github.com/wso2/consent-core-service/internal/utils"
)

// ConsentHandler handles consent-related HTTP requests
type ConsentHandler struct {
	consentService *service.ConsentService
}

// NewConsentHandler creates a new consent handler instance
func NewConsentHandler(consentService *service.ConsentService) *ConsentHandler {
	return &ConsentHandler{consentService: consentService}
}

// CreateConsent handles POST /consents
func (h *ConsentHandler) CreateConsent(c *gin.Context) {
	var request models.ConsentCreateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	detailed, err := h.consentService.CreateConsent(c.Request.Context(), &request)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendCreatedResponse(c, detailed)
}

// CreateExclusiveConsent handles POST /consents/exclusive
func (h *ConsentHandler) CreateExclusiveConsent(c *gin.Context) {
	var request models.ExclusiveConsentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	detailed, err := h.consentService.CreateExclusiveConsent(c.Request.Context(), &request)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendCreatedResponse(c, detailed)
}

// GetConsent handles GET /consents/:consentId
func (h *ConsentHandler) GetConsent(c *gin.Context) {
	consent, err := h.consentService.GetConsent(c.Request.Context(), c.Param("consentId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, consent)
}

// GetDetailedConsent handles GET /consents/:consentId/detailed
func (h *ConsentHandler) GetDetailedConsent(c *gin.Context) {
	detailed, err := h.consentService.GetDetailedConsent(c.Request.Context(), c.Param("consentId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, detailed)
}

// UpdateConsentStatus handles PUT /consents/:consentId/status
func (h *ConsentHandler) UpdateConsentStatus(c *gin.Context) {
	var request struct {
		Status   string `json:"status" binding:"required"`
		Reason   string `json:"reason"`
		ActionBy string `json:"actionBy"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	consent, err := h.consentService.UpdateConsentStatus(c.Request.Context(),
		c.Param("consentId"), request.Status, request.Reason, request.ActionBy)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, consent)
}

// RevokeConsent handles POST /consents/:consentId/revoke
func (h *ConsentHandler) RevokeConsent(c *gin.Context) {
	var request models.ConsentRevokeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	detailed, err := h.consentService.RevokeConsent(c.Request.Context(), c.Param("consentId"), &request)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, detailed)
}

// RevokeApplicableConsents handles POST /consents/revoke-applicable
func (h *ConsentHandler) RevokeApplicableConsents(c *gin.Context) {
	var request struct {
		ClientID           string `json:"clientId" binding:"required"`
		UserID             string `json:"userId" binding:"required"`
		ConsentType        string `json:"consentType" binding:"required"`
		ApplicableStatus   string `json:"applicableStatus" binding:"required"`
		RevokedStatus      string `json:"revokedStatus"`
		ShouldRevokeTokens bool   `json:"shouldRevokeTokens"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	err := h.consentService.RevokeExistingApplicableConsents(c.Request.Context(),
		request.ClientID, request.UserID, request.ConsentType,
		request.ApplicableStatus, request.RevokedStatus, request.ShouldRevokeTokens)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendNoContentResponse(c)
}

// AmendConsent handles PUT /consents/:consentId
func (h *ConsentHandler) AmendConsent(c *gin.Context) {
	var request models.ConsentAmendmentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	detailed, err := h.consentService.AmendDetailedConsent(c.Request.Context(), c.Param("consentId"), &request)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, detailed)
}

// SearchConsents handles GET /consents
func (h *ConsentHandler) SearchConsents(c *gin.Context) {
	var params models.ConsentSearchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		utils.SendBadRequestError(c, "Invalid search parameters", err.Error())
		return
	}
	useRetention := c.Query("fromRetentionStore") == "true"

	detailed, total, err := h.consentService.SearchDetailedConsents(c.Request.Context(), params, useRetention)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response := gin.H{"data": detailed}
	if params.Limit != nil && params.Offset != nil {
		response["metadata"] = utils.CalculatePaginationMetadata(total, *params.Limit, *params.Offset)
	}
	utils.SendOKResponse(c, response)
}

// GetConsentHistory handles GET /consents/:consentId/history
func (h *ConsentHandler) GetConsentHistory(c *gin.Context) {
	entries, err := h.consentService.GetConsentAmendmentHistoryData(c.Request.Context(), c.Param("consentId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, gin.H{"data": entries})
}

// StoreConsentAttributes handles POST /consents/:consentId/attributes
func (h *ConsentHandler) StoreConsentAttributes(c *gin.Context) {
	var request struct {
		Attributes map[string]string `json:"attributes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	if err := h.consentService.StoreConsentAttributes(c.Request.Context(), c.Param("consentId"), request.Attributes); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendNoContentResponse(c)
}

// GetConsentAttributes handles GET /consents/:consentId/attributes
func (h *ConsentHandler) GetConsentAttributes(c *gin.Context) {
	keys := c.QueryArray("keys")

	var attributes *models.ConsentAttributes
	var err error
	if len(keys) > 0 {
		attributes, err = h.consentService.GetConsentAttributesByName(c.Request.Context(), c.Param("consentId"), keys)
	} else {
		attributes, err = h.consentService.GetConsentAttributes(c.Request.Context(), c.Param("consentId"))
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, attributes)
}

// DeleteConsentAttributes handles DELETE /consents/:consentId/attributes
func (h *ConsentHandler) DeleteConsentAttributes(c *gin.Context) {
	keys := c.QueryArray("keys")

	if err := h.consentService.DeleteConsentAttributes(c.Request.Context(), c.Param("consentId"), keys); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendNoContentResponse(c)
}

// FindConsentsByAttribute handles GET /consent-attributes/search
func (h *ConsentHandler) FindConsentsByAttribute(c *gin.Context) {
	ids, err := h.consentService.GetConsentIDsByAttributeNameAndValue(c.Request.Context(),
		c.Query("key"), c.Query("value"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, gin.H{"consentIds": ids})
}

// SearchStatusAuditRecords handles GET /consent-status-audits
func (h *ConsentHandler) SearchStatusAuditRecords(c *gin.Context) {
	var params models.StatusAuditSearchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		utils.SendBadRequestError(c, "Invalid search parameters", err.Error())
		return
	}

	records, err := h.consentService.SearchStatusAuditRecords(c.Request.Context(), params)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, gin.H{"data": records})
}

// SyncRetentionStore handles POST /admin/retention-sync
func (h *ConsentHandler) SyncRetentionStore(c *gin.Context) {
	copied, err := h.consentService.SyncRetentionStore(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SendOKResponse(c, gin.H{"copied": copied})
}
