package router

import (
	"github.com/gin-gonic/gin"

	"github.com/wso2/consent-core-service/internal/handlers"
	"github.com/wso2/consent-core-service/internal/service"
)

// SetupRouter configures all API routes
func SetupRouter(consentService *service.ConsentService) *gin.Engine {
	router := gin.Default()

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	consentHandler := handlers.NewConsentHandler(consentService)
	authResourceHandler := handlers.NewAuthResourceHandler(consentService)

	v1 := router.Group("/api/v1")
	{
		consents := v1.Group("/consents")
		{
			consents.POST("", consentHandler.CreateConsent)
			consents.GET("", consentHandler.SearchConsents)
			consents.POST("/exclusive", consentHandler.CreateExclusiveConsent)
			consents.POST("/revoke-applicable", consentHandler.RevokeApplicableConsents)
			consents.GET("/:consentId", consentHandler.GetConsent)
			consents.PUT("/:consentId", consentHandler.AmendConsent)
			consents.GET("/:consentId/detailed", consentHandler.GetDetailedConsent)
			consents.PUT("/:consentId/status", consentHandler.UpdateConsentStatus)
			consents.POST("/:consentId/revoke", consentHandler.RevokeConsent)
			consents.GET("/:consentId/history", consentHandler.GetConsentHistory)

			consents.POST("/:consentId/attributes", consentHandler.StoreConsentAttributes)
			consents.GET("/:consentId/attributes", consentHandler.GetConsentAttributes)
			consents.DELETE("/:consentId/attributes", consentHandler.DeleteConsentAttributes)

			consents.POST("/:consentId/authorizations", authResourceHandler.CreateAuthResource)
			consents.GET("/:consentId/authorizations/:authId", authResourceHandler.GetAuthResource)
			consents.PUT("/:consentId/authorizations/:authId", authResourceHandler.UpdateAuthResource)
			consents.POST("/:consentId/authorizations/:authId/accounts", authResourceHandler.BindUserAccounts)
			consents.POST("/:consentId/authorizations/:authId/reauthorize", authResourceHandler.Reauthorize)
		}

		v1.GET("/consent-attributes/search", consentHandler.FindConsentsByAttribute)
		v1.GET("/consent-status-audits", consentHandler.SearchStatusAuditRecords)
		v1.POST("/admin/retention-sync", consentHandler.SyncRetentionStore)
	}

	return router
}
