package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bloodlink-dev/bloodlink/internal/handlers"
	"github.com/bloodlink-dev/bloodlink/internal/middleware"
	"github.com/bloodlink-dev/bloodlink/internal/types"
)

func NewRouter(allowedOrigins []string) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/ws/alerts/:id", middleware.AuthMiddleware(), handlers.AlertFeed)

		auth := api.Group("/auth")
		{
			auth.POST("/login", handlers.LoginUser)
			auth.GET("/me", middleware.AuthMiddleware(), handlers.Me)
		}

		register := api.Group("/register")
		{
			register.POST("/donor", handlers.RegisterDonor)
			register.POST("/hospital", handlers.RegisterHospital)
		}

		donors := api.Group("/donors", middleware.AuthMiddleware())
		{
			donors.GET("", middleware.RequireRole(types.RoleAdmin), handlers.ListDonors)
			donors.GET("/me", middleware.RequireRole(types.RoleDonor), handlers.GetDonorMe)
			donors.PUT("/me", middleware.RequireRole(types.RoleDonor), handlers.UpdateDonorMe)
			donors.DELETE("/:id", middleware.RequireRole(types.RoleAdmin), handlers.DeleteDonor)
		}

		alerts := api.Group("/alerts", middleware.AuthMiddleware())
		{
			alerts.POST("", middleware.RequireRole(types.RoleHospital), handlers.CreateAlert)
			alerts.GET("", middleware.RequireRole(types.RoleAdmin), handlers.ListAlerts)
			alerts.GET("/mine", middleware.RequireRole(types.RoleHospital), handlers.ListMyAlerts)
			alerts.POST("/:id/cancel", handlers.CancelAlert)
			alerts.POST("/:id/fulfillments", middleware.RequireRole(types.RoleHospital, types.RoleAdmin), handlers.RecordFulfillment)
			alerts.POST("/:id/dispatch", middleware.RequireRole(types.RoleHospital, types.RoleAdmin), handlers.DispatchAlert)
			alerts.GET("/:id/responses", middleware.RequireRole(types.RoleHospital, types.RoleAdmin), handlers.ListAlertResponses)
		}

		responses := api.Group("/responses", middleware.AuthMiddleware())
		{
			responses.POST("/:id/contact", middleware.RequireRole(types.RoleHospital, types.RoleAdmin), handlers.ContactDonor)
		}

		intents := api.Group("/intents", middleware.AuthMiddleware())
		{
			intents.POST("/:id/response", middleware.RequireRole(types.RoleDonor), handlers.RecordIntentResponse)
		}
	}

	return r
}
