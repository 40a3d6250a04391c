package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/internal/config"
	"github.com/clinicore/labflow/internal/domain"
	"github.com/clinicore/labflow/pkg/auth"
	"github.com/clinicore/labflow/pkg/metrics"
)

type RouterDeps struct {
	Config     *config.Config
	JWTManager *auth.JWTManager
	Metrics    *metrics.Collector
	Logger     *zap.Logger

	Auth     *AuthHandler
	Orders   *OrderHandler
	Samples  *SampleHandler
	Results  *ResultHandler
	Timeline *TimelineHandler
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(AccessLog(deps.Logger))
	r.Use(CORSMiddleware(deps.Config.CORS))
	r.Use(MetricsMiddleware(deps.Metrics))
	r.Use(RateLimitMiddleware(deps.Config.RateLimit, deps.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": deps.Config.App.Version})
	})
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(AuthRateLimitMiddleware(deps.Config.RateLimit, deps.Metrics))
	{
		authGroup.POST("/login", deps.Auth.Login)
		authGroup.POST("/refresh", deps.Auth.Refresh)
	}

	authed := api.Group("")
	authed.Use(AuthMiddleware(deps.JWTManager))
	{
		authed.POST("/auth/change-password", deps.Auth.ChangePassword)

		clinical := authed.Group("", RequireRoles(
			domain.RoleAdmin, domain.RoleDoctor, domain.RoleTechnician, domain.RolePathologist,
		))
		{
			orders := clinical.Group("/lab/orders")
			{
				orders.POST("", RequireRoles(domain.RoleAdmin, domain.RoleDoctor), deps.Orders.Create)
				orders.GET("", deps.Orders.List)
				orders.GET("/pending", deps.Orders.ListPending)
				orders.GET("/:id", deps.Orders.Get)
				orders.PATCH("/:id/status", deps.Orders.UpdateStatus)
				orders.POST("/:id/cancel", RequireRoles(domain.RoleAdmin, domain.RoleDoctor), deps.Orders.Cancel)
				orders.GET("/:id/samples", deps.Samples.ListByOrder)
				orders.GET("/:id/results", deps.Results.ListByOrder)
			}

			labWork := RequireRoles(domain.RoleAdmin, domain.RoleTechnician, domain.RolePathologist)

			samples := clinical.Group("/lab/samples")
			{
				samples.POST("", labWork, deps.Samples.Register)
				samples.GET("/:id", deps.Samples.Get)
				samples.PATCH("/:id/status", labWork, deps.Samples.UpdateStatus)
				samples.POST("/:id/reject", labWork, deps.Samples.Reject)
			}

			results := clinical.Group("/lab/results")
			{
				results.POST("", labWork, deps.Results.Enter)
				results.GET("/:id", deps.Results.Get)
				results.POST("/:id/verify", RequireRoles(domain.RoleAdmin, domain.RolePathologist), deps.Results.Verify)
			}

			clinical.GET("/doctors/:doctorId/lab-orders", deps.Orders.ListByDoctor)
			clinical.GET("/patients/:patientId/lab-orders", deps.Orders.ListByPatient)
			clinical.GET("/patients/:patientId/lab-results", deps.Results.ListByPatient)
		}

		// Timeline is also readable by the patient themselves; the handler
		// enforces the ownership check.
		authed.GET("/patients/:patientId/timeline", deps.Timeline.GetForPatient)
	}

	return r
}
