package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"visitor-kiosk/controllers"
	"visitor-kiosk/middleware"
	"visitor-kiosk/services"
)

func parseCorsOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, part := range raw {
		origin := strings.TrimSpace(part)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// Deps is everything the router hands out to handlers.
type Deps struct {
	Visitors  *controllers.VisitorController
	Settings  *controllers.SettingsController
	Auth      *controllers.AuthController
	Operators *controllers.OperatorController
	Print     *controllers.PrintController
	Kiosk     *controllers.KioskChannel
	Dashboard *controllers.DashboardController

	Authenticator middleware.Authenticator

	Logger      *zap.Logger
	CORSOrigins []string
	// PhotosDir is served under PhotosURL when photos are stored locally.
	PhotosURL   string
	PhotosDir   string
	// Gatherer is nil when /metrics is disabled.
	Gatherer    prometheus.Gatherer
	Registerer  prometheus.Registerer
	ServiceName string
	Tracing     bool
}

// SetupRouter wires every route of the kiosk and the dashboard.
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(d.Logger))
	if d.Tracing {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	if d.Registerer != nil {
		r.Use(middleware.NewHTTPMetrics(d.Registerer).Handler())
	}
	if d.PhotosDir != "" && strings.HasPrefix(d.PhotosURL, "/") {
		r.Static(d.PhotosURL, d.PhotosDir)
	}

	origins := parseCorsOrigins(d.CORSOrigins)
	allowCredentials := true
	for _, origin := range origins {
		if origin == "*" {
			allowCredentials = false
			break
		}
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// kiosk (public)
	r.GET("/print/:id", d.Print.Slip)
	r.GET("/ws/kiosk", d.Kiosk.Handle)

	auth := middleware.OperatorAuth(d.Authenticator, services.ErrInvalidCredentials, d.Logger)
	r.GET("/ws/dashboard", auth, d.Dashboard.Handle)

	api := r.Group("/api")
	{
		api.POST("/auth/login", d.Auth.Login)

		api.GET("/settings/form", d.Settings.GetForm)

		visitors := api.Group("/visitors")
		{
			visitors.POST("", d.Visitors.Submit)
			visitors.POST("/validate", d.Visitors.Validate)
			visitors.GET("/suggestions", d.Visitors.Suggestions)
			visitors.GET("/:id/credential.png", d.Visitors.CredentialPNG)
		}

		// dashboard (operator basic auth)
		dash := api.Group("", auth)
		{
			dash.PUT("/settings/form", d.Settings.UpdateForm)
			dash.PUT("/settings/form/fields/:key", d.Settings.ToggleField)

			dv := dash.Group("/visitors")
			{
				dv.GET("", d.Visitors.List)

				// ต้องอยู่ก่อน /:id
				dv.GET("/summary", d.Visitors.Summary)
				dv.GET("/export.xlsx", d.Visitors.Export)
				dv.POST("/scan", d.Visitors.Scan)
				dv.DELETE("", d.Visitors.Delete)

				dv.GET("/:id", d.Visitors.Get)
				dv.PATCH("/:id", d.Visitors.Edit)
				dv.POST("/:id/checkout", d.Visitors.Checkout)
				dv.POST("/:id/photo", d.Visitors.RetryPhoto)
				dv.POST("/:id/credential", d.Visitors.RegenerateCredential)
			}

			ops := dash.Group("/operators")
			{
				ops.GET("", d.Operators.List)
				ops.POST("", d.Operators.Create)
				ops.DELETE("/:id", d.Operators.Delete)
			}
		}
	}

	return r
}
