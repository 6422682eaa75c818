package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/presence/internal/api/handlers"
	"github.com/your-org/presence/internal/api/ws"
	"github.com/your-org/presence/internal/attendance"
	"github.com/your-org/presence/internal/auth"
	"github.com/your-org/presence/internal/ledger"
	"github.com/your-org/presence/internal/queue"
	"github.com/your-org/presence/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	Service  *attendance.Service
	DB       *storage.PostgresStore
	Captures *storage.CaptureStore
	Producer *queue.Producer
	Ledger   *ledger.Ledger
	Hub      *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Captures, cfg.Producer, cfg.Ledger)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket live feed
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Attendance
	attH := handlers.NewAttendanceHandler(cfg.Service, cfg.DB, cfg.Captures)
	v1.POST("/attendance/captures", attH.Mark)
	v1.GET("/attendance", attH.ListDay)
	v1.GET("/attendance/:id", attH.Get)
	v1.GET("/attendance/:id/capture", attH.Capture)

	// Reviews
	reviewH := handlers.NewReviewHandler(cfg.Service, cfg.DB)
	v1.GET("/reviews", reviewH.List)
	v1.GET("/reviews/:id", reviewH.Get)
	v1.POST("/reviews/:id/resolve", reviewH.Resolve)

	// Persons
	personH := handlers.NewPersonHandler(cfg.Service, cfg.DB)
	v1.POST("/persons", personH.Create)
	v1.GET("/persons", personH.List)
	v1.GET("/persons/:register", personH.Get)
	v1.POST("/persons/:register/enrollment", personH.Enroll)
	v1.POST("/persons/:register/activate", personH.Activate)
	v1.DELETE("/persons/:register", personH.Deactivate)

	// Audit ledger
	v1.GET("/ledger/verify", systemH.VerifyLedger)

	return r
}
