package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vladislavdragonenkov/checkout/internal/health"
)

// RouterConfig собирает зависимости HTTP-роутера.
type RouterConfig struct {
	Service     CheckoutService
	Buyers      BuyerResolver
	Health      *health.Handler
	Logger      *log.Entry
	ServiceName string
}

// NewRouter собирает gin.Engine с маршрутами заказов и health checks.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "checkout-service"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(requestLogger(logger))

	h := NewHandler(cfg.Service, cfg.Buyers, logger)
	orders := r.Group("/orders")
	orders.GET("/settlement/", h.Settlement)
	orders.POST("/", h.CommitOrder)
	orders.GET("/:id", h.GetOrder)

	r.GET("/livez", gin.WrapF(health.LivenessHandler))
	if cfg.Health != nil {
		r.GET("/healthz", gin.WrapH(cfg.Health))
		r.GET("/readyz", gin.WrapF(cfg.Health.ReadinessHandler))
	}
	return r
}

func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Debug("http request")
	}
}
