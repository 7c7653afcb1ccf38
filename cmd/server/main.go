package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yourorg/qrpay/internal/config"
	"github.com/yourorg/qrpay/internal/gateway"
	"github.com/yourorg/qrpay/internal/gateway/alipay"
	"github.com/yourorg/qrpay/internal/gateway/circuitbreaker"
	"github.com/yourorg/qrpay/internal/gateway/mock"
	"github.com/yourorg/qrpay/internal/lifecycle"
	"github.com/yourorg/qrpay/internal/monitor"
	"github.com/yourorg/qrpay/internal/notify"
	"github.com/yourorg/qrpay/internal/order"
	"github.com/yourorg/qrpay/internal/payment"
	"github.com/yourorg/qrpay/internal/policy"
	"github.com/yourorg/qrpay/internal/polling"
	"github.com/yourorg/qrpay/internal/reporting"
)

// statusMessages is the user-facing copy attached to API responses.
var statusMessages = map[payment.Status]string{
	payment.StatusPending: "Scan the QR code to complete payment",
	payment.StatusSuccess: "Payment completed",
	payment.StatusFailed:  "Payment was not completed",
}

type server struct {
	builder    *order.Builder
	controller *lifecycle.Controller
	verifier   *notify.Verifier
	monitor    *monitor.ContractMonitor
	reporter   *reporting.RetrospectiveReporter
	pollCfg    polling.Config
	pollPolicy *policy.ProbePolicy
	provider   payment.Provider

	sessions sync.Map // orderID -> *polling.Session
}

func newServer(registry *gateway.Registry, breaker *circuitbreaker.CircuitBreaker, provider payment.Provider, pollCfg polling.Config) (*server, error) {
	cm, err := monitor.NewPaymentOrderMonitor()
	if err != nil {
		return nil, err
	}
	pol, err := policy.NewProbePolicy(policy.DefaultRules())
	if err != nil {
		return nil, err
	}
	ctrl := lifecycle.NewController(registry, breaker, reporting.NewJournal(), provider)
	return &server{
		builder:    order.NewBuilder(provider),
		controller: ctrl,
		verifier:   notify.NewVerifier(registry, ctrl),
		monitor:    cm,
		reporter:   reporting.NewRetrospectiveReporter(),
		pollCfg:    pollCfg,
		pollPolicy: pol,
		provider:   provider,
	}, nil
}

// startSession spawns the polling session that watches the order until it
// resolves or hits the deadline. One session per order; the entry is removed
// once the session stops so a later re-query can start fresh.
func (s *server) startSession(orderID string) {
	sess := polling.NewSession(orderID, s.controller, s.pollPolicy, s.pollCfg)
	if _, loaded := s.sessions.LoadOrStore(orderID, sess); loaded {
		return
	}
	sess.Start(context.Background())
	go func() {
		<-sess.Done()
		s.sessions.Delete(orderID)
	}()
}

func (s *server) stopSession(orderID string) {
	if v, ok := s.sessions.Load(orderID); ok {
		v.(*polling.Session).Stop()
	}
}

func (s *server) createPaymentHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable request body"})
		return
	}

	valid, violations, err := s.monitor.Validate(body)
	if err != nil {
		log.Printf("server: contract validation error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "request is not valid JSON"})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": monitor.FormatErrors(violations)})
		return
	}

	var req order.Request
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request format: " + err.Error()})
		return
	}

	o, err := s.builder.Build(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	res := s.controller.Create(c.Request.Context(), o)
	if !res.Success {
		code := http.StatusBadGateway
		if res.ErrorMessage == "order already submitted" {
			code = http.StatusConflict
		}
		c.JSON(code, responseBody(res))
		return
	}

	s.startSession(o.OrderID)
	c.JSON(http.StatusOK, responseBody(res))
}

func (s *server) queryPaymentHandler(c *gin.Context) {
	orderID := c.Query("orderId")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "orderId query parameter is required"})
		return
	}
	res := s.controller.Query(c.Request.Context(), orderID)
	c.JSON(http.StatusOK, responseBody(res))
}

func (s *server) cancelPaymentHandler(c *gin.Context) {
	orderID := c.Param("orderId")
	s.stopSession(orderID)
	res := s.controller.Cancel(c.Request.Context(), orderID)
	if !res.Success {
		c.JSON(http.StatusBadGateway, responseBody(res))
		return
	}
	c.JSON(http.StatusOK, responseBody(res))
}

// notifyHandler answers with the literal body the gateway expects: "success"
// stops its retries, anything else provokes another delivery.
func (s *server) notifyHandler(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusOK, notify.AckFailure)
		return
	}
	params := make(map[string]string, len(c.Request.Form))
	for k, v := range c.Request.Form {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	ack, err := s.verifier.HandleNotify(c.Request.Context(), s.provider, params)
	if err != nil {
		log.Printf("server: notification rejected: %v", err)
	}
	c.String(http.StatusOK, ack)
}

func (s *server) reportHandler(c *gin.Context) {
	report, err := s.reporter.GenerateRetrospective(s.controller.Journal().Entries())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// responseBody wraps a lifecycle result with the user-facing message.
func responseBody(res payment.Result) gin.H {
	return gin.H{
		"success": res.Success,
		"result":  res,
		"message": statusMessages[res.Status],
	}
}

func setupRouter(s *server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware("qrpay-server"))

	r.POST("/api/payment", s.createPaymentHandler)
	r.GET("/api/payment", s.queryPaymentHandler)
	r.DELETE("/api/payment/:orderId", s.cancelPaymentHandler)
	r.PUT("/api/payment/notify", s.notifyHandler)
	r.GET("/api/report", s.reportHandler)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// initTracer installs a stdout trace exporter and returns its shutdown hook.
func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func buildGateway(cfg *config.Config) (gateway.Gateway, error) {
	if cfg.Gateway.MockEnabled {
		log.Println("server: mock gateway enabled, no real charges will occur")
		return mock.NewGateway(payment.ProviderAlipay), nil
	}
	return alipay.NewGateway(cfg.AlipayConfig())
}

func main() {
	cfg, err := config.LoadConfig(os.Getenv("QRPAY_ENV_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}

	shutdown, err := initTracer()
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("server: tracer shutdown: %v", err)
		}
	}()

	gw, err := buildGateway(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize payment gateway: %v", err)
	}

	registry := gateway.NewRegistry(gw)
	breaker := circuitbreaker.NewCircuitBreaker(cfg.BreakerConfig())
	srv, err := newServer(registry, breaker, payment.ProviderAlipay, cfg.PollingConfig())
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	log.Printf("Starting server on %s...", cfg.Server.Addr)
	if err := setupRouter(srv).Run(cfg.Server.Addr); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
