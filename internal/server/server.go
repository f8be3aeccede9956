package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/bookkeeping/internal/account"
	accountdomain "github.com/smallbiznis/bookkeeping/internal/account/domain"
	"github.com/smallbiznis/bookkeeping/internal/audit"
	auditdomain "github.com/smallbiznis/bookkeeping/internal/audit/domain"
	"github.com/smallbiznis/bookkeeping/internal/config"
	"github.com/smallbiznis/bookkeeping/internal/ledger"
	ledgerdomain "github.com/smallbiznis/bookkeeping/internal/ledger/domain"
	"github.com/smallbiznis/bookkeeping/internal/observability"
	obsmiddleware "github.com/smallbiznis/bookkeeping/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bookkeeping/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bookkeeping/internal/observability/tracing"
	"github.com/smallbiznis/bookkeeping/internal/tax"
	taxdomain "github.com/smallbiznis/bookkeeping/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	account.Module,
	ledger.Module,
	tax.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, obsMetrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(obsMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type engineParams struct {
	fx.In

	ObsCfg     observability.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func registerGin(p engineParams) *gin.Engine {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(p.ObsCfg, p.ObsMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	accountSvc accountdomain.Service
	ledgerSvc  ledgerdomain.Service
	taxSvc     taxdomain.Service
	auditSvc   auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	AccountSvc accountdomain.Service
	LedgerSvc  ledgerdomain.Service
	TaxSvc     taxdomain.Service
	AuditSvc   auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		accountSvc: p.AccountSvc,
		ledgerSvc:  p.LedgerSvc,
		taxSvc:     p.TaxSvc,
		auditSvc:   p.AuditSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(TenantContext())

	// -------- Accounts --------
	api.GET("/accounts", s.ListAccounts)
	api.POST("/accounts", s.CreateAccount)
	api.GET("/accounts/:id", s.GetAccount)
	api.PATCH("/accounts/:id", s.UpdateAccount)
	api.POST("/accounts/:id/deactivate", s.DeactivateAccount)
	api.POST("/accounts/:id/activate", s.ActivateAccount)
	api.GET("/accounts/:id/children", s.ListAccountChildren)
	api.GET("/accounts/:id/history", s.ListAccountHistory)

	// -------- Journal entries --------
	api.GET("/journal_entries", s.ListEntries)
	api.POST("/journal_entries", s.CreateEntry)
	api.GET("/journal_entries/:id", s.GetEntry)
	api.PATCH("/journal_entries/:id", s.UpdateEntry)
	api.DELETE("/journal_entries/:id", s.DeleteEntry)
	api.POST("/journal_entries/:id/approve", s.ApproveEntry)
	api.POST("/journal_entries/:id/post", s.PostEntry)
	api.POST("/journal_entries/:id/void", s.VoidEntry)
	api.POST("/journal_entries/:id/reverse", s.ReverseEntry)

	// -------- Taxes --------
	api.GET("/taxes", s.ListTaxes)
	api.POST("/taxes", s.CreateTax)
	api.GET("/taxes/:id", s.GetTax)
	api.PATCH("/taxes/:id", s.UpdateTax)
	api.POST("/taxes/:id/deactivate", s.DeactivateTax)
	api.POST("/taxes/calculate", s.CalculateTax)

	api.GET("/tax_groups", s.ListTaxGroups)
	api.POST("/tax_groups", s.CreateTaxGroup)
	api.GET("/tax_groups/:id", s.GetTaxGroup)
	api.POST("/tax_groups/:id/members", s.AddTaxGroupMember)
	api.DELETE("/tax_groups/:id/members/:taxId", s.RemoveTaxGroupMember)
	api.GET("/tax_groups/:id/effective_rate", s.GetTaxGroupEffectiveRate)

	api.GET("/tax_exemptions", s.ListTaxExemptions)
	api.POST("/tax_exemptions", s.CreateTaxExemption)
	api.POST("/tax_exemptions/:id/deactivate", s.DeactivateTaxExemption)

	// -------- Audit --------
	api.GET("/audit_logs", s.ListAuditLogs)
}
