// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gigdesk/credits/internal/balancedelivery"
	"github.com/gigdesk/credits/internal/balanceservice"
	"github.com/gigdesk/credits/internal/ledgerrepo"
	"github.com/gigdesk/credits/internal/middleware"
	"github.com/gigdesk/credits/internal/purchasedelivery"
	"github.com/gigdesk/credits/internal/purchaserepo"
	"github.com/gigdesk/credits/internal/purchaseservice"
	"github.com/gigdesk/credits/internal/refunddelivery"
	"github.com/gigdesk/credits/internal/refundservice"
	"github.com/gigdesk/credits/internal/userdelivery"
	"github.com/gigdesk/credits/internal/userrepo"
	"github.com/gigdesk/credits/internal/userservice"
	"github.com/gigdesk/credits/pkg/configpkg"
	"github.com/gigdesk/credits/pkg/tokenpkg"
)

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB       *sql.DB
	Engine   *gin.Engine
	Config   configpkg.Config
	Purchase *purchaseservice.Service
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// New creates Server type with instantiated domains and routes.
func New(conn *sql.DB, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	ledgerRepo := ledgerrepo.NewRepoPGS(conn, config.MaxBalance)
	purchaseRepo := purchaserepo.NewRepoPGS(conn, config.MaxBalance)
	userRepo := userrepo.NewRepoPGS(conn)

	tokenMaker, err := tokenpkg.NewPasetoMaker(config.TokenSymmetricKey)
	if err != nil {
		return nil, errors.New("cannot create token maker")
	}

	balanceService := balanceservice.New(ledgerRepo, config)
	userService := userservice.New(userRepo, balanceService)

	purchaseService, err := purchaseservice.New(purchaseRepo, config)
	if err != nil {
		return nil, errors.New("cannot initialize purchase service")
	}

	refundService := refundservice.New(ledgerRepo, balanceService, config)

	userHandler := userdelivery.NewHandler(userService, tokenMaker, config.AccessTokenDuration)
	balanceHandler := balancedelivery.NewHandler(balanceService)
	purchaseHandler := purchasedelivery.NewHandler(purchaseService, balanceService)
	refundHandler := refunddelivery.NewHandler(refundService, purchaseService, balanceService)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	engine.POST("/users", userHandler.Create)
	engine.POST("/users/login", userHandler.Login)
	engine.GET("/packages", purchaseHandler.ListPackages)

	authRoutes := engine.Group("/").Use(middleware.AuthMiddleware(tokenMaker))

	authRoutes.GET("/balance", balanceHandler.Get)
	authRoutes.GET("/balance/history", balanceHandler.History)
	authRoutes.POST("/balance/deduct", balanceHandler.Deduct)

	authRoutes.POST("/purchases", purchaseHandler.Initiate)
	authRoutes.POST("/purchases/:order_ref/confirm", purchaseHandler.Confirm)
	authRoutes.POST("/purchases/:order_ref/fail", purchaseHandler.Fail)
	authRoutes.GET("/purchases/:order_ref/refund-eligibility", refundHandler.Eligibility)
	authRoutes.POST("/purchases/:order_ref/refund", refundHandler.Apply)

	adminRoutes := engine.Group("/admin").
		Use(middleware.AuthMiddleware(tokenMaker)).
		Use(middleware.AdminMiddleware(userService))

	adminRoutes.POST("/accounts/:id/adjust", balanceHandler.AdminAdjust)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("entrytype", balancedelivery.ValidEntryType)
		if err != nil {
			return nil, errors.New("cannot register entrytype validator")
		}
	}

	server := &Server{
		DB:       conn,
		Engine:   engine,
		Config:   config,
		Purchase: purchaseService,
	}

	return server, nil
}
