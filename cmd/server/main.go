package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/akverma/dukaan/internal/addressbook"
	"github.com/akverma/dukaan/internal/cart"
	"github.com/akverma/dukaan/internal/checkout"
	"github.com/akverma/dukaan/internal/config"
	"github.com/akverma/dukaan/internal/discount"
	"github.com/akverma/dukaan/internal/handlers"
	"github.com/akverma/dukaan/internal/location"
	"github.com/akverma/dukaan/internal/logging"
	"github.com/akverma/dukaan/internal/mykafka"
	"github.com/akverma/dukaan/internal/payment"
	httpserver "github.com/akverma/dukaan/internal/transport/http"
)

func main() {
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)
	slog.SetDefault(logger)

	jwtSecret := []byte(configuration.JWT_SECRET)

	prod := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})

	cartSvc := cart.New(db)
	book := &addressbook.Service{DB: db}
	engine := &discount.Engine{DB: db}
	coordinator := &payment.Coordinator{
		DB:       db,
		Book:     book,
		Cart:     cartSvc,
		Discount: engine,
		Producer: prod,
		Log:      logger,
	}

	manager := checkout.NewManager(checkout.Deps{
		Cart:        cartSvc,
		Book:        book,
		Discount:    engine,
		Postal:      &location.PostalLookup{DB: db},
		Device:      location.NewDeviceResolver(location.NewGeocoder(configuration.GEOCODER_URL)),
		Coordinator: coordinator,
		Log:         logger,
		PayeeVPA:    configuration.UPI_PAYEE_VPA,
		PayeeName:   configuration.UPI_PAYEE_NAME,
	})

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), logging.RequestLogger(logger))

	deps := httpserver.Deps{
		CheckoutHandler: &handlers.CheckoutHandler{Manager: manager, JWTSecret: jwtSecret},
		AddressHandler:  &handlers.AddressHandler{Book: book, JWTSecret: jwtSecret},
		CartHandler:     &handlers.CartHandler{DB: db, Cart: cartSvc, JWTSecret: jwtSecret},
		OrderHandler:    &handlers.OrderHandler{DB: db, JWTSecret: jwtSecret},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "err", err)
		}
	}

	if err := prod.Close(); err != nil {
		logger.Error("kafka close error", "err", err)
	}

	logger.Info("shutdown complete")
}
