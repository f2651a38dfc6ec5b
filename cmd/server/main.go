package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/logger"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/notify"
	"github.com/iliyamo/cinema-booking/internal/ports"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/repository/memory"
	"github.com/iliyamo/cinema-booking/internal/router"
	"github.com/iliyamo/cinema-booking/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	if db != nil {
		defer db.Close()
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	var sinks []notify.Sink
	var amqpSink *notify.AMQPSink
	if cfg.SinkEnabled("amqp") {
		amqpSink = notify.NewAMQPSink(cfg.AMQPURL, cfg.SeatEventsExchange)
		sinks = append(sinks, amqpSink)
	}
	if cfg.SinkEnabled("redis") && rdb != nil {
		sinks = append(sinks, notify.NewRedisSink(rdb))
	}
	if cfg.SinkEnabled("pusher") {
		sinks = append(sinks, notify.NewPusherSink(notify.PusherConfig{
			AppID:   cfg.PusherAppID,
			Key:     cfg.PusherKey,
			Secret:  cfg.PusherSecret,
			Cluster: cfg.PusherCluster,
		}))
	}
	dispatcher := notify.NewDispatcher(log, cfg.NotifyBuffer, cfg.NotifyTimeout, sinks...)

	reservations := service.NewReservationManager(store, dispatcher, log, cfg.HoldTTL)
	bookings := service.NewBookingFinalizer(store, dispatcher, log)
	sweeper := service.NewSweeper(store, dispatcher, log, cfg.SweepBatch)
	reconciler := service.NewReconciler(store, dispatcher, log, cfg.ReconcileGrace)

	sched, err := service.StartJobs(service.JobConfig{
		SweepInterval:     cfg.SweepInterval,
		ReconcileInterval: cfg.ReconcileInterval,
	}, sweeper, reconciler, log)
	if err != nil {
		log.WithError(err).Fatal("start background jobs")
	}

	if cfg.AuditConsumerEnabled {
		consumer := notify.NewAuditConsumer(cfg.AMQPURL, cfg.SeatEventsExchange, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("audit consumer stopped")
			}
		}()
	}

	e := newServer(cfg, log, db, rdb, reservations, bookings)

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.StoreDriver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := sched.Shutdown(); err != nil {
		log.WithError(err).Warn("scheduler shutdown")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("dispatcher close")
	}
	if amqpSink != nil {
		_ = amqpSink.Close()
	}
}

func newServer(cfg config.Config, log *logrus.Logger, db *sqlx.DB, rdb *redis.Client,
	reservations *service.ReservationManager, bookings *service.BookingFinalizer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	seats := handler.NewSeatHandler(reservations, log)
	bookingHandler := handler.NewBookingHandler(bookings, log)

	var pinger handler.Pinger
	if db != nil {
		pinger = db
	}
	router.RegisterPublic(e, pinger, seats)
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	router.RegisterCustomer(e, seats, bookingHandler, cfg.JWTSecret, limit)
	return e
}

// openStore returns the configured store.  The memory store is seeded
// with one demo show so the API can be tried without MySQL.
func openStore(cfg config.Config, log logrus.FieldLogger) (ports.Store, *sqlx.DB, error) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn("using in-memory store; data is lost on restart")
		m := memory.New()
		m.AddShow(demoShow())
		return m, nil, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewStore(db), db, nil
}

func demoShow() (model.Show, []model.Seat) {
	show := model.Show{
		ID:             1,
		HallID:         1,
		Title:          "Demo",
		StartsAt:       time.Now().UTC().Add(24 * time.Hour),
		BasePriceCents: 1000,
		Status:         "SCHEDULED",
	}
	var seats []model.Seat
	id := uint64(1)
	for _, row := range []string{"A", "B", "C"} {
		for n := uint32(1); n <= 8; n++ {
			typ := model.SeatTypeStandard
			if row == "C" {
				typ = model.SeatTypeVIP
			}
			seats = append(seats, model.Seat{ID: id, HallID: 1, RowLabel: row, SeatNumber: n, SeatType: typ, IsActive: true})
			id++
		}
	}
	return show, seats
}
