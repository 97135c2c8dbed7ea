package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restaurant_orders/internal/config"
	"restaurant_orders/internal/middleware"
	"restaurant_orders/internal/payment"
	"restaurant_orders/internal/payment/paymenttest"
	"restaurant_orders/internal/queue"
	"restaurant_orders/internal/repository"
	"restaurant_orders/internal/router"
	"restaurant_orders/internal/service"
	"restaurant_orders/internal/store"
	rediskey "restaurant_orders/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var (
		addr         string
		fakePayments bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return runServe(cmd.Context(), cfg, fakePayments)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	cmd.Flags().BoolVar(&fakePayments, "fake-payments", false, "use the in-memory payment provider instead of Stripe (local load tests)")
	return cmd
}

func runServe(parent context.Context, cfg config.AppConfig, fakePayments bool) error {
	if cfg.StripeSecretKey == "" && !fakePayments {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	log := newLogger()

	// 1. 数据库
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := store.Migrate(db); err != nil {
		return err
	}

	// 2. Redis（可选）：订单锁、幂等缓存、限流
	var rdb *rd.Client
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(parent, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
	}

	// 3. Kafka（可选）：订单事件
	var events service.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		events = producer
	}

	// 4. 支付与业务服务
	var provider payment.Provider = payment.NewStripeProvider(cfg.StripeSecretKey, cfg.PaymentTimeout)
	if fakePayments {
		log.Warn("using in-memory payment provider, sessions are never paid")
		provider = paymenttest.New()
	}
	gateway := payment.NewGateway(provider, cfg.PaymentCurrency, cfg.PaymentTimeout)
	opts := service.PaymentOptions{
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
		Events:     events,
	}
	if rdb != nil {
		opts.Locker = rediskey.NewOrderLock(rdb, cfg.OrderLockTTL)
		opts.Cache = rediskey.NewCheckoutStore(rdb, cfg.IdempotencyTTL)
	}
	repo := repository.NewOrderRepository()
	orders := service.NewOrderService(db, repo, repository.NewCatalogRepository(db), events, log)
	payments := service.NewPaymentService(db, repo, gateway, opts, log)

	r := gin.Default()
	r.Use(middleware.CORS(cfg.CORSOrigins))
	router.Setup(r, orders, payments, rdb, cfg)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening",
			"addr", cfg.HTTPAddr,
			"db_driver", cfg.DBDriver,
			"redis", rdb != nil,
			"kafka", events != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
