package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiStockLedger/internal/config"
	"github.com/nemonet1337/zaiStockLedger/internal/metrics"
	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
	"github.com/nemonet1337/zaiStockLedger/pkg/inventory/storage"
)

func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	// ログ設定
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// ストア初期化
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("ストア初期化に失敗しました", zap.Error(err))
	}
	defer store.Close()

	// メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	publisher, err := metrics.NewPublisher(registry, logger)
	if err != nil {
		logger.Fatal("メトリクス初期化に失敗しました", zap.Error(err))
	}

	// 台帳マネージャー初期化
	ledgerConfig := cfg.LedgerConfig()
	manager := inventory.NewManager(store, publisher, logger, ledgerConfig)

	// HTTPハンドラー設定
	handlers := NewHandlers(manager, store, ledgerConfig, logger)
	var metricsHandler http.Handler
	if cfg.API.EnableMetrics {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	router := setupRouter(handlers, metricsHandler, cfg.API.EnableCORS)

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// グレースフルシャットダウン設定
	go func() {
		logger.Info("在庫台帳APIサーバーを開始します",
			zap.Int("port", cfg.API.Port),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("shortfall_policy", cfg.Inventory.ShortfallPolicy),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// グレースフルシャットダウン
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// openStore opens the configured ledger store
// 設定された台帳ストアを開く
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (inventory.Store, error) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn("インメモリストアを使用します。再起動でデータは失われます")
		return storage.NewMemoryStorage(logger), nil
	}

	logger.Info("データベースに接続中",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("dbname", cfg.Database.DBName),
	)
	return storage.NewPostgreSQLStorage(ctx, cfg.DSN(), storage.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
}

// setupRouter sets up HTTP routes
// HTTPルートを設定
func setupRouter(handlers *Handlers, metricsHandler http.Handler, enableCORS bool) *mux.Router {
	router := mux.NewRouter()

	// ヘルスチェック
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods("GET")
	}

	// API v1ルート
	api := router.PathPrefix("/api/v1").Subrouter()

	// 品目マスタ
	api.HandleFunc("/items", handlers.CreateCatalogItem).Methods("POST")

	// 在庫品目
	api.HandleFunc("/stock-items", handlers.CreateStockItem).Methods("POST")
	api.HandleFunc("/stock-items", handlers.ListStockItems).Methods("GET")
	api.HandleFunc("/stock-items/low-stock", handlers.GetLowStockItems).Methods("GET")
	api.HandleFunc("/stock-items/{stockItemId}", handlers.GetStockItem).Methods("GET")
	api.HandleFunc("/stock-items/{stockItemId}", handlers.DeactivateStockItem).Methods("DELETE")
	api.HandleFunc("/stock-items/{stockItemId}/thresholds", handlers.UpdateThresholds).Methods("PUT")
	api.HandleFunc("/stock-items/{stockItemId}/batches", handlers.GetBatchesByStockItem).Methods("GET")
	api.HandleFunc("/stock-items/{stockItemId}/audit", handlers.GetAuditTrail).Methods("GET")

	// トランザクション
	api.HandleFunc("/transactions", handlers.CreateTransaction).Methods("POST")
	api.HandleFunc("/transactions", handlers.ListTransactions).Methods("GET")
	api.HandleFunc("/transactions/{transactionId}", handlers.GetTransaction).Methods("GET")
	api.HandleFunc("/transactions/{transactionId}/approve", handlers.ApproveTransaction).Methods("POST")
	api.HandleFunc("/transactions/{transactionId}/reject", handlers.RejectTransaction).Methods("POST")

	// バッチ
	api.HandleFunc("/batches/expiring", handlers.GetExpiringBatches).Methods("GET")
	api.HandleFunc("/batches/expired", handlers.GetExpiredBatches).Methods("GET")

	// KPI・在庫評価
	api.HandleFunc("/kpi", handlers.GetKPISummary).Methods("GET")
	api.HandleFunc("/valuation", handlers.GetValuation).Methods("GET")

	// CORS設定
	if enableCORS {
		router.Use(corsMiddleware)
	}

	// ログ機能
	router.Use(loggingMiddleware(handlers.logger))

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
// HTTPリクエストをログ出力するミドルウェア
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// リクエスト処理
			next.ServeHTTP(rec, r)

			// ログ出力
			logger.Info("HTTPリクエスト",
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.Int("status", rec.status),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
