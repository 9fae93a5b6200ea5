package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/fxcast/internal/api"
	"github.com/wonny/fxcast/internal/api/handlers"
	"github.com/wonny/fxcast/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "API 서버 시작",
	Long: `읽기 전용 REST API 서버를 시작합니다.

Endpoints:
  GET  /health                    - Health check
  GET  /api/readiness             - 준비도 리포트 (요청 시 재계산)
  GET  /api/readiness/status      - LEVEL|timestamp
  GET  /api/forecasts             - 호라이즌별 최신 예측
  GET  /api/forecasts/{horizon}   - 특정 호라이즌 최신 예측

Example:
  go run ./cmd/fxcast serve
  go run ./cmd/fxcast serve --port 9090`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트 (기본: API_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != "" {
		a.cfg.API.Port = servePort
	}

	var shared *redis.RateLimiter
	if a.redis.Enabled() {
		shared = redis.NewRateLimiter(a.redis, a.cfg.Redis.Prefix)
	}
	limiter := api.NewLimiter(a.cfg.API.RateLimit, a.cfg.API.Burst, shared, a.log)

	router := api.NewRouter(api.Handlers{
		Readiness: handlers.NewReadinessHandler(a.readiness(), a.log),
		Forecast:  handlers.NewForecastHandler(a.results, a.model.HorizonList(), a.log),
	}, limiter, a.log)
	server := api.New(a.cfg, a.log, router)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("✅ API server listening on :%s\n", a.cfg.API.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Serve(ctx); err != nil {
		return err
	}
	fmt.Println("Server stopped")
	return nil
}
