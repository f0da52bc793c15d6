package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"example.com/undercover/internal/auth"
	"example.com/undercover/internal/config"
	"example.com/undercover/internal/game"
	"example.com/undercover/internal/httpapi"
	"example.com/undercover/internal/room"
	"example.com/undercover/internal/server"
	"example.com/undercover/internal/storage"
	"example.com/undercover/internal/store"
	"example.com/undercover/internal/words"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db  *pgxpool.Pool
	rdb *redis.Client

	rooms *room.Directory
	srv   *http.Server
}

type Options struct {
	Static http.Handler // optional; if nil, no frontend is served
}

// resultStorage layers Postgres stat counters on top of the Redis room
// persistence: a finished game both lands in Redis and bumps each
// player's counters.
type resultStorage struct {
	*storage.Redis
	stats *store.StatsStore
	log   *slog.Logger
}

func (s *resultStorage) SaveGameResult(ctx context.Context, roomID string, winner game.Role, players []game.Player) error {
	if err := s.Redis.SaveGameResult(ctx, roomID, winner, players); err != nil {
		return err
	}
	for _, p := range players {
		if err := s.stats.RecordGame(ctx, p.ID, p.Role, p.Role == winner); err != nil {
			s.log.Error("record player stats", "player", p.ID, "error", err)
		}
	}
	return nil
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	// --- Postgres ---
	dbpool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})

	// Quick connectivity checks (fail fast).
	pingCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	pingErr := rdb.Ping(pingCtx).Err()
	if pingErr != nil {
		dbpool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, pingErr)
	}

	// --- Persistence ---
	persist := storage.NewRedis(rdb, storage.Options{
		StateTTL:      cfg.Redis.StateTTL,
		ResultTTL:     cfg.Redis.ResultTTL,
		CheckpointTTL: cfg.Redis.CheckpointTTL,
		SessionTTL:    cfg.Redis.SessionTTL,
	})

	// --- Auth service ---
	authSvc := auth.NewService([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL, persist)

	// --- Stores ---
	users := store.NewUserStore(dbpool)
	stats := store.NewStatsStore(dbpool)

	authH := &httpapi.AuthHandler{
		Users:    users,
		Stats:    stats,
		Profiles: persist,
		Auth:     authSvc,
	}

	// --- Rooms ---
	bank := words.Open(cfg.Words.BankPath, log)
	roomCfg := room.Config{
		MinPlayers: cfg.Room.MinPlayers,
		MaxPlayers: cfg.Room.MaxPlayers,
		Timing: game.Timing{
			DescribeTurn: cfg.Room.DescribeTurn,
			Vote:         cfg.Room.VoteDuration,
			ResultDelay:  cfg.Room.ResultDelay,
		},
		Heartbeat:       cfg.Room.Heartbeat,
		MaxIdle:         cfg.Room.MaxIdle,
		CheckpointEvery: cfg.Room.CheckpointEvery,
	}
	recorder := &resultStorage{Redis: persist, stats: stats, log: log}
	rooms := room.NewDirectory(roomCfg, recorder, bank, room.NewConnectionRegistry(), log)

	gameSrv := server.NewServer(rooms, authSvc, log)
	gameSrv.BatchMessages = cfg.WS.BatchMessages
	gameSrv.BatchDelay = cfg.WS.BatchDelay

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gameSrv.RegisterRoutes(mux)

	// --- auth routes ---
	mux.HandleFunc("/api/auth/register", authH.Register)
	mux.HandleFunc("/api/auth/login", authH.Login)
	mux.Handle("/api/me", httpapi.AuthMiddleware(authSvc)(http.HandlerFunc(authH.Me)))

	if opts.Static != nil {
		mux.Handle("/", opts.Static)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return &App{cfg: cfg, log: log, db: dbpool, rdb: rdb, rooms: rooms, srv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		_ = a.srv.Shutdown(shutdownCtx)
		a.rooms.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}
