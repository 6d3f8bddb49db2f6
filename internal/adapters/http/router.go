package http

import (
	"context"

	"github.com/dkeye/rendezvous/internal/adapters/signal"
	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// session cookie. It only correlates log lines; it authorizes nothing.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func signalOptions(cfg *config.Config) signal.Options {
	return signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("RendezvousSession", store))
	r.Use(ClientTokenMiddleware())

	limiter := signal.NewRoomRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval)
	ctrl := signal.NewSignalWSController(o, limiter, signalOptions(cfg))
	ws := func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	}

	h := &adminHandlers{orch: o}
	r.GET("/", h.index)
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(o.Metrics.Handler()))
	r.GET("/ws", ws)

	api := r.Group("/api")
	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:id", h.getRoom)
	api.GET("/rooms/:id/members", h.roomMembers)
	api.DELETE("/peers/:id", h.kickPeer)
	api.GET("/stats", h.stats)
	api.GET("/ws/signal", ws)

	log.Info().Str("module", "adapters.http").Int("max_room_members", o.Rooms.MaxMembers()).Msg("router setup")
	return r
}
