package controllers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/princinho/eldercarebackend/auth"
	"github.com/princinho/eldercarebackend/metrics"
	"github.com/princinho/eldercarebackend/middleware"
	"github.com/princinho/eldercarebackend/models"
	"github.com/princinho/eldercarebackend/ratelimit"
	"github.com/princinho/eldercarebackend/services"
	"github.com/princinho/eldercarebackend/utils"
	"go.uber.org/zap"
)

type AuthMode int

const (
	Public AuthMode = iota
	OptionalAuth
	RequiredAuth
)

// Route is one entry of the route table. Roles only apply to RequiredAuth
// routes; an empty list admits any authenticated caller.
type Route struct {
	Method   string
	Path     string
	Auth     AuthMode
	Roles    []models.Role
	Throttle bool
	Handler  gin.HandlerFunc
}

// Server carries everything the HTTP layer needs.
type Server struct {
	Auth           *services.AuthService
	Users          *services.UserService
	Tokens         *auth.TokenIssuer
	Limiter        ratelimit.Limiter
	RateWindow     time.Duration
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	Limits         utils.QueryLimits
	MaxUploadBytes int64
	AllowedOrigins []string
}

// Routes is the route table. Access rules live here and nowhere else.
func (s *Server) Routes() []Route {
	admin := []models.Role{models.RoleAdmin}
	return []Route{
		{Method: http.MethodGet, Path: "/ping", Handler: Ping()},

		{Method: http.MethodPost, Path: "/auth/login", Throttle: true, Handler: Login(s.Auth)},
		{Method: http.MethodPost, Path: "/auth/register", Auth: OptionalAuth, Throttle: true, Handler: Register(s.Auth)},
		{Method: http.MethodGet, Path: "/auth/profile", Auth: RequiredAuth, Handler: Profile(s.Auth)},

		{Method: http.MethodGet, Path: "/users/profile", Auth: RequiredAuth, Handler: GetMyProfile(s.Users)},
		{Method: http.MethodPatch, Path: "/users/profile", Auth: RequiredAuth, Handler: UpdateMyProfile(s.Users)},
		{Method: http.MethodPost, Path: "/users/profile/password", Auth: RequiredAuth, Throttle: true, Handler: ChangeMyPassword(s.Users)},
		{Method: http.MethodPost, Path: "/users/profile/avatar", Auth: RequiredAuth, Handler: UploadMyAvatar(s.Users, s.MaxUploadBytes)},

		{Method: http.MethodPost, Path: "/users", Auth: RequiredAuth, Roles: admin, Handler: CreateUser(s.Users)},
		{Method: http.MethodGet, Path: "/users", Auth: RequiredAuth, Roles: admin, Handler: GetUsers(s.Users, s.Limits)},
		{Method: http.MethodGet, Path: "/users/:id", Auth: RequiredAuth, Roles: admin, Handler: GetUser(s.Users)},
		{Method: http.MethodPatch, Path: "/users/:id", Auth: RequiredAuth, Roles: admin, Handler: UpdateUser(s.Users)},
		{Method: http.MethodDelete, Path: "/users/:id", Auth: RequiredAuth, Roles: admin, Handler: DeleteUser(s.Users)},
	}
}

// Mount registers routes on r, wrapping each handler with the guards its
// table entry asks for.
func (s *Server) Mount(r gin.IRoutes, routes []Route) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	for _, rt := range routes {
		var chain []gin.HandlerFunc
		if rt.Throttle && s.Limiter != nil {
			chain = append(chain, middleware.RateLimit(s.Limiter, s.RateWindow, s.Metrics, log))
		}
		switch rt.Auth {
		case OptionalAuth:
			chain = append(chain, middleware.OptionalAuthMiddleware(s.Tokens))
		case RequiredAuth:
			chain = append(chain, middleware.AuthMiddleware(s.Tokens), middleware.RequireRoles(rt.Roles...))
		}
		chain = append(chain, rt.Handler)
		r.Handle(rt.Method, rt.Path, chain...)
	}
}

// NewRouter builds the gin engine with the shared middleware stack, the
// route table and the metrics endpoint.
func NewRouter(s *Server) *gin.Engine {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(cors.New(corsConfig(s.AllowedOrigins)))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(gin.Recovery())
	if s.Metrics != nil {
		r.Use(middleware.Metrics(s.Metrics))
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	s.Mount(r, s.Routes())
	return r
}

func corsConfig(origins []string) cors.Config {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowed[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Total-Count", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func Ping() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	}
}
