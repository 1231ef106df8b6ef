package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/supportdesk/backend/internal/config"
	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/http/handlers"
	"github.com/supportdesk/backend/internal/http/middleware"
	"github.com/supportdesk/backend/internal/service"

	_ "github.com/supportdesk/backend/docs"
)

func Router(cfg config.Config, svc *service.Services, store db.Repository, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.SessionHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		for _, o := range strings.Split(cfg.CORSAllowed, ",") {
			if o = strings.TrimSpace(o); o != "" {
				corsCfg.AllowOrigins = append(corsCfg.AllowOrigins, o)
			}
		}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Services:  svc,
		Store:     store,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/auth", h.Me)
		api.POST("/auth", h.Auth)
	}

	session := api.Group("")
	session.Use(middleware.Session(svc.Sessions))
	{
		session.GET("/chats", h.ChatsList)
		session.POST("/chats", h.ChatsAction)
	}

	users := session.Group("/users")
	users.Use(middleware.RequireSession())
	{
		users.GET("", h.UsersList)
		users.POST("", h.UsersCreate)
		users.PUT("", h.UsersUpdate)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
