package gateway

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// StatusGateway serves the board of a running reindex over HTTP.
type StatusGateway struct {
	Engine   *gin.Engine
	Address  string
	User     string
	Password string

	board    *Board
	server   *http.Server
	listener net.Listener
}

func basicAuth(username, password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, hasAuth := c.Request.BasicAuth()
		if hasAuth && user == username && pass == password {
			c.Next()
		} else {
			c.Header("WWW-Authenticate", `Basic realm="Restricted"`)
			c.AbortWithStatus(http.StatusUnauthorized)
		}
	}
}

func NewStatusGateway(statusCfg *config.StatusCfg, board *Board) *StatusGateway {
	engine := gin.New()
	engine.Use(gin.Recovery())
	if statusCfg.User != "" {
		engine.Use(basicAuth(statusCfg.User, statusCfg.Password))
	}

	gateway := &StatusGateway{
		Engine:   engine,
		Address:  statusCfg.Address,
		User:     statusCfg.User,
		Password: statusCfg.Password,
		board:    board,
	}
	gateway.onRequest()
	return gateway
}

func (gateway *StatusGateway) onRequest() {
	for path, newHandler := range handlerMap {
		gateway.Engine.GET(path, newHandler(gateway.board))
	}
	gateway.Engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})
}

// Start listens on Address and serves in the background. The returned error
// only covers binding the address.
func (gateway *StatusGateway) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", gateway.Address)
	if err != nil {
		return errors.WithStack(err)
	}
	gateway.listener = listener
	gateway.server = &http.Server{
		Handler:           gateway.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	utils.GetLogger(ctx).Infof("status gateway listens on %s", listener.Addr())
	utils.GoRecovery(ctx, func() {
		if err := gateway.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.GetLogger(ctx).Errorf("status gateway: %+v", err)
		}
	})
	return nil
}

// ListenAddr is the bound address once started.
func (gateway *StatusGateway) ListenAddr() string {
	if gateway.listener == nil {
		return ""
	}
	return gateway.listener.Addr().String()
}

func (gateway *StatusGateway) Shutdown(ctx context.Context) error {
	if gateway.server == nil {
		return nil
	}
	return errors.WithStack(gateway.server.Shutdown(ctx))
}
