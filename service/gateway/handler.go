package gateway

import (
	"net/http"

	"github.com/CharellKing/ela-reindex/utils"
	"github.com/gin-gonic/gin"
)

type newHandler func(board *Board) gin.HandlerFunc

var handlerMap map[string]newHandler

func registerHandler(path string, handler newHandler) {
	if handlerMap == nil {
		handlerMap = make(map[string]newHandler)
	}

	handlerMap[path] = handler
}

func init() {
	registerHandler("/healthz", newHealthz)
	registerHandler("/status", newStatus)
	registerHandler("/failures", newFailures)
}

func newHealthz(_ *Board) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	}
}

func newStatus(board *Board) gin.HandlerFunc {
	return func(c *gin.Context) {
		failures, err := board.Failures()
		if err != nil {
			utils.GetLogger(c).Errorf("list failures: %+v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"run":      board.Snapshot(),
			"failures": failures,
		})
	}
}

func newFailures(board *Board) gin.HandlerFunc {
	return func(c *gin.Context) {
		failures, err := board.Failures()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, failures)
	}
}
