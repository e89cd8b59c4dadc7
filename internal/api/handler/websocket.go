package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/pkg/jwt"
	"github.com/qs3c/license_go_server/internal/pkg/response"
	"github.com/qs3c/license_go_server/internal/pkg/ws"
)

type WebSocketHandler struct {
	hub *ws.Hub
	cfg *config.Config
}

func NewWebSocketHandler(hub *ws.Hub, cfg *config.Config) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, cfg: cfg}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 鉴权靠准入令牌，不依赖 Origin
	},
}

// BalanceFeed 余额变动推送。客户端携带准入令牌建立连接，
// 之后每次入账、扣费、清扫都会收到推送
// GET /api/v1/ws/balance?token=<admission_token>
func (h *WebSocketHandler) BalanceFeed(c *gin.Context) {
	token := c.Query("token")
	claims, err := jwt.ParseAdmissionToken(token, h.cfg.JWT.Secret)
	if err != nil {
		response.AuthError(c, "准入令牌无效或已过期")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}

	client := &ws.Client{
		LicenseKey: claims.LicenseKey,
		Conn:       conn,
	}
	h.hub.Register(client)

	// 读循环只负责探测断开，客户端不需要上行任何数据
	go func() {
		defer h.hub.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
