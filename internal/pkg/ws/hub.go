package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type Hub struct {
	// 同一许可证可以有多个连接（多窗口、重连等场景）
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	LicenseKey string
	Conn       *websocket.Conn
	mu         sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.LicenseKey] == nil {
		h.clients[client.LicenseKey] = make(map[*Client]struct{})
	}
	h.clients[client.LicenseKey][client] = struct{}{}

	log.Printf("License %s connected, conns: %d", client.LicenseKey, len(h.clients[client.LicenseKey]))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.LicenseKey]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.LicenseKey)
		}
	}

	client.Conn.Close()
}

// SendToLicense 推送消息给指定许可证的全部连接
func (h *Hub) SendToLicense(licenseKey string, msgType string, data interface{}) {
	h.mu.RLock()
	conns := make([]*Client, 0, 4)
	for client := range h.clients[licenseKey] {
		conns = append(conns, client)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		log.Printf("Failed to marshal ws message: %v", err)
		return
	}

	for _, client := range conns {
		client.mu.Lock()
		err := client.Conn.WriteMessage(websocket.TextMessage, payload)
		client.mu.Unlock()
		if err != nil {
			h.Unregister(client)
		}
	}
}

// ConnCount 当前连接总数
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
