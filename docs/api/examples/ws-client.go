// MCS WebSocket Client Example (Go)
//
// This example demonstrates:
// - Agent registration
// - Sending a message
// - Draining the inbox
// - Creating a task
//
// Usage:
//   go run ws-client.go
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// JSON-RPC types

type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Event types (push notifications, spec §4.9)

type CapabilityListChangedEvent struct{}

type LogAlertEvent struct {
	Level string `json:"level"`
	Data  string `json:"data"`
}

// Client

type MCSClient struct {
	conn      *websocket.Conn
	nextID    int
	pending   map[int]chan json.RawMessage
	mu        sync.Mutex
	agentName string
}

func NewMCSClient(url string) (*MCSClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	client := &MCSClient{
		conn:    conn,
		nextID:  1,
		pending: make(map[int]chan json.RawMessage),
	}

	go client.handleMessages()

	log.Println("connected to mcs")
	return client, nil
}

func (c *MCSClient) handleMessages() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("read error: %v", err)
			return
		}

		// Try to parse as a response (has an id field).
		var resp JSONRPCResponse
		if err := json.Unmarshal(data, &resp); err == nil && resp.ID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[resp.ID]
			if ok {
				delete(c.pending, resp.ID)
				c.mu.Unlock()

				if resp.Error != nil {
					log.Printf("rpc error: %s (code: %d)", resp.Error.Message, resp.Error.Code)
					close(ch)
				} else {
					ch <- resp.Result
					close(ch)
				}
			} else {
				c.mu.Unlock()
			}
			continue
		}

		// Try to parse as a push notification (no id field).
		var notif JSONRPCNotification
		if err := json.Unmarshal(data, &notif); err == nil && notif.Method != "" {
			c.handleEvent(notif.Method, notif.Params)
			continue
		}

		log.Printf("unknown message: %s", string(data))
	}
}

func (c *MCSClient) handleEvent(method string, params json.RawMessage) {
	switch method {
	case "notifications/tools/list_changed":
		var event CapabilityListChangedEvent
		if err := json.Unmarshal(params, &event); err != nil {
			log.Printf("failed to unmarshal notifications/tools/list_changed: %v", err)
			return
		}
		log.Printf("capabilities changed — re-fetch the tool list")

	case "notifications/message":
		var event LogAlertEvent
		if err := json.Unmarshal(params, &event); err != nil {
			log.Printf("failed to unmarshal notifications/message: %v", err)
			return
		}
		log.Printf("%s: %s", event.Level, event.Data)

	default:
		log.Printf("unknown event: %s", method)
	}
}

func (c *MCSClient) call(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	ch := make(chan json.RawMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	select {
	case result := <-ch:
		return result, nil
	case <-time.After(30 * time.Second):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("request timeout")
	}
}

func (c *MCSClient) Register(name, team, role, description string) error {
	params := map[string]string{
		"name": name,
		"team": team,
		"role": role,
	}
	if description != "" {
		params["description"] = description
	}

	result, err := c.call("register", params)
	if err != nil {
		return err
	}

	var greeting string
	if err := json.Unmarshal(result, &greeting); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	c.agentName = name
	log.Printf("registered as %s: %s", name, greeting)
	return nil
}

func (c *MCSClient) Send(to, body, taskID string) error {
	params := map[string]any{
		"from": c.agentName,
		"to":   to,
		"body": body,
	}
	if taskID != "" {
		params["task_id"] = taskID
	}

	result, err := c.call("send", params)
	if err != nil {
		return err
	}

	var ack string
	if err := json.Unmarshal(result, &ack); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	log.Printf("send: %s", ack)
	return nil
}

func (c *MCSClient) CheckInbox() ([]map[string]any, error) {
	result, err := c.call("check_inbox", map[string]string{"agent": c.agentName})
	if err != nil {
		return nil, err
	}

	var entries []map[string]any
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	log.Printf("inbox: %d unread", len(entries))
	return entries, nil
}

func (c *MCSClient) CreateTask(title, description, assignTo, project string) (string, error) {
	params := map[string]any{
		"creator":     c.agentName,
		"title":       title,
		"description": description,
		"assign_to":   assignTo,
		"project":     project,
	}

	result, err := c.call("create_task", params)
	if err != nil {
		return "", err
	}

	var task struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &task); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	log.Printf("task created: %s", task.ID)
	return task.ID, nil
}

func (c *MCSClient) Close() error {
	return c.conn.Close()
}

func main() {
	client, err := NewMCSClient("ws://localhost:9400/ws")
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	time.Sleep(100 * time.Millisecond)

	if err := client.Register("lead1", "core", "lead", "tracks the rollout"); err != nil {
		log.Fatalf("register failed: %v", err)
	}

	taskID, err := client.CreateTask("ship the client example", "rewrite ws-client.go for mcs", "dev1", "docs")
	if err != nil {
		log.Fatalf("create_task failed: %v", err)
	}

	if err := client.Send("dev1", "picked this up, see the task for details", taskID); err != nil {
		log.Fatalf("send failed: %v", err)
	}

	if _, err := client.CheckInbox(); err != nil {
		log.Fatalf("check_inbox failed: %v", err)
	}

	log.Println("listening for tools/list_changed / message pushes... (press Ctrl+C to exit)")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	log.Println("shutting down")
}
