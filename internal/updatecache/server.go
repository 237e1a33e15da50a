package updatecache

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/wellsgz/rrdb/internal/logging"
)

// Server exposes a Cache over a Unix domain socket, accepting update
// requests and streaming CommitResult events to subscribed clients.
type Server struct {
	socketPath string
	listener   net.Listener
	cache      *Cache

	clients   map[*serverClient]struct{}
	clientsMu sync.RWMutex

	ctx    chan struct{}
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

type serverClient struct {
	conn       net.Conn
	encoder    *json.Encoder
	subscribed bool
	mu         sync.Mutex
}

// NewServer creates a socket-backed front end for cache.
func NewServer(socketPath string, cache *Cache) *Server {
	return &Server{
		socketPath: socketPath,
		cache:      cache,
		clients:    make(map[*serverClient]struct{}),
		ctx:        make(chan struct{}),
	}
}

// Start begins listening for connections and streaming commit results.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("updatecache: removing existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("updatecache: listening on socket: %w", err)
	}
	s.listener = listener
	if err := os.Chmod(s.socketPath, 0660); err != nil {
		logging.Error("UpdateCache", "failed to set socket permissions", err)
	}
	logging.Info("UpdateCache", fmt.Sprintf("listening on %s", s.socketPath), nil)

	resultCh := s.cache.Subscribe()
	s.wg.Add(1)
	go s.broadcastResults(resultCh)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx:
				return
			default:
				logging.Error("UpdateCache", "accept error", err)
				continue
			}
		}

		client := &serverClient{conn: conn, encoder: json.NewEncoder(conn)}
		s.clientsMu.Lock()
		s.clients[client] = struct{}{}
		s.clientsMu.Unlock()

		s.wg.Add(1)
		go s.handleClient(client)
	}
}

func (s *Server) handleClient(client *serverClient) {
	defer s.wg.Done()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client)
		s.clientsMu.Unlock()
		client.conn.Close()
	}()

	scanner := bufio.NewScanner(client.conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			client.sendError("", fmt.Sprintf("invalid request: %v", err))
			continue
		}
		s.handleRequest(client, &req)
	}
	if err := scanner.Err(); err != nil {
		logging.Error("UpdateCache", "client read error", err)
	}
}

func (s *Server) handleRequest(client *serverClient, req *Request) {
	switch req.Type {
	case MsgTypeSubscribe:
		client.mu.Lock()
		client.subscribed = true
		client.mu.Unlock()
		client.sendOK(req.ID)

	case MsgTypeUnsubscribe:
		client.mu.Lock()
		client.subscribed = false
		client.mu.Unlock()
		client.sendOK(req.ID)

	case MsgTypeUpdate:
		var upd UpdateRequestData
		if data, ok := req.Data.(map[string]interface{}); ok {
			if path, ok := data["path"].(string); ok {
				upd.Path = path
			}
			if t, ok := data["time"].(float64); ok {
				upd.Time = int64(t)
			}
			if vals, ok := data["values"].([]interface{}); ok {
				for _, v := range vals {
					if s, ok := v.(string); ok {
						upd.Values = append(upd.Values, s)
					}
				}
			}
		}
		if err := s.cache.Submit(upd.Path, upd.Time, upd.Values); err != nil {
			client.sendError(req.ID, err.Error())
			return
		}
		client.sendOK(req.ID)

	default:
		client.sendError(req.ID, fmt.Sprintf("unknown request type: %s", req.Type))
	}
}

func (s *Server) broadcastResults(ch <-chan CommitResult) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx:
			return
		case result, ok := <-ch:
			if !ok {
				return
			}
			data := CommitResultData{Path: result.Path, Time: result.Time}
			if result.Error != nil {
				data.Error = result.Error.Error()
			}
			resp := Response{Type: MsgTypeCommitResult, Data: data}

			s.clientsMu.RLock()
			for client := range s.clients {
				client.mu.Lock()
				if client.subscribed {
					if err := client.encoder.Encode(resp); err != nil {
						logging.Error("UpdateCache", "failed to send result to client", err)
					}
				}
				client.mu.Unlock()
			}
			s.clientsMu.RUnlock()
		}
	}
}

// Stop shuts the server down, closing all client connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.ctx)
	if s.listener != nil {
		s.listener.Close()
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.conn.Close()
	}
	s.clientsMu.Unlock()

	s.wg.Wait()
	os.Remove(s.socketPath)
	logging.Info("UpdateCache", "server stopped", nil)
	return nil
}

func (c *serverClient) sendOK(reqID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoder.Encode(Response{ID: reqID, Type: MsgTypeOK})
}

func (c *serverClient) sendError(reqID string, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoder.Encode(Response{ID: reqID, Type: MsgTypeError, Error: msg})
}
