package broker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/jiucom/internal/server/middleware"
	"github.com/iudanet/jiucom/internal/stomp"
)

var errSlowConsumer = errors.New("send buffer full")

// session одна STOMP сессия поверх WebSocket соединения
type session struct {
	broker *Broker
	conn   *websocket.Conn
	logger *slog.Logger
	send   chan []byte
	done   chan struct{}
	closed chan struct{}     // writeLoop завершился
	subs   map[string]string // subscription id -> destination
	userID string
	once   sync.Once
	mu     sync.Mutex
}

func newSession(b *Broker, conn *websocket.Conn) *session {
	return &session{
		broker: b,
		conn:   conn,
		logger: b.logger,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		subs:   make(map[string]string),
	}
}

// run ведет сессию до разрыва соединения
func (s *session) run(headerToken string) {
	defer s.conn.Close()

	connect, err := s.readConnect()
	if err != nil {
		s.logger.Debug("STOMP handshake failed", slog.Any("error", err))
		return
	}

	token := headerToken
	if t, ok := middleware.BearerToken(connect.Header.Get(stomp.HdrAuthorization)); ok {
		token = t
	}
	if token == "" {
		_ = s.writeDirect(errorFrame("unauthorized", "missing bearer token"))
		return
	}
	userID, err := s.broker.validate(token)
	if err != nil {
		s.logger.Warn("STOMP CONNECT rejected", slog.Any("error", err))
		_ = s.writeDirect(errorFrame("unauthorized", "invalid token"))
		return
	}
	s.userID = userID
	s.logger = s.logger.With(slog.String("user_id", userID))

	clientSend, clientReceive, err := stomp.ParseHeartBeat(connect.Header.Get(stomp.HdrHeartBeat))
	if err != nil {
		_ = s.writeDirect(errorFrame("malformed heart-beat", err.Error()))
		return
	}
	sendEvery := stomp.Negotiate(s.broker.heartbeat, clientReceive)
	expectEvery := stomp.Negotiate(clientSend, s.broker.heartbeat)

	connected := stomp.NewFrame(stomp.CmdConnected,
		stomp.HdrVersion, stomp.Version,
		stomp.HdrHeartBeat, stomp.FormatHeartBeat(s.broker.heartbeat, s.broker.heartbeat),
		"server", serverName,
		"user-name", userID,
	)
	if err := s.writeDirect(connected); err != nil {
		return
	}

	s.broker.register(s)
	defer s.broker.unregister(s)

	s.logger.Info("STOMP session connected",
		slog.Duration("heartbeat_out", sendEvery),
		slog.Duration("heartbeat_in", expectEvery))

	go s.writeLoop(sendEvery)

	err = s.readLoop(expectEvery)
	s.close()
	<-s.closed
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("STOMP session closed", slog.Any("error", err))
		return
	}
	s.logger.Info("STOMP session disconnected")
}

// readConnect ждет первый кадр, он обязан быть CONNECT или STOMP
func (s *session) readConnect() (*stomp.Frame, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(connectWait))
	defer func() {
		_ = s.conn.SetReadDeadline(time.Time{})
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		f, err := stomp.Decode(data)
		if err != nil {
			_ = s.writeDirect(errorFrame("malformed frame", err.Error()))
			return nil, err
		}
		if f == nil {
			continue
		}
		if f.Command != stomp.CmdConnect && f.Command != stomp.CmdStomp {
			_ = s.writeDirect(errorFrame("expected CONNECT", "got "+f.Command))
			return nil, errors.New("first frame is " + f.Command)
		}
		return f, nil
	}
}

func (s *session) readLoop(expectEvery time.Duration) error {
	for {
		if expectEvery > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(2 * expectEvery))
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		f, err := stomp.Decode(data)
		if err != nil {
			_ = s.enqueueFrame(errorFrame("malformed frame", err.Error()))
			return err
		}
		if f == nil {
			// heart-beat
			continue
		}

		switch f.Command {
		case stomp.CmdSubscribe:
			if err := s.subscribe(f); err != nil {
				return err
			}
		case stomp.CmdUnsubscribe:
			s.mu.Lock()
			delete(s.subs, f.Header.Get(stomp.HdrID))
			s.mu.Unlock()
			s.receipt(f)
		case stomp.CmdDisconnect:
			s.receipt(f)
			return nil
		default:
			_ = s.enqueueFrame(errorFrame("unsupported command", f.Command+" is not supported by this broker"))
			return errors.New("unsupported command " + f.Command)
		}
	}
}

func (s *session) subscribe(f *stomp.Frame) error {
	id := f.Header.Get(stomp.HdrID)
	dest := f.Header.Get(stomp.HdrDestination)
	if id == "" || dest == "" {
		_ = s.enqueueFrame(errorFrame("malformed SUBSCRIBE", "id and destination are required"))
		return errors.New("malformed SUBSCRIBE")
	}
	if !allowed(s.userID, dest) {
		s.logger.Warn("STOMP subscription denied", slog.String("destination", dest))
		_ = s.enqueueFrame(errorFrame("access denied", "cannot subscribe to "+dest))
		return errors.New("subscription denied")
	}

	s.mu.Lock()
	s.subs[id] = dest
	s.mu.Unlock()

	s.logger.Debug("STOMP subscribed", slog.String("destination", dest), slog.String("id", id))
	s.receipt(f)
	return nil
}

func (s *session) receipt(f *stomp.Frame) {
	if r := f.Header.Get(stomp.HdrReceipt); r != "" {
		_ = s.enqueueFrame(stomp.NewFrame(stomp.CmdReceipt, stomp.HdrReceiptID, r))
	}
}

// deliver ставит MESSAGE в очередь для каждой подписки сессии
func (s *session) deliver(body []byte) bool {
	s.mu.Lock()
	subs := make(map[string]string, len(s.subs))
	for id, dest := range s.subs {
		subs[id] = dest
	}
	s.mu.Unlock()

	sent := false
	for id, dest := range subs {
		if s.enqueueFrame(newMessage(dest, id, body)) == nil {
			sent = true
		}
	}
	return sent
}

func (s *session) enqueueFrame(f *stomp.Frame) error {
	data, err := stomp.Encode(f)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return websocket.ErrCloseSent
	default:
		// Медленный клиент: закрываем, после переподключения он досинхронизируется через REST
		s.logger.Warn("STOMP client too slow, closing session")
		s.close()
		return errSlowConsumer
	}
}

// writeLoop единственный писатель в соединение после CONNECTED
func (s *session) writeLoop(heartbeat time.Duration) {
	defer close(s.closed)

	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-s.send:
			if err := s.write(data); err != nil {
				s.close()
				return
			}
		case <-tick:
			if err := s.write(stomp.HeartBeat); err != nil {
				s.close()
				return
			}
		case <-s.done:
			// Дописываем то, что уже в очереди (ERROR, RECEIPT)
			for {
				select {
				case data := <-s.send:
					_ = s.write(data)
				default:
					_ = s.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
					_ = s.conn.Close()
					return
				}
			}
		}
	}
}

func (s *session) write(data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// writeDirect пишет до запуска writeLoop
func (s *session) writeDirect(f *stomp.Frame) error {
	data, err := stomp.Encode(f)
	if err != nil {
		return err
	}
	return s.write(data)
}

// fail отправляет ERROR и закрывает сессию
func (s *session) fail(message string) {
	_ = s.enqueueFrame(errorFrame(message, ""))
	s.close()
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
	})
}

func errorFrame(message, details string) *stomp.Frame {
	f := stomp.NewFrame(stomp.CmdError,
		stomp.HdrMessage, message,
		stomp.HdrContentType, "text/plain",
	)
	if details != "" {
		f.Body = []byte(details)
	}
	return f
}
