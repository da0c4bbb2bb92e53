package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iudanet/jiucom/internal/models"
	"github.com/iudanet/jiucom/internal/stomp"
)

const (
	writeWait      = 10 * time.Second
	connectWait    = 15 * time.Second
	maxMessageSize = 64 * 1024
)

// DefaultDestination - персональная очередь пользователя
const DefaultDestination = "/user/queue/notifications"

// ErrUnauthorized: сервер отклонил credential канала (401 на upgrade или
// ERROR в ответ на CONNECT). Канал перестает переподключаться.
var ErrUnauthorized = errors.New("notification channel unauthorized")

// State - состояние соединения канала
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Channel keeps one STOMP subscription alive and feeds received events into
// a Store. It reconnects after every transport drop until Stop is called.
type Channel struct {
	store          *Store
	dialer         *websocket.Dialer
	logger         *slog.Logger
	onEvent        func(Event)
	onAuthError    func(staleToken string)
	onState        func(State)
	cancel         context.CancelFunc
	done           chan struct{}
	url            string
	destination    string
	reconnectDelay time.Duration
	heartbeatOut   time.Duration
	heartbeatIn    time.Duration
	state          State
	lifecycle      sync.Mutex
	mu             sync.Mutex
}

// ChannelOption настраивает Channel
type ChannelOption func(*Channel)

// WithDestination задает STOMP destination; {userId} заменяется на id пользователя
func WithDestination(dest string) ChannelOption {
	return func(c *Channel) {
		c.destination = dest
	}
}

// WithReconnectDelay задает паузу перед переподключением
func WithReconnectDelay(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.reconnectDelay = d
	}
}

// WithHeartBeat задает желаемые интервалы heart-beat: out - как часто
// отправляем мы, in - как часто ждем от брокера. Ноль отключает направление.
func WithHeartBeat(out, in time.Duration) ChannelOption {
	return func(c *Channel) {
		c.heartbeatOut = out
		c.heartbeatIn = in
	}
}

// WithDialer подменяет websocket.Dialer
func WithDialer(d *websocket.Dialer) ChannelOption {
	return func(c *Channel) {
		c.dialer = d
	}
}

// WithChannelLogger задает логгер
func WithChannelLogger(logger *slog.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithEventHandler вызывается для каждого нового (не дубликата) события
func WithEventHandler(fn func(Event)) ChannelOption {
	return func(c *Channel) {
		c.onEvent = fn
	}
}

// WithStateHandler вызывается при каждой смене состояния
func WithStateHandler(fn func(State)) ChannelOption {
	return func(c *Channel) {
		c.onState = fn
	}
}

// NewChannel создает канал. wsURL - адрес STOMP endpoint, например
// ws://localhost:8080/ws/websocket.
func NewChannel(wsURL string, store *Store, opts ...ChannelOption) *Channel {
	c := &Channel{
		store:          store,
		dialer:         websocket.DefaultDialer,
		logger:         slog.New(slog.DiscardHandler),
		url:            wsURL,
		destination:    DefaultDestination,
		reconnectDelay: 5 * time.Second,
		heartbeatOut:   10 * time.Second,
		heartbeatIn:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnAuthError регистрирует обработчик отказа в авторизации. Он получает
// access token, которым подключался канал, и не должен блокировать:
// ожидается, что он обновит токен и вызовет Start заново.
func (c *Channel) OnAuthError(fn func(staleToken string)) {
	c.mu.Lock()
	c.onAuthError = fn
	c.mu.Unlock()
}

// State возвращает текущее состояние соединения
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if changed && fn != nil {
		fn(s)
	}
}

// Start (пере)запускает канал с указанным credential. Работающий канал
// сначала останавливается. Цикл подключения не привязан к ctx вызова:
// он живет до Stop.
func (c *Channel) Start(ctx context.Context, cred models.Credential, userID string) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	if _, err := url.Parse(c.url); err != nil || c.url == "" {
		return fmt.Errorf("invalid websocket url %q", c.url)
	}
	dest := strings.ReplaceAll(c.destination, "{userId}", userID)

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.stopLocked()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "starting notification channel", slog.String("destination", dest))

	go c.run(runCtx, done, cred.AccessToken, dest)

	return nil
}

// Stop закрывает соединение и отменяет переподключение.
// Безопасен в любом состоянии и при повторном вызове.
func (c *Channel) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.stopLocked()
}

func (c *Channel) stopLocked() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}

	c.setState(StateClosing)
	cancel()
	<-done
	c.setState(StateDisconnected)
}

// run - цикл подключений до отмены ctx или отказа в авторизации
func (c *Channel) run(ctx context.Context, done chan struct{}, token, dest string) {
	defer close(done)

	for {
		err := c.session(ctx, token, dest)
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, ErrUnauthorized) {
			c.setState(StateDisconnected)
			c.logger.WarnContext(ctx, "notification channel rejected credential", slog.Any("error", err))

			c.mu.Lock()
			fn := c.onAuthError
			c.mu.Unlock()
			if fn != nil {
				fn(token)
			}
			return
		}

		c.setState(StateDisconnected)
		c.logger.WarnContext(ctx, "notification channel dropped, reconnecting",
			slog.Any("error", err),
			slog.Duration("delay", c.reconnectDelay),
		)

		timer := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session выполняет одно подключение: CONNECT, SUBSCRIBE и чтение до обрыва
func (c *Channel) session(ctx context.Context, token, dest string) error {
	c.setState(StateConnecting)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: handshake status %d", ErrUnauthorized, resp.StatusCode)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)

	var writeMu sync.Mutex
	write := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	writeFrame := func(f *stomp.Frame) error {
		data, err := stomp.Encode(f)
		if err != nil {
			return err
		}
		return write(data)
	}

	// Остановка: вежливый DISCONNECT и закрытие сокета прерывают чтение
	stopWatch := context.AfterFunc(ctx, func() {
		_ = writeFrame(stomp.NewFrame(stomp.CmdDisconnect))
		_ = conn.Close()
	})
	defer stopWatch()

	host := ""
	if u, err := url.Parse(c.url); err == nil {
		host = u.Hostname()
	}

	connect := stomp.NewFrame(stomp.CmdConnect,
		stomp.HdrAcceptVersion, stomp.Version,
		stomp.HdrHost, host,
		stomp.HdrHeartBeat, stomp.FormatHeartBeat(c.heartbeatOut, c.heartbeatIn),
		stomp.HdrAuthorization, "Bearer "+token,
	)
	if err := writeFrame(connect); err != nil {
		return fmt.Errorf("failed to send CONNECT: %w", err)
	}

	connected, err := c.awaitConnected(conn)
	if err != nil {
		return err
	}

	serverSend, serverReceive, err := stomp.ParseHeartBeat(connected.Header.Get(stomp.HdrHeartBeat))
	if err != nil {
		c.logger.WarnContext(ctx, "ignoring broker heart-beat header", slog.Any("error", err))
		serverSend, serverReceive = 0, 0
	}
	sendEvery := stomp.Negotiate(c.heartbeatOut, serverReceive)
	expectEvery := stomp.Negotiate(serverSend, c.heartbeatIn)

	subscribe := stomp.NewFrame(stomp.CmdSubscribe,
		stomp.HdrID, uuid.NewString(),
		stomp.HdrDestination, dest,
		"ack", "auto",
	)
	if err := writeFrame(subscribe); err != nil {
		return fmt.Errorf("failed to send SUBSCRIBE: %w", err)
	}

	c.setState(StateConnected)
	c.logger.InfoContext(ctx, "notification channel connected",
		slog.String("destination", dest),
		slog.Duration("heartbeat_out", sendEvery),
		slog.Duration("heartbeat_in", expectEvery),
	)

	if sendEvery > 0 {
		hbCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go c.heartbeat(hbCtx, sendEvery, write)
	}

	return c.readLoop(ctx, conn, expectEvery)
}

// awaitConnected ждет CONNECTED; ERROR в ответ на CONNECT - отказ в авторизации
func (c *Channel) awaitConnected(conn *websocket.Conn) (*stomp.Frame, error) {
	_ = conn.SetReadDeadline(time.Now().Add(connectWait))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read CONNECTED: %w", err)
		}
		f, err := stomp.Decode(raw)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case stomp.CmdConnected:
			_ = conn.SetReadDeadline(time.Time{})
			return f, nil
		case stomp.CmdError:
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, stomp.ErrorMessage(f))
		default:
			return nil, fmt.Errorf("unexpected %s frame before CONNECTED", f.Command)
		}
	}
}

func (c *Channel) heartbeat(ctx context.Context, every time.Duration, write func([]byte) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(stomp.HeartBeat); err != nil {
				return
			}
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, expectEvery time.Duration) error {
	for {
		if expectEvery > 0 {
			// Допуск на задержку сети: два пропущенных heart-beat
			_ = conn.SetReadDeadline(time.Now().Add(2 * expectEvery))
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		f, err := stomp.Decode(raw)
		if err != nil {
			c.logger.WarnContext(ctx, "dropping undecodable frame", slog.Any("error", err))
			continue
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case stomp.CmdMessage:
			c.handleMessage(ctx, f)
		case stomp.CmdError:
			return fmt.Errorf("broker error: %s", stomp.ErrorMessage(f))
		case stomp.CmdReceipt:
		default:
			c.logger.DebugContext(ctx, "ignoring frame", slog.String("command", f.Command))
		}
	}
}

func (c *Channel) handleMessage(ctx context.Context, f *stomp.Frame) {
	ev, err := ParseEvent(f.Body)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping malformed notification",
			slog.String("message_id", f.Header.Get(stomp.HdrMessageID)),
			slog.Any("error", err),
		)
		return
	}

	if !c.store.Append(ev) {
		c.logger.DebugContext(ctx, "duplicate notification ignored", slog.Int64("id", ev.ID))
		return
	}

	if c.onEvent != nil {
		c.onEvent(ev)
	}
}
