// Package stomp carries STOMP 1.2 frames over WebSocket messages, one frame
// per text message, the way SockJS/STOMP.js brokers exchange them.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// Команды STOMP, используемые клиентом и брокером
const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdMessage     = "MESSAGE"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
	CmdReceipt     = "RECEIPT"
)

// Заголовки STOMP
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrContentType   = "content-type"
	HdrMessage       = "message"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrAuthorization = "Authorization"
)

// Version is the only protocol version spoken here.
const Version = "1.2"

// ErrMalformedHeartBeat возвращается для некорректного заголовка heart-beat
var ErrMalformedHeartBeat = errors.New("malformed heart-beat header")

// Frame re-exports the codec frame type so callers do not import it directly.
type Frame = frame.Frame

// NewFrame creates a frame with header key/value pairs.
func NewFrame(command string, headers ...string) *Frame {
	return frame.New(command, headers...)
}

// Encode сериализует кадр для отправки одним WebSocket сообщением
func Encode(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// HeartBeat is the single end-of-line a peer sends to prove it is alive.
var HeartBeat = []byte("\n")

// Decode разбирает одно WebSocket сообщение.
// Для heart-beat (пустая строка) возвращает nil frame без ошибки.
func Decode(data []byte) (*Frame, error) {
	if len(bytes.Trim(data, "\r\n")) == 0 {
		return nil, nil
	}

	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f, nil
}

// FormatHeartBeat формирует значение заголовка heart-beat "cx,cy" в миллисекундах:
// cx - как часто мы отправляем, cy - как часто хотим получать.
func FormatHeartBeat(send, receive time.Duration) string {
	return strconv.FormatInt(send.Milliseconds(), 10) + "," + strconv.FormatInt(receive.Milliseconds(), 10)
}

// ParseHeartBeat разбирает заголовок heart-beat. Пустое значение означает "0,0".
func ParseHeartBeat(value string) (send, receive time.Duration, err error) {
	if value == "" {
		return 0, 0, nil
	}

	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, 0, ErrMalformedHeartBeat
	}

	x, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || x < 0 {
		return 0, 0, ErrMalformedHeartBeat
	}
	y, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || y < 0 {
		return 0, 0, ErrMalformedHeartBeat
	}

	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond, nil
}

// Negotiate вычисляет фактический интервал в одном направлении.
// localSend - сколько готова отправлять одна сторона, remoteReceive - что хочет получать другая.
// Ноль с любой стороны отключает heart-beat в этом направлении.
func Negotiate(localSend, remoteReceive time.Duration) time.Duration {
	if localSend == 0 || remoteReceive == 0 {
		return 0
	}
	return max(localSend, remoteReceive)
}

// ErrorMessage достает текст ошибки из ERROR кадра
func ErrorMessage(f *Frame) string {
	if msg := f.Header.Get(HdrMessage); msg != "" {
		return msg
	}
	return strings.TrimSpace(string(f.Body))
}
