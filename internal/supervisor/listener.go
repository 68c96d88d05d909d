// Package supervisor implements the two supervisord collaborators: the
// event-listener protocol that delivers heartbeat ticks on stdin/stdout,
// and the XML-RPC client used to control managed processes.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fseventwatcher/internal/logging"
)

const (
	readyToken   = "READY\n"
	resultOK     = "OK"
	tickPrefix   = "TICK"
	headerName   = "eventname"
	headerLen    = "len"
	headerSerial = "serial"
)

// Event is one notification received from supervisord.
type Event struct {
	Name    string
	Serial  string
	Headers map[string]string
	Payload []byte
}

// IsTick reports whether the event is a heartbeat (TICK_5, TICK_60, ...).
func (event Event) IsTick() bool {
	return strings.HasPrefix(event.Name, tickPrefix)
}

// Listener speaks the supervisor event-listener protocol: announce READY,
// read one event header line plus payload, hand the event to the handler,
// acknowledge, repeat. Events are therefore handled strictly sequentially
// in arrival order.
type Listener struct {
	reader *bufio.Reader
	writer io.Writer
	logger *logging.Logger
}

func NewListener(reader io.Reader, writer io.Writer, logger *logging.Logger) *Listener {
	return &Listener{
		reader: bufio.NewReader(reader),
		writer: writer,
		logger: logger,
	}
}

// Run loops until the event stream ends. Stream loss (EOF or a protocol
// error) is terminal and returned to the caller; reconnection is
// supervisord's concern, which respawns its listeners.
func (listener *Listener) Run(handler func(Event)) error {
	if listener == nil {
		return fmt.Errorf("listener is nil")
	}
	for {
		if err := listener.ready(); err != nil {
			return fmt.Errorf("announce ready: %w", err)
		}

		event, err := listener.readEvent()
		if err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return fmt.Errorf("read event: %w", err)
		}

		if listener.logger != nil {
			listener.logger.Debug("event received", map[string]string{
				"eventname": event.Name,
				"serial":    event.Serial,
			})
		}
		if handler != nil {
			handler(event)
		}

		if err := listener.acknowledge(); err != nil {
			return fmt.Errorf("acknowledge event: %w", err)
		}
	}
}

func (listener *Listener) ready() error {
	_, err := io.WriteString(listener.writer, readyToken)
	return err
}

func (listener *Listener) acknowledge() error {
	_, err := fmt.Fprintf(listener.writer, "RESULT %d\n%s", len(resultOK), resultOK)
	return err
}

func (listener *Listener) readEvent() (Event, error) {
	line, err := listener.reader.ReadString('\n')
	if err != nil {
		return Event{}, err
	}

	headers, err := parseHeader(line)
	if err != nil {
		return Event{}, err
	}

	payloadLen := 0
	if raw, ok := headers[headerLen]; ok {
		payloadLen, err = strconv.Atoi(raw)
		if err != nil || payloadLen < 0 {
			return Event{}, fmt.Errorf("invalid payload length %q", raw)
		}
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(listener.reader, payload); err != nil {
		return Event{}, err
	}

	return Event{
		Name:    headers[headerName],
		Serial:  headers[headerSerial],
		Headers: headers,
		Payload: payload,
	}, nil
}

func parseHeader(line string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, token := range strings.Fields(line) {
		key, value, found := strings.Cut(token, ":")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed header token %q", token)
		}
		headers[key] = value
	}
	if _, ok := headers[headerName]; !ok {
		return nil, fmt.Errorf("header line missing eventname: %q", strings.TrimSpace(line))
	}
	return headers, nil
}
