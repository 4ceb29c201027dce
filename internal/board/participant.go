package board

import (
	"encoding/json"
	"log"
	"sync"
)

// TextMessage mirrors websocket.TextMessage so this package does not depend
// on the websocket library directly.
const TextMessage = 1

// Conn is the minimal connection surface a participant needs. Satisfied by
// *websocket.Conn.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Participant is one live connection in a room: identity, display color and
// the socket handle. Outbound delivery runs through a buffered queue drained
// by a dedicated writer goroutine, so a slow connection never blocks the
// room's broadcaster; when the queue is full the message is dropped
// (best-effort delivery, a rejoin snapshot supersedes anything missed).
type Participant struct {
	ID       int64
	Nickname string
	Color    string

	conn      Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewParticipant wraps a connection and starts its writer goroutine.
func NewParticipant(id int64, nickname string, conn Conn, sendBuffer int) *Participant {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	p := &Participant{
		ID:       id,
		Nickname: nickname,
		conn:     conn,
		out:      make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

// SendEvent marshals and queues one event for this participant only; used
// for snapshots and submitter-only errors.
func (p *Participant) SendEvent(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[Participant %d] failed to marshal %s event: %v", p.ID, e.Type, err)
		return
	}
	p.send(data)
}

// send enqueues a message without blocking. Messages to a closed or
// backed-up participant are dropped.
func (p *Participant) send(data []byte) {
	select {
	case <-p.done:
	case p.out <- data:
	default:
		log.Printf("[Participant %d] send buffer full, dropping message", p.ID)
	}
}

func (p *Participant) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.out:
			if err := p.conn.WriteMessage(TextMessage, data); err != nil {
				log.Printf("[Participant %d] write failed: %v", p.ID, err)
				return
			}
		}
	}
}

// Close stops the writer and closes the underlying connection. Safe to call
// more than once.
func (p *Participant) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}
