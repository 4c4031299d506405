package core

import (
	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/errcode"
	"github.com/marklacroix/dht/types"
)

// Request messages get exactly one reply; fire-and-forget publishes are
// acknowledged by silence.

func (h *HAL) replyOK(m *bus.Message) {
	if m.CanReply() {
		h.conn.Reply(m, types.OKReply{OK: true}, false)
	}
}

// replyErr answers with the stable code carried by err, extracted via
// errcode.Of so device errors and plain codes travel the same path.
func (h *HAL) replyErr(m *bus.Message, err error) {
	if !m.CanReply() {
		return
	}
	code := errcode.Of(err)
	if code == "" || code == errcode.OK {
		code = errcode.Error
	}
	h.conn.Reply(m, types.ErrorReply{OK: false, Error: string(code)}, false)
}
