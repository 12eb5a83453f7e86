package golib

import (
	"github.com/wippyai/ir-runtime/native"
)

type bufferData struct {
	name string
	data []byte
}

// CreateMemoryBufferWithMemoryRangeCopy copies data into a new buffer.
func (l *Library) CreateMemoryBufferWithMemoryRangeCopy(data []byte, name string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newBuffer(append([]byte(nil), data...), name)
}

func (l *Library) newBuffer(data []byte, name string) native.Ref {
	return l.alloc(kindBuffer, native.Null, &bufferData{name: name, data: data})
}

func (l *Library) buffer(op string, buf native.Ref) (*bufferData, bool) {
	o, ok := l.get(op, buf, kindBuffer)
	if !ok {
		return nil, false
	}
	return o.data.(*bufferData), true
}

// GetBufferStart returns the buffer contents without copying.
func (l *Library) GetBufferStart(buf native.Ref) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, ok := l.buffer("GetBufferStart", buf)
	if !ok {
		return nil
	}
	return bd.data
}

// GetBufferSize returns the buffer length.
func (l *Library) GetBufferSize(buf native.Ref) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, ok := l.buffer("GetBufferSize", buf)
	if !ok {
		return 0
	}
	return len(bd.data)
}

// DisposeMemoryBuffer frees a buffer.
func (l *Library) DisposeMemoryBuffer(buf native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.release("DisposeMemoryBuffer", buf, kindBuffer); !ok {
		return
	}
	l.free(buf)
}

// newMessage allocates a message string. The lock must be held.
func (l *Library) newMessage(s string) native.Ref {
	return l.alloc(kindMessage, native.Null, s)
}

// GetMessage returns the text of a message.
func (l *Library) GetMessage(msg native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.get("GetMessage", msg, kindMessage)
	if !ok {
		return ""
	}
	return o.data.(string)
}

// DisposeMessage frees a message.
func (l *Library) DisposeMessage(msg native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.release("DisposeMessage", msg, kindMessage); !ok {
		return
	}
	l.free(msg)
}
