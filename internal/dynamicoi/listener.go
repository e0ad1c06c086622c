package dynamicoi

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// CallFunc receives each decoded record on the listener goroutine.
type CallFunc func(*Record)

// Listener accepts the tracer's connection on a loopback port and decodes
// its records until the connection closes. Only the first connection is
// served.
type Listener struct {
	ln      *net.TCPListener
	onCall  CallFunc
	log     *slog.Logger
	done    chan struct{}
	records atomic.Int64
	err     error
}

// Listen opens a listener on 127.0.0.1 with a free port and starts serving
// in the background.
func Listen(onCall CallFunc, log *slog.Logger) (*Listener, error) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	l := &Listener{ln: ln, onCall: onCall, log: log, done: make(chan struct{})}
	go l.serve()
	return l, nil
}

// Port returns the port the tracer must connect to.
func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

func (l *Listener) serve() {
	defer close(l.done)
	conn, err := l.ln.Accept()
	l.ln.Close()
	if err != nil {
		l.log.Debug("tracer never connected", "error", err)
		return
	}
	defer conn.Close()

	dec := NewDecoder(conn)
	for {
		rec, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			l.err = err
			l.log.Warn("dropping trace connection", "error", err)
			return
		}
		l.records.Add(1)
		if l.onCall != nil {
			l.onCall(rec)
		}
	}
}

// Stop gives a tracer that has not connected yet grace to do so, then stops
// accepting. An established connection is still read to its end.
func (l *Listener) Stop(grace time.Duration) {
	if err := l.ln.SetDeadline(time.Now().Add(grace)); err != nil {
		l.ln.Close()
	}
}

// Wait blocks until the listener goroutine has finished and returns the
// decode error that ended it, if any.
func (l *Listener) Wait() error {
	<-l.done
	return l.err
}

// Records returns the number of records decoded so far.
func (l *Listener) Records() int {
	return int(l.records.Load())
}
