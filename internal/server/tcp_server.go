// Package server accepts tracker connections and drives one session per
// connection goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/observability"
	"avl-gateway/internal/session"
	"avl-gateway/internal/store"
)

type TCPServer struct {
	directory  session.DeviceDirectory
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger

	pollInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New builds the acceptor. In degraded mode (st is nil) the directory stays
// nil; sessions then reject every login and close, so no AVL frames reach
// the dispatcher.
func New(st *store.Store, d *dispatcher.Dispatcher, pollInterval time.Duration, logger *zap.Logger) *TCPServer {
	var dir session.DeviceDirectory
	if st != nil {
		dir = st
	}
	return &TCPServer{
		directory:    dir,
		dispatcher:   d,
		logger:       logger.With(zap.String("component", "tcp")),
		pollInterval: pollInterval,
		sessions:     make(map[string]*session.Session),
	}
}

// Start blocks accepting connections until ctx is done. It returns an error
// only when listening on addr fails; accept errors are logged and the loop
// continues.
func (srv *TCPServer) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp listen on %s: %w", addr, err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	srv.logger.Info("listening", zap.String("addr", addr))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			srv.logger.Error("accept failed", zap.Error(err))
			continue
		}
		observability.TCPConnections.Inc()
		go srv.handleConnection(ctx, conn)
	}
}

func (srv *TCPServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(60 * time.Second)
	}

	remote := conn.RemoteAddr().String()
	sess := session.New(remote, srv.directory, srv.logger)

	srv.mu.Lock()
	srv.sessions[remote] = sess
	srv.mu.Unlock()

	stopPoll := srv.startLivenessPoll(sess)
	defer func() {
		stopPoll()
		srv.mu.Lock()
		delete(srv.sessions, remote)
		srv.mu.Unlock()
		if sess.Imei != "" {
			dispatcher.ReleaseSession(sess.Imei)
			srv.logger.Info("device disconnected", zap.String("imei", sess.Imei))
		}
		sess.Disconnect(context.Background())
	}()

	loginDeadline := time.Now().Add(session.LoginTimeout)
	buffer := make([]byte, 2048)
	for {
		// Unauthenticated peers get the login window, nothing more.
		if !sess.Authenticated() {
			_ = conn.SetReadDeadline(loginDeadline)
		} else {
			_ = conn.SetReadDeadline(time.Time{})
		}

		n, err := conn.Read(buffer)
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) && opErr.Timeout() && !sess.Authenticated() {
				srv.logger.Info("login timeout", zap.String("remote", remote))
				return
			}
			if err != io.EOF {
				srv.logger.Warn("read failed", zap.String("remote", remote), zap.Error(err))
			}
			return
		}
		if n == 0 {
			continue
		}

		start := time.Now()
		res := sess.Feed(ctx, buffer[:n])
		observability.ObserveDecodeLatency(start)

		// Acks go out before persistence starts; the device's retry buffer is
		// the only upstream queue and it drains on ack.
		for _, reply := range res.Replies {
			if _, err := conn.Write(reply); err != nil {
				srv.logger.Warn("write failed", zap.String("remote", remote), zap.Error(err))
				return
			}
		}
		for _, in := range res.Packets {
			observability.RecordsAcked.Add(float64(in.Packet.NumberOfData1))
			srv.dispatcher.ProcessInbound(ctx, sess, in)
		}
		for _, text := range res.Commands {
			srv.dispatcher.HandleCommandResponse(ctx, sess.Imei, text)
		}
		if res.Close {
			return
		}

		// First frames acked: a good moment for queued operator commands.
		if sess.Authenticated() && len(res.Packets) > 0 {
			srv.dispatcher.TrySchedule(ctx, sess.Imei, "getver", conn)
		}
	}
}

// startLivenessPoll runs the observability ticker. It only logs; it must not
// write to the wire.
func (srv *TCPServer) startLivenessPoll(sess *session.Session) func() {
	if srv.pollInterval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(srv.pollInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				srv.logger.Debug("session liveness",
					zap.String("remote", sess.Remote),
					zap.String("imei", sess.Imei),
					zap.String("state", sess.State()),
					zap.Time("lastByteAt", sess.LastByteAt))
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}
