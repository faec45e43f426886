package cable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Websocket server which hosts channels.
type Server struct {
	// Underlying http.Server
	httpServer *http.Server
	// Listener opened by Start
	listener net.Listener
	// Channels clients can subscribe to
	registry *Registry
	// Configuration options used by the server
	opts *ServerConfigurationOptions
	// PubSub shared by all connections
	pubsub PubSub
	// Optional connection handler
	handler ConnectionHandler
	// Interceptors applied to every callback
	interceptors []Interceptor
	// Client sessions
	sessions map[string]*session
	// Mutex used to protect sessions and to coordinate session registration with shutdown
	sessionsMu sync.Mutex
	// Used to wait for all sessions to exit on shutdown
	sessionsWg sync.WaitGroup
	// Total number of accepted connections since server has been created
	openedConnectionsCount atomic.Int64
	// Indicates that server has started
	started bool
	// Root context
	rootCtx context.Context
	// Context bound to websocket server lifetime
	serverCtx context.Context
	// Cancel function used to stop server
	cancelServerCtx context.CancelFunc
	// Tracer used to instrument server code
	tracer trace.Tracer
	// Reference to instruments used to record server metrics
	instruments *serverInstruments
	// Logger
	logger *zap.Logger
	// Internal mutex used to coordinate start/stop
	startMu *sync.Mutex
}

// Internal structure used to retain references to instruments that record server metrics.
type serverInstruments struct {
	// Gauge that monitors the number of active connections
	activeConnectionsGauge metric.Int64ObservableGauge
	// Gauge that monitors server Started state flag
	startedGauge metric.Int64ObservableGauge
	// Counter that monitors the total number of accepted connections
	connectionsCounter metric.Int64ObservableCounter
}

// Internal structure that represents a client session
type session struct {
	// Underlying websocket connection
	conn *websocket.Conn
	// Connection state and subscriptions
	connection *Connection
	// Transmitter bound to conn
	transmitter *websocketTransmitter
	// Context bound to the session lifetime
	ctx context.Context
	// Cancel function used to terminate the session
	cancel context.CancelFunc
}

// Transmitter which writes JSON encoded messages to a websocket connection.
type websocketTransmitter struct {
	conn *websocket.Conn
}

func (t *websocketTransmitter) Transmit(ctx context.Context, msg *Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("could not marshal message: %w", err)
	}
	return t.conn.Write(ctx, websocket.MessageText, raw)
}

// # Description
//
// Factory which creates a new, non-started Server.
//
// # Inputs
//
//   - ctx: Parent context to use as root context. All connection contextes derive from this
//     context: values it carries (ex: a Sentry hub) are visible to interceptors.
//   - httpServer: The underlying HTTP Server to use. The provided HTTP Server handler will be
//     overriden with this server handler. If nil, a server listening on localhost:8080 is used.
//   - registry: Channels clients can subscribe to. Must not be nil.
//   - opts: Server configuration options. If nil, default options are used.
//   - logger: Logger to use. If nil, a Nop logger is used.
//   - tracerProvider: Tracer provider to use. If nil, the global tracer provider is used.
//   - meterProvider: Meter provider to use. If nil, the global meter provider is used.
//
// # Returns
//
// A new, non-started Server or an error if any has occured.
func NewServer(
	ctx context.Context,
	httpServer *http.Server,
	registry *Registry,
	opts *ServerConfigurationOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("provided registry is nil")
	}
	if opts == nil {
		opts = NewServerConfigurationOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	if httpServer == nil {
		httpServer = &http.Server{Addr: "localhost:8080"}
	}
	// Use provided context as base context of all requests
	httpServer.BaseContext = func(l net.Listener) context.Context { return ctx }
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	meter := meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion))
	srvCtx, srvCancel := context.WithCancel(ctx)
	srv := &Server{
		httpServer:      httpServer,
		registry:        registry,
		opts:            opts,
		pubsub:          NewMemoryPubSub(),
		sessions:        map[string]*session{},
		rootCtx:         ctx,
		serverCtx:       srvCtx,
		cancelServerCtx: srvCancel,
		tracer:          tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		logger:          logger,
		startMu:         &sync.Mutex{},
	}
	// Create and configure gauge that will watch the number of active connections
	activeConnectionsGauge, err := meter.Int64ObservableGauge(metricActiveConnectionsGauge, metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
		io.Observe(int64(srv.ActiveConnections()))
		return nil
	}))
	if err != nil {
		return nil, err
	}
	// Create and configure gauge that will watch Started state flag (1 -> started | 0 -> not started)
	startedGauge, err := meter.Int64ObservableGauge(metricStartedGauge, metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
		if srv.IsStarted() {
			io.Observe(1)
		} else {
			io.Observe(0)
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	// Create counter that records the total number of accepted connections
	connectionsCounter, err := meter.Int64ObservableCounter(metricConnectionsCounter, metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
		io.Observe(srv.openedConnectionsCount.Load())
		return nil
	}))
	if err != nil {
		return nil, err
	}
	// Store references to instruments inside server struct to prevent them from being GCed
	srv.instruments = &serverInstruments{
		activeConnectionsGauge: activeConnectionsGauge,
		startedGauge:           startedGauge,
		connectionsCounter:     connectionsCounter,
	}
	// Override http.Server handler
	srv.httpServer.Handler = srv
	return srv, nil
}

// # Description
//
// Add interceptors applied to every callback of connections accepted afterwards. Must be called
// before Start.
func (srv *Server) Use(interceptors ...Interceptor) {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	srv.interceptors = append(srv.interceptors, interceptors...)
}

// # Description
//
// Set the connection handler used by connections accepted afterwards. Must be called before
// Start.
func (srv *Server) SetConnectionHandler(handler ConnectionHandler) {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	srv.handler = handler
}

// # Description
//
// Start the websocket server that will accept incoming websocket connections. The listener is
// opened before the method returns.
func (srv *Server) Start() error {
	select {
	case <-srv.serverCtx.Done():
		return fmt.Errorf("server context is done. A new server with a non-terminated context must be created")
	default:
	}
	_, span := srv.tracer.Start(srv.serverCtx, spanServerStart, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(
		attribute.String(attrHost, srv.httpServer.Addr),
	))
	defer span.End()
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.started {
		return handlePotentialError(fmt.Errorf("server already started"), span)
	}
	ln, err := net.Listen("tcp", srv.httpServer.Addr)
	if err != nil {
		return handlePotentialError(ServerStartError{Err: err}, span)
	}
	srv.listener = ln
	srv.started = true
	go func() {
		if err := srv.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Error("http server failed", zap.Error(err))
		}
	}()
	srv.logger.Info("cable server started", zap.String("address", ln.Addr().String()), zap.String("path", srv.opts.MountPath))
	return handlePotentialError(nil, span)
}

// # Description
//
// Gracefully shutdown the websocket server: clients receive a 'server_restart' disconnect
// message, all subscriptions are removed, connection disconnect callbacks are called and the
// HTTP server is shutdown.
//
// # Returns
//
// Nil in case of success, an error otherwise.
func (srv *Server) Stop() error {
	ctx, span := srv.tracer.Start(srv.rootCtx, spanServerStop, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started {
		return handlePotentialError(fmt.Errorf("server not started"), span)
	}
	srv.started = false
	if srv.opts.ShutdownTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(srv.opts.ShutdownTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	// Notify clients and cancel server context so no session can be registered anymore
	srv.sessionsMu.Lock()
	for _, sess := range srv.sessions {
		if err := sess.transmitter.Transmit(ctx, newDisconnectMessage(DISCONNECT_REASON_SERVER_RESTART, true)); err != nil {
			srv.logger.Debug("could not send disconnect message", zap.String("connection_id", sess.connection.ID()), zap.Error(err))
		}
	}
	srv.cancelServerCtx()
	srv.sessionsMu.Unlock()
	// Wait for sessions to exit
	done := make(chan struct{})
	go func() {
		srv.sessionsWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.logger.Warn("all client sessions could not be terminated before timeout", zap.Int("remaining", srv.ActiveConnections()))
	}
	// Shutdown the HTTP server
	err := srv.httpServer.Shutdown(ctx)
	if err == nil {
		srv.logger.Info("cable server stopped")
	}
	return handlePotentialError(err, span)
}

// Returns the server started state.
func (srv *Server) IsStarted() bool {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	return srv.started
}

// Return the address the server listens on, or the configured address if not started.
func (srv *Server) Addr() string {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.listener != nil {
		return srv.listener.Addr().String()
	}
	return srv.httpServer.Addr
}

// Return the number of active client sessions.
func (srv *Server) ActiveConnections() int {
	srv.sessionsMu.Lock()
	defer srv.sessionsMu.Unlock()
	return len(srv.sessions)
}

// # Description
//
// Deliver message to every subscription which streams from the broadcasting.
func (srv *Server) Broadcast(ctx context.Context, broadcasting string, message any) error {
	ctx, span := srv.tracer.Start(ctx, spanServerBroadcast, trace.WithSpanKind(trace.SpanKindProducer), trace.WithAttributes(
		attribute.String(attrBroadcasting, broadcasting),
	))
	defer span.End()
	return handlePotentialError(srv.pubsub.Broadcast(ctx, broadcasting, message), span)
}

/*************************************************************************************************/
/* CLIENT SESSIONS                                                                               */
/*************************************************************************************************/

// # Description
//
// Server handler which accepts incoming websocket connections on the mount path. The handler
// blocks for the whole session lifetime.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != srv.opts.MountPath {
		http.NotFound(w, r)
		return
	}
	_, acceptSpan := srv.tracer.Start(srv.serverCtx, spanServerAccept, trace.WithSpanKind(trace.SpanKindServer))
	// Register session in wait group unless server is shutting down
	srv.sessionsMu.Lock()
	if srv.serverCtx.Err() != nil {
		srv.sessionsMu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		handlePotentialError(srv.serverCtx.Err(), acceptSpan)
		acceptSpan.End()
		return
	}
	srv.sessionsWg.Add(1)
	srv.sessionsMu.Unlock()
	defer srv.sessionsWg.Done()
	// Accept incoming client connection
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{PROTOCOL_JSON_V1},
		OriginPatterns: srv.opts.OriginPatterns,
	})
	if err != nil {
		srv.logger.Warn("an error occured while accepting client connection", zap.Error(err))
		handlePotentialError(err, acceptSpan)
		acceptSpan.End()
		return
	}
	if srv.opts.ReadLimitBytes > 0 {
		c.SetReadLimit(srv.opts.ReadLimitBytes)
	}
	srv.openedConnectionsCount.Add(1)
	sess, err := srv.newSession(c, r)
	if err != nil {
		srv.logger.Error("could not create client session", zap.Error(err))
		handlePotentialError(err, acceptSpan)
		acceptSpan.End()
		c.Close(websocket.StatusInternalError, "internal server error")
		return
	}
	acceptSpan.SetAttributes(attribute.String(attrConnectionId, sess.connection.ID()))
	handlePotentialError(nil, acceptSpan)
	acceptSpan.End()
	// Run session until it is terminated
	srv.runSession(sess)
}

// Create and register a new client session
func (srv *Server) newSession(c *websocket.Conn, r *http.Request) (*session, error) {
	uuid4, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	srv.startMu.Lock()
	handler := srv.handler
	interceptors := append([]Interceptor{}, srv.interceptors...)
	srv.startMu.Unlock()
	transmitter := &websocketTransmitter{conn: c}
	connection, err := NewConnection(ConnectionOptions{
		ID:           uuid4.String(),
		Name:         srv.opts.ConnectionName,
		Request:      r,
		Registry:     srv.registry,
		Transmitter:  transmitter,
		PubSub:       srv.pubsub,
		Handler:      handler,
		Interceptors: interceptors,
		Logger:       srv.logger,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(srv.serverCtx)
	sess := &session{
		conn:        c,
		connection:  connection,
		transmitter: transmitter,
		ctx:         ctx,
		cancel:      cancel,
	}
	srv.sessionsMu.Lock()
	srv.sessions[connection.ID()] = sess
	srv.sessionsMu.Unlock()
	return sess, nil
}

// Open the connection, process commands until the connection is closed and cleanup
func (srv *Server) runSession(sess *session) {
	logger := srv.logger.With(zap.String("connection_id", sess.connection.ID()))
	defer func() {
		sess.cancel()
		srv.sessionsMu.Lock()
		delete(srv.sessions, sess.connection.ID())
		srv.sessionsMu.Unlock()
	}()
	// Open connection: connect callback + welcome message
	if err := sess.connection.Open(sess.ctx); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			sess.conn.Close(websocket.StatusPolicyViolation, DISCONNECT_REASON_UNAUTHORIZED)
		} else {
			sess.conn.Close(websocket.StatusInternalError, DISCONNECT_REASON_SERVER_ERROR)
		}
		return
	}
	logger.Debug("connection opened")
	go srv.ping(sess)
	// Process commands until read fails (client closed the connection or session canceled)
	for {
		msgType, raw, err := sess.conn.Read(sess.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && sess.ctx.Err() == nil {
				logger.Warn("read error", zap.Error(err))
			}
			break
		}
		ctx, span := srv.tracer.Start(sess.ctx, spanConnectionCommand, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(
			attribute.String(attrConnectionId, sess.connection.ID()),
			attribute.Int(attrMsgLength, len(raw)),
		))
		if msgType != websocket.MessageText {
			// Only text frames are part of the protocol
			err = MalformedCommandError{Err: fmt.Errorf("unsupported message type: %s", msgType)}
			logger.Warn("invalid request", zap.Error(err))
			sess.transmitter.Transmit(ctx, newDisconnectMessage(DISCONNECT_REASON_INVALID_REQUEST, false))
			handlePotentialError(err, span)
			span.End()
			break
		}
		err = sess.connection.HandleCommand(ctx, raw)
		if err != nil {
			logger.Warn("could not execute command", zap.ByteString("command", raw), zap.Error(err))
		}
		handlePotentialError(err, span)
		span.End()
	}
	// Remove subscriptions and call disconnect callback. The session context might be canceled.
	closeCtx, span := srv.tracer.Start(context.WithoutCancel(sess.ctx), spanConnectionCommand, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(
		attribute.String(attrConnectionId, sess.connection.ID()),
		attribute.String(attrCommand, CallbackDisconnect),
	))
	err := sess.connection.Close(closeCtx)
	if err != nil {
		logger.Warn("connection callbacks failed during close", zap.Error(err))
	}
	handlePotentialError(err, span)
	span.AddEvent(eventConnectionClosed)
	span.End()
	closeCode := websocket.StatusNormalClosure
	if srv.serverCtx.Err() != nil {
		closeCode = websocket.StatusGoingAway
	}
	sess.conn.Close(closeCode, "")
	logger.Debug("connection closed", zap.Int(attrCloseCode, int(closeCode)))
}

// Send ping messages to the client until the session is terminated
func (srv *Server) ping(sess *session) {
	ticker := time.NewTicker(time.Duration(srv.opts.PingIntervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sess.ctx.Done():
			return
		case t := <-ticker.C:
			ctx, span := srv.tracer.Start(sess.ctx, spanConnectionPing, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(
				attribute.String(attrConnectionId, sess.connection.ID()),
			))
			err := sess.transmitter.Transmit(ctx, &Message{Type: MSG_TYPE_PING, Message: t.Unix()})
			handlePotentialError(err, span)
			span.End()
			if err != nil {
				return
			}
		}
	}
}
