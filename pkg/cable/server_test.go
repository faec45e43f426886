package cable_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gbdevw/gocable/pkg/cable"
	"github.com/gbdevw/gocable/pkg/cable/cableclient"
	"github.com/gbdevw/gocable/pkg/sentrycable"
	"github.com/gbdevw/gocable/pkg/sentrycable/sentrycabletest"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST CHANNELS                                                                                 */
/*************************************************************************************************/

// Channel which streams from the echo broadcasting and echoes text sent with the echo action
type echoChannel struct {
	cable.BaseChannel
}

func (ch *echoChannel) Subscribed(ctx context.Context, sub *cable.Subscription) error {
	if _, ok := sub.Params()["reject"]; ok {
		sub.Reject()
		return nil
	}
	return sub.StreamFrom("echo")
}

func (ch *echoChannel) Actions() map[string]cable.ActionFunc {
	return map[string]cable.ActionFunc{
		"echo": func(ctx context.Context, sub *cable.Subscription, data map[string]any) error {
			return sub.Transmit(ctx, map[string]any{"text": data["text"]})
		},
		"fail": func(ctx context.Context, sub *cable.Subscription, data map[string]any) error {
			return errors.New("foo")
		},
	}
}

// Create a registry with the echo channel
func newEchoRegistry(t *testing.T) *cable.Registry {
	registry := cable.NewRegistry()
	require.NoError(t, registry.Register("EchoChannel", func() cable.Channel { return new(echoChannel) }))
	return registry
}

// Create a non-started server listening on a random port
func newTestServer(t *testing.T, ctx context.Context) *cable.Server {
	srv, err := cable.NewServer(ctx, &http.Server{Addr: "localhost:0"}, newEchoRegistry(t), nil, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, srv)
	return srv
}

// Connect a client to the server and read the welcome message
func dialTestServer(t *testing.T, ctx context.Context, srv *cable.Server, header http.Header) *cableclient.Client {
	client, res, err := cableclient.Dial(ctx, "ws://"+srv.Addr()+"/cable", header, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, cable.PROTOCOL_JSON_V1, client.Subprotocol())
	msg, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, cable.MSG_TYPE_WELCOME, msg.Type)
	return client
}

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used to test Server methods like Start, Stop, ...
type ServerMethodsTestSuite struct {
	suite.Suite
}

// Run ServerMethodsTestSuite test suite
func TestServerMethodsTestSuite(t *testing.T) {
	suite.Run(t, new(ServerMethodsTestSuite))
}

// Test suite used to test Server features like subscriptions, actions, broadcasts, ...
type ServerFeaturesTestSuite struct {
	suite.Suite
	srv       *cable.Server
	transport *sentrycabletest.RecordingTransport
}

// Run ServerFeaturesTestSuite test suite
func TestServerFeaturesTestSuite(t *testing.T) {
	suite.Run(t, new(ServerFeaturesTestSuite))
}

// ServerFeaturesTestSuite - Before all tests
func (suite *ServerFeaturesTestSuite) SetupSuite() {
	// Root context carries a hub bound to an in-memory transport
	suite.transport = sentrycabletest.NewRecordingTransport()
	client, err := sentry.NewClient(sentry.ClientOptions{Transport: suite.transport})
	require.NoError(suite.T(), err)
	ctx := sentry.SetHubOnContext(context.Background(), sentry.NewHub(client, sentry.NewScope()))
	// Create and start server
	suite.srv = newTestServer(suite.T(), ctx)
	suite.srv.Use(sentrycable.New(sentrycable.Options{}))
	require.NoError(suite.T(), suite.srv.Start())
}

// ServerFeaturesTestSuite - After all tests
func (suite *ServerFeaturesTestSuite) TearDownSuite() {
	suite.srv.Stop()
}

/*************************************************************************************************/
/* SERVER METHODS                                                                                */
/*************************************************************************************************/

// # Description
//
// Test server Start/Stop methods. Test will succeed if server can start and then stop, clients
// being notified of the restart.
func (suite *ServerMethodsTestSuite) TestServerStartAndStop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv := newTestServer(suite.T(), context.Background())
	require.False(suite.T(), srv.IsStarted())
	require.NoError(suite.T(), srv.Start())
	require.True(suite.T(), srv.IsStarted())
	client := dialTestServer(suite.T(), ctx, srv, nil)
	require.Eventually(suite.T(), func() bool { return srv.ActiveConnections() == 1 }, 5*time.Second, 10*time.Millisecond)
	// Stop server
	require.NoError(suite.T(), srv.Stop())
	require.False(suite.T(), srv.IsStarted())
	require.Equal(suite.T(), 0, srv.ActiveConnections())
	// Client receives a disconnect message and then the connection is closed
	msg, err := client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), cable.MSG_TYPE_DISCONNECT, msg.Type)
	require.Equal(suite.T(), cable.DISCONNECT_REASON_SERVER_RESTART, msg.Reason)
	require.True(suite.T(), *msg.Reconnect)
	_, err = client.Receive(ctx)
	require.Error(suite.T(), err)
}

// Test server Start method. Test will succeed if server returns an error on second Start call.
func (suite *ServerMethodsTestSuite) TestServerStartErrorAlreadyStarted() {
	srv := newTestServer(suite.T(), context.Background())
	require.NoError(suite.T(), srv.Start())
	require.Error(suite.T(), srv.Start())
	require.NoError(suite.T(), srv.Stop())
}

// Test server Start method. Test will succeed if server returns an error when server context is
// Done.
func (suite *ServerMethodsTestSuite) TestServerStartErrorCtxDone() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv := newTestServer(suite.T(), ctx)
	require.Error(suite.T(), srv.Start())
}

// Test server Start method. Test will succeed if server returns a ServerStartError when the
// address cannot be listened on.
func (suite *ServerMethodsTestSuite) TestServerStartErrorListen() {
	srv, err := cable.NewServer(context.Background(), &http.Server{Addr: "localhost:-1"}, newEchoRegistry(suite.T()), nil, nil, nil, nil)
	require.NoError(suite.T(), err)
	err = srv.Start()
	require.ErrorAs(suite.T(), err, new(cable.ServerStartError))
	require.False(suite.T(), srv.IsStarted())
}

// Test server Stop method. Test will succeed if server returns an error when not started.
func (suite *ServerMethodsTestSuite) TestServerStopErrorNotStarted() {
	srv := newTestServer(suite.T(), context.Background())
	require.Error(suite.T(), srv.Stop())
}

// Test server factory. Test will succeed if bad inputs are refused.
func (suite *ServerMethodsTestSuite) TestNewServerErrors() {
	_, err := cable.NewServer(context.Background(), nil, nil, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = cable.NewServer(context.Background(), nil, cable.NewRegistry(), cable.NewServerConfigurationOptions().WithMountPath("cable"), nil, nil, nil)
	require.Error(suite.T(), err)
}

// Test rejected connections receive an unauthorized disconnect message.
func (suite *ServerMethodsTestSuite) TestUnauthorizedConnection() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv := newTestServer(suite.T(), context.Background())
	srv.SetConnectionHandler(&connectionHandler{
		connect: func(ctx context.Context, conn *cable.Connection) error {
			if conn.Request().Header.Get("Authorization") == "" {
				return cable.ErrUnauthorized
			}
			return nil
		},
	})
	require.NoError(suite.T(), srv.Start())
	defer srv.Stop()
	client, _, err := cableclient.Dial(ctx, "ws://"+srv.Addr()+"/cable", nil, nil)
	require.NoError(suite.T(), err)
	msg, err := client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), cable.MSG_TYPE_DISCONNECT, msg.Type)
	require.Equal(suite.T(), cable.DISCONNECT_REASON_UNAUTHORIZED, msg.Reason)
	require.False(suite.T(), *msg.Reconnect)
	_, err = client.Receive(ctx)
	require.ErrorAs(suite.T(), err, new(cableclient.CloseError))
	// Authorized client
	authorized := dialTestServer(suite.T(), ctx, srv, http.Header{"Authorization": []string{"Bearer token"}})
	require.NoError(suite.T(), authorized.Close())
}

/*************************************************************************************************/
/* SERVER FEATURES                                                                               */
/*************************************************************************************************/

// Test requests outside of the mount path are answered with 404.
func (suite *ServerFeaturesTestSuite) TestNotFound() {
	res, err := http.Get("http://" + suite.srv.Addr() + "/other")
	require.NoError(suite.T(), err)
	defer res.Body.Close()
	require.Equal(suite.T(), http.StatusNotFound, res.StatusCode)
}

// Test a client can subscribe, perform actions, receive broadcasts and unsubscribe.
func (suite *ServerFeaturesTestSuite) TestSubscribePerformBroadcast() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := dialTestServer(suite.T(), ctx, suite.srv, nil)
	defer client.Close()
	// Subscribe
	identifier, err := client.Subscribe(ctx, "EchoChannel", cable.Params{"room_id": 42})
	require.NoError(suite.T(), err)
	msg, err := client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), cable.MSG_TYPE_CONFIRM_SUBSCRIPTION, msg.Type)
	require.Equal(suite.T(), identifier, msg.Identifier)
	// Perform
	require.NoError(suite.T(), client.Perform(ctx, identifier, "echo", map[string]any{"text": "hello"}))
	msg, err = client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), identifier, msg.Identifier)
	require.Equal(suite.T(), map[string]any{"text": "hello"}, msg.Message)
	// Broadcast
	require.NoError(suite.T(), suite.srv.Broadcast(ctx, "echo", "news"))
	msg, err = client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), identifier, msg.Identifier)
	require.Equal(suite.T(), "news", msg.Message)
	// Unsubscribe: broadcasts are not received anymore. Commands are handled in order, so the
	// rejection of a later subscription means the unsubscribe has been handled.
	require.NoError(suite.T(), client.Unsubscribe(ctx, identifier))
	rejected, err := client.Subscribe(ctx, "EchoChannel", cable.Params{"reject": true})
	require.NoError(suite.T(), err)
	msg, err = client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), cable.MSG_TYPE_REJECT_SUBSCRIPTION, msg.Type)
	require.Equal(suite.T(), rejected, msg.Identifier)
	require.NoError(suite.T(), suite.srv.Broadcast(ctx, "echo", "lost"))
	require.NoError(suite.T(), client.Perform(ctx, identifier, "echo", map[string]any{"text": "lost"}))
	// Subscribe again to check nothing was delivered in between
	identifier, err = client.Subscribe(ctx, "EchoChannel", nil)
	require.NoError(suite.T(), err)
	msg, err = client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), cable.MSG_TYPE_CONFIRM_SUBSCRIPTION, msg.Type)
	require.Equal(suite.T(), identifier, msg.Identifier)
}

// Test subscriptions to unknown channels and rejected subscriptions.
func (suite *ServerFeaturesTestSuite) TestRejectSubscription() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := dialTestServer(suite.T(), ctx, suite.srv, nil)
	defer client.Close()
	identifier, err := client.Subscribe(ctx, "UnknownChannel", nil)
	require.NoError(suite.T(), err)
	msg, err := client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), cable.MSG_TYPE_REJECT_SUBSCRIPTION, msg.Type)
	require.Equal(suite.T(), identifier, msg.Identifier)
	identifier, err = client.Subscribe(ctx, "EchoChannel", cable.Params{"reject": true})
	require.NoError(suite.T(), err)
	msg, err = client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), cable.MSG_TYPE_REJECT_SUBSCRIPTION, msg.Type)
	require.Equal(suite.T(), identifier, msg.Identifier)
}

// Test errors raised by actions are reported with the hub of the server root context.
func (suite *ServerFeaturesTestSuite) TestErrorReported() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := dialTestServer(suite.T(), ctx, suite.srv, nil)
	defer client.Close()
	identifier, err := client.Subscribe(ctx, "EchoChannel", cable.Params{"room_id": 42})
	require.NoError(suite.T(), err)
	_, err = client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), client.Perform(ctx, identifier, "fail", map[string]any{"foo": "bar"}))
	var event *sentry.Event
	require.Eventually(suite.T(), func() bool {
		for _, e := range suite.transport.Events() {
			if e.Transaction == "EchoChannel#fail" {
				event = e
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	actionCable := event.Contexts[sentrycable.ContextKey]
	require.Equal(suite.T(), map[string]any{"action": "fail", "foo": "bar"}, actionCable[sentrycable.ContextDataKey])
	require.NotNil(suite.T(), event.Request)
	require.Contains(suite.T(), event.Request.URL, "/cable")
	// Connection is still usable
	require.NoError(suite.T(), client.Perform(ctx, identifier, "echo", map[string]any{"text": "alive"}))
	msg, err := client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), map[string]any{"text": "alive"}, msg.Message)
}

// Test binary frames are refused with an invalid_request disconnect message.
func (suite *ServerFeaturesTestSuite) TestInvalidRequest() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := dialTestServer(suite.T(), ctx, suite.srv, nil)
	defer client.Close()
	require.NoError(suite.T(), client.WriteBinary(ctx, []byte{0x01}))
	msg, err := client.Receive(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), cable.MSG_TYPE_DISCONNECT, msg.Type)
	require.Equal(suite.T(), cable.DISCONNECT_REASON_INVALID_REQUEST, msg.Reason)
	_, err = client.Receive(ctx)
	require.Error(suite.T(), err)
}
