package sink

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/domain/detection"
)

var errTestBroker = errors.New("broker is down")

// doneToken is a completed MQTT token.
type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)

	return ch
}

// fakeMQTT records published messages. Unused client methods are not implemented.
type fakeMQTT struct {
	mqtt.Client

	mu           sync.Mutex
	err          error
	topics       []string
	payloads     [][]byte
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := payload.([]byte)
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, data)

	return doneToken{err: c.err}
}

func (c *fakeMQTT) Disconnect(uint) {
	c.disconnected = true
}

// TestMQTT_PublishesAlerts publishes one JSON message per alert.
func TestMQTT_PublishesAlerts(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	client := new(fakeMQTT)
	s := newMQTT(client, "driver-guard/alerts")

	require.NoError(t, s.Present(context.Background(), testResult(t, p, 0)))
	require.Empty(t, client.payloads)

	require.NoError(t, s.Present(context.Background(), testResult(t, p, 2, newDetection(t, "phone", 0.9))))
	require.Equal(t, []string{"driver-guard/alerts"}, client.topics)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(client.payloads[0], &msg))
	require.Equal(t, "phone", msg["class"])
	require.InDelta(t, 2.0, msg["frame_index"], 1e-9)
	require.InDelta(t, 0.9, msg["confidence"], 1e-9)

	client.err = errTestBroker
	err := s.Present(context.Background(), testResult(t, p, 3, newDetection(t, "phone", 0.9)))
	require.ErrorIs(t, err, detection.ErrSinkWrite)
	require.ErrorIs(t, err, errTestBroker)

	require.NoError(t, s.Close())
	require.True(t, client.disconnected)
}

// TestRedis_AppendsToStream appends alerts with XADD.
func TestRedis_AppendsToStream(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)

	s, err := NewRedis(context.Background(), config.RedisConfig{
		Address: server.Addr(),
		Stream:  config.DefaultRedisStream,
	})
	require.NoError(t, err)

	defer func() {
		require.NoError(t, s.Close())
	}()

	p := testPolicy(t)
	require.NoError(t, s.Present(context.Background(), testResult(t, p, 4, newDetection(t, "phone", 0.8))))

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	entries, err := client.XRange(context.Background(), config.DefaultRedisStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "phone", entries[0].Values["class"])
	require.Equal(t, "4", entries[0].Values["frame"])
	require.Equal(t, "0.8000", entries[0].Values["confidence"])
	require.Contains(t, entries[0].Values["data"], `"class":"phone"`)
}

// TestRedis_Unreachable fails at startup.
func TestRedis_Unreachable(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := NewRedis(context.Background(), config.RedisConfig{Address: addr, Stream: "s"})
	require.Error(t, err)
}

// TestPostgres_JournalsAlerts creates the table and inserts every alert.
func TestPostgres_JournalsAlerts(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "driver_alerts"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := newPostgres(context.Background(), db, "")
	require.NoError(t, err)

	p := testPolicy(t)
	r := testResult(t, p, 6, newDetection(t, "phone", 0.75))
	r.Alerts[0].RaisedAt = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "driver_alerts"`)).
		WithArgs(r.Alerts[0].SessionID, "phone", 6, int64(0), 0.75, 1, r.Alerts[0].RaisedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Present(context.Background(), r))

	mock.ExpectExec(`INSERT INTO`).WillReturnError(errTestBroker)

	err = s.Present(context.Background(), r)
	require.ErrorIs(t, err, detection.ErrSinkWrite)

	mock.ExpectClose()
	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgres_SchemaFailure is reported at startup.
func TestPostgres_SchemaFailure(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	defer db.Close()

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errTestBroker)

	_, err = newPostgres(context.Background(), db, "alerts")
	require.ErrorIs(t, err, errTestBroker)
}

// TestWebSocket_Broadcasts sends frames and alerts to connected clients.
func TestWebSocket_Broadcasts(t *testing.T) {
	t.Parallel()

	s, err := NewWebSocket(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+FeedPath, nil)
	require.NoError(t, err)

	defer resp.Body.Close()
	defer conn.Close()

	var msg feedMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, messageHello, msg.Type)
	require.Equal(t, 1, s.Clients())

	p := testPolicy(t)
	require.NoError(t, s.Present(context.Background(), testResult(t, p, 9, newDetection(t, "phone", 0.9))))

	msg = feedMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, messageFrame, msg.Type)
	require.Equal(t, 9, *msg.Frame)
	require.Equal(t, []string{"phone"}, msg.Latched)
	require.Len(t, msg.Detections, 1)
	require.Equal(t, detection.Box{X: 50, Y: 100, Width: 60, Height: 60}, msg.Detections[0].Box)

	msg = feedMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, messageAlert, msg.Type)
	require.Equal(t, "phone", msg.Alert.Class)
	require.Equal(t, 9, msg.Alert.FrameIndex)

	require.NoError(t, s.Close())
	require.Zero(t, s.Clients())

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
