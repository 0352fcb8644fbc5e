package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"bindash-server/internal/config"
	"bindash-server/internal/sensorapi"
)

// Alarm severities accepted from the feed.
var severities = map[string]bool{
	"info":     true,
	"warning":  true,
	"critical": true,
}

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	// Set after the first successful subscribe so reconnects resubscribe.
	subscribed atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once

	handlerMu sync.RWMutex
	handler   func(alarm sensorapi.Alarm) error
}

// AlarmSubscriber is the part of Subscriber feature modules attach to.
type AlarmSubscriber interface {
	SetMessageHandler(handler func(alarm sensorapi.Alarm) error)
}

// SetMessageHandler sets the handler called for each valid alarm.
func (s *Subscriber) SetMessageHandler(handler func(alarm sensorapi.Alarm) error) {
	s.handlerMu.Lock()
	s.handler = handler
	s.handlerMu.Unlock()
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	// Replicas share MQTT_CLIENT_ID; a suffix keeps the broker from kicking one of them.
	opts.SetClientID(cfg.MQTTClientID + "-" + uuid.NewString()[:8])

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		if s.subscribed.Load() {
			// Clean sessions drop subscriptions on reconnect.
			go func() {
				if err := s.subscribe(); err != nil {
					s.logger.Warn("mqtt resubscribe failed", "error", err)
				}
			}()
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect establishes connection to the MQTT broker and subscribes to the alarm topic.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			break
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}

	if err := s.subscribe(); err != nil {
		s.client.Disconnect(0)
		return fmt.Errorf("subscribe: %w", err)
	}
	s.subscribed.Store(true)

	return nil
}

func (s *Subscriber) subscribe() error {
	if !s.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := s.cfg.MQTTAlarmTopic
	qos := byte(1)

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var alarm sensorapi.Alarm
	if err := json.Unmarshal(payload, &alarm); err != nil {
		s.logger.Warn("failed to parse alarm message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}
	normalizeAlarm(&alarm)

	if err := validateAlarm(alarm); err != nil {
		s.logger.Warn("invalid alarm message",
			"topic", topic,
			"bin_id", alarm.BinID,
			"error", err,
		)
		return
	}

	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	if err := handler(alarm); err != nil {
		s.logger.Error("message handler failed",
			"topic", topic,
			"bin_id", alarm.BinID,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed alarm message",
		"bin_id", alarm.BinID,
		"type", alarm.Type,
	)
}

func normalizeAlarm(a *sensorapi.Alarm) {
	a.BinID = strings.TrimSpace(a.BinID)
	a.Type = strings.TrimSpace(a.Type)
	a.Severity = strings.ToLower(strings.TrimSpace(a.Severity))
	if a.Severity == "" {
		a.Severity = "info"
	}
	a.Message = strings.TrimSpace(a.Message)
}

func validateAlarm(a sensorapi.Alarm) error {
	if a.BinID == "" {
		return fmt.Errorf("binId is required")
	}
	if a.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !severities[a.Severity] {
		return fmt.Errorf("unknown severity %q (allowed: info, warning, critical)", a.Severity)
	}
	if a.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTAlarmTopic)
		token.WaitTimeout(2 * time.Second)
	}

	// Disconnect without holding s.mu.
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
