package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
	// NoticeTopic receives repair notices. Defaults to Topic + "/repairs".
	NoticeTopic string
	// Timeout bounds a single publish. Defaults to 10s.
	Timeout time.Duration
}

// publishClient is the part of mqtt.Client the publisher needs.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes reminder batches as retained JSON messages, so a
// device that subscribes later still receives the current set.
type MQTTPublisher struct {
	client      publishClient
	topic       string
	noticeTopic string
	qos         byte
	timeout     time.Duration
	log         logrus.FieldLogger
}

// NewMQTTPublisher connects to the broker in cfg.
func NewMQTTPublisher(cfg MQTTConfig, logger logrus.FieldLogger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	logger.WithFields(logrus.Fields{"broker": cfg.Broker, "topic": cfg.Topic}).Info("Connected to MQTT broker")
	return newMQTTPublisher(client, cfg, logger), nil
}

func newMQTTPublisher(client publishClient, cfg MQTTConfig, logger logrus.FieldLogger) *MQTTPublisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	noticeTopic := cfg.NoticeTopic
	if noticeTopic == "" {
		noticeTopic = cfg.Topic + "/repairs"
	}
	return &MQTTPublisher{
		client:      client,
		topic:       cfg.Topic,
		noticeTopic: noticeTopic,
		qos:         cfg.QoS,
		timeout:     timeout,
		log:         logger,
	}
}

// Send publishes batch and waits for the broker to accept it.
func (p *MQTTPublisher) Send(ctx context.Context, batch Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal reminders: %w", err)
	}
	if err := p.publish(ctx, p.topic, true, payload); err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{"topic": p.topic, "reminders": len(batch.Reminders)}).Debug("Published reminders")
	return nil
}

// Notify publishes notice as a plain, non-retained message: every notice is
// an event of its own.
func (p *MQTTPublisher) Notify(ctx context.Context, notice Notice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	if err := p.publish(ctx, p.noticeTopic, false, payload); err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{"topic": p.noticeTopic, "repair_id": notice.RepairID, "status": notice.Status}).Debug("Published notice")
	return nil
}

func (p *MQTTPublisher) publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, p.qos, retained, payload)
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish to %s: timed out after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
