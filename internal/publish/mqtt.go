package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/petems/eqcoach/internal/app"
	"github.com/petems/eqcoach/internal/model"
)

const (
	publishQoS     = 1
	publishTimeout = 5 * time.Second
	queueSize      = 16
)

// ClientConfig holds MQTT connection settings.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect opens a paho client to cfg.Broker.
func Connect(cfg ClientConfig, log zerolog.Logger) (mqtt.Client, error) {
	log = log.With().Str("component", "mqtt").Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// tokenPublisher is the part of mqtt.Client the publisher uses.
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the JSON payload published for each verdict change.
type Message struct {
	Verdict    model.Verdict      `json:"verdict"`
	State      model.SessionState `json:"state"`
	AudioLevel float64            `json:"audio_level"`
	FusedScore *float64           `json:"fused_score"`
	At         time.Time          `json:"at"`
}

// NewMessage builds the payload for s.
func NewMessage(s app.Status) Message {
	m := Message{
		Verdict:    s.Verdict,
		State:      s.State,
		AudioLevel: s.AudioLevel,
		At:         s.UpdatedAt.UTC(),
	}
	if s.Result != nil && s.Result.Debug != nil {
		score := s.Result.Debug.FusedScore
		m.FusedScore = &score
	}
	return m
}

// Publisher forwards verdict changes to an MQTT topic. It is an
// app.StatusUpdater; publishing happens on the goroutine running Start.
type Publisher struct {
	client tokenPublisher
	topic  string
	log    zerolog.Logger
	queue  chan app.Status

	// Only touched by Start.
	last    model.Verdict
	lastSt  model.SessionState
	started bool
}

var _ app.StatusUpdater = (*Publisher)(nil)

func NewPublisher(client tokenPublisher, topic string, log zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		topic:  topic,
		log:    log.With().Str("component", "mqtt").Str("topic", topic).Logger(),
		queue:  make(chan app.Status, queueSize),
	}
}

// UpdateStatus queues s without blocking; a full queue drops it.
func (p *Publisher) UpdateStatus(s app.Status) {
	select {
	case p.queue <- s:
	default:
		p.log.Warn().Msg("Publish queue full, dropping status")
	}
}

// Start publishes queued changes until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-p.queue:
			if p.started && s.Verdict == p.last && s.State == p.lastSt {
				continue
			}
			if err := p.publish(s); err != nil {
				p.log.Error().Err(err).Msg("Publish failed")
				continue
			}
			p.started = true
			p.last = s.Verdict
			p.lastSt = s.State
		}
	}
}

func (p *Publisher) publish(s app.Status) error {
	payload, err := json.Marshal(NewMessage(s))
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	token := p.client.Publish(p.topic, publishQoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timed out after %s", publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}

	p.log.Debug().Stringer("verdict", s.Verdict).Stringer("state", s.State).Msg("Published status")
	return nil
}
