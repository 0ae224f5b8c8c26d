// internal/messaging/client.go
package messaging

import (
	"fmt"
	"sync"
	"time"

	"collision-hub/internal/config"
	"collision-hub/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// publishTimeout bounds how long one publish waits for the broker ack.
const publishTimeout = 5 * time.Second

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// MQTTClient MQTT 클라이언트 구현체. Subscriptions are replayed after every
// reconnect, so a broker restart does not silently stop report ingestion.
type MQTTClient struct {
	client mqtt.Client
	config *config.Config

	mu            sync.Mutex
	subscriptions map[string]subscription
}

// NewMQTTClient 새 MQTT 클라이언트 생성
func NewMQTTClient(cfg *config.Config) (*MQTTClient, error) {
	c := &MQTTClient{
		config:        cfg,
		subscriptions: make(map[string]subscription),
	}

	// Two hubs sharing a client id would keep kicking each other off the broker.
	clientID := fmt.Sprintf("%s-%s", cfg.MQTTClientID, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetOrderMatters(false)

	// 연결 상태 콜백
	opts.SetOnConnectHandler(func(mc mqtt.Client) {
		utils.Logger.WithField("client_id", clientID).Info("MQTT client connected")
		c.resubscribe(mc)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		utils.Logger.WithError(err).Error("MQTT connection lost")
	})

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return c, nil
}

// Publish 메시지 발행
func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	utils.Logger.WithField("topic", topic).Trace("📤 MQTT sent")
	return nil
}

// Subscribe 토픽 구독
func (c *MQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: callback}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, callback)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	utils.Logger.Infof("✅ Subscribed to topic: %s", topic)
	return nil
}

func (c *MQTTClient) resubscribe(mc mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subscriptions))
	for t, s := range c.subscriptions {
		subs[t] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		token := mc.Subscribe(topic, s.qos, s.handler)
		if token.Wait() && token.Error() != nil {
			utils.Logger.WithError(token.Error()).WithField("topic", topic).Error("Resubscribe failed")
			continue
		}
		utils.Logger.WithField("topic", topic).Info("Resubscribed after reconnect")
	}
}

// Disconnect 연결 해제
func (c *MQTTClient) Disconnect(quiesce uint) {
	if c.client.IsConnected() {
		c.client.Disconnect(quiesce)
		utils.Logger.Info("MQTT client disconnected")
	}
}

// IsConnected 연결 상태 확인
func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}

// Health returns an error while the broker connection is down.
func (c *MQTTClient) Health() error {
	if !c.client.IsConnected() {
		return fmt.Errorf("MQTT broker %s unreachable", c.config.MQTTBroker)
	}
	return nil
}
