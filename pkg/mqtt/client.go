package mqtt

import (
	"fmt"
	"time"

	"pcba_station/pkg/config"
	"pcba_station/pkg/logger"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

// Publisher 发布消息的最小接口
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Client MQTT客户端封装
type Client struct {
	client  MQTT.Client
	logger  logger.Logger
	timeout time.Duration
}

// NewClient 根据配置创建MQTT客户端
func NewClient(cfg config.MQTTConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}

	opts := MQTT.NewClientOptions().AddBroker(cfg.BrokerURL())
	opts.SetClientID(fmt.Sprintf("pcba_station_%d", time.Now().Unix()))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		log.Warn("MQTT连接断开: %v", err)
	})

	return &Client{
		client:  MQTT.NewClient(opts),
		logger:  log,
		timeout: 5 * time.Second,
	}
}

// Connect 连接到MQTT服务器
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("MQTT connection timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connection failed: %w", err)
	}

	c.logger.Info("Connected to MQTT broker")
	return nil
}

// Publish 发布消息到指定主题
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	c.logger.Debug("Published %d bytes to topic %s", len(payload), topic)
	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	c.logger.Info("Disconnected from MQTT broker")
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
