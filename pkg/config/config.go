package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 监看模式
const (
	WatchModePoll   = "poll"
	WatchModeNotify = "notify"
)

// Config 测试站配置
type Config struct {
	SharedFile   string        `yaml:"shared_file"`
	BackendURL   string        `yaml:"backend_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StageDelay   time.Duration `yaml:"stage_delay"`
	SearchDelay  time.Duration `yaml:"search_delay"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"` // 0 表示使用 http.Client 默认值（无超时）
	WatchMode    string        `yaml:"watch_mode"`   // poll, notify
	APIAddr      string        `yaml:"api_addr"`     // 为空则不启动控制 API
	Debug        bool          `yaml:"debug"`

	MQTT MQTTConfig `yaml:"mqtt"`

	// 产线测试记录上传
	DeviceID    string `yaml:"device_id"`
	TestStation string `yaml:"test_station"`
}

// MQTTConfig MQTT 镜像配置，Broker 为空时关闭
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled 是否启用 MQTT 镜像
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// BrokerURL 返回 tcp://host:port
func (m MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%s", m.Broker, m.Port)
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		SharedFile:   "../shared/pcba_test.txt",
		BackendURL:   "http://localhost:8000",
		PollInterval: time.Second,
		StageDelay:   time.Second,
		SearchDelay:  time.Second,
		HTTPTimeout:  0,
		WatchMode:    WatchModePoll,
		MQTT: MQTTConfig{
			Port: "1883",
		},
		DeviceID:    "TESTER_001",
		TestStation: "STATION_A",
	}
}

// LoadConfig 依次加载默认值、YAML 文件、.env 文件和环境变量
func LoadConfig(path string) (*Config, error) {
	return LoadFrom(path, ".env")
}

// LoadFrom 与 LoadConfig 相同，但可指定 .env 路径
func LoadFrom(path, envFile string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if err := loadFromYAML(config, path); err != nil {
			return nil, err
		}
	}

	fileVars, err := loadEnvFile(envFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}

	// 环境变量优先于 .env 文件
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok && v != ""
	}
	if err := config.applyOverrides(lookup); err != nil {
		return nil, err
	}

	return config, nil
}

func loadFromYAML(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadEnvFile 解析 .env 文件为键值表
func loadEnvFile(path string) (map[string]string, error) {
	vars := make(map[string]string)

	file, err := os.Open(path)
	if err != nil {
		return vars, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// 简单去除引号
		vars[key] = strings.Trim(value, `"'`)
	}

	return vars, scanner.Err()
}

func (c *Config) applyOverrides(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"PCBA_SHARED_FILE": &c.SharedFile,
		"PCBA_BACKEND_URL": &c.BackendURL,
		"PCBA_WATCH_MODE":  &c.WatchMode,
		"PCBA_API_ADDR":    &c.APIAddr,
		"MQTT_BROKER":      &c.MQTT.Broker,
		"MQTT_PORT":        &c.MQTT.Port,
		"MQTT_USERNAME":    &c.MQTT.Username,
		"MQTT_PASSWORD":    &c.MQTT.Password,
		"DEVICE_ID":        &c.DeviceID,
		"TEST_STATION":     &c.TestStation,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"PCBA_POLL_INTERVAL": &c.PollInterval,
		"PCBA_STAGE_DELAY":   &c.StageDelay,
		"PCBA_SEARCH_DELAY":  &c.SearchDelay,
		"PCBA_HTTP_TIMEOUT":  &c.HTTPTimeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup("PCBA_DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PCBA_DEBUG: %w", err)
		}
		c.Debug = b
	}

	return nil
}

// Validate 检查配置是否有效
func (c *Config) Validate() error {
	if c.SharedFile == "" {
		return fmt.Errorf("shared file path is required")
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url: %q", c.BackendURL)
	}

	if c.WatchMode != WatchModePoll && c.WatchMode != WatchModeNotify {
		return fmt.Errorf("invalid watch mode: %s (must be '%s' or '%s')", c.WatchMode, WatchModePoll, WatchModeNotify)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %s", c.PollInterval)
	}

	if c.StageDelay < 0 || c.SearchDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http timeout must not be negative, got: %s", c.HTTPTimeout)
	}

	if c.MQTT.Enabled() && c.MQTT.Port == "" {
		return fmt.Errorf("mqtt port is required when broker is set")
	}

	return nil
}
