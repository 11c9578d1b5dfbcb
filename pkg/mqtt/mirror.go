package mqtt

import (
	"encoding/json"
	"fmt"

	"pcba_station/pkg/logger"
	"pcba_station/pkg/models"
)

// UIDTopic 找到的设备UID发布到此主题
const UIDTopic = "pcba/uid"

// EventsTopic 返回某个序列号的阶段事件主题
func EventsTopic(serial string) string {
	return fmt.Sprintf("pcba/%s/events", serial)
}

// Mirror 把阶段事件和UID同步发布到MQTT，失败只记录日志
type Mirror struct {
	pub    Publisher
	logger logger.Logger
}

// NewMirror 创建镜像
func NewMirror(pub Publisher, log logger.Logger) *Mirror {
	if log == nil {
		log = logger.Nop()
	}
	return &Mirror{pub: pub, logger: log}
}

// Observe 发布一个阶段事件
func (m *Mirror) Observe(result *models.StageResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		m.logger.Error("序列化阶段事件失败: %v", err)
		return
	}
	m.publish(EventsTopic(result.Serial), payload)
}

// OnUID 发布找到的UID
func (m *Mirror) OnUID(uid string) {
	payload, err := json.Marshal(models.UIDPayload{UID: uid})
	if err != nil {
		m.logger.Error("序列化UID失败: %v", err)
		return
	}
	m.publish(UIDTopic, payload)
}

func (m *Mirror) publish(topic string, payload []byte) {
	if err := m.pub.Publish(topic, payload); err != nil {
		m.logger.Warn("MQTT发布失败 %s: %v", topic, err)
	}
}
