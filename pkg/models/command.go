package models

// CommandKind 命令类型
type CommandKind string

const (
	CommandSearch CommandKind = "search" // SEARCH
	CommandTest   CommandKind = "test"   // TEST <serial>
	CommandLegacy CommandKind = "legacy" // 仅序号（旧格式）
)

// Command 从共享文件解析出的命令
type Command struct {
	Kind   CommandKind `json:"kind"`
	Serial string      `json:"serial,omitempty"` // test / legacy 时有效
}

// String 还原为共享文件中的文本形式
func (c Command) String() string {
	switch c.Kind {
	case CommandSearch:
		return "SEARCH"
	case CommandTest:
		return "TEST " + c.Serial
	default:
		return c.Serial
	}
}
