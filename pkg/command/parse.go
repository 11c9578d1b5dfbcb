package command

import (
	"errors"
	"fmt"
	"strings"

	"pcba_station/pkg/models"
)

// ErrEmptyLine 空行，不产生命令
var ErrEmptyLine = errors.New("empty command line")

// ParseError 无法识别的命令格式
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse command %q: %s", e.Line, e.Reason)
}

// Parse 解析共享文件中的一行命令
//
// 优先级：TEST <serial>、SEARCH 前缀、其余非空内容视为旧格式序号。
// 只有 TEST 关键字而没有序号时返回 *ParseError：它是缺少参数的测试命令，
// 不当作序号为 "TEST" 的旧格式命令执行。
func Parse(line string) (models.Command, error) {
	line = strings.TrimSpace(strings.Trim(line, "\r\n"))
	if line == "" {
		return models.Command{}, ErrEmptyLine
	}

	fields := strings.Fields(line)
	if fields[0] == "TEST" {
		if len(fields) < 2 {
			return models.Command{}, &ParseError{Line: line, Reason: "TEST requires a serial"}
		}
		return models.Command{Kind: models.CommandTest, Serial: fields[1]}, nil
	}

	if strings.HasPrefix(line, "SEARCH") {
		return models.Command{Kind: models.CommandSearch}, nil
	}

	return models.Command{Kind: models.CommandLegacy, Serial: line}, nil
}
