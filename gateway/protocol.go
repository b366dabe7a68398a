package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 📥 入站命令协议
// =============================================================================

// CommandType 入站命令变体标签
type CommandType string

const (
	CmdJoin          CommandType = "join"
	CmdLeave         CommandType = "leave"
	CmdSubscribe     CommandType = "subscribe"
	CmdUnsubscribe   CommandType = "unsubscribe"
	CmdRequestSwitch CommandType = "request_switch"
	CmdHumanReply    CommandType = "human_reply"
	CmdFragment      CommandType = "fragment"
)

// Topic 可订阅的全局房间
type Topic string

const (
	TopicMetrics Topic = "metrics"
	TopicQueue   Topic = "queue"
)

// DecodeError 协议解析错误，区别于下游业务错误
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badCommand(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_command", Message: message, Param: param}
}

// Command 入站命令的封闭变体集合
type Command interface {
	CommandType() CommandType
}

// JoinCommand 加入会话房间；网关会同步回放一条私有 session_history
type JoinCommand struct {
	ConversationID string `json:"conversation_id"`
}

func (JoinCommand) CommandType() CommandType { return CmdJoin }

// LeaveCommand 离开会话房间
type LeaveCommand struct {
	ConversationID string `json:"conversation_id"`
}

func (LeaveCommand) CommandType() CommandType { return CmdLeave }

// SubscribeCommand 订阅 metrics 或 queue
type SubscribeCommand struct {
	Topic Topic `json:"topic"`
}

func (SubscribeCommand) CommandType() CommandType { return CmdSubscribe }

// UnsubscribeCommand 退订 metrics 或 queue
type UnsubscribeCommand struct {
	Topic Topic `json:"topic"`
}

func (UnsubscribeCommand) CommandType() CommandType { return CmdUnsubscribe }

// RequestSwitchCommand 请求模式切换，原样委托给编排器
type RequestSwitchCommand struct {
	ConversationID string                `json:"conversation_id"`
	Direction      types.SwitchDirection `json:"direction"`
	Reason         string                `json:"reason,omitempty"`
}

func (RequestSwitchCommand) CommandType() CommandType { return CmdRequestSwitch }

// HumanReplyCommand 人工坐席回复；仅 HUMAN_REP 模式下接受
type HumanReplyCommand struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

func (HumanReplyCommand) CommandType() CommandType { return CmdHumanReply }

// FragmentCommand 客户侧转写片段转发（浏览器语音等无法走 webhook
// 路径的通道）；role 映射 assistant→AI、customer→CUSTOMER
type FragmentCommand struct {
	ConversationID string     `json:"conversation_id"`
	Role           string     `json:"role"`
	Text           string     `json:"text"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

func (FragmentCommand) CommandType() CommandType { return CmdFragment }

// Speaker 将片段 role 映射为转写 Speaker
func (c FragmentCommand) Speaker() (types.Speaker, error) {
	switch c.Role {
	case "assistant":
		return types.SpeakerAI, nil
	case "customer":
		return types.SpeakerCustomer, nil
	default:
		return "", badCommand("unknown fragment role", c.Role)
	}
}

// commandEnvelope 线上命令封包
type commandEnvelope struct {
	Command CommandType     `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// DecodeCommand 解析一条入站命令。未知变体与缺失字段都是解析错误。
func DecodeCommand(raw []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, badCommand("malformed command envelope", "")
	}

	decode := func(v Command) (Command, error) {
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, v); err != nil {
				return nil, badCommand("malformed command data", string(env.Command))
			}
		}
		return v, nil
	}

	switch env.Command {
	case CmdJoin:
		cmd, err := decode(&JoinCommand{})
		if err != nil {
			return nil, err
		}
		if cmd.(*JoinCommand).ConversationID == "" {
			return nil, badCommand("missing conversation_id", string(CmdJoin))
		}
		return cmd, nil
	case CmdLeave:
		cmd, err := decode(&LeaveCommand{})
		if err != nil {
			return nil, err
		}
		if cmd.(*LeaveCommand).ConversationID == "" {
			return nil, badCommand("missing conversation_id", string(CmdLeave))
		}
		return cmd, nil
	case CmdSubscribe:
		cmd, err := decode(&SubscribeCommand{})
		if err != nil {
			return nil, err
		}
		if t := cmd.(*SubscribeCommand).Topic; t != TopicMetrics && t != TopicQueue {
			return nil, badCommand("unknown topic", string(t))
		}
		return cmd, nil
	case CmdUnsubscribe:
		cmd, err := decode(&UnsubscribeCommand{})
		if err != nil {
			return nil, err
		}
		if t := cmd.(*UnsubscribeCommand).Topic; t != TopicMetrics && t != TopicQueue {
			return nil, badCommand("unknown topic", string(t))
		}
		return cmd, nil
	case CmdRequestSwitch:
		cmd, err := decode(&RequestSwitchCommand{})
		if err != nil {
			return nil, err
		}
		rs := cmd.(*RequestSwitchCommand)
		if rs.ConversationID == "" {
			return nil, badCommand("missing conversation_id", string(CmdRequestSwitch))
		}
		if rs.Direction != types.SwitchAIToHuman && rs.Direction != types.SwitchHumanToAI {
			return nil, badCommand("unknown switch direction", string(rs.Direction))
		}
		return cmd, nil
	case CmdHumanReply:
		cmd, err := decode(&HumanReplyCommand{})
		if err != nil {
			return nil, err
		}
		hr := cmd.(*HumanReplyCommand)
		if hr.ConversationID == "" {
			return nil, badCommand("missing conversation_id", string(CmdHumanReply))
		}
		if strings.TrimSpace(hr.Text) == "" {
			return nil, badCommand("empty reply text", string(CmdHumanReply))
		}
		return cmd, nil
	case CmdFragment:
		cmd, err := decode(&FragmentCommand{})
		if err != nil {
			return nil, err
		}
		fr := cmd.(*FragmentCommand)
		if fr.ConversationID == "" {
			return nil, badCommand("missing conversation_id", string(CmdFragment))
		}
		if _, err := fr.Speaker(); err != nil {
			return nil, err
		}
		return cmd, nil
	default:
		return nil, badCommand("unknown command", string(env.Command))
	}
}
