package adapters

import (
	"encoding/xml"
	"fmt"
	"time"

	"chatrelay/pkg/message"
)

// inboundEnvelope is the XML push format shared by the WeChat-family
// platforms. Type-specific fields stay empty for other types.
type inboundEnvelope struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	Content      string   `xml:"Content"`
	PicURL       string   `xml:"PicUrl"`
	MediaID      string   `xml:"MediaId"`
	Event        string   `xml:"Event"`
	AgentID      string   `xml:"AgentID"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

// replyEnvelope is the synchronous text reply, sender and recipient
// swapped relative to the inbound message.
type replyEnvelope struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   cdata    `xml:"ToUserName"`
	FromUserName cdata    `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      cdata    `xml:"MsgType"`
	Content      cdata    `xml:"Content"`
}

func parseEnvelope(source string, raw []byte) (*message.InboundMessage, error) {
	var env inboundEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	msg := &message.InboundMessage{
		Source:    source,
		SenderID:  env.FromUserName,
		TargetID:  env.ToUserName,
		CreatedAt: time.Unix(env.CreateTime, 0),
	}

	switch env.MsgType {
	case "text":
		msg.Type = message.TypeText
		msg.Content = env.Content
	case "image":
		msg.Type = message.TypeImage
		msg.MediaID = env.MediaID
	case "event":
		msg.Type = message.TypeEvent
		msg.Event = env.Event
	default:
		return nil, fmt.Errorf("unsupported message type %q", env.MsgType)
	}

	if msg.Source == "" {
		return nil, fmt.Errorf("inbound message missing source platform")
	}
	return msg, nil
}

func buildReply(msg *message.InboundMessage, content string) ([]byte, error) {
	env := replyEnvelope{
		ToUserName:   cdata{msg.SenderID},
		FromUserName: cdata{msg.TargetID},
		CreateTime:   time.Now().Unix(),
		MsgType:      cdata{"text"},
		Content:      cdata{content},
	}
	return xml.Marshal(env)
}

// replyContent picks the synchronous reply body per the async contract.
func replyContent(result *message.ProcessingResult) string {
	if result.Async {
		return PlaceholderText
	}
	if result.Content == "" {
		return FallbackText
	}
	return result.Content
}
