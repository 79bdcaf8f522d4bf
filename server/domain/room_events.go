package domain

// MessageKind はルームトピックに流れるメッセージの種別です。
type MessageKind uint8

const (
	// MessageData はクライアントから受信したフレーム
	MessageData MessageKind = iota
	// MessageJoin は参加要求のフレーム
	MessageJoin
	// MessageLeave は切断の通知（Data は空）
	MessageLeave
)

func (k MessageKind) String() string {
	switch k {
	case MessageData:
		return "data"
	case MessageJoin:
		return "join"
	case MessageLeave:
		return "leave"
	default:
		return "unknown"
	}
}
