package events

import "halo/backend/domain"

// EventType 事件类型
type EventType string

const (
	// Profile 事件
	EventProfileCreated EventType = "profile.created"
	EventProfileUpdated EventType = "profile.updated"
	EventProfileDeleted EventType = "profile.deleted"

	// 当前配置指针事件
	EventCurrentChanged EventType = "profile.current_changed"

	// 上次运行状态事件
	EventLastStateChanged EventType = "state.changed"

	// 通配符事件（用于订阅所有事件）
	EventAll EventType = "*"
)

// Event 事件接口
type Event interface {
	Type() EventType
}

// ProfileEvent Profile 事件
type ProfileEvent struct {
	EventType EventType
	ProfileID string
	Profile   domain.ServerProfile
}

func (e ProfileEvent) Type() EventType { return e.EventType }

// CurrentEvent 当前配置指针事件
type CurrentEvent struct {
	ProfileID string
}

func (e CurrentEvent) Type() EventType { return EventCurrentChanged }

// LastStateEvent 上次运行状态事件
type LastStateEvent struct {
	State domain.LastRunState
}

func (e LastStateEvent) Type() EventType { return EventLastStateChanged }
