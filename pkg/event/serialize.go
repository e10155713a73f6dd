package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// New は新しいイベントを生成する。
// payloadにはイベント固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func New(eventType Type, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	return &Event{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// DecodePayload はイベントのPayloadを指定された型にデシリアライズする。
func DecodePayload[T any](e *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Payload, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
