package domain

import "fmt"

// CanvasSnapshot 是房间画布的权威状态：当前光栅、有界历史与时间戳。
// 每个房间只保存最新的一份。
type CanvasSnapshot struct {
	RoomID       string   `gorm:"primaryKey;size:64" json:"-"`
	Width        int      `gorm:"not null" json:"width"`
	Height       int      `gorm:"not null" json:"height"`
	ImageData    string   `gorm:"type:longtext" json:"imageData"`
	History      []string `gorm:"type:longtext;serializer:json" json:"history"`
	HistoryIndex int      `gorm:"not null" json:"historyIndex"`
	LastUpdated  int64    `gorm:"not null;index" json:"lastUpdated"` // unix 毫秒，用于 last-writer-wins
}

// TableName keeps the table name stable regardless of the struct name.
func (CanvasSnapshot) TableName() string { return "canvas_snapshots" }

// Validate checks the history index invariant.
func (s *CanvasSnapshot) Validate() error {
	if len(s.History) == 0 {
		return fmt.Errorf("snapshot history is empty")
	}
	if s.HistoryIndex < 0 || s.HistoryIndex >= len(s.History) {
		return fmt.Errorf("history index %d out of range [0,%d]", s.HistoryIndex, len(s.History)-1)
	}
	return nil
}

// Clone returns a deep copy so callers never share the history slice.
func (s *CanvasSnapshot) Clone() *CanvasSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.History = append([]string(nil), s.History...)
	return &c
}
