package domain

// Tool 是画布工具类型。
type Tool string

const (
	ToolBrush     Tool = "brush"
	ToolEraser    Tool = "eraser"
	ToolBucket    Tool = "bucket"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
	ToolTriangle  Tool = "triangle"
	ToolLine      Tool = "line"
	ToolText      Tool = "text"
)

// Presence 是某用户在房间内的临时光标状态，连接关闭即销毁。
type Presence struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Tool  Tool    `json:"tool"`
}

// DefaultPresence is assigned to every session on join.
func DefaultPresence() Presence {
	return Presence{Color: "#000000", Tool: ToolBrush}
}
