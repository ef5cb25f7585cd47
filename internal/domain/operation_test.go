package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrawingOperation_Validate(t *testing.T) {
	x, y := 1.0, 2.0
	origin := OperationPayload{X: &x, Y: &y}
	shape := OperationPayload{X: &x, Y: &y, EndX: &x, EndY: &y}

	tests := []struct {
		name    string
		op      DrawingOperation
		wantErr bool
	}{
		{"unknown kind", DrawingOperation{Kind: "spray"}, true},
		{"brush with coordinates", DrawingOperation{Kind: KindBrush, Payload: OperationPayload{Coordinates: []Point{{X: 1, Y: 1}}}}, false},
		{"brush with origin only", DrawingOperation{Kind: KindBrush, Payload: origin}, false},
		{"empty brush", DrawingOperation{Kind: KindBrush}, true},
		{"empty eraser", DrawingOperation{Kind: KindEraser}, true},
		{"rectangle", DrawingOperation{Kind: KindRectangle, Payload: shape}, false},
		{"rectangle without end", DrawingOperation{Kind: KindRectangle, Payload: origin}, true},
		{"line without origin", DrawingOperation{Kind: KindLine, Payload: OperationPayload{EndX: &x, EndY: &y}}, true},
		{"circle", DrawingOperation{Kind: KindCircle, Payload: shape}, false},
		{"triangle without anything", DrawingOperation{Kind: KindTriangle}, true},
		{"bucket default color", DrawingOperation{Kind: KindBucket, Payload: origin}, false},
		{"bucket short hex", DrawingOperation{Kind: KindBucket, Payload: OperationPayload{X: &x, Y: &y, FillColor: "#0f0"}}, false},
		{"bucket color fallback", DrawingOperation{Kind: KindBucket, Payload: OperationPayload{X: &x, Y: &y, Color: "#00ff00"}}, false},
		{"bucket named color", DrawingOperation{Kind: KindBucket, Payload: OperationPayload{X: &x, Y: &y, FillColor: "red"}}, true},
		{"bucket without origin", DrawingOperation{Kind: KindBucket}, true},
		{"text", DrawingOperation{Kind: KindText, Payload: OperationPayload{X: &x, Y: &y, Text: "hi"}}, false},
		{"text without origin", DrawingOperation{Kind: KindText, Payload: OperationPayload{Text: "hi"}}, true},
		{"paste", DrawingOperation{Kind: KindPaste, Payload: OperationPayload{ImageData: "data:image/png;base64,AAAA"}}, false},
		{"paste without image", DrawingOperation{Kind: KindPaste}, true},
		{"ai image without image", DrawingOperation{Kind: KindAIGenerate}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
