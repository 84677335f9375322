package render

import (
	"errors"
	"testing"

	"github.com/umpdisplay/ump-matrix-display/internal/frame"
)

func TestParseRequestDefaults(t *testing.T) {
	req, err := ParseRequest([]byte(`{"elements":[{"type":"text","content":"Hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.FPS != 20 {
		t.Errorf("default fps = %d, want 20", req.FPS)
	}
	if req.Background != (frame.RGB{}) {
		t.Errorf("default background = %+v, want black", req.Background)
	}
	if req.Transition != nil {
		t.Error("transition should default to nil")
	}
	if len(req.Elements) != 1 || req.Elements[0].Type() != TypeText {
		t.Fatalf("elements = %+v", req.Elements)
	}
}

func TestParseRequestTransitionDefaults(t *testing.T) {
	req, err := ParseRequest([]byte(
		`{"elements":[{"type":"text","content":"x"}],"transition":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.Transition == nil {
		t.Fatal("transition should be set")
	}
	if req.Transition.Kind != TransitionSlideUp || req.Transition.Duration != 1.0 {
		t.Errorf("transition = %+v, want slide_up/1s", req.Transition)
	}
}

func TestParseRequestMDIAlias(t *testing.T) {
	req, err := ParseRequest([]byte(`{"elements":[{"type":"mdi","name":"home"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.Elements[0].Type() != TypeIcon {
		t.Errorf("mdi should decode as icon, got %q", req.Elements[0].Type())
	}
}

func TestParseRequestRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"no elements", `{"elements":[]}`},
		{"fps too high", `{"elements":[{"type":"text","content":"x"}],"fps":50}`},
		{"fps too low", `{"elements":[{"type":"text","content":"x"}],"fps":-1}`},
		{"bad background channel", `{"elements":[{"type":"text","content":"x"}],"background":[0,0,300]}`},
		{"short background", `{"elements":[{"type":"text","content":"x"}],"background":[0,0]}`},
		{"missing element type", `{"elements":[{"content":"x"}]}`},
		{"unknown element type", `{"elements":[{"type":"blink","content":"x"}]}`},
		{"text without content", `{"elements":[{"type":"text"}]}`},
		{"unknown font", `{"elements":[{"type":"text","content":"x","font":"9x9"}]}`},
		{"bad text color", `{"elements":[{"type":"text","content":"x","color":[256,0,0]}]}`},
		{"negative scroll speed", `{"elements":[{"type":"scrolling_text","content":"x","speed":-1}]}`},
		{"zero scroll gap", `{"elements":[{"type":"scrolling_text","content":"x","gap":0}]}`},
		{"bad page direction", `{"elements":[{"type":"textlong","content":"x","direction":"diagonal"}]}`},
		{"icon without name", `{"elements":[{"type":"icon"}]}`},
		{"image without source", `{"elements":[{"type":"image"}]}`},
		{"image with two sources", `{"elements":[{"type":"image","path":"a.png","url":"http://x/a.png"}]}`},
		{"image width without height", `{"elements":[{"type":"image","path":"a.png","width":8}]}`},
		{"short pixel tuple", `{"elements":[{"type":"pixels","pixels":[[0,0,255,0]]}]}`},
		{"pixel channel range", `{"elements":[{"type":"pixels","pixels":[[0,0,300,0,0]]}]}`},
		{"unknown transition", `{"elements":[{"type":"text","content":"x"}],"transition":{"type":"spin"}}`},
		{"transition duration", `{"elements":[{"type":"text","content":"x"}],"transition":{"type":"dissolve","duration":0}}`},
	}
	for _, tt := range tests {
		_, err := ParseRequest([]byte(tt.body))
		if err == nil {
			t.Errorf("%s: accepted", tt.name)
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: error %v is not a ValidationError", tt.name, err)
		}
	}
}
