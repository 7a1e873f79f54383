package floweave

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpConfig(url string) json.RawMessage {
	return json.RawMessage(`{"url": "` + url + `", "method": "GET"}`)
}

func triggerNode(id string) NodeSpec {
	return NodeSpec{ID: id, Kind: KindManualTrigger}
}

func httpNode(id string) NodeSpec {
	return NodeSpec{ID: id, Kind: KindHTTPRequest, Config: httpConfig("https://example.com")}
}

func validationCodes(err error) []ValidationCode {
	var codes []ValidationCode
	var ve *ValidationError
	for _, e := range flatten(err) {
		if errors.As(e, &ve) {
			codes = append(codes, ve.Code)
		}
	}
	return codes
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

func TestValidate(t *testing.T) {
	t.Run("valid graph passes", func(t *testing.T) {
		w := &Workflow{
			ID:    "wf",
			Nodes: []NodeSpec{triggerNode("T"), httpNode("N")},
			Edges: []Edge{{ID: "e1", FromNode: "T", ToNode: "N"}},
		}
		vw, err := Validate(w)
		require.NoError(t, err)
		require.NotNil(t, vw)

		trigger, ok := vw.TriggerID()
		require.True(t, ok)
		assert.Equal(t, "T", trigger)

		cfg, ok := vw.Config("N").(HTTPRequestConfig)
		require.True(t, ok)
		assert.Equal(t, "https://example.com", cfg.URL)

		// Empty ports were normalized to "main".
		out := vw.OutEdges("T")
		require.Len(t, out, 1)
		assert.Equal(t, PortMain, out[0].FromPort)
		assert.Equal(t, PortMain, out[0].ToPort)
	})

	t.Run("two manual triggers rejected", func(t *testing.T) {
		w := &Workflow{
			ID:    "wf",
			Nodes: []NodeSpec{triggerNode("T1"), triggerNode("T2")},
		}
		_, err := Validate(w)
		require.Error(t, err)
		assert.Contains(t, validationCodes(err), CodeDuplicateTrigger)
	})

	t.Run("dangling edge endpoints rejected", func(t *testing.T) {
		w := &Workflow{
			ID:    "wf",
			Nodes: []NodeSpec{triggerNode("T")},
			Edges: []Edge{{ID: "e1", FromNode: "T", ToNode: "ghost"}},
		}
		_, err := Validate(w)
		require.Error(t, err)
		assert.Contains(t, validationCodes(err), CodeDanglingEdge)
	})

	t.Run("placeholder node rejected", func(t *testing.T) {
		w := &Workflow{
			ID:    "wf",
			Nodes: []NodeSpec{{ID: "P", Kind: KindInitial}},
		}
		_, err := Validate(w)
		require.Error(t, err)
		assert.Contains(t, validationCodes(err), CodePlaceholderNode)
	})

	t.Run("edge into trigger input rejected", func(t *testing.T) {
		w := &Workflow{
			ID:    "wf",
			Nodes: []NodeSpec{triggerNode("T"), httpNode("N")},
			Edges: []Edge{{ID: "e1", FromNode: "N", ToNode: "T"}},
		}
		_, err := Validate(w)
		require.Error(t, err)
		assert.Contains(t, validationCodes(err), CodeInvalidPort)
	})

	t.Run("unknown port name rejected", func(t *testing.T) {
		w := &Workflow{
			ID:    "wf",
			Nodes: []NodeSpec{triggerNode("T"), httpNode("N")},
			Edges: []Edge{{ID: "e1", FromNode: "T", FromPort: "side", ToNode: "N"}},
		}
		_, err := Validate(w)
		require.Error(t, err)
		assert.Contains(t, validationCodes(err), CodeInvalidPort)
	})

	t.Run("duplicate parallel edge rejected", func(t *testing.T) {
		w := &Workflow{
			ID:    "wf",
			Nodes: []NodeSpec{triggerNode("T"), httpNode("N")},
			Edges: []Edge{
				{ID: "e1", FromNode: "T", ToNode: "N"},
				{ID: "e2", FromNode: "T", ToNode: "N"},
			},
		}
		_, err := Validate(w)
		require.Error(t, err)
		assert.Contains(t, validationCodes(err), CodeDuplicateEdge)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		w := &Workflow{
			ID:    "wf",
			Nodes: []NodeSpec{{ID: "X", Kind: "teleport"}},
		}
		_, err := Validate(w)
		require.Error(t, err)
		assert.Contains(t, validationCodes(err), CodeUnknownKind)
	})

	t.Run("bad config rejected", func(t *testing.T) {
		w := &Workflow{
			ID: "wf",
			Nodes: []NodeSpec{
				{ID: "N", Kind: KindHTTPRequest, Config: json.RawMessage(`{"method": "YANK"}`)},
			},
		}
		_, err := Validate(w)
		require.Error(t, err)
		assert.Contains(t, validationCodes(err), CodeBadConfig)
	})

	t.Run("cycle reported with participating nodes", func(t *testing.T) {
		w := &Workflow{
			ID: "wf",
			Nodes: []NodeSpec{
				triggerNode("T"), httpNode("A"), httpNode("B"), httpNode("C"),
			},
			Edges: []Edge{
				{ID: "e1", FromNode: "T", ToNode: "A"},
				{ID: "e2", FromNode: "A", ToNode: "B"},
				{ID: "e3", FromNode: "B", ToNode: "C"},
				{ID: "e4", FromNode: "C", ToNode: "A"},
			},
		}
		_, err := Validate(w)
		require.Error(t, err)
		require.ErrorIs(t, err, ErrCycleDetected)

		var cyc *CycleError
		require.True(t, errors.As(err, &cyc))
		assert.ElementsMatch(t, []string{"A", "B", "C"}, cyc.NodeIDs)
	})

	t.Run("validate is idempotent", func(t *testing.T) {
		w := &Workflow{
			ID:    "wf",
			Nodes: []NodeSpec{triggerNode("T1"), triggerNode("T2"), httpNode("N")},
			Edges: []Edge{{ID: "e1", FromNode: "T1", ToNode: "ghost"}},
		}
		_, err1 := Validate(w)
		_, err2 := Validate(w)
		require.Error(t, err1)
		require.Error(t, err2)
		assert.Equal(t, err1.Error(), err2.Error())

		good := &Workflow{
			ID:    "wf2",
			Nodes: []NodeSpec{triggerNode("T"), httpNode("N")},
			Edges: []Edge{{ID: "e1", FromNode: "T", ToNode: "N"}},
		}
		_, err1 = Validate(good)
		_, err2 = Validate(good)
		assert.NoError(t, err1)
		assert.NoError(t, err2)
	})
}

func TestDecodeConfig(t *testing.T) {
	t.Run("method defaults to GET", func(t *testing.T) {
		cfg, err := DecodeConfig(KindHTTPRequest, json.RawMessage(`{"url": "https://x"}`))
		require.NoError(t, err)
		assert.Equal(t, "GET", cfg.(HTTPRequestConfig).Method)
	})

	t.Run("url required", func(t *testing.T) {
		_, err := DecodeConfig(KindHTTPRequest, json.RawMessage(`{"method": "GET"}`))
		assert.Error(t, err)
	})

	t.Run("method outside closed set rejected", func(t *testing.T) {
		_, err := DecodeConfig(KindHTTPRequest, json.RawMessage(`{"url": "https://x", "method": "TRACE"}`))
		assert.Error(t, err)
	})

	t.Run("placeholder is not executable", func(t *testing.T) {
		_, err := DecodeConfig(KindInitial, nil)
		assert.Error(t, err)
	})

	t.Run("unknown kind is a load-time error", func(t *testing.T) {
		_, err := DecodeConfig("teleport", nil)
		assert.Error(t, err)
	})

	t.Run("timeout override surfaces", func(t *testing.T) {
		cfg, err := DecodeConfig(KindHTTPRequest, json.RawMessage(`{"url": "https://x", "timeout_seconds": 7}`))
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.(HTTPRequestConfig).TimeoutSeconds)
	})
}
