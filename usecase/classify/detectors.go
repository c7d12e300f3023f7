package classify

import (
	"strings"

	"github.com/kompox/patchbay/domain/model"
)

// ExplicitDetector honors the envelope engine field, then context["engine"].
type ExplicitDetector struct{}

func (ExplicitDetector) Source() Source { return SourceExplicit }

func (ExplicitDetector) Detect(req *Request) (model.EngineType, bool, error) {
	name := ""
	if req.Envelope != nil {
		name = req.Envelope.Engine
	}
	if name == "" {
		if s, ok := req.Context["engine"].(string); ok {
			name = s
		}
	}
	if strings.TrimSpace(name) == "" {
		return "", false, nil
	}
	e, err := model.ParseEngineType(name)
	if err != nil {
		return "", false, err
	}
	return e, true, nil
}

// WorkspaceDetector returns the engine recorded on the workspace.
type WorkspaceDetector struct{}

func (WorkspaceDetector) Source() Source { return SourceWorkspace }

func (WorkspaceDetector) Detect(req *Request) (model.EngineType, bool, error) {
	if req.Workspace == nil || req.Workspace.EngineType == "" {
		return "", false, nil
	}
	return req.Workspace.EngineType, true, nil
}

// KeywordDetector picks the engine with the most vocabulary hits. A tie
// for the top score is no decision.
type KeywordDetector struct {
	c *Classifier
}

// NewKeywordDetector scores text against vocabs.
func NewKeywordDetector(vocabs map[model.EngineType]model.Vocabulary) *KeywordDetector {
	return &KeywordDetector{c: newClassifier(vocabs)}
}

func (*KeywordDetector) Source() Source { return SourceKeywords }

func (d *KeywordDetector) Detect(req *Request) (model.EngineType, bool, error) {
	var top model.EngineType
	best, tie := 0, false
	for e, n := range d.c.scores(req.text()) {
		switch {
		case n > best:
			top, best, tie = e, n, false
		case n == best:
			tie = true
		}
	}
	if best == 0 || tie {
		return "", false, nil
	}
	return top, true, nil
}

// DefaultDetector always answers with Engine.
type DefaultDetector struct {
	Engine model.EngineType
}

func (DefaultDetector) Source() Source { return SourceDefault }

func (d DefaultDetector) Detect(*Request) (model.EngineType, bool, error) {
	if d.Engine == "" {
		return "", false, nil
	}
	return d.Engine, true, nil
}
