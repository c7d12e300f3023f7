// Package classify decides which engine family a command belongs to and
// rejects commands that carry another engine's syntax.
//
// Detection is a best-effort heuristic over vocabulary lists, not a parser.
// A command can mention terms legitimately shared by several engines; only
// engine-specific API tokens (signatures) are trusted to reject a command.
package classify

import (
	"sort"

	"github.com/kompox/patchbay/domain/model"
)

// Source names the detector that decided the engine.
type Source string

const (
	SourceExplicit  Source = "explicit"
	SourceWorkspace Source = "workspace"
	SourceKeywords  Source = "keywords"
	SourceDefault   Source = "default"
)

// Request is the input of engine detection.
type Request struct {
	Workspace *model.Workspace
	Envelope  *model.CommandEnvelope
	// Context is the caller supplied dispatch context.
	Context map[string]any
}

func (r *Request) text() string {
	if r.Envelope == nil {
		return ""
	}
	return r.Envelope.Text()
}

// Detector is one step of the detection chain. ok is false when the
// detector has no opinion and the next one should be asked.
type Detector interface {
	Source() Source
	Detect(req *Request) (engine model.EngineType, ok bool, err error)
}

// Compatibility reports the cross-engine guard evidence.
type Compatibility struct {
	Checked        bool                          `json:"checked"`
	OwnMatches     []string                      `json:"own_matches,omitempty"`
	ForeignMatches map[model.EngineType][]string `json:"foreign_matches,omitempty"`
}

// Result is the outcome of Classify.
type Result struct {
	Engine        model.EngineType `json:"engine_type"`
	DetectedBy    Source           `json:"detected_by"`
	Compatibility Compatibility    `json:"compatibility"`
}

type vocabMatchers struct {
	keywords   *matcher
	signatures *matcher
}

// Classifier runs the detection chain and the cross-engine guard.
type Classifier struct {
	detectors []Detector
	vocab     map[model.EngineType]vocabMatchers
	engines   []model.EngineType
	features  map[string]*matcher
}

// New builds a classifier with the standard chain: explicit field,
// workspace engine, keyword scoring, then defaultEngine.
func New(vocabs map[model.EngineType]model.Vocabulary, defaultEngine model.EngineType) *Classifier {
	c := newClassifier(vocabs)
	c.detectors = []Detector{
		ExplicitDetector{},
		WorkspaceDetector{},
		&KeywordDetector{c: c},
		DefaultDetector{Engine: defaultEngine},
	}
	return c
}

// NewWithDetectors builds a classifier with a custom chain.
func NewWithDetectors(vocabs map[model.EngineType]model.Vocabulary, detectors ...Detector) *Classifier {
	c := newClassifier(vocabs)
	c.detectors = detectors
	return c
}

func newClassifier(vocabs map[model.EngineType]model.Vocabulary) *Classifier {
	c := &Classifier{vocab: map[model.EngineType]vocabMatchers{}, features: map[string]*matcher{}}
	for e, v := range vocabs {
		c.vocab[e] = vocabMatchers{
			keywords:   newMatcher(v.Keywords, true),
			signatures: newMatcher(v.Signatures, false),
		}
		c.engines = append(c.engines, e)
	}
	sort.Slice(c.engines, func(i, j int) bool { return c.engines[i] < c.engines[j] })
	for f, words := range DefaultFeatures {
		c.features[f] = newMatcher(words, true)
	}
	return c
}

// Detect walks the chain and returns the first engine decided.
func (c *Classifier) Detect(req *Request) (*Result, error) {
	for _, d := range c.detectors {
		e, ok, err := d.Detect(req)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Result{Engine: e, DetectedBy: d.Source()}, nil
		}
	}
	return nil, model.NewError(model.KindUnsupportedEngine, "no engine could be determined")
}

// Classify detects the engine of req and, when the workspace has a
// recorded engine, enforces that the command belongs to it.
func (c *Classifier) Classify(req *Request) (*Result, error) {
	res, err := c.Detect(req)
	if err != nil {
		return nil, err
	}
	ws := req.Workspace
	if ws == nil || ws.EngineType == "" {
		return res, nil
	}
	if res.Engine != ws.EngineType {
		return nil, model.NewError(model.KindCrossEngineCommandRejected,
			"command targets %s but workspace %s is %s", res.Engine, ws.ID, ws.EngineType).
			WithDetail("requested_engine", string(res.Engine)).
			WithDetail("workspace_engine", string(ws.EngineType)).
			WithDetail("detected_by", string(res.DetectedBy))
	}
	comp, err := c.Guard(ws.EngineType, req.text())
	res.Compatibility = comp
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Guard rejects text that carries signatures of another engine while
// showing nothing of engine. Generic words never appear in signature
// lists, so commands without engine-specific tokens always pass.
func (c *Classifier) Guard(engine model.EngineType, text string) (Compatibility, error) {
	comp := Compatibility{Checked: true}
	if own, ok := c.vocab[engine]; ok {
		comp.OwnMatches = append(own.signatures.find(text), own.keywords.find(text)...)
	}
	var detected model.EngineType
	best := 0
	for _, e := range c.engines {
		if e == engine {
			continue
		}
		hits := c.vocab[e].signatures.find(text)
		if len(hits) == 0 {
			continue
		}
		if comp.ForeignMatches == nil {
			comp.ForeignMatches = map[model.EngineType][]string{}
		}
		comp.ForeignMatches[e] = hits
		if len(hits) > best {
			best, detected = len(hits), e
		}
	}
	if detected == "" || len(comp.OwnMatches) > 0 {
		return comp, nil
	}
	return comp, model.NewError(model.KindCrossEngineCommandRejected,
		"command contains %s syntax but the workspace engine is %s", detected, engine).
		WithDetail("detected_engine", string(detected)).
		WithDetail("workspace_engine", string(engine)).
		WithDetail("matched_tokens", comp.ForeignMatches[detected])
}

// scores counts distinct vocabulary hits per engine.
func (c *Classifier) scores(text string) map[model.EngineType]int {
	out := map[model.EngineType]int{}
	for _, e := range c.engines {
		v := c.vocab[e]
		if n := len(v.keywords.find(text)) + len(v.signatures.find(text)); n > 0 {
			out[e] = n
		}
	}
	return out
}
