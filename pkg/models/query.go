package models

// ContextEMR marks a query scoped to a structured medical-record context.
const ContextEMR = "emr"

// ProviderDevelopment is the explicit development marker in Options.Provider.
const ProviderDevelopment = "development"

// Query is a single AI query as seen by the cache.
type Query struct {
	Text      string        `json:"query"`
	SubjectID string        `json:"subject_id,omitempty"`
	Context   *QueryContext `json:"context,omitempty"`
	Notes     []Note        `json:"notes,omitempty"`
	Options   Options       `json:"options,omitempty"`
}

// QueryContext describes the record context a query is scoped to.
type QueryContext struct {
	Type string `json:"type"`
}

// Note is a free-text clinical note attached to a query.
type Note struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
}

// Options are per-query options supplied by the query originator.
// Priority "high" or Context "critical" flags a critical query.
type Options struct {
	Provider  string `json:"provider,omitempty" yaml:"provider"`
	Language  string `json:"language,omitempty" yaml:"language"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Priority  string `json:"priority,omitempty" yaml:"priority"`
	Context   string `json:"context,omitempty" yaml:"context"`
}

// IsZero reports whether no option is set.
func (o Options) IsZero() bool {
	return o == Options{}
}

// IsEMR reports whether the query is scoped to a medical-record context.
func (q Query) IsEMR() bool {
	return q.Context != nil && q.Context.Type == ContextEMR
}

// IsCritical reports whether the originator flagged the query as critical.
func (q Query) IsCritical() bool {
	return q.Options.Context == "critical" || q.Options.Priority == "high"
}

// HasSubject reports whether the query is bound to a patient.
func (q Query) HasSubject() bool {
	return q.SubjectID != ""
}
