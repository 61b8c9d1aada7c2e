package domain

// Route is the normalization path chosen for a source file.
type Route string

const (
	RoutePassThrough         Route = "pass_through"
	RouteDirectText          Route = "direct_text"
	RouteRenderThenRecognize Route = "render_then_recognize"
)

// SourceFile is a staged upload. It is never mutated; the orchestrator relocates it on commit.
type SourceFile struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	ContentHash string `json:"contentHash"`
	Size        int64  `json:"size"`
	BatchID     string `json:"batchId"`
}

// IngestDecision is what the format router resolved for a source file.
// ArtifactPath points at a page-bearing PDF for PassThrough and RenderThenRecognize,
// and at a UTF-8 text file for DirectText.
type IngestDecision struct {
	Route        Route    `json:"route"`
	ArtifactPath string   `json:"artifactPath"`
	Notes        []string `json:"notes,omitempty"`
}

// ExtractionTier names the funnel step that produced the final text.
type ExtractionTier string

const (
	TierTextLayer    ExtractionTier = "text_layer"
	TierOCRPrimary   ExtractionTier = "ocr_primary"
	TierOCRSecondary ExtractionTier = "ocr_secondary"
	TierDirectText   ExtractionTier = "direct_text"
)

type PageExtraction struct {
	Index           int      `json:"index"`
	HasEmbeddedText bool     `json:"hasEmbeddedText"`
	Text            string   `json:"text"`
	Confidence      *float64 `json:"confidence"`
}

type ExtractionStats struct {
	Chars         int            `json:"chars"`
	ScriptRatio   float64        `json:"scriptRatio"`
	AvgConfidence *float64       `json:"avgConfidence"`
	Tier          ExtractionTier `json:"tier"`
}

type ExtractionResult struct {
	Text      string           `json:"-"`
	PageCount int              `json:"pages"`
	Pages     []PageExtraction `json:"pageDetails,omitempty"`
	Stats     ExtractionStats  `json:"stats"`
}
