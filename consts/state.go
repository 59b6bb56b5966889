package consts

const (
	State_Pending = "pending"
	State_Success = "success"
	State_Error   = "error"
)

// Provenance tags attached to every fetched quote.
const (
	SourceLLM       = "llm"
	SourceWebSearch = "web_search"
	SourceQuoteAPI  = "quote_api"
)

// Tools recorded in AnalysisState.ToolsUsed.
const (
	Tool_CompanyResearch   = "company_research"
	Tool_WebCrawl          = "web_crawl"
	Tool_SentimentAnalysis = "sentiment_analysis"
	Tool_Valuation         = "valuation_model"
	Tool_ThesisWriter      = "thesis_writer"
	Tool_Critique          = "critique_review"
	Tool_ThesisRevision    = "thesis_revision"
)

// RevisionKey names the optional post-critique rewrite in reports and the
// run store. It is not a stage and never counts toward confidence.
const RevisionKey = "revision"
