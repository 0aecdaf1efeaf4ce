// Package router classifies a research query as academic, industry, or
// mixed and returns a prioritized API chain, so the orchestrator tries the
// adapter most likely to answer a query first while still maximizing
// source diversity across a run.
//
// It is a line-for-line port of original_source's
// engine/utils/api_citations/query_router.py QueryRouter, including its
// English, German, and Spanish keyword patterns and its confidence scoring.
package router

import "strings"

// QueryType is the classification assigned to a research query.
type QueryType string

const (
	TypeAcademic QueryType = "academic"
	TypeIndustry QueryType = "industry"
	TypeMixed    QueryType = "mixed"
)

// Classification is the result of routing a single query.
type Classification struct {
	QueryType       QueryType
	Confidence      float64
	MatchedPatterns []string
	APIChain        []string
}

// industryPatterns mirrors INDUSTRY_PATTERNS, including the German and
// Spanish entries query_router.py adds when multilingual support is on.
var industryPatterns = []string{
	"mckinsey", "boston consulting", "bcg", "bain", "deloitte",
	"accenture", "pwc", "kpmg", "ey", "gartner", "forrester",
	"idc", "ovum", "frost & sullivan",

	"brookings", "rand corporation", "carnegie", "cato institute",
	"heritage foundation", "pew research", "urban institute",
	"chatham house", "cfr", "council on foreign relations",

	"world bank", "imf", "international monetary fund",
	"oecd", "united nations", "who", "world health organization",
	"wef", "world economic forum", "itu", "wto",

	"european commission", "eu commission", "ec report",
	"european parliament", "us congress", "congressional",
	"government accountability office", "gao",
	"federal reserve", "european central bank", "ecb",
	"fda", "epa", "cdc", "nih", "nist", "nasa",

	"iso standard", "iso ", "ieee", "ietf", "w3c", "oasis", "ansi",

	"white paper", "whitepaper", "policy brief", "policy paper",
	"technical report", "industry report", "market research",
	"working paper", "briefing", "position paper",
	"guidelines", "framework", "best practices",
	"standards document", "regulation", "directive",

	"market analysis", "industry trends", "sector overview",
	"competitive landscape", "market forecast",

	"openai", "anthropic", "google", "microsoft", "meta",
	"amazon", "apple", "ibm", "oracle", "salesforce",
	"gpt-4", "claude", "gemini", "chatgpt", "copilot",
	"aws", "azure", "gcp", "cloud platform",

	"comparison", "benchmark", "pricing comparison",
	"vendor", "product", "service provider",
	"platform", "saas", "enterprise software",
	"implementation", "deployment", "migration",

	"bericht", "studie", "leitfaden",
	"richtlinien", "verordnung", "rahmenwerk",

	"informe", "libro blanco", "directrices",
	"marco", "regulación", "normativa",
}

// academicPatterns mirrors ACADEMIC_PATTERNS plus its multilingual additions.
var academicPatterns = []string{
	"peer-reviewed", "peer reviewed", "scholarly article",
	"journal article", "academic paper", "research paper",
	"conference paper", "proceedings", "dissertation",
	"draft", "monograph",

	"empirical study", "empirical research", "empirical analysis",
	"systematic review", "meta-analysis", "literature review",
	"randomized controlled trial", "rct", "cohort study",
	"case-control study", "longitudinal study",
	"qualitative research", "quantitative research",

	"published in", "indexed in", "scopus", "web of science",
	"impact factor", "cited by", "citations",

	"pubmed", "jstor", "springer", "elsevier", "wiley",
	"taylor & francis", "sage", "oxford university press",

	"theoretical framework", "conceptual model",
	"research methodology", "data analysis",

	"economics", "economic theory", "economic model",
	"pricing theory", "market theory", "game theory",
	"transaction cost", "information goods", "public goods",
	"two-sided market", "platform economics", "network effects",
	"demand elasticity", "price discrimination", "marginal cost",
	"economies of scale", "market equilibrium",

	"algorithm", "computational complexity", "machine learning",
	"neural network", "natural language processing",
	"computer vision", "distributed systems", "cryptography",
	"information retrieval", "data mining",

	"sociological", "psychological", "anthropological",
	"behavioral", "cognitive", "organizational behavior",

	"climate science", "environmental impact", "carbon emissions",
	"renewable energy", "sustainability assessment",
	"ecological", "biodiversity",

	"wissenschaftliche arbeit", "forschungsarbeit",
	"peer-review", "fachzeitschrift",
	"empirische studie", "meta-analyse",

	"artículo académico", "trabajo de investigación",
	"revisión por pares", "revista académica",
	"estudio empírico", "metaanálisis",
}

func matches(query string, patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if strings.Contains(query, p) {
			out = append(out, p)
		}
	}
	return out
}

// ClassifyQuery scores query against the industry and academic pattern
// sets and returns the winning QueryType, a confidence in [0, 1], and the
// patterns that drove the decision.
func ClassifyQuery(query string) (QueryType, float64, []string) {
	lower := strings.ToLower(query)
	industryMatches := matches(lower, industryPatterns)
	academicMatches := matches(lower, academicPatterns)

	switch {
	case len(industryMatches) > 0 && len(academicMatches) == 0:
		confidence := 0.5 + float64(len(industryMatches))*0.1
		if confidence > 0.9 {
			confidence = 0.9
		}
		return TypeIndustry, confidence, industryMatches

	case len(academicMatches) > 0 && len(industryMatches) == 0:
		confidence := 0.5 + float64(len(academicMatches))*0.1
		if confidence > 0.9 {
			confidence = 0.9
		}
		return TypeAcademic, confidence, academicMatches

	case len(industryMatches) > 0 && len(academicMatches) > 0:
		combined := append(append([]string{}, industryMatches...), academicMatches...)
		switch {
		case len(industryMatches) > len(academicMatches):
			return TypeIndustry, 0.6, combined
		case len(academicMatches) > len(industryMatches):
			return TypeAcademic, 0.6, combined
		default:
			return TypeMixed, 0.5, combined
		}

	default:
		return TypeMixed, 0.3, nil
	}
}

// APIChain returns the prioritized adapter order for a query type, matching
// get_api_chain's three fixed chains.
func APIChain(qt QueryType) []string {
	switch qt {
	case TypeIndustry:
		return []string{"gemini_grounded", "semantic_scholar", "crossref"}
	case TypeAcademic:
		return []string{"crossref", "semantic_scholar", "gemini_grounded"}
	default:
		return []string{"semantic_scholar", "gemini_grounded", "crossref"}
	}
}

// ClassifyAndRoute is the main entry point: classify query, then attach its
// API chain.
func ClassifyAndRoute(query string) Classification {
	qt, confidence, patterns := ClassifyQuery(query)
	return Classification{
		QueryType:       qt,
		Confidence:      confidence,
		MatchedPatterns: patterns,
		APIChain:        APIChain(qt),
	}
}
