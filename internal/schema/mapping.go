package schema

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Analyzer names used by the index.
const (
	TextAnalyzer    = en.AnalyzerName
	KeywordAnalyzer = keyword.Name
)

// AnalyzerFor returns the analyzer name for a treatment.
func AnalyzerFor(t Treatment) string {
	if t == Keyword {
		return KeywordAnalyzer
	}
	return TextAnalyzer
}

// BuildIndexMapping creates the bleve mapping for the index. Documents are
// built field by field, so the mapping mostly tells the query parser which
// analyzer to apply to a field: keyword fields match whole values, every
// other field is analyzed as English text.
func BuildIndexMapping(reg *Registry) *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = TextAnalyzer

	docMapping := bleve.NewDocumentMapping()
	for _, name := range reg.KeywordFields() {
		docMapping.AddFieldMappingsAt(name, keywordFieldMapping(!IsInternal(name)))
	}
	docMapping.AddFieldMappingsAt(FileContent, pageTextMapping())
	docMapping.AddFieldMappingsAt(FileAnnotations, pageTextMapping())

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func keywordFieldMapping(includeInAll bool) *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = KeywordAnalyzer
	fm.Store = true
	fm.IncludeInAll = includeInAll
	return fm
}

func pageTextMapping() *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = TextAnalyzer
	fm.Store = true
	fm.IncludeTermVectors = true
	return fm
}
