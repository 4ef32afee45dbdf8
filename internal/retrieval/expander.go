package retrieval

import "strings"

// SynonymEntry maps one domain term to its near-synonyms.
type SynonymEntry struct {
	Term     string   `yaml:"term"`
	Synonyms []string `yaml:"synonyms"`
}

// SynonymTable is an ordered, inspectable synonym mapping. Order matters:
// expansion variants are generated entry by entry, so the table, not map
// iteration, determines variant order.
type SynonymTable []SynonymEntry

// DefaultSynonymTable returns the built-in finance-domain table. It is a
// starting point; deployments pass their own table through configuration.
func DefaultSynonymTable() SynonymTable {
	return SynonymTable{
		{Term: "股票", Synonyms: []string{"股价", "股份", "证券", "投资"}},
		{Term: "公司", Synonyms: []string{"企业", "机构", "组织"}},
		{Term: "表现", Synonyms: []string{"业绩", "成绩", "结果", "情况"}},
		{Term: "stock", Synonyms: []string{"share", "equity", "security"}},
		{Term: "company", Synonyms: []string{"firm", "corporation", "enterprise"}},
		{Term: "performance", Synonyms: []string{"results", "earnings", "returns"}},
	}
}

// QueryExpander generates query variants by substituting synonym-table terms.
// This is a lightweight lexical heuristic, not semantic expansion: no model
// call is performed.
type QueryExpander struct {
	table SynonymTable
}

// NewQueryExpander creates an expander over the given table. A nil table
// falls back to the default.
func NewQueryExpander(table SynonymTable) *QueryExpander {
	if table == nil {
		table = DefaultSynonymTable()
	}
	return &QueryExpander{table: table}
}

// Expand returns the original query followed by one variant per matching
// synonym, in table order, duplicates removed. Every occurrence of a matched
// term is substituted. If no table term appears in the query, the result is
// a single-element list containing only the original.
func (e *QueryExpander) Expand(query string) []string {
	variants := []string{query}
	seen := map[string]struct{}{query: {}}

	for _, entry := range e.table {
		if entry.Term == "" || !strings.Contains(query, entry.Term) {
			continue
		}
		for _, syn := range entry.Synonyms {
			variant := strings.ReplaceAll(query, entry.Term, syn)
			if _, ok := seen[variant]; ok {
				continue
			}
			seen[variant] = struct{}{}
			variants = append(variants, variant)
		}
	}

	return variants
}
