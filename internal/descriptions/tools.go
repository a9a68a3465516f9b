package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	ListDocumentsDescription = `List the financial statements available for extraction.

**When to use:** Before any other tool, to see which .pdf and .txt documents sit in the configured directory.

**Examples:**
• "Which balance sheets can I process?"
• "Is balance-2023.pdf already in the folder?"

**Best practices:** Pass the names exactly as listed to the other tools; paths are relative to the document directory.`

	DocumentTextDescription = `Return the plain text of a document, one line per page.

**When to use:** To inspect what the extractor sees before writing or debugging a rule: keywords only match text that appears here.

**Examples:**
• "Show the text of balance-2023.pdf so I can find the heading for total assets"
• "Why is 'Total activo' not found in acme.pdf?"

**Best practices:** PDF pages are flattened to a single line each, so a rule in until_newline mode stops at the end of the page.`

	LocateIdentifierDescription = `Find the company tax identifier in a document.

**When to use:** To check which company a statement belongs to. The identifier is the first token made of one uppercase letter followed by eight digits.

**Examples:**
• "Which NIF does acme.pdf carry?"

**Best practices:** When no identifier is present the configured not-found value is returned instead of an error.`

	ExtractFieldsDescription = `Extract the configured fields from a document without writing anything.

**When to use:** Dry runs. Returns the raw text captured for every cell and its normalized value (numbers in Spanish notation become numbers).

**Examples:**
• "Extract acme.pdf and show me what would be written"
• "Try the rules in reglas-2024.json against acme.pdf"

**Common workflows:**
1. Rule tuning: document_text → edit rule file → extract_fields with rules → repeat
2. Review: extract_fields → check values → run_pipeline

**Best practices:** The optional rule file must live in the document directory. Cells whose keyword is missing hold the not-found value.`

	RunPipelineDescription = `Extract the configured fields from a document and write them to the configured destination.

**When to use:** Once the extraction looks right, to fill the spreadsheet or workbook.

**Examples:**
• "Write acme.pdf to the balance sheet"
• "Write acme.pdf to worksheet 2023"

**Best practices:** Writes are not transactional. When a write fails the cells written before it stay, and the error says how many there were.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"list_documents":    ListDocumentsDescription,
	"document_text":     DocumentTextDescription,
	"locate_identifier": LocateIdentifierDescription,
	"extract_fields":    ExtractFieldsDescription,
	"run_pipeline":      RunPipelineDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the names of all described tools, sorted
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
