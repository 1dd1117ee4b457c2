package extract

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/contractgraph/contract"
)

const systemPrompt = `You extract structured data from legal contracts.
Respond with a single JSON object and nothing else. Use null for any value the text does not state. Never invent values.`

// extractionPrompt embeds the record shape, the vocabulary hints, window
// information and the contract text.
const extractionPrompt = `Extract the following fields from the contract text below and return them as one JSON object.

FIELDS:
- "summary" (string, required): high level summary of the contract with the relevant facts. Do not use pronouns.
- "contract_type" (string or null): the kind of agreement. Typical values: %s.
- "parties" (array or null): every organization that is a party, in order of appearance. Each item:
    {"name": string, "role": string or null (provider, client, supplier, licensor, ...),
     "location": {"address": string|null, "city": string|null, "state": string|null, "country": two-letter ISO 3166 code|null} or null}
- "effective_date" (string or null): date the contract takes effect, yyyy-MM-dd. If only the year is known use yyyy-01-01.
- "end_date" (string or null): date the contract ends or payment is due in full, yyyy-MM-dd.
- "duration" (string or null): term of the agreement as an ISO 8601 duration, e.g. "P1Y", "P6M", "P30D".
- "total_amount" (object or null): {"currency": ISO 4217 code such as "USD", "value": number without separators}.
- "governing_law" (string or null): the jurisdiction whose law governs, e.g. "California", "England and Wales".
- "scope" (string or null): rights, duties and limitations covered by the contract.
- "clauses" (array): notable provisions in the order they appear. Each item:
    {"type": string (typical values: %s), "text": string summarizing the clause without pronouns}
    Use an empty array when there are none.
%s
CONTRACT TEXT:
%s`

const windowNote = `
NOTE: this is part %d of %d of a longer contract. Extract only what this part states; use null for everything else.
`

const repairPrompt = `Your previous answer could not be accepted: %s

Return the corrected JSON object only, with the same fields. Use null for values the text does not state rather than guessing.`

func buildPrompt(text string, window, total int) string {
	note := ""
	if total > 1 {
		note = fmt.Sprintf(windowNote, window+1, total)
	}
	return fmt.Sprintf(extractionPrompt,
		quoteList(contract.ContractTypes),
		quoteList(contract.ClauseTypes),
		note,
		text,
	)
}

func buildRepairPrompt(problem error) string {
	return fmt.Sprintf(repairPrompt, problem)
}

func quoteList(items []string) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = `"` + s + `"`
	}
	return strings.Join(q, ", ")
}
