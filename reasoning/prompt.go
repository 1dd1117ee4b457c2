package reasoning

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/brunobiangulo/contractgraph/contract"
)

const systemPrompt = `You are a legal contract analyst. Answer questions using ONLY the contracts provided.
Rules:
1. Every factual statement must cite the contract it comes from as [Contract <id>], using the id shown in the contract header.
2. Never cite an id that is not listed in the context.
3. If the contracts do not contain the answer, say so explicitly.
4. Preserve exact party names, dates, amounts and clause wording.
5. Be concise.`

// buildContext renders each contract as a labelled block. Each block is
// cut to an equal share of maxChars.
func buildContext(contracts []*contract.Contract, maxChars int) string {
	share := maxChars / len(contracts)
	var b strings.Builder
	for _, c := range contracts {
		b.WriteString(truncate(renderContract(c), share))
		b.WriteString("\n")
	}
	return b.String()
}

func renderContract(c *contract.Contract) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- Contract [%s] ---\n", c.ID)
	field := func(name string, v *string) {
		if v != nil && *v != "" {
			fmt.Fprintf(&b, "%s: %s\n", name, *v)
		}
	}
	field("Type", c.ContractType)
	if len(c.Parties) > 0 {
		parties := make([]string, len(c.Parties))
		for i, p := range c.Parties {
			parties[i] = renderParty(p)
		}
		fmt.Fprintf(&b, "Parties: %s\n", strings.Join(parties, "; "))
	}
	field("Effective date", c.EffectiveDate)
	field("End date", c.EndDate)
	field("Duration", c.Duration)
	if c.TotalAmount != nil {
		fmt.Fprintf(&b, "Total amount: %s %s\n",
			strconv.FormatFloat(c.TotalAmount.Value, 'f', -1, 64), c.TotalAmount.Currency)
	}
	field("Governing law", c.GoverningLaw)
	field("Scope", c.Scope)
	fmt.Fprintf(&b, "Summary: %s\n", c.Summary)
	if len(c.Clauses) > 0 {
		b.WriteString("Clauses:\n")
		for _, cl := range c.Clauses {
			fmt.Fprintf(&b, "- [%s] %s\n", cl.Type, cl.Text)
		}
	}
	return b.String()
}

func renderParty(p contract.Organization) string {
	var extra []string
	if p.Role != nil && *p.Role != "" {
		extra = append(extra, *p.Role)
	}
	if l := p.Location; l != nil {
		for _, v := range []*string{l.City, l.State, l.Country} {
			if v != nil && *v != "" {
				extra = append(extra, *v)
			}
		}
	}
	if len(extra) == 0 {
		return p.Name
	}
	return fmt.Sprintf("%s (%s)", p.Name, strings.Join(extra, ", "))
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n[truncated]\n"
}

func buildAnswerPrompt(question, context string) string {
	return fmt.Sprintf(`Contracts:
%s
Question: %s

Answer based only on the contracts above. Cite every fact as [Contract <id>].`, context, question)
}

func buildRefinementPrompt(question, previous, context string, v *validation) string {
	return fmt.Sprintf(`Contracts:
%s
Question: %s

Previous answer:
%s

Problems with the previous answer:
- %s

Rewrite the answer so that it fixes these problems. Cite every fact as [Contract <id>] using only the ids listed above.`,
		context, question, previous, strings.Join(v.issues, "\n- "))
}
