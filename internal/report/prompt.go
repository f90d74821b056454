package report

import (
	"fmt"
	"strings"
)

// buildPrompt asks for a short spending analysis of the CSV sample.
func buildPrompt(csvSample string, sampleRows, totalRows int) string {
	var b strings.Builder

	b.WriteString("You are a financial analyst reviewing a cleaned table of card transactions.\n\n")

	if sampleRows < totalRows {
		fmt.Fprintf(&b, "The table has %d rows; the first %d are included below.\n", totalRows, sampleRows)
	} else {
		fmt.Fprintf(&b, "The table has %d rows, all included below.\n", totalRows)
	}
	b.WriteString("Columns: date (YYYY-MM-DD or \"none\"), merchant, normalized company name, industry, ")
	b.WriteString("amount, currency, amount in USD (empty when it could not be converted).\n\n")

	b.WriteString("Write a concise report with:\n")
	b.WriteString("1. Total and average spending in USD.\n")
	b.WriteString("2. Top merchants by spend, as a Markdown table.\n")
	b.WriteString("3. Spending by industry.\n")
	b.WriteString("4. Irregular or unusually large transactions.\n")
	b.WriteString("5. Two or three practical recommendations.\n\n")
	b.WriteString("Use short bullet points. Do not invent rows that are not in the data.\n\n")

	b.WriteString("DATA:\n")
	b.WriteString(csvSample)

	return b.String()
}
