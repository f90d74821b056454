package notionsync

import (
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
)

// Property names of the records database. "Record Key" is the title column.
const (
	PropRecordKey  = "Record Key"
	PropRunID      = "Run ID"
	PropDate       = "Date"
	PropMerchant   = "Merchant"
	PropCompany    = "Company"
	PropIndustry   = "Industry"
	PropAmount     = "Amount"
	PropCurrency   = "Currency"
	PropAmountUSD  = "Amount USD"
	PropMatchScore = "Match Score"
)

// RecordKey identifies a record across exports: "<run id>:<row>".
func RecordKey(runID string, rec *domain.Record) string {
	return fmt.Sprintf("%s:%d", runID, rec.Row)
}

// RecordToNotionProperties converts a cleaned record to Notion page properties.
// Unset optional fields are omitted so Notion leaves them empty.
func RecordToNotionProperties(runID string, rec *domain.Record) notionapi.Properties {
	props := notionapi.Properties{
		PropRecordKey: notionapi.TitleProperty{
			Title: richText(RecordKey(runID, rec)),
		},
		PropRunID: notionapi.RichTextProperty{
			RichText: richText(runID),
		},
		PropIndustry: notionapi.SelectProperty{
			Select: notionapi.Option{Name: rec.Industry},
		},
		PropMatchScore: notionapi.NumberProperty{
			Number: float64(rec.MatchScore),
		},
	}

	if d, ok := rec.Date.Get(); ok {
		start := notionapi.Date(d.In(time.UTC))
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &start},
		}
	}
	if m, ok := rec.Merchant.Get(); ok {
		props[PropMerchant] = notionapi.RichTextProperty{RichText: richText(m)}
	}
	if c, ok := rec.CanonicalMerchant.Get(); ok {
		props[PropCompany] = notionapi.RichTextProperty{RichText: richText(c)}
	}
	if a, ok := rec.Amount.Get(); ok {
		props[PropAmount] = notionapi.NumberProperty{Number: toFloat(a)}
	}
	if cur, ok := rec.Currency.Get(); ok {
		props[PropCurrency] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: cur},
		}
	}
	if usd, ok := rec.AmountInReference.Get(); ok {
		props[PropAmountUSD] = notionapi.NumberProperty{Number: toFloat(usd)}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

// toFloat is lossy; Notion number properties are doubles.
func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// extractRecordKey reads the Record Key title of a page.
// Returns empty string if not found.
func extractRecordKey(page notionapi.Page) string {
	prop, ok := page.Properties[PropRecordKey]
	if !ok {
		return ""
	}
	switch title := prop.(type) {
	case *notionapi.TitleProperty:
		if len(title.Title) > 0 {
			return title.Title[0].PlainText
		}
	case notionapi.TitleProperty:
		if len(title.Title) > 0 {
			return title.Title[0].PlainText
		}
	}
	return ""
}
