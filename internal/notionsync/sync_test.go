package notionsync

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
)

// MockNotionService is a mock implementation of NotionService for testing.
type MockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	created []notionapi.Properties
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	m.created = append(m.created, properties)
	return &notionapi.Page{ID: "page"}, nil
}

func (m *MockNotionService) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, req)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func pageWithKey(key string) notionapi.Page {
	return notionapi.Page{
		Properties: notionapi.Properties{
			PropRecordKey: &notionapi.TitleProperty{
				Title: []notionapi.RichText{{PlainText: key}},
			},
		},
	}
}

func testRecords(n int) []*domain.Record {
	recs := make([]*domain.Record, n)
	for i := range recs {
		rec := domain.NewRecord(i + 1)
		rec.Merchant.Set("STARBUCKS")
		rec.Amount.Set(decimal.NewFromInt(int64(i + 1)))
		recs[i] = rec
	}
	return recs
}

func TestExportRecords(t *testing.T) {
	t.Run("skips existing keys across result pages", func(t *testing.T) {
		calls := 0
		mock := &MockNotionService{
			QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
				calls++
				if calls == 1 {
					if req.StartCursor != "" {
						t.Errorf("first query should not carry a cursor, got %q", req.StartCursor)
					}
					return &notionapi.DatabaseQueryResponse{
						Results:    []notionapi.Page{pageWithKey("run-1:1")},
						HasMore:    true,
						NextCursor: "next",
					}, nil
				}
				if req.StartCursor != "next" {
					t.Errorf("StartCursor = %q, want next", req.StartCursor)
				}
				return &notionapi.DatabaseQueryResponse{
					Results: []notionapi.Page{pageWithKey("run-1:3")},
				}, nil
			},
		}

		res, err := NewExporter(mock, "db", false).ExportRecords(context.Background(), "run-1", testRecords(3))
		if err != nil {
			t.Fatalf("ExportRecords() error = %v", err)
		}
		if res.Created != 1 || res.Skipped != 2 || res.Failed != 0 {
			t.Errorf("result = %+v, want 1 created, 2 skipped", res)
		}
		if calls != 2 {
			t.Errorf("QueryDatabase called %d times, want 2", calls)
		}
		if len(mock.created) != 1 {
			t.Fatalf("created %d pages, want 1", len(mock.created))
		}
		title := mock.created[0][PropRecordKey].(notionapi.TitleProperty)
		if got := title.Title[0].Text.Content; got != "run-1:2" {
			t.Errorf("Record Key = %q, want run-1:2", got)
		}
	})

	t.Run("dry run creates nothing", func(t *testing.T) {
		mock := &MockNotionService{}
		res, err := NewExporter(mock, "db", true).ExportRecords(context.Background(), "run-1", testRecords(2))
		if err != nil {
			t.Fatalf("ExportRecords() error = %v", err)
		}
		if res.Created != 2 || len(mock.created) != 0 {
			t.Errorf("result = %+v, pages = %d", res, len(mock.created))
		}
	})

	t.Run("page failures are counted", func(t *testing.T) {
		mock := &MockNotionService{
			CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
				return nil, errors.New("rate limited")
			},
		}
		exp := NewExporter(mock, "db", false)
		res, err := exp.ExportRecords(context.Background(), "run-1", testRecords(2))
		if err != nil {
			t.Fatalf("ExportRecords() error = %v", err)
		}
		if res.Failed != 2 {
			t.Errorf("Failed = %d, want 2", res.Failed)
		}
		if err := exp.InsertRecords(context.Background(), "run-1", testRecords(2)); err == nil {
			t.Error("InsertRecords() should fail when pages fail")
		}
	})

	t.Run("query failure aborts", func(t *testing.T) {
		mock := &MockNotionService{
			QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
				return nil, errors.New("unauthorized")
			},
		}
		if _, err := NewExporter(mock, "db", false).ExportRecords(context.Background(), "run-1", testRecords(1)); err == nil {
			t.Error("ExportRecords() expected error")
		}
	})
}

func TestRecordToNotionProperties(t *testing.T) {
	rec := domain.NewRecord(7)
	rec.Amount.Set(decimal.RequireFromString("-4.25"))
	rec.Currency.Set("EUR")

	props := RecordToNotionProperties("run-2", rec)

	if _, ok := props[PropDate]; ok {
		t.Error("unset date should be omitted")
	}
	if _, ok := props[PropMerchant]; ok {
		t.Error("unset merchant should be omitted")
	}
	if got := props[PropAmount].(notionapi.NumberProperty).Number; got != -4.25 {
		t.Errorf("Amount = %v, want -4.25", got)
	}
	if got := props[PropCurrency].(notionapi.SelectProperty).Select.Name; got != "EUR" {
		t.Errorf("Currency = %q", got)
	}
	if got := props[PropIndustry].(notionapi.SelectProperty).Select.Name; got != domain.UnknownIndustry {
		t.Errorf("Industry = %q", got)
	}
}
