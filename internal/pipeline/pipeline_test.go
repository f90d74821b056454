package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/smart-financial-parser/internal/canonical"
	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/infra/bigquery"
	"github.com/dvloznov/smart-financial-parser/internal/normalize"
	"github.com/dvloznov/smart-financial-parser/internal/pipeline"
	"github.com/dvloznov/smart-financial-parser/internal/reference"
)

// MockRunTracker is a mock implementation of RunTracker for testing.
type MockRunTracker struct {
	StartCleaningRunFunc         func(ctx context.Context, source string) (string, error)
	MarkCleaningRunSucceededFunc func(ctx context.Context, runID string, stats bigquery.RunStats) error

	failedRunID string
	failedErr   error
	succeeded   *bigquery.RunStats
}

func (m *MockRunTracker) StartCleaningRun(ctx context.Context, source string) (string, error) {
	if m.StartCleaningRunFunc != nil {
		return m.StartCleaningRunFunc(ctx, source)
	}
	return "test-run-id", nil
}

func (m *MockRunTracker) MarkCleaningRunFailed(ctx context.Context, runID string, runErr error) {
	m.failedRunID = runID
	m.failedErr = runErr
}

func (m *MockRunTracker) MarkCleaningRunSucceeded(ctx context.Context, runID string, stats bigquery.RunStats) error {
	if m.MarkCleaningRunSucceededFunc != nil {
		return m.MarkCleaningRunSucceededFunc(ctx, runID, stats)
	}
	m.succeeded = &stats
	return nil
}

// MockSink is a mock implementation of Sink for testing.
type MockSink struct {
	InsertRecordsFunc func(ctx context.Context, runID string, records []*domain.Record) error

	runID   string
	records int
}

func (m *MockSink) InsertRecords(ctx context.Context, runID string, records []*domain.Record) error {
	m.runID = runID
	m.records = len(records)
	if m.InsertRecordsFunc != nil {
		return m.InsertRecordsFunc(ctx, runID, records)
	}
	return nil
}

// MockStorageService is a mock implementation of StorageService for testing.
type MockStorageService struct {
	FetchFromGCSFunc func(ctx context.Context, uri string) ([]byte, error)

	mu       sync.Mutex
	uploaded map[string][]byte
}

func (m *MockStorageService) FetchFromGCS(ctx context.Context, uri string) ([]byte, error) {
	if m.FetchFromGCSFunc != nil {
		return m.FetchFromGCSFunc(ctx, uri)
	}
	return nil, errors.New("not found")
}

func (m *MockStorageService) UploadBytes(ctx context.Context, uri string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploaded == nil {
		m.uploaded = make(map[string][]byte)
	}
	m.uploaded[uri] = data
	return nil
}

// MockReporter is a mock implementation of report.Reporter for testing.
type MockReporter struct {
	GenerateFunc func(ctx context.Context, records []*domain.Record) (string, error)
}

func (m *MockReporter) Generate(ctx context.Context, records []*domain.Record) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, records)
	}
	return "- spending looks normal", nil
}

type identityConverter struct{}

func (identityConverter) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	return amount, nil
}

func newNormalizer() *normalize.Normalizer {
	ref := reference.New([]reference.Merchant{
		{Name: "AMZN MKTPLACE", Industry: "Retail"},
		{Name: "STARBUCKS", Industry: "Food & Beverage"},
	}, nil)
	return normalize.New(ref, canonical.New(ref.MerchantNames(), canonical.DefaultThreshold), identityConverter{}, normalize.Options{Workers: 2})
}

const messyCSV = "col1,col2,col3\n" +
	"2024-01-05,$45.20,AMZN*MKTPLACE\n" +
	"starbucks,2024-01-06,4.50\n" +
	",,\n"

func TestCleaningPipeline_FullRun(t *testing.T) {
	tracker := &MockRunTracker{}
	bqSink := &MockSink{}
	pgSink := &MockSink{}
	storage := &MockStorageService{
		FetchFromGCSFunc: func(ctx context.Context, uri string) ([]byte, error) {
			if uri != "gs://in/messy.csv" {
				t.Errorf("FetchFromGCS(%q)", uri)
			}
			return []byte(messyCSV), nil
		},
	}
	var summary bytes.Buffer

	p := pipeline.NewCleaningPipeline(pipeline.Deps{
		Normalizer: newNormalizer(),
		Storage:    storage,
		Reporter:   &MockReporter{},
		Tracker:    tracker,
		Sinks:      map[string]pipeline.Sink{"bigquery": bqSink, "postgres": pgSink},
	}, pipeline.Options{
		HasHeader:    true,
		UploadPrefix: "gs://out/runs",
		SummaryOut:   &summary,
		TopMerchants: 3,
	})

	state := &pipeline.PipelineState{Source: "gs://in/messy.csv"}
	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if state.RunID != "test-run-id" {
		t.Errorf("RunID = %q", state.RunID)
	}
	if len(state.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(state.Records))
	}
	if state.Stats.RowsDropped != 1 {
		t.Errorf("RowsDropped = %d, want 1", state.Stats.RowsDropped)
	}

	out := string(state.Output)
	if !strings.HasPrefix(out, strings.Join(domain.OutputColumns, ",")+"\n") {
		t.Errorf("output header missing:\n%s", out)
	}
	if !strings.Contains(out, "2024-01-05,AMZN MKTPLACE,AMZN MKTPLACE,Retail,45.2,USD,45.2") {
		t.Errorf("output missing first record:\n%s", out)
	}

	if !strings.Contains(summary.String(), "Industry with highest spend: Retail") {
		t.Errorf("summary = %q", summary.String())
	}

	for name, sink := range map[string]*MockSink{"bigquery": bqSink, "postgres": pgSink} {
		if sink.runID != "test-run-id" || sink.records != 2 {
			t.Errorf("%s sink got run %q with %d records", name, sink.runID, sink.records)
		}
	}

	if _, ok := storage.uploaded["gs://out/runs/test-run-id/cleaned_data.csv"]; !ok {
		t.Errorf("cleaned table not uploaded, got %v", state.Uploaded)
	}
	if got := string(storage.uploaded["gs://out/runs/test-run-id/report.md"]); got != "- spending looks normal" {
		t.Errorf("uploaded report = %q", got)
	}

	if tracker.succeeded == nil {
		t.Fatal("run was not marked succeeded")
	}
	if tracker.succeeded.RecordsOut != 2 || tracker.succeeded.BackfillCurrency != "USD" {
		t.Errorf("stats = %+v", *tracker.succeeded)
	}
	if tracker.failedRunID != "" {
		t.Errorf("run unexpectedly marked failed: %v", tracker.failedErr)
	}
}

func TestCleaningPipeline_Failures(t *testing.T) {
	t.Run("sink failure marks run failed after trying every sink", func(t *testing.T) {
		tracker := &MockRunTracker{}
		bad := &MockSink{
			InsertRecordsFunc: func(ctx context.Context, runID string, records []*domain.Record) error {
				return errors.New("quota exceeded")
			},
		}
		good := &MockSink{}

		p := pipeline.NewCleaningPipeline(pipeline.Deps{
			Normalizer: newNormalizer(),
			Tracker:    tracker,
			Sinks:      map[string]pipeline.Sink{"a": bad, "b": good},
		}, pipeline.Options{HasHeader: true})

		err := p.Execute(context.Background(), &pipeline.PipelineState{Source: "upload.csv", Input: []byte(messyCSV)})
		if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
			t.Fatalf("Execute() error = %v", err)
		}
		if good.records != 2 {
			t.Errorf("second sink got %d records, want 2", good.records)
		}
		if tracker.failedRunID != "test-run-id" {
			t.Errorf("failed run = %q", tracker.failedRunID)
		}
		if tracker.succeeded != nil {
			t.Error("run should not be marked succeeded")
		}
	})

	t.Run("gs input without storage", func(t *testing.T) {
		p := pipeline.NewCleaningPipeline(pipeline.Deps{Normalizer: newNormalizer()}, pipeline.Options{})
		err := p.Execute(context.Background(), &pipeline.PipelineState{Source: "gs://bucket/file.csv"})
		if !errors.Is(err, pipeline.ErrNoStorage) {
			t.Fatalf("Execute() error = %v, want ErrNoStorage", err)
		}
	})

	t.Run("report failure", func(t *testing.T) {
		reporter := &MockReporter{
			GenerateFunc: func(ctx context.Context, records []*domain.Record) (string, error) {
				return "", errors.New("model unavailable")
			},
		}
		p := pipeline.NewCleaningPipeline(pipeline.Deps{Normalizer: newNormalizer(), Reporter: reporter}, pipeline.Options{HasHeader: true})
		if err := p.Execute(context.Background(), &pipeline.PipelineState{Input: []byte(messyCSV), InputName: "x.csv"}); err == nil {
			t.Fatal("Execute() expected error")
		}
	})

	t.Run("start run failure", func(t *testing.T) {
		tracker := &MockRunTracker{
			StartCleaningRunFunc: func(ctx context.Context, source string) (string, error) {
				return "", errors.New("permission denied")
			},
		}
		p := pipeline.NewCleaningPipeline(pipeline.Deps{Normalizer: newNormalizer(), Tracker: tracker}, pipeline.Options{})
		err := p.Execute(context.Background(), &pipeline.PipelineState{Input: []byte(messyCSV), InputName: "x.csv"})
		if err == nil || !strings.Contains(err.Error(), "pipeline step 1 failed") {
			t.Fatalf("Execute() error = %v", err)
		}
		if tracker.failedRunID != "" {
			t.Error("a run that never started must not be marked failed")
		}
	})
}

func TestCleaningPipeline_EmptyInput(t *testing.T) {
	p := pipeline.NewCleaningPipeline(pipeline.Deps{Normalizer: newNormalizer()}, pipeline.Options{HasHeader: true})
	state := &pipeline.PipelineState{Input: []byte("a,b,c\n"), InputName: "empty.csv"}
	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(state.Records) != 0 {
		t.Errorf("got %d records", len(state.Records))
	}
	if got := string(state.Output); got != strings.Join(domain.OutputColumns, ",")+"\n" {
		t.Errorf("output = %q, want header only", got)
	}
}

type failingConverter struct{}

func (failingConverter) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Decimal{}, errors.New("rate service down")
}

func TestCleaningPipeline_HeaderRow(t *testing.T) {
	tests := []struct {
		name      string
		hasHeader bool
		want      int
	}{
		{"header skipped", true, 2},
		{"header classified as a row", false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pipeline.NewCleaningPipeline(pipeline.Deps{Normalizer: newNormalizer()}, pipeline.Options{HasHeader: tt.hasHeader})
			state := &pipeline.PipelineState{Input: []byte(messyCSV), InputName: "messy.csv"}
			if err := p.Execute(context.Background(), state); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if len(state.Records) != tt.want {
				t.Errorf("got %d records, want %d", len(state.Records), tt.want)
			}
		})
	}
}

func TestCleaningPipeline_DashSeparatedDate(t *testing.T) {
	p := pipeline.NewCleaningPipeline(pipeline.Deps{Normalizer: newNormalizer()}, pipeline.Options{HasHeader: true})
	state := &pipeline.PipelineState{
		Input:     []byte("date,merchant,amount\n01-05-2024,STARBUCKS,$5\n"),
		InputName: "dash.csv",
	}
	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := "2024-01-05,STARBUCKS,STARBUCKS,Food & Beverage,5,USD,5\n"
	if out := string(state.Output); !strings.HasSuffix(out, want) {
		t.Errorf("output = %q, want last line %q", out, want)
	}
}

func TestCleaningPipeline_ConversionFailureIsSoft(t *testing.T) {
	ref := reference.New([]reference.Merchant{{Name: "AMZN MKTPLACE", Industry: "Retail"}}, nil)
	normalizer := normalize.New(ref, canonical.New(ref.MerchantNames(), canonical.DefaultThreshold), failingConverter{}, normalize.Options{Workers: 2})

	p := pipeline.NewCleaningPipeline(pipeline.Deps{Normalizer: normalizer}, pipeline.Options{HasHeader: true})
	state := &pipeline.PipelineState{Input: []byte(messyCSV), InputName: "messy.csv"}
	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if state.Stats.ConversionFailed != 2 || state.Stats.Converted != 0 {
		t.Errorf("Converted = %d, ConversionFailed = %d, want 0 and 2", state.Stats.Converted, state.Stats.ConversionFailed)
	}
	for _, rec := range state.Records {
		if rec.AmountInReference.IsSet() {
			t.Errorf("row %d: converted amount should be empty", rec.Row)
		}
	}
	if !strings.Contains(string(state.Output), "2024-01-05,AMZN MKTPLACE,AMZN MKTPLACE,Retail,45.2,USD,\n") {
		t.Errorf("output = %q", state.Output)
	}
}
