package jobs

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jmoiron/sqlx"

	"grocerysync/config"
	"grocerysync/internal/backend"
	"grocerysync/internal/blob"
	"grocerysync/internal/reconcile"
	"grocerysync/pkg/csvio"
	"grocerysync/pkg/logger"
)

var ErrUsage = errors.New("usage")

func usageError(msg string) error {
	return fmt.Errorf("%w: %s", ErrUsage, msg)
}

// Env is what a job runs against. The command wires it once per invocation.
type Env struct {
	Config  *config.AppConfig
	Driver  backend.Driver
	Log     logger.Logger
	Fetcher csvio.Fetcher
	// Uploader is opened lazily; only upload-images needs object storage.
	Uploader func(ctx context.Context) (blob.Uploader, error)
	// DB is set when the postgres driver is in use.
	DB *sqlx.DB
	// LogIn opens the session every backend call runs under.
	LogIn func(ctx context.Context) (backend.Credential, error)
}

func (e *Env) orchestrator(job string, chunkSize int) *reconcile.Orchestrator {
	if chunkSize < 1 {
		chunkSize = e.Config.Sync.ChunkSize
	}
	return reconcile.NewOrchestrator(job, chunkSize, e.Config.Sync.RowTimeout, e.Log)
}

func (e *Env) session(ctx context.Context) (backend.Credential, error) {
	if e.LogIn == nil {
		return backend.Credential{}, nil
	}
	cred, err := e.LogIn(ctx)
	if err != nil {
		return backend.Credential{}, fmt.Errorf("log in: %w", err)
	}
	return cred, nil
}

// Job is one subcommand.
type Job interface {
	Name() string
	Description() string
	// Bind registers the job's own flags.
	Bind(fs *flag.FlagSet)
	Run(ctx context.Context, env *Env) (reconcile.Summary, error)
}

// All returns a fresh instance of every job keyed by name.
func All() map[string]Job {
	jobs := []Job{
		&ImportTags{},
		&ImportStapleTemplateItems{},
		&ImportStapleTemplateShoppingLists{},
		&ImportProductPrices{},
		&ImportCrawledPrices{},
		&UpdateStoreTags{},
		&CloneStapleItems{},
		&CloneStapleShoppingLists{},
		&ExportStoreProductsAndPrices{},
		&ExportCrawledStoreProducts{},
		&ResetStoreMasterProductsCrawl{},
		&UploadImages{},
		&Migrate{},
		&CreateUser{},
	}
	out := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		out[j.Name()] = j
	}
	return out
}

func Names() []string {
	var names []string
	for name := range All() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CSVInput is the flag group shared by jobs that read a CSV file.
type CSVInput struct {
	Path         string
	Delimiter    string
	RowDelimiter string
	Encoding     string
}

func (c *CSVInput) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Path, "csvFilePath", "", "CSV file path or http(s) URL")
	fs.StringVar(&c.Delimiter, "delimiter", ",", "column delimiter")
	fs.StringVar(&c.RowDelimiter, "rowDelimiter", `\n`, `row delimiter: \n or \r\n`)
	fs.StringVar(&c.Encoding, "encoding", csvio.EncodingUTF8, "file encoding: utf-8 or windows-1251")
}

// Read loads every row. skipHeader drops the first record.
func (c *CSVInput) Read(ctx context.Context, env *Env, skipHeader bool) ([]csvio.Row, error) {
	if c.Path == "" {
		return nil, usageError("--csvFilePath must be provided")
	}
	delimiter, err := csvio.ParseDelimiter(c.Delimiter, ',')
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	rowDelimiter, err := csvio.ParseRowDelimiter(c.RowDelimiter, "\n")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	src, err := csvio.Open(ctx, c.Path, env.Fetcher)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Path, err)
	}
	defer src.Close()

	rows, err := csvio.ReadAll(src, csvio.Options{
		Delimiter:    delimiter,
		RowDelimiter: rowDelimiter,
		Encoding:     c.Encoding,
		SkipHeader:   skipHeader,
		Trim:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.Path, err)
	}
	env.Log.Info("csv loaded", "path", c.Path, "rows", len(rows))
	return rows, nil
}

// CSVOutput is the flag group shared by the export jobs.
type CSVOutput struct {
	Path         string
	Delimiter    string
	RowDelimiter string
}

func (c *CSVOutput) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Path, "csvFilePath", "", "output CSV file path")
	fs.StringVar(&c.Delimiter, "delimiter", "|", "column separator")
	fs.StringVar(&c.RowDelimiter, "rowDelimiter", `\n`, `row delimiter: \n or \r\n`)
}

// Create opens the output file and a writer over it. Callers flush the writer and close the file.
func (c *CSVOutput) Create(headers []string, policy csvio.SeparatorPolicy) (*csvio.Writer, io.Closer, error) {
	if c.Path == "" {
		return nil, nil, usageError("--csvFilePath must be provided")
	}
	separator, err := csvio.ParseDelimiter(c.Delimiter, '|')
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	f, err := os.Create(c.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", c.Path, err)
	}
	w, err := csvio.NewWriter(f, headers, csvio.WriterOptions{Separator: separator, NewLine: c.RowDelimiter, Policy: policy})
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return w, f, nil
}

func requireStoreKey(storeKey string) error {
	if storeKey == "" {
		return usageError("--storeKey must be provided")
	}
	return nil
}
