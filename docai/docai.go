// Package docai extracts text from documents with a Document AI OCR processor.
package docai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/gcpauth"
	"github.com/effective-security/xlog"
	"google.golang.org/api/documentai/v1"
	"google.golang.org/api/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "docai")

// MimePDF is the MIME type of PDF documents
const MimePDF = "application/pdf"

// Config of the processor
type Config struct {
	gcpauth.Config `yaml:",inline"`
	// Location of the processor: us|eu
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	// ProcessorID is the id of the OCR processor
	ProcessorID string `json:"processor_id" yaml:"processor_id"`
	// Endpoint overrides the regional endpoint
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// Processor runs documents through an OCR processor
type Processor struct {
	svc  *documentai.Service
	name string
}

// Endpoint returns the regional endpoint of the location
func Endpoint(location string) string {
	return fmt.Sprintf("https://%s-documentai.googleapis.com/", location)
}

// New returns the processor.
// When opts are not provided, credentials are loaded with gcpauth.
func New(ctx context.Context, cfg *Config, opts ...option.ClientOption) (*Processor, error) {
	if cfg.Project == "" || cfg.ProcessorID == "" {
		return nil, errors.New("docai: project and processor_id are required")
	}
	location := cfg.Location
	if location == "" {
		location = "us"
	}

	if len(opts) == 0 {
		creds, err := gcpauth.Credentials(&cfg.Config)
		if err != nil {
			return nil, err
		}
		opts = gcpauth.ClientOptions(creds)
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = Endpoint(location)
	}
	opts = append(opts, option.WithEndpoint(endpoint))

	svc, err := documentai.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "docai: failed to create service")
	}

	return &Processor{
		svc:  svc,
		name: fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.Project, location, cfg.ProcessorID),
	}, nil
}

// Name returns the resource name of the processor
func (p *Processor) Name() string {
	return p.name
}

// ProcessGCS returns the text of the document stored at the gs:// URI
func (p *Processor) ProcessGCS(ctx context.Context, uri, mimeType string) (string, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", errors.Errorf("docai: invalid GCS URI: %s", uri)
	}
	if mimeType == "" {
		mimeType = MimePDF
	}

	req := &documentai.GoogleCloudDocumentaiV1ProcessRequest{
		GcsDocument: &documentai.GoogleCloudDocumentaiV1GcsDocument{
			GcsUri:   uri,
			MimeType: mimeType,
		},
	}
	resp, err := p.svc.Projects.Locations.Processors.Process(p.name, req).Context(ctx).Do()
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "process", "uri", uri, "err", err.Error())
		return "", errors.Wrapf(err, "docai: failed to process %s", uri)
	}
	if resp.Document == nil {
		return "", errors.Errorf("docai: no document returned for %s", uri)
	}

	logger.ContextKV(ctx, xlog.DEBUG, "status", "processed", "uri", uri, "chars", len(resp.Document.Text))
	return resp.Document.Text, nil
}

// ObjectURI returns the gs:// URI of the object
func ObjectURI(bucket, prefix, name string) string {
	parts := []string{bucket}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, strings.TrimPrefix(name, "/"))
	return "gs://" + strings.Join(parts, "/")
}
