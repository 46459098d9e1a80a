package clients

import (
	"context"
	"net/http"

	"github.com/dukex/applyflow/pkg/workflow"
)

var _ workflow.Generator = (*Generator)(nil)

// Generator calls the document generation service.
type Generator struct {
	http jsonClient
}

func NewGenerator(baseURL string, client *http.Client) *Generator {
	return &Generator{http: newJSONClient(baseURL, client)}
}

func (g *Generator) GenerateResume(ctx context.Context, req workflow.GenerationRequest) (*workflow.GenerationResult, error) {
	return g.generate(ctx, "/resumes/generate", req)
}

func (g *Generator) GenerateCoverLetter(ctx context.Context, req workflow.GenerationRequest) (*workflow.GenerationResult, error) {
	return g.generate(ctx, "/cover-letters/generate", req)
}

func (g *Generator) generate(ctx context.Context, path string, req workflow.GenerationRequest) (*workflow.GenerationResult, error) {
	var result workflow.GenerationResult

	err := g.http.post(ctx, path, req, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

var _ workflow.Submitter = (*Submitter)(nil)

// Submitter calls the application submission service.
type Submitter struct {
	http jsonClient
}

func NewSubmitter(baseURL string, client *http.Client) *Submitter {
	return &Submitter{http: newJSONClient(baseURL, client)}
}

func (s *Submitter) Submit(ctx context.Context, req workflow.SubmissionRequest) (*workflow.SubmissionResult, error) {
	var result workflow.SubmissionResult

	err := s.http.post(ctx, "/applications/submit", req, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}
