package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"
)

// handlerSpec is one entry of an adapter's declarative handler table: a
// templated HTTP call. URLTemplate and BodyTemplate are Go text/template
// strings executed against the incoming Request (its Params and Credential),
// matching the "narrow declarative manifest + handler table" shape the
// generation job produces instead of arbitrary code (see design notes).
type handlerSpec struct {
	Method       string            `json:"method"`
	URLTemplate  string            `json:"urlTemplate"`
	BodyTemplate string            `json:"bodyTemplate,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// sourceDoc is the on-disk / in-DB shape of an adapter's sourceCode: a
// manifest plus a handler table, serialised as JSON. This is the "generated
// source" contract between internal/genjob and internal/adapter.
type sourceDoc struct {
	Manifest Manifest               `json:"manifest"`
	Handlers map[string]handlerSpec `json:"handlers"`
}

// genericAdapter executes a sourceDoc's declared handlers over HTTP. It is
// the single concrete Adapter implementation this package ships; all
// adapter-specific behavior lives in the declarative handler table, not in Go
// code, per spec.md's "concrete adapter business logic is a black box"
// non-goal.
type genericAdapter struct {
	manifest Manifest
	handlers map[string]handlerSpec
	client   *http.Client
}

func newGenericAdapter(doc sourceDoc) *genericAdapter {
	return &genericAdapter{
		manifest: doc.Manifest,
		handlers: doc.Handlers,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *genericAdapter) Describe() Manifest { return g.manifest }

func (g *genericAdapter) Discover(ctx context.Context, req Request) (Response, error) {
	return g.invoke(ctx, "discover", req)
}

func (g *genericAdapter) Query(ctx context.Context, req Request) (Response, error) {
	return g.invoke(ctx, "query", req)
}

func (g *genericAdapter) Execute(ctx context.Context, req Request) (Response, error) {
	return g.invoke(ctx, "execute", req)
}

func (g *genericAdapter) invoke(ctx context.Context, op string, req Request) (Response, error) {
	spec, ok := g.handlers[op]
	if !ok {
		return Response{}, fmt.Errorf("adapter %s declares no %s handler", g.manifest.Platform, op)
	}

	tplData := map[string]any{
		"params":     req.Params,
		"credential": req.Credential,
		"businessId": req.BusinessID,
	}

	url, err := renderTemplate(spec.URLTemplate, tplData)
	if err != nil {
		return Response{}, fmt.Errorf("rendering url template: %w", err)
	}

	var body io.Reader
	if spec.BodyTemplate != "" {
		rendered, err := renderTemplate(spec.BodyTemplate, tplData)
		if err != nil {
			return Response{}, fmt.Errorf("rendering body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}
	for k, v := range spec.Headers {
		httpReq.Header.Set(k, v)
	}
	if token, ok := req.Credential["access_token"].(string); ok && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("calling %s %s: %w", op, g.manifest.Platform, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("%s %s returned %d: %s", op, g.manifest.Platform, resp.StatusCode, string(raw))
	}

	var data map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &data)
	}

	return Response{Data: data}, nil
}

func renderTemplate(src string, data map[string]any) (string, error) {
	tpl, err := template.New("adapter").Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
