package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kant-ai/bandsaw/pkg/domain"
)

// HTTPBackend talks to a bandsaw agent (see package agent) listening on
// Remote.Host and Remote.Port. Remote paths are resolved inside the agent's
// root directory and programs run with the root as working directory, so
// remotes used with this backend should have a relative Directory.
type HTTPBackend struct {
	client *http.Client
	scheme string
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) {
		b.client = c
	}
}

// WithTLS talks https to the agent.
func WithTLS() HTTPOption {
	return func(b *HTTPBackend) {
		b.scheme = "https"
	}
}

func NewHTTPBackend(opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{client: http.DefaultClient, scheme: "http"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ExecRequest is the body of POST /exec.
type ExecRequest struct {
	Executable string   `json:"executable"`
	Args       []string `json:"args"`
}

// ExecResponse is the answer of POST /exec.
type ExecResponse struct {
	ExitCode int    `json:"exit_code"`
	Stderr   string `json:"stderr,omitempty"`
}

func (b *HTTPBackend) fileURL(r Remote, remotePath string) string {
	u := url.URL{
		Scheme: b.scheme,
		Host:   r.Host + ":" + strconv.Itoa(r.Port),
		Path:   path.Join("/files", strings.TrimPrefix(path.Clean("/"+remotePath), "/")),
	}
	return u.String()
}

func (b *HTTPBackend) do(ctx context.Context, op string, r Remote, method, target string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Host: r.Host, ExitCode: -1, Err: err}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Host: r.Host, ExitCode: -1, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &domain.TransportError{
			Op: op, Host: r.Host, ExitCode: -1,
			Err: fmt.Errorf("agent answered %s: %s", resp.Status, strings.TrimSpace(string(msg))),
		}
	}
	return resp, nil
}

func (b *HTTPBackend) CopyToRemote(ctx context.Context, r Remote, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &domain.TransportError{Op: "copy", Host: r.Host, ExitCode: -1, Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return &domain.TransportError{Op: "copy", Host: r.Host, ExitCode: -1, Err: err}
	}
	header := http.Header{}
	header.Set("X-File-Mode", strconv.FormatUint(uint64(info.Mode().Perm()), 8))
	resp, err := b.do(ctx, "copy", r, http.MethodPut, b.fileURL(r, remotePath), f, header)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (b *HTTPBackend) CopyFromRemote(ctx context.Context, r Remote, remotePath, localPath string) error {
	resp, err := b.do(ctx, "copy", r, http.MethodGet, b.fileURL(r, remotePath), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, err := os.Create(localPath)
	if err != nil {
		return &domain.TransportError{Op: "copy", Host: r.Host, ExitCode: -1, Err: err}
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return &domain.TransportError{Op: "copy", Host: r.Host, ExitCode: -1, Err: err}
	}
	return out.Close()
}

func (b *HTTPBackend) ExecuteRemote(ctx context.Context, r Remote, executable string, args ...string) error {
	body, err := json.Marshal(ExecRequest{Executable: executable, Args: args})
	if err != nil {
		return err
	}
	target := url.URL{Scheme: b.scheme, Host: r.Host + ":" + strconv.Itoa(r.Port), Path: "/exec"}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	resp, err := b.do(ctx, "execute", r, http.MethodPost, target.String(), bytes.NewReader(body), header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result ExecResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &domain.TransportError{Op: "execute", Host: r.Host, ExitCode: -1, Err: err}
	}
	if result.ExitCode != 0 {
		return &domain.TransportError{Op: "execute", Host: r.Host, ExitCode: result.ExitCode,
			Err: fmt.Errorf("stderr: %s", strings.TrimSpace(result.Stderr))}
	}
	return nil
}
