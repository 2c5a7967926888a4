package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "prebuilt/1.0"
	// TokenEnv names the variable holding the origin token.
	TokenEnv = "PREBUILT_GITHUB_TOKEN"
	// FallbackTokenEnv is consulted when TokenEnv is unset.
	FallbackTokenEnv = "GITHUB_TOKEN"
)

// TokenFromEnv returns the origin token from the environment, if any.
func TokenFromEnv() string {
	if token := os.Getenv(TokenEnv); token != "" {
		return token
	}
	return os.Getenv(FallbackTokenEnv)
}

// URLTransport downloads upstream release archives over HTTP.
// A mirror is tried first; the origin is tried after it only when a token
// is configured, or directly when no mirror exists. Requests to the origin
// carry the token as a bearer credential.
type URLTransport struct {
	client    *http.Client
	userAgent string
	token     string
	verifier  *Verifier
	logger    logging.Logger
}

// NewURLTransport creates a URL transport. token may be empty.
func NewURLTransport(token string, logger logging.Logger) *URLTransport {
	return &URLTransport{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: DefaultUserAgent,
		token:     token,
		verifier:  NewVerifier(),
		logger:    logging.OrNop(logger),
	}
}

type candidate struct {
	url  string
	auth bool
}

// candidates orders the URLs to try for src.
func (d *URLTransport) candidates(src Source) []candidate {
	var out []candidate
	if src.Mirror != "" {
		out = append(out, candidate{url: src.Mirror})
	}
	if src.URL != "" && (d.token != "" || src.Mirror == "") {
		out = append(out, candidate{url: src.URL, auth: d.token != ""})
	}
	return out
}

// Fetch downloads src, verifying its checksum and signature when the
// source names them.
func (d *URLTransport) Fetch(ctx context.Context, src Source) (*Archive, error) {
	candidates := d.candidates(src)
	if len(candidates) == 0 {
		return nil, transportErr("no download URL for %s", src)
	}

	var errs []error
	for _, c := range candidates {
		archive, err := d.fetchFrom(ctx, c, src)
		if err == nil {
			return archive, nil
		}
		d.logger.Warn("download failed", "url", c.url, "error", err)
		errs = append(errs, err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, errors.Join(errs...)
}

func (d *URLTransport) fetchFrom(ctx context.Context, c candidate, src Source) (*Archive, error) {
	data, err := d.download(ctx, c)
	if err != nil {
		return nil, err
	}

	name := path.Base(c.url)

	if src.ChecksumSuffix != "" {
		sums, err := d.download(ctx, candidate{url: c.url + src.ChecksumSuffix, auth: c.auth})
		if err != nil {
			return nil, fmt.Errorf("checksum: %w", err)
		}
		if err := d.verifier.VerifyChecksum(data, sums, name); err != nil {
			return nil, err
		}
	}

	if src.SignatureSuffix != "" && src.Keyring != "" {
		sig, err := d.download(ctx, candidate{url: c.url + src.SignatureSuffix, auth: c.auth})
		if err != nil {
			return nil, fmt.Errorf("signature: %w", err)
		}
		if err := d.verifier.VerifySignature(data, sig, src.Keyring); err != nil {
			return nil, err
		}
	}

	d.logger.Info("downloaded", "url", c.url, "bytes", len(data))
	return &Archive{Name: name, Data: data}, nil
}

// download performs a single GET, spooling the body through a temporary
// file that is always removed.
func (d *URLTransport) download(ctx context.Context, c candidate) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, transportErr("create request for %s: %v", c.url, err)
	}

	req.Header.Set("User-Agent", d.userAgent)
	if c.auth {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transportErr("GET %s: unexpected status code: %d", c.url, resp.StatusCode)
	}

	tmpDir, err := os.MkdirTemp("", "prebuilt-download-*")
	if err != nil {
		return nil, ioErr("create temp dir", os.TempDir(), err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, "body")
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return nil, ioErr("create", tmpPath, err)
	}

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("%w: read body of %s: %w", ErrTransport, c.url, copyErr)
	}
	if closeErr != nil {
		return nil, ioErr("close", tmpPath, closeErr)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, ioErr("read", tmpPath, err)
	}
	return data, nil
}
