// Package resource reads the binary content behind a manifest locator.
//
// Supported locators:
//
//	/local/path/cat.jpg
//	https://host/path/cat.jpg
//	s3://bucket/key/cat.jpg   (any S3-compatible store, through minio-go)
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"image-vector-index/domain"
)

// MaxResourceSize caps how many bytes are read from a single resource.
const MaxResourceSize = 20 << 20

// Resource is the payload sent to the embedding endpoint.
type Resource struct {
	Data        []byte
	ContentType string
}

// Opener fetches resources by locator.
type Opener interface {
	Open(ctx context.Context, locator string) (*Resource, error)
}

// ObjectStoreConfig configures access to s3:// locators.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// MultiOpener dispatches on the locator scheme.
type MultiOpener struct {
	httpClient *http.Client
	objects    *minio.Client
}

// NewOpener creates an Opener. The object store client is only created when
// an endpoint is configured; s3:// locators fail permanently otherwise.
func NewOpener(objCfg ObjectStoreConfig, timeout time.Duration) (*MultiOpener, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	o := &MultiOpener{httpClient: &http.Client{Timeout: timeout}}
	if objCfg.Endpoint != "" {
		client, err := minio.New(objCfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(objCfg.AccessKey, objCfg.SecretKey, ""),
			Secure: objCfg.UseSSL,
			Region: objCfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create object store client: %w", err)
		}
		o.objects = client
	}
	return o, nil
}

// Open reads the resource behind locator. Failures are PermanentErrors except
// for network faults and 5xx responses from remote stores, which are transient.
func (o *MultiOpener) Open(ctx context.Context, locator string) (*Resource, error) {
	u, err := url.Parse(locator)
	if err != nil || len(u.Scheme) <= 1 {
		return openFile(locator)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return openFile(u.Path)
	case "http", "https":
		return o.openHTTP(ctx, locator)
	case "s3":
		return o.openObject(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, domain.Permanent("open resource", fmt.Errorf("unsupported locator scheme %q", u.Scheme))
	}
}

func openFile(p string) (*Resource, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, domain.Permanent("open resource", err)
	}
	defer f.Close()

	data, err := readLimited(f)
	if err != nil {
		return nil, domain.Permanent("read resource", fmt.Errorf("%s: %w", p, err))
	}
	return &Resource{Data: data, ContentType: contentType(filepath.Ext(p), "", data)}, nil
}

func (o *MultiOpener) openHTTP(ctx context.Context, locator string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, domain.Permanent("open resource", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.Transient("open resource", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("GET %s: HTTP %d", locator, resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.Transient("open resource", err)
		}
		return nil, domain.Permanent("open resource", err)
	}
	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, domain.Transient("read resource", err)
	}
	u, _ := url.Parse(locator)
	return &Resource{Data: data, ContentType: contentType(path.Ext(u.Path), resp.Header.Get("Content-Type"), data)}, nil
}

func (o *MultiOpener) openObject(ctx context.Context, bucket, key string) (*Resource, error) {
	if o.objects == nil {
		return nil, domain.Permanent("open resource", errors.New("object store is not configured (set objects.endpoint)"))
	}
	obj, err := o.objects.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyObjectErr(err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, classifyObjectErr(err)
	}
	data, err := readLimited(obj)
	if err != nil {
		return nil, classifyObjectErr(err)
	}
	return &Resource{Data: data, ContentType: contentType(path.Ext(key), info.ContentType, data)}, nil
}

func classifyObjectErr(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.Code == "AccessDenied":
		return domain.Permanent("open object", err)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return domain.Permanent("open object", err)
	default:
		return domain.Transient("open object", err)
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, MaxResourceSize+1))
	if err != nil {
		return nil, err
	}
	if n > MaxResourceSize {
		return nil, fmt.Errorf("resource larger than %d bytes", MaxResourceSize)
	}
	if n == 0 {
		return nil, errors.New("resource is empty")
	}
	return buf.Bytes(), nil
}

// contentType prefers the extension, then a declared type, then sniffing.
func contentType(ext, declared string, data []byte) string {
	if ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return stripParams(t)
		}
	}
	if declared != "" && declared != "application/octet-stream" {
		return stripParams(declared)
	}
	return stripParams(http.DetectContentType(data))
}

func stripParams(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}
