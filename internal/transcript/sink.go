package transcript

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Sink is a durable destination for transcript snapshots. Every Write
// replaces the previous content.
type Sink interface {
	Write(ctx context.Context, data []byte) error
	Close() error
	String() string
}

// ExportSnapshot writes the full-history rendering to sink. Callers treat a
// failure as non-fatal.
func (t *Transcript) ExportSnapshot(ctx context.Context, sink Sink) error {
	if sink == nil {
		return nil
	}
	if err := sink.Write(ctx, []byte(t.Render(FullHistory))); err != nil {
		return fmt.Errorf("export transcript to %s: %w", sink, err)
	}
	return nil
}

// FileSink overwrites a local file on every write.
type FileSink struct {
	Path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

// Write replaces the file atomically so readers never see a partial snapshot.
func (s *FileSink) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error { return nil }

func (s *FileSink) String() string { return s.Path }

// OpenSink picks a sink from a destination string:
//
//	redis://host:6379/0?key=textplay:zork   -> RedisSink
//	azblob://container/blob.txt             -> BlobSink (AZURE_STORAGE_CONNECTION_STRING)
//	https://acct.blob.core.windows.net/c/b  -> BlobSink (default Azure credential)
//	anything else                           -> FileSink
func OpenSink(ctx context.Context, dest string) (Sink, error) {
	if dest == "" {
		return nil, fmt.Errorf("empty snapshot destination")
	}

	u, err := url.Parse(dest)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// plain paths, including windows drive letters
		return NewFileSink(dest), nil
	}

	switch u.Scheme {
	case "file":
		return NewFileSink(u.Path), nil
	case "redis", "rediss":
		return NewRedisSinkFromURL(u)
	case "azblob":
		return NewBlobSinkFromConnectionString(os.Getenv(ConnectionStringEnv), u.Host, strings.TrimPrefix(u.Path, "/"))
	case "https":
		if strings.HasSuffix(u.Host, ".blob.core.windows.net") {
			return NewBlobSinkFromURL(ctx, u)
		}
	}
	return nil, fmt.Errorf("unsupported snapshot destination %q", dest)
}
