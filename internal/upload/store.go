package upload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	errx "github.com/questor-agent/server/internal/core/error"
	logx "github.com/questor-agent/server/pkg/logger"
)

// URLPrefix is the path uploaded files are served under.
const URLPrefix = "/uploads/"

type Config struct {
	Dir string `envconfig:"UPLOAD_DIR" default:"uploads"`
	// PublicBaseURL prefixes returned URLs, e.g. "https://api.example.com".
	PublicBaseURL string `envconfig:"UPLOAD_PUBLIC_URL"`
	MaxBytes      int64  `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var ErrTooLarge = errors.New("upload exceeds size limit")

// Store keeps uploaded photos on local disk.
type Store struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		cfg.Dir = "uploads"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:      cfg.Dir,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxBytes: cfg.MaxBytes,
	}, nil
}

func (s *Store) Dir() string     { return s.dir }
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save stores an image read from r and returns its public URL. The content
// type is sniffed from the data, never taken from the client.
func (s *Store) Save(ctx context.Context, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return "", errx.Validation("file is empty")
	}
	ext, ok := allowedTypes[http.DetectContentType(head)]
	if !ok {
		return "", errx.Validation("unsupported file type")
	}

	name := uuid.NewString() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(br, s.maxBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("close upload: %w", closeErr)
	}
	if n > s.maxBytes {
		return "", errx.New(ErrTooLarge, http.StatusRequestEntityTooLarge, "file too large")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	logx.Info().Str("file", name).Int64("bytes", n).Msg("photo uploaded")
	return s.baseURL + URLPrefix + name, nil
}

// Handler serves stored files; mount it under URLPrefix.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(http.Dir(s.dir)))
}
