package provision

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/nodeforge/nodeforge/pkg/config"
	"github.com/nodeforge/nodeforge/pkg/procedure"
)

// Relative cache keys for the OS image.
const (
	KeyImageArchive = "image/archive"
	KeyImageRaw     = "image/disk.img"
)

// DownloadImage fetches the OS image archive into the cache and
// decompresses it. The download is a cache fill: a multi-gigabyte
// fetch that fails partway is retried under operator control, and a
// previously downloaded, still-valid archive is never fetched again.
type DownloadImage struct {
	cfg *config.Config

	// client is swappable for tests.
	client *http.Client
}

// NewDownloadImage creates the download-image procedure.
func NewDownloadImage(cfg *config.Config) *DownloadImage {
	return &DownloadImage{cfg: cfg, client: http.DefaultClient}
}

const (
	downloadStateDownload   procedure.StateID = "download"
	downloadStateDecompress procedure.StateID = "decompress"
)

type downloadState struct {
	// URL travels in the payload: resuming must re-fetch the same
	// archive the run started with, even if the config changed.
	URL string `json:"url"`
}

func (downloadState) StateID() procedure.StateID { return downloadStateDownload }

type decompressState struct {
	URL string `json:"url"`
}

func (decompressState) StateID() procedure.StateID { return downloadStateDecompress }

// Name implements procedure.Procedure.
func (p *DownloadImage) Name() string { return ProcedureDownloadImage }

// States implements procedure.Procedure.
func (p *DownloadImage) States() []procedure.StateID {
	return []procedure.StateID{downloadStateDownload, downloadStateDecompress}
}

// InitialState implements procedure.Procedure.
func (p *DownloadImage) InitialState() procedure.State {
	return downloadState{URL: p.cfg.Image.URL}
}

// DecodeState implements procedure.Procedure.
func (p *DownloadImage) DecodeState(id procedure.StateID, payload []byte) (procedure.State, error) {
	switch id {
	case downloadStateDownload:
		var s downloadState
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, err
		}
		return s, nil
	case downloadStateDecompress:
		var s decompressState
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown download-image state %q", id)
	}
}

// Run implements procedure.Procedure.
func (p *DownloadImage) Run(ctx context.Context, step *procedure.Step) (procedure.Halt, error) {
	switch s := step.State().(type) {
	case downloadState:
		if err := step.FillFile(ctx, KeyImageArchive, p.fetch(s.URL)); err != nil {
			return procedure.Halt{}, err
		}
		return procedure.Yield(decompressState{URL: s.URL}), nil

	case decompressState:
		if err := p.decompress(ctx, step, s.URL); err != nil {
			return procedure.Halt{}, err
		}
		return procedure.Finish(), nil

	default:
		return procedure.Halt{}, fmt.Errorf("unexpected state %T", s)
	}
}

// fetch returns a fill func streaming the archive from url into the
// cached file.
func (p *DownloadImage) fetch(url string) func(ctx context.Context, f *os.File, path string, retry bool) error {
	return func(ctx context.Context, f *os.File, _ string, _ bool) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build image request: %w", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch image: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch image: unexpected status %s", resp.Status)
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			return fmt.Errorf("stream image to cache: %w", err)
		}
		return nil
	}
}

// decompress unpacks the cached archive into the raw image file. A
// plain (non-gzip) archive is copied through unchanged.
func (p *DownloadImage) decompress(ctx context.Context, step *procedure.Step, url string) error {
	archivePath, err := step.RealPath(KeyImageArchive)
	if err != nil {
		return err
	}

	return step.FillFile(ctx, KeyImageRaw, func(_ context.Context, f *os.File, _ string, _ bool) error {
		archive, err := os.Open(archivePath)
		if err != nil {
			return fmt.Errorf("open cached archive: %w", err)
		}
		defer archive.Close()

		var reader io.Reader = archive
		if strings.HasSuffix(url, ".gz") {
			gz, err := gzip.NewReader(archive)
			if err != nil {
				return fmt.Errorf("open gzip stream: %w", err)
			}
			defer gz.Close()
			reader = gz
		}

		if _, err := io.Copy(f, reader); err != nil {
			return fmt.Errorf("decompress image: %w", err)
		}
		return nil
	})
}
