package sync

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
)

// Export job states reported by the service.
const (
	ExportStatusCreated = "created"
	ExportStatusStarted = "started"
	ExportStatusDone    = "done"
	ExportStatusError   = "error"
)

// Export is an asynchronous bulk export job.
type Export struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Format      string `json:"format"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
}

func (e Export) IsDone() bool {
	return e.Status == ExportStatusDone
}

// ExportLeads submits a JSON export of every lead.
func (c *ServiceClient) ExportLeads(ctx context.Context) (Export, error) {
	var result Export
	req := struct {
		Format        string `json:"format"`
		Type          string `json:"type"`
		SendDoneEmail bool   `json:"send_done_email"`
	}{Format: "json", Type: "leads"}
	path := "/export/lead/"
	b := c.ServiceAPIBuilder(path).
		BodyJSON(&req).
		ToJSON(&result)
	if err := c.fetch(ctx, http.MethodPost, path, b); err != nil {
		return Export{}, err
	}
	if result.ID == "" {
		return Export{}, &ServiceError{StatusCode: http.StatusOK, Method: http.MethodPost, Path: path, Message: "export response has no id"}
	}
	return result, nil
}

// PollExport returns the current state of the export job id.
func (c *ServiceClient) PollExport(ctx context.Context, id string) (Export, error) {
	var result Export
	template := "/export/{id}/"
	if err := c.checkAPIKey(); err != nil {
		return result, err
	}
	if len(id) < MinRemoteIDLength {
		return result, &ValidationError{Field: "id", Message: fmt.Sprintf("%q is not a valid export id", id)}
	}
	b := c.ServiceAPIBuilder(fmt.Sprintf("/export/%s/", id)).ToJSON(&result)
	if err := c.fetch(ctx, http.MethodGet, template, b); err != nil {
		return Export{}, err
	}
	return result, nil
}

// WaitForExport polls the job until it is done or fails.
func (c *ServiceClient) WaitForExport(ctx context.Context, id string) (Export, error) {
	for {
		export, err := c.PollExport(ctx, id)
		if err != nil {
			return export, err
		}
		switch export.Status {
		case ExportStatusDone:
			return export, nil
		case ExportStatusError, "failed", "canceled":
			return export, &ServiceError{StatusCode: http.StatusOK, Method: http.MethodGet, Path: "/export/{id}/", Message: "export " + id + " finished with status " + export.Status}
		}
		c.logger.Debug("waiting for export", "id", id, "status", export.Status)
		select {
		case <-ctx.Done():
			return export, ctx.Err()
		case <-time.After(c.exportPollInterval):
		}
	}
}

// StreamExport waits for the export job, downloads its archive and yields every
// exported record one at a time. Archive entries that are not JSON are skipped.
func (c *ServiceClient) StreamExport(ctx context.Context, id string, yield func(Record) error) error {
	export, err := c.WaitForExport(ctx, id)
	if err != nil {
		return err
	}
	if export.DownloadURL == "" {
		return &ServiceError{StatusCode: http.StatusOK, Method: http.MethodGet, Path: "/export/{id}/", Message: "export " + id + " has no download url"}
	}
	var archive bytes.Buffer
	// The download link is pre-signed and must not carry our credentials.
	b := requests.
		URL(export.DownloadURL).
		Client(&http.Client{Timeout: ExportDownloadTimeout, Transport: c.transport}).
		ToBytesBuffer(&archive)
	if err := c.fetch(ctx, http.MethodGet, "{download_url}", b); err != nil {
		return err
	}
	return ReadExportArchive(archive.Bytes(), yield)
}

// ReadExportArchive yields the records of every .json entry in a zip archive.
// An entry may hold a JSON array or one JSON object per line.
func ReadExportArchive(data []byte, yield func(Record) error) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to open export archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".json") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open export entry %s: %w", f.Name, err)
		}
		err = decodeExportEntry(rc, yield)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to read export entry %s: %w", f.Name, err)
		}
	}
	return nil
}

func decodeExportEntry(r io.Reader, yield func(Record) error) error {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	dec := json.NewDecoder(br)
	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return err
		}
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return err
			}
			if err := yield(NewRecord(string(raw))); err != nil {
				return err
			}
		}
		_, err = dec.Token()
		return err
	}
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := yield(NewRecord(string(raw))); err != nil {
			return err
		}
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
