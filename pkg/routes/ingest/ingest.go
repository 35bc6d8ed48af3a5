package ingest

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Register registers CSV ingestion routes
func Register(g *echo.Group) {
	g.POST("/upload-url", UploadURL)
	g.POST("/process", Process)
}

// UploadURLRequest is the request body for generating a presigned upload URL
type UploadURLRequest struct {
	Filename string `json:"filename" validate:"required"`
}

// UploadURLResponse carries the presigned PUT URL and the object key the
// caller should pass back to /process
type UploadURLResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	Bucket    string `json:"bucket"`
}

// UploadURL generates a presigned S3 PUT URL for a CSV upload
func UploadURL(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ingest_handler.UploadURL")
	defer span.End()

	var req UploadURLRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	req.Filename = strings.TrimSpace(req.Filename)
	if req.Filename == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "filename is required")
	}

	ctx, store, err := ectoinject.GetContext[*ingest.ObjectStore](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get object store")
	}

	url, key, err := store.PresignUpload(ctx, req.Filename, 0)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to generate upload URL")
	}

	return c.JSON(http.StatusOK, UploadURLResponse{
		UploadURL: url,
		Key:       key,
		Bucket:    store.Bucket(),
	})
}

// ProcessRequest is the request body for processing an uploaded CSV
type ProcessRequest struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key" validate:"required"`
}

// Process loads user profiles from an uploaded CSV file
func Process(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ingest_handler.Process")
	defer span.End()

	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Key == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "key is required")
	}

	ctx, processor, err := ectoinject.GetContext[*ingest.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ingest processor")
	}

	result, err := processor.ProcessFile(ctx, req.Bucket, req.Key)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
