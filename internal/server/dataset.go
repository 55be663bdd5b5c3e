package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	datasetdomain "github.com/smallbiznis/equiplytics/internal/dataset/domain"
	"github.com/smallbiznis/equiplytics/pkg/db/pagination"
)

const uploadField = "file"

func (s *Server) ListDatasets(c *gin.Context) {
	resp, err := s.datasetSvc.ListRecent(c.Request.Context(), ownerID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UploadDataset(c *gin.Context) {
	limit := s.cfg.MaxUploadBytes
	if limit > 0 {
		// leave room for the multipart envelope
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+(1<<20))
	}

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, datasetdomain.ErrFileTooLarge)
			return
		}
		AbortWithError(c, newValidationError(uploadField, "missing_file", "a csv file is required"))
		return
	}
	if limit > 0 && fh.Size > limit {
		AbortWithError(c, datasetdomain.ErrFileTooLarge)
		return
	}

	f, err := fh.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.datasetSvc.Ingest(c.Request.Context(), datasetdomain.IngestRequest{
		OwnerID:  ownerID(c),
		Filename: fh.Filename,
		Content:  content,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("batch_id", resp.ID)
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetDataset(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("batch_id", id)

	resp, err := s.datasetSvc.GetBatch(c.Request.Context(), ownerID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDatasetSummary(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("batch_id", id)

	resp, err := s.datasetSvc.GetSummary(c.Request.Context(), ownerID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListDatasetRecords(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	c.Set("batch_id", id)

	resp, err := s.datasetSvc.ListRecords(c.Request.Context(), datasetdomain.ListRecordsRequest{
		OwnerID:   ownerID(c),
		BatchID:   id,
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Records,
		"total":     resp.Total,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) DownloadDatasetReport(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("batch_id", id)

	file, err := s.datasetSvc.RenderReport(c.Request.Context(), ownerID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

func (s *Server) DeleteDataset(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("batch_id", id)

	if err := s.datasetSvc.Delete(c.Request.Context(), ownerID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
