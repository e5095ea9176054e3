package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/engine"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// maxUploadBytes bounds manual uploads.
const maxUploadBytes = 10 << 20

type createConnectionRequest struct {
	CarrierID   string                 `json:"carrierId"`
	TenantID    string                 `json:"tenantId"`
	Type        models.TransportType   `json:"type"`
	Credentials map[string]string      `json:"credentials"`
	Settings    map[string]interface{} `json:"settings"`
}

type fetchRequest struct {
	DataType core.DataType          `json:"dataType" form:"dataType"`
	Params   map[string]interface{} `json:"params"`
}

type fetchResponse struct {
	ConnectionID string                   `json:"connectionId"`
	DataType     core.DataType            `json:"dataType"`
	Count        int                      `json:"count"`
	Records      []models.CanonicalRecord `json:"records"`
}

func (s *Server) listCarriers(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Carriers())
}

func (s *Server) createConnection(c *gin.Context) {
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request body"))
		return
	}
	conn, err := s.engine.CreateConnection(c.Request.Context(), engine.ConnectionRequest{
		CarrierID:   req.CarrierID,
		TenantID:    req.TenantID,
		Type:        req.Type,
		Credentials: models.Credentials(req.Credentials),
		Settings:    req.Settings,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conn)
}

func (s *Server) listConnections(c *gin.Context) {
	conns, err := s.engine.GetActiveConnections(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conns)
}

func (s *Server) getConnection(c *gin.Context) {
	conn, err := s.engine.GetConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func (s *Server) deactivateConnection(c *gin.Context) {
	conn, err := s.engine.DeactivateConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func (s *Server) connectionHealth(c *gin.Context) {
	h, err := s.engine.GetConnectionHealth(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) rateLimit(c *gin.Context) {
	stats, err := s.engine.RateLimitStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// fetch takes JSON {dataType, params}, or a multipart form with a dataType
// field and a file part for manual connections.
func (s *Server) fetch(c *gin.Context) {
	var req fetchRequest
	params := core.Params{}

	if c.ContentType() == "multipart/form-data" {
		req.DataType = core.DataType(c.PostForm("dataType"))
		file, err := formFile(c)
		if err != nil {
			writeError(c, err)
			return
		}
		params[engine.ParamFile] = file
	} else if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request body"))
		return
	}
	for k, v := range req.Params {
		params[k] = v
	}
	if req.DataType == "" {
		req.DataType = core.DataTypeTracking
	}
	if !req.DataType.Valid() {
		writeError(c, errors.Newf(errors.ErrorTypeValidation, "unknown data type: %s", req.DataType))
		return
	}

	id := c.Param("id")
	records, err := s.engine.FetchData(c.Request.Context(), id, req.DataType, params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fetchResponse{ConnectionID: id, DataType: req.DataType, Count: len(records), Records: records})
}

func formFile(c *gin.Context) (core.UploadFile, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return core.UploadFile{}, errors.Wrap(err, errors.ErrorTypeValidation, "missing file part")
	}
	if fh.Size > maxUploadBytes {
		return core.UploadFile{}, errors.Newf(errors.ErrorTypeValidation, "file exceeds %d bytes", maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return core.UploadFile{}, errors.Wrap(err, errors.ErrorTypeValidation, "unreadable file part")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return core.UploadFile{}, errors.Wrap(err, errors.ErrorTypeValidation, "unreadable file part")
	}
	return core.UploadFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) listAlerts(c *gin.Context) {
	var filter models.AlertFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		writeError(c, errors.Wrap(err, errors.ErrorTypeValidation, "invalid alert filter"))
		return
	}
	c.JSON(http.StatusOK, s.engine.GetAlerts(filter))
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	alert, err := s.engine.AcknowledgeAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}
