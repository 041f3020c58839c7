package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renkel/ytgrab/internal/jobs"
	"github.com/renkel/ytgrab/internal/media"
	"github.com/renkel/ytgrab/internal/pipeline"
	"github.com/renkel/ytgrab/internal/quality"
	"github.com/renkel/ytgrab/internal/version"
	"github.com/renkel/ytgrab/internal/videoid"
)

// MetadataRequest is the request body for POST /metadata
type MetadataRequest struct {
	URL string `json:"url" binding:"required"`
}

// DownloadRequest is the request body for POST /download
type DownloadRequest struct {
	URL      string `json:"url" binding:"required"`
	Kind     string `json:"media_kind" binding:"required"`
	FormatID string `json:"selected_format_id,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"status":  "ok",
			"version": version.Version,
		},
		Message: "everything is good",
	})
}

// handleMetadata resolves one URL: both quality probes run concurrently
// and their results go through the resolver's pure merge. The player
// probe is best effort; its failure never fails the request.
func (s *Server) handleMetadata(c *gin.Context) {
	var req MetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "invalid request body: url is required",
		})
		return
	}

	videoID, err := videoid.Extract(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "no video id found in url",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), metadataTimeout)
	defer cancel()

	playerLevel := make(chan string, 1)
	go func() {
		playerLevel <- s.probePlayer(ctx, videoID)
	}()

	meta, err := s.meta.Fetch(ctx, videoID)
	if err != nil {
		s.log.Error().Err(err).Str("video_id", videoID).Msg("metadata fetch failed")
		c.JSON(http.StatusBadGateway, Response{
			Code:    502,
			Message: "could not fetch video metadata",
		})
		return
	}

	res := quality.Resolve(<-playerLevel, meta.Formats, media.KindVideo)

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"video_id":         meta.VideoID,
			"title":            meta.Title,
			"uploader":         meta.Uploader,
			"channel_logo_url": meta.ChannelLogoURL,
			"thumbnail_url":    meta.ThumbnailURL,
			"duration_seconds": meta.DurationSeconds,
			"view_count":       meta.ViewCount,
			"like_count":       meta.LikeCount,
			"subscriber_count": meta.SubscriberCount,
			"info_source":      meta.Source,
			"quality":          res,
		},
		Message: "metadata resolved",
	})
}

// probePlayer returns the player's best quality level, "" when the
// probe is unavailable, disabled, or failed.
func (s *Server) probePlayer(ctx context.Context, videoID string) string {
	if s.prober == nil {
		return ""
	}
	level, err := s.prober.BestQuality(ctx, videoID)
	if err != nil {
		s.log.Warn().Err(err).Str("video_id", videoID).Msg("player probe failed")
		return ""
	}
	return level
}

func (s *Server) handleDownload(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "invalid request body: url and media_kind are required",
		})
		return
	}

	kind := media.Kind(req.Kind)
	if !media.ValidKind(kind) {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "media_kind must be video, audio, or thumbnail",
		})
		return
	}

	videoID, err := videoid.Extract(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "no video id found in url",
		})
		return
	}

	snap, err := s.queue.Create(pipeline.Request{
		URL:      req.URL,
		VideoID:  videoID,
		Kind:     kind,
		FormatID: req.FormatID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"job_id": snap.ID,
			"status": snap.State,
		},
		Message: "download started",
	})
}

func (s *Server) handleProgress(c *gin.Context) {
	snap, ok := s.queue.Get(c.Param("job_id"))
	if !ok {
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Message: "job not found",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"progress": snap.Progress,
			"speed":    snap.Speed,
			"eta":      snap.ETA,
			"elapsed":  snap.ElapsedSeconds,
			"status":   snap.State,
			"error":    snap.Error,
		},
		Message: string(snap.State),
	})
}

func (s *Server) handleCancel(c *gin.Context) {
	if !s.queue.Cancel(c.Param("job_id")) {
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Message: "job not found",
		})
		return
	}
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    gin.H{"ok": true},
		Message: "cancellation requested",
	})
}

func (s *Server) handleFile(c *gin.Context) {
	snap, path, err := s.queue.Output(c.Param("job_id"))
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Message: "job not found",
		})
		return
	case errors.Is(err, jobs.ErrNotReady):
		c.JSON(http.StatusConflict, Response{
			Code:    409,
			Message: "job has not completed yet",
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.Header("Content-Type", snap.MIMEType)
	c.FileAttachment(path, snap.Filename)
}
