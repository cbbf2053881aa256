package main

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/hyperjump/kotae/internal/models"
)

func localFileInfo(d *models.Document) models.FileInfo {
	return models.FileInfo{
		Filename:   d.Filename,
		Pages:      d.Pages,
		Size:       humanize.IBytes(uint64(d.Size)),
		SizeBytes:  d.Size,
		UploadedAt: d.UploadedAt,
	}
}

func localInfo(ctx context.Context, c *Components) (*models.ServiceInfo, error) {
	count, err := c.Store.Count(ctx)
	if err != nil {
		return nil, err
	}
	idx := c.Holder.Info()
	info := &models.ServiceInfo{
		PDFCount:       count,
		VectorsIndexed: idx.VectorCount,
		LastTrainedAt:  idx.LastTrainedAt,
		EmbeddingModel: idx.EmbeddingModel,
		LLMModel:       idx.LLMModel,
		Training:       c.Status.Snapshot(),
	}
	if bytes, err := c.Store.DiskUsage(); err == nil {
		info.DiskUsageBytes = bytes
	}
	return info, nil
}
