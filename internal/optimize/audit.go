package optimize

import (
	"fmt"

	"github.com/barasher/go-exiftool"

	"github.com/acm19/imgopt/internal/logger"
)

// gpsTags are the exiftool fields that reveal where a photo was taken.
var gpsTags = []string{"GPSLatitude", "GPSLongitude", "GPSPosition"}

// AuditFinding is an output artifact that still carries location metadata.
type AuditFinding struct {
	Path string
	Tags []string
}

// MetadataAuditor inspects output artifacts for metadata that should not be published.
type MetadataAuditor interface {
	// Audit returns a finding for every path that carries GPS tags.
	Audit(paths []string) ([]AuditFinding, error)
}

// exifAuditor implements MetadataAuditor with exiftool
type exifAuditor struct {
	et *exiftool.Exiftool
}

// NewExifAuditor creates a MetadataAuditor backed by a running exiftool.
// The caller owns et and closes it.
func NewExifAuditor(et *exiftool.Exiftool) MetadataAuditor {
	return &exifAuditor{et: et}
}

func (a *exifAuditor) Audit(paths []string) ([]AuditFinding, error) {
	if a.et == nil {
		return nil, fmt.Errorf("exiftool not initialised")
	}
	if len(paths) == 0 {
		return nil, nil
	}

	var findings []AuditFinding
	for _, fi := range a.et.ExtractMetadata(paths...) {
		if fi.Err != nil {
			logger.Debug("Failed to read metadata", "file", fi.File, "error", fi.Err)
			continue
		}

		var tags []string
		for _, tag := range gpsTags {
			if _, ok := fi.Fields[tag]; ok {
				tags = append(tags, tag)
			}
		}
		if len(tags) > 0 {
			findings = append(findings, AuditFinding{Path: fi.File, Tags: tags})
		}
	}
	return findings, nil
}
