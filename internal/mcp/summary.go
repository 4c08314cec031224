package mcp

import (
	"fmt"

	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
)

func jsonBytesSummary(n int) string {
	return fmt.Sprintf("%d bytes", n)
}

func fileSummary(f response.File) string {
	if f.Remark != "" {
		return fmt.Sprintf("file (.%s, %d bytes): %s", f.ProposedExtension, len(f.Contents), f.Remark)
	}
	return fmt.Sprintf("file (.%s, %d bytes)", f.ProposedExtension, len(f.Contents))
}

func imageSummary(img response.Image) string {
	if img.Remark != "" {
		return fmt.Sprintf("image %dx%d: %s", img.Width, img.Height, img.Remark)
	}
	return fmt.Sprintf("image %dx%d", img.Width, img.Height)
}
