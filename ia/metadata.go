package ia

import (
	"fmt"

	"ytarchive/naming"
	"ytarchive/storage"
)

// Archive collection settings for archived channel videos.
const (
	collection = "opensource_movies"
	mediaType  = "movies"
	language   = "eng"
)

// Metadata is the flat key-value metadata attached to an archive item.
type Metadata map[string]string

// MetadataFor builds item metadata from a video record. Every Extra field
// on the record is forwarded verbatim alongside the fixed fields.
func MetadataFor(rec storage.VideoRecord) Metadata {
	y, m, d := naming.SplitDate(rec.UploadDate)
	publishDate := fmt.Sprintf("%s-%s-%s", y, m, d)

	md := Metadata{
		"collection": collection,
		"mediatype":  mediaType,
		"language":   language,
		"id":         rec.ID,
		"subject":    rec.ChannelName,
		"date":       publishDate,
		"description": fmt.Sprintf("Title: %s\nPublished on: %s\nOriginal video URL: %s",
			rec.Title, publishDate, rec.URL),
	}
	for k, v := range rec.Extra {
		md[k] = fmt.Sprint(v)
	}
	return md
}
