// Package content splits notification bodies into free text and the images
// embedded in them as data-URI <img> tags, and merges them back.
package content

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	imgTagRe = regexp.MustCompile(`<img[^>]+>`)
	srcRe    = regexp.MustCompile(`src="([^"]+)"`)
	altRe    = regexp.MustCompile(`alt="([^"]+)"`)
	idRe     = regexp.MustCompile(`id="([^"]+)"`)
)

const dataImagePrefix = "data:image"

// ImageItem is an image managed alongside the text of a notification.
type ImageItem struct {
	ID     string `json:"id"`
	Base64 string `json:"base64"`
	Name   string `json:"name"`
}

// Tag renders the image as the <img> tag stored inside the content string.
func (img ImageItem) Tag() string {
	return fmt.Sprintf(`<img src="%s" alt="%s" id="%s" style="max-width: 100%%; height: auto;" />`,
		img.Base64, img.Name, img.ID)
}

// Document is a content string split into its text and managed images.
// Text never contains <img> tags after Decode.
type Document struct {
	Text   string
	Images []ImageItem
}

// Decode extracts every <img> tag from s. Tags whose src is a data:image URI
// become managed images; all tags are removed from the text either way and
// the remaining text is trimmed.
// A hand-typed tag with a data:image src is indistinguishable from an
// uploaded one and is picked up as well.
func Decode(s string) Document {
	matches := imgTagRe.FindAllString(s, -1)
	if len(matches) == 0 {
		return Document{Text: strings.TrimSpace(s)}
	}

	images := make([]ImageItem, 0, len(matches))
	for i, tag := range matches {
		src := submatch(srcRe, tag)
		if !strings.HasPrefix(src, dataImagePrefix) {
			continue
		}

		id := submatch(idRe, tag)
		if id == "" {
			id = fmt.Sprintf("img-existing-%d", i)
		}
		name := submatch(altRe, tag)
		if name == "" {
			name = fmt.Sprintf("Image %d", i+1)
		}

		images = append(images, ImageItem{ID: id, Base64: src, Name: name})
	}

	return Document{
		Text:   strings.TrimSpace(imgTagRe.ReplaceAllString(s, "")),
		Images: images,
	}
}

// Encode merges text and images back into a single content string.
func (d Document) Encode() string {
	if len(d.Images) == 0 {
		return d.Text
	}
	tags := make([]string, len(d.Images))
	for i, img := range d.Images {
		tags[i] = img.Tag()
	}
	return d.Text + "\n" + strings.Join(tags, "\n")
}

// Add appends an image.
func (d *Document) Add(img ImageItem) {
	d.Images = append(d.Images, img)
}

// Remove drops the image with the given id, keeping the order of the rest.
// It reports whether anything was removed.
func (d *Document) Remove(id string) bool {
	kept := d.Images[:0:0]
	for _, img := range d.Images {
		if img.ID != id {
			kept = append(kept, img)
		}
	}
	removed := len(kept) != len(d.Images)
	d.Images = kept
	return removed
}

// NewImageID derives an image id from the upload time.
func NewImageID(now time.Time) string {
	return fmt.Sprintf("img-%d", now.UnixMilli())
}

// ApplySuggestion replaces the text of current with an AI suggestion while
// keeping the images current already carries. Images inside the suggestion
// are discarded so they are not duplicated.
func ApplySuggestion(current, suggestion string) string {
	existing := imgTagRe.FindAllString(current, -1)
	clean := strings.TrimSpace(imgTagRe.ReplaceAllString(suggestion, ""))
	if len(existing) == 0 {
		return clean
	}
	return clean + "\n" + strings.Join(existing, "\n")
}

func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
