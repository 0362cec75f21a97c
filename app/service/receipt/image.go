package receipt

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/gabriel-vasile/mimetype"
)

const sanitizedMimeType = "image/png"

// InvalidInputError is a request the caller can fix.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string {
	return e.Message
}

// Sanitize checks that data is an image by content and re-encodes it as PNG,
// dropping metadata and anything appended to the image stream.
func Sanitize(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &InvalidInputError{Message: "File is empty."}
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, &InvalidInputError{Message: fmt.Sprintf("File not a valid image. Detected type: %s", mime.String())}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &InvalidInputError{Message: fmt.Sprintf("Invalid or corrupt image file: %v", err)}
	}

	var buf bytes.Buffer
	if err = png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	return buf.Bytes(), nil
}
