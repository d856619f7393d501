package display

import (
	"image"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	// Level is the error-correction level of every access code.
	Level = qrcode.Low
	// ModulePixels is the rendered size of one QR module.
	ModulePixels = 12
	// QuietZone is the border in modules around the code.
	QuietZone = 4
)

// Encode builds the QR code for content. The encoder always adds a
// QuietZone-module border.
func Encode(content string) (*qrcode.QRCode, error) {
	return qrcode.New(content, Level)
}

// Image renders content at ModulePixels per module.
func Image(content string) (image.Image, error) {
	q, err := Encode(content)
	if err != nil {
		return nil, err
	}
	return q.Image(-ModulePixels), nil
}
