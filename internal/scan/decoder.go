package scan

import (
	"errors"
	"fmt"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode means the frame held no decodable QR code.
var ErrNoCode = errors.New("scan: no QR code in frame")

// Decoder extracts the text of a QR code from a processed frame.
type Decoder interface {
	Decode(buf *PixelBuffer) (string, error)
}

// ZXingDecoder decodes QR codes with gozxing.
type ZXingDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewZXingDecoder creates a QR decoder.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode returns ErrNoCode when nothing could be read from the frame.
func (d *ZXingDecoder) Decode(buf *PixelBuffer) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(buf.Image())
	if err != nil {
		return "", fmt.Errorf("binarize frame: %w", err)
	}

	result, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		var readerErr gozxing.ReaderException
		if errors.As(err, &readerErr) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("decode frame: %w", err)
	}
	return result.GetText(), nil
}
