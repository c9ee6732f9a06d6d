package deposit

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const defaultQRSize = 256

// PaymentPayload is the text encoded in the dialog QR code: the payment link
// when the deposit service returned one, otherwise a method URI for the address.
func PaymentPayload(d Dialog) string {
	if d.PaymentURL != "" {
		return d.PaymentURL
	}
	target := d.Address
	if target == "" {
		target = d.TransactionID
	}
	return fmt.Sprintf("%s:%s?amount=%s&currency=%s&reference=%s",
		d.PaymentMethod, target, d.Quote.Total.StringFixed(2), entities.DefaultCurrency, d.TransactionID)
}

// RenderQR encodes payload as a square PNG of the given size in pixels
func RenderQR(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to scale QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
