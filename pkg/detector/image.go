package detector

import (
	"bytes"
	"fmt"
	"math"

	"github.com/provenance-labs/provd/pkg/models"
)

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	webpRIFF  = []byte("RIFF")
	webpMagic = []byte("WEBP")
	exifTag   = []byte("Exif")
)

// analyzeImage scores provenance signals over the raw image bytes:
// camera metadata presence, byte-level entropy, and low-order byte
// uniformity. Generator output typically ships without capture metadata.
func (d *Detector) analyzeImage(data []byte) (*models.DetectionResult, error) {
	if len(data) < 64 {
		return nil, fmt.Errorf("%w: need at least 64 bytes", ErrInputTooSmall)
	}
	format := sniffImageFormat(data)
	if format == "" {
		return nil, fmt.Errorf("%w: not a PNG, JPEG, or WebP image", ErrUnsupportedFormat)
	}

	hasExif := bytes.Contains(data[:min(len(data), 4096)], exifTag)
	entropy := byteEntropy(data)
	uniformity := lowOrderUniformity(data)

	// No capture metadata plus very smooth byte statistics leans synthetic.
	metadataScore := 0.65
	if hasExif {
		metadataScore = 0.15
	}
	entropyScore := clamp01((entropy - 6.0) / 2.0)
	uniformityScore := clamp01(uniformity * 2)

	prob := 0.45*metadataScore + 0.25*entropyScore + 0.30*uniformityScore

	signals := map[string]float64{
		"byte_entropy":         round3(entropy),
		"low_order_uniformity": round3(uniformity),
		"metadata_present":     boolSignal(hasExif),
	}

	explanation := fmt.Sprintf("%s image with capture metadata present", format)
	if !hasExif {
		explanation = fmt.Sprintf("%s image without capture metadata", format)
	}

	return probabilityToResult(prob, signals, explanation), nil
}

func sniffImageFormat(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return "png"
	case bytes.HasPrefix(data, jpegMagic):
		return "jpeg"
	case bytes.HasPrefix(data, webpRIFF) && len(data) >= 12 && bytes.Equal(data[8:12], webpMagic):
		return "webp"
	}
	return ""
}

// byteEntropy is the Shannon entropy of the byte histogram, in bits.
func byteEntropy(data []byte) float64 {
	var hist [256]int
	for _, b := range data {
		hist[b]++
	}
	total := float64(len(data))
	entropy := 0.0
	for _, n := range hist {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// lowOrderUniformity measures how evenly the low nibble of each byte is
// distributed; generated pixel data tends to be smoother than sensor noise.
func lowOrderUniformity(data []byte) float64 {
	var hist [16]int
	for _, b := range data {
		hist[b&0x0F]++
	}
	expected := float64(len(data)) / 16
	chi := 0.0
	for _, n := range hist {
		diff := float64(n) - expected
		chi += diff * diff / expected
	}
	// Small chi-square means suspiciously uniform low-order bytes.
	return clamp01(1 - chi/float64(len(data)))
}

func boolSignal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
