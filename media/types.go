// media/types.go
package media

const (
	JPEGContentType   = "image/jpeg"
	JPEGFileExtension = ".jpg"
)

// CompressionPolicy bounds the size of uploaded images.
type CompressionPolicy struct {
	MaxEdge      int     // longest side in pixels
	MaxBytes     int     // target encoded size
	StartQuality int     // first JPEG quality tried
	MinQuality   int     // lowest JPEG quality before downscaling
	QualityStep  int     // quality decrement between attempts
	ScaleStep    float64 // factor applied per downscale round
	MaxRounds    int     // downscale rounds before giving up on the size target
}

// DefaultCompressionPolicy keeps uploads at or under 1MB and 1920px.
var DefaultCompressionPolicy = CompressionPolicy{
	MaxEdge:      1920,
	MaxBytes:     1 << 20,
	StartQuality: 85,
	MinQuality:   45,
	QualityStep:  10,
	ScaleStep:    0.8,
	MaxRounds:    6,
}

// Compressed is an encoded image ready for upload.
type Compressed struct {
	Data        []byte
	ContentType string
	Extension   string
	Width       int
	Height      int
	Quality     int
}
