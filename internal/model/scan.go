package model

import "time"

// ScanType is the capture method of a scan attempt.
type ScanType string

const (
	ScanTypeNFC ScanType = "NFC"
	ScanTypeQR  ScanType = "QR"
)

// DeviceInfo identifies the device that performed a scan.
type DeviceInfo struct {
	Platform string `json:"platform" bson:"platform"`
	Model    string `json:"model,omitempty" bson:"model,omitempty"`
}

// ScanRecord is one observation of a scan attempt. Records are never
// mutated after creation.
type ScanRecord struct {
	ID           string     `json:"id" bson:"_id"`
	Timestamp    int64      `json:"timestamp" bson:"timestamp"` // epoch millis
	Type         ScanType   `json:"type" bson:"type"`
	SerialNumber string     `json:"serialNumber" bson:"serial_number"`
	Success      bool       `json:"success" bson:"success"`
	Error        string     `json:"error,omitempty" bson:"error,omitempty"`
	Duration     int64      `json:"duration" bson:"duration"` // millis
	DeviceInfo   DeviceInfo `json:"deviceInfo" bson:"device_info"`
}

// Time returns the record timestamp as a time.Time.
func (r ScanRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// ScanStatistics is an aggregation over the history log.
type ScanStatistics struct {
	Total           int            `json:"total"`
	Successful      int            `json:"successful"`
	SuccessRate     float64        `json:"successRate"`
	AverageDuration float64        `json:"averageDuration"`
	ByType          TypeCounts     `json:"byType"`
	ByPlatform      map[string]int `json:"byPlatform"`
}

// TypeCounts counts records per scan type.
type TypeCounts struct {
	NFC int `json:"nfc"`
	QR  int `json:"qr"`
}

// WindowMetrics summarises the records of one time window.
type WindowMetrics struct {
	TotalScans       int        `json:"totalScans"`
	SuccessRate      float64    `json:"successRate"`
	AverageDuration  float64    `json:"averageDuration"`
	ErrorRate        float64    `json:"errorRate"`
	TypeDistribution TypeCounts `json:"typeDistribution"`
}

// ScanTrends groups metrics by trailing hour, day and week. A nil window
// had no records.
type ScanTrends struct {
	Hourly *WindowMetrics `json:"hourly"`
	Daily  *WindowMetrics `json:"daily"`
	Weekly *WindowMetrics `json:"weekly"`
}

// BufferedScanRecord is a scan record waiting in the write-behind buffer.
type BufferedScanRecord struct {
	Record   ScanRecord `json:"record"`
	QueuedAt time.Time  `json:"queued_at"`
}
