package domain

import "time"

type AdvisoryType string

const (
	AdvisoryRouteDeviation AdvisoryType = "route_deviation"
	AdvisoryDelayAlert     AdvisoryType = "delay_alert"
	AdvisorySpeedPattern   AdvisoryType = "speed_pattern"
	AdvisoryIdleAlert      AdvisoryType = "idle_alert"
	AdvisoryGPSWarning     AdvisoryType = "gps_warning"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Advisory is a severity-tagged observation produced by one analyzer.
// Only external acknowledgment mutates it after creation.
type Advisory struct {
	ID           string                 `json:"id"`
	ShipmentID   string                 `json:"shipment_id"`
	Type         AdvisoryType           `json:"type"`
	Message      string                 `json:"message"`
	Severity     Severity               `json:"severity"`
	Detail       map[string]interface{} `json:"detail,omitempty"`
	Acknowledged bool                   `json:"acknowledged"`
	CreatedAt    time.Time              `json:"created_at"`
}
