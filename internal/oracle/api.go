package oracle

// SessionReport is one ended session as reported by the metering service.
type SessionReport struct {
	BookingID      uint64 `json:"booking_id"`
	ActualDuration uint64 `json:"actual_duration"`
}

// ApiResponse models the top-level structure of the metering API's response.
type ApiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int             `json:"page"`
		PageSize int             `json:"pageSize"`
		Total    int             `json:"total"`
		Items    []SessionReport `json:"items"`
	} `json:"data"`
}
