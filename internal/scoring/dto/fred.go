package dto

// FREDObservationsResponse mirrors the FRED series/observations payload.
type FREDObservationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}
