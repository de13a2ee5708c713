package model

// TeamChannel is a single shared thread for a team. Team channels have
// unbounded participants and no request/accept gating.
type TeamChannel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BannerURL string `json:"banner_url"`
}
